package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rentaldesk/rentaldesk/internal/platform/database"
)

// Lookup answers which company an owner or manager belongs to. When data
// links an account to several companies the lowest id wins, so resolution
// stays deterministic.
type Lookup struct {
	db database.Querier
}

func NewLookup(db database.Querier) *Lookup {
	return &Lookup{db: db}
}

func (l *Lookup) OwnedCompanyID(ctx context.Context, userID string) (int64, bool, error) {
	return l.first(ctx, "owned company",
		`SELECT id FROM companies WHERE owner_id::text = $1 ORDER BY id LIMIT 1`, userID)
}

func (l *Lookup) ManagedCompanyID(ctx context.Context, userID string) (int64, bool, error) {
	return l.first(ctx, "managed company",
		`SELECT company_id FROM company_managers
		 WHERE user_id::text = $1 AND active
		 ORDER BY company_id LIMIT 1`, userID)
}

func (l *Lookup) first(ctx context.Context, what, sql, userID string) (int64, bool, error) {
	var id int64
	err := l.db.QueryRow(ctx, sql, userID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("looking up %s: %w", what, err)
	}
	return id, true, nil
}
