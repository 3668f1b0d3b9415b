package mutation

import (
	"context"
	"fmt"

	"github.com/rentaldesk/rentaldesk/internal/platform/api"
	"github.com/rentaldesk/rentaldesk/internal/platform/database"
)

// checkReferences verifies every foreign key in the payload exists as seen
// by the session q runs in, so rows of another tenant count as missing.
func checkReferences(ctx context.Context, q database.Querier, in any) error {
	r, ok := in.(Referencer)
	if !ok {
		return nil
	}
	verr := &api.ValidationError{}
	for _, ref := range r.References() {
		if ref.ID == nil {
			continue
		}
		var exists bool
		sql := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)", ref.Table)
		if err := q.QueryRow(ctx, sql, *ref.ID).Scan(&exists); err != nil {
			return fmt.Errorf("checking %s reference: %w", ref.Field, err)
		}
		if !exists {
			verr.Add(ref.Field, fmt.Sprintf("%s %d does not exist", ref.Table, *ref.ID))
		}
	}
	return verr.OrNil()
}
