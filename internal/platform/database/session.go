package database

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier abstracts pgx query methods so stores work against pools,
// dedicated connections and transactions alike.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Session is the row-level security context of one request.
type Session struct {
	Kind      string // "system", "tenant" or "self"
	CompanyID *int64
	UserID    string
}

// Runner executes fn on a connection prepared for a Session.
type Runner interface {
	Run(ctx context.Context, s Session, fn func(ctx context.Context, q Querier) error) error
}

// PoolRunner is the Runner backed by a pgx pool.
type PoolRunner struct {
	pool *pgxpool.Pool
}

func NewPoolRunner(pool *pgxpool.Pool) *PoolRunner {
	return &PoolRunner{pool: pool}
}

const (
	settingScopeKind = "app.scope_kind"
	settingCompanyID = "app.company_id"
	settingUserID    = "app.user_id"
)

// Run acquires a dedicated connection, sets the session variables the RLS
// policies read, then calls fn. The variables are cleared before the
// connection returns to the pool so a later borrower never inherits them.
func (r *PoolRunner) Run(ctx context.Context, s Session, fn func(ctx context.Context, q Querier) error) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer func() {
		// Background context: the request context may already be canceled.
		_, resetErr := conn.Exec(context.Background(),
			`SELECT set_config($1, '', false), set_config($2, '', false), set_config($3, '', false)`,
			settingScopeKind, settingCompanyID, settingUserID)
		if resetErr != nil {
			// A connection with stale settings must not be reused.
			_ = conn.Conn().Close(context.Background())
		}
		conn.Release()
	}()

	company := ""
	if s.CompanyID != nil {
		company = strconv.FormatInt(*s.CompanyID, 10)
	}
	_, err = conn.Exec(ctx,
		`SELECT set_config($1, $2, false), set_config($3, $4, false), set_config($5, $6, false)`,
		settingScopeKind, s.Kind, settingCompanyID, company, settingUserID, s.UserID)
	if err != nil {
		return fmt.Errorf("setting session context: %w", err)
	}

	return fn(ctx, conn)
}
