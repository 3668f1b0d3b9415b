// Package dashboard serves the landing figures: pre-aggregated counters,
// the latest contracts and the open tasks of the caller's scope.
package dashboard

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rentaldesk/rentaldesk/internal/booking"
	"github.com/rentaldesk/rentaldesk/internal/platform/api"
	"github.com/rentaldesk/rentaldesk/internal/platform/database"
	"github.com/rentaldesk/rentaldesk/internal/task"
	"github.com/shopspring/decimal"
)

// Stats is one row of get_dashboard_stats or get_company_stats.
type Stats struct {
	Companies       int64           `json:"companies"`
	Cars            int64           `json:"cars"`
	AvailableCars   int64           `json:"available_cars"`
	Clients         int64           `json:"clients"`
	ActiveContracts int64           `json:"active_contracts"`
	OpenTasks       int64           `json:"open_tasks"`
	RevenueTotal    decimal.Decimal `json:"revenue_total"`
	RevenueMonth    decimal.Decimal `json:"revenue_month"`
}

type Summary struct {
	Stats           Stats              `json:"stats"`
	LatestContracts []booking.Contract `json:"latest_contracts"`
	OpenTasks       []task.Task        `json:"open_tasks"`
}

// StatsStore calls the statistics functions.
type StatsStore struct{}

// Stats reads platform-wide figures when companyID is nil and one
// company's otherwise.
func (StatsStore) Stats(ctx context.Context, q database.Querier, companyID *int64) (Stats, error) {
	const cols = `companies, cars, available_cars, clients, active_contracts, open_tasks, revenue_total, revenue_month`

	var row pgx.Row
	if companyID == nil {
		row = q.QueryRow(ctx, `SELECT `+cols+` FROM get_dashboard_stats()`)
	} else {
		row = q.QueryRow(ctx, `SELECT `+cols+` FROM get_company_stats($1)`, *companyID)
	}

	var s Stats
	if err := row.Scan(&s.Companies, &s.Cars, &s.AvailableCars, &s.Clients,
		&s.ActiveContracts, &s.OpenTasks, &s.RevenueTotal, &s.RevenueMonth); err != nil {
		return Stats{}, fmt.Errorf("reading stats: %w", err)
	}
	return s, nil
}

type statsReader interface {
	Stats(ctx context.Context, q database.Querier, companyID *int64) (Stats, error)
}

type contractReader interface {
	Latest(ctx context.Context, q database.Querier, rs api.Restriction, n int) ([]booking.Contract, error)
}

type taskReader interface {
	Open(ctx context.Context, q database.Querier, rs api.Restriction, n int) ([]task.Task, error)
}
