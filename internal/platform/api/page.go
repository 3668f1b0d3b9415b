package api

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rentaldesk/rentaldesk/internal/platform/database"
)

// Page runs a built list query and its count on q.
func Page[T any](ctx context.Context, q database.Querier, spec ListSpec, p ListParams, rs Restriction, scan func(pgx.Row) (T, error)) ([]T, int, error) {
	lq, err := BuildList(spec, p, rs)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := q.QueryRow(ctx, lq.CountSQL, lq.CountArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting %s: %w", spec.From, err)
	}

	rows, err := q.Query(ctx, lq.SQL, lq.Args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing %s: %w", spec.From, err)
	}
	defer rows.Close()

	items := []T{}
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning %s: %w", spec.From, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating %s: %w", spec.From, err)
	}
	return items, total, nil
}
