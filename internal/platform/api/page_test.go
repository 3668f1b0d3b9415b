package api

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countRow struct {
	n   int
	err error
}

func (r countRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*int)) = r.n
	return nil
}

type plateRows struct {
	plates []string
	i      int
	closed bool
}

func (r *plateRows) Close()                                       { r.closed = true }
func (r *plateRows) Err() error                                   { return nil }
func (r *plateRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *plateRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *plateRows) Values() ([]any, error)                       { return nil, nil }
func (r *plateRows) RawValues() [][]byte                          { return nil }
func (r *plateRows) Conn() *pgx.Conn                              { return nil }

func (r *plateRows) Next() bool {
	r.i++
	return r.i <= len(r.plates)
}

func (r *plateRows) Scan(dest ...any) error {
	*(dest[0].(*string)) = r.plates[r.i-1]
	return nil
}

type pageQuerier struct {
	count countRow
	rows  *plateRows
	sql   []string
}

func (q *pageQuerier) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	q.sql = append(q.sql, sql)
	return q.rows, nil
}

func (q *pageQuerier) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	q.sql = append(q.sql, sql)
	return q.count
}

func (q *pageQuerier) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("unexpected exec")
}

func scanPlate(row pgx.Row) (string, error) {
	var s string
	err := row.Scan(&s)
	return s, err
}

func TestPage(t *testing.T) {
	q := &pageQuerier{count: countRow{n: 12}, rows: &plateRows{plates: []string{"AB-1", "AB-2"}}}

	items, total, err := Page(context.Background(), q, carSpec, ListParams{Page: 2, PageSize: 2}, Restriction{}, scanPlate)
	require.NoError(t, err)
	assert.Equal(t, []string{"AB-1", "AB-2"}, items)
	assert.Equal(t, 12, total)
	assert.True(t, q.rows.closed)

	require.Len(t, q.sql, 2)
	assert.Equal(t, "SELECT count(*) FROM cars", q.sql[0])
	assert.True(t, strings.HasPrefix(q.sql[1], "SELECT id, plate_number FROM cars"), q.sql[1])
}

func TestPage_EmptyIsNotNil(t *testing.T) {
	q := &pageQuerier{rows: &plateRows{}}
	items, total, err := Page(context.Background(), q, carSpec, ListParams{Page: 1, PageSize: 20}, Restriction{}, scanPlate)
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Zero(t, total)
}

func TestPage_CountFailureNamesTable(t *testing.T) {
	q := &pageQuerier{count: countRow{err: errors.New("conn reset")}, rows: &plateRows{}}
	_, _, err := Page(context.Background(), q, carSpec, ListParams{Page: 1, PageSize: 20}, Restriction{}, scanPlate)
	assert.ErrorContains(t, err, "counting cars")
}
