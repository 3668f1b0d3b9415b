package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rentaldesk/rentaldesk/internal/platform/api"
	"github.com/rentaldesk/rentaldesk/internal/platform/database"
)

var ErrEntryNotFound = fmt.Errorf("%w: audit log entry", api.ErrNotFound)

// Store handles audit_logs persistence. The table is outside row
// security; callers apply the tenant restriction.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

const entryColumns = `id, user_id, role, company_id, entity_type, entity_id, action,
	before_state, after_state, ip, user_agent, created_at`

const insertColumns = "(user_id, role, company_id, entity_type, entity_id, action, before_state, after_state, ip, user_agent)"

func entryArgs(e Entry) []any {
	return []any{
		e.UserID, e.Role, e.CompanyID, e.EntityType, e.EntityID, string(e.Action),
		nullableJSON(e.BeforeState), nullableJSON(e.AfterState), e.IP, e.UserAgent,
	}
}

func nullableJSON(raw []byte) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

// Insert writes one entry.
func (s *Store) Insert(ctx context.Context, db database.Querier, e Entry) error {
	_, err := db.Exec(ctx,
		"INSERT INTO audit_logs "+insertColumns+" VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)",
		entryArgs(e)...,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// InsertBatch writes entries in one multi-row statement.
func (s *Store) InsertBatch(ctx context.Context, db database.Querier, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	sql, args := buildBatchInsert(entries)
	if _, err := db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("inserting audit entries: %w", err)
	}
	return nil
}

func buildBatchInsert(entries []Entry) (string, []any) {
	const width = 10
	placeholders := make([]string, 0, len(entries))
	args := make([]any, 0, len(entries)*width)

	for i, e := range entries {
		ph := make([]string, width)
		for j := range ph {
			ph[j] = fmt.Sprintf("$%d", i*width+j+1)
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ", ")+")")
		args = append(args, entryArgs(e)...)
	}

	return "INSERT INTO audit_logs " + insertColumns + " VALUES " + strings.Join(placeholders, ", "), args
}

var entryList = api.ListSpec{
	From:    "audit_logs",
	Columns: entryColumns,
	Sortable: map[string]string{
		"createdAt":  "created_at",
		"action":     "action",
		"entityType": "entity_type",
	},
	Filterable: map[string]string{
		"entityType": "entity_type",
		"entityId":   "entity_id",
		"action":     "action",
		"userId":     "user_id",
		"role":       "role",
		"companyId":  "company_id",
	},
	Search:       []string{"entity_type", "entity_id", "ip"},
	DefaultSort:  "created_at",
	TenantColumn: "company_id",
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	var action string
	var before, after []byte
	err := row.Scan(&e.ID, &e.UserID, &e.Role, &e.CompanyID, &e.EntityType, &e.EntityID, &action,
		&before, &after, &e.IP, &e.UserAgent, &e.CreatedAt)
	if err != nil {
		return Entry{}, err
	}
	e.Action = Action(action)
	e.BeforeState = before
	e.AfterState = after
	return e, nil
}

// List returns one page of entries within companyID (all when nil).
func (s *Store) List(ctx context.Context, db database.Querier, p api.ListParams, companyID *int64) ([]Entry, int, error) {
	return api.Page(ctx, db, entryList, p, api.Restriction{CompanyID: companyID}, scanEntry)
}

// Get returns entry id if it lies within companyID (any when nil).
func (s *Store) Get(ctx context.Context, db database.Querier, id int64, companyID *int64) (Entry, error) {
	e, err := scanEntry(db.QueryRow(ctx,
		"SELECT "+entryColumns+" FROM audit_logs WHERE id = $1 AND ($2::bigint IS NULL OR company_id = $2)",
		id, companyID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, fmt.Errorf("getting audit entry: %w", err)
	}
	return e, nil
}

// Clear deletes every entry and returns how many were removed.
func (s *Store) Clear(ctx context.Context, db database.Querier) (int64, error) {
	tag, err := db.Exec(ctx, "DELETE FROM audit_logs")
	if err != nil {
		return 0, fmt.Errorf("clearing audit log: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DirectSink writes each entry synchronously.
type DirectSink struct {
	store *Store
	db    database.Querier
}

func NewDirectSink(store *Store, db database.Querier) *DirectSink {
	return &DirectSink{store: store, db: db}
}

func (s *DirectSink) Write(ctx context.Context, e Entry) error {
	return s.store.Insert(ctx, s.db, e)
}
