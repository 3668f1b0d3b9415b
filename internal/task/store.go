package task

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rentaldesk/rentaldesk/internal/mutation"
	"github.com/rentaldesk/rentaldesk/internal/platform/api"
	"github.com/rentaldesk/rentaldesk/internal/platform/database"
)

type Store struct{}

const columns = `id, company_id, title, description, assignee_id, contract_id, due_at, status, created_at, updated_at`

func scanTask(row pgx.Row) (Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.CompanyID, &t.Title, &t.Description, &t.AssigneeID,
		&t.ContractID, &t.DueAt, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func errForeignContract() error {
	return api.NewValidationError("contract_id", "contract must belong to the task's company")
}

func (Store) Get(ctx context.Context, q database.Querier, id int64) (Task, error) {
	t, err := scanTask(q.QueryRow(ctx, `SELECT `+columns+` FROM tasks WHERE id = $1`, id))
	if err != nil {
		return Task{}, mutation.RowError(err, ErrTaskNotFound, id, "getting task")
	}
	return t, nil
}

// Insert creates a task; a linked contract must belong to companyID.
func (Store) Insert(ctx context.Context, q database.Querier, companyID *int64, in Input) (Task, error) {
	if companyID == nil {
		return Task{}, api.NewValidationError("company_id", "is required")
	}
	t, err := scanTask(q.QueryRow(ctx,
		`INSERT INTO tasks (company_id, title, description, assignee_id, contract_id, due_at, status)
		 SELECT $1::bigint, $2::text, $3::text, $4::uuid, $5::bigint, $6::timestamptz, $7::text
		 WHERE $5::bigint IS NULL
		    OR EXISTS (SELECT 1 FROM contracts WHERE id = $5::bigint AND company_id = $1::bigint)
		 RETURNING `+columns,
		*companyID, in.Title, in.Description, in.AssigneeID, in.ContractID, in.DueAt, in.status()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, errForeignContract()
		}
		return Task{}, fmt.Errorf("creating task: %w", err)
	}
	return t, nil
}

func (s Store) Update(ctx context.Context, q database.Querier, id int64, in Input) (Task, error) {
	t, err := scanTask(q.QueryRow(ctx,
		`UPDATE tasks t
		 SET title = $2, description = $3, assignee_id = $4, contract_id = $5, due_at = $6,
		     status = $7, updated_at = now()
		 WHERE t.id = $1
		   AND ($5::bigint IS NULL
		        OR EXISTS (SELECT 1 FROM contracts c WHERE c.id = $5::bigint AND c.company_id = t.company_id))
		 RETURNING `+columns,
		id, in.Title, in.Description, in.AssigneeID, in.ContractID, in.DueAt, in.status()))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Task{}, fmt.Errorf("updating task: %w", err)
	}
	if _, getErr := s.Get(ctx, q, id); getErr != nil {
		return Task{}, getErr
	}
	return Task{}, errForeignContract()
}

func (Store) Delete(ctx context.Context, q database.Querier, id int64) error {
	tag, err := q.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w %d", ErrTaskNotFound, id)
	}
	return nil
}

var list = api.ListSpec{
	From:    "tasks",
	Columns: columns,
	Sortable: map[string]string{
		"createdAt": "created_at",
		"dueAt":     "due_at",
		"title":     "title",
	},
	Filterable: map[string]string{
		"status":     "status",
		"assigneeId": "assignee_id",
		"contractId": "contract_id",
		"companyId":  "company_id",
	},
	Search:       []string{"title", "description"},
	DefaultSort:  "created_at",
	TenantColumn: "company_id",
	OwnerClause: func(ph string) string {
		return "assignee_id::text = " + ph
	},
}

func (Store) List(ctx context.Context, q database.Querier, p api.ListParams, rs api.Restriction) ([]Task, int, error) {
	return api.Page(ctx, q, list, p, rs, scanTask)
}

// Open returns up to n unfinished tasks within rs, soonest due first.
func (Store) Open(ctx context.Context, q database.Querier, rs api.Restriction, n int) ([]Task, error) {
	rs.Extra = append(append([]api.Predicate(nil), rs.Extra...), api.Predicate{SQL: "status <> ?", Arg: StatusDone})
	spec := list
	spec.DefaultSort = "due_at ASC NULLS LAST, id"
	items, _, err := api.Page(ctx, q, spec, api.ListParams{Page: 1, PageSize: n, SortOrder: "asc"}, rs, scanTask)
	return items, err
}
