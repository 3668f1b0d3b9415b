package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rentaldesk/rentaldesk/internal/platform/api"
	"github.com/rentaldesk/rentaldesk/internal/platform/database"
)

// ManagerStore handles company_managers rows.
type ManagerStore struct{}

func NewManagerStore() *ManagerStore {
	return &ManagerStore{}
}

const managerColumns = `m.id, m.company_id, m.user_id, p.full_name, u.email, m.active, m.created_at, m.updated_at`

const managerFrom = `company_managers m
	JOIN profiles p ON p.id = m.user_id
	JOIN auth_users u ON u.id = m.user_id`

func scanManager(row pgx.Row) (Manager, error) {
	var m Manager
	err := row.Scan(&m.ID, &m.CompanyID, &m.UserID, &m.FullName, &m.Email, &m.Active, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

func (s *ManagerStore) Get(ctx context.Context, q database.Querier, id int64) (Manager, error) {
	m, err := scanManager(q.QueryRow(ctx,
		`SELECT `+managerColumns+` FROM `+managerFrom+` WHERE m.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Manager{}, fmt.Errorf("%w %d", ErrManagerNotFound, id)
		}
		return Manager{}, fmt.Errorf("getting manager: %w", err)
	}
	return m, nil
}

func errNotManagerAccount() error {
	return api.NewValidationError("user_id", "must be a manager account")
}

// Insert assigns a manager account to companyID.
func (s *ManagerStore) Insert(ctx context.Context, q database.Querier, companyID *int64, in ManagerInput) (Manager, error) {
	if companyID == nil {
		return Manager{}, api.NewValidationError("company_id", "is required")
	}
	var id int64
	err := q.QueryRow(ctx,
		`INSERT INTO company_managers (company_id, user_id, active)
		 SELECT $1::bigint, p.id, $3::boolean FROM profiles p
		 WHERE p.id = $2 AND p.role = 'manager'
		 RETURNING id`,
		*companyID, in.UserID, in.active(),
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Manager{}, errNotManagerAccount()
		}
		return Manager{}, fmt.Errorf("assigning manager: %w", err)
	}
	return s.Get(ctx, q, id)
}

func (s *ManagerStore) Update(ctx context.Context, q database.Querier, id int64, in ManagerInput) (Manager, error) {
	tag, err := q.Exec(ctx,
		`UPDATE company_managers SET user_id = p.id, active = $3, updated_at = now()
		 FROM profiles p
		 WHERE company_managers.id = $1 AND p.id = $2 AND p.role = 'manager'`,
		id, in.UserID, in.active(),
	)
	if err != nil {
		return Manager{}, fmt.Errorf("updating manager: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the row vanished or the account is not a manager.
		if _, getErr := s.Get(ctx, q, id); getErr != nil {
			return Manager{}, getErr
		}
		return Manager{}, errNotManagerAccount()
	}
	return s.Get(ctx, q, id)
}

func (s *ManagerStore) Delete(ctx context.Context, q database.Querier, id int64) error {
	tag, err := q.Exec(ctx, `DELETE FROM company_managers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("removing manager: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w %d", ErrManagerNotFound, id)
	}
	return nil
}

var managerList = api.ListSpec{
	From:    managerFrom,
	Columns: managerColumns,
	Sortable: map[string]string{
		"createdAt": "m.created_at",
		"fullName":  "p.full_name",
	},
	Filterable: map[string]string{
		"active":    "m.active",
		"companyId": "m.company_id",
	},
	Search:       []string{"p.full_name", "u.email"},
	DefaultSort:  "m.created_at",
	TenantColumn: "m.company_id",
	OwnerClause: func(ph string) string {
		return "m.user_id::text = " + ph
	},
}

func (s *ManagerStore) List(ctx context.Context, q database.Querier, p api.ListParams, rs api.Restriction) ([]Manager, int, error) {
	return api.Page(ctx, q, managerList, p, rs, scanManager)
}

// Assign links a freshly created manager account to companyID. Account
// creation uses it as a compensated step.
func (s *ManagerStore) Assign(ctx context.Context, q database.Querier, companyID int64, userID string) error {
	_, err := q.Exec(ctx,
		`INSERT INTO company_managers (company_id, user_id) VALUES ($1, $2)`,
		companyID, userID,
	)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return api.NewValidationError("company_id", "company does not exist")
		}
		return fmt.Errorf("assigning manager: %w", err)
	}
	return nil
}

// Unassign removes every assignment of userID.
func (s *ManagerStore) Unassign(ctx context.Context, q database.Querier, userID string) error {
	if _, err := q.Exec(ctx, `DELETE FROM company_managers WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("unassigning manager: %w", err)
	}
	return nil
}
