package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rentaldesk/rentaldesk/internal/platform/api"
	"github.com/rentaldesk/rentaldesk/internal/platform/database"
	"github.com/rentaldesk/rentaldesk/internal/rbac"
)

// Store handles company rows.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

const companyColumns = `id, name, owner_id, phone, email, address, status, created_at, updated_at`

func scanCompany(row pgx.Row) (Company, error) {
	var c Company
	err := row.Scan(&c.ID, &c.Name, &c.Owner, &c.Phone, &c.Email, &c.Address, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *Store) Get(ctx context.Context, q database.Querier, id int64) (Company, error) {
	c, err := scanCompany(q.QueryRow(ctx,
		`SELECT `+companyColumns+` FROM companies WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Company{}, fmt.Errorf("%w %d", ErrCompanyNotFound, id)
		}
		return Company{}, fmt.Errorf("getting company: %w", err)
	}
	return c, nil
}

func errNotOwnerAccount() error {
	return api.NewValidationError("owner_id", "must be an owner account")
}

// Insert creates a company. The owner must hold the owner role.
func (s *Store) Insert(ctx context.Context, q database.Querier, _ *int64, in CompanyInput) (Company, error) {
	c, err := scanCompany(q.QueryRow(ctx,
		`INSERT INTO companies (name, owner_id, phone, email, address, status)
		 SELECT $1::text, p.id, $3::text, $4::text, $5::text, $6::text FROM profiles p
		 WHERE p.id = $2 AND p.role = 'owner'
		 RETURNING `+companyColumns,
		in.Name, in.OwnerID, in.Phone, in.Email, in.Address, in.status(),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Company{}, errNotOwnerAccount()
		}
		return Company{}, fmt.Errorf("creating company: %w", err)
	}
	return c, nil
}

// Update replaces a company. Only unnarrowed system scope moves a company
// to another owner or changes its status; other callers keep both as stored.
func (s *Store) Update(ctx context.Context, q database.Querier, id int64, in CompanyInput) (Company, error) {
	if scope, ok := rbac.ScopeFrom(ctx); !ok || scope.Kind != rbac.KindSystem {
		return s.updateDetails(ctx, q, id, in)
	}

	var ownerOK bool
	if err := q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM profiles WHERE id = $1 AND role = 'owner')`, in.OwnerID,
	).Scan(&ownerOK); err != nil {
		return Company{}, fmt.Errorf("checking owner: %w", err)
	}
	if !ownerOK {
		return Company{}, errNotOwnerAccount()
	}

	c, err := scanCompany(q.QueryRow(ctx,
		`UPDATE companies
		 SET name = $2, owner_id = $3, phone = $4, email = $5, address = $6, status = $7, updated_at = now()
		 WHERE id = $1
		 RETURNING `+companyColumns,
		id, in.Name, in.OwnerID, in.Phone, in.Email, in.Address, in.status(),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Company{}, fmt.Errorf("%w %d", ErrCompanyNotFound, id)
		}
		return Company{}, fmt.Errorf("updating company: %w", err)
	}
	return c, nil
}

func (s *Store) updateDetails(ctx context.Context, q database.Querier, id int64, in CompanyInput) (Company, error) {
	c, err := scanCompany(q.QueryRow(ctx,
		`UPDATE companies
		 SET name = $2, phone = $3, email = $4, address = $5, updated_at = now()
		 WHERE id = $1
		 RETURNING `+companyColumns,
		id, in.Name, in.Phone, in.Email, in.Address,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Company{}, fmt.Errorf("%w %d", ErrCompanyNotFound, id)
		}
		return Company{}, fmt.Errorf("updating company: %w", err)
	}
	return c, nil
}

func (s *Store) Delete(ctx context.Context, q database.Querier, id int64) error {
	tag, err := q.Exec(ctx, `DELETE FROM companies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting company: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w %d", ErrCompanyNotFound, id)
	}
	return nil
}

var companyList = api.ListSpec{
	From:    "companies",
	Columns: companyColumns,
	Sortable: map[string]string{
		"createdAt": "created_at",
		"name":      "name",
	},
	Filterable: map[string]string{
		"status":  "status",
		"ownerId": "owner_id",
	},
	Search:       []string{"name", "email", "phone"},
	DefaultSort:  "created_at",
	TenantColumn: "id",
}

func (s *Store) List(ctx context.Context, q database.Querier, p api.ListParams, rs api.Restriction) ([]Company, int, error) {
	return api.Page(ctx, q, companyList, p, rs, scanCompany)
}
