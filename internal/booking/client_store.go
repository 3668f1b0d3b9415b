package booking

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rentaldesk/rentaldesk/internal/mutation"
	"github.com/rentaldesk/rentaldesk/internal/platform/api"
	"github.com/rentaldesk/rentaldesk/internal/platform/database"
)

type ClientStore struct{}

const clientColumns = `id, company_id, user_id, full_name, phone, email, license_number, birth_date, created_at, updated_at`

func scanClient(row pgx.Row) (Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.CompanyID, &c.UserID, &c.FullName, &c.Phone, &c.Email,
		&c.LicenseNumber, &c.BirthDate, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (ClientStore) Get(ctx context.Context, q database.Querier, id int64) (Client, error) {
	c, err := scanClient(q.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id))
	if err != nil {
		return Client{}, mutation.RowError(err, ErrClientNotFound, id, "getting client")
	}
	return c, nil
}

func (ClientStore) Insert(ctx context.Context, q database.Querier, companyID *int64, in ClientInput) (Client, error) {
	if companyID == nil {
		return Client{}, api.NewValidationError("company_id", "is required")
	}
	c, err := scanClient(q.QueryRow(ctx,
		`INSERT INTO clients (company_id, user_id, full_name, phone, email, license_number, birth_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+clientColumns,
		*companyID, in.UserID, in.FullName, in.Phone, in.Email, in.LicenseNumber, in.BirthDate))
	if err != nil {
		return Client{}, fmt.Errorf("creating client: %w", err)
	}
	return c, nil
}

// Update leaves company_id and user_id as created.
func (ClientStore) Update(ctx context.Context, q database.Querier, id int64, in ClientInput) (Client, error) {
	c, err := scanClient(q.QueryRow(ctx,
		`UPDATE clients
		 SET full_name = $2, phone = $3, email = $4, license_number = $5, birth_date = $6, updated_at = now()
		 WHERE id = $1
		 RETURNING `+clientColumns,
		id, in.FullName, in.Phone, in.Email, in.LicenseNumber, in.BirthDate))
	if err != nil {
		return Client{}, mutation.RowError(err, ErrClientNotFound, id, "updating client")
	}
	return c, nil
}

func (ClientStore) Delete(ctx context.Context, q database.Querier, id int64) error {
	return deleteRow(ctx, q, "clients", id, ErrClientNotFound)
}

var clientList = api.ListSpec{
	From:    "clients",
	Columns: clientColumns,
	Sortable: map[string]string{
		"createdAt": "created_at",
		"fullName":  "full_name",
	},
	Filterable: map[string]string{
		"companyId": "company_id",
		"userId":    "user_id",
	},
	Search:       []string{"full_name", "phone", "email", "license_number"},
	DefaultSort:  "created_at",
	TenantColumn: "company_id",
	OwnerClause: func(ph string) string {
		return "user_id::text = " + ph
	},
}

func (ClientStore) List(ctx context.Context, q database.Querier, p api.ListParams, rs api.Restriction) ([]Client, int, error) {
	return api.Page(ctx, q, clientList, p, rs, scanClient)
}

func deleteRow(ctx context.Context, q database.Querier, table string, id int64, notFound error) error {
	tag, err := q.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting from %s: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w %d", notFound, id)
	}
	return nil
}
