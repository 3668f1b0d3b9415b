package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rentaldesk/rentaldesk/internal/mutation"
	"github.com/rentaldesk/rentaldesk/internal/platform/api"
	"github.com/rentaldesk/rentaldesk/internal/platform/database"
)

type ContractStore struct{}

const contractColumns = `ct.id, ct.company_id, ct.car_id, ct.client_id, ct.pickup_district_id,
	ct.start_date, ct.end_date, ct.total_amount, ct.deposit, ct.status, ct.notes,
	ct.created_at, ct.updated_at, cl.user_id`

const contractFrom = `contracts ct JOIN clients cl ON cl.id = ct.client_id`

func scanContract(row pgx.Row) (Contract, error) {
	var c Contract
	err := row.Scan(&c.ID, &c.CompanyID, &c.CarID, &c.ClientID, &c.PickupDistrictID,
		&c.StartDate, &c.EndDate, &c.TotalAmount, &c.Deposit, &c.Status, &c.Notes,
		&c.CreatedAt, &c.UpdatedAt, &c.clientUserID)
	return c, err
}

func (ContractStore) Get(ctx context.Context, q database.Querier, id int64) (Contract, error) {
	c, err := scanContract(q.QueryRow(ctx, `SELECT `+contractColumns+` FROM `+contractFrom+` WHERE ct.id = $1`, id))
	if err != nil {
		return Contract{}, mutation.RowError(err, ErrContractNotFound, id, "getting contract")
	}
	return c, nil
}

func errForeignParty() error {
	return api.NewValidationError("car_id", "car and client must belong to the contract's company")
}

// Insert books a car for a client. Both must belong to companyID; the
// exclusion constraint rejects overlapping open bookings of one car.
func (s ContractStore) Insert(ctx context.Context, q database.Querier, companyID *int64, in ContractInput) (Contract, error) {
	if companyID == nil {
		return Contract{}, api.NewValidationError("company_id", "is required")
	}
	var id int64
	err := q.QueryRow(ctx,
		`INSERT INTO contracts (company_id, car_id, client_id, pickup_district_id, start_date, end_date,
		                        total_amount, deposit, status, notes)
		 SELECT $1::bigint, car.id, cl.id, $4::bigint, $5::date, $6::date, $7::numeric, $8::numeric, $9::text, $10::text
		 FROM cars car, clients cl
		 WHERE car.id = $2 AND cl.id = $3 AND car.company_id = $1 AND cl.company_id = $1
		 RETURNING id`,
		*companyID, in.CarID, in.ClientID, in.PickupDistrictID, in.StartDate, in.EndDate,
		in.TotalAmount, in.Deposit, in.status(), in.Notes,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contract{}, errForeignParty()
		}
		return Contract{}, fmt.Errorf("creating contract: %w", err)
	}
	return s.Get(ctx, q, id)
}

func (s ContractStore) Update(ctx context.Context, q database.Querier, id int64, in ContractInput) (Contract, error) {
	tag, err := q.Exec(ctx,
		`UPDATE contracts ct
		 SET car_id = car.id, client_id = cl.id, pickup_district_id = $4, start_date = $5, end_date = $6,
		     total_amount = $7, deposit = $8, status = $9, notes = $10, updated_at = now()
		 FROM cars car, clients cl
		 WHERE ct.id = $1 AND car.id = $2 AND cl.id = $3
		   AND car.company_id = ct.company_id AND cl.company_id = ct.company_id`,
		id, in.CarID, in.ClientID, in.PickupDistrictID, in.StartDate, in.EndDate,
		in.TotalAmount, in.Deposit, in.status(), in.Notes,
	)
	if err != nil {
		return Contract{}, fmt.Errorf("updating contract: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.Get(ctx, q, id); getErr != nil {
			return Contract{}, getErr
		}
		return Contract{}, errForeignParty()
	}
	return s.Get(ctx, q, id)
}

func (ContractStore) Delete(ctx context.Context, q database.Querier, id int64) error {
	return deleteRow(ctx, q, "contracts", id, ErrContractNotFound)
}

var contractList = api.ListSpec{
	From:    contractFrom,
	Columns: contractColumns,
	Sortable: map[string]string{
		"createdAt":   "ct.created_at",
		"startDate":   "ct.start_date",
		"endDate":     "ct.end_date",
		"totalAmount": "ct.total_amount",
	},
	Filterable: map[string]string{
		"status":    "ct.status",
		"carId":     "ct.car_id",
		"clientId":  "ct.client_id",
		"companyId": "ct.company_id",
	},
	Search:       []string{"ct.notes", "cl.full_name", "cl.phone"},
	DefaultSort:  "ct.created_at",
	TenantColumn: "ct.company_id",
	OwnerClause: func(ph string) string {
		return "cl.user_id::text = " + ph
	},
}

func (ContractStore) List(ctx context.Context, q database.Querier, p api.ListParams, rs api.Restriction) ([]Contract, int, error) {
	return api.Page(ctx, q, contractList, p, rs, scanContract)
}

// Latest returns the most recent contracts within rs, for the dashboard.
func (ContractStore) Latest(ctx context.Context, q database.Querier, rs api.Restriction, n int) ([]Contract, error) {
	items, _, err := api.Page(ctx, q, contractList, api.ListParams{Page: 1, PageSize: n, SortOrder: "desc"}, rs, scanContract)
	return items, err
}
