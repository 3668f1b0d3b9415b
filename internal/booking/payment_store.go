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

type PaymentStore struct{}

const paymentColumns = `p.id, p.company_id, p.contract_id, p.amount, p.method, p.paid_at, p.note,
	p.created_at, p.updated_at, cl.user_id`

const paymentFrom = `payments p
	JOIN contracts ct ON ct.id = p.contract_id
	JOIN clients cl ON cl.id = ct.client_id`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.CompanyID, &p.ContractID, &p.Amount, &p.Method, &p.PaidAt, &p.Note,
		&p.CreatedAt, &p.UpdatedAt, &p.clientUserID)
	return p, err
}

func (PaymentStore) Get(ctx context.Context, q database.Querier, id int64) (Payment, error) {
	p, err := scanPayment(q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM `+paymentFrom+` WHERE p.id = $1`, id))
	if err != nil {
		return Payment{}, mutation.RowError(err, ErrPaymentNotFound, id, "getting payment")
	}
	return p, nil
}

func errForeignContract() error {
	return api.NewValidationError("contract_id", "contract must belong to the payment's company")
}

func (s PaymentStore) Insert(ctx context.Context, q database.Querier, companyID *int64, in PaymentInput) (Payment, error) {
	if companyID == nil {
		return Payment{}, api.NewValidationError("company_id", "is required")
	}
	var id int64
	err := q.QueryRow(ctx,
		`INSERT INTO payments (company_id, contract_id, amount, method, paid_at, note)
		 SELECT ct.company_id, ct.id, $3::numeric, $4::text, $5::timestamptz, $6::text
		 FROM contracts ct
		 WHERE ct.id = $2 AND ct.company_id = $1
		 RETURNING id`,
		*companyID, in.ContractID, in.Amount, in.Method, in.paidAt(), in.Note,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, errForeignContract()
		}
		return Payment{}, fmt.Errorf("recording payment: %w", err)
	}
	return s.Get(ctx, q, id)
}

func (s PaymentStore) Update(ctx context.Context, q database.Querier, id int64, in PaymentInput) (Payment, error) {
	tag, err := q.Exec(ctx,
		`UPDATE payments p
		 SET contract_id = ct.id, amount = $3, method = $4, paid_at = $5, note = $6, updated_at = now()
		 FROM contracts ct
		 WHERE p.id = $1 AND ct.id = $2 AND ct.company_id = p.company_id`,
		id, in.ContractID, in.Amount, in.Method, in.paidAt(), in.Note,
	)
	if err != nil {
		return Payment{}, fmt.Errorf("updating payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.Get(ctx, q, id); getErr != nil {
			return Payment{}, getErr
		}
		return Payment{}, errForeignContract()
	}
	return s.Get(ctx, q, id)
}

func (PaymentStore) Delete(ctx context.Context, q database.Querier, id int64) error {
	return deleteRow(ctx, q, "payments", id, ErrPaymentNotFound)
}

var paymentList = api.ListSpec{
	From:    paymentFrom,
	Columns: paymentColumns,
	Sortable: map[string]string{
		"createdAt": "p.created_at",
		"paidAt":    "p.paid_at",
		"amount":    "p.amount",
	},
	Filterable: map[string]string{
		"method":     "p.method",
		"contractId": "p.contract_id",
		"companyId":  "p.company_id",
	},
	Search:       []string{"p.note", "cl.full_name"},
	DefaultSort:  "p.paid_at",
	TenantColumn: "p.company_id",
	OwnerClause: func(ph string) string {
		return "cl.user_id::text = " + ph
	},
}

func (PaymentStore) List(ctx context.Context, q database.Querier, p api.ListParams, rs api.Restriction) ([]Payment, int, error) {
	return api.Page(ctx, q, paymentList, p, rs, scanPayment)
}
