// Package booking covers a company's clients, their rental contracts and
// the payments recorded against them.
package booking

import (
	"fmt"
	"time"

	"github.com/rentaldesk/rentaldesk/internal/mutation"
	"github.com/rentaldesk/rentaldesk/internal/platform/api"
	"github.com/shopspring/decimal"
)

var (
	ErrClientNotFound   = fmt.Errorf("%w: client", api.ErrNotFound)
	ErrContractNotFound = fmt.Errorf("%w: contract", api.ErrNotFound)
	ErrPaymentNotFound  = fmt.Errorf("%w: payment", api.ErrNotFound)
)

const (
	ContractDraft     = "draft"
	ContractActive    = "active"
	ContractCompleted = "completed"
	ContractCancelled = "cancelled"
)

// Client is a renter known to one company. UserID links the renter's own
// account, which may then read and edit this row.
type Client struct {
	ID            int64     `json:"id"`
	CompanyID     int64     `json:"company_id"`
	UserID        *string   `json:"user_id"`
	FullName      string    `json:"full_name"`
	Phone         string    `json:"phone"`
	Email         string    `json:"email"`
	LicenseNumber string    `json:"license_number"`
	BirthDate     *Date     `json:"birth_date"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (c Client) RecordID() int64 { return c.ID }

func (c Client) TenantID() *int64 {
	id := c.CompanyID
	return &id
}

func (c Client) OwnerID() string {
	if c.UserID == nil {
		return ""
	}
	return *c.UserID
}

// ClientInput replaces a client. UserID is only read on create.
type ClientInput struct {
	CompanyID     *int64  `json:"company_id" validate:"omitempty,gt=0"`
	UserID        *string `json:"user_id" validate:"omitempty,uuid"`
	FullName      string  `json:"full_name" validate:"required,max=200"`
	Phone         string  `json:"phone" validate:"required,max=40"`
	Email         string  `json:"email" validate:"omitempty,email"`
	LicenseNumber string  `json:"license_number" validate:"max=60"`
	BirthDate     *Date   `json:"birth_date"`
}

func (in ClientInput) RequestedCompanyID() *int64 { return in.CompanyID }

func (in ClientInput) Validate() error {
	if in.BirthDate != nil && in.BirthDate.After(time.Now()) {
		return api.NewValidationError("birth_date", "must be in the past")
	}
	return nil
}

type Contract struct {
	ID               int64           `json:"id"`
	CompanyID        int64           `json:"company_id"`
	CarID            int64           `json:"car_id"`
	ClientID         int64           `json:"client_id"`
	PickupDistrictID *int64          `json:"pickup_district_id"`
	StartDate        Date            `json:"start_date"`
	EndDate          Date            `json:"end_date"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	Deposit          decimal.Decimal `json:"deposit"`
	Status           string          `json:"status"`
	Notes            string          `json:"notes"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`

	clientUserID *string
}

func (c Contract) RecordID() int64 { return c.ID }

func (c Contract) TenantID() *int64 {
	id := c.CompanyID
	return &id
}

// OwnerID is the renter's account, through the client.
func (c Contract) OwnerID() string {
	if c.clientUserID == nil {
		return ""
	}
	return *c.clientUserID
}

type ContractInput struct {
	CompanyID        *int64          `json:"company_id" validate:"omitempty,gt=0"`
	CarID            int64           `json:"car_id" validate:"required,gt=0"`
	ClientID         int64           `json:"client_id" validate:"required,gt=0"`
	PickupDistrictID *int64          `json:"pickup_district_id" validate:"omitempty,gt=0"`
	StartDate        Date            `json:"start_date"`
	EndDate          Date            `json:"end_date"`
	TotalAmount      decimal.Decimal `json:"total_amount" validate:"gte=0"`
	Deposit          decimal.Decimal `json:"deposit" validate:"gte=0"`
	Status           string          `json:"status" validate:"omitempty,oneof=draft active completed cancelled"`
	Notes            string          `json:"notes" validate:"max=2000"`
}

func (in ContractInput) RequestedCompanyID() *int64 { return in.CompanyID }

func (in ContractInput) Validate() error {
	verr := &api.ValidationError{}
	if in.StartDate.IsZero() {
		verr.Add("start_date", "is required")
	}
	if in.EndDate.IsZero() {
		verr.Add("end_date", "is required")
	}
	if !in.StartDate.IsZero() && !in.EndDate.IsZero() && in.EndDate.Before(in.StartDate.Time) {
		verr.Add("end_date", "must not be before start_date")
	}
	return verr.OrNil()
}

func (in ContractInput) References() []mutation.Reference {
	return []mutation.Reference{
		mutation.Ref("car_id", "cars", in.CarID),
		mutation.Ref("client_id", "clients", in.ClientID),
		{Field: "pickup_district_id", Table: "districts", ID: in.PickupDistrictID},
	}
}

func (in ContractInput) status() string {
	if in.Status == "" {
		return ContractDraft
	}
	return in.Status
}

type Payment struct {
	ID         int64           `json:"id"`
	CompanyID  int64           `json:"company_id"`
	ContractID int64           `json:"contract_id"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method"`
	PaidAt     time.Time       `json:"paid_at"`
	Note       string          `json:"note"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`

	clientUserID *string
}

func (p Payment) RecordID() int64 { return p.ID }

func (p Payment) TenantID() *int64 {
	id := p.CompanyID
	return &id
}

func (p Payment) OwnerID() string {
	if p.clientUserID == nil {
		return ""
	}
	return *p.clientUserID
}

type PaymentInput struct {
	CompanyID  *int64          `json:"company_id" validate:"omitempty,gt=0"`
	ContractID int64           `json:"contract_id" validate:"required,gt=0"`
	Amount     decimal.Decimal `json:"amount" validate:"gt=0"`
	Method     string          `json:"method" validate:"required,oneof=cash card transfer"`
	PaidAt     *time.Time      `json:"paid_at"`
	Note       string          `json:"note" validate:"max=500"`
}

func (in PaymentInput) RequestedCompanyID() *int64 { return in.CompanyID }

func (in PaymentInput) References() []mutation.Reference {
	return []mutation.Reference{mutation.Ref("contract_id", "contracts", in.ContractID)}
}

func (in PaymentInput) paidAt() time.Time {
	if in.PaidAt == nil {
		return time.Now().UTC()
	}
	return *in.PaidAt
}
