// Package tenant manages companies, the tenants every business record
// belongs to, and the owner and manager references scope resolution
// follows.
package tenant

import (
	"fmt"
	"time"

	"github.com/rentaldesk/rentaldesk/internal/platform/api"
)

var (
	ErrCompanyNotFound = fmt.Errorf("%w: company", api.ErrNotFound)
	ErrManagerNotFound = fmt.Errorf("%w: manager assignment", api.ErrNotFound)
)

const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// Company is a tenant.
type Company struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Owner     string    `json:"owner_id"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	Address   string    `json:"address"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c Company) RecordID() int64 { return c.ID }

// TenantID is the company itself.
func (c Company) TenantID() *int64 {
	id := c.ID
	return &id
}

func (c Company) OwnerID() string { return "" }

// CompanyInput is the full-replacement payload of a company.
type CompanyInput struct {
	Name    string `json:"name" validate:"required,max=200"`
	OwnerID string `json:"owner_id" validate:"required,uuid"`
	Phone   string `json:"phone" validate:"max=40"`
	Email   string `json:"email" validate:"omitempty,email"`
	Address string `json:"address" validate:"max=500"`
	Status  string `json:"status" validate:"omitempty,oneof=active suspended"`
}

func (in CompanyInput) status() string {
	if in.Status == "" {
		return StatusActive
	}
	return in.Status
}

// Manager is an assignment of a manager account to a company.
type Manager struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"company_id"`
	UserID    string    `json:"user_id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (m Manager) RecordID() int64 { return m.ID }

func (m Manager) TenantID() *int64 {
	id := m.CompanyID
	return &id
}

func (m Manager) OwnerID() string { return m.UserID }

// ManagerInput assigns a manager account. CompanyID is honored only in
// unnarrowed system scope.
type ManagerInput struct {
	CompanyID *int64 `json:"company_id" validate:"omitempty,gt=0"`
	UserID    string `json:"user_id" validate:"required,uuid"`
	Active    *bool  `json:"active"`
}

func (in ManagerInput) RequestedCompanyID() *int64 { return in.CompanyID }

func (in ManagerInput) active() bool {
	return in.Active == nil || *in.Active
}
