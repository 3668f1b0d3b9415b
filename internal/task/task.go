// Package task tracks work items inside a company, optionally tied to a
// contract and assigned to a person.
package task

import (
	"fmt"
	"time"

	"github.com/rentaldesk/rentaldesk/internal/mutation"
	"github.com/rentaldesk/rentaldesk/internal/platform/api"
)

var ErrTaskNotFound = fmt.Errorf("%w: task", api.ErrNotFound)

const (
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
)

type Task struct {
	ID          int64      `json:"id"`
	CompanyID   int64      `json:"company_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	AssigneeID  *string    `json:"assignee_id"`
	ContractID  *int64     `json:"contract_id"`
	DueAt       *time.Time `json:"due_at"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (t Task) RecordID() int64 { return t.ID }

func (t Task) TenantID() *int64 {
	id := t.CompanyID
	return &id
}

// OwnerID is the assignee.
func (t Task) OwnerID() string {
	if t.AssigneeID == nil {
		return ""
	}
	return *t.AssigneeID
}

// Overdue reports whether an unfinished task is past its due time.
func (t Task) Overdue(now time.Time) bool {
	return t.Status != StatusDone && t.DueAt != nil && t.DueAt.Before(now)
}

type Input struct {
	CompanyID   *int64     `json:"company_id" validate:"omitempty,gt=0"`
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=4000"`
	AssigneeID  *string    `json:"assignee_id" validate:"omitempty,uuid"`
	ContractID  *int64     `json:"contract_id" validate:"omitempty,gt=0"`
	DueAt       *time.Time `json:"due_at"`
	Status      string     `json:"status" validate:"omitempty,oneof=todo in_progress done"`
}

func (in Input) RequestedCompanyID() *int64 { return in.CompanyID }

func (in Input) References() []mutation.Reference {
	return []mutation.Reference{{Field: "contract_id", Table: "contracts", ID: in.ContractID}}
}

func (in Input) status() string {
	if in.Status == "" {
		return StatusTodo
	}
	return in.Status
}
