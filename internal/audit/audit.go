package audit

import (
	"context"
	"encoding/json"
	"time"
)

// Action is the verb recorded on an entry.
type Action string

const (
	ActionCreate     Action = "create"
	ActionUpdate     Action = "update"
	ActionDelete     Action = "delete"
	ActionView       Action = "view"
	ActionLogin      Action = "login"
	ActionRoleChange Action = "role_change"
	ActionClear      Action = "clear"
)

// Event is what callers hand to a Logger after a successful operation.
type Event struct {
	EntityType string
	EntityID   string
	Action     Action
	Before     any // nil for create
	After      any // nil for delete
	// CompanyID overrides tenant derivation when the affected record
	// carries its own tenant.
	CompanyID *int64
	// ActorID overrides the identity in context, e.g. for login.
	ActorID string
}

// Entry is one audit_logs row. Entries are append-only.
type Entry struct {
	ID          int64           `json:"id"`
	UserID      *string         `json:"user_id"`
	Role        string          `json:"role"`
	CompanyID   *int64          `json:"company_id"`
	EntityType  string          `json:"entity_type"`
	EntityID    string          `json:"entity_id"`
	Action      Action          `json:"action"`
	BeforeState json.RawMessage `json:"before_state"`
	AfterState  json.RawMessage `json:"after_state"`
	IP          string          `json:"ip"`
	UserAgent   string          `json:"user_agent"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Logger records events. Log never fails from the caller's point of view.
type Logger interface {
	Log(ctx context.Context, event Event)
}

// NopLogger is a no-op audit logger for tests and when audit is disabled.
type NopLogger struct{}

func (NopLogger) Log(context.Context, Event) {}

// Sink persists finished entries.
type Sink interface {
	Write(ctx context.Context, entry Entry) error
}
