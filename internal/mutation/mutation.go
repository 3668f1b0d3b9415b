// Package mutation is the shared create/read/update/delete pipeline every
// tenant-aware entity goes through: payload validation, scope resolution,
// read-before, permission check, reference lookups, one write and one
// audit entry after the write succeeds.
package mutation

import (
	"context"

	"github.com/rentaldesk/rentaldesk/internal/audit"
	"github.com/rentaldesk/rentaldesk/internal/platform/api"
	"github.com/rentaldesk/rentaldesk/internal/platform/database"
	"github.com/rentaldesk/rentaldesk/internal/rbac"
)

// Record is a persisted entity.
type Record interface {
	RecordID() int64
	// TenantID is the owning company, nil for global catalog rows.
	TenantID() *int64
	// OwnerID is the identity that owns the row in self scope, or "".
	OwnerID() string
}

// Store is the per-entity persistence driven by an Executor. Every method
// runs on the querier it is given. Get and Delete wrap api.ErrNotFound
// when the row is absent.
type Store[T Record, In any] interface {
	Get(ctx context.Context, q database.Querier, id int64) (T, error)
	Insert(ctx context.Context, q database.Querier, companyID *int64, in In) (T, error)
	Update(ctx context.Context, q database.Querier, id int64, in In) (T, error)
	Delete(ctx context.Context, q database.Querier, id int64) error
	List(ctx context.Context, q database.Querier, p api.ListParams, rs api.Restriction) ([]T, int, error)
}

// SelfVisible is implemented by records that self scope may see only in
// some states, e.g. cars on offer.
type SelfVisible interface {
	VisibleToSelf() bool
}

// Validator is implemented by payloads with rules beyond struct tags.
type Validator interface {
	Validate() error
}

// CompanyRequester is implemented by payloads that name their company.
// Only unnarrowed system scope may use it.
type CompanyRequester interface {
	RequestedCompanyID() *int64
}

// Reference names a row another table must contain.
type Reference struct {
	Field string // JSON field reported on failure
	Table string // trusted table name
	ID    *int64 // nil skips the lookup
}

// Ref is shorthand for a required reference.
func Ref(field, table string, id int64) Reference {
	return Reference{Field: field, Table: table, ID: &id}
}

// Referencer is implemented by payloads carrying foreign keys.
type Referencer interface {
	References() []Reference
}

// Policy is the scope each action requires on one resource.
type Policy struct {
	// Resource names the capability prefix and the audit entity type.
	Resource string

	Read   rbac.Kind
	Create rbac.Kind
	Update rbac.Kind
	Delete rbac.Kind

	// Tenanted resources carry a company; creates need a target company.
	Tenanted bool
	// SelfTenant marks the tenant table itself: lists are restricted like
	// tenanted rows but a new row carries no parent company.
	SelfTenant bool
	// PublicRead skips the record check on reads, e.g. global catalogs.
	PublicRead bool
	// SelfService lists actions a self-scoped caller may take on rows it
	// owns. For those, the requirement becomes rbac.KindSelf.
	SelfService []rbac.Action
	// SelfList restricts list queries in self scope. Nil denies listing.
	SelfList func(userID string) api.Restriction
}

func (p Policy) required(action rbac.Action, scope rbac.Scope) rbac.Kind {
	if scope.Kind == rbac.KindSelf {
		for _, a := range p.SelfService {
			if a == action {
				return rbac.KindSelf
			}
		}
	}
	switch action {
	case rbac.ActionRead:
		return p.Read
	case rbac.ActionCreate:
		return p.Create
	case rbac.ActionUpdate:
		return p.Update
	case rbac.ActionDelete:
		return p.Delete
	default:
		return rbac.KindSystem
	}
}

// Deps are shared by every executor.
type Deps struct {
	Runner database.Runner
	Engine *rbac.Evaluator
	Audit  audit.Logger
}
