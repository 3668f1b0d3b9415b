package mutation

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rentaldesk/rentaldesk/internal/audit"
	"github.com/rentaldesk/rentaldesk/internal/auth"
	"github.com/rentaldesk/rentaldesk/internal/platform/api"
	"github.com/rentaldesk/rentaldesk/internal/platform/database"
	"github.com/rentaldesk/rentaldesk/internal/rbac"
)

// Executor runs the mutation pipeline for one entity type.
type Executor[T Record, In any] struct {
	policy Policy
	store  Store[T, In]
	deps   Deps
}

func New[T Record, In any](policy Policy, store Store[T, In], deps Deps) *Executor[T, In] {
	if deps.Audit == nil {
		deps.Audit = audit.NopLogger{}
	}
	return &Executor[T, In]{policy: policy, store: store, deps: deps}
}

func (e *Executor[T, In]) Policy() Policy { return e.policy }

// caller returns the request scope after the role capability check.
func (e *Executor[T, In]) caller(ctx context.Context, action rbac.Action) (rbac.Scope, error) {
	identity := auth.GetIdentity(ctx)
	scope, ok := rbac.ScopeFrom(ctx)
	if identity == nil || !ok {
		return rbac.Scope{}, api.ErrUnauthenticated
	}
	if e.deps.Engine != nil {
		d := e.deps.Engine.Authorize(identity, rbac.Permission(e.policy.Resource, action))
		if !d.Allowed {
			return rbac.Scope{}, fmt.Errorf("%w: %s", api.ErrPermissionDenied, d.Reason)
		}
	}
	return scope, nil
}

// Permitted runs the role capability check alone, so a handler can refuse
// the caller before reading the body.
func (e *Executor[T, In]) Permitted(ctx context.Context, action rbac.Action) error {
	_, err := e.caller(ctx, action)
	return err
}

func (e *Executor[T, In]) check(scope rbac.Scope, action rbac.Action, company *int64, owner string) error {
	d := rbac.Check(rbac.Request{
		Scope:           scope,
		Resource:        e.policy.Resource,
		Action:          action,
		Required:        e.policy.required(action, scope),
		TargetCompanyID: company,
		TargetOwnerID:   owner,
		CallerID:        scope.UserID,
	})
	if !d.Allowed {
		return fmt.Errorf("%w: %s", api.ErrPermissionDenied, d.Reason)
	}
	return nil
}

// readBefore loads the current row without row-security narrowing so a row
// outside the caller's scope is reported as forbidden rather than missing.
// The permission check that follows is what gates access.
func (e *Executor[T, In]) readBefore(ctx context.Context, scope rbac.Scope, id int64) (T, error) {
	var before T
	lookup := database.Session{Kind: string(rbac.KindSystem), UserID: scope.UserID}
	err := e.deps.Runner.Run(ctx, lookup, func(ctx context.Context, q database.Querier) error {
		var err error
		before, err = e.store.Get(ctx, q, id)
		return err
	})
	return before, err
}

// Get returns one record. Reads are not audited.
func (e *Executor[T, In]) Get(ctx context.Context, id int64) (T, error) {
	var zero T
	scope, err := e.caller(ctx, rbac.ActionRead)
	if err != nil {
		return zero, err
	}
	rec, err := e.readBefore(ctx, scope, id)
	if err != nil {
		return zero, err
	}
	if e.policy.PublicRead {
		return rec, nil
	}
	if v, ok := any(rec).(SelfVisible); ok && scope.Kind == rbac.KindSelf &&
		e.policy.required(rbac.ActionRead, scope) == rbac.KindSelf {
		if !v.VisibleToSelf() {
			return zero, fmt.Errorf("%w: %s is not on offer", api.ErrPermissionDenied, e.policy.Resource)
		}
		return rec, nil
	}
	if err := e.check(scope, rbac.ActionRead, rec.TenantID(), rec.OwnerID()); err != nil {
		return zero, err
	}
	return rec, nil
}

// Authorize loads a record and checks action against it without writing,
// for operations that act on a record outside the database.
func (e *Executor[T, In]) Authorize(ctx context.Context, id int64, action rbac.Action) (T, error) {
	var zero T
	scope, err := e.caller(ctx, action)
	if err != nil {
		return zero, err
	}
	rec, err := e.readBefore(ctx, scope, id)
	if err != nil {
		return zero, err
	}
	if err := e.check(scope, action, rec.TenantID(), rec.OwnerID()); err != nil {
		return zero, err
	}
	return rec, nil
}

// Restriction derives the list boundary for the caller's scope.
func (e *Executor[T, In]) Restriction(scope rbac.Scope) (api.Restriction, error) {
	switch scope.Kind {
	case rbac.KindSystem:
		return api.Restriction{}, nil
	case rbac.KindTenant:
		if !e.policy.Tenanted {
			return api.Restriction{}, nil
		}
		company := scope.CompanyID
		return api.Restriction{CompanyID: &company}, nil
	case rbac.KindSelf:
		if e.policy.PublicRead && !e.policy.Tenanted {
			return api.Restriction{}, nil
		}
		if e.policy.SelfList == nil {
			return api.Restriction{}, fmt.Errorf("%w: %s cannot be listed without a company", api.ErrPermissionDenied, e.policy.Resource)
		}
		return e.policy.SelfList(scope.UserID), nil
	default:
		return api.Restriction{}, fmt.Errorf("%w: unknown scope %q", api.ErrPermissionDenied, scope.Kind)
	}
}

// List returns one page of records visible to the caller.
func (e *Executor[T, In]) List(ctx context.Context, p api.ListParams) ([]T, int, error) {
	scope, err := e.caller(ctx, rbac.ActionRead)
	if err != nil {
		return nil, 0, err
	}
	rs, err := e.Restriction(scope)
	if err != nil {
		return nil, 0, err
	}

	var (
		items []T
		total int
	)
	err = e.deps.Runner.Run(ctx, scope.Session(), func(ctx context.Context, q database.Querier) error {
		var err error
		items, total, err = e.store.List(ctx, q, p, rs)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// targetCompany decides which tenant a new record belongs to.
func (e *Executor[T, In]) targetCompany(scope rbac.Scope, in In) (*int64, error) {
	if !e.policy.Tenanted || e.policy.SelfTenant {
		return nil, nil
	}
	switch scope.Kind {
	case rbac.KindTenant:
		company := scope.CompanyID
		return &company, nil
	case rbac.KindSystem:
		if req, ok := any(in).(CompanyRequester); ok {
			if id := req.RequestedCompanyID(); id != nil && *id > 0 {
				return id, nil
			}
		}
		return nil, api.NewValidationError("company_id", "is required")
	default:
		return nil, nil
	}
}

// Create validates in, checks the caller may create in the target tenant,
// writes once and records one audit entry.
func (e *Executor[T, In]) Create(ctx context.Context, in In) (T, error) {
	var zero T
	scope, err := e.caller(ctx, rbac.ActionCreate)
	if err != nil {
		return zero, err
	}
	if err := validate(in); err != nil {
		return zero, err
	}
	company, err := e.targetCompany(scope, in)
	if err != nil {
		return zero, err
	}
	if err := e.check(scope, rbac.ActionCreate, company, ""); err != nil {
		return zero, err
	}
	if e.policy.Tenanted && !e.policy.SelfTenant && company == nil {
		return zero, fmt.Errorf("%w: %s requires a company", api.ErrPermissionDenied, e.policy.Resource)
	}

	var created T
	err = e.deps.Runner.Run(ctx, scope.Session(), func(ctx context.Context, q database.Querier) error {
		if err := checkReferences(ctx, q, in); err != nil {
			return err
		}
		var err error
		created, err = e.store.Insert(ctx, q, company, in)
		return err
	})
	if err != nil {
		return zero, classify(e.policy.Resource, rbac.ActionCreate, err)
	}

	e.deps.Audit.Log(ctx, audit.Event{
		EntityType: e.policy.Resource,
		EntityID:   strconv.FormatInt(created.RecordID(), 10),
		Action:     audit.ActionCreate,
		Before:     nil,
		After:      created,
		CompanyID:  created.TenantID(),
	})
	return created, nil
}

// Update replaces the record's mutable fields with in.
func (e *Executor[T, In]) Update(ctx context.Context, id int64, in In) (T, error) {
	var zero T
	scope, err := e.caller(ctx, rbac.ActionUpdate)
	if err != nil {
		return zero, err
	}
	if err := validate(in); err != nil {
		return zero, err
	}
	before, err := e.readBefore(ctx, scope, id)
	if err != nil {
		return zero, err
	}
	if err := e.check(scope, rbac.ActionUpdate, before.TenantID(), before.OwnerID()); err != nil {
		return zero, err
	}

	var after T
	err = e.deps.Runner.Run(ctx, scope.Session(), func(ctx context.Context, q database.Querier) error {
		if err := checkReferences(ctx, q, in); err != nil {
			return err
		}
		var err error
		after, err = e.store.Update(ctx, q, id, in)
		return err
	})
	if err != nil {
		return zero, classify(e.policy.Resource, rbac.ActionUpdate, err)
	}

	e.deps.Audit.Log(ctx, audit.Event{
		EntityType: e.policy.Resource,
		EntityID:   strconv.FormatInt(id, 10),
		Action:     audit.ActionUpdate,
		Before:     before,
		After:      after,
		CompanyID:  after.TenantID(),
	})
	return after, nil
}

// Delete removes the record. A second delete of the same id is NotFound
// and records nothing.
func (e *Executor[T, In]) Delete(ctx context.Context, id int64) error {
	scope, err := e.caller(ctx, rbac.ActionDelete)
	if err != nil {
		return err
	}
	before, err := e.readBefore(ctx, scope, id)
	if err != nil {
		return err
	}
	if err := e.check(scope, rbac.ActionDelete, before.TenantID(), before.OwnerID()); err != nil {
		return err
	}

	err = e.deps.Runner.Run(ctx, scope.Session(), func(ctx context.Context, q database.Querier) error {
		return e.store.Delete(ctx, q, id)
	})
	if err != nil {
		return classify(e.policy.Resource, rbac.ActionDelete, err)
	}

	e.deps.Audit.Log(ctx, audit.Event{
		EntityType: e.policy.Resource,
		EntityID:   strconv.FormatInt(id, 10),
		Action:     audit.ActionDelete,
		Before:     before,
		After:      nil,
		CompanyID:  before.TenantID(),
	})
	return nil
}

func validate(in any) error {
	if v, ok := in.(Validator); ok {
		return v.Validate()
	}
	return nil
}

// classify maps constraint failures onto the api taxonomy.
func classify(resource string, action rbac.Action, err error) error {
	var verr *api.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, api.ErrNotFound),
		errors.Is(err, api.ErrPermissionDenied), errors.Is(err, api.ErrConflict):
		return err
	case database.IsExclusionViolation(err):
		return fmt.Errorf("%w: %s overlaps an existing record", api.ErrConflict, resource)
	case database.IsUniqueViolation(err):
		return fmt.Errorf("%w: %s already exists (%s)", api.ErrConflict, resource, database.ConstraintName(err))
	case database.IsForeignKeyViolation(err):
		if action == rbac.ActionDelete {
			return fmt.Errorf("%w: %s is still referenced by other records", api.ErrConflict, resource)
		}
		return api.NewValidationError("body", "references a record that does not exist")
	}
	return fmt.Errorf("%s %s: %w", action, resource, err)
}
