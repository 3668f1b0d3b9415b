// Package rbac decides what a caller may touch: the scope a request runs
// in, the admin impersonation overlay, role capabilities and the
// per-record permission check.
package rbac

import (
	"context"
	"fmt"

	"github.com/rentaldesk/rentaldesk/internal/platform/database"
)

// Kind is the breadth of a scope.
type Kind string

const (
	KindSystem Kind = "system"
	KindTenant Kind = "tenant"
	KindSelf   Kind = "self"
)

// Scope is derived per request and never stored.
type Scope struct {
	Kind      Kind   `json:"kind"`
	CompanyID int64  `json:"company_id,omitempty"` // set only for KindTenant
	UserID    string `json:"-"`
}

func System(userID string) Scope { return Scope{Kind: KindSystem, UserID: userID} }

func Tenant(companyID int64, userID string) Scope {
	return Scope{Kind: KindTenant, CompanyID: companyID, UserID: userID}
}

func Self(userID string) Scope { return Scope{Kind: KindSelf, UserID: userID} }

// String renders "system", "tenant:<id>" or "self".
func (s Scope) String() string {
	if s.Kind == KindTenant {
		return fmt.Sprintf("tenant:%d", s.CompanyID)
	}
	return string(s.Kind)
}

// Company returns the tenant id, or nil outside tenant scope.
func (s Scope) Company() *int64 {
	if s.Kind != KindTenant {
		return nil
	}
	id := s.CompanyID
	return &id
}

// Session is the row security context matching this scope.
func (s Scope) Session() database.Session {
	return database.Session{Kind: string(s.Kind), CompanyID: s.Company(), UserID: s.UserID}
}

type scopeContextKey struct{}
type impersonationContextKey struct{}

func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, s)
}

// ScopeFrom returns the scope resolved for this request.
func ScopeFrom(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(scopeContextKey{}).(Scope)
	return s, ok
}

// WithImpersonation marks the request as a system admin acting inside companyID.
func WithImpersonation(ctx context.Context, companyID int64) context.Context {
	return context.WithValue(ctx, impersonationContextKey{}, companyID)
}

// ImpersonatedCompany returns the overlay company, or nil when the request
// is not impersonating.
func ImpersonatedCompany(ctx context.Context) *int64 {
	id, ok := ctx.Value(impersonationContextKey{}).(int64)
	if !ok {
		return nil
	}
	return &id
}
