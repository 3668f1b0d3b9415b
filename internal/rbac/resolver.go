package rbac

import (
	"context"
	"fmt"

	"github.com/rentaldesk/rentaldesk/internal/auth"
	"github.com/rentaldesk/rentaldesk/internal/platform/api"
)

// CompanyLookup finds the company an owner owns or a manager serves.
type CompanyLookup interface {
	OwnedCompanyID(ctx context.Context, userID string) (int64, bool, error)
	ManagedCompanyID(ctx context.Context, userID string) (int64, bool, error)
}

// Resolver maps an identity to exactly one scope.
type Resolver struct {
	companies CompanyLookup
}

func NewResolver(companies CompanyLookup) *Resolver {
	return &Resolver{companies: companies}
}

// Resolve derives the scope of identity. Owners and managers with no
// company fall back to self. Lookup failures are returned as-is and never
// widen the scope.
func (r *Resolver) Resolve(ctx context.Context, identity *auth.Identity) (Scope, error) {
	if identity == nil || !identity.Active() {
		return Scope{}, api.ErrUnauthenticated
	}

	switch identity.Role {
	case auth.RoleSystemAdmin:
		return System(identity.UserID), nil
	case auth.RoleOwner:
		return r.lookup(ctx, identity.UserID, r.companies.OwnedCompanyID)
	case auth.RoleManager:
		return r.lookup(ctx, identity.UserID, r.companies.ManagedCompanyID)
	case auth.RoleClient:
		return Self(identity.UserID), nil
	default:
		return Scope{}, fmt.Errorf("%w: %q", auth.ErrUnknownRole, identity.Role)
	}
}

func (r *Resolver) lookup(ctx context.Context, userID string, find func(context.Context, string) (int64, bool, error)) (Scope, error) {
	companyID, ok, err := find(ctx, userID)
	if err != nil {
		return Scope{}, fmt.Errorf("resolving company for %s: %w", userID, err)
	}
	if !ok {
		return Self(userID), nil
	}
	return Tenant(companyID, userID), nil
}

// CompanyOf returns the tenant an identity acts for outside any request
// overlay: nil for system admins and clients, or when no company matches.
func (r *Resolver) CompanyOf(ctx context.Context, identity *auth.Identity) (*int64, error) {
	if identity == nil {
		return nil, nil
	}
	if identity.Role != auth.RoleOwner && identity.Role != auth.RoleManager {
		return nil, nil
	}
	s, err := r.Resolve(ctx, identity)
	if err != nil {
		return nil, err
	}
	return s.Company(), nil
}
