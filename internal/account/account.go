// Package account covers sign-in and account administration: login,
// token refresh, the caller's own profile, and creating users, changing
// their role and revoking them.
package account

import (
	"context"

	"github.com/rentaldesk/rentaldesk/internal/auth"
	"github.com/rentaldesk/rentaldesk/internal/platform/api"
	"github.com/rentaldesk/rentaldesk/internal/platform/database"
)

// Accounts is the account store.
type Accounts interface {
	FindCredentials(ctx context.Context, email string) (userID, passwordHash string, err error)
	GetIdentity(ctx context.Context, userID string) (*auth.Identity, error)
	CreateAuthUser(ctx context.Context, email, passwordHash string) (string, error)
	DeleteAuthUser(ctx context.Context, userID string) error
	CreateProfile(ctx context.Context, identity *auth.Identity) error
	DeleteProfile(ctx context.Context, userID string) error
	UpdateRole(ctx context.Context, userID string, role auth.Role) (before, after *auth.Identity, err error)
	SetStatus(ctx context.Context, userID, status string) (before, after *auth.Identity, err error)
	List(ctx context.Context, p api.ListParams, companyID *int64) ([]auth.Identity, int, error)
}

// SessionIssuer issues and rotates token pairs.
type SessionIssuer interface {
	Issue(ctx context.Context, userID string) (*auth.TokenPair, error)
	Refresh(ctx context.Context, rawRefresh string) (*auth.TokenPair, string, error)
}

// Revoker ends every refresh family of a user.
type Revoker interface {
	RevokeAllForUser(ctx context.Context, userID string) error
}

// ManagerAssigner links manager accounts to companies.
type ManagerAssigner interface {
	Assign(ctx context.Context, q database.Querier, companyID int64, userID string) error
	Unassign(ctx context.Context, q database.Querier, userID string) error
}

// NewUser is the payload of POST /api/v1/users.
type NewUser struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	FullName  string `json:"full_name" validate:"required,max=200"`
	Phone     string `json:"phone" validate:"max=40"`
	Role      string `json:"role" validate:"required,oneof=system_admin owner manager client"`
	CompanyID *int64 `json:"company_id" validate:"omitempty,gt=0"`
}

// Me is the body of GET /api/v1/me.
type Me struct {
	Identity      *auth.Identity `json:"identity"`
	Scope         string         `json:"scope"`
	CompanyID     *int64         `json:"company_id"`
	Impersonating bool           `json:"impersonating"`
}
