package auth

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrUserNotFound       = errors.New("user not found")
	ErrIdentityRevoked    = errors.New("identity revoked")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUnknownRole        = errors.New("unknown role")
)

// Role is the closed set of account roles.
type Role string

const (
	RoleSystemAdmin Role = "system_admin"
	RoleOwner       Role = "owner"
	RoleManager     Role = "manager"
	RoleClient      Role = "client"
)

// Roles lists every role in privilege order.
var Roles = []Role{RoleSystemAdmin, RoleOwner, RoleManager, RoleClient}

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleSystemAdmin, RoleOwner, RoleManager, RoleClient:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

func (r Role) String() string { return string(r) }

const (
	StatusActive  = "active"
	StatusRevoked = "revoked"
)

// Identity is an account as loaded from the store. The role always comes
// from the profile row, never from token claims.
type Identity struct {
	UserID   string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Role     Role   `json:"role"`
	Status   string `json:"status"`
}

func (i *Identity) Active() bool {
	return i != nil && i.Status == StatusActive
}

type identityContextKey struct{}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// GetIdentity retrieves the authenticated identity from the request context.
func GetIdentity(ctx context.Context) *Identity {
	identity, _ := ctx.Value(identityContextKey{}).(*Identity)
	return identity
}
