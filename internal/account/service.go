package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rentaldesk/rentaldesk/internal/audit"
	"github.com/rentaldesk/rentaldesk/internal/auth"
	"github.com/rentaldesk/rentaldesk/internal/platform/api"
	"github.com/rentaldesk/rentaldesk/internal/platform/database"
	"github.com/rentaldesk/rentaldesk/internal/platform/saga"
	"github.com/rentaldesk/rentaldesk/internal/rbac"
)

const entityType = "users"

type Service struct {
	accounts Accounts
	sessions SessionIssuer
	revoker  Revoker
	managers ManagerAssigner
	runner   database.Runner
	audit    audit.Logger
}

func NewService(accounts Accounts, sessions SessionIssuer, revoker Revoker, managers ManagerAssigner, runner database.Runner, logger audit.Logger) *Service {
	if logger == nil {
		logger = audit.NopLogger{}
	}
	return &Service{
		accounts: accounts,
		sessions: sessions,
		revoker:  revoker,
		managers: managers,
		runner:   runner,
		audit:    logger,
	}
}

func unauthenticated(err error) error {
	return fmt.Errorf("%w: %w", api.ErrUnauthenticated, err)
}

// Login checks credentials and starts a session. Unknown email and wrong
// password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*auth.TokenPair, error) {
	userID, hash, err := s.accounts.FindCredentials(ctx, email)
	if errors.Is(err, auth.ErrUserNotFound) {
		return nil, unauthenticated(auth.ErrInvalidCredentials)
	}
	if err != nil {
		return nil, err
	}
	if err := auth.VerifyPassword(hash, password); err != nil {
		return nil, unauthenticated(auth.ErrInvalidCredentials)
	}

	identity, err := s.accounts.GetIdentity(ctx, userID)
	if errors.Is(err, auth.ErrUserNotFound) {
		return nil, unauthenticated(auth.ErrInvalidCredentials)
	}
	if err != nil {
		return nil, err
	}
	if !identity.Active() {
		return nil, unauthenticated(auth.ErrIdentityRevoked)
	}

	pair, err := s.sessions.Issue(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("issuing session: %w", err)
	}

	s.audit.Log(ctx, audit.Event{
		EntityType: entityType,
		EntityID:   userID,
		Action:     audit.ActionLogin,
		ActorID:    userID,
	})
	return pair, nil
}

// Refresh rotates a refresh token. Revoked accounts cannot refresh.
func (s *Service) Refresh(ctx context.Context, rawRefresh string) (*auth.TokenPair, error) {
	pair, userID, err := s.sessions.Refresh(ctx, rawRefresh)
	if err != nil {
		if errors.Is(err, auth.ErrTokenInvalid) || errors.Is(err, auth.ErrTokenExpired) ||
			errors.Is(err, auth.ErrTokenReuse) || errors.Is(err, auth.ErrFamilyRevoked) ||
			errors.Is(err, auth.ErrFamilyNotFound) {
			return nil, unauthenticated(err)
		}
		return nil, err
	}

	identity, err := s.accounts.GetIdentity(ctx, userID)
	if errors.Is(err, auth.ErrUserNotFound) {
		return nil, unauthenticated(err)
	}
	if err != nil {
		return nil, err
	}
	if !identity.Active() {
		return nil, unauthenticated(auth.ErrIdentityRevoked)
	}
	return pair, nil
}

// targetCompany decides which company a new account joins, if any.
// Tenant callers may only add managers and clients to their own company;
// only unnarrowed system scope picks any role and company.
func targetCompany(scope rbac.Scope, in NewUser, role auth.Role) (*int64, error) {
	switch scope.Kind {
	case rbac.KindSystem:
		if role == auth.RoleManager && in.CompanyID == nil {
			return nil, api.NewValidationError("company_id", "is required for managers")
		}
		if role != auth.RoleManager {
			return nil, nil
		}
		return in.CompanyID, nil
	case rbac.KindTenant:
		if role != auth.RoleManager && role != auth.RoleClient {
			return nil, fmt.Errorf("%w: a company may only add managers and clients", api.ErrPermissionDenied)
		}
		if in.CompanyID != nil && *in.CompanyID != scope.CompanyID {
			return nil, fmt.Errorf("%w: company %d is outside your scope", api.ErrPermissionDenied, *in.CompanyID)
		}
		if role == auth.RoleClient {
			return nil, nil
		}
		return scope.Company(), nil
	default:
		return nil, fmt.Errorf("%w: self scope cannot create accounts", api.ErrPermissionDenied)
	}
}

// CreateUser creates the credential row, the profile and, for managers,
// the company assignment. A failed step undoes the earlier ones.
func (s *Service) CreateUser(ctx context.Context, scope rbac.Scope, in NewUser) (*auth.Identity, error) {
	role, err := auth.ParseRole(in.Role)
	if err != nil {
		return nil, api.NewValidationError("role", err.Error())
	}
	company, err := targetCompany(scope, in, role)
	if err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	identity := &auth.Identity{
		Email:    in.Email,
		FullName: in.FullName,
		Phone:    in.Phone,
		Role:     role,
		Status:   auth.StatusActive,
	}

	seq := saga.New("create user",
		saga.Step{
			Name: "create auth identity",
			Forward: func(ctx context.Context) error {
				id, err := s.accounts.CreateAuthUser(ctx, in.Email, hash)
				identity.UserID = id
				return err
			},
			Backward: func(ctx context.Context) error {
				return s.accounts.DeleteAuthUser(ctx, identity.UserID)
			},
		},
		saga.Step{
			Name:    "create profile",
			Forward: func(ctx context.Context) error { return s.accounts.CreateProfile(ctx, identity) },
			Backward: func(ctx context.Context) error {
				return s.accounts.DeleteProfile(ctx, identity.UserID)
			},
		},
	)
	if company != nil {
		seq.Add(saga.Step{
			Name: "assign manager",
			Forward: func(ctx context.Context) error {
				return s.runner.Run(ctx, scope.Session(), func(ctx context.Context, q database.Querier) error {
					return s.managers.Assign(ctx, q, *company, identity.UserID)
				})
			},
		})
	}

	if err := seq.Run(ctx); err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			return nil, fmt.Errorf("%w: %w", api.ErrConflict, auth.ErrEmailTaken)
		}
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		EntityType: entityType,
		EntityID:   identity.UserID,
		Action:     audit.ActionCreate,
		After:      identity,
		CompanyID:  company,
	})
	return identity, nil
}

// ChangeRole sets a new role and ends the user's sessions so the next
// token is issued against it.
func (s *Service) ChangeRole(ctx context.Context, userID, role string) (*auth.Identity, error) {
	parsed, err := auth.ParseRole(role)
	if err != nil {
		return nil, api.NewValidationError("role", err.Error())
	}
	before, after, err := s.accounts.UpdateRole(ctx, userID, parsed)
	if err != nil {
		return nil, notFound(err)
	}
	// The role is committed from here on. Follow-up cleanup failures are
	// logged; the identity check on every request already enforces the new role.
	if before.Role != after.Role && after.Role != auth.RoleManager {
		if err := s.runner.Run(ctx, database.Session{Kind: string(rbac.KindSystem)}, func(ctx context.Context, q database.Querier) error {
			return s.managers.Unassign(ctx, q, userID)
		}); err != nil {
			slog.WarnContext(ctx, "manager unassign after role change failed", "user_id", userID, "error", err)
		}
	}
	s.revokeSessions(ctx, userID)

	s.audit.Log(ctx, audit.Event{
		EntityType: entityType,
		EntityID:   userID,
		Action:     audit.ActionRoleChange,
		Before:     before,
		After:      after,
	})
	return after, nil
}

// SetStatus activates or revokes an account. Revoking ends its sessions.
func (s *Service) SetStatus(ctx context.Context, userID, status string) (*auth.Identity, error) {
	if status != auth.StatusActive && status != auth.StatusRevoked {
		return nil, api.NewValidationError("status", "must be one of: active revoked")
	}
	before, after, err := s.accounts.SetStatus(ctx, userID, status)
	if err != nil {
		return nil, notFound(err)
	}
	if status == auth.StatusRevoked {
		s.revokeSessions(ctx, userID)
	}

	s.audit.Log(ctx, audit.Event{
		EntityType: entityType,
		EntityID:   userID,
		Action:     audit.ActionUpdate,
		Before:     before,
		After:      after,
	})
	return after, nil
}

// List pages through accounts: everyone in system scope, a company's
// staff in tenant scope.
func (s *Service) List(ctx context.Context, scope rbac.Scope, p api.ListParams) ([]auth.Identity, int, error) {
	if scope.Kind == rbac.KindSelf {
		return nil, 0, fmt.Errorf("%w: self scope cannot list accounts", api.ErrPermissionDenied)
	}
	return s.accounts.List(ctx, p, scope.Company())
}

// revokeSessions ends the user's refresh families. A failure leaves them
// to be refused at refresh time, where the account status is rechecked.
func (s *Service) revokeSessions(ctx context.Context, userID string) {
	if err := s.revoker.RevokeAllForUser(ctx, userID); err != nil {
		slog.WarnContext(ctx, "session revocation failed", "user_id", userID, "error", err)
	}
}

func notFound(err error) error {
	if errors.Is(err, auth.ErrUserNotFound) {
		return fmt.Errorf("%w: %w", api.ErrNotFound, err)
	}
	return err
}
