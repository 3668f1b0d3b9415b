package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rentaldesk/rentaldesk/internal/platform/api"
	"github.com/rentaldesk/rentaldesk/internal/platform/database"
)

// Store handles account rows: auth_users credentials and profiles.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const identityColumns = `p.id, u.email, p.full_name, p.phone, p.role, p.status`

func scanIdentity(row pgx.Row) (*Identity, error) {
	var id Identity
	var role string
	if err := row.Scan(&id.UserID, &id.Email, &id.FullName, &id.Phone, &role, &id.Status); err != nil {
		return nil, err
	}
	parsed, err := ParseRole(role)
	if err != nil {
		return nil, err
	}
	id.Role = parsed
	return &id, nil
}

// GetIdentity loads the profile and email of userID.
func (s *Store) GetIdentity(ctx context.Context, userID string) (*Identity, error) {
	identity, err := scanIdentity(s.pool.QueryRow(ctx,
		`SELECT `+identityColumns+`
		 FROM profiles p JOIN auth_users u ON u.id = p.id
		 WHERE p.id::text = $1`,
		userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("querying identity: %w", err)
	}
	return identity, nil
}

// FindCredentials returns the user id and password hash for email.
func (s *Store) FindCredentials(ctx context.Context, email string) (userID, passwordHash string, err error) {
	err = s.pool.QueryRow(ctx,
		"SELECT id, password_hash FROM auth_users WHERE lower(email) = lower($1)",
		strings.TrimSpace(email),
	).Scan(&userID, &passwordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", ErrUserNotFound
		}
		return "", "", fmt.Errorf("querying credentials: %w", err)
	}
	return userID, passwordHash, nil
}

// CreateAuthUser inserts the credential row and returns its id.
func (s *Store) CreateAuthUser(ctx context.Context, email, passwordHash string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		"INSERT INTO auth_users (email, password_hash) VALUES ($1, $2) RETURNING id",
		strings.TrimSpace(email), passwordHash,
	).Scan(&id)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return "", fmt.Errorf("%w: %s", ErrEmailTaken, email)
		}
		return "", fmt.Errorf("creating auth user: %w", err)
	}
	return id, nil
}

func (s *Store) DeleteAuthUser(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM auth_users WHERE id = $1", userID); err != nil {
		return fmt.Errorf("deleting auth user: %w", err)
	}
	return nil
}

// CreateProfile inserts the profile row for an existing auth user.
func (s *Store) CreateProfile(ctx context.Context, identity *Identity) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO profiles (id, role, full_name, phone, status)
		 VALUES ($1, $2, $3, $4, $5)`,
		identity.UserID, string(identity.Role), identity.FullName, identity.Phone, StatusActive,
	)
	if err != nil {
		return fmt.Errorf("creating profile: %w", err)
	}
	return nil
}

func (s *Store) DeleteProfile(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM profiles WHERE id = $1", userID); err != nil {
		return fmt.Errorf("deleting profile: %w", err)
	}
	return nil
}

// UpdateRole sets the profile role and returns the identity before and
// after the change.
func (s *Store) UpdateRole(ctx context.Context, userID string, role Role) (before, after *Identity, err error) {
	return s.updateProfile(ctx, userID, "role", string(role))
}

// SetStatus activates or revokes an account.
func (s *Store) SetStatus(ctx context.Context, userID, status string) (before, after *Identity, err error) {
	return s.updateProfile(ctx, userID, "status", status)
}

func (s *Store) updateProfile(ctx context.Context, userID, column, value string) (*Identity, *Identity, error) {
	before, err := s.GetIdentity(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	// column is one of two literals above.
	tag, err := s.pool.Exec(ctx,
		"UPDATE profiles SET "+column+" = $1, updated_at = now() WHERE id = $2",
		value, userID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("updating profile %s: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, nil, ErrUserNotFound
	}

	after, err := s.GetIdentity(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return before, after, nil
}

var identityList = api.ListSpec{
	From:    "profiles p JOIN auth_users u ON u.id = p.id",
	Columns: identityColumns,
	Sortable: map[string]string{
		"createdAt": "p.created_at",
		"fullName":  "p.full_name",
		"email":     "u.email",
	},
	Filterable: map[string]string{
		"role":   "p.role",
		"status": "p.status",
	},
	Search:      []string{"p.full_name", "u.email", "p.phone"},
	DefaultSort: "p.created_at",
}

// staffOf matches the owner and managers of one company.
const staffOf = `p.id IN (SELECT member FROM (
	SELECT owner_id AS member, id AS company FROM companies
	UNION ALL
	SELECT user_id, company_id FROM company_managers WHERE active
) staff WHERE company = ?)`

// List returns one page of accounts and the total match count. A non-nil
// companyID limits the page to that company's staff.
func (s *Store) List(ctx context.Context, p api.ListParams, companyID *int64) ([]Identity, int, error) {
	var rs api.Restriction
	if companyID != nil {
		rs.Extra = []api.Predicate{{SQL: staffOf, Arg: *companyID}}
	}
	return api.Page(ctx, s.pool, identityList, p, rs, func(row pgx.Row) (Identity, error) {
		identity, err := scanIdentity(row)
		if err != nil {
			return Identity{}, err
		}
		return *identity, nil
	})
}
