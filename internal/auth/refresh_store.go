package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrFamilyNotFound = errors.New("refresh token family not found")
	ErrFamilyRevoked  = errors.New("refresh token family revoked")
	ErrTokenReuse     = errors.New("refresh token reuse detected")
)

// HashToken computes the SHA-256 hex digest of a raw JWT string.
// Only the digest is stored.
func HashToken(rawJWT string) string {
	h := sha256.Sum256([]byte(rawJWT))
	return hex.EncodeToString(h[:])
}

// TokenFamily is one login's chain of rotated refresh tokens.
type TokenFamily struct {
	ID                string
	UserID            string
	CurrentGeneration int
	CurrentTokenHash  string
	RevokedAt         *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// RefreshTokenStore handles refresh token family rows.
type RefreshTokenStore struct {
	pool *pgxpool.Pool
}

func NewRefreshTokenStore(pool *pgxpool.Pool) *RefreshTokenStore {
	return &RefreshTokenStore{pool: pool}
}

// StartFamily creates a family with a placeholder hash. The token embeds
// the family id, so SetInitialTokenHash stores the real hash once signed.
func (s *RefreshTokenStore) StartFamily(ctx context.Context, userID string) (string, error) {
	var familyID string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO refresh_token_families (user_id, current_generation, current_token_hash)
		 VALUES ($1, 1, 'pending')
		 RETURNING id`,
		userID,
	).Scan(&familyID)
	if err != nil {
		return "", fmt.Errorf("creating token family: %w", err)
	}
	return familyID, nil
}

func (s *RefreshTokenStore) SetInitialTokenHash(ctx context.Context, familyID, tokenHash string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE refresh_token_families
		 SET current_token_hash = $1, updated_at = now()
		 WHERE id = $2 AND current_token_hash = 'pending'`,
		tokenHash, familyID,
	)
	if err != nil {
		return fmt.Errorf("setting initial token hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("family %s not in pending state", familyID)
	}
	return nil
}

// RotateToken validates the presented token against the family and moves
// the family to the next generation in one statement. A mismatch on an
// active family is treated as reuse and revokes the family.
func (s *RefreshTokenStore) RotateToken(ctx context.Context, familyID, presentedHash string, presentedGeneration int, newTokenHash string) (*TokenFamily, error) {
	var family TokenFamily
	err := s.pool.QueryRow(ctx,
		`UPDATE refresh_token_families
		 SET current_generation = current_generation + 1,
		     current_token_hash = $1,
		     updated_at = now()
		 WHERE id = $2
		   AND current_token_hash = $3
		   AND current_generation = $4
		   AND revoked_at IS NULL
		 RETURNING id, user_id, current_generation, current_token_hash, revoked_at, created_at, updated_at`,
		newTokenHash, familyID, presentedHash, presentedGeneration,
	).Scan(
		&family.ID, &family.UserID,
		&family.CurrentGeneration, &family.CurrentTokenHash,
		&family.RevokedAt, &family.CreatedAt, &family.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, s.diagnoseRotationFailure(ctx, familyID)
		}
		return nil, fmt.Errorf("rotating token: %w", err)
	}
	return &family, nil
}

func (s *RefreshTokenStore) diagnoseRotationFailure(ctx context.Context, familyID string) error {
	family, err := s.GetFamily(ctx, familyID)
	if err != nil {
		return err
	}
	if family.RevokedAt != nil {
		return ErrFamilyRevoked
	}

	if revokeErr := s.RevokeFamily(ctx, familyID); revokeErr != nil {
		return fmt.Errorf("revoking family after reuse detection: %w", revokeErr)
	}
	return ErrTokenReuse
}

func (s *RefreshTokenStore) RevokeFamily(ctx context.Context, familyID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE refresh_token_families
		 SET revoked_at = now(), updated_at = now()
		 WHERE id = $1 AND revoked_at IS NULL`,
		familyID,
	)
	if err != nil {
		return fmt.Errorf("revoking token family: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFamilyNotFound
	}
	return nil
}

// RevokeAllForUser ends every active session of a user, e.g. after a role
// change or account revocation.
func (s *RefreshTokenStore) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE refresh_token_families
		 SET revoked_at = now(), updated_at = now()
		 WHERE user_id = $1 AND revoked_at IS NULL`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("revoking all families for user: %w", err)
	}
	return nil
}

func (s *RefreshTokenStore) GetFamily(ctx context.Context, familyID string) (*TokenFamily, error) {
	var family TokenFamily
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, current_generation, current_token_hash, revoked_at, created_at, updated_at
		 FROM refresh_token_families
		 WHERE id::text = $1`,
		familyID,
	).Scan(
		&family.ID, &family.UserID,
		&family.CurrentGeneration, &family.CurrentTokenHash,
		&family.RevokedAt, &family.CreatedAt, &family.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFamilyNotFound
		}
		return nil, fmt.Errorf("getting token family: %w", err)
	}
	return &family, nil
}
