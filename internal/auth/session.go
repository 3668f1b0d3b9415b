package auth

import (
	"context"
	"fmt"
)

// TokenPair is the body returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// FamilyStore is the subset of RefreshTokenStore sessions need.
type FamilyStore interface {
	StartFamily(ctx context.Context, userID string) (string, error)
	SetInitialTokenHash(ctx context.Context, familyID, tokenHash string) error
	RotateToken(ctx context.Context, familyID, presentedHash string, presentedGeneration int, newTokenHash string) (*TokenFamily, error)
}

// Sessions issues and rotates token pairs.
type Sessions struct {
	tokens   *TokenService
	families FamilyStore
}

func NewSessions(tokens *TokenService, families FamilyStore) *Sessions {
	return &Sessions{tokens: tokens, families: families}
}

// Issue starts a new refresh family for userID and returns its first pair.
func (s *Sessions) Issue(ctx context.Context, userID string) (*TokenPair, error) {
	familyID, err := s.families.StartFamily(ctx, userID)
	if err != nil {
		return nil, err
	}

	refresh, err := s.tokens.CreateRefreshToken(userID, familyID, 1)
	if err != nil {
		return nil, err
	}
	if err := s.families.SetInitialTokenHash(ctx, familyID, HashToken(refresh)); err != nil {
		return nil, err
	}
	return s.pair(userID, refresh)
}

// Refresh exchanges a refresh token for the next pair in its family.
// Presenting an already rotated token revokes the family.
func (s *Sessions) Refresh(ctx context.Context, rawRefresh string) (*TokenPair, string, error) {
	claims, err := s.tokens.ValidateToken(rawRefresh)
	if err != nil {
		return nil, "", err
	}
	if claims.TokenType != TokenTypeRefresh || claims.FamilyID == "" {
		return nil, "", fmt.Errorf("%w: refresh token required", ErrTokenInvalid)
	}

	next, err := s.tokens.CreateRefreshToken(claims.UserID, claims.FamilyID, claims.Generation+1)
	if err != nil {
		return nil, "", err
	}
	if _, err := s.families.RotateToken(ctx, claims.FamilyID, HashToken(rawRefresh), claims.Generation, HashToken(next)); err != nil {
		return nil, "", err
	}

	pair, err := s.pair(claims.UserID, next)
	if err != nil {
		return nil, "", err
	}
	return pair, claims.UserID, nil
}

func (s *Sessions) pair(userID, refresh string) (*TokenPair, error) {
	access, err := s.tokens.CreateAccessToken(userID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.tokens.AccessTTL().Seconds()),
	}, nil
}
