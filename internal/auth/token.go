package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims carry only the subject. Role and tenant are reloaded per request.
type Claims struct {
	jwt.RegisteredClaims
	UserID     string `json:"uid"`
	TokenType  string `json:"type"`
	FamilyID   string `json:"fid,omitempty"`
	Generation int    `json:"gen,omitempty"`
}

// TokenService handles JWT creation and validation.
type TokenService struct {
	signingKey         []byte
	issuer             string
	expiryHours        int
	refreshExpiryHours int
	now                func() time.Time
}

func NewTokenService(signingKey, issuer string, expiryHours, refreshExpiryHours int) *TokenService {
	return &TokenService{
		signingKey:         []byte(signingKey),
		issuer:             issuer,
		expiryHours:        expiryHours,
		refreshExpiryHours: refreshExpiryHours,
		now:                time.Now,
	}
}

func (s *TokenService) CreateAccessToken(userID string) (string, error) {
	return s.sign(Claims{UserID: userID, TokenType: TokenTypeAccess}, s.expiryHours)
}

// CreateRefreshToken issues a refresh token bound to a rotation family.
func (s *TokenService) CreateRefreshToken(userID, familyID string, generation int) (string, error) {
	return s.sign(Claims{
		UserID:     userID,
		TokenType:  TokenTypeRefresh,
		FamilyID:   familyID,
		Generation: generation,
	}, s.refreshExpiryHours)
}

// AccessTTL is the lifetime of access tokens, reported to clients.
func (s *TokenService) AccessTTL() time.Duration {
	return time.Duration(s.expiryHours) * time.Hour
}

func (s *TokenService) sign(claims Claims, expiryHours int) (string, error) {
	now := s.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   claims.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(expiryHours) * time.Hour)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("signing %s token: %w", claims.TokenType, err)
	}
	return signed, nil
}

func (s *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithTimeFunc(s.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
