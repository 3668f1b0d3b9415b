package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// IdentityLoader reloads an account on every request.
type IdentityLoader interface {
	GetIdentity(ctx context.Context, userID string) (*Identity, error)
}

// Middleware validates the bearer access token, reloads the identity from
// the store and rejects unknown or revoked accounts.
func Middleware(tokenSvc *TokenService, loader IdentityLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := extractBearerToken(r)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, err.Error())
				return
			}

			claims, err := tokenSvc.ValidateToken(token)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			// Reject refresh tokens on non-refresh endpoints
			if claims.TokenType != TokenTypeAccess {
				writeAuthError(w, http.StatusUnauthorized, "access token required")
				return
			}

			identity, err := loader.GetIdentity(r.Context(), claims.UserID)
			switch {
			case errors.Is(err, ErrUserNotFound):
				writeAuthError(w, http.StatusUnauthorized, "unknown user")
				return
			case err != nil:
				slog.ErrorContext(r.Context(), "loading identity", "user_id", claims.UserID, "error", err)
				writeAuthError(w, http.StatusInternalServerError, "internal server error")
				return
			case !identity.Active():
				writeAuthError(w, http.StatusUnauthorized, "account revoked")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func extractBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", fmt.Errorf("invalid authorization header format")
	}

	return parts[1], nil
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
