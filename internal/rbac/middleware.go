package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rentaldesk/rentaldesk/internal/auth"
	"github.com/rentaldesk/rentaldesk/internal/platform/api"
)

// ScopeResolver is the part of Resolver the middleware uses.
type ScopeResolver interface {
	Resolve(ctx context.Context, identity *auth.Identity) (Scope, error)
}

// ResolveScope resolves the caller's scope, applies the admin overlay and
// stores both in the request context. It must run after auth.Middleware.
func ResolveScope(resolver ScopeResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := auth.GetIdentity(r.Context())
			if identity == nil {
				api.WriteError(w, r, api.ErrUnauthenticated)
				return
			}

			scope, err := resolver.Resolve(r.Context(), identity)
			if err != nil {
				api.WriteError(w, r, err)
				return
			}

			ctx := r.Context()
			if narrowed, ok := ApplyOverlay(scope, identity.Role, r.URL.Query()); ok {
				scope = narrowed
				ctx = WithImpersonation(ctx, narrowed.CompanyID)
				slog.DebugContext(ctx, "admin impersonation",
					"user_id", identity.UserID,
					"company_id", narrowed.CompanyID,
				)
			}

			next.ServeHTTP(w, r.WithContext(WithScope(ctx, scope)))
		})
	}
}

// RequirePermission rejects callers whose role lacks permission.
func RequirePermission(engine *Evaluator, permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := auth.GetIdentity(r.Context())
			if identity == nil {
				api.WriteError(w, r, api.ErrUnauthenticated)
				return
			}

			if decision := engine.Authorize(identity, permission); !decision.Allowed {
				api.WriteError(w, r, fmt.Errorf("%w: %s", api.ErrPermissionDenied, decision.Reason))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireSystemScope admits only unnarrowed system scope. An admin using the
// overlay is treated as a tenant caller.
func RequireSystemScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope, ok := ScopeFrom(r.Context())
		if !ok {
			api.WriteError(w, r, api.ErrUnauthenticated)
			return
		}
		if scope.Kind != KindSystem {
			api.WriteError(w, r, fmt.Errorf("%w: system scope required", api.ErrPermissionDenied))
			return
		}
		next.ServeHTTP(w, r)
	})
}
