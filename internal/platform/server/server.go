package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rentaldesk/rentaldesk/internal/account"
	"github.com/rentaldesk/rentaldesk/internal/audit"
	"github.com/rentaldesk/rentaldesk/internal/auth"
	"github.com/rentaldesk/rentaldesk/internal/booking"
	"github.com/rentaldesk/rentaldesk/internal/dashboard"
	"github.com/rentaldesk/rentaldesk/internal/fleet"
	"github.com/rentaldesk/rentaldesk/internal/media"
	"github.com/rentaldesk/rentaldesk/internal/platform/middleware"
	"github.com/rentaldesk/rentaldesk/internal/platform/telemetry"
	"github.com/rentaldesk/rentaldesk/internal/rbac"
	"github.com/rentaldesk/rentaldesk/internal/task"
	"github.com/rentaldesk/rentaldesk/internal/tenant"
)

// Dependencies holds all injected dependencies for the server.
type Dependencies struct {
	Pool       *pgxpool.Pool
	Auth       *auth.TokenService
	Identities auth.IdentityLoader
	Scopes     rbac.ScopeResolver
	RBAC       *rbac.Evaluator

	AccountHandler   *account.Handler
	TenantHandler    *tenant.Handler
	FleetHandler     *fleet.Handler
	BookingHandler   *booking.Handler
	TaskHandler      *task.Handler
	DashboardHandler *dashboard.Handler
	MediaHandler     *media.Handler
	AuditHandler     *audit.Handler

	// LoginLimit wraps the login and refresh routes. Nil disables throttling.
	LoginLimit func(http.Handler) http.Handler

	Metrics            *middleware.Metrics
	MetricsRegistry    *prometheus.Registry
	TracingService     string
	Logger             *slog.Logger
	CORSAllowedOrigins []string
}

type Server struct {
	httpServer   *http.Server
	protectedMux *http.ServeMux
	pool         *pgxpool.Pool
	handler      http.Handler
}

func New(addr string, deps Dependencies) *Server {
	protectedMux := http.NewServeMux()

	// Identity first, then scope; every protected route sees both.
	var protectedHandler http.Handler = protectedMux
	if deps.Scopes != nil {
		protectedHandler = rbac.ResolveScope(deps.Scopes)(protectedHandler)
	}
	if deps.Auth != nil && deps.Identities != nil {
		protectedHandler = auth.Middleware(deps.Auth, deps.Identities)(protectedHandler)
	} else {
		protectedHandler = denyAll()
	}

	topMux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		protectedMux: protectedMux,
		pool:         deps.Pool,
	}

	// Public routes (no auth required)
	topMux.HandleFunc("GET /healthz", s.handleHealth)
	topMux.HandleFunc("GET /readyz", s.handleReadiness)
	if deps.MetricsRegistry != nil {
		topMux.Handle("GET /metrics", telemetry.MetricsHandler(deps.MetricsRegistry))
	}
	if deps.AccountHandler != nil {
		limit := deps.LoginLimit
		if limit == nil {
			limit = func(next http.Handler) http.Handler { return next }
		}
		deps.AccountHandler.RegisterPublicRoutes(topMux, limit)
	}

	if deps.RBAC != nil {
		if deps.AccountHandler != nil {
			deps.AccountHandler.RegisterRoutes(protectedMux, deps.RBAC)
		}
		if deps.FleetHandler != nil {
			deps.FleetHandler.RegisterRoutes(protectedMux, deps.RBAC)
		}
		if deps.DashboardHandler != nil {
			deps.DashboardHandler.RegisterRoutes(protectedMux, deps.RBAC)
		}
		if deps.AuditHandler != nil {
			deps.AuditHandler.RegisterRoutes(protectedMux, deps.RBAC)
		}
	}
	// Mutation-backed handlers authorize inside their executors.
	if deps.TenantHandler != nil {
		deps.TenantHandler.RegisterRoutes(protectedMux)
	}
	if deps.BookingHandler != nil {
		deps.BookingHandler.RegisterRoutes(protectedMux)
	}
	if deps.TaskHandler != nil {
		deps.TaskHandler.RegisterRoutes(protectedMux)
	}
	if deps.MediaHandler != nil {
		deps.MediaHandler.RegisterRoutes(protectedMux)
	}

	// All other routes go through auth middleware
	topMux.Handle("/", protectedHandler)

	var handler http.Handler = topMux
	handler = middleware.CaptureClient(handler)
	if len(deps.CORSAllowedOrigins) > 0 {
		handler = middleware.CORS(deps.CORSAllowedOrigins)(handler)
	}
	handler = middleware.RequestID(handler)
	if deps.Logger != nil {
		handler = middleware.Logging(deps.Logger)(handler)
	}
	handler = deps.Metrics.Instrument(handler)
	if deps.TracingService != "" {
		handler = middleware.Tracing(deps.TracingService)(handler)
	}

	s.handler = handler
	s.httpServer.Handler = handler
	return s
}

// Handler returns the full middleware-wrapped handler chain (for testing).
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ProtectedMux returns the mux for authenticated routes.
func (s *Server) ProtectedMux() *http.ServeMux {
	return s.protectedMux
}

func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}

	slog.Info("server starting", "addr", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// denyAll stands in for the auth chain when no token service is wired.
func denyAll() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.pool == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database not connected",
		})
		return
	}

	if err := s.pool.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database ping failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
