package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentaldesk/rentaldesk/internal/account"
	"github.com/rentaldesk/rentaldesk/internal/auth"
	"github.com/rentaldesk/rentaldesk/internal/dashboard"
	"github.com/rentaldesk/rentaldesk/internal/platform/middleware"
	"github.com/rentaldesk/rentaldesk/internal/platform/server"
	"github.com/rentaldesk/rentaldesk/internal/platform/telemetry"
	"github.com/rentaldesk/rentaldesk/internal/rbac"
)

func TestServer_HealthCheck(t *testing.T) {
	srv := server.New(":0", server.Dependencies{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	err := json.Unmarshal(w.Body.Bytes(), &body)
	require.NoError(t, err)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestServer_ReadinessCheck_NoDB(t *testing.T) {
	srv := server.New(":0", server.Dependencies{})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServer_ProtectedWithoutAuthConfigured(t *testing.T) {
	srv := server.New(":0", server.Dependencies{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cars", nil)
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServer_StartStop(t *testing.T) {
	srv := server.New("127.0.0.1:0", server.Dependencies{})

	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	cancel()

	err := <-errCh
	assert.NoError(t, err)
}

type identities map[string]*auth.Identity

func (m identities) GetIdentity(_ context.Context, userID string) (*auth.Identity, error) {
	identity, ok := m[userID]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return identity, nil
}

type staticScopes map[string]rbac.Scope

func (m staticScopes) Resolve(_ context.Context, identity *auth.Identity) (rbac.Scope, error) {
	return m[identity.UserID], nil
}

func newTestDeps() (server.Dependencies, *auth.TokenService) {
	tokenSvc := auth.NewTokenService("test-signing-key-must-be-32-chars!!", "rentaldesk", 24, 168)
	users := identities{
		"admin-1":  {UserID: "admin-1", Role: auth.RoleSystemAdmin, Status: auth.StatusActive},
		"owner-1":  {UserID: "owner-1", Role: auth.RoleOwner, Status: auth.StatusActive},
		"client-1": {UserID: "client-1", Role: auth.RoleClient, Status: auth.StatusActive},
		"gone-1":   {UserID: "gone-1", Role: auth.RoleManager, Status: auth.StatusRevoked},
	}
	scopes := staticScopes{
		"admin-1":  rbac.System("admin-1"),
		"owner-1":  rbac.Tenant(7, "owner-1"),
		"client-1": rbac.Self("client-1"),
	}
	return server.Dependencies{
		Auth:             tokenSvc,
		Identities:       users,
		Scopes:           scopes,
		RBAC:             rbac.DefaultEvaluator(),
		AccountHandler:   account.NewHandler(nil),
		DashboardHandler: dashboard.NewHandler(nil),
	}, tokenSvc
}

func getMe(t *testing.T, h http.Handler, token, query string) (int, account.Me) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me"+query, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var body struct {
		Data account.Me `json:"data"`
	}
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w.Code, body.Data
}

func TestServer_Me_ResolvesScope(t *testing.T) {
	deps, tokenSvc := newTestDeps()
	srv := server.New(":0", deps)

	token, err := tokenSvc.CreateAccessToken("owner-1")
	require.NoError(t, err)

	code, me := getMe(t, srv.Handler(), token, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "tenant:7", me.Scope)
	require.NotNil(t, me.CompanyID)
	assert.Equal(t, int64(7), *me.CompanyID)
	assert.False(t, me.Impersonating)
}

func TestServer_Me_AdminOverlay(t *testing.T) {
	deps, tokenSvc := newTestDeps()
	srv := server.New(":0", deps)

	admin, err := tokenSvc.CreateAccessToken("admin-1")
	require.NoError(t, err)
	owner, err := tokenSvc.CreateAccessToken("owner-1")
	require.NoError(t, err)

	code, me := getMe(t, srv.Handler(), admin, "?admin_mode=true&company_id=12")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "tenant:12", me.Scope)
	assert.True(t, me.Impersonating)

	code, me = getMe(t, srv.Handler(), admin, "?company_id=12")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "system", me.Scope)

	// Non-admins cannot narrow into another company.
	code, me = getMe(t, srv.Handler(), owner, "?admin_mode=true&company_id=12")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "tenant:7", me.Scope)
	assert.False(t, me.Impersonating)
}

func TestServer_RejectsRevokedAndRefreshTokens(t *testing.T) {
	deps, tokenSvc := newTestDeps()
	srv := server.New(":0", deps)

	revoked, err := tokenSvc.CreateAccessToken("gone-1")
	require.NoError(t, err)
	code, _ := getMe(t, srv.Handler(), revoked, "")
	assert.Equal(t, http.StatusUnauthorized, code)

	refresh, err := tokenSvc.CreateRefreshToken("owner-1", "family-1", 1)
	require.NoError(t, err)
	code, _ = getMe(t, srv.Handler(), refresh, "")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = getMe(t, srv.Handler(), "", "")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestServer_CapabilityGate(t *testing.T) {
	deps, tokenSvc := newTestDeps()
	srv := server.New(":0", deps)

	token, err := tokenSvc.CreateAccessToken("client-1")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestServer_LoginIsRateLimited(t *testing.T) {
	deps, _ := newTestDeps()
	deps.LoginLimit = middleware.RateLimiter(
		middleware.NewMemoryRateLimitStore(),
		middleware.RateLimit{Requests: 1, Window: time.Minute},
		middleware.IPKey("login"),
		nil,
	)
	srv := server.New(":0", deps)

	login := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{}`))
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusBadRequest, login().Code)
	w := login()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestServer_MetricsEndpoint(t *testing.T) {
	reg := telemetry.NewRegistry()
	metrics := middleware.NewMetrics()
	require.NoError(t, metrics.Register(reg))

	srv := server.New(":0", server.Dependencies{Metrics: metrics, MetricsRegistry: reg})

	srv.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/healthz")
}
