package audit_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/rentaldesk/rentaldesk/internal/audit"
	"github.com/rentaldesk/rentaldesk/internal/auth"
	"github.com/rentaldesk/rentaldesk/internal/platform/api"
	"github.com/rentaldesk/rentaldesk/internal/platform/database/dbtest"
	"github.com/rentaldesk/rentaldesk/internal/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v int64) *int64 { return &v }

func TestStore_InsertListGetClear(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := dbtest.Setup(t)
	store := audit.NewStore()
	ctx := context.Background()
	userID := dbtest.SeedUser(t, pool, "owner@example.com", "owner")

	require.NoError(t, store.Insert(ctx, pool, audit.Entry{
		UserID: &userID, Role: "owner", CompanyID: ptr(7),
		EntityType: "cars", EntityID: "1", Action: audit.ActionCreate,
		AfterState: json.RawMessage(`{"year":2020}`), IP: "unknown", UserAgent: "unknown",
	}))
	require.NoError(t, store.InsertBatch(ctx, pool, []audit.Entry{
		{Role: "system_admin", EntityType: "locations", EntityID: "2", Action: audit.ActionDelete,
			BeforeState: json.RawMessage(`{"name":"Batumi"}`), IP: "unknown", UserAgent: "unknown"},
		{Role: "manager", CompanyID: ptr(9), EntityType: "cars", EntityID: "3", Action: audit.ActionUpdate,
			IP: "unknown", UserAgent: "unknown"},
	}))

	all, total, err := store.List(ctx, pool, api.ListParams{Page: 1, PageSize: 10, SortOrder: "asc", SortBy: "createdAt"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, all, 3)

	mine, total, err := store.List(ctx, pool, api.ListParams{Page: 1, PageSize: 10}, ptr(7))
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, userID, *mine[0].UserID)
	assert.JSONEq(t, `{"year":2020}`, string(mine[0].AfterState))
	assert.Nil(t, mine[0].BeforeState)

	// Entries outside the tenant look absent.
	_, err = store.Get(ctx, pool, mine[0].ID, ptr(9))
	assert.ErrorIs(t, err, audit.ErrEntryNotFound)
	got, err := store.Get(ctx, pool, mine[0].ID, nil)
	require.NoError(t, err)
	assert.Equal(t, audit.ActionCreate, got.Action)

	deleted, err := store.Clear(ctx, pool)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
}

func TestHandler_ClearRecordsOneEntry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := dbtest.Setup(t)
	store := audit.NewStore()
	ctx := context.Background()
	adminID := dbtest.SeedUser(t, pool, "admin@example.com", "system_admin")
	authStore := auth.NewStore(pool)

	for i := 0; i < 4; i++ {
		require.NoError(t, store.Insert(ctx, pool, audit.Entry{
			Role: "owner", EntityType: "cars", EntityID: "1", Action: audit.ActionUpdate, IP: "unknown", UserAgent: "unknown",
		}))
	}

	recorder := audit.NewRecorder(authStore, rbac.NewResolver(nil), audit.NewDirectSink(store, pool), nil)
	h := audit.NewHandler(pool, store, recorder)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux, rbac.DefaultEvaluator())

	admin, err := authStore.GetIdentity(ctx, adminID)
	require.NoError(t, err)
	reqCtx := rbac.WithScope(auth.WithIdentity(ctx, admin), rbac.System(adminID))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/audit-logs", nil).WithContext(reqCtx))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"deleted":4}}`, w.Body.String())

	entries, total, err := store.List(ctx, pool, api.ListParams{Page: 1, PageSize: 10}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, audit.ActionClear, entries[0].Action)
	assert.Equal(t, "system_admin", entries[0].Role)
	assert.Nil(t, entries[0].CompanyID)

	// The entry detail carries a rendered diff.
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/audit-logs/"+strconv.FormatInt(entries[0].ID, 10), nil).WithContext(reqCtx))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"field":"deleted"`)
}

func TestHandler_ScopeRules(t *testing.T) {
	h := audit.NewHandler(nil, audit.NewStore(), audit.NopLogger{})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux, rbac.DefaultEvaluator())

	tests := []struct {
		name   string
		role   auth.Role
		scope  rbac.Scope
		method string
		status int
	}{
		{"manager lacks capability", auth.RoleManager, rbac.Tenant(7, "m"), http.MethodGet, http.StatusForbidden},
		{"owner cannot clear", auth.RoleOwner, rbac.Tenant(7, "o"), http.MethodDelete, http.StatusForbidden},
		{"impersonating admin cannot clear", auth.RoleSystemAdmin, rbac.Tenant(12, "a"), http.MethodDelete, http.StatusForbidden},
		{"owner without company", auth.RoleOwner, rbac.Self("o"), http.MethodGet, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := rbac.WithScope(auth.WithIdentity(context.Background(), &auth.Identity{UserID: "u", Role: tt.role}), tt.scope)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(tt.method, "/api/v1/audit-logs", nil).WithContext(ctx))
			assert.Equal(t, tt.status, w.Code)
		})
	}
}
