package account

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rentaldesk/rentaldesk/internal/audit"
	"github.com/rentaldesk/rentaldesk/internal/auth"
	"github.com/rentaldesk/rentaldesk/internal/platform/api"
	"github.com/rentaldesk/rentaldesk/internal/platform/database"
	"github.com/rentaldesk/rentaldesk/internal/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAccounts struct {
	hashes     map[string]string // email -> hash
	ids        map[string]string // email -> id
	identities map[string]*auth.Identity
	calls      []string
	profileErr error
	nextID     int
	listedFor  *int64
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{hashes: map[string]string{}, ids: map[string]string{}, identities: map[string]*auth.Identity{}}
}

func (f *fakeAccounts) add(t *testing.T, email, password string, role auth.Role, status string) string {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	f.nextID++
	id := fmt.Sprintf("user-%d", f.nextID)
	f.hashes[email], f.ids[email] = hash, id
	f.identities[id] = &auth.Identity{UserID: id, Email: email, Role: role, Status: status}
	return id
}

func (f *fakeAccounts) FindCredentials(_ context.Context, email string) (string, string, error) {
	id, ok := f.ids[email]
	if !ok {
		return "", "", auth.ErrUserNotFound
	}
	return id, f.hashes[email], nil
}

func (f *fakeAccounts) GetIdentity(_ context.Context, userID string) (*auth.Identity, error) {
	id, ok := f.identities[userID]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	cp := *id
	return &cp, nil
}

func (f *fakeAccounts) CreateAuthUser(_ context.Context, email, _ string) (string, error) {
	f.calls = append(f.calls, "create auth "+email)
	if _, taken := f.ids[email]; taken {
		return "", fmt.Errorf("%w: %s", auth.ErrEmailTaken, email)
	}
	f.nextID++
	id := fmt.Sprintf("user-%d", f.nextID)
	f.ids[email] = id
	return id, nil
}

func (f *fakeAccounts) DeleteAuthUser(_ context.Context, userID string) error {
	f.calls = append(f.calls, "delete auth "+userID)
	return nil
}

func (f *fakeAccounts) CreateProfile(_ context.Context, identity *auth.Identity) error {
	f.calls = append(f.calls, "create profile "+identity.UserID)
	if f.profileErr != nil {
		return f.profileErr
	}
	cp := *identity
	f.identities[identity.UserID] = &cp
	return nil
}

func (f *fakeAccounts) DeleteProfile(_ context.Context, userID string) error {
	f.calls = append(f.calls, "delete profile "+userID)
	delete(f.identities, userID)
	return nil
}

func (f *fakeAccounts) update(userID string, set func(*auth.Identity)) (*auth.Identity, *auth.Identity, error) {
	cur, ok := f.identities[userID]
	if !ok {
		return nil, nil, auth.ErrUserNotFound
	}
	before := *cur
	set(cur)
	after := *cur
	return &before, &after, nil
}

func (f *fakeAccounts) UpdateRole(_ context.Context, userID string, role auth.Role) (*auth.Identity, *auth.Identity, error) {
	return f.update(userID, func(i *auth.Identity) { i.Role = role })
}

func (f *fakeAccounts) SetStatus(_ context.Context, userID, status string) (*auth.Identity, *auth.Identity, error) {
	return f.update(userID, func(i *auth.Identity) { i.Status = status })
}

func (f *fakeAccounts) List(_ context.Context, _ api.ListParams, companyID *int64) ([]auth.Identity, int, error) {
	f.listedFor = companyID
	return []auth.Identity{}, 0, nil
}

type fakeSessions struct{ refreshUser string }

func (fakeSessions) Issue(_ context.Context, userID string) (*auth.TokenPair, error) {
	return &auth.TokenPair{AccessToken: "access-" + userID, RefreshToken: "refresh-" + userID, TokenType: "Bearer"}, nil
}

func (f fakeSessions) Refresh(_ context.Context, raw string) (*auth.TokenPair, string, error) {
	if raw != "good" {
		return nil, "", auth.ErrTokenReuse
	}
	return &auth.TokenPair{AccessToken: "next"}, f.refreshUser, nil
}

type fakeRevoker struct {
	revoked []string
	err     error
}

func (f *fakeRevoker) RevokeAllForUser(_ context.Context, userID string) error {
	if f.err != nil {
		return f.err
	}
	f.revoked = append(f.revoked, userID)
	return nil
}

type fakeManagers struct {
	accounts    *fakeAccounts
	err         error
	unassignErr error
	assigned    map[string]int64
	unassigned  []string
}

func (f *fakeManagers) Assign(_ context.Context, _ database.Querier, companyID int64, userID string) error {
	f.accounts.calls = append(f.accounts.calls, fmt.Sprintf("assign %s to %d", userID, companyID))
	if f.err != nil {
		return f.err
	}
	f.assigned[userID] = companyID
	return nil
}

func (f *fakeManagers) Unassign(_ context.Context, _ database.Querier, userID string) error {
	if f.unassignErr != nil {
		return f.unassignErr
	}
	f.unassigned = append(f.unassigned, userID)
	return nil
}

type fakeRunner struct{ sessions []database.Session }

func (r *fakeRunner) Run(ctx context.Context, s database.Session, fn func(context.Context, database.Querier) error) error {
	r.sessions = append(r.sessions, s)
	return fn(ctx, nil)
}

type recLogger struct {
	mu     sync.Mutex
	events []audit.Event
}

func (l *recLogger) Log(_ context.Context, e audit.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

type fixture struct {
	accounts *fakeAccounts
	sessions *fakeSessions
	revoker  *fakeRevoker
	managers *fakeManagers
	runner   *fakeRunner
	audit    *recLogger
	svc      *Service
}

func newFixture() *fixture {
	f := &fixture{
		accounts: newFakeAccounts(),
		sessions: &fakeSessions{},
		revoker:  &fakeRevoker{},
		runner:   &fakeRunner{},
		audit:    &recLogger{},
	}
	f.managers = &fakeManagers{accounts: f.accounts, assigned: map[string]int64{}}
	f.svc = NewService(f.accounts, f.sessions, f.revoker, f.managers, f.runner, f.audit)
	return f
}

func TestLogin(t *testing.T) {
	f := newFixture()
	id := f.accounts.add(t, "owner@example.com", "correct horse", auth.RoleOwner, auth.StatusActive)

	pair, err := f.svc.Login(context.Background(), "owner@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "access-"+id, pair.AccessToken)

	require.Len(t, f.audit.events, 1)
	assert.Equal(t, audit.ActionLogin, f.audit.events[0].Action)
	assert.Equal(t, id, f.audit.events[0].ActorID)
}

func TestLogin_Rejections(t *testing.T) {
	f := newFixture()
	f.accounts.add(t, "owner@example.com", "correct horse", auth.RoleOwner, auth.StatusActive)
	f.accounts.add(t, "gone@example.com", "correct horse", auth.RoleClient, auth.StatusRevoked)

	_, wrongPassword := f.svc.Login(context.Background(), "owner@example.com", "battery staple")
	_, unknownEmail := f.svc.Login(context.Background(), "nobody@example.com", "battery staple")
	_, revoked := f.svc.Login(context.Background(), "gone@example.com", "correct horse")

	for _, err := range []error{wrongPassword, unknownEmail, revoked} {
		assert.ErrorIs(t, err, api.ErrUnauthenticated)
	}
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
	assert.ErrorIs(t, revoked, auth.ErrIdentityRevoked)
	assert.Empty(t, f.audit.events)
}

func TestRefresh(t *testing.T) {
	f := newFixture()
	id := f.accounts.add(t, "m@example.com", "secret-pass", auth.RoleManager, auth.StatusActive)
	f.sessions.refreshUser = id

	pair, err := f.svc.Refresh(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "next", pair.AccessToken)

	_, err = f.svc.Refresh(context.Background(), "replayed")
	assert.ErrorIs(t, err, api.ErrUnauthenticated)

	f.accounts.identities[id].Status = auth.StatusRevoked
	_, err = f.svc.Refresh(context.Background(), "good")
	assert.ErrorIs(t, err, auth.ErrIdentityRevoked)
}

func TestCreateUser_OwnerAddsManagerToOwnCompany(t *testing.T) {
	f := newFixture()
	scope := rbac.Tenant(7, "owner-1")

	created, err := f.svc.CreateUser(context.Background(), scope, NewUser{
		Email: "new@example.com", Password: "long enough", FullName: "New Manager", Role: "manager",
	})
	require.NoError(t, err)
	assert.Equal(t, auth.RoleManager, created.Role)
	assert.Equal(t, int64(7), f.managers.assigned[created.UserID])
	assert.Equal(t, "tenant", f.runner.sessions[0].Kind)

	require.Len(t, f.audit.events, 1)
	assert.Equal(t, audit.ActionCreate, f.audit.events[0].Action)
	assert.Equal(t, int64(7), *f.audit.events[0].CompanyID)
}

func TestCreateUser_FailedStepIsCompensated(t *testing.T) {
	f := newFixture()
	f.managers.err = errors.New("duplicate key value violates unique constraint")

	_, err := f.svc.CreateUser(context.Background(), rbac.System("admin"), NewUser{
		Email: "m@example.com", Password: "long enough", FullName: "M", Role: "manager", CompanyID: ptr(int64(3)),
	})
	require.Error(t, err)
	assert.Equal(t, []string{
		"create auth m@example.com",
		"create profile user-1",
		"assign user-1 to 3",
		"delete profile user-1",
		"delete auth user-1",
	}, f.accounts.calls)
	assert.Empty(t, f.audit.events)
}

func TestCreateUser_Rules(t *testing.T) {
	tests := []struct {
		name  string
		scope rbac.Scope
		in    NewUser
		want  error
	}{
		{"owner cannot mint owners", rbac.Tenant(7, "o"), NewUser{Role: "owner"}, api.ErrPermissionDenied},
		{"owner cannot target another company", rbac.Tenant(7, "o"), NewUser{Role: "client", CompanyID: ptr(int64(9))}, api.ErrPermissionDenied},
		{"self scope cannot create", rbac.Self("u"), NewUser{Role: "client"}, api.ErrPermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			tt.in.Email, tt.in.Password, tt.in.FullName = "x@example.com", "long enough", "X"
			_, err := f.svc.CreateUser(context.Background(), tt.scope, tt.in)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, f.accounts.calls)
		})
	}

	f := newFixture()
	_, err := f.svc.CreateUser(context.Background(), rbac.System("admin"), NewUser{
		Email: "m@example.com", Password: "long enough", FullName: "M", Role: "manager",
	})
	var verr *api.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "company_id")
}

func TestCreateUser_EmailTaken(t *testing.T) {
	f := newFixture()
	f.accounts.add(t, "dup@example.com", "long enough", auth.RoleClient, auth.StatusActive)

	_, err := f.svc.CreateUser(context.Background(), rbac.System("admin"), NewUser{
		Email: "dup@example.com", Password: "long enough", FullName: "D", Role: "client",
	})
	assert.ErrorIs(t, err, api.ErrConflict)
}

func TestChangeRole(t *testing.T) {
	f := newFixture()
	id := f.accounts.add(t, "m@example.com", "long enough", auth.RoleManager, auth.StatusActive)

	after, err := f.svc.ChangeRole(context.Background(), id, "client")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleClient, after.Role)
	assert.Equal(t, []string{id}, f.revoker.revoked)
	assert.Equal(t, []string{id}, f.managers.unassigned)

	require.Len(t, f.audit.events, 1)
	e := f.audit.events[0]
	assert.Equal(t, audit.ActionRoleChange, e.Action)
	assert.Equal(t, auth.RoleManager, e.Before.(*auth.Identity).Role)

	_, err = f.svc.ChangeRole(context.Background(), id, "superuser")
	var verr *api.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = f.svc.ChangeRole(context.Background(), "missing", "owner")
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestSetStatus_RevokeEndsSessions(t *testing.T) {
	f := newFixture()
	id := f.accounts.add(t, "c@example.com", "long enough", auth.RoleClient, auth.StatusActive)

	_, err := f.svc.SetStatus(context.Background(), id, auth.StatusRevoked)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, f.revoker.revoked)

	_, err = f.svc.SetStatus(context.Background(), id, "paused")
	var verr *api.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestChangeRole_CleanupFailureStillAudits(t *testing.T) {
	f := newFixture()
	f.revoker.err = errors.New("db down")
	f.managers.unassignErr = errors.New("db down")
	id := f.accounts.add(t, "m@example.com", "long enough", auth.RoleManager, auth.StatusActive)

	after, err := f.svc.ChangeRole(context.Background(), id, "client")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleClient, after.Role)
	assert.Equal(t, auth.RoleClient, f.accounts.identities[id].Role)

	require.Len(t, f.audit.events, 1)
	assert.Equal(t, audit.ActionRoleChange, f.audit.events[0].Action)
}

func TestSetStatus_RevokerFailureStillAudits(t *testing.T) {
	f := newFixture()
	f.revoker.err = errors.New("db down")
	id := f.accounts.add(t, "c@example.com", "long enough", auth.RoleClient, auth.StatusActive)

	after, err := f.svc.SetStatus(context.Background(), id, auth.StatusRevoked)
	require.NoError(t, err)
	assert.Equal(t, auth.StatusRevoked, after.Status)
	assert.False(t, f.accounts.identities[id].Active())
	require.Len(t, f.audit.events, 1)

	// The stale refresh family is still refused once the account is revoked.
	f.sessions.refreshUser = id
	_, err = f.svc.Refresh(context.Background(), "good")
	assert.ErrorIs(t, err, api.ErrUnauthenticated)
}

func TestList_TenantSeesStaff(t *testing.T) {
	f := newFixture()
	_, _, err := f.svc.List(context.Background(), rbac.Tenant(4, "o"), api.ListParams{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.NotNil(t, f.accounts.listedFor)
	assert.Equal(t, int64(4), *f.accounts.listedFor)

	_, _, err = f.svc.List(context.Background(), rbac.Self("c"), api.ListParams{Page: 1, PageSize: 10})
	assert.ErrorIs(t, err, api.ErrPermissionDenied)
}

func TestHandleMe_Impersonation(t *testing.T) {
	h := NewHandler(newFixture().svc)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux, rbac.DefaultEvaluator())

	admin := &auth.Identity{UserID: "admin", Role: auth.RoleSystemAdmin, Status: auth.StatusActive}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me?admin_mode=true&company_id=12", nil)
	ctx := auth.WithIdentity(req.Context(), admin)
	ctx = rbac.WithImpersonation(ctx, 12)
	ctx = rbac.WithScope(ctx, rbac.Tenant(12, "admin"))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req.WithContext(ctx))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"scope":"tenant:12"`)
	assert.Contains(t, w.Body.String(), `"impersonating":true`)
}

func TestHandleChangeRole_RequiresUnnarrowedSystemScope(t *testing.T) {
	f := newFixture()
	id := f.accounts.add(t, "m@example.com", "long enough", auth.RoleManager, auth.StatusActive)
	mux := http.NewServeMux()
	NewHandler(f.svc).RegisterRoutes(mux, rbac.DefaultEvaluator())

	admin := &auth.Identity{UserID: "admin", Role: auth.RoleSystemAdmin, Status: auth.StatusActive}
	send := func(scope rbac.Scope) int {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/users/"+id+"/role", strings.NewReader(`{"role":"owner"}`))
		ctx := rbac.WithScope(auth.WithIdentity(req.Context(), admin), scope)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req.WithContext(ctx))
		return w.Code
	}

	assert.Equal(t, http.StatusForbidden, send(rbac.Tenant(3, "admin")))
	assert.Equal(t, http.StatusOK, send(rbac.System("admin")))
	assert.Equal(t, auth.RoleOwner, f.accounts.identities[id].Role)
}

func ptr[T any](v T) *T { return &v }
