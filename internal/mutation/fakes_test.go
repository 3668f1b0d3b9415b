package mutation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rentaldesk/rentaldesk/internal/audit"
	"github.com/rentaldesk/rentaldesk/internal/auth"
	"github.com/rentaldesk/rentaldesk/internal/platform/api"
	"github.com/rentaldesk/rentaldesk/internal/platform/database"
	"github.com/rentaldesk/rentaldesk/internal/rbac"
)

type widget struct {
	ID        int64  `json:"id"`
	CompanyID *int64 `json:"company_id"`
	UserID    string `json:"user_id,omitempty"`
	Name      string `json:"name"`
}

func (w widget) RecordID() int64  { return w.ID }
func (w widget) TenantID() *int64 { return w.CompanyID }
func (w widget) OwnerID() string  { return w.UserID }

type widgetInput struct {
	Name       string `json:"name" validate:"required"`
	CompanyID  *int64 `json:"company_id"`
	LocationID *int64 `json:"location_id"`
}

func (in widgetInput) RequestedCompanyID() *int64 { return in.CompanyID }

func (in widgetInput) Validate() error {
	if in.Name == "reserved" {
		return api.NewValidationError("name", "is reserved")
	}
	return nil
}

func (in widgetInput) References() []Reference {
	return []Reference{{Field: "location_id", Table: "locations", ID: in.LocationID}}
}

func ptr(v int64) *int64 { return &v }

type memStore struct {
	mu      sync.Mutex
	rows    map[int64]widget
	nextID  int64
	writes  int
	failErr error
	lastRS  api.Restriction
}

func newMemStore(rows ...widget) *memStore {
	s := &memStore{rows: make(map[int64]widget), nextID: 100}
	for _, r := range rows {
		s.rows[r.ID] = r
	}
	return s
}

func (s *memStore) Get(_ context.Context, _ database.Querier, id int64) (widget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.rows[id]
	if !ok {
		return widget{}, fmt.Errorf("%w: widget %d", api.ErrNotFound, id)
	}
	return w, nil
}

func (s *memStore) Insert(_ context.Context, _ database.Querier, companyID *int64, in widgetInput) (widget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return widget{}, s.failErr
	}
	s.writes++
	s.nextID++
	w := widget{ID: s.nextID, CompanyID: companyID, Name: in.Name}
	s.rows[w.ID] = w
	return w, nil
}

func (s *memStore) Update(_ context.Context, _ database.Querier, id int64, in widgetInput) (widget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return widget{}, s.failErr
	}
	w, ok := s.rows[id]
	if !ok {
		return widget{}, fmt.Errorf("%w: widget %d", api.ErrNotFound, id)
	}
	s.writes++
	w.Name = in.Name
	s.rows[id] = w
	return w, nil
}

func (s *memStore) Delete(_ context.Context, _ database.Querier, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	if _, ok := s.rows[id]; !ok {
		return fmt.Errorf("%w: widget %d", api.ErrNotFound, id)
	}
	s.writes++
	delete(s.rows, id)
	return nil
}

func (s *memStore) List(_ context.Context, _ database.Querier, _ api.ListParams, rs api.Restriction) ([]widget, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRS = rs
	var out []widget
	for _, w := range s.rows {
		if rs.CompanyID != nil && (w.CompanyID == nil || *w.CompanyID != *rs.CompanyID) {
			continue
		}
		if rs.OwnerID != "" && w.UserID != rs.OwnerID {
			continue
		}
		out = append(out, w)
	}
	return out, len(out), nil
}

// refQuerier answers EXISTS lookups from a set of known ids.
type refQuerier struct {
	known map[int64]bool
}

func (q refQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (q refQuerier) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	id, _ := args[0].(int64)
	return boolRow(q.known[id])
}

func (q refQuerier) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

type boolRow bool

func (b boolRow) Scan(dest ...any) error {
	*(dest[0].(*bool)) = bool(b)
	return nil
}

type fakeRunner struct {
	mu       sync.Mutex
	sessions []database.Session
	q        refQuerier
}

func newRunner(knownLocations ...int64) *fakeRunner {
	known := make(map[int64]bool)
	for _, id := range knownLocations {
		known[id] = true
	}
	return &fakeRunner{q: refQuerier{known: known}}
}

func (r *fakeRunner) Run(ctx context.Context, s database.Session, fn func(context.Context, database.Querier) error) error {
	r.mu.Lock()
	r.sessions = append(r.sessions, s)
	r.mu.Unlock()
	return fn(ctx, r.q)
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

func (l *recLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

var widgetPolicy = Policy{
	Resource:    "widgets",
	Read:        rbac.KindTenant,
	Create:      rbac.KindTenant,
	Update:      rbac.KindTenant,
	Delete:      rbac.KindTenant,
	Tenanted:    true,
	SelfService: []rbac.Action{rbac.ActionRead, rbac.ActionUpdate},
	SelfList: func(userID string) api.Restriction {
		return api.Restriction{OwnerID: userID}
	},
}

func testEngine() *rbac.Evaluator {
	e := rbac.NewEvaluator()
	e.RegisterRole(auth.RoleSystemAdmin, []string{"*"})
	e.RegisterRole(auth.RoleManager, []string{"widgets:*"})
	e.RegisterRole(auth.RoleClient, []string{"widgets:read", "widgets:update"})
	return e
}

type fixture struct {
	store  *memStore
	runner *fakeRunner
	audit  *recLogger
	exec   *Executor[widget, widgetInput]
}

func newFixture(rows ...widget) *fixture {
	f := &fixture{store: newMemStore(rows...), runner: newRunner(1, 2), audit: &recLogger{}}
	f.exec = New[widget, widgetInput](widgetPolicy, f.store, Deps{
		Runner: f.runner,
		Engine: testEngine(),
		Audit:  f.audit,
	})
	return f
}

func as(role auth.Role, scope rbac.Scope) context.Context {
	ctx := auth.WithIdentity(context.Background(), &auth.Identity{
		UserID: scope.UserID,
		Role:   role,
		Status: auth.StatusActive,
	})
	return rbac.WithScope(ctx, scope)
}
