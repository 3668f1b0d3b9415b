package audit

import (
	"fmt"
	"net/http"

	"github.com/rentaldesk/rentaldesk/internal/platform/api"
	"github.com/rentaldesk/rentaldesk/internal/platform/database"
	"github.com/rentaldesk/rentaldesk/internal/rbac"
)

// Handler serves audit query endpoints.
type Handler struct {
	db     database.Querier
	store  *Store
	logger Logger
}

func NewHandler(db database.Querier, store *Store, logger Logger) *Handler {
	return &Handler{db: db, store: store, logger: logger}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux, engine *rbac.Evaluator) {
	read := rbac.RequirePermission(engine, "audit_logs:read")
	mux.Handle("GET /api/v1/audit-logs", read(http.HandlerFunc(h.HandleList)))
	mux.Handle("GET /api/v1/audit-logs/{id}", read(http.HandlerFunc(h.HandleGet)))
	mux.Handle("DELETE /api/v1/audit-logs",
		rbac.RequirePermission(engine, "audit_logs:delete")(rbac.RequireSystemScope(http.HandlerFunc(h.HandleClear))))
}

// visibleCompany returns the company filter for the caller: nil for system
// scope, the tenant for tenant scope. Self scope sees no entries.
func visibleCompany(r *http.Request) (*int64, error) {
	scope, ok := rbac.ScopeFrom(r.Context())
	if !ok {
		return nil, api.ErrUnauthenticated
	}
	switch scope.Kind {
	case rbac.KindSystem:
		return nil, nil
	case rbac.KindTenant:
		return scope.Company(), nil
	default:
		return nil, fmt.Errorf("%w: audit log requires a company scope", api.ErrPermissionDenied)
	}
}

// HandleList returns a page of entries.
// GET /api/v1/audit-logs?page=1&pageSize=20&filters={"entityType":"cars"}
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	company, err := visibleCompany(r)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	params, err := api.ParseListParams(r.URL.Query())
	if err != nil {
		api.WriteError(w, r, err)
		return
	}

	entries, total, err := h.store.List(r.Context(), h.db, params, company)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteList(w, entries, total)
}

type entryDetail struct {
	Entry
	Changes []Change `json:"changes"`
}

// HandleGet returns one entry with its rendered diff.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	company, err := visibleCompany(r)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	id, err := api.PathID(r, "id")
	if err != nil {
		api.WriteError(w, r, err)
		return
	}

	entry, err := h.store.Get(r.Context(), h.db, id, company)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}

	changes, err := Diff(entry.BeforeState, entry.AfterState)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteData(w, http.StatusOK, entryDetail{Entry: entry, Changes: changes})
}

// HandleClear wipes the log and records one clear entry afterwards.
func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.store.Clear(r.Context(), h.db)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}

	h.logger.Log(r.Context(), Event{
		EntityType: "audit_logs",
		EntityID:   "*",
		Action:     ActionClear,
		After:      map[string]int64{"deleted": deleted},
	})
	api.WriteData(w, http.StatusOK, map[string]int64{"deleted": deleted})
}
