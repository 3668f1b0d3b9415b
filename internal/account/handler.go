package account

import (
	"net/http"

	"github.com/rentaldesk/rentaldesk/internal/auth"
	"github.com/rentaldesk/rentaldesk/internal/platform/api"
	"github.com/rentaldesk/rentaldesk/internal/rbac"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterPublicRoutes mounts the unauthenticated routes. limit wraps
// login so password guessing is throttled.
func (h *Handler) RegisterPublicRoutes(mux *http.ServeMux, limit func(http.Handler) http.Handler) {
	mux.Handle("POST /api/v1/auth/login", limit(http.HandlerFunc(h.HandleLogin)))
	mux.Handle("POST /api/v1/auth/refresh", limit(http.HandlerFunc(h.HandleRefresh)))
}

// RegisterRoutes mounts the routes behind authentication and scope
// resolution.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, engine *rbac.Evaluator) {
	mux.HandleFunc("GET /api/v1/me", h.HandleMe)
	mux.Handle("GET /api/v1/users",
		rbac.RequirePermission(engine, "users:read")(http.HandlerFunc(h.HandleList)))
	mux.Handle("POST /api/v1/users",
		rbac.RequirePermission(engine, "users:create")(http.HandlerFunc(h.HandleCreate)))
	mux.Handle("PUT /api/v1/users/{id}/role",
		rbac.RequirePermission(engine, "users:update")(rbac.RequireSystemScope(http.HandlerFunc(h.HandleChangeRole))))
	mux.Handle("PUT /api/v1/users/{id}/status",
		rbac.RequirePermission(engine, "users:update")(rbac.RequireSystemScope(http.HandlerFunc(h.HandleSetStatus))))
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.WriteError(w, r, err)
		return
	}
	pair, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.WriteError(w, r, err)
		return
	}
	pair, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, pair)
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentity(r.Context())
	scope, ok := rbac.ScopeFrom(r.Context())
	if identity == nil || !ok {
		api.WriteError(w, r, api.ErrUnauthenticated)
		return
	}
	api.WriteData(w, http.StatusOK, Me{
		Identity:      identity,
		Scope:         scope.String(),
		CompanyID:     scope.Company(),
		Impersonating: rbac.ImpersonatedCompany(r.Context()) != nil,
	})
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	scope, ok := rbac.ScopeFrom(r.Context())
	if !ok {
		api.WriteError(w, r, api.ErrUnauthenticated)
		return
	}
	params, err := api.ParseListParams(r.URL.Query())
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	users, total, err := h.svc.List(r.Context(), scope, params)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteList(w, users, total)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	scope, ok := rbac.ScopeFrom(r.Context())
	if !ok {
		api.WriteError(w, r, api.ErrUnauthenticated)
		return
	}
	var req NewUser
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.WriteError(w, r, err)
		return
	}
	identity, err := h.svc.CreateUser(r.Context(), scope, req)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteData(w, http.StatusCreated, identity)
}

func (h *Handler) HandleChangeRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role string `json:"role" validate:"required"`
	}
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.WriteError(w, r, err)
		return
	}
	identity, err := h.svc.ChangeRole(r.Context(), r.PathValue("id"), req.Role)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteData(w, http.StatusOK, identity)
}

func (h *Handler) HandleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status" validate:"required"`
	}
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.WriteError(w, r, err)
		return
	}
	identity, err := h.svc.SetStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteData(w, http.StatusOK, identity)
}
