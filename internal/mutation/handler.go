package mutation

import (
	"net/http"

	"github.com/rentaldesk/rentaldesk/internal/platform/api"
	"github.com/rentaldesk/rentaldesk/internal/rbac"
)

// Handler exposes an Executor as the five collection routes under base,
// e.g. "/api/v1/cars".
type Handler[T Record, In any] struct {
	exec *Executor[T, In]
	base string
}

func NewHandler[T Record, In any](exec *Executor[T, In], base string) *Handler[T, In] {
	return &Handler[T, In]{exec: exec, base: base}
}

func (h *Handler[T, In]) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET "+h.base, h.HandleList)
	mux.HandleFunc("POST "+h.base, h.HandleCreate)
	mux.HandleFunc("GET "+h.base+"/{id}", h.HandleGet)
	mux.HandleFunc("PUT "+h.base+"/{id}", h.HandleUpdate)
	mux.HandleFunc("DELETE "+h.base+"/{id}", h.HandleDelete)
}

func (h *Handler[T, In]) HandleList(w http.ResponseWriter, r *http.Request) {
	p, err := api.ParseListParams(r.URL.Query())
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	items, total, err := h.exec.List(r.Context(), p)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	if items == nil {
		items = []T{}
	}
	api.WriteList(w, items, total)
}

func (h *Handler[T, In]) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := api.PathID(r, "id")
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	rec, err := h.exec.Get(r.Context(), id)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteData(w, http.StatusOK, rec)
}

func (h *Handler[T, In]) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if err := h.exec.Permitted(r.Context(), rbac.ActionCreate); err != nil {
		api.WriteError(w, r, err)
		return
	}
	var in In
	if err := api.DecodeJSON(w, r, &in); err != nil {
		api.WriteError(w, r, err)
		return
	}
	rec, err := h.exec.Create(r.Context(), in)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteData(w, http.StatusCreated, rec)
}

func (h *Handler[T, In]) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := api.PathID(r, "id")
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	if err := h.exec.Permitted(r.Context(), rbac.ActionUpdate); err != nil {
		api.WriteError(w, r, err)
		return
	}
	var in In
	if err := api.DecodeJSON(w, r, &in); err != nil {
		api.WriteError(w, r, err)
		return
	}
	rec, err := h.exec.Update(r.Context(), id, in)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	api.WriteData(w, http.StatusOK, rec)
}

func (h *Handler[T, In]) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := api.PathID(r, "id")
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	if err := h.exec.Delete(r.Context(), id); err != nil {
		api.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
