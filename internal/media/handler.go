package media

import (
	"context"
	"errors"
	"net/http"

	"github.com/rentaldesk/rentaldesk/internal/fleet"
	"github.com/rentaldesk/rentaldesk/internal/platform/api"
	"github.com/rentaldesk/rentaldesk/internal/rbac"
)

// CarAuthorizer runs the car permission pipeline without writing.
type CarAuthorizer interface {
	Authorize(ctx context.Context, id int64, action rbac.Action) (fleet.Car, error)
}

type Handler struct {
	cars      CarAuthorizer
	presigner *Presigner // nil when storage is disabled
}

func NewHandler(cars CarAuthorizer, presigner *Presigner) *Handler {
	return &Handler{cars: cars, presigner: presigner}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/cars/{id}/image-upload", h.HandleCarImage)
}

type uploadRequest struct {
	ContentType string `json:"content_type" validate:"required"`
	SizeBytes   int64  `json:"size_bytes" validate:"required,gt=0"`
}

// HandleCarImage returns a presigned PUT for a photo of a car the caller
// may update. The client stores the returned key on the car afterwards.
func (h *Handler) HandleCarImage(w http.ResponseWriter, r *http.Request) {
	if h.presigner == nil {
		api.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"error": ErrStorageDisabled.Error()})
		return
	}

	id, err := api.PathID(r, "id")
	if err != nil {
		api.WriteError(w, r, err)
		return
	}
	var req uploadRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.WriteError(w, r, err)
		return
	}
	car, err := h.cars.Authorize(r.Context(), id, rbac.ActionUpdate)
	if err != nil {
		api.WriteError(w, r, err)
		return
	}

	upload, err := h.presigner.PresignCarImage(r.Context(), car.CompanyID, car.ID, req.ContentType, req.SizeBytes)
	switch {
	case errors.Is(err, ErrUnsupportedType):
		api.WriteError(w, r, api.NewValidationError("content_type", "must be image/jpeg, image/png or image/webp"))
		return
	case errors.Is(err, ErrTooLarge):
		api.WriteError(w, r, api.NewValidationError("size_bytes", err.Error()))
		return
	case err != nil:
		api.WriteError(w, r, err)
		return
	}
	api.WriteData(w, http.StatusOK, upload)
}
