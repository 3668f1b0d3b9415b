package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/rentaldesk/rentaldesk/internal/platform/middleware"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 64 << 10

// Envelope is the success body shape shared by every route.
type Envelope struct {
	Data       any  `json:"data"`
	TotalCount *int `json:"totalCount,omitempty"`
}

type errorBody struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteData writes {data} with the given status.
func WriteData(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, Envelope{Data: data})
}

// WriteList writes {data, totalCount}.
func WriteList(w http.ResponseWriter, data any, total int) {
	WriteJSON(w, http.StatusOK, Envelope{Data: data, TotalCount: &total})
}

// WriteError maps err onto the error taxonomy. Unclassified errors are
// logged with the request id and reported with a generic message.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		WriteJSON(w, http.StatusBadRequest, errorBody{Error: "validation failed", Details: verr.Fields})
	case errors.Is(err, ErrUnauthenticated):
		WriteJSON(w, http.StatusUnauthorized, errorBody{Error: err.Error()})
	case errors.Is(err, ErrPermissionDenied):
		WriteJSON(w, http.StatusForbidden, errorBody{Error: err.Error()})
	case errors.Is(err, ErrNotFound):
		WriteJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, ErrConflict):
		WriteJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	default:
		slog.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err,
		)
		WriteJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
	}
}

// DecodeJSON reads a bounded JSON body into dst and validates it.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return NewValidationError("body", fmt.Sprintf("invalid request body: %v", err))
	}
	return Validate(dst)
}

// PathID parses the {name} path segment as a positive int64.
func PathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, NewValidationError(name, "must be a positive integer")
	}
	return id, nil
}
