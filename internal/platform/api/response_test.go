package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError_Taxonomy(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"unauthenticated", ErrUnauthenticated, http.StatusUnauthorized, "authentication required"},
		{"forbidden", fmt.Errorf("%w: outside tenant", ErrPermissionDenied), http.StatusForbidden, "outside tenant"},
		{"not found", fmt.Errorf("%w: car", ErrNotFound), http.StatusNotFound, "car"},
		{"conflict", fmt.Errorf("%w: plate taken", ErrConflict), http.StatusConflict, "plate taken"},
		{"validation", NewValidationError("year", "is required"), http.StatusBadRequest, "is required"},
		{"store failure", errors.New("connection reset by peer"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/cars", nil)
			w := httptest.NewRecorder()

			WriteError(w, req, tt.err)

			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
		})
	}
}

func TestWriteError_HidesStoreDetails(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	WriteError(w, req, errors.New("pq: password authentication failed"))

	assert.NotContains(t, w.Body.String(), "password")
}

func TestWriteList_Envelope(t *testing.T) {
	w := httptest.NewRecorder()
	WriteList(w, []string{"a", "b"}, 42)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(42), body["totalCount"])
	assert.Len(t, body["data"], 2)
}

func TestWriteData_OmitsTotal(t *testing.T) {
	w := httptest.NewRecorder()
	WriteData(w, http.StatusCreated, map[string]int{"id": 1})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.NotContains(t, w.Body.String(), "totalCount")
}

type payload struct {
	Name   string          `json:"name" validate:"required"`
	Status string          `json:"status" validate:"required,oneof=draft active"`
	Amount decimal.Decimal `json:"amount" validate:"gte=0"`
}

func TestDecodeJSON_ValidationDetails(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"status":"bogus","amount":"-5"}`))
	w := httptest.NewRecorder()

	var p payload
	err := DecodeJSON(w, req, &p)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "is required", verr.Fields["name"])
	assert.Equal(t, "must be one of: draft active", verr.Fields["status"])
	assert.Equal(t, "must be at least 0", verr.Fields["amount"])
}

func TestDecodeJSON_RejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","status":"draft","role":"system_admin"}`))
	w := httptest.NewRecorder()

	var p payload
	err := DecodeJSON(w, req, &p)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "body")
}

func TestPathID(t *testing.T) {
	mux := http.NewServeMux()
	var got int64
	var gotErr error
	mux.HandleFunc("GET /cars/{id}", func(w http.ResponseWriter, r *http.Request) {
		got, gotErr = PathID(r, "id")
	})

	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/cars/15", nil))
	require.NoError(t, gotErr)
	assert.Equal(t, int64(15), got)

	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/cars/abc", nil))
	assert.Error(t, gotErr)
}
