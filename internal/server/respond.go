package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/free4inno/intent-hub/internal/domain"
)

// errorResponse is the uniform error body: a short kind and the concrete
// detail.
type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// statusClientClosedRequest is nginx's 499 for cancelled work; there is no
// stdlib constant.
const statusClientClosedRequest = 499

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := "internal error"
	switch {
	case errors.Is(err, domain.ErrValidation):
		status, kind = http.StatusBadRequest, "validation failed"
	case errors.Is(err, domain.ErrNotFound):
		status, kind = http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrAuth):
		status, kind = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrCancelled):
		status, kind = statusClientClosedRequest, "cancelled"
	case errors.Is(err, domain.ErrConflict):
		status, kind = http.StatusInternalServerError, "conflict"
	case errors.Is(err, domain.ErrBackendUnavailable):
		status, kind = http.StatusInternalServerError, "backend unavailable"
	}
	writeJSON(w, status, errorResponse{Error: kind, Detail: err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: bad request body: %v", domain.ErrValidation, err)
	}
	return nil
}
