package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"sem/internal/config"
	"sem/internal/core"
	"sem/internal/log"
	"sem/internal/storage"
)

// errorPayload is the uniform error body. Field and Row are only set
// for validation failures.
type errorPayload struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
	Row   int    `json:"row,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses. Anything unmapped
// is a 500 and gets logged with its request id.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	payload := errorPayload{Error: err.Error()}

	var ferr *core.FieldError
	var berr *storage.BatchError

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &berr):
		status = http.StatusUnprocessableEntity
		payload.Row = berr.Row
		if berr.Err != nil {
			payload.Field = berr.Err.Field
		}
	case errors.As(err, &ferr):
		status = http.StatusUnprocessableEntity
		payload.Field = ferr.Field
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, config.ErrUnknownCategory):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrAlreadyExists), errors.Is(err, config.ErrDuplicateCategory):
		status = http.StatusConflict
	case errors.Is(err, storage.ErrEncoding), errors.Is(err, storage.ErrInvalidRecord):
		status = http.StatusBadRequest
	case errors.Is(err, config.ErrBadCategoryLetter):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, storage.ErrStoreClosed):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
		payload.Error = "internal error"
	}

	writeJSON(w, status, payload)
}

// requireMethod enforces the allowed methods, answering 405 itself.
func requireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	w.WriteHeader(http.StatusMethodNotAllowed)
	return false
}
