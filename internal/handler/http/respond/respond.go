// Package respond provides utilities for sending HTTP responses in JSON format.
// It includes error handling with sanitization to prevent leaking sensitive information.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"marketbrief/internal/domain/entity"
	"marketbrief/internal/observability/logging"
)

// JSON writes a JSON response with the given status code and data.
func JSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			slog.Default().Error("failed to encode JSON response",
				slog.Int("status_code", code),
				slog.Any("error", err))
		}
	}
}

// Error writes a JSON error response with the given status code and message.
func Error(w http.ResponseWriter, code int, err error) {
	JSON(w, code, map[string]string{"error": logging.RedactError(err)})
}

// DomainError maps a domain error onto its HTTP status: validation failures
// are 400, missing entities 404, uniqueness conflicts 409, anything else an
// opaque 500 with details logged server-side.
func DomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrValidation):
		Error(w, http.StatusBadRequest, err)
	case errors.Is(err, entity.ErrNotFound):
		Error(w, http.StatusNotFound, err)
	case errors.Is(err, entity.ErrConflict):
		Error(w, http.StatusConflict, err)
	default:
		slog.Default().Error("internal error", slog.String("error", logging.RedactError(err)))
		JSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
