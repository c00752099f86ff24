package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"budget/internal/core"
)

// messageResponse is the body of every non-2xx JSON response and of the
// plain acknowledgements.
type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "Failed to encode response", "error", err, "url", r.URL.Path)
	}
}

func writeMessage(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, messageResponse{Message: msg})
}

// writeError maps err onto the HTTP error taxonomy. Anything it does not
// recognise is treated as a store failure: logged, and reported as 500.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		writeMessage(w, r, http.StatusBadRequest, ve.Error())
	case errors.Is(err, core.ErrValidation):
		writeMessage(w, r, http.StatusBadRequest, "Invalid request")
	case errors.Is(err, core.ErrUnauthorized):
		writeMessage(w, r, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, core.ErrNotFound):
		writeMessage(w, r, http.StatusNotFound, "Not found")
	case errors.Is(err, core.ErrDuplicateEmail):
		writeMessage(w, r, http.StatusConflict, "User exists")
	default:
		slog.ErrorContext(r.Context(), "Request failed",
			"operation", op,
			"store_unavailable", errors.Is(err, core.ErrStoreUnavailable),
			"error", err)
		writeMessage(w, r, http.StatusInternalServerError, "Internal server error")
	}
}

// sanitizeInput removes control characters (except tab and newlines) and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
