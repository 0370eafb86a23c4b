package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Tasour/wikipedia-graph/internal/apperr"
	"github.com/Tasour/wikipedia-graph/internal/session"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

// readJSON decodes a request body into v. On failure it answers 400 and
// returns false.
func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps session errors to status codes. A failed upstream load is
// reported with the same placeholder text the renderers show.
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrInvalidTitle):
		writeJSON(w, http.StatusBadRequest, errorBody("invalid title"))
	case errors.Is(err, apperr.ErrNoHistory):
		writeJSON(w, http.StatusConflict, errorBody("no history"))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrFetch):
		writeJSON(w, http.StatusBadGateway, errorBody(session.FailedPlaceholder))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
