package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/corebit/corebit-server/internal/license"
	"github.com/corebit/corebit-server/internal/repository"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

// clientError is the {error, field?} shape spec §7 requires for 4xx
// ClientInput failures.
type clientError struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeClientError(w http.ResponseWriter, status int, message, field string) {
	writeJSON(w, status, clientError{Error: message, Field: field})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeClientError(w, http.StatusBadRequest, message, "")
}

func writeNotFound(w http.ResponseWriter) {
	writeClientError(w, http.StatusNotFound, "not found", "")
}

// writeRepositoryError classifies a returned repository error per spec §7:
// ErrNotFound -> 404, ErrDuplicateConnection -> 409, LimitExceededError ->
// 402, everything else -> 500 RepositoryError.
func writeRepositoryError(log zerolog.Logger, w http.ResponseWriter, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		writeNotFound(w)
		return
	}
	if errors.Is(err, repository.ErrDuplicateConnection) {
		writeClientError(w, http.StatusConflict, "duplicate connection", "")
		return
	}

	var limitErr *license.LimitExceededError
	if errors.As(err, &limitErr) {
		writeJSON(w, http.StatusPaymentRequired, map[string]string{"reason": err.Error()})
		return
	}

	log.Error().Err(err).Msg("repository error")
	writeClientError(w, http.StatusInternalServerError, "internal error", "")
}
