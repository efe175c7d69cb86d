package utils

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-vault/internal/domain"
)

// WriteJSON writes data as a JSON response
func WriteJSON(w http.ResponseWriter, status int, data interface{}, log zerolog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// WriteError writes {"error": ...} with a status derived from err
func WriteError(w http.ResponseWriter, err error, log zerolog.Logger) {
	status := StatusForError(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	}
	WriteJSON(w, status, map[string]string{"error": err.Error()}, log)
}

// StatusForError maps domain errors to HTTP status codes
func StatusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrTokenNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrTooEarly), errors.Is(err, domain.ErrReentrantCall):
		return http.StatusConflict
	case errors.Is(err, domain.ErrValuationUnavailable):
		return http.StatusServiceUnavailable
	case domain.IsConfigurationError(err),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrAdapterNotRegistered):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorMessage writes {"error": message} with an explicit status
func WriteErrorMessage(w http.ResponseWriter, status int, message string, log zerolog.Logger) {
	WriteJSON(w, status, map[string]string{"error": message}, log)
}
