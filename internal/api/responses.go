package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"maze-rewards/internal/auth"
	"maze-rewards/internal/pkg/db"
	"maze-rewards/internal/service"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Machine-readable error codes.
const (
	CodeInvalidJSON        = "INVALID_JSON"
	CodeValidation         = "VALIDATION_ERROR"
	CodeAuthRequired       = "AUTH_REQUIRED"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeAdminDisabled      = "ADMIN_DISABLED"
	CodeNotFound           = "NOT_FOUND"
	CodeUsernameTaken      = "USERNAME_TAKEN"
	CodeInsufficientFunds  = "INSUFFICIENT_FUNDS"
	CodeNoFreeUsesLeft     = "NO_FREE_USES_LEFT"
	CodeCooldown           = "COOLDOWN"
	CodeCloseInProgress    = "CLOSE_IN_PROGRESS"
	CodeUnavailable        = "UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"
)

// maxBodyBytes bounds request bodies; every payload here is a handful of fields.
const maxBodyBytes = 1 << 16

// WriteJSON writes data as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Error().Err(err).Msg("Failed to encode JSON response")
		}
	}
}

// WriteError writes a standardized error response.
func WriteError(w http.ResponseWriter, status int, message, code string) {
	WriteJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// DecodeJSON decodes a JSON request body into v. An empty body leaves v untouched.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeServiceError maps a domain error onto a status and code. Unknown
// errors are logged and reported as INTERNAL_ERROR without their text.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var cooldown *service.CooldownError

	switch {
	case errors.As(err, &cooldown):
		secs := int(math.Ceil(cooldown.Remaining.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
		WriteError(w, http.StatusTooManyRequests, err.Error(), CodeCooldown)
	case errors.Is(err, service.ErrInvalidArgument):
		WriteError(w, http.StatusBadRequest, err.Error(), CodeValidation)
	case errors.Is(err, service.ErrNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), CodeNotFound)
	case errors.Is(err, service.ErrConflict):
		WriteError(w, http.StatusConflict, err.Error(), CodeUsernameTaken)
	case errors.Is(err, service.ErrInsufficientFunds):
		WriteError(w, http.StatusBadRequest, err.Error(), CodeInsufficientFunds)
	case errors.Is(err, service.ErrNoFreeUsesLeft):
		WriteError(w, http.StatusBadRequest, err.Error(), CodeNoFreeUsesLeft)
	case errors.Is(err, service.ErrCloseInProgress):
		WriteError(w, http.StatusConflict, err.Error(), CodeCloseInProgress)
	case errors.Is(err, auth.ErrAuth):
		WriteError(w, http.StatusUnauthorized, "Authentication required", CodeAuthRequired)
	case errors.Is(err, context.DeadlineExceeded), db.IsTimeout(err):
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("Request timed out")
		WriteError(w, http.StatusServiceUnavailable, "Service busy, try again", CodeUnavailable)
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		WriteError(w, http.StatusInternalServerError, "Internal server error", CodeInternal)
	}
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	return n, nil
}
