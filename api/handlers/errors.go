package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/linesmerrill/laundry-api/api"
	"github.com/linesmerrill/laundry-api/config"
	"github.com/linesmerrill/laundry-api/identity"
	"github.com/linesmerrill/laundry-api/models"
)

// statusFor maps an identity error to the status code the client sees
func statusFor(err error) int {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, identity.ErrTooManyAttempts):
		return http.StatusTooManyRequests
	}

	switch identity.KindOf(err) {
	case identity.KindValidation, identity.KindAuthMismatch:
		return http.StatusBadRequest
	case identity.KindConflict:
		return http.StatusConflict
	case identity.KindNotFound:
		return http.StatusNotFound
	case identity.KindExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as a models.ErrorResponse. Dependency failures are
// reported with a generic message so internals never reach the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := models.ErrorResponse{Success: false, Error: "internal server error", Code: "INTERNAL"}

	var e *identity.Error
	if errors.As(err, &e) {
		body.Code = e.Code
		body.Field = e.Field
		if e.Kind != identity.KindDependency {
			body.Error = e.Message
		} else if e.Code == identity.ErrDeliveryFailed.Code {
			body.Error = e.Message
		}
	}

	if status >= http.StatusInternalServerError {
		zap.S().Errorw("request failed",
			"requestId", api.RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"code", body.Code,
			"error", err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.S().Errorw("failed to encode response", "error", err)
	}
}

// decode reads a JSON request body into v and answers 400 if it cannot
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		config.ErrorStatus("failed to decode request body", http.StatusBadRequest, w, err)
		return false
	}
	return true
}

const maxBodyBytes = 1 << 16
