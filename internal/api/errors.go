package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-lighting/internal/device"
	"github.com/nerrad567/gray-logic-lighting/internal/lighting"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeInternal     = "internal_error"
	ErrCodeUnavailable  = "adapter_unavailable"
	ErrCodeUpstream     = "upstream_error"
	ErrCodeConflict     = "conflict"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeForbidden writes a 403 error response.
func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeServiceError maps a reconciler or adapter error onto a response.
// fallback is the message used for errors with no specific mapping.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	if !writeKnownError(w, err) {
		writeInternalError(w, fallback)
	}
}

// writeServiceErrorOr is writeServiceError with a caller-chosen status,
// carrying the error text, for errors with no specific mapping.
func writeServiceErrorOr(w http.ResponseWriter, err error, status int) {
	if !writeKnownError(w, err) {
		writeError(w, status, ErrCodeUpstream, err.Error())
	}
}

func writeKnownError(w http.ResponseWriter, err error) bool {
	var connErr *lighting.ConnectionError
	switch {
	case errors.Is(err, lighting.ErrNotFound):
		writeNotFound(w, "device not found")
	case errors.Is(err, lighting.ErrInvalidState),
		errors.Is(err, device.ErrNoAdapter),
		errors.Is(err, device.ErrCommissioningUnsupported):
		writeBadRequest(w, err.Error())
	case errors.As(err, &connErr),
		errors.Is(err, lighting.ErrNotConnected),
		errors.Is(err, lighting.ErrNoCredential):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	case errors.Is(err, lighting.ErrDeviceUnreachable):
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, err.Error())
	default:
		return false
	}
	return true
}
