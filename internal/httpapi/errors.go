package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"fpbridge/internal/bridge"
	"fpbridge/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// statusFor maps bridge errors to HTTP status codes.
func statusFor(err error) int {
	var he HTTPError
	switch {
	case bridge.IsNotImplemented(err):
		return http.StatusNotImplemented
	case bridge.IsInvalidArgs(err):
		return http.StatusBadRequest
	case bridge.IsTooBusy(err):
		return http.StatusTooManyRequests
	case bridge.IsClosed(err), bridge.IsDependencyUnavailable(err):
		return http.StatusServiceUnavailable
	case errors.As(err, &he):
		return he.StatusCode()
	default:
		return http.StatusInternalServerError
	}
}
