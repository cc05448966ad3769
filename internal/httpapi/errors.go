package httpapi

import (
	"context"
	"errors"
	"net/http"

	json "github.com/goccy/go-json"

	"npud/internal/manager"
	"npud/pkg/types"
)

// busyMessage is returned with 503 while another request holds the NPU.
const busyMessage = "NPU is currently in use by another request. Please try again later."

// statusClientClosed is logged for requests that ended before an answer.
const statusClientClosed = 499

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

// statusFor maps well-known manager errors to an HTTP status and message.
func statusFor(err error) (int, string) {
	switch {
	case manager.IsTooBusy(err):
		IncrementBackpressure("npu_busy")
		return http.StatusServiceUnavailable, busyMessage
	case manager.IsModelNotFound(err):
		return http.StatusNotFound, err.Error()
	case manager.IsBadRequest(err):
		return http.StatusBadRequest, err.Error()
	case manager.IsDependencyUnavailable(err):
		return http.StatusServiceUnavailable, err.Error()
	case errors.Is(err, context.Canceled):
		return statusClientClosed, "request cancelled"
	}
	var he HTTPError
	if errors.As(err, &he) {
		return he.StatusCode(), he.Error()
	}
	return http.StatusInternalServerError, err.Error()
}
