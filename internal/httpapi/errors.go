package httpapi

import (
	"errors"
	"net/http"

	json "github.com/goccy/go-json"

	"llmserve/internal/scheduler"
	"llmserve/pkg/types"
)

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

// statusFor maps scheduler errors to HTTP status codes.
func statusFor(err error) int {
	if errors.Is(err, scheduler.ErrSchedulerClosed) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
