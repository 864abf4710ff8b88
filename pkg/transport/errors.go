package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rhuss/codinit/pkg/api"
)

// ErrStreamClosed is returned by a MessageWriter after the final message.
var ErrStreamClosed = errors.New("transport: stream already finished")

var statusByType = map[api.ErrorType]int{
	api.ErrorTypeInvalidRequest:  http.StatusBadRequest,
	api.ErrorTypeUnauthorized:    http.StatusUnauthorized,
	api.ErrorTypeNotFound:        http.StatusNotFound,
	api.ErrorTypeTooManyRequests: http.StatusTooManyRequests,
	api.ErrorTypeGenerationError: http.StatusBadGateway,
}

// HTTPStatusFromError returns 500 for server, configuration and unknown
// error types.
func HTTPStatusFromError(err *api.APIError) int {
	if code, ok := statusByType[err.Type]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// AsAPIError unwraps an APIError from err, or reports err as a server
// error.
func AsAPIError(err error) *api.APIError {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return api.NewServerError(err.Error())
}

// WriteErrorResponse writes {"error": apiErr} with an explicit status.
func WriteErrorResponse(w http.ResponseWriter, apiErr *api.APIError, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: apiErr})
}

// WriteAPIError writes apiErr with the status its type maps to.
func WriteAPIError(w http.ResponseWriter, apiErr *api.APIError) {
	WriteErrorResponse(w, apiErr, HTTPStatusFromError(apiErr))
}
