package api

// ErrorType classifies an APIError. Transports map it to a status code.
type ErrorType string

const (
	ErrorTypeServerError     ErrorType = "server_error"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeGenerationError ErrorType = "generation_error"
	ErrorTypeConfiguration   ErrorType = "configuration_error"
	ErrorTypeTooManyRequests ErrorType = "too_many_requests"
	ErrorTypeUnauthorized    ErrorType = "unauthorized"
)

// APIError is the error body returned to clients. Param names the request
// field at fault, if any.
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
}

func (e *APIError) Error() string {
	s := string(e.Type) + ": " + e.Message
	if e.Param != "" {
		s += " (param: " + e.Param + ")"
	}
	return s
}

// ErrorResponse is the top-level JSON envelope, {"error": {...}}.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

func newError(t ErrorType, message string) *APIError {
	return &APIError{Type: t, Message: message}
}

// NewInvalidRequestError reports a bad value for the request field param.
func NewInvalidRequestError(param, message string) *APIError {
	e := newError(ErrorTypeInvalidRequest, message)
	e.Param = param
	return e
}

func NewNotFoundError(message string) *APIError { return newError(ErrorTypeNotFound, message) }

func NewServerError(message string) *APIError { return newError(ErrorTypeServerError, message) }

// NewGenerationError reports a model service that kept failing after its
// retries ran out.
func NewGenerationError(message string) *APIError {
	return newError(ErrorTypeGenerationError, message)
}

// NewConfigurationError reports a missing tool such as pylint, or an
// environment that could not be created.
func NewConfigurationError(message string) *APIError {
	return newError(ErrorTypeConfiguration, message)
}

func NewTooManyRequestsError(message string) *APIError {
	return newError(ErrorTypeTooManyRequests, message)
}

func NewUnauthorizedError(message string) *APIError {
	return newError(ErrorTypeUnauthorized, message)
}
