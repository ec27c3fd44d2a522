package errors

import stderrors "errors"

// ErrorResponse is the standardized error body integrating applications can return to clients.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code, message, and optional context.
type ErrorDetail struct {
	Code      ErrorCode              `json:"code"`              // Machine-readable error code
	Message   string                 `json:"message"`           // Human-readable error message
	Retryable bool                   `json:"retryable"`         // Whether the client should retry
	Details   map[string]interface{} `json:"details,omitempty"` // Optional context (reference, status)
}

// NewErrorResponse creates a standardized error response.
func NewErrorResponse(code ErrorCode, message string, details map[string]interface{}) ErrorResponse {
	return ErrorResponse{
		Error: ErrorDetail{
			Code:      code,
			Message:   message,
			Retryable: code.IsRetryable(),
			Details:   details,
		},
	}
}

// ResponseFrom shapes any error into an ErrorResponse, falling back to internal_error.
func ResponseFrom(err error) ErrorResponse {
	var e *Error
	if stderrors.As(err, &e) {
		return NewErrorResponse(e.Code, e.Message, e.Details)
	}
	return NewErrorResponse(ErrCodeInternalError, err.Error(), nil)
}
