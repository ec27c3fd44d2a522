package errors

// ErrorCode represents a machine-readable error identifier for integration code.
type ErrorCode string

// Validation Errors (initiation input validation)
const (
	ErrCodeInvalidAmount  ErrorCode = "invalid_amount"
	ErrCodeMissingField   ErrorCode = "missing_field"
	ErrCodeInvalidField   ErrorCode = "invalid_field"
	ErrCodeInvalidOutcome ErrorCode = "invalid_outcome"
)

// Resource/State Errors (transaction not found or in wrong state)
const (
	ErrCodeTransactionNotFound ErrorCode = "transaction_not_found"
	ErrCodeInvalidState        ErrorCode = "invalid_state"
	ErrCodeDuplicateReference  ErrorCode = "duplicate_reference"
)

// Internal/System Errors
const (
	ErrCodeInternalError ErrorCode = "internal_error"
	ErrCodeConfigError   ErrorCode = "config_error"
)

// Kind groups error codes into the three failure classes callers react to.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindInvalidState Kind = "invalid_state"
	KindInternal     Kind = "internal"
)

// Kind returns the failure class of the code.
func (e ErrorCode) Kind() Kind {
	switch e {
	case ErrCodeInvalidAmount,
		ErrCodeMissingField,
		ErrCodeInvalidField,
		ErrCodeInvalidOutcome,
		ErrCodeDuplicateReference:
		return KindValidation
	case ErrCodeTransactionNotFound:
		return KindNotFound
	case ErrCodeInvalidState:
		return KindInvalidState
	default:
		return KindInternal
	}
}

// IsRetryable returns whether an error code represents a retryable error.
// The simulator performs no I/O, so nothing it reports is transient.
func (e ErrorCode) IsRetryable() bool {
	return false
}

// HTTPStatus returns the HTTP status an integrating application would typically map this code to.
func (e ErrorCode) HTTPStatus() int {
	switch e {
	// 400 Bad Request - Client validation errors
	case ErrCodeInvalidAmount,
		ErrCodeMissingField,
		ErrCodeInvalidField,
		ErrCodeInvalidOutcome:
		return 400

	// 404 Not Found - Unknown transaction reference
	case ErrCodeTransactionNotFound:
		return 404

	// 409 Conflict - Operation not allowed in the current state
	case ErrCodeInvalidState,
		ErrCodeDuplicateReference:
		return 409

	// 500 Internal Server Error - System/internal errors
	default:
		return 500
	}
}
