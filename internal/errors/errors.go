package errors

import (
	stderrors "errors"
	"fmt"
)

// Sentinels matched with errors.Is against any *Error of the corresponding kind.
var (
	ErrValidation   = stderrors.New("validation error")
	ErrNotFound     = stderrors.New("transaction not found")
	ErrInvalidState = stderrors.New("invalid transaction state")
	ErrDuplicate    = stderrors.New("duplicate transaction reference")
)

// Error is a typed simulator failure carrying a machine-readable code.
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
}

func (e *Error) Error() string {
	return e.Message
}

// Is lets callers use errors.Is(err, ErrNotFound) and friends.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Code.Kind() == KindValidation
	case ErrNotFound:
		return e.Code.Kind() == KindNotFound
	case ErrInvalidState:
		return e.Code.Kind() == KindInvalidState
	case ErrDuplicate:
		return e.Code == ErrCodeDuplicateReference
	}
	return false
}

// New builds an Error with optional details.
func New(code ErrorCode, message string, details map[string]interface{}) *Error {
	return &Error{Code: code, Message: message, Details: details}
}

// Validation reports malformed or missing initiation input.
func Validation(code ErrorCode, message string) *Error {
	return New(code, message, nil)
}

// NotFound reports an unknown transaction reference.
func NotFound(reference string) *Error {
	return New(ErrCodeTransactionNotFound, fmt.Sprintf("transaction not found: %s", reference), map[string]interface{}{
		"reference": reference,
	})
}

// InvalidState reports an operation attempted outside the PENDING state.
func InvalidState(reference, status string) *Error {
	return New(ErrCodeInvalidState, fmt.Sprintf("transaction %s is %s, expected PENDING", reference, status), map[string]interface{}{
		"reference": reference,
		"status":    status,
	})
}

// Duplicate reports an initiation reusing an existing reference.
func Duplicate(reference string) *Error {
	return New(ErrCodeDuplicateReference, fmt.Sprintf("transaction reference already exists: %s", reference), map[string]interface{}{
		"reference": reference,
	})
}

// CodeOf extracts the code from err, or ErrCodeInternalError for foreign errors.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternalError
}
