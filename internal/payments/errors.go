package payments

import (
	"errors"
	"fmt"
)

// Machine-readable error codes carried by domain errors.
const (
	CodeValidation  = "VALIDATION_ERROR"
	CodeNotFound    = "PAYMENT_NOT_FOUND"
	CodeCannotRetry = "CANNOT_RETRY_PAYMENT"
	CodeMaxRetries  = "MAX_RETRIES_EXCEEDED"
	CodePersistence = "PERSISTENCE_ERROR"
)

// Error is a domain error with a machine-readable code and structured details.
type Error struct {
	Code    string
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.cause }

// AsError reports whether err is (or wraps) a domain error.
func AsError(err error) (*Error, bool) {
	var derr *Error
	if errors.As(err, &derr) {
		return derr, true
	}
	return nil, false
}

// NewValidationError signals invalid payment input. field names the offending
// field when known.
func NewValidationError(message, field string) *Error {
	details := map[string]any{}
	if field != "" {
		details["field"] = field
	}
	return &Error{
		Code:    CodeValidation,
		Message: message,
		Details: details,
	}
}

// NewNotFoundError signals that no payment exists with the given id.
func NewNotFoundError(paymentID string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("Payment with id '%s' not found", paymentID),
		Details: map[string]any{"payment_id": paymentID},
	}
}

// NewCannotRetryError signals a retry attempt on a payment whose status does
// not permit retrying.
func NewCannotRetryError(paymentID string, current Status) *Error {
	return &Error{
		Code: CodeCannotRetry,
		Message: fmt.Sprintf(
			"Payment '%s' cannot be retried. Current status: %s. Only FAILED payments can be retried.",
			paymentID, current,
		),
		Details: map[string]any{
			"payment_id":     paymentID,
			"current_status": string(current),
			"allowed_status": string(StatusFailed),
		},
	}
}

// NewMaxRetriesError signals a retry attempt on a payment that has used up
// its retry budget.
func NewMaxRetriesError(paymentID string, maxRetries int) *Error {
	return &Error{
		Code: CodeMaxRetries,
		Message: fmt.Sprintf(
			"Payment '%s' has reached the maximum number of retries (%d)",
			paymentID, maxRetries,
		),
		Details: map[string]any{
			"payment_id":  paymentID,
			"max_retries": maxRetries,
		},
	}
}

// NewPersistenceError wraps a storage failure.
func NewPersistenceError(op string, cause error) *Error {
	return &Error{
		Code:    CodePersistence,
		Message: fmt.Sprintf("%s: %v", op, cause),
		cause:   cause,
	}
}
