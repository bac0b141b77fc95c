// Package apperror defines the error type shared by the domain and transport layers.
package apperror

import (
	"errors"
	"net/http"
)

// Machine-readable error codes returned to API clients.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeForbidden          = "FORBIDDEN"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeConflict           = "CONFLICT"
	CodeAlreadyResolved    = "ALREADY_RESOLVED"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodePaymentGateway     = "PAYMENT_GATEWAY_ERROR"
	CodeCurrencyMismatch   = "CURRENCY_MISMATCH"
	CodePreconditionFailed = "PRECONDITION_FAILED"
	CodeHoldRequired       = "HOLD_REQUIRED"
	CodeInternal           = "INTERNAL_ERROR"
)

// Error is an error carrying a stable code, an HTTP status and a retry hint.
type Error struct {
	Code      string
	Message   string
	Status    int
	Retryable bool
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches any *Error with the same code, so a sentinel matches a
// message-specific instance built with WithMessage.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithMessage returns a copy of e with a more specific message.
func (e *Error) WithMessage(msg string) *Error {
	cp := *e
	cp.Message = msg
	return &cp
}

// New creates an Error.
func New(code string, status int, msg string) *Error {
	return &Error{Code: code, Message: msg, Status: status}
}

// NewRetryable creates an Error the caller may safely retry.
func NewRetryable(code string, status int, msg string) *Error {
	return &Error{Code: code, Message: msg, Status: status, Retryable: true}
}

// NewValidationError creates a 400 validation error.
func NewValidationError(msg string) *Error {
	return New(CodeValidation, http.StatusBadRequest, msg)
}

// NewNotFoundError creates a 404 error for the given entity.
func NewNotFoundError(entity, id string) *Error {
	return New(CodeNotFound, http.StatusNotFound, entity+" not found: "+id)
}

// NewForbiddenError creates a 403 error.
func NewForbiddenError(msg string) *Error {
	return New(CodeForbidden, http.StatusForbidden, msg)
}

// NewConflictError creates a 409 error.
func NewConflictError(msg string) *Error {
	return New(CodeConflict, http.StatusConflict, msg)
}

// From extracts the *Error in err's chain. Anything else becomes an internal error.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return &Error{Code: CodeInternal, Message: "internal server error", Status: http.StatusInternalServerError}
}
