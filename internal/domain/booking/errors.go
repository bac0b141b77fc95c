package booking

import (
	"net/http"

	"github.com/GearGrab/service-booking/internal/platform/apperror"
)

// Sentinel errors of the booking workflow. Match them with errors.Is; the
// concrete errors returned usually carry a more specific message.
var (
	ErrNotFound           = apperror.New(apperror.CodeNotFound, http.StatusNotFound, "booking not found")
	ErrForbidden          = apperror.New(apperror.CodeForbidden, http.StatusForbidden, "only the listing owner can resolve this booking")
	ErrAlreadyResolved    = apperror.New(apperror.CodeAlreadyResolved, http.StatusOK, "booking already processed")
	ErrInvalidTransition  = apperror.New(apperror.CodeInvalidTransition, http.StatusConflict, "invalid status transition")
	ErrPaymentGateway     = apperror.NewRetryable(apperror.CodePaymentGateway, http.StatusInternalServerError, "payment gateway error")
	ErrCurrencyMismatch   = apperror.New(apperror.CodeCurrencyMismatch, http.StatusUnprocessableEntity, "currency mismatch")
	ErrPreconditionFailed = apperror.NewRetryable(apperror.CodePreconditionFailed, http.StatusConflict, "booking was modified concurrently")
	ErrHoldRequired       = apperror.New(apperror.CodeHoldRequired, http.StatusUnprocessableEntity, "upfront hold is required")
	ErrValidation         = apperror.New(apperror.CodeValidation, http.StatusBadRequest, "validation error")
)

// NewInvalidTransitionError describes a rejected from -> to transition.
func NewInvalidTransitionError(from, to Status) error {
	return ErrInvalidTransition.WithMessage("cannot transition booking from " + string(from) + " to " + string(to))
}

// NewValidationError returns ErrValidation with the given message.
func NewValidationError(msg string) error {
	return ErrValidation.WithMessage(msg)
}

// NewNotFoundError returns ErrNotFound for the given id.
func NewNotFoundError(id string) error {
	return ErrNotFound.WithMessage("booking not found: " + id)
}
