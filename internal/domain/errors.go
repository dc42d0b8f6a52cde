package domain

import (
	"errors"
	"fmt"
)

var (
	ErrPaymentNotFound      = errors.New("incoming payment not found")
	ErrDistributionNotFound = errors.New("payment distribution not found")
	ErrProcedureNotFound    = errors.New("procedure not found")
	ErrExportNotFound       = errors.New("export not found")

	// ErrOverAllocation is returned when a distribution exceeds the payment's remaining balance.
	ErrOverAllocation = errors.New("distribution exceeds payment remaining balance")
	// ErrPaymentHasDistributions blocks deleting a payment that already carries distributions.
	ErrPaymentHasDistributions = errors.New("incoming payment has distributions")
	ErrDuplicatePaymentRef     = errors.New("incoming payment reference already exists")
	ErrIdempotencyInFlight     = errors.New("request with this idempotency key is still in progress")
	ErrIdempotencyKeyReused    = errors.New("idempotency key was already used for a different request")

	// ErrLedgerInconsistent means persisted distributions sum past the payment total.
	ErrLedgerInconsistent = errors.New("ledger inconsistent")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsConflict reports whether err is one of the ledger conflict errors.
func IsConflict(err error) bool {
	return errors.Is(err, ErrOverAllocation) ||
		errors.Is(err, ErrPaymentHasDistributions) ||
		errors.Is(err, ErrDuplicatePaymentRef) ||
		errors.Is(err, ErrIdempotencyInFlight) ||
		errors.Is(err, ErrIdempotencyKeyReused)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrDistributionNotFound) ||
		errors.Is(err, ErrProcedureNotFound) ||
		errors.Is(err, ErrExportNotFound)
}
