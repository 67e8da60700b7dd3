package core

import (
	"errors"
	"fmt"
)

// Taxonomy. Everything the services return matches one of these with
// errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
	ErrStorage    = errors.New("storage failure")
)

var (
	ErrOrderNotFound   = fmt.Errorf("order %w", ErrNotFound)
	ErrPaymentNotFound = fmt.Errorf("payment %w", ErrNotFound)
	ErrReceiptNotFound = fmt.Errorf("receipt %w", ErrNotFound)
	ErrProductNotFound = fmt.Errorf("product %w", ErrNotFound)

	ErrIllegalTransition = fmt.Errorf("%w: illegal state transition", ErrConflict)
	ErrReceiptExists     = fmt.Errorf("%w: receipt already exists for order and type", ErrConflict)
	ErrStaleState        = fmt.Errorf("%w: record changed concurrently", ErrConflict)

	// ErrNumberTaken means a generated order or receipt number clashed with
	// a stored one. The caller regenerates the number and tries again.
	ErrNumberTaken = fmt.Errorf("%w: generated number already taken", ErrStorage)

	ErrFieldIsEmpty         = errors.New("field is empty")
	ErrUnauthenticated      = errors.New("missing or invalid bearer token")
	ErrMaxConcurentExceeded = errors.New("too many requests, try again later")
)

// Validationf builds an ErrValidation with a caller-facing message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
