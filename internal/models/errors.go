package models

import (
	"context"
	"errors"
	"fmt"
)

// Error taxonomy shared by every layer. Callers classify with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrBudgetExhausted   = errors.New("budget exhausted")
	ErrInvalidBudget     = errors.New("invalid budget")
	ErrInvalidDateRange  = errors.New("invalid date range")
	ErrForbidden         = errors.New("forbidden")
	ErrTransient         = errors.New("temporarily unavailable")
	ErrValidation        = errors.New("validation failed")
)

var domainErrors = []error{
	ErrNotFound,
	ErrInvalidState,
	ErrInvalidTransition,
	ErrBudgetExhausted,
	ErrInvalidBudget,
	ErrInvalidDateRange,
	ErrForbidden,
	ErrTransient,
	ErrValidation,
}

// IsDomainError reports whether err already carries a taxonomy classification.
func IsDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// AsTransient classifies an unclassified store error (driver failure, timeout)
// as ErrTransient. Domain errors pass through unchanged.
func AsTransient(err error) error {
	if err == nil || IsDomainError(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: store timeout: %v", ErrTransient, err)
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}

// Validationf builds an ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
