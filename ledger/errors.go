/*
errors.go - Centralized error types for the ledger

PURPOSE:
  All ledger-level errors in one place for consistency and discoverability.
  Domain packages (token, topup) wrap or add to these with their own context.

ERROR CATEGORIES:
  1. Validation errors - InvalidAmount
  2. Balance errors    - InsufficientBalance (with structured detail)
  3. Lookup errors     - PassNotFound
  4. Storage errors    - ConcurrentConflict (transient, retried internally)

USAGE:
  Callers classify with errors.Is():

    if errors.Is(err, ledger.ErrInsufficientBalance) {
        // ask the customer for a smaller amount
    }

SEE ALSO:
  - ledger.go: Where these are produced
  - token/manager.go: Token-specific errors
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned when an amount is zero, negative, or does
	// not match the configured granularity.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientBalance is returned when a debit exceeds the available
	// balance at the instant of the atomic check-and-append.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrPassNotFound is returned when a referenced pass doesn't exist.
	ErrPassNotFound = errors.New("pass not found")

	// ErrPassExists is returned when creating a pass that already exists.
	ErrPassExists = errors.New("pass already exists")

	// ErrConcurrentConflict is returned by stores using optimistic locking
	// when a concurrent writer won the race. Safe to retry.
	ErrConcurrentConflict = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError reports how far short the balance fell.
type InsufficientBalanceError struct {
	PassID    PassID
	Available Amount
	Requested Amount
	Shortfall Amount
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance on pass %s: available %v, requested %v, shortfall %v",
		e.PassID, e.Available.Value, e.Requested.Value, e.Shortfall.Value)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentConflict)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInsufficientBalance)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPassNotFound)
}
