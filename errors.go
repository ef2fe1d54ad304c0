package custody

import (
	"errors"
	"fmt"

	"github.com/xraph/custody/account"
	"github.com/xraph/custody/types"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("custody: not found")
	ErrAlreadyExists = errors.New("custody: already exists")
	ErrInvalidInput  = errors.New("custody: invalid input")

	// Validation errors
	ErrInvalidAmount           = errors.New("custody: amount must be positive")
	ErrAttachedDepositRequired = errors.New("custody: requires attached deposit of exactly 1 base unit")
	ErrMissingCaller           = errors.New("custody: no caller in context")
	ErrWrongAttachedDeposit    = errors.New("custody: attached deposit does not match the purchase price")
	ErrInvalidPrincipal        = account.ErrInvalidPrincipal
	ErrAmountFormat            = types.ErrAmountFormat
	ErrAmountRange             = types.ErrAmountRange

	// Account errors
	ErrAccountNotFound      = errors.New("custody: account not found")
	ErrAccountNotRegistered = errors.New("custody: account is not registered")
	ErrDepositBelowMinimum  = errors.New("custody: attached deposit is less than the minimum storage balance")
	ErrNothingToWithdraw    = errors.New("custody: no storage balance available to withdraw")
	ErrInsufficientLocked   = account.ErrInsufficientLocked
	ErrInsufficientClaimed  = account.ErrInsufficientClaimed

	// Invariant errors
	ErrInsufficientDeposit = account.ErrInsufficientDeposit
	ErrNonZeroBalance      = account.ErrNonZeroBalance

	// Arithmetic errors
	ErrOverflow  = types.ErrOverflow
	ErrUnderflow = types.ErrUnderflow

	// Settlement errors
	ErrSettlementNotFound = errors.New("custody: settlement not found")
	ErrSettlementConflict = errors.New("custody: settlement status changed concurrently")
	ErrProtocolViolation  = errors.New("custody: settlement protocol violation")

	// Configuration errors
	ErrOwnerRequired           = errors.New("custody: owner principal is required")
	ErrTransfererNotConfigured = errors.New("custody: transferer not configured")
	ErrAlreadyStarted          = errors.New("custody: already started")

	// Store errors
	ErrStoreNotReady   = errors.New("custody: store not ready")
	ErrStoreClosed     = errors.New("custody: store is closed")
	ErrMigrationFailed = errors.New("custody: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("custody: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "custody: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("custody: %d errors occurred", len(e.Errors))
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrSettlementNotFound)
}

// IsValidation returns true if the request was rejected before any state changed.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrAttachedDepositRequired) ||
		errors.Is(err, ErrMissingCaller) ||
		errors.Is(err, ErrWrongAttachedDeposit) ||
		errors.Is(err, ErrInvalidPrincipal) ||
		errors.Is(err, ErrAmountFormat) ||
		errors.Is(err, ErrAmountRange) ||
		errors.Is(err, ErrAccountNotRegistered) ||
		errors.Is(err, ErrDepositBelowMinimum) ||
		errors.Is(err, ErrNothingToWithdraw)
}

// IsInvariantViolation returns true if the operation would have broken the
// solvency or emptiness rules of an account.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrInsufficientDeposit) ||
		errors.Is(err, ErrNonZeroBalance)
}

// IsArithmetic returns true for overflow and underflow failures, including
// insufficient balances.
func IsArithmetic(err error) bool {
	return errors.Is(err, ErrOverflow) ||
		errors.Is(err, ErrUnderflow)
}

// IsProtocolViolation returns true if a settlement callback arrived out of
// order or with the wrong number of results.
func IsProtocolViolation(err error) bool {
	return errors.Is(err, ErrProtocolViolation)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrSettlementConflict)
}
