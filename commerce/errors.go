/*
errors.go - Centralized error types for the commerce engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The API layer maps them to HTTP status codes through the helpers at the
  bottom of this file.

ERROR CATEGORIES:
  1. Validation errors - rejected before any mutation
  2. Not-found errors - missing transaction, customer or item
  3. Stock errors - a ledger decrement would drive stock negative
  4. Idempotency - a keyed transaction already exists

SEE ALSO:
  - ledger.go: Returns InsufficientStockError
  - orders.go: Returns ValidationError and not-found errors
  - api/handlers.go: Maps errors to HTTP responses
*/
package commerce

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of every input validation failure.
	ErrValidation = errors.New("validation failed")

	// ErrTransactionNotFound is returned when a transaction id does not exist.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrCustomerNotFound is returned when a customer id or email does not resolve.
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrFurnitureNotFound is returned when a ledger operation targets a missing item.
	ErrFurnitureNotFound = errors.New("furniture item not found")

	// ErrInsufficientStock is returned when a decrement would drive quantity below zero.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrDuplicateIdempotencyKey is returned alongside the existing transaction
	// when a keyed create is replayed. Callers treat it as "already recorded".
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrCreateFailed wraps any failure inside the checkout unit of work.
	ErrCreateFailed = errors.New("transaction creation failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError lists every field problem found in a request.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// add records a problem; used while collecting.
func (e *ValidationError) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// orNil returns nil when nothing was recorded.
func (e *ValidationError) orNil() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}

// NewValidationError builds a single-problem validation error.
func NewValidationError(format string, args ...any) error {
	return &ValidationError{Problems: []string{fmt.Sprintf(format, args...)}}
}

// InsufficientStockError provides details about a stock shortage.
type InsufficientStockError struct {
	FurnitureID FurnitureID
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %d: available %d, requested %d",
		e.FurnitureID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// CreateError wraps the root cause of a rolled-back checkout. Callers see
// ErrCreateFailed via errors.Is and the original cause via errors.Unwrap.
type CreateError struct {
	Cause error
}

func (e *CreateError) Error() string {
	return fmt.Sprintf("%v: %v", ErrCreateFailed, e.Cause)
}

func (e *CreateError) Unwrap() []error {
	return []error{ErrCreateFailed, e.Cause}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientStock)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrCustomerNotFound) ||
		errors.Is(err, ErrFurnitureNotFound)
}
