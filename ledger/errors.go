/*
errors.go - Centralized error types for the ledger core

PURPOSE:
  All error types in one place for consistency and discoverability.
  The store and API layers wrap or map these; they never invent their own
  taxonomy.

ERROR CATEGORIES:
  1. Reference errors  - Missing items/purchases/sales
  2. Validation errors - Non-positive quantities, malformed ranges
  3. Business errors   - Duplicate names, insufficient stock
  4. Store errors      - Database-level failures (wrap ErrStorage)

USAGE:
  if errors.Is(err, ledger.ErrInsufficientStock) { ... }

  var nf *ledger.NotFoundError
  if errors.As(err, &nf) { ... nf.Kind, nf.ID ... }
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced item, purchase, or sale
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateName is returned when creating or renaming an item would
	// violate name uniqueness.
	ErrDuplicateName = errors.New("duplicate item name")

	// ErrInvalidArgument is returned for non-positive quantities, negative
	// prices, or malformed date ranges.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInsufficientStock is returned when a sale (or an edit) would drive
	// an item's stock below zero.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrStorage marks unexpected store-level failures (I/O, connection).
	// These must propagate, never be conflated with "no data".
	ErrStorage = errors.New("storage failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError identifies which entity was missing, by ID or by name.
type NotFoundError struct {
	Kind string // "item", "purchase", "sale"
	ID   int64
	Name string
}

func (e *NotFoundError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
	}
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// DuplicateNameError reports the conflicting name.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("item name %q already exists", e.Name)
}

func (e *DuplicateNameError) Unwrap() error { return ErrDuplicateName }

// InsufficientStockError provides details about a stock shortage.
type InsufficientStockError struct {
	ItemID    ItemID
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %d: available %s, requested %s",
		e.ItemID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// InvalidArgumentError names the offending field.
type InvalidArgumentError struct {
	Field  string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidArgumentError) Unwrap() error { return ErrInvalidArgument }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsClientError returns true if the error is due to invalid caller input
// rather than a system failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrDuplicateName) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrNotFound)
}

// WrapStorage wraps a driver-level failure with the ErrStorage sentinel.
// Store implementations use this for unexpected database errors.
func WrapStorage(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrStorage, err)
}
