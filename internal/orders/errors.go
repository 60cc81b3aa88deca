package orders

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrReturnWindowClosed = errors.New("return window closed")
)

// ValidationError rejects a malformed placement before any store access.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// NotFoundError reports a referenced book that does not exist.
type NotFoundError struct {
	BookID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("book not found: %s", e.BookID)
}

// InsufficientStockError reports a requested quantity above the remaining
// count. Available is the count at the moment of the check.
type InsufficientStockError struct {
	BookID    string
	Title     string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("%s: Only %d copies available", e.Title, e.Available)
}

// InvalidTransitionError reports a lifecycle move the status machine
// forbids, e.g. cancelling a shipped order.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}
