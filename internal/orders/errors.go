package orders

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("order not found")
	ErrAccessDenied    = errors.New("access denied")
	ErrEmptyOrder      = errors.New("order must have at least one item")
	ErrInvalidQuantity = errors.New("item quantity must be positive")
	// ErrPersistence means reservations were already taken and compensation
	// has been attempted; the generic message is deliberate.
	ErrPersistence = errors.New("failed to create order")
	ErrStaleOrder  = errors.New("order was modified concurrently")
)

type TransitionError struct {
	From, To Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition from %s to %s", e.From, e.To)
}

type NotCancellableError struct {
	Current Status
}

func (e *NotCancellableError) Error() string {
	return fmt.Sprintf("order cannot be cancelled, current status is %s", e.Current)
}
