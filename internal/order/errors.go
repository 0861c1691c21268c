package order

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for operations on unknown order ids.
	ErrNotFound = errors.New("order not found")

	// ErrOverfill is returned when a fill would push filled size past the
	// requested size. The order is left unchanged.
	ErrOverfill = errors.New("fill exceeds remaining order size")
)

// InvalidTransitionError reports an illegal state change request.
// The order is left unchanged.
type InvalidTransitionError struct {
	OrderID string
	From    Status
	To      Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s: invalid transition %s -> %s", e.OrderID, e.From, e.To)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var ite *InvalidTransitionError
	return errors.As(err, &ite)
}
