package status

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	ErrNegativeStock     = errors.New("inventory: stock cannot be negative")
	ErrNegativePrice     = errors.New("inventory: price cannot be negative")
	ErrPriceNotSet       = errors.New("inventory: ticket type has no price")

	ErrInvalidTransition = errors.New("order: invalid status transition")
	ErrQuantityCap       = errors.New("order: total quantity must be between 1 and 5")
	ErrActiveOrder       = errors.New("order: user already has an active order")
	ErrDuplicateRequest  = errors.New("order: duplicate request")

	ErrStockAvailable = errors.New("queue: tickets are still available, place an order instead")
	ErrAlreadyQueued  = errors.New("queue: user is already waiting for this ticket type")

	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConflict is returned by stores when an optimistic version check fails.
	// The workflow retries the whole transaction on it.
	ErrConflict = errors.New("store: concurrent update conflict")
)

// InsufficientStockError lists every ticket type that could not cover its
// requested quantity, so the caller can offer the waiting queue for them.
type InsufficientStockError struct {
	TicketTypeIDs []string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInsufficientStock, strings.Join(e.TicketTypeIDs, ", "))
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// TransitionError reports a status change the entity's current state does not allow.
type TransitionError struct {
	Kind string // order, queue entry
	ID   string
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s %s cannot go from %s to %s", ErrInvalidTransition, e.Kind, e.ID, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// NotFound wraps ErrNotFound with the kind and id of the missing entity.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}
