package services

import (
	"context"

	"ticket-workflow/models"
)

// Store opens the transactions every workflow operation runs in. fn's writes
// are committed together when it returns nil and discarded otherwise.
type Store interface {
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the persistence view inside one transaction. Getters return copies
// and report missing rows with an error matching status.ErrNotFound.
type Tx interface {
	GetTicketType(id string) (*models.TicketType, error)
	ListTicketTypes() ([]*models.TicketType, error)
	CreateTicketType(t *models.TicketType) error
	// SaveTicketType writes t only if the stored version still equals
	// t.Version, then bumps t.Version. A stale version yields status.ErrConflict.
	SaveTicketType(t *models.TicketType) error

	GetOrder(id string) (*models.Order, error)
	// ListOrders returns matching orders oldest first, ties by id.
	ListOrders(filter models.OrderFilter) ([]*models.Order, error)
	CreateOrder(o *models.Order) error
	// UpdateOrder writes o only if the stored status still equals from. A
	// status changed by another transaction yields status.ErrConflict.
	UpdateOrder(o *models.Order, from models.OrderStatus) error

	GetQueueEntry(id string) (*models.QueueEntry, error)
	// ListQueueEntries returns matching entries in FIFO order.
	ListQueueEntries(filter models.QueueFilter) ([]*models.QueueEntry, error)
	CreateQueueEntry(e *models.QueueEntry) error
	UpdateQueueEntry(e *models.QueueEntry) error

	// Reset deletes every order with its lines and every queue entry, and
	// replaces the ticket types with defaults.
	Reset(defaults []*models.TicketType) error
}

// EnsureDefaults creates the default ticket types when the store has none
// and reports whether it wrote anything.
func EnsureDefaults(ctx context.Context, store Store) (bool, error) {
	seeded := false
	err := store.RunInTx(ctx, func(tx Tx) error {
		existing, err := tx.ListTicketTypes()
		if err != nil || len(existing) > 0 {
			return err
		}
		for _, t := range models.DefaultTicketTypes() {
			if err := tx.CreateTicketType(t); err != nil {
				return err
			}
		}
		seeded = true
		return nil
	})
	return seeded, err
}
