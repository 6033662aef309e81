package services

import (
	"slices"
	"time"

	"ticket-workflow/internal/status"
	"ticket-workflow/models"

	"github.com/google/uuid"
)

// WaitingQueue holds the FIFO waiting lists for sold-out ticket types. It
// never reserves stock; candidates still have to place an order.
type WaitingQueue struct {
	tx Tx
}

func NewWaitingQueue(tx Tx) *WaitingQueue {
	return &WaitingQueue{tx: tx}
}

func (q *WaitingQueue) Join(ticketTypeID, userID string, qty int, now time.Time) (*models.QueueEntry, error) {
	waiting, err := q.tx.ListQueueEntries(models.QueueFilter{
		TicketTypeID: ticketTypeID,
		UserID:       userID,
		Status:       models.QueueStatusWaiting,
	})
	if err != nil {
		return nil, err
	}
	if len(waiting) > 0 {
		return nil, status.ErrAlreadyQueued
	}

	entry := &models.QueueEntry{
		ID:           uuid.Must(uuid.NewV7()).String(),
		TicketTypeID: ticketTypeID,
		UserID:       userID,
		Quantity:     qty,
		Status:       models.QueueStatusWaiting,
		JoinedAt:     now,
	}
	if err := q.tx.CreateQueueEntry(entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Waiting returns the waiting entries of a ticket type in FIFO order.
func (q *WaitingQueue) Waiting(ticketTypeID string) ([]*models.QueueEntry, error) {
	return q.tx.ListQueueEntries(models.QueueFilter{
		TicketTypeID: ticketTypeID,
		Status:       models.QueueStatusWaiting,
	})
}

// Sweep surfaces the fulfillment candidates of a ticket type given its
// current available count. It changes nothing.
func (q *WaitingQueue) Sweep(ticketTypeID string, available int) ([]*models.QueueEntry, error) {
	if available <= 0 {
		return nil, nil
	}
	waiting, err := q.Waiting(ticketTypeID)
	if err != nil {
		return nil, err
	}
	return SweepCandidates(waiting, available), nil
}

// SweepCandidates takes the oldest waiting entries, at most one per
// available unit.
func SweepCandidates(waiting []*models.QueueEntry, available int) []*models.QueueEntry {
	if available <= 0 || len(waiting) == 0 {
		return nil
	}
	n := min(available, len(waiting))
	return slices.Clone(waiting[:n])
}

func (q *WaitingQueue) Fulfill(entryID string, now time.Time) (*models.QueueEntry, error) {
	entry, err := q.tx.GetQueueEntry(entryID)
	if err != nil {
		return nil, err
	}
	if entry.Status != models.QueueStatusWaiting {
		return nil, &status.TransitionError{
			Kind: "queue entry",
			ID:   entry.ID,
			From: string(entry.Status),
			To:   string(models.QueueStatusFulfilled),
		}
	}
	entry.Status = models.QueueStatusFulfilled
	entry.FulfilledAt = &now
	if err := q.tx.UpdateQueueEntry(entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Position is the 1-based place of the user's waiting entry, or 0 when the
// user is not waiting for the ticket type.
func (q *WaitingQueue) Position(ticketTypeID, userID string) (int, *models.QueueEntry, error) {
	waiting, err := q.Waiting(ticketTypeID)
	if err != nil {
		return 0, nil, err
	}
	for i, e := range waiting {
		if e.UserID == userID {
			return i + 1, e, nil
		}
	}
	return 0, nil, nil
}
