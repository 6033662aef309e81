package models

import (
	"time"
)

type QueueStatus string

const (
	QueueStatusWaiting   QueueStatus = "waiting"
	QueueStatusFulfilled QueueStatus = "fulfilled"
)

// QueueEntry is a customer waiting for a sold-out ticket type.
// Entries are served FIFO by (JoinedAt, ID).
type QueueEntry struct {
	ID           string      `json:"id"`
	TicketTypeID string      `json:"ticket_type_id"`
	UserID       string      `json:"user_id"`
	Quantity     int         `json:"quantity"`
	Status       QueueStatus `json:"status"` // waiting, fulfilled
	JoinedAt     time.Time   `json:"joined_at"`
	FulfilledAt  *time.Time  `json:"fulfilled_at,omitempty"`
}

func (e *QueueEntry) Clone() *QueueEntry {
	c := *e
	c.FulfilledAt = cloneTime(e.FulfilledAt)
	return &c
}

// Before reports whether e is ahead of other in FIFO order.
func (e *QueueEntry) Before(other *QueueEntry) bool {
	if !e.JoinedAt.Equal(other.JoinedAt) {
		return e.JoinedAt.Before(other.JoinedAt)
	}
	return e.ID < other.ID
}

type QueueFilter struct {
	TicketTypeID string
	UserID       string
	Status       QueueStatus
}

func (f QueueFilter) Match(e *QueueEntry) bool {
	if f.TicketTypeID != "" && e.TicketTypeID != f.TicketTypeID {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	return true
}

type QueueMetrics struct {
	TicketTypeID string    `json:"ticket_type_id"`
	Waiting      int       `json:"waiting"`
	Fulfilled    int       `json:"fulfilled"`
	Candidates   int       `json:"candidates"`
	LastUpdated  time.Time `json:"last_updated"`
}
