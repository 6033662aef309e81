package models

import "time"

type EventType string

const (
	EventOrderPlaced     EventType = "order.placed"
	EventOrderApproved   EventType = "order.approved"
	EventOrderRejected   EventType = "order.rejected"
	EventOrderCompleted  EventType = "order.completed"
	EventOrderCancelled  EventType = "order.cancelled"
	EventQueueJoined     EventType = "queue.joined"
	EventQueueFulfilled  EventType = "queue.fulfilled"
	EventQueueCandidates EventType = "queue.candidates"
	EventInventoryChange EventType = "inventory.changed"
	EventInventoryReset  EventType = "inventory.reset"
)

// Event is one message on the admin feed. It is emitted only after the
// transaction that produced it has committed.
type Event struct {
	Type         EventType      `json:"type"`
	OrderID      string         `json:"order_id,omitempty"`
	TicketTypeID string         `json:"ticket_type_id,omitempty"`
	UserID       string         `json:"user_id,omitempty"`
	Status       string         `json:"status,omitempty"`
	Candidates   []string       `json:"candidates,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}
