package models

import (
	"ticket-workflow/internal/status"
	"time"

	"github.com/shopspring/decimal"
)

// MaxOrderQuantity caps the combined quantity of all lines in one order.
const MaxOrderQuantity = 5

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusApproved  OrderStatus = "approved"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusRejected  OrderStatus = "rejected"
	OrderStatusCancelled OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusApproved, OrderStatusRejected},
	OrderStatusApproved:  {OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusCompleted: {OrderStatusCancelled},
}

func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch st := OrderStatus(s); st {
	case OrderStatusPending, OrderStatusApproved, OrderStatusCompleted, OrderStatusRejected, OrderStatusCancelled:
		return st, true
	}
	return "", false
}

func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Active orders hold stock and block the owner from placing another order.
func (s OrderStatus) Active() bool {
	return s == OrderStatusPending || s == OrderStatusApproved
}

// Priority is the scheduling tier of a pending order. Lower ranks go first.
type Priority int

const (
	PriorityVIP Priority = iota
	PriorityMixed
	PriorityRegular
)

func (p Priority) String() string {
	switch p {
	case PriorityVIP:
		return "vip"
	case PriorityMixed:
		return "mixed"
	default:
		return "regular"
	}
}

func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// OrderLine captures category and unit price at order time; later price
// edits on the ticket type never touch it.
type OrderLine struct {
	TicketTypeID string          `json:"ticket_type_id"`
	Category     Category        `json:"category"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
}

func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Order struct {
	ID          string      `json:"id"`
	Reference   string      `json:"reference"`
	UserID      string      `json:"user_id"`
	Status      OrderStatus `json:"status"`
	AdminNote   string      `json:"admin_note,omitempty"`
	Lines       []OrderLine `json:"lines"`
	OrderedAt   time.Time   `json:"ordered_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	ApprovedAt  *time.Time  `json:"approved_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	CancelledAt *time.Time  `json:"cancelled_at,omitempty"`
}

func (o *Order) TotalQuantity() int {
	n := 0
	for _, l := range o.Lines {
		n += l.Quantity
	}
	return n
}

func (o *Order) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Priority is derived from the line categories and never stored.
func (o *Order) Priority() Priority {
	var vip, regular bool
	for _, l := range o.Lines {
		switch l.Category {
		case CategoryVIP:
			vip = true
		default:
			regular = true
		}
	}
	switch {
	case vip && regular:
		return PriorityMixed
	case vip:
		return PriorityVIP
	default:
		return PriorityRegular
	}
}

// TicketTypeIDs returns the distinct ticket types the order touches, in line order.
func (o *Order) TicketTypeIDs() []string {
	seen := make(map[string]bool, len(o.Lines))
	ids := make([]string, 0, len(o.Lines))
	for _, l := range o.Lines {
		if !seen[l.TicketTypeID] {
			seen[l.TicketTypeID] = true
			ids = append(ids, l.TicketTypeID)
		}
	}
	return ids
}

// Transition moves the order to the next status and stamps the matching
// timestamp. It leaves the order untouched when the move is not allowed.
func (o *Order) Transition(to OrderStatus, at time.Time) error {
	if !CanTransition(o.Status, to) {
		return &status.TransitionError{Kind: "order", ID: o.ID, From: string(o.Status), To: string(to)}
	}
	o.Status = to
	o.UpdatedAt = at
	switch to {
	case OrderStatusApproved:
		o.ApprovedAt = &at
	case OrderStatusCompleted:
		o.CompletedAt = &at
	case OrderStatusCancelled:
		o.CancelledAt = &at
	}
	return nil
}

// AppendNote adds a line to the admin note.
func (o *Order) AppendNote(note string) {
	if note == "" {
		return
	}
	if o.AdminNote == "" {
		o.AdminNote = note
		return
	}
	o.AdminNote += "\n" + note
}

func (o *Order) Clone() *Order {
	c := *o
	c.Lines = append([]OrderLine(nil), o.Lines...)
	c.ApprovedAt = cloneTime(o.ApprovedAt)
	c.CompletedAt = cloneTime(o.CompletedAt)
	c.CancelledAt = cloneTime(o.CancelledAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// LineRequest is one requested ticket type and quantity in a placement.
type LineRequest struct {
	TicketTypeID string `json:"ticket_type_id"`
	Quantity     int    `json:"quantity"`
}

// OrderFilter selects orders in a store. Zero fields match everything.
type OrderFilter struct {
	UserID   string
	Statuses []OrderStatus
}

func (f OrderFilter) Match(o *Order) bool {
	if f.UserID != "" && o.UserID != f.UserID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if o.Status == s {
			return true
		}
	}
	return false
}
