package services

import (
	"fmt"

	"ticket-workflow/internal/status"
	"ticket-workflow/models"

	"github.com/shopspring/decimal"
)

// Ledger applies inventory mutations to the ticket type rows of one
// transaction. Rows are loaded once, mutated in memory and written back by
// Flush, so a failed step leaves nothing behind when the transaction aborts.
type Ledger struct {
	tx      Tx
	rows    map[string]*models.TicketType
	dirty   map[string]bool
	ordered []string
}

func NewLedger(tx Tx) *Ledger {
	return &Ledger{
		tx:    tx,
		rows:  make(map[string]*models.TicketType),
		dirty: make(map[string]bool),
	}
}

// Get returns the transaction's working copy of a ticket type.
func (l *Ledger) Get(id string) (*models.TicketType, error) {
	if t, ok := l.rows[id]; ok {
		return t, nil
	}
	t, err := l.tx.GetTicketType(id)
	if err != nil {
		return nil, err
	}
	l.rows[id] = t
	l.ordered = append(l.ordered, id)
	return t, nil
}

// ReserveLines reserves every line or none. When any line is short, the
// returned *status.InsufficientStockError lists each short ticket type.
func (l *Ledger) ReserveLines(lines []models.OrderLine) error {
	need := make(map[string]int, len(lines))
	var ids []string
	for _, line := range lines {
		if _, ok := need[line.TicketTypeID]; !ok {
			ids = append(ids, line.TicketTypeID)
		}
		need[line.TicketTypeID] += line.Quantity
	}

	var short []string
	for _, id := range ids {
		t, err := l.Get(id)
		if err != nil {
			return err
		}
		if need[id] > t.Available {
			short = append(short, id)
		}
	}
	if len(short) > 0 {
		return &status.InsufficientStockError{TicketTypeIDs: short}
	}

	for _, id := range ids {
		if err := l.apply(id, func(t *models.TicketType) error { return t.Reserve(need[id]) }); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) Reserve(id string, qty int) error {
	return l.apply(id, func(t *models.TicketType) error { return t.Reserve(qty) })
}

func (l *Ledger) CommitSale(id string, qty int) error {
	return l.apply(id, func(t *models.TicketType) error { return t.CommitSale(qty) })
}

func (l *Ledger) Release(id string, qty int) error {
	return l.apply(id, func(t *models.TicketType) error { return t.Release(qty) })
}

func (l *Ledger) Refund(id string, qty int) error {
	return l.apply(id, func(t *models.TicketType) error { return t.Refund(qty) })
}

func (l *Ledger) AdjustCapacity(id string, newTotal int) error {
	return l.apply(id, func(t *models.TicketType) error { return t.AdjustCapacity(newTotal) })
}

func (l *Ledger) SetPrice(id string, price decimal.Decimal) error {
	return l.apply(id, func(t *models.TicketType) error { return t.SetPrice(price) })
}

// apply mutates a scratch copy first so a failed step keeps the working row intact.
func (l *Ledger) apply(id string, fn func(t *models.TicketType) error) error {
	t, err := l.Get(id)
	if err != nil {
		return err
	}
	next := t.Clone()
	if err := fn(next); err != nil {
		return fmt.Errorf("ticket type %s: %w", id, err)
	}
	*t = *next
	l.dirty[id] = true
	return nil
}

// Touched returns the working rows in load order.
func (l *Ledger) Touched() []*models.TicketType {
	out := make([]*models.TicketType, 0, len(l.ordered))
	for _, id := range l.ordered {
		out = append(out, l.rows[id])
	}
	return out
}

// Flush checks and writes every mutated row.
func (l *Ledger) Flush() error {
	for _, id := range l.ordered {
		if !l.dirty[id] {
			continue
		}
		t := l.rows[id]
		if err := t.CheckInvariant(); err != nil {
			return err
		}
		if err := l.tx.SaveTicketType(t); err != nil {
			return err
		}
		delete(l.dirty, id)
	}
	return nil
}
