package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"ticket-workflow/internal/services"
	"ticket-workflow/internal/status"
	"ticket-workflow/models"
)

// Store keeps everything in process memory. Transactions run one at a time
// under a single mutex and stage their writes until fn succeeds.
type Store struct {
	mu          sync.Mutex
	ticketTypes map[string]*models.TicketType
	orders      map[string]*models.Order
	entries     map[string]*models.QueueEntry
}

func New(ticketTypes ...*models.TicketType) *Store {
	s := &Store{
		ticketTypes: make(map[string]*models.TicketType),
		orders:      make(map[string]*models.Order),
		entries:     make(map[string]*models.QueueEntry),
	}
	for _, t := range ticketTypes {
		s.ticketTypes[t.ID] = t.Clone()
	}
	return s
}

func (s *Store) RunInTx(ctx context.Context, fn func(tx services.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{
		store:       s,
		ticketTypes: make(map[string]*models.TicketType),
		orders:      make(map[string]*models.Order),
		entries:     make(map[string]*models.QueueEntry),
	}
	if err := fn(t); err != nil {
		return err
	}
	t.commit()
	return nil
}

// tx overlays staged rows on the committed maps.
type tx struct {
	store       *Store
	reset       bool
	ticketTypes map[string]*models.TicketType
	orders      map[string]*models.Order
	entries     map[string]*models.QueueEntry
}

func (t *tx) commit() {
	s := t.store
	if t.reset {
		s.ticketTypes = make(map[string]*models.TicketType)
		s.orders = make(map[string]*models.Order)
		s.entries = make(map[string]*models.QueueEntry)
	}
	for id, v := range t.ticketTypes {
		s.ticketTypes[id] = v
	}
	for id, v := range t.orders {
		s.orders[id] = v
	}
	for id, v := range t.entries {
		s.entries[id] = v
	}
}

func lookup[T any](staged, base map[string]T, reset bool, id string) (T, bool) {
	if v, ok := staged[id]; ok {
		return v, true
	}
	if !reset {
		if v, ok := base[id]; ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func merged[T any](staged, base map[string]T, reset bool) []T {
	out := make([]T, 0, len(staged)+len(base))
	for _, v := range staged {
		out = append(out, v)
	}
	if reset {
		return out
	}
	for id, v := range base {
		if _, ok := staged[id]; !ok {
			out = append(out, v)
		}
	}
	return out
}

func (t *tx) GetTicketType(id string) (*models.TicketType, error) {
	v, ok := lookup(t.ticketTypes, t.store.ticketTypes, t.reset, id)
	if !ok {
		return nil, status.NotFound("ticket type", id)
	}
	return v.Clone(), nil
}

func (t *tx) ListTicketTypes() ([]*models.TicketType, error) {
	list := merged(t.ticketTypes, t.store.ticketTypes, t.reset)
	slices.SortFunc(list, func(a, b *models.TicketType) int { return strings.Compare(a.ID, b.ID) })
	out := make([]*models.TicketType, len(list))
	for i, v := range list {
		out[i] = v.Clone()
	}
	return out, nil
}

func (t *tx) CreateTicketType(tt *models.TicketType) error {
	if _, ok := lookup(t.ticketTypes, t.store.ticketTypes, t.reset, tt.ID); ok {
		return fmt.Errorf("ticket type %q already exists", tt.ID)
	}
	t.ticketTypes[tt.ID] = tt.Clone()
	return nil
}

func (t *tx) SaveTicketType(tt *models.TicketType) error {
	current, ok := lookup(t.ticketTypes, t.store.ticketTypes, t.reset, tt.ID)
	if !ok {
		return status.NotFound("ticket type", tt.ID)
	}
	if current.Version != tt.Version {
		return fmt.Errorf("ticket type %s: %w", tt.ID, status.ErrConflict)
	}
	tt.Version++
	t.ticketTypes[tt.ID] = tt.Clone()
	return nil
}

func (t *tx) GetOrder(id string) (*models.Order, error) {
	v, ok := lookup(t.orders, t.store.orders, t.reset, id)
	if !ok {
		return nil, status.NotFound("order", id)
	}
	return v.Clone(), nil
}

func (t *tx) ListOrders(filter models.OrderFilter) ([]*models.Order, error) {
	var out []*models.Order
	for _, o := range merged(t.orders, t.store.orders, t.reset) {
		if filter.Match(o) {
			out = append(out, o.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.Order) int {
		if c := a.OrderedAt.Compare(b.OrderedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (t *tx) CreateOrder(o *models.Order) error {
	if _, ok := lookup(t.orders, t.store.orders, t.reset, o.ID); ok {
		return fmt.Errorf("order %q already exists", o.ID)
	}
	t.orders[o.ID] = o.Clone()
	return nil
}

func (t *tx) UpdateOrder(o *models.Order, from models.OrderStatus) error {
	current, ok := lookup(t.orders, t.store.orders, t.reset, o.ID)
	if !ok {
		return status.NotFound("order", o.ID)
	}
	if current.Status != from {
		return fmt.Errorf("order %s is %s, not %s: %w", o.ID, current.Status, from, status.ErrConflict)
	}
	t.orders[o.ID] = o.Clone()
	return nil
}

func (t *tx) GetQueueEntry(id string) (*models.QueueEntry, error) {
	v, ok := lookup(t.entries, t.store.entries, t.reset, id)
	if !ok {
		return nil, status.NotFound("queue entry", id)
	}
	return v.Clone(), nil
}

func (t *tx) ListQueueEntries(filter models.QueueFilter) ([]*models.QueueEntry, error) {
	var out []*models.QueueEntry
	for _, e := range merged(t.entries, t.store.entries, t.reset) {
		if filter.Match(e) {
			out = append(out, e.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.QueueEntry) int {
		if a.Before(b) {
			return -1
		}
		if b.Before(a) {
			return 1
		}
		return 0
	})
	return out, nil
}

func (t *tx) CreateQueueEntry(e *models.QueueEntry) error {
	if _, ok := lookup(t.entries, t.store.entries, t.reset, e.ID); ok {
		return fmt.Errorf("queue entry %q already exists", e.ID)
	}
	t.entries[e.ID] = e.Clone()
	return nil
}

func (t *tx) UpdateQueueEntry(e *models.QueueEntry) error {
	if _, ok := lookup(t.entries, t.store.entries, t.reset, e.ID); !ok {
		return status.NotFound("queue entry", e.ID)
	}
	t.entries[e.ID] = e.Clone()
	return nil
}

func (t *tx) Reset(defaults []*models.TicketType) error {
	t.reset = true
	t.ticketTypes = make(map[string]*models.TicketType, len(defaults))
	t.orders = make(map[string]*models.Order)
	t.entries = make(map[string]*models.QueueEntry)
	for _, d := range defaults {
		t.ticketTypes[d.ID] = d.Clone()
	}
	return nil
}
