package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"ticket-workflow/internal/status"
	"ticket-workflow/models"
	"ticket-workflow/monitoring"
	"ticket-workflow/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const defaultMaxRetries = 3

// Notifier receives the events of a committed operation.
type Notifier interface {
	Notify(ctx context.Context, events []models.Event)
}

// WorkflowService runs every order, inventory and queue operation. Each call
// is one store transaction: ledger mutations and order or queue writes
// commit together or not at all.
type WorkflowService struct {
	store    Store
	notifier Notifier
	monitor  *monitoring.Monitor
	guard    RequestGuard

	Now          func() time.Time
	NewReference func(now time.Time) string
	// MaxRetries bounds how often a transaction is replayed after a
	// concurrent version conflict.
	MaxRetries int
}

func NewWorkflowService(store Store, notifier Notifier, monitor *monitoring.Monitor, guard RequestGuard) *WorkflowService {
	return &WorkflowService{
		store:        store,
		notifier:     notifier,
		monitor:      monitor,
		guard:        guard,
		Now:          time.Now,
		NewReference: utils.OrderReference,
		MaxRetries:   defaultMaxRetries,
	}
}

// txScope is the state of one transaction attempt.
type txScope struct {
	tx     Tx
	ledger *Ledger
	queue  *WaitingQueue
	now    time.Time
	events []models.Event
	sweeps map[string]sweepResult
	short  []string
}

type sweepResult struct {
	waiting    int
	candidates int
}

func (sc *txScope) emit(e models.Event) {
	e.Timestamp = sc.now
	sc.events = append(sc.events, e)
}

// sweep surfaces queue candidates for ticketTypeID from the ledger's working row.
func (sc *txScope) sweep(ticketTypeID string) ([]*models.QueueEntry, error) {
	t, err := sc.ledger.Get(ticketTypeID)
	if err != nil {
		return nil, err
	}
	waiting, err := sc.queue.Waiting(ticketTypeID)
	if err != nil {
		return nil, err
	}
	candidates := SweepCandidates(waiting, t.Available)
	sc.sweeps[ticketTypeID] = sweepResult{waiting: len(waiting), candidates: len(candidates)}

	if len(candidates) > 0 {
		ids := make([]string, len(candidates))
		for i, c := range candidates {
			ids[i] = c.ID
		}
		sc.emit(models.Event{
			Type:         models.EventQueueCandidates,
			TicketTypeID: ticketTypeID,
			Candidates:   ids,
			Data:         map[string]any{"available": t.Available},
		})
	}
	return candidates, nil
}

// run executes fn in a store transaction and replays it on version conflicts.
// Metrics and events are emitted only after a successful commit.
func (s *WorkflowService) run(ctx context.Context, operation string, fn func(sc *txScope) error) error {
	start := time.Now()
	defer func() { s.monitor.TrackOperation(operation, time.Since(start)) }()

	var sc *txScope
	var err error
	for attempt := 0; attempt <= s.MaxRetries; attempt++ {
		err = s.store.RunInTx(ctx, func(tx Tx) error {
			sc = &txScope{
				tx:     tx,
				ledger: NewLedger(tx),
				queue:  NewWaitingQueue(tx),
				now:    s.Now(),
				sweeps: make(map[string]sweepResult),
			}
			if err := fn(sc); err != nil {
				return err
			}
			return sc.ledger.Flush()
		})
		if !errors.Is(err, status.ErrConflict) {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	if err != nil {
		if sc != nil {
			for _, id := range sc.short {
				s.monitor.TrackReservationFailure(id)
			}
		}
		return err
	}

	for _, t := range sc.ledger.Touched() {
		s.monitor.TrackInventory(t)
	}
	for id, r := range sc.sweeps {
		s.monitor.TrackWaiting(id, r.waiting)
		s.monitor.TrackSweep(id, r.candidates)
	}
	if s.notifier != nil && len(sc.events) > 0 {
		s.notifier.Notify(ctx, sc.events)
	}
	return nil
}

func requireAdmin(who models.Identity) error {
	if !who.Valid() || !who.IsAdmin() {
		return status.ErrUnauthorized
	}
	return nil
}

func requireUser(who models.Identity) error {
	if !who.Valid() {
		return status.ErrUnauthorized
	}
	return nil
}

// aggregateLines merges requests for the same ticket type and drops zero
// quantities, keeping first-seen order.
func aggregateLines(lines []models.LineRequest) ([]models.LineRequest, error) {
	index := make(map[string]int, len(lines))
	var out []models.LineRequest
	total := 0
	for _, l := range lines {
		if l.Quantity < 0 {
			return nil, status.ErrQuantityCap
		}
		if l.Quantity == 0 {
			continue
		}
		total += l.Quantity
		if i, ok := index[l.TicketTypeID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		index[l.TicketTypeID] = len(out)
		out = append(out, l)
	}
	if total < 1 || total > models.MaxOrderQuantity {
		return nil, status.ErrQuantityCap
	}
	return out, nil
}

// PlaceOrder reserves stock for every line and creates a pending order. A
// non-empty requestID makes client retries of the same request safe.
func (s *WorkflowService) PlaceOrder(ctx context.Context, who models.Identity, lines []models.LineRequest, requestID string) (*models.Order, error) {
	if err := requireUser(who); err != nil {
		return nil, err
	}
	requested, err := aggregateLines(lines)
	if err != nil {
		return nil, err
	}

	if requestID != "" && s.guard != nil {
		if err := s.guard.Acquire(ctx, who.UserID, requestID); err != nil {
			return nil, err
		}
	}

	var order *models.Order
	err = s.run(ctx, "place_order", func(sc *txScope) error {
		active, err := sc.tx.ListOrders(models.OrderFilter{
			UserID:   who.UserID,
			Statuses: []models.OrderStatus{models.OrderStatusPending, models.OrderStatusApproved},
		})
		if err != nil {
			return err
		}
		if len(active) > 0 {
			return fmt.Errorf("%w: %s", status.ErrActiveOrder, active[0].ID)
		}

		orderLines := make([]models.OrderLine, 0, len(requested))
		for _, r := range requested {
			t, err := sc.ledger.Get(r.TicketTypeID)
			if err != nil {
				return err
			}
			if !t.Price.Valid {
				return fmt.Errorf("ticket type %s: %w", t.ID, status.ErrPriceNotSet)
			}
			orderLines = append(orderLines, models.OrderLine{
				TicketTypeID: t.ID,
				Category:     t.Category,
				Quantity:     r.Quantity,
				UnitPrice:    t.Price.Decimal,
			})
		}

		if err := sc.ledger.ReserveLines(orderLines); err != nil {
			var short *status.InsufficientStockError
			if errors.As(err, &short) {
				sc.short = short.TicketTypeIDs
			}
			return err
		}

		order = &models.Order{
			ID:        uuid.Must(uuid.NewV7()).String(),
			Reference: s.NewReference(sc.now),
			UserID:    who.UserID,
			Status:    models.OrderStatusPending,
			Lines:     orderLines,
			OrderedAt: sc.now,
			UpdatedAt: sc.now,
		}
		if err := sc.tx.CreateOrder(order); err != nil {
			return err
		}
		sc.emit(models.Event{
			Type:    models.EventOrderPlaced,
			OrderID: order.ID,
			UserID:  order.UserID,
			Status:  string(order.Status),
			Data: map[string]any{
				"reference": order.Reference,
				"priority":  order.Priority().String(),
				"quantity":  order.TotalQuantity(),
				"amount":    order.TotalAmount().StringFixed(2),
			},
		})
		return nil
	})
	if err != nil {
		if requestID != "" && s.guard != nil {
			// the claim only protects successful placements
			_ = s.guard.Forget(context.WithoutCancel(ctx), who.UserID, requestID)
		}
		s.monitor.TrackTransition("place", "failed")
		return nil, err
	}
	s.monitor.TrackTransition("place", string(order.Status))
	return order, nil
}

// orderLoader picks the order a transition applies to, inside the
// transition's transaction.
type orderLoader func(sc *txScope) (*models.Order, error)

func byID(orderID string) orderLoader {
	return func(sc *txScope) (*models.Order, error) {
		return sc.tx.GetOrder(orderID)
	}
}

// ownedBy loads an order and refuses it unless who placed it.
func ownedBy(who models.Identity, orderID string) orderLoader {
	return func(sc *txScope) (*models.Order, error) {
		o, err := sc.tx.GetOrder(orderID)
		if err != nil {
			return nil, err
		}
		if o.UserID != who.UserID {
			return nil, status.ErrUnauthorized
		}
		return o, nil
	}
}

// headOfQueue loads the pending order the scheduler serves next.
func headOfQueue(sc *txScope) (*models.Order, error) {
	pending, err := sc.tx.ListOrders(models.OrderFilter{Statuses: []models.OrderStatus{models.OrderStatusPending}})
	if err != nil {
		return nil, err
	}
	next := NextToProcess(pending)
	if next == nil {
		return nil, fmt.Errorf("pending order: %w", status.ErrNotFound)
	}
	return next, nil
}

// transition loads an order, moves it to the target status and lets apply
// adjust the ledger before the order is written back.
func (s *WorkflowService) transition(ctx context.Context, operation string, load orderLoader, to models.OrderStatus, fn func(sc *txScope, order *models.Order, from models.OrderStatus) error) (*models.Order, error) {
	var order *models.Order
	err := s.run(ctx, operation, func(sc *txScope) error {
		o, err := load(sc)
		if err != nil {
			return err
		}
		from := o.Status
		if err := o.Transition(to, sc.now); err != nil {
			return err
		}
		if err := fn(sc, o, from); err != nil {
			return err
		}
		if err := sc.tx.UpdateOrder(o, from); err != nil {
			return err
		}
		sc.emit(models.Event{
			Type:    orderEventType(to),
			OrderID: o.ID,
			UserID:  o.UserID,
			Status:  string(o.Status),
			Data:    map[string]any{"from": string(from), "reference": o.Reference},
		})
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.monitor.TrackTransition(operation, string(order.Status))
	return order, nil
}

func orderEventType(to models.OrderStatus) models.EventType {
	switch to {
	case models.OrderStatusApproved:
		return models.EventOrderApproved
	case models.OrderStatusRejected:
		return models.EventOrderRejected
	case models.OrderStatusCompleted:
		return models.EventOrderCompleted
	default:
		return models.EventOrderCancelled
	}
}

// Approve accepts a pending order. Its reservation stays held.
func (s *WorkflowService) Approve(ctx context.Context, admin models.Identity, orderID, note string) (*models.Order, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	return s.approve(ctx, "approve", byID(orderID), note)
}

func (s *WorkflowService) approve(ctx context.Context, operation string, load orderLoader, note string) (*models.Order, error) {
	return s.transition(ctx, operation, load, models.OrderStatusApproved,
		func(sc *txScope, o *models.Order, _ models.OrderStatus) error {
			o.AppendNote(note)
			return nil
		})
}

// Reject refuses a pending order, releases its reservation and sweeps the
// waiting queues of the released ticket types.
func (s *WorkflowService) Reject(ctx context.Context, admin models.Identity, orderID, note string) (*models.Order, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	return s.reject(ctx, "reject", byID(orderID), note)
}

func (s *WorkflowService) reject(ctx context.Context, operation string, load orderLoader, note string) (*models.Order, error) {
	return s.transition(ctx, operation, load, models.OrderStatusRejected,
		func(sc *txScope, o *models.Order, _ models.OrderStatus) error {
			o.AppendNote(note)
			for _, l := range o.Lines {
				if err := sc.ledger.Release(l.TicketTypeID, l.Quantity); err != nil {
					return err
				}
			}
			return sweepAll(sc, o.TicketTypeIDs())
		})
}

// Complete turns the reservation of an approved order into a sale.
func (s *WorkflowService) Complete(ctx context.Context, admin models.Identity, orderID string) (*models.Order, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	return s.transition(ctx, "complete", byID(orderID), models.OrderStatusCompleted,
		func(sc *txScope, o *models.Order, _ models.OrderStatus) error {
			for _, l := range o.Lines {
				if err := sc.ledger.CommitSale(l.TicketTypeID, l.Quantity); err != nil {
					return err
				}
			}
			return nil
		})
}

// Cancel lets a customer give back an approved or completed order. Approved
// orders release their reservation, completed ones are refunded.
func (s *WorkflowService) Cancel(ctx context.Context, who models.Identity, orderID string) (*models.Order, error) {
	if err := requireUser(who); err != nil {
		return nil, err
	}
	return s.transition(ctx, "cancel", ownedBy(who, orderID), models.OrderStatusCancelled,
		func(sc *txScope, o *models.Order, from models.OrderStatus) error {
			for _, l := range o.Lines {
				var err error
				if from == models.OrderStatusCompleted {
					err = sc.ledger.Refund(l.TicketTypeID, l.Quantity)
				} else {
					err = sc.ledger.Release(l.TicketTypeID, l.Quantity)
				}
				if err != nil {
					return err
				}
			}
			o.AppendNote(fmt.Sprintf("[cancelled by customer for refund on %s]", sc.now.UTC().Format("2006-01-02 15:04")))
			return sweepAll(sc, o.TicketTypeIDs())
		})
}

func sweepAll(sc *txScope, ticketTypeIDs []string) error {
	for _, id := range ticketTypeIDs {
		if _, err := sc.sweep(id); err != nil {
			return err
		}
	}
	return nil
}

// ApproveNext approves the head of the approval queue. The head is picked in
// the same transaction that approves it. It returns status.ErrNotFound when
// nothing is pending.
func (s *WorkflowService) ApproveNext(ctx context.Context, admin models.Identity, note string) (*models.Order, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	return s.approve(ctx, "approve", headOfQueue, note)
}

// RejectNext rejects the head of the approval queue.
func (s *WorkflowService) RejectNext(ctx context.Context, admin models.Identity, note string) (*models.Order, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	return s.reject(ctx, "reject", headOfQueue, note)
}

// PendingQueue lists pending orders in the order they should be processed.
func (s *WorkflowService) PendingQueue(ctx context.Context, admin models.Identity) ([]*models.Order, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	var pending []*models.Order
	err := s.run(ctx, "pending_queue", func(sc *txScope) error {
		orders, err := sc.tx.ListOrders(models.OrderFilter{Statuses: []models.OrderStatus{models.OrderStatusPending}})
		if err != nil {
			return err
		}
		pending = Prioritize(orders)
		return nil
	})
	return pending, err
}

// GetOrder returns an order to its owner or to an admin.
func (s *WorkflowService) GetOrder(ctx context.Context, who models.Identity, orderID string) (*models.Order, error) {
	if err := requireUser(who); err != nil {
		return nil, err
	}
	var order *models.Order
	err := s.run(ctx, "get_order", func(sc *txScope) error {
		o, err := sc.tx.GetOrder(orderID)
		if err != nil {
			return err
		}
		if !who.IsAdmin() && o.UserID != who.UserID {
			return status.ErrUnauthorized
		}
		order = o
		return nil
	})
	return order, err
}

// ListOrders returns orders newest first, optionally narrowed to statuses.
func (s *WorkflowService) ListOrders(ctx context.Context, admin models.Identity, statuses ...models.OrderStatus) ([]*models.Order, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	return s.listOrders(ctx, models.OrderFilter{Statuses: statuses})
}

// MyOrders returns the caller's own orders newest first.
func (s *WorkflowService) MyOrders(ctx context.Context, who models.Identity) ([]*models.Order, error) {
	if err := requireUser(who); err != nil {
		return nil, err
	}
	return s.listOrders(ctx, models.OrderFilter{UserID: who.UserID})
}

func (s *WorkflowService) listOrders(ctx context.Context, filter models.OrderFilter) ([]*models.Order, error) {
	var orders []*models.Order
	err := s.run(ctx, "list_orders", func(sc *txScope) error {
		list, err := sc.tx.ListOrders(filter)
		if err != nil {
			return err
		}
		slices.Reverse(list)
		orders = list
		return nil
	})
	return orders, err
}

func (s *WorkflowService) ListTicketTypes(ctx context.Context) ([]*models.TicketType, error) {
	var types []*models.TicketType
	err := s.run(ctx, "list_ticket_types", func(sc *txScope) error {
		list, err := sc.tx.ListTicketTypes()
		types = list
		return err
	})
	return types, err
}

// CreateTicketType adds a ticket type with its full capacity available.
func (s *WorkflowService) CreateTicketType(ctx context.Context, admin models.Identity, category models.Category, name string, price decimal.NullDecimal, total int) (*models.TicketType, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	if total < 0 {
		return nil, status.ErrNegativeStock
	}
	if price.Valid && price.Decimal.IsNegative() {
		return nil, status.ErrNegativePrice
	}
	if _, err := models.ParseCategory(string(category)); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.ToUpper(string(category))
	}

	var created *models.TicketType
	err := s.run(ctx, "create_ticket_type", func(sc *txScope) error {
		t := &models.TicketType{
			ID:        uuid.Must(uuid.NewV7()).String(),
			Category:  category,
			Name:      name,
			Price:     price,
			Total:     total,
			Available: total,
			UpdatedAt: sc.now,
		}
		if err := sc.tx.CreateTicketType(t); err != nil {
			return err
		}
		sc.emit(models.Event{
			Type:         models.EventInventoryChange,
			TicketTypeID: t.ID,
			Data:         map[string]any{"total": t.Total, "available": t.Available},
		})
		created = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.monitor.TrackInventory(created)
	return created, nil
}

// AdjustCapacity resizes a ticket type. When units become available the
// waiting queue is swept.
func (s *WorkflowService) AdjustCapacity(ctx context.Context, admin models.Identity, ticketTypeID string, newTotal int) (*models.TicketType, []*models.QueueEntry, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, nil, err
	}
	var adjusted *models.TicketType
	var candidates []*models.QueueEntry
	err := s.run(ctx, "adjust_capacity", func(sc *txScope) error {
		t, err := sc.ledger.Get(ticketTypeID)
		if err != nil {
			return err
		}
		before := t.Available
		if err := sc.ledger.AdjustCapacity(ticketTypeID, newTotal); err != nil {
			return err
		}
		t.UpdatedAt = sc.now
		sc.emit(models.Event{
			Type:         models.EventInventoryChange,
			TicketTypeID: t.ID,
			Data:         map[string]any{"total": t.Total, "available": t.Available},
		})
		if t.Available > before {
			if candidates, err = sc.sweep(ticketTypeID); err != nil {
				return err
			}
		}
		adjusted = t.Clone()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return adjusted, candidates, nil
}

// SetPrice changes the price for future orders. Existing order lines keep
// the price they were placed at.
func (s *WorkflowService) SetPrice(ctx context.Context, admin models.Identity, ticketTypeID string, price decimal.Decimal) (*models.TicketType, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	var updated *models.TicketType
	err := s.run(ctx, "set_price", func(sc *txScope) error {
		if err := sc.ledger.SetPrice(ticketTypeID, price); err != nil {
			return err
		}
		t, err := sc.ledger.Get(ticketTypeID)
		if err != nil {
			return err
		}
		t.UpdatedAt = sc.now
		sc.emit(models.Event{
			Type:         models.EventInventoryChange,
			TicketTypeID: t.ID,
			Data:         map[string]any{"price": price.StringFixed(2)},
		})
		updated = t.Clone()
		return nil
	})
	return updated, err
}

// ResetInventory drops all orders and queue entries and restores the default
// ticket types.
func (s *WorkflowService) ResetInventory(ctx context.Context, admin models.Identity) ([]*models.TicketType, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	var types []*models.TicketType
	err := s.run(ctx, "reset_inventory", func(sc *txScope) error {
		defaults := models.DefaultTicketTypes()
		for _, t := range defaults {
			t.UpdatedAt = sc.now
		}
		if err := sc.tx.Reset(defaults); err != nil {
			return err
		}
		list, err := sc.tx.ListTicketTypes()
		if err != nil {
			return err
		}
		sc.emit(models.Event{Type: models.EventInventoryReset, UserID: admin.UserID})
		types = list
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, t := range types {
		s.monitor.TrackInventory(t)
		s.monitor.TrackWaiting(t.ID, 0)
		s.monitor.TrackSweep(t.ID, 0)
	}
	return types, nil
}

// JoinQueue puts a customer on the waiting list of a sold-out ticket type.
// A zero quantity means one ticket.
func (s *WorkflowService) JoinQueue(ctx context.Context, who models.Identity, ticketTypeID string, qty int) (*models.QueueEntry, error) {
	if err := requireUser(who); err != nil {
		return nil, err
	}
	if qty == 0 {
		qty = 1
	}
	if qty < 0 || qty > models.MaxOrderQuantity {
		return nil, status.ErrQuantityCap
	}

	var entry *models.QueueEntry
	err := s.run(ctx, "join_queue", func(sc *txScope) error {
		t, err := sc.ledger.Get(ticketTypeID)
		if err != nil {
			return err
		}
		if t.Available > 0 {
			return status.ErrStockAvailable
		}
		e, err := sc.queue.Join(ticketTypeID, who.UserID, qty, sc.now)
		if err != nil {
			return err
		}
		waiting, err := sc.queue.Waiting(ticketTypeID)
		if err != nil {
			return err
		}
		sc.sweeps[ticketTypeID] = sweepResult{waiting: len(waiting)}
		sc.emit(models.Event{
			Type:         models.EventQueueJoined,
			TicketTypeID: ticketTypeID,
			UserID:       who.UserID,
			Data:         map[string]any{"entry_id": e.ID, "quantity": e.Quantity, "position": len(waiting)},
		})
		entry = e
		return nil
	})
	return entry, err
}

// QueuePosition returns the caller's 1-based place in a waiting list, or 0
// when the caller is not waiting.
func (s *WorkflowService) QueuePosition(ctx context.Context, who models.Identity, ticketTypeID string) (int, *models.QueueEntry, error) {
	if err := requireUser(who); err != nil {
		return 0, nil, err
	}
	var position int
	var entry *models.QueueEntry
	err := s.run(ctx, "queue_position", func(sc *txScope) error {
		if _, err := sc.ledger.Get(ticketTypeID); err != nil {
			return err
		}
		var err error
		position, entry, err = sc.queue.Position(ticketTypeID, who.UserID)
		return err
	})
	return position, entry, err
}

// Candidates recomputes the sweep of a ticket type on demand.
func (s *WorkflowService) Candidates(ctx context.Context, admin models.Identity, ticketTypeID string) ([]*models.QueueEntry, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	var candidates []*models.QueueEntry
	err := s.run(ctx, "queue_candidates", func(sc *txScope) error {
		var err error
		candidates, err = sc.sweep(ticketTypeID)
		return err
	})
	return candidates, err
}

// QueueEntries lists queue entries for the admin view.
func (s *WorkflowService) QueueEntries(ctx context.Context, admin models.Identity, filter models.QueueFilter) ([]*models.QueueEntry, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	var entries []*models.QueueEntry
	err := s.run(ctx, "queue_entries", func(sc *txScope) error {
		list, err := sc.tx.ListQueueEntries(filter)
		entries = list
		return err
	})
	return entries, err
}

// Fulfill marks a waiting entry as served. It reserves nothing; the customer
// still places an order.
func (s *WorkflowService) Fulfill(ctx context.Context, admin models.Identity, entryID string) (*models.QueueEntry, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	var entry *models.QueueEntry
	err := s.run(ctx, "fulfill_queue", func(sc *txScope) error {
		e, err := sc.queue.Fulfill(entryID, sc.now)
		if err != nil {
			return err
		}
		sc.emit(models.Event{
			Type:         models.EventQueueFulfilled,
			TicketTypeID: e.TicketTypeID,
			UserID:       e.UserID,
			Status:       string(e.Status),
			Data:         map[string]any{"entry_id": e.ID},
		})
		entry = e
		return nil
	})
	return entry, err
}

// SweepAll sweeps every ticket type. The background sweeper calls it.
func (s *WorkflowService) SweepAll(ctx context.Context) (map[string][]*models.QueueEntry, error) {
	result := make(map[string][]*models.QueueEntry)
	err := s.run(ctx, "sweep_all", func(sc *txScope) error {
		types, err := sc.tx.ListTicketTypes()
		if err != nil {
			return err
		}
		for _, t := range types {
			candidates, err := sc.sweep(t.ID)
			if err != nil {
				return err
			}
			if len(candidates) > 0 {
				result[t.ID] = candidates
			}
		}
		return nil
	})
	return result, err
}

// Stats builds the admin snapshot. Revenue counts approved and completed
// orders at the prices they were placed at.
func (s *WorkflowService) Stats(ctx context.Context, admin models.Identity) (*models.Stats, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	var stats *models.Stats
	err := s.run(ctx, "stats", func(sc *txScope) error {
		types, err := sc.tx.ListTicketTypes()
		if err != nil {
			return err
		}
		orders, err := sc.tx.ListOrders(models.OrderFilter{})
		if err != nil {
			return err
		}
		waiting, err := sc.tx.ListQueueEntries(models.QueueFilter{Status: models.QueueStatusWaiting})
		if err != nil {
			return err
		}

		stats = &models.Stats{
			OrdersByStatus: make(map[models.OrderStatus]int),
			TotalOrders:    len(orders),
			Revenue:        decimal.Zero,
			GeneratedAt:    sc.now,
		}
		revenue := make(map[string]decimal.Decimal)
		for _, o := range orders {
			stats.OrdersByStatus[o.Status]++
			if o.Status != models.OrderStatusApproved && o.Status != models.OrderStatusCompleted {
				continue
			}
			stats.Revenue = stats.Revenue.Add(o.TotalAmount())
			for _, l := range o.Lines {
				revenue[l.TicketTypeID] = revenue[l.TicketTypeID].Add(l.Subtotal())
			}
		}
		queued := make(map[string]int)
		for _, e := range waiting {
			queued[e.TicketTypeID]++
		}
		for _, t := range types {
			stats.Tickets = append(stats.Tickets, models.TicketStats{
				TicketTypeID: t.ID,
				Category:     t.Category,
				Name:         t.Name,
				Price:        t.Price.Decimal,
				Total:        t.Total,
				Available:    t.Available,
				Reserved:     t.Reserved,
				Sold:         t.Sold,
				Waiting:      queued[t.ID],
				Revenue:      revenue[t.ID],
			})
		}
		return nil
	})
	return stats, err
}
