package services_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ticket-workflow/internal/services"
	"ticket-workflow/internal/status"
	"ticket-workflow/internal/store/memory"
	"ticket-workflow/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var admin = models.Admin("admin-1")

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.Event
}

func (n *recordingNotifier) Notify(ctx context.Context, events []models.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, events...)
}

func (n *recordingNotifier) types() []models.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]models.EventType, len(n.events))
	for i, e := range n.events {
		out[i] = e.Type
	}
	return out
}

// stepClock advances one second on every reading.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type mockGuard struct {
	mock.Mock
}

func (m *mockGuard) Acquire(ctx context.Context, userID, requestID string) error {
	return m.Called(userID, requestID).Error(0)
}

func (m *mockGuard) Forget(ctx context.Context, userID, requestID string) error {
	return m.Called(userID, requestID).Error(0)
}

func ticketType(id string, category models.Category, price int64, total int) *models.TicketType {
	return &models.TicketType{
		ID:        id,
		Category:  category,
		Name:      id,
		Price:     decimal.NewNullDecimal(decimal.NewFromInt(price)),
		Total:     total,
		Available: total,
	}
}

func setupWorkflow(t *testing.T, types ...*models.TicketType) (*services.WorkflowService, *memory.Store, *recordingNotifier) {
	t.Helper()
	if len(types) == 0 {
		types = models.DefaultTicketTypes()
	}
	store := memory.New(types...)
	notifier := &recordingNotifier{}
	svc := services.NewWorkflowService(store, notifier, nil, nil)
	clock := &stepClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	svc.Now = clock.Now
	return svc, store, notifier
}

func getTicketType(t *testing.T, svc *services.WorkflowService, id string) *models.TicketType {
	t.Helper()
	types, err := svc.ListTicketTypes(context.Background())
	require.NoError(t, err)
	for _, tt := range types {
		if tt.ID == id {
			return tt
		}
	}
	t.Fatalf("ticket type %s not found", id)
	return nil
}

func assertLedgerInvariant(t *testing.T, svc *services.WorkflowService) {
	t.Helper()
	types, err := svc.ListTicketTypes(context.Background())
	require.NoError(t, err)
	for _, tt := range types {
		assert.NoError(t, tt.CheckInvariant())
		assert.Equal(t, tt.Total, tt.Available+tt.Allocated(), "ticket type %s", tt.ID)
	}
}

func place(t *testing.T, svc *services.WorkflowService, user string, lines ...models.LineRequest) *models.Order {
	t.Helper()
	order, err := svc.PlaceOrder(context.Background(), models.Customer(user), lines, "")
	require.NoError(t, err)
	return order
}

func line(id string, qty int) models.LineRequest {
	return models.LineRequest{TicketTypeID: id, Quantity: qty}
}

func TestPlaceOrder_ReservesStockAndCreatesPendingOrder(t *testing.T) {
	svc, _, notifier := setupWorkflow(t)

	order := place(t, svc, "u1", line("vip", 2), line("regular", 1))

	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, 3, order.TotalQuantity())
	assert.Equal(t, models.PriorityMixed, order.Priority())
	assert.Equal(t, "285", order.TotalAmount().String())
	assert.NotEmpty(t, order.Reference)

	vip := getTicketType(t, svc, "vip")
	assert.Equal(t, 48, vip.Available)
	assert.Equal(t, 2, vip.Reserved)
	assert.Equal(t, 0, vip.Sold)
	assertLedgerInvariant(t, svc)

	assert.Equal(t, []models.EventType{models.EventOrderPlaced}, notifier.types())
}

func TestPlaceOrder_AggregatesDuplicateLines(t *testing.T) {
	svc, _, _ := setupWorkflow(t)

	order := place(t, svc, "u1", line("vip", 1), line("regular", 0), line("vip", 2))

	require.Len(t, order.Lines, 1)
	assert.Equal(t, 3, order.Lines[0].Quantity)
	assert.Equal(t, 47, getTicketType(t, svc, "vip").Available)
}

func TestPlaceOrder_QuantityCap(t *testing.T) {
	svc, _, _ := setupWorkflow(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		lines []models.LineRequest
	}{
		{"empty", nil},
		{"only zero lines", []models.LineRequest{line("vip", 0)}},
		{"six tickets", []models.LineRequest{line("vip", 3), line("regular", 3)}},
		{"negative line", []models.LineRequest{line("vip", 2), line("regular", -1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.PlaceOrder(ctx, models.Customer("u1"), tt.lines, "")
			assert.ErrorIs(t, err, status.ErrQuantityCap)
		})
	}

	assert.Equal(t, 50, getTicketType(t, svc, "vip").Available)
	assert.Equal(t, 30, getTicketType(t, svc, "regular").Available)
}

func TestPlaceOrder_InsufficientStockReservesNothing(t *testing.T) {
	svc, _, notifier := setupWorkflow(t,
		ticketType("vip", models.CategoryVIP, 100, 10),
		ticketType("regular", models.CategoryRegular, 85, 1),
	)

	_, err := svc.PlaceOrder(context.Background(), models.Customer("u1"),
		[]models.LineRequest{line("vip", 3), line("regular", 2)}, "")

	require.ErrorIs(t, err, status.ErrInsufficientStock)
	var short *status.InsufficientStockError
	require.True(t, errors.As(err, &short))
	assert.Equal(t, []string{"regular"}, short.TicketTypeIDs)

	assert.Equal(t, 10, getTicketType(t, svc, "vip").Available)
	assert.Equal(t, 1, getTicketType(t, svc, "regular").Available)
	assertLedgerInvariant(t, svc)
	assert.Empty(t, notifier.types())

	orders, err := svc.ListOrders(context.Background(), admin)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestPlaceOrder_ValidatesTicketTypes(t *testing.T) {
	unpriced := ticketType("balcony", models.CategoryRegular, 0, 5)
	unpriced.Price = decimal.NullDecimal{}
	svc, _, _ := setupWorkflow(t, ticketType("vip", models.CategoryVIP, 100, 5), unpriced)
	ctx := context.Background()

	_, err := svc.PlaceOrder(ctx, models.Customer("u1"), []models.LineRequest{line("ghost", 1)}, "")
	assert.ErrorIs(t, err, status.ErrNotFound)

	_, err = svc.PlaceOrder(ctx, models.Customer("u1"), []models.LineRequest{line("vip", 1), line("balcony", 1)}, "")
	assert.ErrorIs(t, err, status.ErrPriceNotSet)
	assert.Equal(t, 5, getTicketType(t, svc, "vip").Available)

	_, err = svc.PlaceOrder(ctx, models.Identity{}, []models.LineRequest{line("vip", 1)}, "")
	assert.ErrorIs(t, err, status.ErrUnauthorized)
}

func TestPlaceOrder_OneActiveOrderPerUser(t *testing.T) {
	svc, _, _ := setupWorkflow(t)
	ctx := context.Background()

	first := place(t, svc, "u1", line("vip", 1))

	_, err := svc.PlaceOrder(ctx, models.Customer("u1"), []models.LineRequest{line("regular", 1)}, "")
	assert.ErrorIs(t, err, status.ErrActiveOrder)

	_, err = svc.Reject(ctx, admin, first.ID, "duplicate")
	require.NoError(t, err)

	second := place(t, svc, "u1", line("regular", 1))
	assert.NotEqual(t, first.ID, second.ID)
}

func TestPlaceOrder_RequestIDDeduplicates(t *testing.T) {
	svc, store, _ := setupWorkflow(t)
	guard := &mockGuard{}
	svc = services.NewWorkflowService(store, nil, nil, guard)
	ctx := context.Background()

	guard.On("Acquire", "u1", "req-1").Return(nil).Once()
	guard.On("Acquire", "u1", "req-1").Return(status.ErrDuplicateRequest).Once()

	_, err := svc.PlaceOrder(ctx, models.Customer("u1"), []models.LineRequest{line("vip", 1)}, "req-1")
	require.NoError(t, err)

	_, err = svc.PlaceOrder(ctx, models.Customer("u1"), []models.LineRequest{line("vip", 1)}, "req-1")
	assert.ErrorIs(t, err, status.ErrDuplicateRequest)
	assert.Equal(t, 49, getTicketType(t, svc, "vip").Available)

	guard.AssertExpectations(t)
}

func TestPlaceOrder_FailedPlacementForgetsRequestID(t *testing.T) {
	_, store, _ := setupWorkflow(t, ticketType("vip", models.CategoryVIP, 100, 1))
	guard := &mockGuard{}
	svc := services.NewWorkflowService(store, nil, nil, guard)

	guard.On("Acquire", "u1", "req-9").Return(nil)
	guard.On("Forget", "u1", "req-9").Return(nil)

	_, err := svc.PlaceOrder(context.Background(), models.Customer("u1"), []models.LineRequest{line("vip", 2)}, "req-9")
	assert.ErrorIs(t, err, status.ErrInsufficientStock)
	guard.AssertCalled(t, "Forget", "u1", "req-9")
}

func TestReject_TwiceFailsWithoutTouchingLedger(t *testing.T) {
	svc, _, _ := setupWorkflow(t)
	ctx := context.Background()
	order := place(t, svc, "u1", line("vip", 2))

	rejected, err := svc.Reject(ctx, admin, order.ID, "sold elsewhere")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusRejected, rejected.Status)
	assert.Equal(t, "sold elsewhere", rejected.AdminNote)

	before := getTicketType(t, svc, "vip")
	assert.Equal(t, 50, before.Available)

	_, err = svc.Reject(ctx, admin, order.ID, "again")
	assert.ErrorIs(t, err, status.ErrInvalidTransition)

	after := getTicketType(t, svc, "vip")
	assert.Equal(t, before, after)
}

func TestApprove_InvalidSourceState(t *testing.T) {
	svc, _, _ := setupWorkflow(t)
	ctx := context.Background()
	order := place(t, svc, "u1", line("vip", 1))

	_, err := svc.Complete(ctx, admin, order.ID)
	assert.ErrorIs(t, err, status.ErrInvalidTransition)

	_, err = svc.Approve(ctx, admin, order.ID, "")
	require.NoError(t, err)
	_, err = svc.Approve(ctx, admin, order.ID, "")
	assert.ErrorIs(t, err, status.ErrInvalidTransition)

	_, err = svc.Approve(ctx, admin, "missing", "")
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestAdminOperationsRequireAdmin(t *testing.T) {
	svc, _, _ := setupWorkflow(t)
	ctx := context.Background()
	order := place(t, svc, "u1", line("vip", 1))
	customer := models.Customer("u1")

	_, err := svc.Approve(ctx, customer, order.ID, "")
	assert.ErrorIs(t, err, status.ErrUnauthorized)
	_, err = svc.Reject(ctx, customer, order.ID, "")
	assert.ErrorIs(t, err, status.ErrUnauthorized)
	_, err = svc.Complete(ctx, customer, order.ID)
	assert.ErrorIs(t, err, status.ErrUnauthorized)
	_, _, err = svc.AdjustCapacity(ctx, customer, "vip", 100)
	assert.ErrorIs(t, err, status.ErrUnauthorized)
	_, err = svc.SetPrice(ctx, customer, "vip", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, status.ErrUnauthorized)
	_, err = svc.Fulfill(ctx, customer, "q1")
	assert.ErrorIs(t, err, status.ErrUnauthorized)
	_, err = svc.Stats(ctx, customer)
	assert.ErrorIs(t, err, status.ErrUnauthorized)
	_, err = svc.ResetInventory(ctx, customer)
	assert.ErrorIs(t, err, status.ErrUnauthorized)
}

func TestApproveCompleteCancel_RoundTrip(t *testing.T) {
	svc, _, notifier := setupWorkflow(t)
	ctx := context.Background()
	before := getTicketType(t, svc, "vip")

	order := place(t, svc, "u1", line("vip", 3))

	approved, err := svc.Approve(ctx, admin, order.ID, "ok")
	require.NoError(t, err)
	require.NotNil(t, approved.ApprovedAt)
	vip := getTicketType(t, svc, "vip")
	assert.Equal(t, 47, vip.Available)
	assert.Equal(t, 3, vip.Reserved)

	completed, err := svc.Complete(ctx, admin, order.ID)
	require.NoError(t, err)
	require.NotNil(t, completed.CompletedAt)
	vip = getTicketType(t, svc, "vip")
	assert.Equal(t, 0, vip.Reserved)
	assert.Equal(t, 3, vip.Sold)
	assertLedgerInvariant(t, svc)

	cancelled, err := svc.Cancel(ctx, models.Customer("u1"), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
	assert.Contains(t, cancelled.AdminNote, "ok\n[cancelled by customer for refund on 2026-05-01")

	after := getTicketType(t, svc, "vip")
	assert.Equal(t, before.Available, after.Available)
	assert.Equal(t, before.Sold, after.Sold)
	assert.Equal(t, before.Reserved, after.Reserved)

	assert.Equal(t, []models.EventType{
		models.EventOrderPlaced,
		models.EventOrderApproved,
		models.EventOrderCompleted,
		models.EventOrderCancelled,
	}, notifier.types())
}

func TestCancel_ApprovedReleasesReservation(t *testing.T) {
	svc, _, _ := setupWorkflow(t)
	ctx := context.Background()
	order := place(t, svc, "u1", line("regular", 2))
	_, err := svc.Approve(ctx, admin, order.ID, "")
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, models.Customer("u1"), order.ID)
	require.NoError(t, err)

	regular := getTicketType(t, svc, "regular")
	assert.Equal(t, 30, regular.Available)
	assert.Equal(t, 0, regular.Reserved)
}

func TestCancel_OwnershipAndState(t *testing.T) {
	svc, _, _ := setupWorkflow(t)
	ctx := context.Background()
	order := place(t, svc, "u1", line("vip", 1))

	_, err := svc.Cancel(ctx, models.Customer("u1"), order.ID)
	assert.ErrorIs(t, err, status.ErrInvalidTransition)

	// ownership is checked before the status
	_, err = svc.Cancel(ctx, models.Customer("intruder"), order.ID)
	assert.ErrorIs(t, err, status.ErrUnauthorized)

	_, err = svc.Approve(ctx, admin, order.ID, "")
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, models.Customer("intruder"), order.ID)
	assert.ErrorIs(t, err, status.ErrUnauthorized)
	assert.Equal(t, 1, getTicketType(t, svc, "vip").Reserved)
}

func TestScheduler_VIPBeforeRegularRegardlessOfSubmission(t *testing.T) {
	svc, _, _ := setupWorkflow(t,
		ticketType("vip", models.CategoryVIP, 100, 10),
		ticketType("regular", models.CategoryRegular, 85, 5),
	)
	ctx := context.Background()

	b := place(t, svc, "bob", line("regular", 2))
	a := place(t, svc, "alice", line("vip", 3))

	assert.Equal(t, 7, getTicketType(t, svc, "vip").Available)
	assert.Equal(t, 3, getTicketType(t, svc, "regular").Available)

	pending, err := svc.PendingQueue(ctx, admin)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, a.ID, pending[0].ID)
	assert.Equal(t, b.ID, pending[1].ID)

	next, err := svc.ApproveNext(ctx, admin, "vip first")
	require.NoError(t, err)
	assert.Equal(t, a.ID, next.ID)

	next, err = svc.RejectNext(ctx, admin, "")
	require.NoError(t, err)
	assert.Equal(t, b.ID, next.ID)

	_, err = svc.ApproveNext(ctx, admin, "")
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestApproveNext_ConcurrentAdminsTakeDistinctOrders(t *testing.T) {
	svc, _, _ := setupWorkflow(t)
	ctx := context.Background()

	const n = 6
	for i := 0; i < n; i++ {
		place(t, svc, fmt.Sprintf("u%d", i), line("regular", 1))
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[string]bool)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			o, err := svc.ApproveNext(ctx, admin, "")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			seen[o.ID] = true
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	assert.Len(t, seen, n)
	_, err := svc.ApproveNext(ctx, admin, "")
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestJoinAdjustSweep(t *testing.T) {
	svc, _, notifier := setupWorkflow(t,
		ticketType("vip", models.CategoryVIP, 100, 10),
		ticketType("regular", models.CategoryRegular, 85, 0),
	)
	ctx := context.Background()

	var joined []*models.QueueEntry
	for i := 0; i < 7; i++ {
		e, err := svc.JoinQueue(ctx, models.Customer(fmt.Sprintf("u%d", i)), "regular", 0)
		require.NoError(t, err)
		assert.Equal(t, models.QueueStatusWaiting, e.Status)
		assert.Equal(t, 1, e.Quantity)
		joined = append(joined, e)
	}

	_, err := svc.JoinQueue(ctx, models.Customer("u0"), "regular", 1)
	assert.ErrorIs(t, err, status.ErrAlreadyQueued)
	_, err = svc.JoinQueue(ctx, models.Customer("u0"), "vip", 1)
	assert.ErrorIs(t, err, status.ErrStockAvailable)

	pos, _, err := svc.QueuePosition(ctx, models.Customer("u3"), "regular")
	require.NoError(t, err)
	assert.Equal(t, 4, pos)

	adjusted, candidates, err := svc.AdjustCapacity(ctx, admin, "regular", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, adjusted.Available)
	require.Len(t, candidates, 5)
	for i, c := range candidates {
		assert.Equal(t, joined[i].ID, c.ID)
	}
	assert.Contains(t, notifier.types(), models.EventQueueCandidates)

	// sweeping changes nothing
	entries, err := svc.QueueEntries(ctx, admin, models.QueueFilter{TicketTypeID: "regular", Status: models.QueueStatusWaiting})
	require.NoError(t, err)
	assert.Len(t, entries, 7)
	assert.Equal(t, 5, getTicketType(t, svc, "regular").Available)

	fulfilled, err := svc.Fulfill(ctx, admin, candidates[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueueStatusFulfilled, fulfilled.Status)
	_, err = svc.Fulfill(ctx, admin, candidates[0].ID)
	assert.ErrorIs(t, err, status.ErrInvalidTransition)

	again, err := svc.Candidates(ctx, admin, "regular")
	require.NoError(t, err)
	require.Len(t, again, 5)
	assert.Equal(t, joined[1].ID, again[0].ID)

	// the fulfilled customer still has to place an order
	place(t, svc, "u0", line("regular", 1))
	assert.Equal(t, 4, getTicketType(t, svc, "regular").Available)
}

func TestAdjustCapacity_LargeRequestDoesNotHideLaterEntries(t *testing.T) {
	svc, _, _ := setupWorkflow(t, ticketType("regular", models.CategoryRegular, 85, 0))
	ctx := context.Background()

	first, err := svc.JoinQueue(ctx, models.Customer("u1"), "regular", 5)
	require.NoError(t, err)
	for _, u := range []string{"u2", "u3", "u4"} {
		_, err := svc.JoinQueue(ctx, models.Customer(u), "regular", 1)
		require.NoError(t, err)
	}

	adjusted, candidates, err := svc.AdjustCapacity(ctx, admin, "regular", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, adjusted.Available)
	require.Len(t, candidates, 4)
	assert.Equal(t, first.ID, candidates[0].ID)
	assert.Equal(t, "u4", candidates[3].UserID)
}

func TestReject_SweepsReleasedTicketTypes(t *testing.T) {
	svc, _, _ := setupWorkflow(t, ticketType("regular", models.CategoryRegular, 85, 2))
	ctx := context.Background()

	order := place(t, svc, "u1", line("regular", 2))
	waiter, err := svc.JoinQueue(ctx, models.Customer("u2"), "regular", 2)
	require.NoError(t, err)

	_, err = svc.Reject(ctx, admin, order.ID, "")
	require.NoError(t, err)

	sweep, err := svc.SweepAll(ctx)
	require.NoError(t, err)
	require.Len(t, sweep["regular"], 1)
	assert.Equal(t, waiter.ID, sweep["regular"][0].ID)
}

func TestAdjustCapacity_BelowAllocatedFails(t *testing.T) {
	svc, _, _ := setupWorkflow(t, ticketType("vip", models.CategoryVIP, 100, 10))
	ctx := context.Background()
	place(t, svc, "u1", line("vip", 4))

	_, _, err := svc.AdjustCapacity(ctx, admin, "vip", 3)
	assert.ErrorIs(t, err, status.ErrNegativeStock)

	adjusted, candidates, err := svc.AdjustCapacity(ctx, admin, "vip", 4)
	require.NoError(t, err)
	assert.Equal(t, 0, adjusted.Available)
	assert.Empty(t, candidates)
	assertLedgerInvariant(t, svc)
}

func TestSetPrice_KeepsCapturedLinePrices(t *testing.T) {
	svc, _, _ := setupWorkflow(t)
	ctx := context.Background()
	order := place(t, svc, "u1", line("vip", 1))

	_, err := svc.SetPrice(ctx, admin, "vip", decimal.NewFromInt(-5))
	assert.ErrorIs(t, err, status.ErrNegativePrice)

	updated, err := svc.SetPrice(ctx, admin, "vip", decimal.RequireFromString("120.00"))
	require.NoError(t, err)
	assert.Equal(t, "120", updated.Price.Decimal.String())

	stored, err := svc.GetOrder(ctx, models.Customer("u1"), order.ID)
	require.NoError(t, err)
	assert.Equal(t, "100", stored.Lines[0].UnitPrice.String())

	_, err = svc.GetOrder(ctx, models.Customer("u2"), order.ID)
	assert.ErrorIs(t, err, status.ErrUnauthorized)
}

func TestCreateTicketType(t *testing.T) {
	svc, _, _ := setupWorkflow(t)
	ctx := context.Background()

	created, err := svc.CreateTicketType(ctx, admin, models.CategoryVIP, "Backstage", decimal.NewNullDecimal(decimal.NewFromInt(250)), 4)
	require.NoError(t, err)
	assert.Equal(t, 4, created.Available)

	order := place(t, svc, "u1", line(created.ID, 2))
	assert.Equal(t, models.PriorityVIP, order.Priority())

	_, err = svc.CreateTicketType(ctx, admin, models.CategoryRegular, "Broken", decimal.NullDecimal{}, -1)
	assert.ErrorIs(t, err, status.ErrNegativeStock)
}

func TestListingsAndStats(t *testing.T) {
	svc, _, _ := setupWorkflow(t)
	ctx := context.Background()

	o1 := place(t, svc, "u1", line("vip", 2))
	o2 := place(t, svc, "u2", line("regular", 1), line("vip", 1))
	o3 := place(t, svc, "u3", line("regular", 3))

	_, err := svc.Approve(ctx, admin, o1.ID, "")
	require.NoError(t, err)
	_, err = svc.Approve(ctx, admin, o2.ID, "")
	require.NoError(t, err)
	_, err = svc.Complete(ctx, admin, o2.ID)
	require.NoError(t, err)
	_, err = svc.Reject(ctx, admin, o3.ID, "")
	require.NoError(t, err)

	all, err := svc.ListOrders(ctx, admin)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, o3.ID, all[0].ID)

	approved, err := svc.ListOrders(ctx, admin, models.OrderStatusApproved)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, o1.ID, approved[0].ID)

	mine, err := svc.MyOrders(ctx, models.Customer("u2"))
	require.NoError(t, err)
	require.Len(t, mine, 1)

	stats, err := svc.Stats(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalOrders)
	assert.Equal(t, 1, stats.OrdersByStatus[models.OrderStatusApproved])
	assert.Equal(t, 1, stats.OrdersByStatus[models.OrderStatusCompleted])
	assert.Equal(t, 1, stats.OrdersByStatus[models.OrderStatusRejected])
	// 2x100 + (85 + 100)
	assert.Equal(t, "385", stats.Revenue.String())

	byID := map[string]models.TicketStats{}
	for _, ts := range stats.Tickets {
		byID[ts.TicketTypeID] = ts
	}
	assert.Equal(t, "300", byID["vip"].Revenue.String())
	assert.Equal(t, 1, byID["vip"].Sold)
	assert.Equal(t, 2, byID["vip"].Reserved)
	assert.Equal(t, "85", byID["regular"].Revenue.String())
}

func TestResetInventory(t *testing.T) {
	svc, _, _ := setupWorkflow(t, ticketType("vip", models.CategoryVIP, 10, 1))
	ctx := context.Background()
	place(t, svc, "u1", line("vip", 1))
	_, err := svc.JoinQueue(ctx, models.Customer("u2"), "vip", 1)
	require.NoError(t, err)

	types, err := svc.ResetInventory(ctx, admin)
	require.NoError(t, err)
	require.Len(t, types, 2)

	orders, err := svc.ListOrders(ctx, admin)
	require.NoError(t, err)
	assert.Empty(t, orders)
	entries, err := svc.QueueEntries(ctx, admin, models.QueueFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 50, getTicketType(t, svc, "vip").Available)
	assert.Equal(t, 30, getTicketType(t, svc, "regular").Total)
}

func TestConcurrentPlacements_ExactlyAvailableSucceed(t *testing.T) {
	const (
		workers   = 40
		available = 13
	)
	svc, _, _ := setupWorkflow(t, ticketType("regular", models.CategoryRegular, 85, available))

	var successes, shortages atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.PlaceOrder(context.Background(), models.Customer(fmt.Sprintf("user-%d", i)),
				[]models.LineRequest{line("regular", 1)}, "")
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, status.ErrInsufficientStock):
				shortages.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(available), successes.Load())
	assert.Equal(t, int32(workers-available), shortages.Load())
	regular := getTicketType(t, svc, "regular")
	assert.Equal(t, 0, regular.Available)
	assert.Equal(t, available, regular.Reserved)
	assertLedgerInvariant(t, svc)
}

// conflictingStore fails the first attempts with a version conflict.
type conflictingStore struct {
	services.Store
	failures atomic.Int32
	calls    atomic.Int32
}

func (s *conflictingStore) RunInTx(ctx context.Context, fn func(tx services.Tx) error) error {
	s.calls.Add(1)
	if s.failures.Add(-1) >= 0 {
		return fmt.Errorf("ticket type vip: %w", status.ErrConflict)
	}
	return s.Store.RunInTx(ctx, fn)
}

func TestWorkflow_RetriesOnConflict(t *testing.T) {
	store := &conflictingStore{Store: memory.New(models.DefaultTicketTypes()...)}
	store.failures.Store(2)
	svc := services.NewWorkflowService(store, nil, nil, nil)

	_, err := svc.PlaceOrder(context.Background(), models.Customer("u1"), []models.LineRequest{line("vip", 1)}, "")
	require.NoError(t, err)
	assert.Equal(t, int32(3), store.calls.Load())

	store.failures.Store(10)
	svc.MaxRetries = 1
	_, err = svc.PlaceOrder(context.Background(), models.Customer("u2"), []models.LineRequest{line("vip", 1)}, "")
	assert.ErrorIs(t, err, status.ErrConflict)
}
