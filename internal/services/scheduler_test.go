package services

import (
	"testing"
	"time"

	"ticket-workflow/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingOrder(id string, at time.Time, categories ...models.Category) *models.Order {
	o := &models.Order{ID: id, Status: models.OrderStatusPending, OrderedAt: at}
	for _, c := range categories {
		o.Lines = append(o.Lines, models.OrderLine{TicketTypeID: string(c), Category: c, Quantity: 1})
	}
	return o
}

func TestPrioritize_TiersThenAgeThenID(t *testing.T) {
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

	regularOld := pendingOrder("r-old", base, models.CategoryRegular)
	mixed := pendingOrder("mixed", base.Add(time.Minute), models.CategoryVIP, models.CategoryRegular)
	vipNew := pendingOrder("v-new", base.Add(2*time.Minute), models.CategoryVIP)
	vipTieB := pendingOrder("v-b", base.Add(time.Minute), models.CategoryVIP)
	vipTieA := pendingOrder("v-a", base.Add(time.Minute), models.CategoryVIP)
	approved := pendingOrder("approved", base.Add(-time.Hour), models.CategoryVIP)
	approved.Status = models.OrderStatusApproved

	input := []*models.Order{regularOld, mixed, vipNew, approved, vipTieB, vipTieA}
	sorted := Prioritize(input)

	ids := make([]string, len(sorted))
	for i, o := range sorted {
		ids[i] = o.ID
	}
	assert.Equal(t, []string{"v-a", "v-b", "v-new", "mixed", "r-old"}, ids)
	assert.Equal(t, "r-old", input[0].ID, "input must stay untouched")
}

func TestNextToProcess(t *testing.T) {
	base := time.Now()

	assert.Nil(t, NextToProcess(nil))

	orders := []*models.Order{
		pendingOrder("regular", base.Add(-time.Hour), models.CategoryRegular),
		pendingOrder("mixed", base, models.CategoryRegular, models.CategoryVIP),
	}
	next := NextToProcess(orders)
	require.NotNil(t, next)
	assert.Equal(t, "mixed", next.ID)

	orders[1].Status = models.OrderStatusRejected
	assert.Equal(t, "regular", NextToProcess(orders).ID)
}

func TestCompare_IsTotalOrder(t *testing.T) {
	at := time.Now()
	a := pendingOrder("a", at, models.CategoryVIP)
	b := pendingOrder("b", at, models.CategoryVIP)

	assert.Equal(t, -1, Compare(a, b))
	assert.Equal(t, 1, Compare(b, a))
	assert.Equal(t, 0, Compare(a, a))
}

func TestSweepCandidates(t *testing.T) {
	at := time.Now()
	waiting := []*models.QueueEntry{
		{ID: "1", Quantity: 2, JoinedAt: at},
		{ID: "2", Quantity: 1, JoinedAt: at.Add(time.Second)},
		{ID: "3", Quantity: 3, JoinedAt: at.Add(2 * time.Second)},
		{ID: "4", Quantity: 1, JoinedAt: at.Add(3 * time.Second)},
	}

	tests := []struct {
		available int
		expected  []string
	}{
		{-1, nil},
		{0, nil},
		{1, []string{"1"}},
		{2, []string{"1", "2"}},
		{3, []string{"1", "2", "3"}},
		{10, []string{"1", "2", "3", "4"}},
	}

	for _, tt := range tests {
		var ids []string
		for _, c := range SweepCandidates(waiting, tt.available) {
			ids = append(ids, c.ID)
		}
		assert.Equal(t, tt.expected, ids, "available %d", tt.available)
	}
}

func TestSweepCandidates_LargeHeadDoesNotBlockQueue(t *testing.T) {
	at := time.Now()
	waiting := []*models.QueueEntry{
		{ID: "big", Quantity: 5, JoinedAt: at},
		{ID: "a", Quantity: 1, JoinedAt: at.Add(time.Second)},
		{ID: "b", Quantity: 1, JoinedAt: at.Add(2 * time.Second)},
		{ID: "c", Quantity: 1, JoinedAt: at.Add(3 * time.Second)},
	}

	candidates := SweepCandidates(waiting, 4)
	require.Len(t, candidates, 4)
	assert.Equal(t, "big", candidates[0].ID)
	assert.Equal(t, "c", candidates[3].ID)

	candidates[0] = nil
	assert.NotNil(t, waiting[0], "result must not alias the input")
}
