package services

import (
	"cmp"
	"slices"

	"ticket-workflow/models"
)

// Compare is the total order the approval queue is served in: VIP orders,
// then mixed, then regular; oldest first inside a tier; ties by id.
func Compare(a, b *models.Order) int {
	if c := cmp.Compare(a.Priority(), b.Priority()); c != 0 {
		return c
	}
	if c := a.OrderedAt.Compare(b.OrderedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Prioritize returns the pending orders sorted by Compare. Orders in any other
// status are dropped. The input slice is not modified.
func Prioritize(orders []*models.Order) []*models.Order {
	pending := make([]*models.Order, 0, len(orders))
	for _, o := range orders {
		if o.Status == models.OrderStatusPending {
			pending = append(pending, o)
		}
	}
	slices.SortFunc(pending, Compare)
	return pending
}

// NextToProcess returns the head of the approval queue, or nil when nothing is pending.
func NextToProcess(orders []*models.Order) *models.Order {
	var next *models.Order
	for _, o := range orders {
		if o.Status != models.OrderStatusPending {
			continue
		}
		if next == nil || Compare(o, next) < 0 {
			next = o
		}
	}
	return next
}
