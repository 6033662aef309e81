package handlers

import (
	"ticket-workflow/internal/services"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"
)

// RegisterRoutes mounts the workflow API under /api/v1. Extra middlewares
// (rate limiting) run after authentication is required.
func RegisterRoutes(r *router.Router[*core.RequestEvent], workflow *services.WorkflowService, auth Authenticator, middlewares ...func(e *core.RequestEvent) error) {
	orders := NewOrderHandler(workflow, auth)
	inventory := NewInventoryHandler(workflow, auth)
	queue := NewQueueHandler(workflow, auth)
	admin := NewAdminHandler(workflow, auth)

	v1 := r.Group("/api/v1")
	v1.Bind(apis.RequireAuth())
	for _, m := range middlewares {
		v1.BindFunc(m)
	}

	// Customer endpoints
	v1.GET("/ticket-types", inventory.ListTicketTypes)
	v1.POST("/orders", orders.PlaceOrder)
	v1.GET("/orders/mine", orders.MyOrders)
	v1.GET("/orders/{id}", orders.GetOrder)
	v1.POST("/orders/{id}/cancel", orders.Cancel)
	v1.POST("/queue/{ticketTypeId}/join", queue.JoinQueue)
	v1.GET("/queue/{ticketTypeId}/position", queue.GetQueuePosition)

	// Admin endpoints
	v1.GET("/admin/orders", orders.ListOrders)
	v1.GET("/admin/orders/pending", orders.PendingQueue)
	v1.POST("/admin/orders/next/approve", orders.ApproveNext)
	v1.POST("/admin/orders/next/reject", orders.RejectNext)
	v1.POST("/admin/orders/{id}/approve", orders.Approve)
	v1.POST("/admin/orders/{id}/reject", orders.Reject)
	v1.POST("/admin/orders/{id}/complete", orders.Complete)

	v1.POST("/admin/ticket-types", inventory.CreateTicketType)
	v1.PUT("/admin/ticket-types/{id}/capacity", inventory.AdjustCapacity)
	v1.PUT("/admin/ticket-types/{id}/price", inventory.SetPrice)
	v1.POST("/admin/inventory/reset", admin.ResetInventory)

	v1.GET("/admin/queue", queue.ListEntries)
	v1.GET("/admin/queue/{ticketTypeId}/candidates", queue.Candidates)
	v1.POST("/admin/queue/entries/{id}/fulfill", queue.Fulfill)

	v1.GET("/admin/stats", admin.GetStats)
}
