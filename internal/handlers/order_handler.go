package handlers

import (
	"context"
	"net/http"
	"strings"

	"ticket-workflow/internal/services"
	"ticket-workflow/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

const idempotencyHeader = "Idempotency-Key"

type OrderHandler struct {
	workflow *services.WorkflowService
	auth     Authenticator
}

func NewOrderHandler(workflow *services.WorkflowService, auth Authenticator) *OrderHandler {
	return &OrderHandler{workflow: workflow, auth: auth}
}

type placeOrderRequest struct {
	Lines     []models.LineRequest `json:"lines"`
	RequestID string               `json:"request_id"`
}

type noteRequest struct {
	Note string `json:"note"`
}

// PlaceOrder - reserve tickets for the caller
func (h *OrderHandler) PlaceOrder(e *core.RequestEvent) error {
	who, err := h.auth.Identity(e)
	if err != nil {
		return err
	}

	var req placeOrderRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if len(req.Lines) == 0 {
		return apis.NewBadRequestError("At least one order line is required", nil)
	}
	if req.RequestID == "" {
		req.RequestID = e.Request.Header.Get(idempotencyHeader)
	}

	order, err := h.workflow.PlaceOrder(e.Request.Context(), who, req.Lines, req.RequestID)
	if err != nil {
		return apiError("place_order", err)
	}
	return e.JSON(http.StatusCreated, order)
}

func (h *OrderHandler) MyOrders(e *core.RequestEvent) error {
	who, err := h.auth.Identity(e)
	if err != nil {
		return err
	}
	orders, err := h.workflow.MyOrders(e.Request.Context(), who)
	if err != nil {
		return apiError("my_orders", err)
	}
	return e.JSON(http.StatusOK, map[string]any{"items": orders, "total": len(orders)})
}

func (h *OrderHandler) GetOrder(e *core.RequestEvent) error {
	who, err := h.auth.Identity(e)
	if err != nil {
		return err
	}
	order, err := h.workflow.GetOrder(e.Request.Context(), who, e.Request.PathValue("id"))
	if err != nil {
		return apiError("get_order", err)
	}
	return e.JSON(http.StatusOK, order)
}

// Cancel - the owner returns an order for a refund
func (h *OrderHandler) Cancel(e *core.RequestEvent) error {
	who, err := h.auth.Identity(e)
	if err != nil {
		return err
	}
	order, err := h.workflow.Cancel(e.Request.Context(), who, e.Request.PathValue("id"))
	if err != nil {
		return apiError("cancel", err)
	}
	return e.JSON(http.StatusOK, order)
}

// ListOrders - admin listing, optionally filtered by ?status=pending,approved
func (h *OrderHandler) ListOrders(e *core.RequestEvent) error {
	who, err := h.auth.Identity(e)
	if err != nil {
		return err
	}
	statuses, err := parseStatuses(e.Request.URL.Query().Get("status"))
	if err != nil {
		return err
	}
	orders, err := h.workflow.ListOrders(e.Request.Context(), who, statuses...)
	if err != nil {
		return apiError("list_orders", err)
	}
	return e.JSON(http.StatusOK, map[string]any{"items": orders, "total": len(orders)})
}

func parseStatuses(raw string) ([]models.OrderStatus, error) {
	if raw == "" {
		return nil, nil
	}
	var statuses []models.OrderStatus
	for _, part := range strings.Split(raw, ",") {
		st, ok := models.ParseOrderStatus(strings.TrimSpace(part))
		if !ok {
			return nil, apis.NewBadRequestError("Unknown order status "+part, nil)
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

// PendingQueue - pending orders in processing order
func (h *OrderHandler) PendingQueue(e *core.RequestEvent) error {
	who, err := h.auth.Identity(e)
	if err != nil {
		return err
	}
	orders, err := h.workflow.PendingQueue(e.Request.Context(), who)
	if err != nil {
		return apiError("pending_queue", err)
	}

	items := make([]map[string]any, 0, len(orders))
	for i, o := range orders {
		items = append(items, map[string]any{
			"position": i + 1,
			"priority": o.Priority(),
			"order":    o,
		})
	}
	return e.JSON(http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

func (h *OrderHandler) Approve(e *core.RequestEvent) error {
	return h.decide(e, "approve", h.workflow.Approve)
}

func (h *OrderHandler) Reject(e *core.RequestEvent) error {
	return h.decide(e, "reject", h.workflow.Reject)
}

func (h *OrderHandler) decide(e *core.RequestEvent, operation string,
	fn func(ctx context.Context, admin models.Identity, orderID, note string) (*models.Order, error)) error {
	who, err := h.auth.Identity(e)
	if err != nil {
		return err
	}
	var req noteRequest
	if e.Request.ContentLength > 0 {
		if err := e.BindBody(&req); err != nil {
			return apis.NewBadRequestError("Invalid request", err)
		}
	}
	order, err := fn(e.Request.Context(), who, e.Request.PathValue("id"), req.Note)
	if err != nil {
		return apiError(operation, err)
	}
	return e.JSON(http.StatusOK, order)
}

func (h *OrderHandler) Complete(e *core.RequestEvent) error {
	who, err := h.auth.Identity(e)
	if err != nil {
		return err
	}
	order, err := h.workflow.Complete(e.Request.Context(), who, e.Request.PathValue("id"))
	if err != nil {
		return apiError("complete", err)
	}
	return e.JSON(http.StatusOK, order)
}

// ApproveNext - approve the head of the pending queue
func (h *OrderHandler) ApproveNext(e *core.RequestEvent) error {
	return h.decideNext(e, "approve_next", h.workflow.ApproveNext)
}

// RejectNext - reject the head of the pending queue
func (h *OrderHandler) RejectNext(e *core.RequestEvent) error {
	return h.decideNext(e, "reject_next", h.workflow.RejectNext)
}

func (h *OrderHandler) decideNext(e *core.RequestEvent, operation string,
	fn func(ctx context.Context, admin models.Identity, note string) (*models.Order, error)) error {
	who, err := h.auth.Identity(e)
	if err != nil {
		return err
	}
	var req noteRequest
	if e.Request.ContentLength > 0 {
		if err := e.BindBody(&req); err != nil {
			return apis.NewBadRequestError("Invalid request", err)
		}
	}
	order, err := fn(e.Request.Context(), who, req.Note)
	if err != nil {
		return apiError(operation, err)
	}
	return e.JSON(http.StatusOK, order)
}
