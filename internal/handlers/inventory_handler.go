package handlers

import (
	"net/http"

	"ticket-workflow/internal/services"
	"ticket-workflow/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

type InventoryHandler struct {
	workflow *services.WorkflowService
	auth     Authenticator
}

func NewInventoryHandler(workflow *services.WorkflowService, auth Authenticator) *InventoryHandler {
	return &InventoryHandler{workflow: workflow, auth: auth}
}

// ListTicketTypes - current inventory, open to any signed in user
func (h *InventoryHandler) ListTicketTypes(e *core.RequestEvent) error {
	if _, err := h.auth.Identity(e); err != nil {
		return err
	}
	types, err := h.workflow.ListTicketTypes(e.Request.Context())
	if err != nil {
		return apiError("list_ticket_types", err)
	}
	return e.JSON(http.StatusOK, map[string]any{"items": types, "total": len(types)})
}

type createTicketTypeRequest struct {
	Category string              `json:"category"`
	Name     string              `json:"name"`
	Price    decimal.NullDecimal `json:"price"`
	Total    int                 `json:"total"`
}

func (h *InventoryHandler) CreateTicketType(e *core.RequestEvent) error {
	who, err := h.auth.Identity(e)
	if err != nil {
		return err
	}
	var req createTicketTypeRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	category, err := models.ParseCategory(req.Category)
	if err != nil {
		return apis.NewBadRequestError(err.Error(), nil)
	}

	t, err := h.workflow.CreateTicketType(e.Request.Context(), who, category, req.Name, req.Price, req.Total)
	if err != nil {
		return apiError("create_ticket_type", err)
	}
	return e.JSON(http.StatusCreated, t)
}

type capacityRequest struct {
	Total *int `json:"total"`
}

// AdjustCapacity - change the total of a ticket type; reports the waiting
// customers the new stock can serve
func (h *InventoryHandler) AdjustCapacity(e *core.RequestEvent) error {
	who, err := h.auth.Identity(e)
	if err != nil {
		return err
	}
	var req capacityRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.Total == nil {
		return apis.NewBadRequestError("total is required", nil)
	}

	t, candidates, err := h.workflow.AdjustCapacity(e.Request.Context(), who, e.Request.PathValue("id"), *req.Total)
	if err != nil {
		return apiError("adjust_capacity", err)
	}
	if candidates == nil {
		candidates = []*models.QueueEntry{}
	}
	return e.JSON(http.StatusOK, map[string]any{"ticket_type": t, "candidates": candidates})
}

type priceRequest struct {
	Price decimal.NullDecimal `json:"price"`
}

func (h *InventoryHandler) SetPrice(e *core.RequestEvent) error {
	who, err := h.auth.Identity(e)
	if err != nil {
		return err
	}
	var req priceRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if !req.Price.Valid {
		return apis.NewBadRequestError("price is required", nil)
	}

	t, err := h.workflow.SetPrice(e.Request.Context(), who, e.Request.PathValue("id"), req.Price.Decimal)
	if err != nil {
		return apiError("set_price", err)
	}
	return e.JSON(http.StatusOK, t)
}
