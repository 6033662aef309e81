package handlers

import (
	"net/http"

	"ticket-workflow/internal/services"

	"github.com/pocketbase/pocketbase/core"
)

type AdminHandler struct {
	workflow *services.WorkflowService
	auth     Authenticator
}

func NewAdminHandler(workflow *services.WorkflowService, auth Authenticator) *AdminHandler {
	return &AdminHandler{workflow: workflow, auth: auth}
}

// GetStats - inventory, order and revenue snapshot
func (h *AdminHandler) GetStats(e *core.RequestEvent) error {
	who, err := h.auth.Identity(e)
	if err != nil {
		return err
	}
	stats, err := h.workflow.Stats(e.Request.Context(), who)
	if err != nil {
		return apiError("stats", err)
	}
	return e.JSON(http.StatusOK, stats)
}

// ResetInventory - delete all orders and queue entries and restore the
// default ticket types
func (h *AdminHandler) ResetInventory(e *core.RequestEvent) error {
	who, err := h.auth.Identity(e)
	if err != nil {
		return err
	}
	types, err := h.workflow.ResetInventory(e.Request.Context(), who)
	if err != nil {
		return apiError("reset_inventory", err)
	}
	return e.JSON(http.StatusOK, map[string]any{"items": types, "total": len(types)})
}
