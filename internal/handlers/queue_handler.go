package handlers

import (
	"net/http"

	"ticket-workflow/internal/services"
	"ticket-workflow/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type QueueHandler struct {
	workflow *services.WorkflowService
	auth     Authenticator
}

func NewQueueHandler(workflow *services.WorkflowService, auth Authenticator) *QueueHandler {
	return &QueueHandler{workflow: workflow, auth: auth}
}

// JoinQueue - wait for a sold out ticket type
func (h *QueueHandler) JoinQueue(e *core.RequestEvent) error {
	who, err := h.auth.Identity(e)
	if err != nil {
		return err
	}
	var req struct {
		Quantity int `json:"quantity"`
	}
	if e.Request.ContentLength > 0 {
		if err := e.BindBody(&req); err != nil {
			return apis.NewBadRequestError("Invalid request", err)
		}
	}

	entry, err := h.workflow.JoinQueue(e.Request.Context(), who, e.Request.PathValue("ticketTypeId"), req.Quantity)
	if err != nil {
		return apiError("join_queue", err)
	}
	return e.JSON(http.StatusCreated, entry)
}

// GetQueuePosition - the caller's place in a waiting list
func (h *QueueHandler) GetQueuePosition(e *core.RequestEvent) error {
	who, err := h.auth.Identity(e)
	if err != nil {
		return err
	}
	position, entry, err := h.workflow.QueuePosition(e.Request.Context(), who, e.Request.PathValue("ticketTypeId"))
	if err != nil {
		return apiError("queue_position", err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"position": position,
		"waiting":  position > 0,
		"entry":    entry,
	})
}

// ListEntries - admin view, filtered by ?ticket_type_id=&user_id=&status=
func (h *QueueHandler) ListEntries(e *core.RequestEvent) error {
	who, err := h.auth.Identity(e)
	if err != nil {
		return err
	}
	q := e.Request.URL.Query()
	filter := models.QueueFilter{
		TicketTypeID: q.Get("ticket_type_id"),
		UserID:       q.Get("user_id"),
		Status:       models.QueueStatus(q.Get("status")),
	}
	switch filter.Status {
	case "", models.QueueStatusWaiting, models.QueueStatusFulfilled:
	default:
		return apis.NewBadRequestError("Unknown queue status "+string(filter.Status), nil)
	}

	entries, err := h.workflow.QueueEntries(e.Request.Context(), who, filter)
	if err != nil {
		return apiError("queue_entries", err)
	}
	return e.JSON(http.StatusOK, map[string]any{"items": entries, "total": len(entries)})
}

// Candidates - waiting entries the current stock can serve, in FIFO order
func (h *QueueHandler) Candidates(e *core.RequestEvent) error {
	who, err := h.auth.Identity(e)
	if err != nil {
		return err
	}
	candidates, err := h.workflow.Candidates(e.Request.Context(), who, e.Request.PathValue("ticketTypeId"))
	if err != nil {
		return apiError("queue_candidates", err)
	}
	if candidates == nil {
		candidates = []*models.QueueEntry{}
	}
	return e.JSON(http.StatusOK, map[string]any{"items": candidates, "total": len(candidates)})
}

func (h *QueueHandler) Fulfill(e *core.RequestEvent) error {
	who, err := h.auth.Identity(e)
	if err != nil {
		return err
	}
	entry, err := h.workflow.Fulfill(e.Request.Context(), who, e.Request.PathValue("id"))
	if err != nil {
		return apiError("fulfill_queue", err)
	}
	return e.JSON(http.StatusOK, entry)
}
