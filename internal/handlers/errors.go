package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"ticket-workflow/internal/status"

	"github.com/pocketbase/pocketbase/apis"
)

// apiError maps workflow failures to HTTP errors. Unknown errors become a
// 500 and are logged.
func apiError(operation string, err error) error {
	var stock *status.InsufficientStockError
	switch {
	case errors.As(err, &stock):
		return apis.NewApiError(http.StatusConflict, "Not enough tickets left", map[string]any{
			"ticket_type_ids": stock.TicketTypeIDs,
			"can_join_queue":  true,
		})
	case errors.Is(err, status.ErrUnauthorized):
		return apis.NewForbiddenError("You are not allowed to perform this action", nil)
	case errors.Is(err, status.ErrNotFound):
		return apis.NewNotFoundError(err.Error(), nil)
	case errors.Is(err, status.ErrInvalidTransition),
		errors.Is(err, status.ErrActiveOrder),
		errors.Is(err, status.ErrStockAvailable),
		errors.Is(err, status.ErrAlreadyQueued),
		errors.Is(err, status.ErrInsufficientStock),
		errors.Is(err, status.ErrConflict):
		return apis.NewApiError(http.StatusConflict, err.Error(), nil)
	case errors.Is(err, status.ErrDuplicateRequest):
		return apis.NewApiError(http.StatusConflict, "Request already processed", nil)
	case errors.Is(err, status.ErrQuantityCap),
		errors.Is(err, status.ErrNegativeStock),
		errors.Is(err, status.ErrNegativePrice),
		errors.Is(err, status.ErrPriceNotSet):
		return apis.NewBadRequestError(err.Error(), nil)
	}

	slog.Error("workflow operation failed", "operation", operation, "error", err)
	return apis.NewInternalServerError("Something went wrong", nil)
}
