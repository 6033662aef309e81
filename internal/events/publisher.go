package events

import (
	"context"
	"log/slog"

	"ticket-workflow/models"
)

const AdminChannel = "admin-orders"

// Publisher delivers one event to a named channel or queue.
type Publisher interface {
	Publish(ctx context.Context, channel string, event models.Event) error
	Close() error
}

// LogPublisher writes events to the structured log. Used when no broker is
// configured.
type LogPublisher struct {
	Logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{Logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, channel string, event models.Event) error {
	p.Logger.InfoContext(ctx, "workflow event",
		"channel", channel,
		"type", event.Type,
		"order_id", event.OrderID,
		"ticket_type_id", event.TicketTypeID,
		"status", event.Status,
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, models.Event) error { return nil }

func (NopPublisher) Close() error { return nil }
