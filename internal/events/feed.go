package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ticket-workflow/models"
	"ticket-workflow/utils"
)

const defaultPublishTimeout = 3 * time.Second

// Feed forwards committed workflow events to the admin channel. Delivery is
// best effort: failures are logged and never reach the caller, and a tripped
// breaker drops events until the publisher recovers.
type Feed struct {
	publisher Publisher
	breaker   *utils.CircuitBreaker
	channel   string
	timeout   time.Duration
	logger    *slog.Logger
}

func NewFeed(publisher Publisher, breaker *utils.CircuitBreaker, logger *slog.Logger) *Feed {
	if breaker == nil {
		breaker = utils.NewCircuitBreaker("event-feed", utils.DefaultBreakerSettings())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		publisher: publisher,
		breaker:   breaker,
		channel:   AdminChannel,
		timeout:   defaultPublishTimeout,
		logger:    logger,
	}
}

func (f *Feed) Notify(ctx context.Context, events []models.Event) {
	dropped := 0
	for _, event := range events {
		err := f.breaker.Execute(ctx, func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, f.timeout)
			defer cancel()
			return f.publisher.Publish(ctx, f.channel, event)
		})
		switch {
		case err == nil:
		case errors.Is(err, utils.ErrCircuitOpen), errors.Is(err, utils.ErrTooManyRequests):
			dropped++
		default:
			f.logger.Warn("failed to publish workflow event",
				"error", err,
				"type", event.Type,
				"order_id", event.OrderID,
				"ticket_type_id", event.TicketTypeID,
			)
		}
	}
	if dropped > 0 {
		f.logger.Warn("event feed breaker open, events dropped",
			"breaker", f.breaker.Name(),
			"state", f.breaker.State().String(),
			"dropped", dropped,
		)
	}
}

func (f *Feed) Close() error {
	return f.publisher.Close()
}
