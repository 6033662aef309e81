package monitoring

import (
	"context"
	"log/slog"
	"time"

	"ticket-workflow/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticketAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ticket_available_total",
			Help: "Units currently available per ticket type",
		},
		[]string{"ticket_type"},
	)

	ticketSold = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ticket_sold_total",
			Help: "Units sold per ticket type",
		},
		[]string{"ticket_type"},
	)

	orderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Total order workflow transitions",
		},
		[]string{"transition", "status"},
	)

	reservationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservation_failures_total",
			Help: "Placements refused for insufficient stock",
		},
		[]string{"ticket_type"},
	)

	queueWaiting = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_waiting_total",
			Help: "Customers waiting per ticket type",
		},
		[]string{"ticket_type"},
	)

	sweepCandidates = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_sweep_candidates",
			Help: "Waiting entries surfaced by the latest sweep",
		},
		[]string{"ticket_type"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workflow_operation_duration_seconds",
			Help:    "Duration of workflow operations",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"operation"},
	)
)

// Monitor records workflow metrics. A nil *Monitor records nothing.
type Monitor struct{}

func NewMonitor() *Monitor {
	return &Monitor{}
}

// Collect refreshes the inventory and queue gauges from snapshot every
// interval until ctx is done.
func (m *Monitor) Collect(ctx context.Context, interval time.Duration, snapshot func(ctx context.Context) (*models.Stats, error)) {
	if m == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := snapshot(ctx)
			if err != nil {
				slog.Error("metrics snapshot failed", "error", err)
				continue
			}
			m.TrackStats(stats)
		}
	}
}

func (m *Monitor) TrackStats(stats *models.Stats) {
	if m == nil || stats == nil {
		return
	}
	for _, t := range stats.Tickets {
		ticketAvailable.WithLabelValues(t.TicketTypeID).Set(float64(t.Available))
		ticketSold.WithLabelValues(t.TicketTypeID).Set(float64(t.Sold))
		queueWaiting.WithLabelValues(t.TicketTypeID).Set(float64(t.Waiting))
	}
}

func (m *Monitor) TrackInventory(t *models.TicketType) {
	if m == nil {
		return
	}
	ticketAvailable.WithLabelValues(t.ID).Set(float64(t.Available))
	ticketSold.WithLabelValues(t.ID).Set(float64(t.Sold))
}

// Track order transitions
func (m *Monitor) TrackTransition(transition, status string) {
	if m == nil {
		return
	}
	orderTransitions.WithLabelValues(transition, status).Inc()
}

func (m *Monitor) TrackReservationFailure(ticketTypeID string) {
	if m == nil {
		return
	}
	reservationFailures.WithLabelValues(ticketTypeID).Inc()
}

func (m *Monitor) TrackSweep(ticketTypeID string, candidates int) {
	if m == nil {
		return
	}
	sweepCandidates.WithLabelValues(ticketTypeID).Set(float64(candidates))
}

func (m *Monitor) TrackWaiting(ticketTypeID string, waiting int) {
	if m == nil {
		return
	}
	queueWaiting.WithLabelValues(ticketTypeID).Set(float64(waiting))
}

// Track operation duration
func (m *Monitor) TrackOperation(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
