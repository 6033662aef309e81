package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"ticket-workflow/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMonitor_TrackInventory(t *testing.T) {
	m := NewMonitor()
	m.TrackInventory(&models.TicketType{ID: "metrics-vip", Available: 7, Sold: 3})

	assert.Equal(t, 7.0, testutil.ToFloat64(ticketAvailable.WithLabelValues("metrics-vip")))
	assert.Equal(t, 3.0, testutil.ToFloat64(ticketSold.WithLabelValues("metrics-vip")))
}

func TestMonitor_TrackTransition(t *testing.T) {
	m := NewMonitor()
	before := testutil.ToFloat64(orderTransitions.WithLabelValues("approve", "approved"))

	m.TrackTransition("approve", "approved")
	m.TrackTransition("approve", "approved")

	after := testutil.ToFloat64(orderTransitions.WithLabelValues("approve", "approved"))
	assert.Equal(t, 2.0, after-before)
}

func TestMonitor_QueueGauges(t *testing.T) {
	m := NewMonitor()
	m.TrackWaiting("metrics-regular", 4)
	m.TrackSweep("metrics-regular", 2)
	m.TrackReservationFailure("metrics-regular")

	assert.Equal(t, 4.0, testutil.ToFloat64(queueWaiting.WithLabelValues("metrics-regular")))
	assert.Equal(t, 2.0, testutil.ToFloat64(sweepCandidates.WithLabelValues("metrics-regular")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reservationFailures.WithLabelValues("metrics-regular")))
}

func TestMonitor_NilIsNoop(t *testing.T) {
	var m *Monitor
	assert.NotPanics(t, func() {
		m.TrackInventory(&models.TicketType{ID: "x"})
		m.TrackTransition("approve", "approved")
		m.TrackOperation("place_order", time.Millisecond)
		m.TrackStats(&models.Stats{})
		m.Collect(context.Background(), time.Millisecond, nil)
	})
}

func TestMonitor_CollectAppliesSnapshots(t *testing.T) {
	m := NewMonitor()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := make(chan struct{}, 8)
	snapshot := func(ctx context.Context) (*models.Stats, error) {
		select {
		case calls <- struct{}{}:
		default:
		}
		if len(calls) == 1 {
			return nil, errors.New("store unavailable")
		}
		return &models.Stats{Tickets: []models.TicketStats{{TicketTypeID: "metrics-collect", Available: 9, Waiting: 1}}}, nil
	}

	done := make(chan struct{})
	go func() {
		m.Collect(ctx, 5*time.Millisecond, snapshot)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(ticketAvailable.WithLabelValues("metrics-collect")) == 9
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
