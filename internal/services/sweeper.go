package services

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically re-surfaces waiting queue candidates for every
// ticket type, in case a sweep was missed.
type Sweeper struct {
	workflow *WorkflowService
	interval time.Duration
}

func NewSweeper(workflow *WorkflowService, interval time.Duration) *Sweeper {
	return &Sweeper{workflow: workflow, interval: interval}
}

// Run blocks until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		slog.Info("queue sweeper disabled")
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("queue sweeper stopped")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	result, err := s.workflow.SweepAll(ctx)
	if err != nil {
		slog.Error("queue sweep failed", "error", err)
		return
	}
	for ticketTypeID, candidates := range result {
		slog.Info("queue sweep surfaced candidates", "ticket_type", ticketTypeID, "candidates", len(candidates))
	}
}
