package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/yourorg/taskhub/internal/session"
)

// Sweeper runs one overdue sweep. Satisfied by the task service.
type Sweeper interface {
	RunSweep(ctx context.Context, sess session.Context, source string) (int64, error)
}

// OverdueWorker periodically flags overdue task instances. The sweep is
// idempotent, so overlapping with an API-triggered run is harmless; the
// worker just keeps the flags converging even when nobody hits the endpoint.
type OverdueWorker struct {
	sweeper    Sweeper
	logger     *slog.Logger
	interval   time.Duration
	maxRetries int
}

// NewOverdueWorker creates a new overdue worker
func NewOverdueWorker(sweeper Sweeper, logger *slog.Logger, interval time.Duration) *OverdueWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &OverdueWorker{
		sweeper:    sweeper,
		logger:     logger,
		interval:   interval,
		maxRetries: 3,
	}
}

// Start begins the sweep loop. It runs one sweep immediately, then ticks.
func (w *OverdueWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("overdue worker started", slog.Duration("interval", w.interval))

	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("overdue worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep runs one sweep with retry and backoff.
func (w *OverdueWorker) sweep(ctx context.Context) {
	for attempt := 1; attempt <= w.maxRetries; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(attempt*attempt) * time.Second
			w.logger.Warn("retrying sweep", slog.Int("attempt", attempt), slog.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
		}

		flagged, err := w.sweeper.RunSweep(ctx, session.System(), "worker")
		if err == nil {
			w.logger.Info("sweep finished", slog.Int64("flagged", flagged))
			return
		}
		w.logger.Error("sweep failed", slog.String("error", err.Error()))
	}

	w.logger.Error("sweep failed after retries", slog.Int("max_retries", w.maxRetries))
}
