// Package reconcile sweeps abandoned webhook deliveries. A delivery row
// that never left 'received' means the process crashed (or was cut off)
// mid-pipeline; the sweep moves such rows to 'failed' after a time bound so
// the received-to-terminal invariant stays monitored rather than silently
// violated.
package reconcile

import (
	"context"
	"log/slog"
	"time"
)

// StaleError is the error message written onto swept delivery rows.
const StaleError = "stale: no terminal transition"

// DeliverySweeper is the audit-store surface the reconciler needs.
type DeliverySweeper interface {
	SweepStale(ctx context.Context, cutoff time.Time, errMsg string) (int64, error)
}

// Publisher receives a summary after each sweep that reconciled rows.
type Publisher interface {
	Publish(eventType string, data any)
}

// Reconciler periodically sweeps stale deliveries.
type Reconciler struct {
	deliveries DeliverySweeper
	hub        Publisher
	staleAfter time.Duration
	interval   time.Duration
	logger     *slog.Logger
}

func New(deliveries DeliverySweeper, hub Publisher, staleAfter, interval time.Duration, logger *slog.Logger) *Reconciler {
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Reconciler{
		deliveries: deliveries,
		hub:        hub,
		staleAfter: staleAfter,
		interval:   interval,
		logger:     logger,
	}
}

// Run sweeps on a ticker until the context is canceled (blocking).
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single sweep pass.
func (r *Reconciler) SweepOnce(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-r.staleAfter)

	n, err := r.deliveries.SweepStale(ctx, cutoff, StaleError)
	if err != nil {
		r.logger.Error("stale delivery sweep failed", "error", err)
		return
	}
	if n == 0 {
		return
	}

	r.logger.Warn("reconciled stale deliveries", "count", n, "stale_after", r.staleAfter.String())
	if r.hub != nil {
		r.hub.Publish("delivery.reconciled", map[string]any{"count": n})
	}
}
