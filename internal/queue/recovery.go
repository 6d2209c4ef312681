package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"repogator/internal/event"
	"repogator/internal/platform/metrics"
)

// Recovery re-enqueues events that were persisted but never reached a
// terminal status. Run closes the crash window between "event persisted" and
// "event enqueued"; SweepStale reconciles events whose finalize step failed.
// Duplicate dispatch is idempotent at the action-record level, so re-pushing
// an in-flight event costs at most a duplicate external side effect.
type Recovery struct {
	store   event.Store
	queue   Queue
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewRecovery constructs a Recovery over the given store and queue.
func NewRecovery(store event.Store, queue Queue, m *metrics.Metrics, logger *slog.Logger) *Recovery {
	return &Recovery{store: store, queue: queue, metrics: m, logger: logger}
}

// Run re-enqueues all events currently in received status. It must complete
// before the worker starts consuming so it only observes genuinely stuck rows.
func (r *Recovery) Run(ctx context.Context) error {
	events, err := r.store.ListEventsByStatus(ctx, event.StatusReceived)
	if err != nil {
		return fmt.Errorf("list received events: %w", err)
	}
	if len(events) == 0 {
		r.logger.InfoContext(ctx, "startup recovery: no stuck events")
		return nil
	}
	n, err := r.requeue(ctx, events)
	r.logger.InfoContext(ctx, "startup recovery complete", "requeued", n, "stuck", len(events))
	return err
}

// SweepStale re-enqueues events stuck in processing since before now-olderThan.
// This is the reconciliation path for finalize-step failures.
func (r *Recovery) SweepStale(ctx context.Context, olderThan time.Duration) error {
	cutoff := time.Now().UTC().Add(-olderThan)
	events, err := r.store.ListStaleProcessing(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list stale processing events: %w", err)
	}
	if len(events) == 0 {
		return nil
	}
	n, err := r.requeue(ctx, events)
	r.logger.InfoContext(ctx, "stale sweep complete", "requeued", n, "stale", len(events))
	return err
}

// RunSweeper runs SweepStale on the given interval until ctx is cancelled.
func (r *Recovery) RunSweeper(ctx context.Context, interval, olderThan time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.SweepStale(ctx, olderThan); err != nil {
				r.logger.ErrorContext(ctx, "stale sweep failed", "error", err.Error())
			}
		}
	}
}

func (r *Recovery) requeue(ctx context.Context, events []*event.Event) (int, error) {
	var n int
	for _, e := range events {
		msg := Message{
			EventID:       e.ID,
			CorrelationID: e.CorrelationID,
			EventType:     e.EventType,
			Action:        e.Action,
			RepoFullName:  e.RepoFullName,
			Payload:       e.Payload,
		}
		if err := r.queue.Push(ctx, msg); err != nil {
			// Stop at the first push failure; the remaining rows stay
			// recoverable on the next boot.
			return n, fmt.Errorf("requeue event %s: %w", e.ID, err)
		}
		r.metrics.RecoveryRequeued.Inc()
		r.logger.InfoContext(ctx, "re-enqueued stuck event",
			"event_id", e.ID,
			"correlation_id", e.CorrelationID,
			"status", string(e.Status),
		)
		n++
	}
	return n, nil
}
