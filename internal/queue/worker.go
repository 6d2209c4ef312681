package queue

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Dispatch is the worker's callback; the orchestrator entry point satisfies it.
type Dispatch func(ctx context.Context, msg Message) error

// Worker is the single long-lived queue consumer. A dispatch failure never
// kills the loop; transport failures back off and retry. Exactly one logical
// consumer per queue name is assumed, but BRPOP delivers each message at most
// once, so running more workers is safe if throughput ever requires it.
type Worker struct {
	queue      Queue
	dispatch   Dispatch
	logger     *slog.Logger
	popTimeout time.Duration
	backoff    time.Duration
	running    atomic.Bool
	done       chan struct{}
}

// NewWorker constructs a worker consuming from queue into dispatch.
func NewWorker(queue Queue, dispatch Dispatch, logger *slog.Logger, popTimeout time.Duration) *Worker {
	if popTimeout <= 0 {
		popTimeout = time.Second
	}
	return &Worker{
		queue:      queue,
		dispatch:   dispatch,
		logger:     logger,
		popTimeout: popTimeout,
		backoff:    time.Second,
		done:       make(chan struct{}),
	}
}

// Run consumes and dispatches messages until Stop is called or ctx is
// cancelled. Each pop blocks for at most popTimeout, which bounds how long a
// stop request waits before the loop observes it.
func (w *Worker) Run(ctx context.Context) {
	w.running.Store(true)
	defer close(w.done)

	w.logger.InfoContext(ctx, "queue worker started")

	for w.running.Load() {
		if ctx.Err() != nil {
			break
		}

		msg, err := w.queue.Pop(ctx, w.popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			w.logger.ErrorContext(ctx, "queue pop failed, backing off",
				"error", err.Error(),
				"backoff", w.backoff.String(),
			)
			select {
			case <-time.After(w.backoff):
			case <-ctx.Done():
			}
			continue
		}
		if msg == nil {
			// Pop timed out; loop again to check the running flag.
			continue
		}

		w.dispatchOne(ctx, *msg)
	}

	w.logger.Info("queue worker stopped")
}

// dispatchOne isolates a single dispatch so a panic in a handler is contained
// to the message that caused it.
func (w *Worker) dispatchOne(ctx context.Context, msg Message) {
	defer func() {
		if rec := recover(); rec != nil {
			w.logger.ErrorContext(ctx, "panic dispatching event",
				"panic", rec,
				"event_id", msg.EventID,
				"correlation_id", msg.CorrelationID,
			)
		}
	}()

	if err := w.dispatch(ctx, msg); err != nil {
		w.logger.ErrorContext(ctx, "error dispatching event",
			"error", err.Error(),
			"event_id", msg.EventID,
			"correlation_id", msg.CorrelationID,
		)
	}
}

// Stop signals the loop to exit after the current iteration.
func (w *Worker) Stop() {
	w.running.Store(false)
}

// Wait blocks until the loop has exited or the grace period elapses. Returns
// false if the worker did not stop in time; callers should then cancel the
// context to force the in-flight dispatch to abort.
func (w *Worker) Wait(grace time.Duration) bool {
	select {
	case <-w.done:
		return true
	case <-time.After(grace):
		return false
	}
}
