package queue

import (
	"context"
	"time"
)

// MemoryQueue is a channel-backed Queue with the same blocking-pop semantics
// as the Redis implementation. Used by unit tests and local development.
type MemoryQueue struct {
	ch chan Message
}

// NewMemoryQueue constructs an in-memory queue with a bounded buffer.
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryQueue{ch: make(chan Message, capacity)}
}

func (q *MemoryQueue) Push(ctx context.Context, msg Message) error {
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Pop(ctx context.Context, timeout time.Duration) (*Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg := <-q.ch:
		return &msg, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryQueue) Len(ctx context.Context) (int64, error) {
	return int64(len(q.ch)), nil
}

func (q *MemoryQueue) Ping(ctx context.Context) error { return nil }
