package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"repogator/internal/platform/metrics"
)

// RedisQueue is a Redis-list-backed Queue. Messages are pushed to the left
// (LPUSH) and popped from the right (BRPOP) so the oldest message is always
// delivered first. BRPOP is atomic, so multiple consumers each receive a
// message at most once.
type RedisQueue struct {
	client  *redis.Client
	name    string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewRedisQueue constructs a queue on the given list name.
func NewRedisQueue(client *redis.Client, name string, m *metrics.Metrics, logger *slog.Logger) *RedisQueue {
	return &RedisQueue{client: client, name: name, metrics: m, logger: logger}
}

func (q *RedisQueue) Push(ctx context.Context, msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal queue message: %w", err)
	}
	if err := q.client.LPush(ctx, q.name, raw).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", q.name, err)
	}
	q.observeDepth(ctx)
	q.logger.DebugContext(ctx, "pushed queue message",
		"queue", q.name,
		"event_id", msg.EventID,
		"correlation_id", msg.CorrelationID,
	)
	return nil
}

func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (*Message, error) {
	res, err := q.client.BRPop(ctx, timeout, q.name).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("brpop %s: %w", q.name, err)
	}
	// BRPOP returns [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("brpop %s: unexpected reply length %d", q.name, len(res))
	}
	var msg Message
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		return nil, fmt.Errorf("unmarshal queue message: %w", err)
	}
	q.observeDepth(ctx)
	return &msg, nil
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.name).Result()
	if err != nil {
		return 0, fmt.Errorf("llen %s: %w", q.name, err)
	}
	return n, nil
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) observeDepth(ctx context.Context) {
	n, err := q.client.LLen(ctx, q.name).Result()
	if err != nil {
		return
	}
	q.metrics.QueueDepth.Set(float64(n))
}
