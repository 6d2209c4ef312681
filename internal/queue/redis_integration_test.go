//go:build integration

package queue_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"repogator/internal/platform/metrics"
	"repogator/internal/queue"
	"repogator/pkg/testutil/containers"
)

type RedisQueueSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	queue *queue.RedisQueue
}

func TestRedisQueueSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisQueueSuite))
}

func (s *RedisQueueSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.queue = queue.NewRedisQueue(
		s.redis.Client,
		"repogator:test_events",
		metrics.NewWith(prometheus.NewRegistry()),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func (s *RedisQueueSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisQueueSuite) TestPushPopRoundTrip() {
	ctx := context.Background()

	in := queue.Message{
		EventID:       "evt-1",
		CorrelationID: "corr-1",
		EventType:     "issues",
		Action:        "opened",
		RepoFullName:  "acme/widgets",
		Payload:       json.RawMessage(`{"action":"opened"}`),
		Overrides:     &queue.TenantOverrides{TenantID: "tenant-1", OpenRouterKey: "key"},
		Admin:         true,
	}
	s.Require().NoError(s.queue.Push(ctx, in))

	out, err := s.queue.Pop(ctx, time.Second)
	s.Require().NoError(err)
	s.Require().NotNil(out)
	s.Equal(in.EventID, out.EventID)
	s.Equal(in.CorrelationID, out.CorrelationID)
	s.JSONEq(string(in.Payload), string(out.Payload))
	s.Require().NotNil(out.Overrides)
	s.Equal("tenant-1", out.Overrides.TenantID)
	s.True(out.Admin)
}

func (s *RedisQueueSuite) TestFIFOOrder() {
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		s.Require().NoError(s.queue.Push(ctx, queue.Message{
			EventID: fmt.Sprintf("evt-%d", i),
			Payload: json.RawMessage(`{}`),
		}))
	}

	depth, err := s.queue.Len(ctx)
	s.Require().NoError(err)
	s.Equal(int64(5), depth)

	for i := 0; i < 5; i++ {
		msg, err := s.queue.Pop(ctx, time.Second)
		s.Require().NoError(err)
		s.Require().NotNil(msg)
		s.Equal(fmt.Sprintf("evt-%d", i), msg.EventID)
	}
}

func (s *RedisQueueSuite) TestPopTimeoutReturnsNil() {
	msg, err := s.queue.Pop(context.Background(), time.Second)
	s.Require().NoError(err)
	s.Nil(msg)
}

func (s *RedisQueueSuite) TestPing() {
	s.NoError(s.queue.Ping(context.Background()))
}
