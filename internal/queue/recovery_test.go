package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repogator/internal/event"
	"repogator/internal/platform/metrics"
)

func seedEvent(t *testing.T, store *event.MemoryStore, correlationID string, status event.Status, age time.Duration) *event.Event {
	t.Helper()
	e := event.NewEvent(correlationID, "issues", "opened", "acme/widgets", json.RawMessage(`{"action":"opened"}`))
	e.CreatedAt = time.Now().UTC().Add(-age)
	require.NoError(t, store.CreateEvent(context.Background(), e))
	if status == event.StatusProcessing {
		require.NoError(t, store.MarkProcessing(context.Background(), e.ID))
	}
	if status.Terminal() {
		require.NoError(t, store.FinalizeEvent(context.Background(), e.ID, status, time.Now().UTC()))
	}
	return e
}

func drain(t *testing.T, q *MemoryQueue) []Message {
	t.Helper()
	var out []Message
	for {
		msg, err := q.Pop(context.Background(), 20*time.Millisecond)
		require.NoError(t, err)
		if msg == nil {
			return out
		}
		out = append(out, *msg)
	}
}

func TestRecoveryRequeuesOnlyReceived(t *testing.T) {
	ctx := context.Background()
	store := event.NewMemoryStore()
	q := NewMemoryQueue(8)

	stuck1 := seedEvent(t, store, "corr-1", event.StatusReceived, time.Hour)
	stuck2 := seedEvent(t, store, "corr-2", event.StatusReceived, time.Minute)
	seedEvent(t, store, "corr-3", event.StatusProcessing, time.Minute)
	seedEvent(t, store, "corr-4", event.StatusCompleted, time.Hour)
	seedEvent(t, store, "corr-5", event.StatusFailed, time.Hour)

	r := NewRecovery(store, q, metrics.NewWith(prometheus.NewRegistry()), discardLogger())
	require.NoError(t, r.Run(ctx))

	got := drain(t, q)
	require.Len(t, got, 2)
	assert.Equal(t, stuck1.ID, got[0].EventID)
	assert.Equal(t, stuck2.ID, got[1].EventID)
	assert.Equal(t, "corr-1", got[0].CorrelationID)
	assert.Equal(t, "issues", got[0].EventType)
	assert.Equal(t, "opened", got[0].Action)
	assert.Equal(t, "acme/widgets", got[0].RepoFullName)
}

func TestRecoveryIsIdempotentOverStatus(t *testing.T) {
	ctx := context.Background()
	store := event.NewMemoryStore()
	q := NewMemoryQueue(8)

	e := seedEvent(t, store, "corr-1", event.StatusReceived, time.Minute)

	r := NewRecovery(store, q, metrics.NewWith(prometheus.NewRegistry()), discardLogger())
	require.NoError(t, r.Run(ctx))

	// Simulate the worker picking it up, then a second recovery pass.
	require.NoError(t, store.MarkProcessing(ctx, e.ID))
	require.NoError(t, store.FinalizeEvent(ctx, e.ID, event.StatusCompleted, time.Now().UTC()))
	require.NoError(t, r.Run(ctx))

	got := drain(t, q)
	assert.Len(t, got, 1)
}

func TestRecoveryEmptyStore(t *testing.T) {
	store := event.NewMemoryStore()
	q := NewMemoryQueue(1)

	r := NewRecovery(store, q, metrics.NewWith(prometheus.NewRegistry()), discardLogger())
	require.NoError(t, r.Run(context.Background()))

	got := drain(t, q)
	assert.Empty(t, got)
}

func TestSweepStaleRequeuesOldProcessing(t *testing.T) {
	ctx := context.Background()
	store := event.NewMemoryStore()
	q := NewMemoryQueue(8)

	stale := seedEvent(t, store, "corr-stale", event.StatusProcessing, time.Hour)
	seedEvent(t, store, "corr-fresh", event.StatusProcessing, time.Minute)
	seedEvent(t, store, "corr-received", event.StatusReceived, time.Hour)
	seedEvent(t, store, "corr-done", event.StatusCompleted, time.Hour)

	r := NewRecovery(store, q, metrics.NewWith(prometheus.NewRegistry()), discardLogger())
	require.NoError(t, r.SweepStale(ctx, 30*time.Minute))

	got := drain(t, q)
	require.Len(t, got, 1)
	assert.Equal(t, stale.ID, got[0].EventID)
}
