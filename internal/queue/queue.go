// Package queue provides the durable FIFO channel between the webhook ingress
// and the orchestrator, plus the consumer loop and startup recovery.
package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Message is the serialized copy of an event that travels through the queue.
// It has no identity beyond the event it carries; losing an in-flight message
// is survivable because recovery re-enqueues events still marked received.
type Message struct {
	EventID       string          `json:"event_id"`
	CorrelationID string          `json:"correlation_id"`
	EventType     string          `json:"event_type"`
	Action        string          `json:"action"`
	RepoFullName  string          `json:"repo_full_name"`
	Payload       json.RawMessage `json:"payload"`

	// Tenant-scoped overrides, set only on the per-repo ingress path.
	Overrides *TenantOverrides `json:"overrides,omitempty"`
	Admin     bool             `json:"admin,omitempty"`
}

// TenantOverrides carries per-tenant collaborator credentials and model
// preferences alongside the event.
type TenantOverrides struct {
	TenantID        string `json:"tenant_id"`
	OpenRouterKey   string `json:"openrouter_key,omitempty"`
	OpenRouterModel string `json:"openrouter_model,omitempty"`
	EmbeddingKey    string `json:"embedding_key,omitempty"`
	EmbeddingModel  string `json:"embedding_model,omitempty"`
}

// Queue is a named FIFO channel with blocking dequeue.
type Queue interface {
	// Push appends a message; oldest-first delivery among queued messages.
	Push(ctx context.Context, msg Message) error

	// Pop blocks up to timeout for a message and returns (nil, nil) when the
	// wait times out. The bounded wait is the worker's cancellation check
	// point, so timeouts are routine, not errors.
	Pop(ctx context.Context, timeout time.Duration) (*Message, error)

	// Len reports current queue depth for backpressure monitoring.
	Len(ctx context.Context) (int64, error)

	Ping(ctx context.Context) error
}
