// Package audit is the append-only audit trail for significant pipeline
// events. Entries are write-once; there is no update path.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Entry is one audit record.
type Entry struct {
	ID            string
	CorrelationID string
	Level         string
	Message       string
	Context       map[string]any
	CreatedAt     time.Time
}

// Store appends and lists audit entries.
type Store interface {
	Append(ctx context.Context, e Entry) error
	ListByCorrelation(ctx context.Context, correlationID string) ([]Entry, error)
}

// Publisher captures structured audit entries. It uses the storage layer for
// persistence so tests can swap sinks easily.
type Publisher struct {
	store Store
}

// NewPublisher constructs a publisher over the given store.
func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store}
}

// Emit appends an entry, filling in the id and timestamp when absent.
func (p *Publisher) Emit(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Level == "" {
		e.Level = "info"
	}
	return p.store.Append(ctx, e)
}

// List returns all entries recorded under a correlation identifier.
func (p *Publisher) List(ctx context.Context, correlationID string) ([]Entry, error) {
	return p.store.ListByCorrelation(ctx, correlationID)
}
