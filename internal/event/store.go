package event

import (
	"context"
	"time"

	derrors "repogator/pkg/domain-errors"
)

var (
	// ErrNotFound keeps store-specific 404s consistent across the in-memory
	// and postgres implementations.
	ErrNotFound = derrors.New(derrors.CodeNotFound, "event not found")

	// ErrFinalized signals an attempt to mutate an event already in a
	// terminal status. Statuses never move backwards.
	ErrFinalized = derrors.New(derrors.CodeConflict, "event already finalized")
)

// Store is the durability anchor for events and agent actions.
type Store interface {
	CreateEvent(ctx context.Context, e *Event) error
	GetEvent(ctx context.Context, id string) (*Event, error)
	ListEventsByStatus(ctx context.Context, status Status) ([]*Event, error)

	// MarkProcessing advances a received event to processing. Advancing an
	// event that is already processing is a no-op so a recovered duplicate
	// dispatch does not fail.
	MarkProcessing(ctx context.Context, id string) error

	// FinalizeEvent moves an event to a terminal status and stamps
	// processed_at. Returns ErrFinalized if the event is already terminal.
	FinalizeEvent(ctx context.Context, id string, status Status, processedAt time.Time) error

	// ListStaleProcessing returns events stuck in processing since before
	// the given instant, candidates for the reconciliation sweep.
	ListStaleProcessing(ctx context.Context, before time.Time) ([]*Event, error)

	CreateAction(ctx context.Context, a *AgentAction) error
	ListActionsByEvent(ctx context.Context, eventID string) ([]*AgentAction, error)

	// DeleteTerminalBefore removes terminal events (and their actions) older
	// than the cutoff. Rows still received or processing are never deleted.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)

	Health(ctx context.Context) error
}
