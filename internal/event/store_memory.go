package event

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used by unit tests and local development.
// It mirrors the postgres implementation's transition rules exactly.
type MemoryStore struct {
	mu      sync.RWMutex
	events  map[string]*Event
	actions map[string][]*AgentAction
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:  make(map[string]*Event),
		actions: make(map[string][]*AgentAction),
	}
}

func (s *MemoryStore) CreateEvent(ctx context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.events[e.ID] = &cp
	return nil
}

func (s *MemoryStore) GetEvent(ctx context.Context, id string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) ListEventsByStatus(ctx context.Context, status Status) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Event
	for _, e := range s.events {
		if e.Status == status {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) MarkProcessing(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return ErrNotFound
	}
	if e.Status.Terminal() {
		return ErrFinalized
	}
	e.Status = StatusProcessing
	return nil
}

func (s *MemoryStore) FinalizeEvent(ctx context.Context, id string, status Status, processedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return ErrNotFound
	}
	if e.Status.Terminal() {
		return ErrFinalized
	}
	e.Status = status
	t := processedAt
	e.ProcessedAt = &t
	return nil
}

func (s *MemoryStore) ListStaleProcessing(ctx context.Context, before time.Time) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Event
	for _, e := range s.events {
		if e.Status == StatusProcessing && e.CreatedAt.Before(before) {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CreateAction(ctx context.Context, a *AgentAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.actions[a.EventID] = append(s.actions[a.EventID], &cp)
	return nil
}

func (s *MemoryStore) ListActionsByEvent(ctx context.Context, eventID string) ([]*AgentAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*AgentAction
	for _, a := range s.actions[eventID] {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, e := range s.events {
		if e.Status.Terminal() && e.CreatedAt.Before(cutoff) {
			delete(s.events, id)
			delete(s.actions, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Health(ctx context.Context) error { return nil }
