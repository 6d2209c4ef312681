package repos

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for unit tests and local development.
type MemoryStore struct {
	mu    sync.RWMutex
	repos map[string]*TrackedRepo
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{repos: make(map[string]*TrackedRepo)}
}

func (s *MemoryStore) Create(ctx context.Context, r *TrackedRepo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.repos[r.ID] = &cp
	return nil
}

func (s *MemoryStore) GetActiveByFullName(ctx context.Context, fullName string) (*TrackedRepo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.repos {
		if r.RepoFullName == fullName && r.Active {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListByTenant(ctx context.Context, tenantID string) ([]*TrackedRepo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*TrackedRepo
	for _, r := range s.repos {
		if r.TenantID == tenantID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) Deactivate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[id]
	if !ok {
		return ErrNotFound
	}
	r.Active = false
	return nil
}
