package settings

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for unit tests and local development.
type MemoryStore struct {
	mu       sync.RWMutex
	byTenant map[string]*Settings
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byTenant: make(map[string]*Settings)}
}

func (s *MemoryStore) GetByTenant(ctx context.Context, tenantID string) (*Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.byTenant[tenantID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, st *Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *st
	cp.UpdatedAt = time.Now().UTC()
	s.byTenant[st.TenantID] = &cp
	return nil
}
