package memory

import (
	"context"
	"sync"

	"perp-strategy-lab/internal/domain"
	"perp-strategy-lab/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PortfolioState
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		data: make(map[string]*domain.PortfolioState),
	}
}

// Save stores a copy of st, replacing any previous snapshot.
func (s *SnapshotStore) Save(_ context.Context, portfolioID string, st *domain.PortfolioState) error {
	if portfolioID == "" || st == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[portfolioID] = st.Clone()
	return nil
}

// Load retrieves the current snapshot. Returns ErrNotFound if none was saved.
func (s *SnapshotStore) Load(_ context.Context, portfolioID string) (*domain.PortfolioState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, exists := s.data[portfolioID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return st.Clone(), nil
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)
