package memory

import (
	"context"
	"sync"

	"perp-strategy-lab/internal/domain"
	"perp-strategy-lab/internal/storage"
)

// WalkForwardStore is an in-memory implementation of storage.WalkForwardStore.
type WalkForwardStore struct {
	mu   sync.RWMutex
	data map[string]*domain.WalkForwardReport
}

// NewWalkForwardStore creates a new in-memory walk-forward report store.
func NewWalkForwardStore() *WalkForwardStore {
	return &WalkForwardStore{
		data: make(map[string]*domain.WalkForwardReport),
	}
}

// Insert adds a report. Returns ErrDuplicateKey if the id exists.
func (s *WalkForwardStore) Insert(_ context.Context, r *domain.WalkForwardReport) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.ID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[r.ID] = r.Clone()
	return nil
}

// GetByID retrieves a report. Returns ErrNotFound if not exists.
func (s *WalkForwardStore) GetByID(_ context.Context, id string) (*domain.WalkForwardReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return r.Clone(), nil
}

var _ storage.WalkForwardStore = (*WalkForwardStore)(nil)
