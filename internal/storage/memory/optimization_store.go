package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"perp-strategy-lab/internal/domain"
	"perp-strategy-lab/internal/storage"
)

// OptimizationResultStore is an in-memory implementation of storage.OptimizationResultStore.
type OptimizationResultStore struct {
	mu   sync.RWMutex
	data map[string]*domain.OptimizationEntry // keyed by (run_id, index)
}

// NewOptimizationResultStore creates a new in-memory optimization result store.
func NewOptimizationResultStore() *OptimizationResultStore {
	return &OptimizationResultStore{
		data: make(map[string]*domain.OptimizationEntry),
	}
}

func entryKey(runID string, index int) string {
	return fmt.Sprintf("%s|%d", runID, index)
}

// InsertBulk adds entries. Fails entire batch on duplicate.
func (s *OptimizationResultStore) InsertBulk(_ context.Context, entries []*domain.OptimizationEntry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e == nil || e.RunID == "" {
			return storage.ErrInvalidInput
		}
		key := entryKey(e.RunID, e.Index)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, e := range entries {
		s.data[entryKey(e.RunID, e.Index)] = e.Clone()
	}
	return nil
}

// GetByRunID retrieves all entries of a run, ordered by rank ASC, index ASC.
func (s *OptimizationResultStore) GetByRunID(_ context.Context, runID string) ([]*domain.OptimizationEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.OptimizationEntry
	for _, e := range s.data {
		if e.RunID == runID {
			result = append(result, e.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Rank != result[j].Rank {
			return result[i].Rank < result[j].Rank
		}
		return result[i].Index < result[j].Index
	})
	return result, nil
}

var _ storage.OptimizationResultStore = (*OptimizationResultStore)(nil)
