package memory

import (
	"context"
	"sort"
	"sync"

	"perp-strategy-lab/internal/domain"
	"perp-strategy-lab/internal/storage"
)

// OrderStore is an in-memory implementation of storage.OrderStore.
type OrderStore struct {
	mu   sync.RWMutex
	data map[string]map[string]domain.Order // portfolio -> order id -> order
}

// NewOrderStore creates a new in-memory order store.
func NewOrderStore() *OrderStore {
	return &OrderStore{
		data: make(map[string]map[string]domain.Order),
	}
}

// Insert adds a closed order. Returns ErrDuplicateKey if the order id exists.
func (s *OrderStore) Insert(ctx context.Context, portfolioID string, o *domain.Order) error {
	if o == nil {
		return storage.ErrInvalidInput
	}
	return s.InsertBulk(ctx, portfolioID, []domain.Order{*o})
}

// InsertBulk adds multiple orders atomically. Fails entire batch on any duplicate.
func (s *OrderStore) InsertBulk(_ context.Context, portfolioID string, orders []domain.Order) error {
	if portfolioID == "" {
		return storage.ErrInvalidInput
	}
	if len(orders) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.data[portfolioID]
	batchKeys := make(map[string]struct{}, len(orders))

	// First pass: validate and check for duplicates (existing + intra-batch)
	for _, o := range orders {
		if o.ID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := existing[o.ID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[o.ID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[o.ID] = struct{}{}
	}

	// Second pass: insert all
	if existing == nil {
		existing = make(map[string]domain.Order, len(orders))
		s.data[portfolioID] = existing
	}
	for _, o := range orders {
		existing[o.ID] = o.Clone()
	}
	return nil
}

// GetByPortfolio retrieves all orders of a portfolio, ordered by exit_time ASC, id ASC.
func (s *OrderStore) GetByPortfolio(_ context.Context, portfolioID string) ([]domain.Order, error) {
	return s.collect(portfolioID, func(domain.Order) bool { return true }), nil
}

// GetByTimeRange retrieves orders that exited within [start, end] (inclusive).
func (s *OrderStore) GetByTimeRange(_ context.Context, portfolioID string, start, end int64) ([]domain.Order, error) {
	return s.collect(portfolioID, func(o domain.Order) bool {
		return o.ExitTime >= start && o.ExitTime <= end
	}), nil
}

func (s *OrderStore) collect(portfolioID string, keep func(domain.Order) bool) []domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Order
	for _, o := range s.data[portfolioID] {
		if keep(o) {
			result = append(result, o.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ExitTime != result[j].ExitTime {
			return result[i].ExitTime < result[j].ExitTime
		}
		return result[i].ID < result[j].ID
	})
	return result
}

var _ storage.OrderStore = (*OrderStore)(nil)
