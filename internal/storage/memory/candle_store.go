package memory

import (
	"context"
	"sort"
	"sync"

	"perp-strategy-lab/internal/domain"
	"perp-strategy-lab/internal/storage"
)

// CandleStore is an in-memory implementation of storage.CandleStore.
type CandleStore struct {
	mu   sync.RWMutex
	data map[string]map[int64]domain.Candle // symbol -> timestamp -> candle
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{
		data: make(map[string]map[int64]domain.Candle),
	}
}

// InsertBulk adds candles for symbol. Fails entire batch on duplicate.
func (s *CandleStore) InsertBulk(_ context.Context, symbol string, candles []domain.Candle) error {
	if symbol == "" {
		return storage.ErrInvalidInput
	}
	if len(candles) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.data[symbol]
	batchKeys := make(map[int64]struct{}, len(candles))
	for _, c := range candles {
		if _, exists := existing[c.Timestamp]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[c.Timestamp]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[c.Timestamp] = struct{}{}
	}

	if existing == nil {
		existing = make(map[int64]domain.Candle, len(candles))
		s.data[symbol] = existing
	}
	for _, c := range candles {
		existing[c.Timestamp] = c
	}
	return nil
}

// GetByTimeRange retrieves candles for symbol within [start, end] (inclusive).
func (s *CandleStore) GetByTimeRange(_ context.Context, symbol string, start, end int64) ([]domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Candle
	for ts, c := range s.data[symbol] {
		if ts >= start && ts <= end {
			result = append(result, c)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp < result[j].Timestamp
	})
	return result, nil
}

// GetSymbols returns all symbols with at least one candle, sorted ASC.
func (s *CandleStore) GetSymbols(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	symbols := make([]string, 0, len(s.data))
	for sym, candles := range s.data {
		if len(candles) > 0 {
			symbols = append(symbols, sym)
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

var _ storage.CandleStore = (*CandleStore)(nil)
