package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"perp-strategy-lab/internal/domain"
	"perp-strategy-lab/internal/storage"
)

// ErrNoTrades is returned when no orders are available for aggregation.
var ErrNoTrades = errors.New("no trades available for aggregation")

// Aggregator computes portfolio metrics from persisted orders and snapshots.
type Aggregator struct {
	orderStore    storage.OrderStore
	snapshotStore storage.SnapshotStore
	now           func() time.Time
}

// NewAggregator creates a new metrics aggregator.
func NewAggregator(orderStore storage.OrderStore, snapshotStore storage.SnapshotStore) *Aggregator {
	return &Aggregator{
		orderStore:    orderStore,
		snapshotStore: snapshotStore,
		now:           time.Now,
	}
}

// WithClock sets a custom clock for period PnL (for testing).
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// ComputePortfolio computes metrics for portfolioID.
// Balance and equity come from the latest snapshot.
// Returns ErrNoTrades if the portfolio has no closed orders.
func (a *Aggregator) ComputePortfolio(ctx context.Context, portfolioID string) (*domain.PerformanceMetrics, error) {
	orders, err := a.orderStore.GetByPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("load orders: %w", err)
	}
	if len(orders) == 0 {
		return nil, ErrNoTrades
	}

	snap, err := a.snapshotStore.Load(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	return Compute(orders, Input{
		InitialBalance: snap.InitialBalance,
		Balance:        snap.Balance,
		Equity:         snap.Equity,
		Now:            a.now(),
	}), nil
}
