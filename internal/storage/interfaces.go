package storage

import (
	"context"

	"perp-strategy-lab/internal/domain"
)

// CandleStore provides access to candles storage.
type CandleStore interface {
	// InsertBulk adds candles for symbol. Fails entire batch on duplicate (symbol, timestamp).
	InsertBulk(ctx context.Context, symbol string, candles []domain.Candle) error

	// GetByTimeRange retrieves candles for symbol within [start, end] (inclusive, Unix ms),
	// ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, symbol string, start, end int64) ([]domain.Candle, error)

	// GetSymbols returns all symbols with at least one candle, sorted ASC.
	GetSymbols(ctx context.Context) ([]string, error)
}

// OrderStore provides access to the closed-order journal.
type OrderStore interface {
	// Insert adds a closed order. Returns ErrDuplicateKey if the order id exists.
	Insert(ctx context.Context, portfolioID string, o *domain.Order) error

	// InsertBulk adds multiple orders atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, portfolioID string, orders []domain.Order) error

	// GetByPortfolio retrieves all orders of a portfolio, ordered by exit_time ASC, id ASC.
	GetByPortfolio(ctx context.Context, portfolioID string) ([]domain.Order, error)

	// GetByTimeRange retrieves orders that exited within [start, end] (inclusive, Unix ms).
	GetByTimeRange(ctx context.Context, portfolioID string, start, end int64) ([]domain.Order, error)
}

// SnapshotStore persists the latest PortfolioState per portfolio.
// Unlike the other stores, Save overwrites.
type SnapshotStore interface {
	// Save stores s as the current snapshot of portfolioID.
	Save(ctx context.Context, portfolioID string, s *domain.PortfolioState) error

	// Load retrieves the current snapshot. Returns ErrNotFound if none was saved.
	Load(ctx context.Context, portfolioID string) (*domain.PortfolioState, error)
}

// OptimizationResultStore provides access to ranked grid search entries.
type OptimizationResultStore interface {
	// InsertBulk adds entries. Fails entire batch on duplicate (run_id, index).
	InsertBulk(ctx context.Context, entries []*domain.OptimizationEntry) error

	// GetByRunID retrieves all entries of a run, ordered by rank ASC, index ASC.
	GetByRunID(ctx context.Context, runID string) ([]*domain.OptimizationEntry, error)
}

// WalkForwardStore provides access to walk-forward reports.
type WalkForwardStore interface {
	// Insert adds a report. Returns ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, r *domain.WalkForwardReport) error

	// GetByID retrieves a report. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.WalkForwardReport, error)
}
