package verification

import (
	"context"
	"errors"
	"fmt"

	"perp-strategy-lab/internal/backtest"
	"perp-strategy-lab/internal/domain"
	"perp-strategy-lab/internal/storage"
)

// ErrNothingJournaled is returned when no orders are stored for a run.
var ErrNothingJournaled = errors.New("no journaled orders for run")

// ReplayVerifier replays backtests and compares them with their journal.
type ReplayVerifier struct {
	orders storage.OrderStore
	runner *backtest.Runner
}

// NewReplayVerifier creates a verifier reading the journal from orders.
func NewReplayVerifier(orders storage.OrderStore, runner *backtest.Runner) *ReplayVerifier {
	return &ReplayVerifier{orders: orders, runner: runner}
}

// JournalID returns the portfolio id a backtest of cfg is journaled under.
func JournalID(cfg domain.StrategyConfig) string {
	return "backtest:" + cfg.Name
}

// Journal stores the trades of res under the run's journal id.
func Journal(ctx context.Context, orders storage.OrderStore, cfg domain.StrategyConfig, res *backtest.Result) error {
	if len(res.Trades) == 0 {
		return nil
	}
	if err := orders.InsertBulk(ctx, JournalID(cfg), res.Trades); err != nil {
		return fmt.Errorf("journal %d orders: %w", len(res.Trades), err)
	}
	return nil
}

// Verify replays cfg over candles and compares the trades with the journal.
// Returns ErrNothingJournaled when the run has no stored orders.
func (v *ReplayVerifier) Verify(ctx context.Context, cfg domain.StrategyConfig, candles map[string][]domain.Candle) (*Report, error) {
	id := JournalID(cfg)
	stored, err := v.orders.GetByPortfolio(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load journal: %w", err)
	}
	if len(stored) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNothingJournaled, id)
	}

	res, err := v.runner.Run(ctx, cfg, candles)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	return Compare(id, stored, res.Trades), nil
}
