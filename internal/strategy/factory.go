package strategy

import (
	"errors"

	"perp-strategy-lab/internal/domain"
)

// Strategy kinds
const (
	KindSignalFilter = "signal_filter"
	KindAutoTrade    = "auto_trade"
)

// Factory errors
var (
	ErrUnknownStrategyType = errors.New("unknown strategy type")
	ErrInvalidLeverage     = errors.New("leverage must be >= 1")
	ErrMissingCapital      = errors.New("capital per position must be positive")
)

// FromConfig creates a Strategy of the given kind from cfg.
// Returns clear errors for missing/invalid params.
func FromConfig(kind string, cfg domain.StrategyConfig) (Strategy, error) {
	if cfg.Leverage < 1 {
		return nil, ErrInvalidLeverage
	}

	switch kind {
	case KindSignalFilter:
		if cfg.Signal.MaxCapitalPerPositionPct <= 0 {
			return nil, ErrMissingCapital
		}
		return NewSignalFilterStrategy(cfg.Signal, cfg.Exits, cfg.Leverage), nil
	case KindAutoTrade:
		if cfg.AutoTrade.MaxCapitalPerTradePct <= 0 {
			return nil, ErrMissingCapital
		}
		return NewAutoTradeStrategy(cfg.AutoTrade, cfg.Exits, cfg.Leverage), nil
	default:
		return nil, ErrUnknownStrategyType
	}
}
