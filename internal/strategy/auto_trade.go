package strategy

import (
	"fmt"

	"perp-strategy-lab/internal/domain"
)

// AutoTradeStrategy admits live entries that pass the auto-trade thresholds.
// Both directions are allowed; the model probability gate applies.
type AutoTradeStrategy struct {
	Thresholds domain.AutoTradeConfig
	Exits      domain.ExitRules
	Leverage   float64
}

// NewAutoTradeStrategy creates an AutoTradeStrategy.
func NewAutoTradeStrategy(thresholds domain.AutoTradeConfig, exits domain.ExitRules, leverage float64) *AutoTradeStrategy {
	return &AutoTradeStrategy{
		Thresholds: thresholds,
		Exits:      exits,
		Leverage:   leverage,
	}
}

// ID returns strategy identifier.
// Format: AUTO_TRADE_{minScore}_{minProbability}_{leverage}x
func (s *AutoTradeStrategy) ID() string {
	return fmt.Sprintf("AUTO_TRADE_%g_%g_%gx", s.Thresholds.MinScore, s.Thresholds.MinModelProbability, s.Leverage)
}

// Evaluate applies the auto-trade thresholds to in.
func (s *AutoTradeStrategy) Evaluate(in *Input) Decision {
	return gate{
		minScore:       s.Thresholds.MinScore,
		minProbability: s.Thresholds.MinModelProbability,
		maxOpen:        s.Thresholds.MaxSimultaneousPositions,
		capitalPct:     s.Thresholds.MaxCapitalPerTradePct,
		allowLong:      true,
		allowShort:     true,
		leverage:       s.Leverage,
		exits:          s.Exits,
	}.evaluate(in)
}

var _ Strategy = (*AutoTradeStrategy)(nil)
