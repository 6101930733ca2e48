package strategy

import (
	"fmt"

	"perp-strategy-lab/internal/domain"
)

// SignalFilterStrategy admits backtest entries that pass the configured signal filters.
type SignalFilterStrategy struct {
	Filters  domain.SignalFilters
	Exits    domain.ExitRules
	Leverage float64
}

// NewSignalFilterStrategy creates a SignalFilterStrategy.
func NewSignalFilterStrategy(filters domain.SignalFilters, exits domain.ExitRules, leverage float64) *SignalFilterStrategy {
	return &SignalFilterStrategy{
		Filters:  filters,
		Exits:    exits,
		Leverage: leverage,
	}
}

// ID returns strategy identifier.
// Format: SIGNAL_FILTER_{minScore}_{leverage}x
func (s *SignalFilterStrategy) ID() string {
	return fmt.Sprintf("SIGNAL_FILTER_%g_%gx", s.Filters.MinScore, s.Leverage)
}

// Evaluate applies the signal filters to in.
func (s *SignalFilterStrategy) Evaluate(in *Input) Decision {
	return gate{
		minScore:   s.Filters.MinScore,
		maxOpen:    s.Filters.MaxSimultaneousPositions,
		capitalPct: s.Filters.MaxCapitalPerPositionPct,
		allowLong:  s.Filters.AllowLong,
		allowShort: s.Filters.AllowShort,
		leverage:   s.Leverage,
		exits:      s.Exits,
	}.evaluate(in)
}

var _ Strategy = (*SignalFilterStrategy)(nil)
