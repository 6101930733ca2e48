package backtest

import (
	"perp-strategy-lab/internal/domain"
)

// Run status labels
const (
	StatusCompleted = "completed"
	StatusHalted    = "halted" // total drawdown stop
	StatusNoData    = "no_data"
	StatusInvalid   = "invalid"
)

// Result holds the output of one backtest.
type Result struct {
	Strategy    string
	Status      string
	Trades      []domain.Order // exit order
	EquityCurve []domain.EquityPoint
	Metrics     *domain.PerformanceMetrics

	Steps    int // timeline timestamps
	Bars     int // symbol bars processed
	Signals  int // signals offered to the entry strategy
	Fundings int // funding intervals charged

	Diagnostics []string
}

// ReturnPct returns the total return relative to the initial balance.
func (r *Result) ReturnPct() float64 {
	if r == nil || r.Metrics == nil {
		return 0
	}
	return r.Metrics.TotalReturnPct
}
