package readiness

import (
	"time"

	"perp-strategy-lab/internal/domain"
)

// Status is the tri-state readiness verdict.
type Status string

const (
	StatusReady       Status = "ready"
	StatusAlmostReady Status = "almost_ready"
	StatusNotReady    Status = "not_ready"
)

// Thresholds for the readiness checklist.
const (
	MinTrades              = 50
	MinWinRatePct          = 55.0
	MinProfitFactor        = 1.3
	MaxDrawdownPct         = 15.0
	MinDays                = 30.0
	MinModelProbabilityPct = 65.0
	MaxDeviationPct        = 15.0

	// almostReadyRatio is the passed fraction above which a failing checklist is almost ready.
	almostReadyRatio = 0.7
)

// BacktestComparison is the backtest reference the live win rate is compared with.
type BacktestComparison struct {
	WinRate float64 // percent
}

// Input contains everything the checklist is evaluated on.
type Input struct {
	Metrics   *domain.PerformanceMetrics
	StartedAt time.Time // session start, for elapsed days

	// Backtest is optional; without it the similarity criterion fails.
	Backtest *BacktestComparison
}

// Criterion represents pass/fail for one checklist item.
type Criterion struct {
	Name      string `json:"name"`
	Threshold string `json:"threshold"`
	Actual    string `json:"actual"`
	Pass      bool   `json:"pass"`
}

// Result contains the verdict with its checklist.
type Result struct {
	Status    Status      `json:"status"`
	Criteria  []Criterion `json:"criteria"` // always 7, in fixed order
	Passed    int         `json:"passed"`
	Total     int         `json:"total"`
	ElapsedMs int64       `json:"elapsed_ms"`
}

// Score returns the passed fraction in [0, 1].
func (r *Result) Score() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Passed) / float64(r.Total)
}
