// Package readiness scores whether a paper-trading session is ready for live capital.
package readiness

import (
	"fmt"
	"math"
	"time"

	"perp-strategy-lab/internal/domain"
)

const dayMs = 24 * 60 * 60 * 1000

// Evaluator evaluates the readiness checklist.
type Evaluator struct {
	now func() time.Time
}

// NewEvaluator creates a new readiness evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{now: time.Now}
}

// WithClock sets a custom clock for elapsed days (for testing).
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	e.now = now
	return e
}

// Evaluate produces a Result from in. It is a pure function of in and the clock.
// ready if ALL criteria pass, almost_ready if at least 70% pass, else not_ready.
func (e *Evaluator) Evaluate(in Input) *Result {
	m := in.Metrics
	if m == nil {
		m = &domain.PerformanceMetrics{}
	}
	elapsed := e.now().Sub(in.StartedAt).Milliseconds()
	if in.StartedAt.IsZero() || elapsed < 0 {
		elapsed = 0
	}

	criteria := []Criterion{
		{
			Name:      "Trade count",
			Threshold: fmt.Sprintf(">= %d", MinTrades),
			Actual:    fmt.Sprintf("%d", m.TotalTrades),
			Pass:      m.TotalTrades >= MinTrades,
		},
		{
			Name:      "Win rate",
			Threshold: fmt.Sprintf(">= %.0f%%", MinWinRatePct),
			Actual:    fmt.Sprintf("%.2f%%", m.WinRate),
			Pass:      m.WinRate >= MinWinRatePct,
		},
		{
			Name:      "Profit factor",
			Threshold: fmt.Sprintf(">= %.1f", MinProfitFactor),
			Actual:    formatProfitFactor(m.ProfitFactor),
			Pass:      m.ProfitFactor >= MinProfitFactor,
		},
		{
			Name:      "Max drawdown",
			Threshold: fmt.Sprintf("<= %.0f%%", MaxDrawdownPct),
			Actual:    fmt.Sprintf("%.2f%%", m.MaxDrawdownPct),
			Pass:      m.MaxDrawdownPct <= MaxDrawdownPct,
		},
		daysCriterion(elapsed),
		{
			Name:      "Average model probability",
			Threshold: fmt.Sprintf(">= %.0f%%", MinModelProbabilityPct),
			Actual:    fmt.Sprintf("%.2f%%", m.AvgModelProbability),
			Pass:      m.TotalTrades > 0 && m.AvgModelProbability >= MinModelProbabilityPct,
		},
		similarityCriterion(m.WinRate, in.Backtest),
	}

	passed := 0
	for _, c := range criteria {
		if c.Pass {
			passed++
		}
	}

	return &Result{
		Status:    status(passed, len(criteria)),
		Criteria:  criteria,
		Passed:    passed,
		Total:     len(criteria),
		ElapsedMs: elapsed,
	}
}

func daysCriterion(elapsedMs int64) Criterion {
	days := float64(elapsedMs) / dayMs
	return Criterion{
		Name:      "Days trading",
		Threshold: fmt.Sprintf(">= %.0f", MinDays),
		Actual:    fmt.Sprintf("%.1f", days),
		Pass:      days >= MinDays,
	}
}

// similarityCriterion compares the live win rate with the backtest's.
// deviation = |live - backtest| / backtest * 100.
func similarityCriterion(liveWinRate float64, bt *BacktestComparison) Criterion {
	c := Criterion{
		Name:      "Backtest similarity",
		Threshold: fmt.Sprintf("< %.0f%% deviation", MaxDeviationPct),
	}
	switch {
	case bt == nil:
		c.Actual = "no backtest comparison"
	case bt.WinRate <= 0:
		c.Actual = "backtest win rate is 0"
	default:
		deviation := math.Abs(liveWinRate-bt.WinRate) / bt.WinRate * 100
		c.Actual = fmt.Sprintf("%.2f%% (live %.2f%%, backtest %.2f%%)", deviation, liveWinRate, bt.WinRate)
		c.Pass = deviation < MaxDeviationPct
	}
	return c
}

func status(passed, total int) Status {
	switch {
	case passed == total:
		return StatusReady
	case float64(passed)/float64(total) >= almostReadyRatio:
		return StatusAlmostReady
	default:
		return StatusNotReady
	}
}

func formatProfitFactor(pf float64) string {
	if math.IsInf(pf, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.2f", pf)
}
