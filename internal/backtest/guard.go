package backtest

import (
	"perp-strategy-lab/internal/domain"
)

const dayMs int64 = 24 * 60 * 60 * 1000

// drawdownGuard tracks the daily and total drawdown limits of one run.
type drawdownGuard struct {
	limits domain.RiskLimits

	day      int64
	dayOpen  float64
	dailyHit bool
	daysHit  int

	peak     float64
	totalHit bool
	totalAt  int64
}

func newDrawdownGuard(limits domain.RiskLimits, initialEquity float64) *drawdownGuard {
	return &drawdownGuard{
		limits:  limits,
		day:     -1,
		dayOpen: initialEquity,
		peak:    initialEquity,
	}
}

// roll starts a new UTC day at ts with equity as its reference.
func (g *drawdownGuard) roll(ts int64, equity float64) {
	day := ts / dayMs
	if day == g.day {
		return
	}
	g.day = day
	g.dayOpen = equity
	g.dailyHit = false
}

// observe records equity after a bar. It reports whether the total limit was
// breached for the first time.
func (g *drawdownGuard) observe(ts int64, equity float64) (totalBreached bool) {
	if equity > g.peak {
		g.peak = equity
	}

	if limit := g.limits.MaxDailyDrawdownPct; limit > 0 && !g.dailyHit && g.dayOpen > 0 {
		if (g.dayOpen-equity)/g.dayOpen*100 >= limit {
			g.dailyHit = true
			g.daysHit++
		}
	}

	if limit := g.limits.MaxTotalDrawdownPct; limit > 0 && !g.totalHit && g.peak > 0 {
		if (g.peak-equity)/g.peak*100 >= limit {
			g.totalHit = true
			g.totalAt = ts
			return true
		}
	}
	return false
}

// halted reports whether the total limit stops the run.
func (g *drawdownGuard) halted() bool {
	return g.totalHit && g.limits.StopOnMaxDrawdown
}

// entriesAllowed reports whether new positions may be opened.
func (g *drawdownGuard) entriesAllowed() bool {
	return !g.dailyHit && !g.halted()
}
