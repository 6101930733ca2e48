// Package metrics turns closed-order histories into performance statistics.
package metrics

import (
	"math"
	"sort"
	"time"

	"perp-strategy-lab/internal/domain"
)

// tradingDaysPerYear annualizes per-trade Sharpe and Sortino ratios.
const tradingDaysPerYear = 252

// Input is the portfolio reference the order history is measured against.
type Input struct {
	InitialBalance float64
	Balance        float64
	Equity         float64
	Now            time.Time // evaluation time for period PnL
}

// Period windows for PnL reporting.
const (
	dayMs   int64 = 24 * 60 * 60 * 1000
	weekMs        = 7 * dayMs
	monthMs       = 30 * dayMs
)

// Compute calculates all metrics from orders.
// Orders are sorted by ExitTime ASC, ID ASC into a copy before computing
// order-dependent metrics (drawdown, streaks); the input is not modified.
func Compute(orders []domain.Order, in Input) *domain.PerformanceMetrics {
	m := &domain.PerformanceMetrics{
		ExitReasons:    map[domain.ExitReason]int{},
		InitialBalance: in.InitialBalance,
		Balance:        in.Balance,
		Equity:         in.Equity,
	}
	n := len(orders)
	if n == 0 {
		return m
	}

	sorted := sortOrders(orders)

	var (
		longWins, shortWins int
		winSum, lossSum     float64
		durationSum         int64
		probabilitySum      float64
	)
	pnlPercents := make([]float64, n)
	nowMs := in.Now.UnixMilli()

	for i, o := range sorted {
		pnlPercents[i] = o.PnlPercent
		m.TotalPnl += o.NetPnl
		m.TotalFees += o.Fees
		m.TotalFunding += o.Funding
		m.ExitReasons[o.ExitReason]++
		durationSum += o.DurationMs
		probabilitySum += o.Signal.ModelProbability

		if o.IsWin() {
			m.Wins++
			m.GrossProfit += o.NetPnl
			winSum += o.NetPnl
			if o.NetPnl > m.LargestWin {
				m.LargestWin = o.NetPnl
			}
		} else {
			m.Losses++
			m.GrossLoss -= o.NetPnl
			lossSum += o.NetPnl
			if o.NetPnl < m.LargestLoss {
				m.LargestLoss = o.NetPnl
			}
		}

		switch o.Direction {
		case domain.DirectionLong:
			m.LongTrades++
			if o.IsWin() {
				longWins++
			}
		case domain.DirectionShort:
			m.ShortTrades++
			if o.IsWin() {
				shortWins++
			}
		}

		if !in.Now.IsZero() {
			age := nowMs - o.ExitTime
			if age <= dayMs {
				m.PnlToday += o.NetPnl
			}
			if age <= weekMs {
				m.PnlWeek += o.NetPnl
			}
			if age <= monthMs {
				m.PnlMonth += o.NetPnl
			}
		}
	}

	m.TotalTrades = n
	m.WinRate = computeWinRate(m.Wins, n)
	m.LongWinRate = computeWinRate(longWins, m.LongTrades)
	m.ShortWinRate = computeWinRate(shortWins, m.ShortTrades)
	m.ProfitFactor = computeProfitFactor(m.GrossProfit, m.GrossLoss)
	if in.InitialBalance > 0 {
		m.TotalReturnPct = m.TotalPnl / in.InitialBalance * 100
	}
	if m.Wins > 0 {
		m.AvgWin = winSum / float64(m.Wins)
	}
	if m.Losses > 0 {
		m.AvgLoss = lossSum / float64(m.Losses)
	}

	mean := computeMean(pnlPercents)
	m.AvgPnlPercent = mean
	m.SharpeRatio = computeSharpe(pnlPercents, mean)
	m.SortinoRatio = computeSortino(pnlPercents, mean)
	m.MaxDrawdown, m.MaxDrawdownPct = computeMaxDrawdown(sorted, in.InitialBalance)
	m.MaxWinStreak, m.MaxLossStreak = computeStreaks(sorted)
	m.AvgDurationMs = durationSum / int64(n)
	m.AvgModelProbability = probabilitySum / float64(n)

	return m
}

// EquityCurve returns realized equity after each order, in exit order,
// seeded with the initial balance at the earliest entry time.
func EquityCurve(orders []domain.Order, initialBalance float64) []domain.EquityPoint {
	if len(orders) == 0 {
		return nil
	}
	sorted := sortOrders(orders)

	start := sorted[0].EntryTime
	for _, o := range sorted {
		if o.EntryTime < start {
			start = o.EntryTime
		}
	}

	curve := make([]domain.EquityPoint, 0, len(sorted)+1)
	curve = append(curve, domain.EquityPoint{Timestamp: start, Equity: initialBalance, Balance: initialBalance})
	equity := initialBalance
	for _, o := range sorted {
		equity += o.NetPnl
		curve = append(curve, domain.EquityPoint{Timestamp: o.ExitTime, Equity: equity, Balance: equity})
	}
	return curve
}

// sortOrders returns a copy sorted by ExitTime ASC, ID ASC.
func sortOrders(orders []domain.Order) []domain.Order {
	sorted := make([]domain.Order, len(orders))
	copy(sorted, orders)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ExitTime != sorted[j].ExitTime {
			return sorted[i].ExitTime < sorted[j].ExitTime
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

// computeWinRate calculates win rate as wins / total * 100.
func computeWinRate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total) * 100
}

// computeProfitFactor returns grossProfit / grossLoss.
// 0 with no profit, +Inf with profit and no loss.
func computeProfitFactor(grossProfit, grossLoss float64) float64 {
	if grossLoss == 0 {
		if grossProfit > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return grossProfit / grossLoss
}

// computeMean calculates arithmetic mean.
func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// computeStddev calculates sample standard deviation (n-1 denominator).
func computeStddev(values []float64, mean float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// computeSharpe returns mean / stddev * sqrt(252), or 0 when stddev is 0.
func computeSharpe(pnlPercents []float64, mean float64) float64 {
	stddev := computeStddev(pnlPercents, mean)
	if stddev == 0 {
		return 0
	}
	return mean / stddev * math.Sqrt(tradingDaysPerYear)
}

// computeSortino returns mean / downside deviation * sqrt(252),
// or 0 when there is no downside.
func computeSortino(pnlPercents []float64, mean float64) float64 {
	if len(pnlPercents) == 0 {
		return 0
	}
	sumSq := 0.0
	for _, v := range pnlPercents {
		if v < 0 {
			sumSq += v * v
		}
	}
	downside := math.Sqrt(sumSq / float64(len(pnlPercents)))
	if downside == 0 {
		return 0
	}
	return mean / downside * math.Sqrt(tradingDaysPerYear)
}

// computeMaxDrawdown replays orders over equity seeded at initialBalance.
// Returns the largest peak-to-trough decline and its percent of that peak.
// Orders must be in exit order.
func computeMaxDrawdown(orders []domain.Order, initialBalance float64) (float64, float64) {
	equity := initialBalance
	peak := initialBalance
	maxDrawdown := 0.0
	maxDrawdownPct := 0.0

	for _, o := range orders {
		equity += o.NetPnl
		if equity > peak {
			peak = equity
		}
		drawdown := peak - equity
		if drawdown > maxDrawdown {
			maxDrawdown = drawdown
			if peak > 0 {
				maxDrawdownPct = drawdown / peak * 100
			}
		}
	}
	return maxDrawdown, maxDrawdownPct
}

// computeStreaks finds the longest win and loss streaks.
// A streak resets to 1 when the outcome sign flips. Orders must be in exit order.
func computeStreaks(orders []domain.Order) (maxWin, maxLoss int) {
	current := 0
	lastWin := false

	for i, o := range orders {
		win := o.IsWin()
		if i > 0 && win == lastWin {
			current++
		} else {
			current = 1
		}
		lastWin = win

		if win && current > maxWin {
			maxWin = current
		}
		if !win && current > maxLoss {
			maxLoss = current
		}
	}
	return maxWin, maxLoss
}
