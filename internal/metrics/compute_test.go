package metrics

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"perp-strategy-lab/internal/domain"
)

const eps = 1e-9

// makeOrder creates a closed order with the given net PnL and exit time (ms).
func makeOrder(id string, dir domain.Direction, net float64, exitTime int64) domain.Order {
	return domain.Order{
		ID:         id,
		Symbol:     "BTCUSDT",
		Direction:  dir,
		EntryTime:  exitTime - 60_000,
		ExitTime:   exitTime,
		Margin:     100,
		NetPnl:     net,
		PnlPercent: net, // margin 100
		ExitReason: domain.ExitReasonManual,
		DurationMs: 60_000,
		Signal:     domain.SignalContext{ModelProbability: 70},
	}
}

func TestCompute_Empty(t *testing.T) {
	m := Compute(nil, Input{InitialBalance: 1000, Balance: 1000, Equity: 1000})

	if m.TotalTrades != 0 {
		t.Errorf("expected 0 trades, got %d", m.TotalTrades)
	}
	if m.ProfitFactor != 0 {
		t.Errorf("expected profit factor 0 for empty history, got %v", m.ProfitFactor)
	}
	if m.SharpeRatio != 0 || m.MaxDrawdown != 0 || m.WinRate != 0 {
		t.Errorf("expected zero stats, got %+v", m)
	}
	if m.Equity != 1000 {
		t.Errorf("expected equity passthrough 1000, got %v", m.Equity)
	}
}

func TestCompute_ProfitFactorInfinity(t *testing.T) {
	orders := []domain.Order{
		makeOrder("o1", domain.DirectionLong, 10, 1000),
		makeOrder("o2", domain.DirectionLong, 5, 2000),
	}

	m := Compute(orders, Input{InitialBalance: 1000})

	if !math.IsInf(m.ProfitFactor, 1) {
		t.Errorf("expected +Inf profit factor, got %v", m.ProfitFactor)
	}
	if m.WinRate != 100 {
		t.Errorf("expected win rate 100, got %v", m.WinRate)
	}
}

func TestCompute_WinRatesAndProfitFactor(t *testing.T) {
	orders := []domain.Order{
		makeOrder("o1", domain.DirectionLong, 30, 1000),
		makeOrder("o2", domain.DirectionLong, -10, 2000),
		makeOrder("o3", domain.DirectionShort, 20, 3000),
		makeOrder("o4", domain.DirectionShort, -10, 4000),
		makeOrder("o5", domain.DirectionShort, -10, 5000),
	}

	m := Compute(orders, Input{InitialBalance: 1000})

	if m.Wins != 2 || m.Losses != 3 {
		t.Errorf("expected 2 wins / 3 losses, got %d / %d", m.Wins, m.Losses)
	}
	if math.Abs(m.WinRate-40) > eps {
		t.Errorf("expected win rate 40, got %v", m.WinRate)
	}
	if math.Abs(m.LongWinRate-50) > eps {
		t.Errorf("expected long win rate 50, got %v", m.LongWinRate)
	}
	if math.Abs(m.ShortWinRate-100.0/3) > eps {
		t.Errorf("expected short win rate 33.3, got %v", m.ShortWinRate)
	}
	// 50 / 30
	if math.Abs(m.ProfitFactor-50.0/30) > eps {
		t.Errorf("expected profit factor 1.667, got %v", m.ProfitFactor)
	}
	if math.Abs(m.TotalPnl-20) > eps {
		t.Errorf("expected total pnl 20, got %v", m.TotalPnl)
	}
	if math.Abs(m.TotalReturnPct-2) > eps {
		t.Errorf("expected return 2%%, got %v", m.TotalReturnPct)
	}
	if m.LargestWin != 30 || m.LargestLoss != -10 {
		t.Errorf("expected largest 30 / -10, got %v / %v", m.LargestWin, m.LargestLoss)
	}
	if m.AvgModelProbability != 70 {
		t.Errorf("expected avg model probability 70, got %v", m.AvgModelProbability)
	}
	if m.ExitReasons[domain.ExitReasonManual] != 5 {
		t.Errorf("expected 5 manual exits, got %d", m.ExitReasons[domain.ExitReasonManual])
	}
}

func TestCompute_SharpeZeroStddev(t *testing.T) {
	orders := []domain.Order{
		makeOrder("o1", domain.DirectionLong, 10, 1000),
		makeOrder("o2", domain.DirectionLong, 10, 2000),
		makeOrder("o3", domain.DirectionLong, 10, 3000),
	}

	m := Compute(orders, Input{InitialBalance: 1000})

	if m.SharpeRatio != 0 {
		t.Errorf("expected Sharpe 0 with zero stddev, got %v", m.SharpeRatio)
	}
	if math.IsNaN(m.SortinoRatio) || m.SortinoRatio != 0 {
		t.Errorf("expected Sortino 0 with no downside, got %v", m.SortinoRatio)
	}
}

func TestCompute_Sharpe(t *testing.T) {
	orders := []domain.Order{
		makeOrder("o1", domain.DirectionLong, 10, 1000),
		makeOrder("o2", domain.DirectionLong, -5, 2000),
		makeOrder("o3", domain.DirectionLong, 4, 3000),
	}

	m := Compute(orders, Input{InitialBalance: 1000})

	// mean = 3, sample stddev = sqrt(((7)^2 + (-8)^2 + 1^2) / 2) = sqrt(57)
	want := 3 / math.Sqrt(57) * math.Sqrt(252)
	if math.Abs(m.SharpeRatio-want) > eps {
		t.Errorf("expected Sharpe %v, got %v", want, m.SharpeRatio)
	}
}

func TestCompute_MaxDrawdownInExitOrder(t *testing.T) {
	// Given out of order; replay must follow exit time
	orders := []domain.Order{
		makeOrder("o3", domain.DirectionLong, -300, 3000),
		makeOrder("o1", domain.DirectionLong, 200, 1000),
		makeOrder("o4", domain.DirectionLong, 500, 4000),
		makeOrder("o2", domain.DirectionLong, -100, 2000),
	}

	m := Compute(orders, Input{InitialBalance: 1000})

	// equity: 1200 (peak) -> 1100 -> 800 -> 1300
	if math.Abs(m.MaxDrawdown-400) > eps {
		t.Errorf("expected max drawdown 400, got %v", m.MaxDrawdown)
	}
	if math.Abs(m.MaxDrawdownPct-400.0/1200*100) > eps {
		t.Errorf("expected max drawdown 33.33%%, got %v", m.MaxDrawdownPct)
	}
}

func TestCompute_Streaks(t *testing.T) {
	nets := []float64{5, 5, -1, -1, -1, 2, 3, 4, 5, -2}
	orders := make([]domain.Order, len(nets))
	for i, n := range nets {
		orders[i] = makeOrder(string(rune('a'+i)), domain.DirectionLong, n, int64(i+1)*1000)
	}

	m := Compute(orders, Input{InitialBalance: 1000})

	if m.MaxWinStreak != 4 {
		t.Errorf("expected max win streak 4, got %d", m.MaxWinStreak)
	}
	if m.MaxLossStreak != 3 {
		t.Errorf("expected max loss streak 3, got %d", m.MaxLossStreak)
	}
}

func TestCompute_PeriodPnl(t *testing.T) {
	now := time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)
	nowMs := now.UnixMilli()
	hour := int64(time.Hour / time.Millisecond)

	orders := []domain.Order{
		makeOrder("o1", domain.DirectionLong, 1, nowMs-2*hour),     // today
		makeOrder("o2", domain.DirectionLong, 10, nowMs-3*24*hour), // this week
		makeOrder("o3", domain.DirectionLong, 100, nowMs-20*24*hour), // this month
		makeOrder("o4", domain.DirectionLong, 1000, nowMs-40*24*hour), // older
	}

	m := Compute(orders, Input{InitialBalance: 10000, Now: now})

	if m.PnlToday != 1 {
		t.Errorf("expected today 1, got %v", m.PnlToday)
	}
	if m.PnlWeek != 11 {
		t.Errorf("expected week 11, got %v", m.PnlWeek)
	}
	if m.PnlMonth != 111 {
		t.Errorf("expected month 111, got %v", m.PnlMonth)
	}
}

func TestCompute_Idempotent(t *testing.T) {
	orders := []domain.Order{
		makeOrder("o2", domain.DirectionShort, -7.25, 2000),
		makeOrder("o1", domain.DirectionLong, 12.5, 1000),
		makeOrder("o3", domain.DirectionLong, 3.1, 2000),
	}
	before := make([]domain.Order, len(orders))
	copy(before, orders)
	in := Input{InitialBalance: 1000, Balance: 1008, Equity: 1010, Now: time.UnixMilli(5000)}

	first := Compute(orders, in)
	second := Compute(orders, in)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Compute not idempotent (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(before, orders); diff != "" {
		t.Errorf("Compute mutated input (-before +after):\n%s", diff)
	}
}

func TestEquityCurve(t *testing.T) {
	orders := []domain.Order{
		makeOrder("o2", domain.DirectionLong, -50, 3000),
		makeOrder("o1", domain.DirectionLong, 100, 2000),
	}

	curve := EquityCurve(orders, 1000)

	if len(curve) != 3 {
		t.Fatalf("expected 3 points, got %d", len(curve))
	}
	if curve[0].Equity != 1000 || curve[0].Timestamp != 2000-60_000 {
		t.Errorf("unexpected seed point %+v", curve[0])
	}
	if curve[1].Equity != 1100 || curve[2].Equity != 1050 {
		t.Errorf("unexpected curve %+v", curve)
	}
	if EquityCurve(nil, 1000) != nil {
		t.Error("expected nil curve for empty history")
	}
}

func TestComputePercentHelpers(t *testing.T) {
	if computeWinRate(0, 0) != 0 {
		t.Error("win rate of empty set should be 0")
	}
	if computeStddev([]float64{5}, 5) != 0 {
		t.Error("stddev of single sample should be 0")
	}
	if computeProfitFactor(0, 0) != 0 {
		t.Error("profit factor without trades should be 0")
	}
}
