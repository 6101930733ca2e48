package optimizer

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perp-strategy-lab/internal/domain"
	"perp-strategy-lab/internal/signals"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

const hourMs int64 = 60 * 60 * 1000

func at(hour int) int64 {
	return t0.UnixMilli() + int64(hour)*hourMs
}

func baseConfig() domain.StrategyConfig {
	cfg := domain.DefaultStrategyConfig()
	cfg.Name = "grid"
	cfg.Symbols = []string{"BTCUSDT"}
	cfg.StartDate = t0
	cfg.EndDate = t0.AddDate(0, 0, 7)
	cfg.InitialBalance = 10000
	cfg.Leverage = 2
	cfg.Execution = domain.ExecutionConfig{}
	cfg.Signal = domain.SignalFilters{MinScore: 50, MaxCapitalPerPositionPct: 10, AllowLong: true, AllowShort: true}
	cfg.Risk = domain.RiskLimits{}
	cfg.Exits = domain.ExitRules{StopLossPct: 5, TakeProfit1Pct: 2}
	return cfg
}

// fixture: long at 100, next bar reaches 106 and the last bar closes at 101.
// TP1 2% -> +40, TP1 5% -> +100, TP1 8% -> end of data at 101 -> +20.
func fixture() (map[string][]domain.Candle, signals.Provider) {
	candles := map[string][]domain.Candle{"BTCUSDT": {
		{Timestamp: at(0), Open: 100, High: 100, Low: 100, Close: 100},
		{Timestamp: at(1), Open: 100, High: 106, Low: 99.5, Close: 105.5},
		{Timestamp: at(2), Open: 101, High: 101, Low: 101, Close: 101},
	}}
	sigs := signals.NewSeries([]domain.Signal{
		{Symbol: "BTCUSDT", Timestamp: at(0), Direction: domain.DirectionLong, Score: 70},
	})
	return candles, sigs
}

func TestParseParam(t *testing.T) {
	for _, p := range Params() {
		got, err := ParseParam(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}

	_, err := ParseParam("signal.nope")
	assert.True(t, errors.Is(err, ErrUnknownParam))
}

func TestParam_Apply(t *testing.T) {
	cfg := baseConfig()
	require.NoError(t, ParamMinScore.Apply(&cfg, 75))
	require.NoError(t, ParamMaxSimultaneousPositions.Apply(&cfg, 2))
	require.NoError(t, ParamTakeProfit3Pct.Apply(&cfg, 9))
	require.NoError(t, ParamMaxTotalDrawdownPct.Apply(&cfg, 12))

	assert.Equal(t, 75.0, cfg.Signal.MinScore)
	assert.Equal(t, 2, cfg.Signal.MaxSimultaneousPositions)
	assert.Equal(t, 9.0, cfg.Exits.TakeProfit3Pct)
	assert.Equal(t, 12.0, cfg.Risk.MaxTotalDrawdownPct)

	assert.True(t, errors.Is(Param(99).Apply(&cfg, 1), ErrUnknownParam))
}

func TestGenerate_DepthFirst(t *testing.T) {
	axes := []Axis{
		{Param: ParamLeverage, Values: []float64{1, 2}},
		{Param: ParamStopLossPct, Values: []float64{10, 20, 30}},
	}

	combos := generate(axes, 100)

	require.Len(t, combos, 6)
	want := [][2]float64{{1, 10}, {1, 20}, {1, 30}, {2, 10}, {2, 20}, {2, 30}}
	for i, c := range combos {
		assert.Equal(t, i, c.index)
		assert.Equal(t, want[i][0], c.params[0].Value)
		assert.Equal(t, want[i][1], c.params[1].Value)
		assert.Equal(t, "leverage", c.params[0].Name)
	}
}

func TestGenerate_NoAxes(t *testing.T) {
	combos := generate(nil, 100)

	require.Len(t, combos, 1)
	assert.Empty(t, combos[0].params)
	assert.Equal(t, 1, gridSize(nil))
}

func TestGenerate_Cap(t *testing.T) {
	axes := []Axis{
		{Param: ParamLeverage, Values: []float64{1, 2}},
		{Param: ParamStopLossPct, Values: []float64{10, 20, 30}},
	}

	assert.Len(t, generate(axes, 4), 4)
	assert.Equal(t, 6, gridSize(axes))
}

func TestGridSize_Saturates(t *testing.T) {
	values := make([]float64, 1<<16)
	axes := []Axis{
		{Param: ParamLeverage, Values: values},
		{Param: ParamStopLossPct, Values: values},
		{Param: ParamMinScore, Values: values},
		{Param: ParamTakeProfit1Pct, Values: values},
		{Param: ParamTakeProfit2Pct, Values: values},
	}
	assert.Equal(t, math.MaxInt, gridSize(axes))
}

func TestNew_Errors(t *testing.T) {
	_, err := New(Options{Axes: []Axis{{Param: Param(99), Values: []float64{1}}}})
	assert.True(t, errors.Is(err, ErrUnknownParam))

	_, err = New(Options{Axes: []Axis{{Param: ParamLeverage}}})
	assert.True(t, errors.Is(err, ErrEmptyAxis))

	_, err = New(Options{Criterion: "luck"})
	assert.Error(t, err)
}

func TestRiskAdjustedScore(t *testing.T) {
	tests := []struct {
		name string
		m    domain.PerformanceMetrics
		want float64
	}{
		{"normal", domain.PerformanceMetrics{SharpeRatio: 2, ProfitFactor: 1.5, MaxDrawdownPct: 10}, 0.3},
		{"small drawdown floors at 1", domain.PerformanceMetrics{SharpeRatio: 2, ProfitFactor: 1.5, MaxDrawdownPct: 0.2}, 3},
		{"no losses", domain.PerformanceMetrics{SharpeRatio: 1, ProfitFactor: math.Inf(1), MaxDrawdownPct: 2}, 50},
		{"no losses no sharpe", domain.PerformanceMetrics{ProfitFactor: math.Inf(1)}, 0},
		{"empty", domain.PerformanceMetrics{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, RiskAdjustedScore(&tt.m), 1e-9)
		})
	}
}

func entry(index int, pnl, sharpe, dd, score float64) *domain.OptimizationEntry {
	return &domain.OptimizationEntry{
		Index: index,
		Metrics: domain.PerformanceMetrics{
			TotalPnl:       pnl,
			SharpeRatio:    sharpe,
			MaxDrawdownPct: dd,
		},
		RiskAdjustedScore: score,
	}
}

func TestRank(t *testing.T) {
	entries := []*domain.OptimizationEntry{
		entry(0, 100, 1.0, 5, 0.2),
		entry(1, 300, 0.5, 10, 0.1),
		entry(2, 100, 2.0, 5, 0.4),
	}

	r := rank(entries, CriterionSharpe)

	indexes := func(es []*domain.OptimizationEntry) []int {
		out := make([]int, len(es))
		for i, e := range es {
			out[i] = e.Index
		}
		return out
	}
	assert.Equal(t, []int{1, 0, 2}, indexes(r.byProfit), "ties keep generation order")
	assert.Equal(t, []int{2, 0, 1}, indexes(r.bySharpe))
	assert.Equal(t, []int{0, 2, 1}, indexes(r.byDrawdown))
	assert.Equal(t, []int{2, 0, 1}, indexes(r.byRiskAdjusted))

	assert.Equal(t, domain.Ranks{Profit: 2, Sharpe: 2, Drawdown: 1, RiskAdjusted: 2}, entries[0].Ranks)
	assert.Equal(t, 1, entries[2].Rank, "rank follows the criterion")
	assert.Equal(t, 3, entries[1].Rank)
}

func TestOverfittingWarnings(t *testing.T) {
	axes := []Axis{
		{Param: ParamTakeProfit1Pct, Values: []float64{2, 5, 8}},
		{Param: ParamLeverage, Values: []float64{3}},
	}
	best := &domain.OptimizationEntry{
		Params: []domain.ParamValue{
			{Name: ParamTakeProfit1Pct.String(), Value: 8},
			{Name: ParamLeverage.String(), Value: 3},
		},
		Metrics: domain.PerformanceMetrics{TotalTrades: 4, TotalReturnPct: 10},
	}
	second := &domain.OptimizationEntry{Metrics: domain.PerformanceMetrics{TotalTrades: 40, TotalReturnPct: 1}}

	warnings := overfittingWarnings(axes, []*domain.OptimizationEntry{best, second})

	require.Len(t, warnings, 3)
	assert.Contains(t, warnings[0], "exits.takeProfit1Pct=8 is at the maximum")
	assert.Contains(t, warnings[1], "unstable")
	assert.Contains(t, warnings[2], "4 trades")
}

func TestOverfittingWarnings_Quiet(t *testing.T) {
	axes := []Axis{{Param: ParamTakeProfit1Pct, Values: []float64{2, 5, 8}}}
	var ranked []*domain.OptimizationEntry
	for i := 0; i < 5; i++ {
		ranked = append(ranked, &domain.OptimizationEntry{
			Params:  []domain.ParamValue{{Name: ParamTakeProfit1Pct.String(), Value: 5}},
			Metrics: domain.PerformanceMetrics{TotalTrades: 50, TotalReturnPct: 10 - float64(i)*0.1},
		})
	}

	assert.Empty(t, overfittingWarnings(axes, ranked))
	assert.Empty(t, overfittingWarnings(axes, nil))
}

func TestRun(t *testing.T) {
	candles, sigs := fixture()

	var (
		mu       sync.Mutex
		progress []Progress
	)
	opt, err := New(Options{
		Axes:    []Axis{{Param: ParamTakeProfit1Pct, Values: []float64{2, 5, 8}}},
		Workers: 2,
		Signals: sigs,
		Progress: func(p Progress) {
			mu.Lock()
			defer mu.Unlock()
			progress = append(progress, p)
		},
	})
	require.NoError(t, err)

	res, err := opt.Run(context.Background(), baseConfig(), candles)
	require.NoError(t, err)

	require.Len(t, res.Entries, 3)
	pnl := []float64{40, 100, 20}
	for i, e := range res.Entries {
		assert.Equal(t, i, e.Index)
		assert.InDelta(t, pnl[i], e.Metrics.TotalPnl, 1e-9, "entry %d", i)
		assert.Equal(t, res.RunID, e.RunID)
		assert.NotEmpty(t, e.ComboID)
	}

	require.NotNil(t, res.BestByProfit)
	v, _ := res.BestByProfit.Param("exits.takeProfit1Pct")
	assert.Equal(t, 5.0, v)
	assert.Equal(t, 1, res.BestByProfit.Rank)
	assert.Same(t, res.BestByProfit, res.Best())
	assert.Equal(t, res.ByProfit, res.Ranked)

	// one trade each: Sharpe, drawdown and score tie, generation order wins
	assert.Equal(t, 0, res.BestBySharpe.Index)
	assert.Equal(t, 0, res.BestByDrawdown.Index)
	assert.Equal(t, 0, res.BestByRiskAdjusted.Index)

	assert.Zero(t, res.Dropped)
	for _, w := range res.Warnings {
		assert.NotContains(t, w, "widen", "best value is inside the range")
	}
	assert.True(t, containsText(res.Warnings, "sample too small"))

	require.Len(t, progress, 5)
	assert.Equal(t, "starting", progress[0].Message)
	assert.Equal(t, 100.0, progress[4].Percent)
	assert.Equal(t, 3, progress[3].Current)
}

func TestRun_SingleCombinationRanksFirst(t *testing.T) {
	candles, sigs := fixture()

	for _, c := range []Criterion{CriterionProfit, CriterionSharpe, CriterionDrawdown, CriterionRiskAdjusted} {
		t.Run(string(c), func(t *testing.T) {
			opt, err := New(Options{
				Axes:      []Axis{{Param: ParamTakeProfit1Pct, Values: []float64{5}}},
				Criterion: c,
				Signals:   sigs,
			})
			require.NoError(t, err)

			res, err := opt.Run(context.Background(), baseConfig(), candles)
			require.NoError(t, err)

			require.Len(t, res.Entries, 1)
			require.Len(t, res.Ranked, 1)
			e := res.Ranked[0]
			assert.Equal(t, 1, e.Rank)
			assert.Equal(t, domain.Ranks{Profit: 1, Sharpe: 1, Drawdown: 1, RiskAdjusted: 1}, e.Ranks)
			assert.Same(t, e, res.Best())
		})
	}
}

func TestRun_DeterministicAcrossWorkers(t *testing.T) {
	candles, sigs := fixture()
	axes := []Axis{
		{Param: ParamTakeProfit1Pct, Values: []float64{2, 5, 8}},
		{Param: ParamLeverage, Values: []float64{1, 2, 3}},
	}

	run := func(workers int) *Result {
		opt, err := New(Options{Axes: axes, Workers: workers, Signals: sigs, Criterion: CriterionRiskAdjusted})
		require.NoError(t, err)
		res, err := opt.Run(context.Background(), baseConfig(), candles)
		require.NoError(t, err)
		return res
	}

	if diff := cmp.Diff(run(1), run(4)); diff != "" {
		t.Errorf("results depend on worker count (-1 +4):\n%s", diff)
	}
}

func TestRun_Cap(t *testing.T) {
	candles, sigs := fixture()
	opt, err := New(Options{
		Axes:            []Axis{{Param: ParamTakeProfit1Pct, Values: []float64{2, 5, 8}}},
		MaxCombinations: 2,
		Signals:         sigs,
	})
	require.NoError(t, err)

	res, err := opt.Run(context.Background(), baseConfig(), candles)
	require.NoError(t, err)

	assert.Len(t, res.Entries, 2)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 1, res.Dropped)
	assert.True(t, containsText(res.Diagnostics, "dropped 1"))
}

func TestRun_InvalidCombinationSkipped(t *testing.T) {
	candles, sigs := fixture()
	cfg := baseConfig()
	cfg.Exits.TakeProfit2Pct = 4

	opt, err := New(Options{
		Axes:    []Axis{{Param: ParamTakeProfit1Pct, Values: []float64{2, 5}}},
		Signals: sigs,
	})
	require.NoError(t, err)

	res, err := opt.Run(context.Background(), cfg, candles)
	require.NoError(t, err)

	require.Len(t, res.Entries, 1)
	assert.Equal(t, 0, res.Entries[0].Index)
	assert.True(t, containsText(res.Diagnostics, "combination 1 skipped"))
}

func TestRun_Canceled(t *testing.T) {
	candles, sigs := fixture()
	opt, err := New(Options{Signals: sigs})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = opt.Run(ctx, baseConfig(), candles)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestComboID(t *testing.T) {
	a := comboID("grid", []domain.ParamValue{{Name: "leverage", Value: 2}})
	b := comboID("grid", []domain.ParamValue{{Name: "leverage", Value: 2}})
	c := comboID("grid", []domain.ParamValue{{Name: "leverage", Value: 3}})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func containsText(lines []string, substr string) bool {
	for _, l := range lines {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}
