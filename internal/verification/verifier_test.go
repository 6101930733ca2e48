package verification

import (
	"context"
	"errors"
	"testing"
	"time"

	"perp-strategy-lab/internal/backtest"
	"perp-strategy-lab/internal/domain"
	"perp-strategy-lab/internal/signals"
	"perp-strategy-lab/internal/storage/memory"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(hour int) int64 {
	return t0.Add(time.Duration(hour) * time.Hour).UnixMilli()
}

func bar(hour int, open, high, low, closePrice float64) domain.Candle {
	return domain.Candle{Timestamp: at(hour), Open: open, High: high, Low: low, Close: closePrice, Volume: 1}
}

func testConfig() domain.StrategyConfig {
	cfg := domain.DefaultStrategyConfig()
	cfg.Name = "verify"
	cfg.Symbols = []string{"BTCUSDT"}
	cfg.StartDate = t0
	cfg.EndDate = t0.AddDate(0, 0, 7)
	cfg.InitialBalance = 10000
	cfg.Leverage = 2
	cfg.Execution = domain.ExecutionConfig{}
	cfg.Signal = domain.SignalFilters{MinScore: 50, MaxCapitalPerPositionPct: 10, AllowLong: true, AllowShort: true}
	cfg.Risk = domain.RiskLimits{}
	cfg.Exits = domain.ExitRules{StopLossPct: 5, TakeProfit1Pct: 10}
	return cfg
}

func fixture() (map[string][]domain.Candle, *backtest.Runner) {
	candles := map[string][]domain.Candle{"BTCUSDT": {
		bar(0, 100, 100, 100, 100),
		bar(1, 101, 112, 100, 111),
		bar(2, 111, 111, 111, 111),
		bar(3, 111, 111, 104, 105),
	}}
	sigs := []domain.Signal{
		{Symbol: "BTCUSDT", Timestamp: at(0), Direction: domain.DirectionLong, Score: 70, ModelProbability: 60},
		{Symbol: "BTCUSDT", Timestamp: at(2), Direction: domain.DirectionShort, Score: 70, ModelProbability: 60},
	}
	return candles, backtest.NewRunner(backtest.Options{Signals: signals.NewSeries(sigs)})
}

func sampleOrder() domain.Order {
	return domain.Order{
		ID:             "o1",
		PositionID:     "p1",
		Symbol:         "BTCUSDT",
		Direction:      domain.DirectionLong,
		EntryPrice:     100,
		ExitPrice:      110,
		EntryTime:      1000,
		ExitTime:       2000,
		Quantity:       20,
		QuantityClosed: 20,
		Leverage:       2,
		Margin:         1000,
		GrossPnl:       200,
		NetPnl:         200,
		PnlPercent:     20,
		ExitReason:     domain.ExitReasonTP1,
		DurationMs:     1000,
		Signal:         domain.SignalContext{Score: 70, ModelProbability: 60},
	}
}

func TestCompareOrders_ExactMatch(t *testing.T) {
	stored := sampleOrder()
	replayed := sampleOrder()
	replayed.Signal.Tags = []string{"ignored"}

	if d := CompareOrders(&stored, &replayed); len(d) != 0 {
		t.Errorf("Expected no divergences, got %v", d)
	}
}

func TestCompareOrders_WithinTolerance(t *testing.T) {
	stored := sampleOrder()
	replayed := sampleOrder()
	replayed.NetPnl += FloatTolerance / 2

	if d := CompareOrders(&stored, &replayed); len(d) != 0 {
		t.Errorf("Expected no divergences within tolerance, got %v", d)
	}
}

func TestCompareOrders_Divergences(t *testing.T) {
	stored := sampleOrder()
	replayed := sampleOrder()
	replayed.ExitPrice = 109
	replayed.ExitReason = domain.ExitReasonStopLoss
	replayed.ExitTime = 3000

	d := CompareOrders(&stored, &replayed)
	fields := make(map[string]bool, len(d))
	for _, f := range d {
		fields[f.Field] = true
	}
	for _, want := range []string{"ExitPrice", "ExitReason", "ExitTime"} {
		if !fields[want] {
			t.Errorf("Expected divergence on %s, got %v", want, d)
		}
	}
	if len(d) != 3 {
		t.Errorf("Expected 3 divergences, got %d", len(d))
	}
}

func TestCompare_MissingAndExtra(t *testing.T) {
	a, b, c := sampleOrder(), sampleOrder(), sampleOrder()
	b.ID = "o2"
	c.ID = "o3"

	r := Compare("run", []domain.Order{a, b}, []domain.Order{a, c})

	if r.TotalOrders != 2 || r.Matched != 1 || r.Divergent != 1 {
		t.Errorf("Expected 2 total, 1 matched, 1 divergent, got %d/%d/%d", r.TotalOrders, r.Matched, r.Divergent)
	}
	if len(r.Missing) != 1 || r.Missing[0] != "o2" {
		t.Errorf("Expected o2 missing, got %v", r.Missing)
	}
	if len(r.Extra) != 1 || r.Extra[0] != "o3" {
		t.Errorf("Expected o3 extra, got %v", r.Extra)
	}
	if r.OK() {
		t.Error("Expected report not OK")
	}
}

func TestVerify_JournalMatchesReplay(t *testing.T) {
	ctx := context.Background()
	candles, runner := fixture()
	cfg := testConfig()
	orders := memory.NewOrderStore()

	res, err := runner.Run(ctx, cfg, candles)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Trades) < 2 {
		t.Fatalf("Expected at least 2 trades, got %d", len(res.Trades))
	}
	if err := Journal(ctx, orders, cfg, res); err != nil {
		t.Fatalf("Journal failed: %v", err)
	}

	report, err := NewReplayVerifier(orders, runner).Verify(ctx, cfg, candles)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !report.OK() {
		t.Errorf("Expected replay to match journal, got %+v", report)
	}
	if report.Matched != len(res.Trades) {
		t.Errorf("Expected %d matched, got %d", len(res.Trades), report.Matched)
	}
	if report.PortfolioID != "backtest:verify" {
		t.Errorf("Expected journal id backtest:verify, got %s", report.PortfolioID)
	}
}

func TestVerify_DetectsChangedConfig(t *testing.T) {
	ctx := context.Background()
	candles, runner := fixture()
	cfg := testConfig()
	orders := memory.NewOrderStore()

	res, err := runner.Run(ctx, cfg, candles)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if err := Journal(ctx, orders, cfg, res); err != nil {
		t.Fatalf("Journal failed: %v", err)
	}

	// same journal id, different sizing
	cfg.Signal.MaxCapitalPerPositionPct = 20
	report, err := NewReplayVerifier(orders, runner).Verify(ctx, cfg, candles)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if report.OK() {
		t.Error("Expected divergences after changing position size")
	}
}

func TestVerify_NothingJournaled(t *testing.T) {
	candles, runner := fixture()
	_, err := NewReplayVerifier(memory.NewOrderStore(), runner).Verify(context.Background(), testConfig(), candles)
	if !errors.Is(err, ErrNothingJournaled) {
		t.Errorf("Expected ErrNothingJournaled, got %v", err)
	}
}
