// Package backtest replays OHLC candles bar by bar through a position ledger.
package backtest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"perp-strategy-lab/internal/domain"
	"perp-strategy-lab/internal/ledger"
	"perp-strategy-lab/internal/metrics"
	"perp-strategy-lab/internal/observability"
	"perp-strategy-lab/internal/signals"
	"perp-strategy-lab/internal/strategy"
)

// fundingIntervalMs is the perpetual-futures funding period.
const fundingIntervalMs int64 = 8 * 60 * 60 * 1000

// Options configures a Runner.
type Options struct {
	Signals signals.Provider // default signals.None
	Logger  *zap.Logger      // default no-op
	Metrics *observability.Metrics
	Clock   func() time.Time // measures run duration, default time.Now
}

// Runner executes backtests. A Runner holds no per-run state and may be
// shared by concurrent runs.
type Runner struct {
	signals signals.Provider
	log     *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewRunner creates a backtest runner.
func NewRunner(opts Options) *Runner {
	if opts.Signals == nil {
		opts.Signals = signals.None{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Runner{
		signals: opts.Signals,
		log:     opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Clock,
	}
}

// Run backtests cfg over candles in [cfg.StartDate, cfg.EndDate).
// Steps:
//  1. Validate cfg
//  2. Clean and clip each symbol's series, merge into one timeline
//  3. Per timestamp: funding, open, intrabar extremes, close, drawdown guards, entries
//  4. Close what is still open with end_of_data at the last bar
//  5. Compute metrics over the closed orders
//
// Missing or insufficient data is reported in Result.Diagnostics, not as an error.
func (r *Runner) Run(ctx context.Context, cfg domain.StrategyConfig, candles map[string][]domain.Candle) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	started := r.now()

	// 1. Validate cfg
	if err := cfg.Validate(); err != nil {
		r.metrics.RecordBacktest(StatusInvalid, 0, r.now().Sub(started))
		return nil, err
	}
	cfg = cfg.Clone()

	// 2. Clean, clip and merge
	series, diags := prepare(cfg.Symbols, candles, cfg.StartDate.UnixMilli(), cfg.EndDate.UnixMilli())
	steps := mergeBars(cfg.Symbols, series)

	entry := strategy.NewSignalFilterStrategy(cfg.Signal, cfg.Exits, cfg.Leverage)
	res := &Result{
		Strategy:    entry.ID(),
		Status:      StatusCompleted,
		Diagnostics: diags,
	}

	if len(steps) == 0 {
		res.Status = StatusNoData
		res.Diagnostics = append(res.Diagnostics, "no bars in range")
		res.Metrics = metrics.Compute(nil, metrics.Input{
			InitialBalance: cfg.InitialBalance,
			Balance:        cfg.InitialBalance,
			Equity:         cfg.InitialBalance,
			Now:            cfg.EndDate,
		})
		r.metrics.RecordBacktest(res.Status, 0, r.now().Sub(started))
		return res, nil
	}

	start := time.UnixMilli(steps[0].ts)
	book := ledger.New(ledger.Options{
		InitialBalance: cfg.InitialBalance,
		Execution:      cfg.Execution,
		AutoTrade:      domain.AutoTradeConfig{MaxCapitalPerTradePct: cfg.Signal.MaxCapitalPerPositionPct},
		Mode:           domain.ModeAutomatic,
		Entry:          entry,
		IDs:            ledger.HashIDs{Portfolio: cfg.Name},
		Clock:          func() time.Time { return start },
		Logger:         r.log,
		// one sample per step
		MaxEquitySamples: len(steps),
	})

	s := &session{
		cfg:         cfg,
		book:        book,
		signals:     r.signals,
		log:         r.log,
		guard:       newDrawdownGuard(cfg.Risk, cfg.InitialBalance),
		last:        make(map[string]float64, len(cfg.Symbols)),
		nextFunding: steps[0].ts + fundingIntervalMs,
		res:         res,
	}

	// 3-4. Replay
	for i, st := range steps {
		s.step(st, i == len(steps)-1)
	}
	s.finish()

	// 5. Metrics
	state := book.State()
	res.Trades = book.Orders()
	res.EquityCurve = state.EquityCurve
	res.Metrics = metrics.Compute(res.Trades, metrics.Input{
		InitialBalance: cfg.InitialBalance,
		Balance:        state.Balance,
		Equity:         state.Equity,
		Now:            time.UnixMilli(steps[len(steps)-1].ts),
	})

	r.log.Debug("backtest finished",
		zap.String("strategy", res.Strategy),
		zap.String("status", res.Status),
		zap.Int("steps", res.Steps),
		zap.Int("trades", len(res.Trades)),
		zap.Float64("return_pct", res.ReturnPct()),
	)
	r.metrics.RecordBacktest(res.Status, res.Bars, r.now().Sub(started))

	return res, nil
}

// session is the mutable state of one run.
type session struct {
	cfg     domain.StrategyConfig
	book    *ledger.Ledger
	signals signals.Provider
	log     *zap.Logger
	guard   *drawdownGuard

	last         map[string]float64 // last close per symbol
	nextFunding  int64
	haltClosed   int
	rejected     int
	lastRejected string

	res *Result
}

func (s *session) step(st step, final bool) {
	s.res.Steps++
	s.res.Bars += len(st.bars)
	s.guard.roll(st.ts, s.book.Equity())
	s.fund(st.ts)

	opens := make(map[string]float64, len(st.bars))
	closes := make(map[string]float64, len(st.bars))
	for _, b := range st.bars {
		opens[b.symbol] = b.candle.Open
		closes[b.symbol] = b.candle.Close
	}

	// gaps through a level fill at the open
	s.book.TickAt(opens, st.ts, ledger.FillObserved)
	for _, b := range st.bars {
		if b.candle.ZeroRange() {
			continue
		}
		first, second := intrabarPath(b.candle)
		s.book.TickAt(map[string]float64{b.symbol: first}, st.ts, ledger.FillAtTrigger)
		s.book.TickAt(map[string]float64{b.symbol: second}, st.ts, ledger.FillAtTrigger)
	}
	s.book.TickAt(closes, st.ts, ledger.FillObserved)
	for sym, c := range closes {
		s.last[sym] = c
	}

	if s.guard.observe(st.ts, s.book.Equity()) && s.guard.halted() {
		closed := s.book.CloseAll(domain.ExitReasonDrawdownLimit, s.last, st.ts)
		s.haltClosed = len(closed)
		s.res.Status = StatusHalted
		s.log.Debug("total drawdown limit reached",
			zap.Int64("ts", st.ts),
			zap.Float64("equity", s.book.Equity()),
			zap.Int("closed", len(closed)),
		)
	}

	if final {
		s.book.CloseAll(domain.ExitReasonEndOfData, s.last, st.ts)
	} else if s.guard.entriesAllowed() {
		s.offerSignals(st)
	}

	s.book.SampleEquity(st.ts)
}

// fund charges every funding interval that elapsed up to ts.
func (s *session) fund(ts int64) {
	rate := s.cfg.Execution.FundingRatePct
	if rate == 0 {
		return
	}
	for s.nextFunding <= ts {
		s.book.ApplyFunding("", rate, s.nextFunding)
		s.nextFunding += fundingIntervalMs
		s.res.Fundings++
	}
}

// offerSignals offers each bar's signal at its close.
func (s *session) offerSignals(st step) {
	for _, b := range st.bars {
		sig := s.signals.SignalAt(b.symbol, st.ts)
		if sig == nil {
			continue
		}
		s.res.Signals++
		sig.Symbol = b.symbol
		if _, err := s.book.OfferSignalAt(*sig, b.candle.Close, st.ts); err != nil {
			s.rejected++
			s.lastRejected = err.Error()
		}
	}
}

func (s *session) finish() {
	g := s.guard
	if g.daysHit > 0 {
		s.res.Diagnostics = append(s.res.Diagnostics,
			fmt.Sprintf("daily drawdown limit %.2f%% hit on %d day(s); entries paused until the next UTC day",
				g.limits.MaxDailyDrawdownPct, g.daysHit))
	}
	if g.totalHit {
		if g.halted() {
			s.res.Diagnostics = append(s.res.Diagnostics,
				fmt.Sprintf("total drawdown limit %.2f%% reached at %s; closed %d position(s) and halted entries",
					g.limits.MaxTotalDrawdownPct, formatMs(g.totalAt), s.haltClosed))
		} else {
			s.res.Diagnostics = append(s.res.Diagnostics,
				fmt.Sprintf("total drawdown limit %.2f%% reached at %s; stop disabled, trading continued",
					g.limits.MaxTotalDrawdownPct, formatMs(g.totalAt)))
		}
	}
	if s.rejected > 0 {
		s.res.Diagnostics = append(s.res.Diagnostics,
			fmt.Sprintf("%d signal(s) rejected by the ledger, last: %s", s.rejected, s.lastRejected))
	}
}
