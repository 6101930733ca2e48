// Package walkforward validates optimized parameters on unseen data with
// overlapping in-sample/out-of-sample windows.
package walkforward

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"perp-strategy-lab/internal/backtest"
	"perp-strategy-lab/internal/domain"
	"perp-strategy-lab/internal/idhash"
	"perp-strategy-lab/internal/lookup"
	"perp-strategy-lab/internal/observability"
	"perp-strategy-lab/internal/optimizer"
	"perp-strategy-lab/internal/signals"
)

// Defaults
const (
	DefaultWindowMonths       = 3
	DefaultInSampleRatio      = 0.7
	DefaultMinInSampleBars    = 200
	DefaultMinOutOfSampleBars = 50
)

const (
	stepFraction         = 0.5 // window advance as a fraction of its duration
	consistencyThreshold = 0.5 // fraction of windows with positive OOS PnL
	passEfficiency       = 0.5
)

// PhaseWalkForward is the Progress phase reported by Run.
const PhaseWalkForward = "walk_forward"

// Validator option errors
var (
	ErrInvalidWindow = errors.New("window length must be at least one month")
	ErrInvalidRatio  = errors.New("in-sample ratio must be in (0, 1)")
)

// Options configures a Validator.
type Options struct {
	WindowMonths       int     // default DefaultWindowMonths
	InSampleRatio      float64 // default DefaultInSampleRatio
	MinInSampleBars    int     // default DefaultMinInSampleBars
	MinOutOfSampleBars int     // default DefaultMinOutOfSampleBars

	// Optimizer runs on each in-sample slice. Its Criterion is forced to
	// risk-adjusted; Signals, Logger, Metrics and Clock are taken from here.
	Optimizer optimizer.Options

	Signals  signals.Provider
	Progress optimizer.ProgressFunc
	Logger   *zap.Logger
	Metrics  *observability.Metrics
	Clock    func() time.Time
}

// Validator runs walk-forward validation. It holds no per-run state.
type Validator struct {
	months    int
	ratio     float64
	minIS     int
	minOOS    int
	optimizer *optimizer.Optimizer
	runner    *backtest.Runner

	progress optimizer.ProgressFunc
	log      *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// New validates opts and creates a Validator.
func New(opts Options) (*Validator, error) {
	if opts.WindowMonths == 0 {
		opts.WindowMonths = DefaultWindowMonths
	}
	if opts.WindowMonths < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidWindow, opts.WindowMonths)
	}
	if opts.InSampleRatio == 0 {
		opts.InSampleRatio = DefaultInSampleRatio
	}
	if opts.InSampleRatio <= 0 || opts.InSampleRatio >= 1 {
		return nil, fmt.Errorf("%w, got %g", ErrInvalidRatio, opts.InSampleRatio)
	}
	if opts.MinInSampleBars <= 0 {
		opts.MinInSampleBars = DefaultMinInSampleBars
	}
	if opts.MinOutOfSampleBars <= 0 {
		opts.MinOutOfSampleBars = DefaultMinOutOfSampleBars
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	optOpts := opts.Optimizer
	optOpts.Criterion = optimizer.CriterionRiskAdjusted
	optOpts.Signals = opts.Signals
	optOpts.Logger = opts.Logger
	optOpts.Metrics = opts.Metrics
	optOpts.Clock = opts.Clock
	opt, err := optimizer.New(optOpts)
	if err != nil {
		return nil, err
	}

	return &Validator{
		months:    opts.WindowMonths,
		ratio:     opts.InSampleRatio,
		minIS:     opts.MinInSampleBars,
		minOOS:    opts.MinOutOfSampleBars,
		optimizer: opt,
		runner: backtest.NewRunner(backtest.Options{
			Signals: opts.Signals,
			Logger:  opts.Logger,
			Metrics: opts.Metrics,
			Clock:   opts.Clock,
		}),
		progress: opts.Progress,
		log:      opts.Logger,
		metrics:  opts.Metrics,
		now:      opts.Clock,
	}, nil
}

// Run validates cfg over candles. Windows too short on data are skipped with
// a diagnostic; a run without processed windows has the insufficient_data
// verdict. Cancellation is checked between windows and returns ctx.Err().
func (v *Validator) Run(ctx context.Context, cfg domain.StrategyConfig, candles map[string][]domain.Candle) (*domain.WalkForwardReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	report := &domain.WalkForwardReport{
		ID:            v.reportID(cfg),
		Strategy:      cfg.Name,
		CreatedAt:     v.now().UnixMilli(),
		WindowMonths:  v.months,
		InSampleRatio: v.ratio,
	}

	spans, diag := v.layout(cfg, candles)
	if diag != "" {
		report.Diagnostics = append(report.Diagnostics, diag)
	}

	for i, sp := range spans {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v.report(progressAt(i, len(spans), fmt.Sprintf("window %d/%d", i+1, len(spans))))

		w, err := v.runWindow(ctx, i, sp, cfg, candles)
		if err != nil {
			return nil, err
		}
		status := "processed"
		if w.Skipped {
			status = "skipped"
			report.Diagnostics = append(report.Diagnostics, fmt.Sprintf("window %d skipped: %s", i, w.SkipReason))
		}
		v.metrics.RecordWindow(status)
		report.Windows = append(report.Windows, w)
	}

	aggregate(report)
	v.report(progressAt(len(spans), len(spans), "done"))

	v.log.Info("walk-forward finished",
		zap.String("id", report.ID),
		zap.String("strategy", report.Strategy),
		zap.Int("windows", len(report.Windows)),
		zap.Int("processed", report.ProcessedWindows),
		zap.Float64("efficiency", report.OverallEfficiency),
		zap.String("verdict", string(report.Verdict)),
	)
	return report, nil
}

// progressAt builds a walk-forward progress update for window current of total.
func progressAt(current, total int, message string) optimizer.Progress {
	p := optimizer.Progress{Phase: PhaseWalkForward, Message: message, Current: current, Total: total}
	if total > 0 {
		p.Percent = float64(current) / float64(total) * 100
	}
	return p
}

// layout returns the windows inside [cfg.StartDate, cfg.EndDate] clipped to
// the coverage of the configured symbols.
func (v *Validator) layout(cfg domain.StrategyConfig, candles map[string][]domain.Candle) ([]span, string) {
	covered := make(map[string][]domain.Candle, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		covered[s] = candles[s]
	}
	first, last, ok := lookup.Coverage(covered)
	if !ok {
		return nil, "no candles for the configured symbols"
	}

	from, to := cfg.StartDate, cfg.EndDate
	if t := time.UnixMilli(first); t.After(from) {
		from = t
	}
	if t := time.UnixMilli(last); t.Before(to) {
		to = t
	}

	spans := buildWindows(from.UTC(), to.UTC(), v.months, v.ratio)
	if len(spans) == 0 {
		return nil, fmt.Sprintf("range %s to %s is shorter than one %d-month window",
			from.UTC().Format(time.DateOnly), to.UTC().Format(time.DateOnly), v.months)
	}
	return spans, ""
}

// runWindow optimizes on the in-sample part and replays the risk-adjusted
// best parameters on both parts.
func (v *Validator) runWindow(ctx context.Context, index int, sp span, cfg domain.StrategyConfig, candles map[string][]domain.Candle) (domain.WalkForwardWindow, error) {
	w := domain.WalkForwardWindow{
		Index:           index,
		Start:           sp.start,
		Split:           sp.split,
		End:             sp.end,
		InSampleBars:    lookup.MinCount(candles, cfg.Symbols, sp.start.UnixMilli(), sp.split.UnixMilli()),
		OutOfSampleBars: lookup.MinCount(candles, cfg.Symbols, sp.split.UnixMilli(), sp.end.UnixMilli()),
	}
	if w.InSampleBars < v.minIS {
		return skip(w, fmt.Sprintf("%d in-sample bars (< %d)", w.InSampleBars, v.minIS)), nil
	}
	if w.OutOfSampleBars < v.minOOS {
		return skip(w, fmt.Sprintf("%d out-of-sample bars (< %d)", w.OutOfSampleBars, v.minOOS)), nil
	}

	inSample := withRange(cfg, sp.start, sp.split)
	opt, err := v.optimizer.Run(ctx, inSample, candles)
	if err != nil {
		return w, fmt.Errorf("window %d: optimize: %w", index, err)
	}
	best := opt.BestByRiskAdjusted
	if best == nil {
		return skip(w, "no parameter combination produced a result"), nil
	}

	tuned := cfg.Clone()
	if err := optimizer.ApplyParams(&tuned, best.Params); err != nil {
		return w, fmt.Errorf("window %d: %w", index, err)
	}
	isRun, err := v.runner.Run(ctx, withRange(tuned, sp.start, sp.split), candles)
	if err != nil {
		return w, fmt.Errorf("window %d: in-sample backtest: %w", index, err)
	}
	oosRun, err := v.runner.Run(ctx, withRange(tuned, sp.split, sp.end), candles)
	if err != nil {
		return w, fmt.Errorf("window %d: out-of-sample backtest: %w", index, err)
	}

	w.BestParams = append([]domain.ParamValue(nil), best.Params...)
	w.InSample = isRun.Metrics
	w.OutOfSample = oosRun.Metrics
	w.InSampleReturnPct = isRun.ReturnPct()
	w.OutOfSampleReturnPct = oosRun.ReturnPct()
	w.OutOfSamplePnl = oosRun.Metrics.TotalPnl
	w.Efficiency = efficiency(w.InSampleReturnPct, w.OutOfSampleReturnPct)
	return w, nil
}

// efficiency returns oos / is, or 0 when is is 0.
func efficiency(is, oos float64) float64 {
	if is == 0 {
		return 0
	}
	return oos / is
}

// aggregate fills the report summary from its windows.
func aggregate(r *domain.WalkForwardReport) {
	var positive int
	var effSum float64
	for _, w := range r.Windows {
		if w.Skipped {
			continue
		}
		r.ProcessedWindows++
		effSum += w.Efficiency
		if w.OutOfSamplePnl > 0 {
			positive++
		}
	}

	if r.ProcessedWindows == 0 {
		r.Verdict = domain.VerdictInsufficientData
		r.Summary = fmt.Sprintf("no windows processed out of %d; not enough data to validate", len(r.Windows))
		return
	}

	n := float64(r.ProcessedWindows)
	r.OverallEfficiency = effSum / n
	r.PositiveWindowPct = float64(positive) / n * 100
	r.IsConsistent = float64(positive)/n > consistencyThreshold

	switch {
	case r.IsConsistent && r.OverallEfficiency > passEfficiency:
		r.Verdict = domain.VerdictPass
	case r.IsConsistent:
		r.Verdict = domain.VerdictModerate
	default:
		r.Verdict = domain.VerdictLikelyOverfit
	}
	r.Summary = fmt.Sprintf("%d of %d windows processed; %d with positive out-of-sample PnL (%.0f%%); average efficiency %.2f; verdict %s",
		r.ProcessedWindows, len(r.Windows), positive, r.PositiveWindowPct, r.OverallEfficiency, r.Verdict)
}

func (v *Validator) report(p optimizer.Progress) {
	if v.progress != nil {
		v.progress(p)
	}
}

func (v *Validator) reportID(cfg domain.StrategyConfig) string {
	return idhash.ComputeRunID("walkforward", cfg.Name,
		strconv.Itoa(v.months),
		strconv.FormatFloat(v.ratio, 'f', -1, 64),
		strconv.FormatInt(cfg.StartDate.UnixMilli(), 10),
		strconv.FormatInt(cfg.EndDate.UnixMilli(), 10),
	)
}

func skip(w domain.WalkForwardWindow, reason string) domain.WalkForwardWindow {
	w.Skipped = true
	w.SkipReason = reason
	return w
}

func withRange(cfg domain.StrategyConfig, start, end time.Time) domain.StrategyConfig {
	c := cfg.Clone()
	c.StartDate = start
	c.EndDate = end
	return c
}
