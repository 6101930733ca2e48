// Package optimizer runs a grid search of backtests over strategy parameters
// and ranks the combinations.
package optimizer

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"perp-strategy-lab/internal/backtest"
	"perp-strategy-lab/internal/domain"
	"perp-strategy-lab/internal/idhash"
	"perp-strategy-lab/internal/observability"
	"perp-strategy-lab/internal/signals"
)

// DefaultMaxCombinations caps the grid when Options.MaxCombinations is 0.
const DefaultMaxCombinations = 500

// PhaseOptimize is the Progress phase reported by Run.
const PhaseOptimize = "optimize"

// Progress reports how far a long-running job has advanced.
type Progress struct {
	Phase   string
	Percent float64
	Message string
	Current int
	Total   int
}

// ProgressFunc receives progress updates. Calls are serialized.
type ProgressFunc func(Progress)

// Options configures an Optimizer.
type Options struct {
	Axes            []Axis
	Criterion       Criterion // default CriterionProfit
	MaxCombinations int       // default DefaultMaxCombinations
	Workers         int       // default GOMAXPROCS

	Signals  signals.Provider
	Progress ProgressFunc
	Logger   *zap.Logger
	Metrics  *observability.Metrics
	Clock    func() time.Time
}

// Optimizer runs grid searches. It holds no per-run state.
type Optimizer struct {
	axes      []Axis
	criterion Criterion
	limit     int
	workers   int

	runner   *backtest.Runner
	progress ProgressFunc
	log      *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// New validates opts and creates an Optimizer.
// Returns ErrUnknownParam or ErrEmptyAxis for an unusable axis.
func New(opts Options) (*Optimizer, error) {
	for _, a := range opts.Axes {
		if err := a.validate(); err != nil {
			return nil, err
		}
	}
	if opts.Criterion == "" {
		opts.Criterion = CriterionProfit
	}
	if _, err := ParseCriterion(string(opts.Criterion)); err != nil {
		return nil, err
	}
	if opts.MaxCombinations <= 0 {
		opts.MaxCombinations = DefaultMaxCombinations
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	axes := make([]Axis, len(opts.Axes))
	for i, a := range opts.Axes {
		axes[i] = Axis{Param: a.Param, Values: append([]float64(nil), a.Values...)}
	}

	return &Optimizer{
		axes:      axes,
		criterion: opts.Criterion,
		limit:     opts.MaxCombinations,
		workers:   opts.Workers,
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

// Criterion returns the ranking criterion.
func (o *Optimizer) Criterion() Criterion {
	return o.criterion
}

// Result holds a ranked grid search.
// Entries are shared between the orderings and must not be modified.
type Result struct {
	RunID     string
	Criterion Criterion

	Entries        []*domain.OptimizationEntry // generation order
	ByProfit       []*domain.OptimizationEntry
	BySharpe       []*domain.OptimizationEntry
	ByDrawdown     []*domain.OptimizationEntry // ascending drawdown
	ByRiskAdjusted []*domain.OptimizationEntry
	Ranked         []*domain.OptimizationEntry // ordering under Criterion

	BestByProfit       *domain.OptimizationEntry
	BestBySharpe       *domain.OptimizationEntry
	BestByDrawdown     *domain.OptimizationEntry
	BestByRiskAdjusted *domain.OptimizationEntry

	Total   int // grid size before the cap
	Dropped int // combinations beyond the cap

	Warnings    []string
	Diagnostics []string
}

// Best returns the top entry under the result's criterion, or nil.
func (r *Result) Best() *domain.OptimizationEntry {
	if len(r.Ranked) == 0 {
		return nil
	}
	return r.Ranked[0]
}

// Run backtests every combination of the axes applied to cfg and ranks them.
// Combinations run on a worker pool; cancellation is checked before each one
// and returns ctx.Err(). A combination whose config fails validation is
// skipped with a diagnostic.
func (o *Optimizer) Run(ctx context.Context, cfg domain.StrategyConfig, candles map[string][]domain.Candle) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	started := o.now()

	total := gridSize(o.axes)
	combos := generate(o.axes, o.limit)

	res := &Result{
		RunID:     o.runID(cfg),
		Criterion: o.criterion,
		Total:     total,
		Dropped:   total - len(combos),
	}
	if res.Dropped > 0 {
		res.Diagnostics = append(res.Diagnostics, fmt.Sprintf(
			"grid has %d combinations; evaluated the first %d and dropped %d", total, len(combos), res.Dropped))
	}

	o.report(Progress{Phase: PhaseOptimize, Message: "starting", Total: len(combos)})

	entries := make([]*domain.OptimizationEntry, len(combos))
	skipped := make([]string, len(combos))

	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for _, c := range combos {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			entry, reason, err := o.evaluate(gctx, res.RunID, cfg, candles, c)
			if err != nil {
				return err
			}
			entries[c.index] = entry
			skipped[c.index] = reason
			o.metrics.RecordCombination()

			mu.Lock()
			done++
			o.report(Progress{
				Phase:   PhaseOptimize,
				Percent: float64(done) / float64(len(combos)) * 100,
				Message: fmt.Sprintf("combination %d/%d", done, len(combos)),
				Current: done,
				Total:   len(combos),
			})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, e := range entries {
		if e != nil {
			res.Entries = append(res.Entries, e)
		} else if skipped[i] != "" {
			res.Diagnostics = append(res.Diagnostics, fmt.Sprintf("combination %d skipped: %s", i, skipped[i]))
		}
	}

	r := rank(res.Entries, o.criterion)
	res.ByProfit = r.byProfit
	res.BySharpe = r.bySharpe
	res.ByDrawdown = r.byDrawdown
	res.ByRiskAdjusted = r.byRiskAdjusted
	res.Ranked = r.by(o.criterion)
	if len(res.Entries) > 0 {
		res.BestByProfit = r.byProfit[0]
		res.BestBySharpe = r.bySharpe[0]
		res.BestByDrawdown = r.byDrawdown[0]
		res.BestByRiskAdjusted = r.byRiskAdjusted[0]
	} else {
		res.Diagnostics = append(res.Diagnostics, "no combination produced a result")
	}
	res.Warnings = overfittingWarnings(o.axes, res.ByProfit)

	elapsed := o.now().Sub(started)
	o.metrics.RecordOptimization(res.Dropped, elapsed)
	o.log.Info("optimization finished",
		zap.String("run_id", res.RunID),
		zap.String("criterion", string(o.criterion)),
		zap.Int("combinations", len(combos)),
		zap.Int("evaluated", len(res.Entries)),
		zap.Int("dropped", res.Dropped),
		zap.Int("warnings", len(res.Warnings)),
		zap.Duration("elapsed", elapsed),
	)
	o.report(Progress{Phase: PhaseOptimize, Percent: 100, Message: "done", Current: len(combos), Total: len(combos)})

	return res, nil
}

// evaluate backtests one combination. A non-empty reason reports a skipped
// combination; err is reserved for failures that abort the search.
func (o *Optimizer) evaluate(ctx context.Context, runID string, base domain.StrategyConfig, candles map[string][]domain.Candle, c combination) (*domain.OptimizationEntry, string, error) {
	cfg := base.Clone()
	if err := ApplyParams(&cfg, c.params); err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err.Error(), nil
	}

	bt, err := o.runner.Run(ctx, cfg, candles)
	if err != nil {
		return nil, "", fmt.Errorf("combination %d: %w", c.index, err)
	}

	return &domain.OptimizationEntry{
		RunID:             runID,
		ComboID:           comboID(cfg.Name, c.params),
		Index:             c.index,
		Params:            c.params,
		Metrics:           *bt.Metrics,
		RiskAdjustedScore: RiskAdjustedScore(bt.Metrics),
	}, "", nil
}

func (o *Optimizer) report(p Progress) {
	if o.progress != nil {
		o.progress(p)
	}
}

// runID identifies a search by strategy, criterion and axes.
func (o *Optimizer) runID(cfg domain.StrategyConfig) string {
	parts := []string{string(o.criterion)}
	for _, a := range o.axes {
		for _, v := range a.Values {
			parts = append(parts, a.Param.String()+"="+formatValue(v))
		}
	}
	return idhash.ComputeRunID(cfg.Name, parts...)
}

// comboID identifies one combination of a strategy.
func comboID(strategy string, params []domain.ParamValue) string {
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = p.Name + "=" + formatValue(p.Value)
	}
	return idhash.ComputeRunID(strategy, parts...)
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
