package domain

import "time"

// ParamValue is one parameter override of an optimization combination.
type ParamValue struct {
	Name  string  `json:"name"` // dotted config path, e.g. "signal.minScore"
	Value float64 `json:"value"`
}

// Ranks holds an entry's 1-based position in each of the four orderings.
type Ranks struct {
	Profit       int `json:"profit"`
	Sharpe       int `json:"sharpe"`
	Drawdown     int `json:"drawdown"`
	RiskAdjusted int `json:"risk_adjusted"`
}

// OptimizationEntry is the result of backtesting one parameter combination.
// Read-only once ranked.
type OptimizationEntry struct {
	RunID             string             `json:"run_id"`   // grid search identifier
	ComboID           string             `json:"combo_id"` // deterministic hash of strategy and params
	Index             int                `json:"index"`    // generation order, 0-based
	Params            []ParamValue       `json:"params"`
	Metrics           PerformanceMetrics `json:"metrics"`
	RiskAdjustedScore float64            `json:"risk_adjusted_score"`
	Ranks             Ranks              `json:"ranks"`
	Rank              int                `json:"rank"` // position under the requested criterion
}

// Param returns the override value for name.
func (e *OptimizationEntry) Param(name string) (float64, bool) {
	for _, p := range e.Params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return 0, false
}

// WalkForwardWindow is one in-sample/out-of-sample validation window.
type WalkForwardWindow struct {
	Index           int       `json:"index"`
	Start           time.Time `json:"start"`
	Split           time.Time `json:"split"` // in-sample end, out-of-sample start
	End             time.Time `json:"end"`
	InSampleBars    int       `json:"in_sample_bars"`
	OutOfSampleBars int       `json:"out_of_sample_bars"`

	Skipped    bool   `json:"skipped"`
	SkipReason string `json:"skip_reason,omitempty"`

	BestParams           []ParamValue        `json:"best_params,omitempty"`
	InSample             *PerformanceMetrics `json:"in_sample,omitempty"`
	OutOfSample          *PerformanceMetrics `json:"out_of_sample,omitempty"`
	InSampleReturnPct    float64             `json:"in_sample_return_pct"`
	OutOfSampleReturnPct float64             `json:"out_of_sample_return_pct"`
	OutOfSamplePnl       float64             `json:"out_of_sample_pnl"`
	Efficiency           float64             `json:"efficiency"` // OOS return / IS return, 0 when IS return is 0
}

// WalkForwardVerdict summarizes a walk-forward run.
type WalkForwardVerdict string

// Walk-forward verdicts
const (
	VerdictPass             WalkForwardVerdict = "pass"
	VerdictModerate         WalkForwardVerdict = "moderate"
	VerdictLikelyOverfit    WalkForwardVerdict = "likely_overfit"
	VerdictInsufficientData WalkForwardVerdict = "insufficient_data"
)

// WalkForwardReport is the persisted outcome of a walk-forward run.
type WalkForwardReport struct {
	ID                string              `json:"id"`
	Strategy          string              `json:"strategy"`
	CreatedAt         int64               `json:"created_at"` // Unix ms
	WindowMonths      int                 `json:"window_months"`
	InSampleRatio     float64             `json:"in_sample_ratio"`
	Windows           []WalkForwardWindow `json:"windows"`
	ProcessedWindows  int                 `json:"processed_windows"`
	OverallEfficiency float64             `json:"overall_efficiency"` // mean efficiency of processed windows
	PositiveWindowPct float64             `json:"positive_window_pct"`
	IsConsistent      bool                `json:"is_consistent"`
	Verdict           WalkForwardVerdict  `json:"verdict"`
	Summary           string              `json:"summary"`
	Diagnostics       []string            `json:"diagnostics,omitempty"`
}

// Clone returns a deep copy.
func (e *OptimizationEntry) Clone() *OptimizationEntry {
	c := *e
	c.Params = append([]ParamValue(nil), e.Params...)
	c.Metrics = *e.Metrics.Clone()
	return &c
}

// Clone returns a deep copy.
func (w WalkForwardWindow) Clone() WalkForwardWindow {
	w.BestParams = append([]ParamValue(nil), w.BestParams...)
	w.InSample = w.InSample.Clone()
	w.OutOfSample = w.OutOfSample.Clone()
	return w
}

// Clone returns a deep copy.
func (r *WalkForwardReport) Clone() *WalkForwardReport {
	c := *r
	c.Windows = make([]WalkForwardWindow, len(r.Windows))
	for i, w := range r.Windows {
		c.Windows[i] = w.Clone()
	}
	c.Diagnostics = append([]string(nil), r.Diagnostics...)
	return &c
}
