package optimizer

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"perp-strategy-lab/internal/domain"
)

// Criterion selects the ordering that receives Rank numbers.
type Criterion string

// Ranking criteria
const (
	CriterionProfit       Criterion = "profit"
	CriterionSharpe       Criterion = "sharpe"
	CriterionDrawdown     Criterion = "drawdown"
	CriterionRiskAdjusted Criterion = "risk_adjusted"
)

// ParseCriterion resolves a criterion name.
func ParseCriterion(name string) (Criterion, error) {
	switch c := Criterion(strings.ToLower(name)); c {
	case CriterionProfit, CriterionSharpe, CriterionDrawdown, CriterionRiskAdjusted:
		return c, nil
	}
	return "", fmt.Errorf("unknown ranking criterion %q", name)
}

// infiniteProfitFactor stands in for +Inf when scoring a run without losses.
const infiniteProfitFactor = 100

// RiskAdjustedScore returns Sharpe * profit factor / max(drawdown%, 1).
// Never NaN or infinite.
func RiskAdjustedScore(m *domain.PerformanceMetrics) float64 {
	pf := m.ProfitFactor
	if math.IsInf(pf, 1) {
		pf = infiniteProfitFactor
	}
	score := m.SharpeRatio * pf / math.Max(m.MaxDrawdownPct, 1)
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0
	}
	return score
}

// rankings holds the four orderings of one result set.
type rankings struct {
	byProfit       []*domain.OptimizationEntry
	bySharpe       []*domain.OptimizationEntry
	byDrawdown     []*domain.OptimizationEntry
	byRiskAdjusted []*domain.OptimizationEntry
}

// rank orders entries four ways and stores each position on the entries.
// Ties keep generation order. entries must be in generation order.
func rank(entries []*domain.OptimizationEntry, criterion Criterion) rankings {
	order := func(better func(a, b *domain.OptimizationEntry) bool) []*domain.OptimizationEntry {
		sorted := append([]*domain.OptimizationEntry(nil), entries...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return better(sorted[i], sorted[j])
		})
		return sorted
	}

	r := rankings{
		byProfit: order(func(a, b *domain.OptimizationEntry) bool {
			return a.Metrics.TotalPnl > b.Metrics.TotalPnl
		}),
		bySharpe: order(func(a, b *domain.OptimizationEntry) bool {
			return a.Metrics.SharpeRatio > b.Metrics.SharpeRatio
		}),
		byDrawdown: order(func(a, b *domain.OptimizationEntry) bool {
			return a.Metrics.MaxDrawdownPct < b.Metrics.MaxDrawdownPct
		}),
		byRiskAdjusted: order(func(a, b *domain.OptimizationEntry) bool {
			return a.RiskAdjustedScore > b.RiskAdjustedScore
		}),
	}

	for i, e := range r.byProfit {
		e.Ranks.Profit = i + 1
	}
	for i, e := range r.bySharpe {
		e.Ranks.Sharpe = i + 1
	}
	for i, e := range r.byDrawdown {
		e.Ranks.Drawdown = i + 1
	}
	for i, e := range r.byRiskAdjusted {
		e.Ranks.RiskAdjusted = i + 1
	}
	for _, e := range entries {
		switch criterion {
		case CriterionSharpe:
			e.Rank = e.Ranks.Sharpe
		case CriterionDrawdown:
			e.Rank = e.Ranks.Drawdown
		case CriterionRiskAdjusted:
			e.Rank = e.Ranks.RiskAdjusted
		default:
			e.Rank = e.Ranks.Profit
		}
	}
	return r
}

func (r rankings) by(c Criterion) []*domain.OptimizationEntry {
	switch c {
	case CriterionSharpe:
		return r.bySharpe
	case CriterionDrawdown:
		return r.byDrawdown
	case CriterionRiskAdjusted:
		return r.byRiskAdjusted
	}
	return r.byProfit
}

// Overfitting heuristics
const (
	instabilityTopN = 5
	maxTopReturnCV  = 0.5
	minBestTrades   = 10
	minEdgeValues   = 2 // distinct values an axis needs for the edge check
)

// overfittingWarnings returns advisory warnings for a ranked result set.
func overfittingWarnings(axes []Axis, byProfit []*domain.OptimizationEntry) []string {
	if len(byProfit) == 0 {
		return nil
	}
	best := byProfit[0]
	var warnings []string

	for _, a := range axes {
		if distinct(a.Values) < minEdgeValues {
			continue
		}
		lo, hi := a.bounds()
		v, ok := best.Param(a.Param.String())
		if !ok {
			continue
		}
		edge := ""
		switch v {
		case lo:
			edge = "minimum"
		case hi:
			edge = "maximum"
		}
		if edge != "" {
			warnings = append(warnings, fmt.Sprintf(
				"best %s=%g is at the %s of the tested range [%g, %g]; widen the range",
				a.Param, v, edge, lo, hi))
		}
	}

	if n := min(instabilityTopN, len(byProfit)); n >= 2 {
		returns := make([]float64, n)
		for i, e := range byProfit[:n] {
			returns[i] = e.Metrics.TotalReturnPct
		}
		if cv, ok := coefficientOfVariation(returns); ok && cv > maxTopReturnCV {
			warnings = append(warnings, fmt.Sprintf(
				"return of the top %d combinations varies widely (CV %.2f > %.2f); results are unstable",
				n, cv, maxTopReturnCV))
		}
	}

	if best.Metrics.TotalTrades < minBestTrades {
		warnings = append(warnings, fmt.Sprintf(
			"best combination has %d trades (< %d); sample too small",
			best.Metrics.TotalTrades, minBestTrades))
	}
	return warnings
}

// coefficientOfVariation returns sample stdev / |mean|. ok is false when the
// mean is zero.
func coefficientOfVariation(values []float64) (float64, bool) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	if mean == 0 {
		return 0, false
	}
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	stdev := math.Sqrt(sq / float64(len(values)-1))
	return stdev / math.Abs(mean), true
}

func distinct(values []float64) int {
	seen := make(map[float64]struct{}, len(values))
	for _, v := range values {
		seen[v] = struct{}{}
	}
	return len(seen)
}
