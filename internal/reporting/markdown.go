package reporting

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"perp-strategy-lab/internal/backtest"
	"perp-strategy-lab/internal/domain"
	"perp-strategy-lab/internal/optimizer"
	"perp-strategy-lab/internal/readiness"
)

// BacktestMarkdown renders a backtest result.
func (r *Reporter) BacktestMarkdown(res *backtest.Result) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Backtest Report: %s\n\n", res.Strategy))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.now().Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Status: **%s** | Steps: %d | Bars: %d | Signals: %d | Funding intervals: %d\n\n",
		res.Status, res.Steps, res.Bars, res.Signals, res.Fundings))

	writeMetrics(&sb, res.Metrics)

	sb.WriteString("## Trades\n\n")
	if len(res.Trades) > 0 {
		sb.WriteString("| # | Symbol | Side | Entry | Exit | Entry Time | Exit Time | Net PnL | PnL% | Reason |\n")
		sb.WriteString("|---|--------|------|-------|------|------------|-----------|---------|------|--------|\n")
		for i, o := range res.Trades {
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s | %s | %s | %s | %.2f | %s |\n",
				i+1, o.Symbol, o.Direction, price(o.EntryPrice), price(o.ExitPrice),
				timestamp(o.EntryTime), timestamp(o.ExitTime), money(o.NetPnl), o.PnlPercent, o.ExitReason))
		}
	} else {
		sb.WriteString("No trades.\n")
	}
	sb.WriteString("\n")

	writeDiagnostics(&sb, res.Diagnostics)
	return sb.String()
}

// OptimizationMarkdown renders the ranked entries of a grid search.
func (r *Reporter) OptimizationMarkdown(res *optimizer.Result) string {
	var sb strings.Builder

	sb.WriteString("# Optimization Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.now().Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Run: `%s` | Criterion: %s | Evaluated: %d of %d combinations",
		res.RunID, res.Criterion, len(res.Entries), res.Total))
	if res.Dropped > 0 {
		sb.WriteString(fmt.Sprintf(" (%d dropped by the cap)", res.Dropped))
	}
	sb.WriteString("\n\n")

	sb.WriteString("## Best by Criterion\n\n")
	sb.WriteString("| Criterion | Params | Net PnL | Sharpe | MaxDD% | Score |\n")
	sb.WriteString("|-----------|--------|---------|--------|--------|-------|\n")
	best := []struct {
		name  string
		entry *domain.OptimizationEntry
	}{
		{string(optimizer.CriterionProfit), res.BestByProfit},
		{string(optimizer.CriterionSharpe), res.BestBySharpe},
		{string(optimizer.CriterionDrawdown), res.BestByDrawdown},
		{string(optimizer.CriterionRiskAdjusted), res.BestByRiskAdjusted},
	}
	for _, b := range best {
		if b.entry == nil {
			sb.WriteString(fmt.Sprintf("| %s | - | - | - | - | - |\n", b.name))
			continue
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %.2f | %.2f | %.2f |\n",
			b.name, formatParams(b.entry.Params), money(b.entry.Metrics.TotalPnl),
			b.entry.Metrics.SharpeRatio, b.entry.Metrics.MaxDrawdownPct, b.entry.RiskAdjustedScore))
	}
	sb.WriteString("\n")

	sb.WriteString("## Ranking\n\n")
	ranked := res.Ranked
	if r.top > 0 && len(ranked) > r.top {
		ranked = ranked[:r.top]
	}
	if len(ranked) > 0 {
		sb.WriteString("| Rank | Params | Trades | WinRate | PF | Net PnL | Sharpe | MaxDD% | Score |\n")
		sb.WriteString("|------|--------|--------|---------|----|---------|--------|--------|-------|\n")
		for _, e := range ranked {
			m := e.Metrics
			sb.WriteString(fmt.Sprintf("| %d | %s | %d | %.2f | %s | %s | %.2f | %.2f | %.2f |\n",
				e.Rank, formatParams(e.Params), m.TotalTrades, m.WinRate, ratio(m.ProfitFactor),
				money(m.TotalPnl), m.SharpeRatio, m.MaxDrawdownPct, e.RiskAdjustedScore))
		}
	} else {
		sb.WriteString("No combinations evaluated.\n")
	}
	sb.WriteString("\n")

	sb.WriteString("## Overfitting Warnings\n\n")
	if len(res.Warnings) > 0 {
		for _, w := range res.Warnings {
			sb.WriteString(fmt.Sprintf("- %s\n", w))
		}
	} else {
		sb.WriteString("None.\n")
	}
	sb.WriteString("\n")

	writeDiagnostics(&sb, res.Diagnostics)
	return sb.String()
}

// WalkForwardMarkdown renders a walk-forward report.
func (r *Reporter) WalkForwardMarkdown(rep *domain.WalkForwardReport) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Walk-Forward Report: %s\n\n", rep.Strategy))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.now().Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("## Verdict: %s\n\n", rep.Verdict))
	sb.WriteString(rep.Summary + "\n\n")

	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Window | %d months, %.0f%% in-sample |\n", rep.WindowMonths, rep.InSampleRatio*100))
	sb.WriteString(fmt.Sprintf("| Windows processed | %d / %d |\n", rep.ProcessedWindows, len(rep.Windows)))
	sb.WriteString(fmt.Sprintf("| Overall efficiency | %.2f |\n", rep.OverallEfficiency))
	sb.WriteString(fmt.Sprintf("| Positive OOS windows | %.0f%% |\n", rep.PositiveWindowPct))
	sb.WriteString(fmt.Sprintf("| Consistent | %t |\n", rep.IsConsistent))
	sb.WriteString("\n")

	sb.WriteString("## Windows\n\n")
	if len(rep.Windows) > 0 {
		sb.WriteString("| # | In-Sample | Out-of-Sample | Params | IS Return% | OOS Return% | OOS PnL | Efficiency |\n")
		sb.WriteString("|---|-----------|---------------|--------|------------|-------------|---------|------------|\n")
		for _, w := range rep.Windows {
			is := fmt.Sprintf("%s to %s", w.Start.Format(time.DateOnly), w.Split.Format(time.DateOnly))
			oos := fmt.Sprintf("%s to %s", w.Split.Format(time.DateOnly), w.End.Format(time.DateOnly))
			if w.Skipped {
				sb.WriteString(fmt.Sprintf("| %d | %s | %s | skipped: %s | - | - | - | - |\n", w.Index, is, oos, w.SkipReason))
				continue
			}
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %.2f | %.2f | %s | %.2f |\n",
				w.Index, is, oos, formatParams(w.BestParams),
				w.InSampleReturnPct, w.OutOfSampleReturnPct, money(w.OutOfSamplePnl), w.Efficiency))
		}
	} else {
		sb.WriteString("No windows.\n")
	}
	sb.WriteString("\n")

	writeDiagnostics(&sb, rep.Diagnostics)
	return sb.String()
}

// ReadinessMarkdown renders a readiness checklist with the session metrics.
func (r *Reporter) ReadinessMarkdown(res *readiness.Result, m *domain.PerformanceMetrics) string {
	var sb strings.Builder

	sb.WriteString(readiness.RenderMarkdown(res))
	sb.WriteString(fmt.Sprintf("\nGenerated: %s\n\n", r.now().Format(time.RFC3339)))
	if m != nil {
		writeMetrics(&sb, m)
	}
	return sb.String()
}

func writeMetrics(sb *strings.Builder, m *domain.PerformanceMetrics) {
	sb.WriteString("## Performance\n\n")
	if m == nil {
		sb.WriteString("No metrics.\n\n")
		return
	}
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Trades | %d (%d long, %d short) |\n", m.TotalTrades, m.LongTrades, m.ShortTrades))
	sb.WriteString(fmt.Sprintf("| Win rate | %.2f%% |\n", m.WinRate))
	sb.WriteString(fmt.Sprintf("| Profit factor | %s |\n", ratio(m.ProfitFactor)))
	sb.WriteString(fmt.Sprintf("| Net PnL | %s |\n", money(m.TotalPnl)))
	sb.WriteString(fmt.Sprintf("| Return | %.2f%% |\n", m.TotalReturnPct))
	sb.WriteString(fmt.Sprintf("| Fees | %s |\n", money(m.TotalFees)))
	sb.WriteString(fmt.Sprintf("| Funding | %s |\n", money(m.TotalFunding)))
	sb.WriteString(fmt.Sprintf("| Sharpe | %.2f |\n", m.SharpeRatio))
	sb.WriteString(fmt.Sprintf("| Sortino | %.2f |\n", m.SortinoRatio))
	sb.WriteString(fmt.Sprintf("| Max drawdown | %s (%.2f%%) |\n", money(m.MaxDrawdown), m.MaxDrawdownPct))
	sb.WriteString(fmt.Sprintf("| Streaks | %d wins / %d losses |\n", m.MaxWinStreak, m.MaxLossStreak))
	sb.WriteString(fmt.Sprintf("| Final equity | %s |\n", money(m.Equity)))
	sb.WriteString("\n")

	if len(m.ExitReasons) > 0 {
		reasons := make([]string, 0, len(m.ExitReasons))
		for reason := range m.ExitReasons {
			reasons = append(reasons, string(reason))
		}
		sort.Strings(reasons)

		sb.WriteString("| Exit Reason | Count |\n")
		sb.WriteString("|-------------|-------|\n")
		for _, reason := range reasons {
			sb.WriteString(fmt.Sprintf("| %s | %d |\n", reason, m.ExitReasons[domain.ExitReason(reason)]))
		}
		sb.WriteString("\n")
	}
}

func writeDiagnostics(sb *strings.Builder, diagnostics []string) {
	if len(diagnostics) == 0 {
		return
	}
	sb.WriteString("## Diagnostics\n\n")
	for _, d := range diagnostics {
		sb.WriteString(fmt.Sprintf("- %s\n", d))
	}
	sb.WriteString("\n")
}

func formatParams(params []domain.ParamValue) string {
	if len(params) == 0 {
		return "-"
	}
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = fmt.Sprintf("%s=%g", p.Name, p.Value)
	}
	return strings.Join(parts, ", ")
}
