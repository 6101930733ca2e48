package reporting

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"perp-strategy-lab/internal/domain"
)

// WriteTradesCSV writes one row per closed order.
func WriteTradesCSV(w io.Writer, orders []domain.Order) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"id", "symbol", "direction", "entry_time", "exit_time", "entry_price", "exit_price",
		"quantity", "leverage", "margin", "gross_pnl", "fees", "funding", "net_pnl",
		"pnl_percent", "exit_reason", "score", "model_probability", "tags",
	}); err != nil {
		return err
	}
	for _, o := range orders {
		if err := cw.Write([]string{
			o.ID, o.Symbol, string(o.Direction), timestamp(o.EntryTime), timestamp(o.ExitTime),
			price(o.EntryPrice), price(o.ExitPrice), formatF(o.Quantity), formatF(o.Leverage),
			money(o.Margin), money(o.GrossPnl), money(o.Fees), money(o.Funding), money(o.NetPnl),
			formatF(o.PnlPercent), string(o.ExitReason),
			formatF(o.Signal.Score), formatF(o.Signal.ModelProbability), strings.Join(o.Signal.Tags, ";"),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEquityCSV writes the equity curve.
func WriteEquityCSV(w io.Writer, curve []domain.EquityPoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "equity", "balance"}); err != nil {
		return err
	}
	for _, p := range curve {
		if err := cw.Write([]string{timestamp(p.Timestamp), money(p.Equity), money(p.Balance)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteOptimizationCSV writes ranked entries with one column per parameter.
// Parameter columns follow the order of the first entry.
func WriteOptimizationCSV(w io.Writer, entries []*domain.OptimizationEntry) error {
	var names []string
	if len(entries) > 0 {
		for _, p := range entries[0].Params {
			names = append(names, p.Name)
		}
	}

	cw := csv.NewWriter(w)
	header := append([]string{"rank", "index", "combo_id"}, names...)
	header = append(header,
		"total_trades", "win_rate", "profit_factor", "total_pnl", "total_return_pct",
		"sharpe_ratio", "max_drawdown_pct", "risk_adjusted_score",
		"rank_profit", "rank_sharpe", "rank_drawdown", "rank_risk_adjusted",
	)
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, e := range entries {
		row := []string{strconv.Itoa(e.Rank), strconv.Itoa(e.Index), e.ComboID}
		for _, name := range names {
			v, _ := e.Param(name)
			row = append(row, formatF(v))
		}
		m := e.Metrics
		row = append(row,
			strconv.Itoa(m.TotalTrades), formatF(m.WinRate), ratio(m.ProfitFactor), money(m.TotalPnl),
			formatF(m.TotalReturnPct), formatF(m.SharpeRatio), formatF(m.MaxDrawdownPct), formatF(e.RiskAdjustedScore),
			strconv.Itoa(e.Ranks.Profit), strconv.Itoa(e.Ranks.Sharpe), strconv.Itoa(e.Ranks.Drawdown), strconv.Itoa(e.Ranks.RiskAdjusted),
		)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteWalkForwardCSV writes one row per window.
func WriteWalkForwardCSV(w io.Writer, rep *domain.WalkForwardReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"index", "start", "split", "end", "in_sample_bars", "out_of_sample_bars", "skipped", "skip_reason",
		"params", "in_sample_return_pct", "out_of_sample_return_pct", "out_of_sample_pnl", "efficiency",
	}); err != nil {
		return err
	}
	for _, win := range rep.Windows {
		params := ""
		if len(win.BestParams) > 0 {
			params = formatParams(win.BestParams)
		}
		if err := cw.Write([]string{
			strconv.Itoa(win.Index), win.Start.UTC().Format(time.RFC3339), win.Split.UTC().Format(time.RFC3339), win.End.UTC().Format(time.RFC3339),
			strconv.Itoa(win.InSampleBars), strconv.Itoa(win.OutOfSampleBars),
			strconv.FormatBool(win.Skipped), win.SkipReason, params,
			formatF(win.InSampleReturnPct), formatF(win.OutOfSampleReturnPct), money(win.OutOfSamplePnl), formatF(win.Efficiency),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
