package domain

import (
	"encoding/json"
	"fmt"
	"math"
)

// PerformanceMetrics aggregates a closed-order history.
// ProfitFactor is +Inf when there are wins and no losses; every other field is finite.
type PerformanceMetrics struct {
	// Counts
	TotalTrades  int     `json:"total_trades"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`   // net PnL <= 0
	WinRate      float64 `json:"win_rate"` // percent
	LongTrades   int     `json:"long_trades"`
	LongWinRate  float64 `json:"long_win_rate"`
	ShortTrades  int     `json:"short_trades"`
	ShortWinRate float64 `json:"short_win_rate"`

	// PnL
	GrossProfit    float64 `json:"gross_profit"`
	GrossLoss      float64 `json:"gross_loss"` // positive magnitude
	ProfitFactor   float64 `json:"-"`
	TotalPnl       float64 `json:"total_pnl"`
	TotalFees      float64 `json:"total_fees"`
	TotalFunding   float64 `json:"total_funding"`
	TotalReturnPct float64 `json:"total_return_pct"` // TotalPnl / initial balance
	AvgPnlPercent  float64 `json:"avg_pnl_percent"`
	AvgWin         float64 `json:"avg_win"`
	AvgLoss        float64 `json:"avg_loss"`
	LargestWin     float64 `json:"largest_win"`
	LargestLoss    float64 `json:"largest_loss"`

	// Risk
	SharpeRatio    float64 `json:"sharpe_ratio"`
	SortinoRatio   float64 `json:"sortino_ratio"`
	MaxDrawdown    float64 `json:"max_drawdown"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	MaxWinStreak   int     `json:"max_win_streak"`
	MaxLossStreak  int     `json:"max_loss_streak"`

	// Attribution
	AvgDurationMs       int64              `json:"avg_duration_ms"`
	AvgModelProbability float64            `json:"avg_model_probability"`
	ExitReasons         map[ExitReason]int `json:"exit_reasons"`

	// Period PnL relative to the evaluation time
	PnlToday float64 `json:"pnl_today"`
	PnlWeek  float64 `json:"pnl_week"`
	PnlMonth float64 `json:"pnl_month"`

	// Portfolio reference
	InitialBalance float64 `json:"initial_balance"`
	Balance        float64 `json:"balance"`
	Equity         float64 `json:"equity"`
}

// MarshalJSON encodes ProfitFactor as a number, or the string "Infinity".
func (m PerformanceMetrics) MarshalJSON() ([]byte, error) {
	type alias PerformanceMetrics
	var pf any = m.ProfitFactor
	if math.IsInf(m.ProfitFactor, 1) {
		pf = infinity
	}
	return json.Marshal(struct {
		alias
		ProfitFactor any `json:"profit_factor"`
	}{alias(m), pf})
}

// UnmarshalJSON reverses MarshalJSON.
func (m *PerformanceMetrics) UnmarshalJSON(data []byte) error {
	type alias PerformanceMetrics
	aux := struct {
		*alias
		ProfitFactor json.RawMessage `json:"profit_factor"`
	}{alias: (*alias)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.ProfitFactor) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(aux.ProfitFactor, &s); err == nil {
		if s != infinity {
			return fmt.Errorf("profit factor: unexpected value %q", s)
		}
		m.ProfitFactor = math.Inf(1)
		return nil
	}
	return json.Unmarshal(aux.ProfitFactor, &m.ProfitFactor)
}

const infinity = "Infinity"

// Clone returns a copy that shares no map with m.
func (m *PerformanceMetrics) Clone() *PerformanceMetrics {
	if m == nil {
		return nil
	}
	c := *m
	if m.ExitReasons != nil {
		c.ExitReasons = make(map[ExitReason]int, len(m.ExitReasons))
		for k, v := range m.ExitReasons {
			c.ExitReasons[k] = v
		}
	}
	return &c
}
