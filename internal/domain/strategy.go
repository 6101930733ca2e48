package domain

import (
	"fmt"
	"time"
)

// ExecutionConfig holds execution-cost parameters. Immutable per run.
type ExecutionConfig struct {
	SpreadPct       float64 `json:"spread_pct"`        // full bid/ask spread, half paid per fill
	SlippagePct     float64 `json:"slippage_pct"`      // adverse move per fill
	MakerFeePct     float64 `json:"maker_fee_pct"`     // per side, on notional
	TakerFeePct     float64 `json:"taker_fee_pct"`     // per side, on notional
	UseMarketOrders bool    `json:"use_market_orders"` // taker fees when true
	FundingRatePct  float64 `json:"funding_rate_pct"`  // per 8h interval, longs pay when positive
}

// FeePct returns the per-side fee rate that applies to fills.
func (c ExecutionConfig) FeePct() float64 {
	if c.UseMarketOrders {
		return c.TakerFeePct
	}
	return c.MakerFeePct
}

// SignalFilters gate backtest entries.
type SignalFilters struct {
	MinScore                 float64 `json:"min_score"`
	MaxSimultaneousPositions int     `json:"max_simultaneous_positions"` // 0 = unlimited
	MaxCapitalPerPositionPct float64 `json:"max_capital_per_position_pct"`
	AllowLong                bool    `json:"allow_long"`
	AllowShort               bool    `json:"allow_short"`
}

// Allows reports whether entries in direction d pass the side filter.
func (f SignalFilters) Allows(d Direction) bool {
	switch d {
	case DirectionLong:
		return f.AllowLong
	case DirectionShort:
		return f.AllowShort
	}
	return false
}

// RiskLimits are portfolio-level drawdown guards. Zero disables a limit.
type RiskLimits struct {
	MaxDailyDrawdownPct float64 `json:"max_daily_drawdown_pct"`
	MaxTotalDrawdownPct float64 `json:"max_total_drawdown_pct"`
	StopOnMaxDrawdown   bool    `json:"stop_on_max_drawdown"`
}

// AutoTradeConfig gates automatic entries in a live portfolio.
type AutoTradeConfig struct {
	MinScore                 float64 `json:"min_score"`
	MinModelProbability      float64 `json:"min_model_probability"`      // 0-100
	MaxSimultaneousPositions int     `json:"max_simultaneous_positions"` // 0 = unlimited
	MaxCapitalPerTradePct    float64 `json:"max_capital_per_trade_pct"`
}

// ExitRules derive stop and target prices from the entry price. Zero disables a level.
type ExitRules struct {
	StopLossPct       float64 `json:"stop_loss_pct"`
	TakeProfit1Pct    float64 `json:"take_profit_1_pct"`
	TakeProfit2Pct    float64 `json:"take_profit_2_pct"`
	TakeProfit3Pct    float64 `json:"take_profit_3_pct"`
	TrailingStopPct   float64 `json:"trailing_stop_pct"` // armed after TP1
	CloseOnSignalFlip bool    `json:"close_on_signal_flip"`
}

// ExitLevels are the price levels resolved from ExitRules for one entry.
type ExitLevels struct {
	StopLoss    *float64
	TakeProfit1 *float64
	TakeProfit2 *float64
	TakeProfit3 *float64
}

// Levels resolves price levels for a position entered at entry in direction d.
func (r ExitRules) Levels(d Direction, entry float64) ExitLevels {
	sign := d.Sign()
	level := func(pct float64, favorable bool) *float64 {
		if pct <= 0 {
			return nil
		}
		s := sign
		if !favorable {
			s = -sign
		}
		return Float(entry * (1 + s*pct/100))
	}
	return ExitLevels{
		StopLoss:    level(r.StopLossPct, false),
		TakeProfit1: level(r.TakeProfit1Pct, true),
		TakeProfit2: level(r.TakeProfit2Pct, true),
		TakeProfit3: level(r.TakeProfit3Pct, true),
	}
}

// StrategyConfig is the full configuration of one backtest or live session.
type StrategyConfig struct {
	Name           string    `json:"name"`
	Symbols        []string  `json:"symbols"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	InitialBalance float64   `json:"initial_balance"`
	Leverage       float64   `json:"leverage"`

	Execution ExecutionConfig `json:"execution"`
	Signal    SignalFilters   `json:"signal"`
	Risk      RiskLimits      `json:"risk"`
	AutoTrade AutoTradeConfig `json:"auto_trade"`
	Exits     ExitRules       `json:"exits"`
}

// DefaultStrategyConfig returns a config with conservative defaults and no symbols or dates.
func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		Name:           "default",
		InitialBalance: 10000,
		Leverage:       5,
		Execution:      ExecutionScenarioRealistic(),
		Signal: SignalFilters{
			MinScore:                 60,
			MaxSimultaneousPositions: 3,
			MaxCapitalPerPositionPct: 10,
			AllowLong:                true,
			AllowShort:               true,
		},
		Risk: RiskLimits{
			MaxDailyDrawdownPct: 5,
			MaxTotalDrawdownPct: 20,
			StopOnMaxDrawdown:   true,
		},
		AutoTrade: AutoTradeConfig{
			MinScore:                 70,
			MinModelProbability:      65,
			MaxSimultaneousPositions: 3,
			MaxCapitalPerTradePct:    10,
		},
		Exits: ExitRules{
			StopLossPct:     2,
			TakeProfit1Pct:  2,
			TrailingStopPct: 1.5,
		},
	}
}

// Clone returns a copy that shares no slices with c.
func (c StrategyConfig) Clone() StrategyConfig {
	c.Symbols = append([]string(nil), c.Symbols...)
	return c
}

// Validate rejects configurations that cannot start a run.
func (c StrategyConfig) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("%w: symbol list is empty", ErrInvalidConfig)
	}
	for _, s := range c.Symbols {
		if s == "" {
			return fmt.Errorf("%w: empty symbol", ErrInvalidConfig)
		}
	}
	if !c.StartDate.Before(c.EndDate) {
		return fmt.Errorf("%w: start date %s is not before end date %s",
			ErrInvalidConfig, c.StartDate.Format(time.DateOnly), c.EndDate.Format(time.DateOnly))
	}
	if c.InitialBalance <= 0 {
		return fmt.Errorf("%w: initial balance must be positive, got %g", ErrInvalidConfig, c.InitialBalance)
	}
	if c.Leverage < 1 {
		return fmt.Errorf("%w: leverage must be >= 1, got %g", ErrInvalidConfig, c.Leverage)
	}
	if c.Signal.MaxCapitalPerPositionPct <= 0 || c.Signal.MaxCapitalPerPositionPct > 100 {
		return fmt.Errorf("%w: max capital per position must be in (0, 100], got %g",
			ErrInvalidConfig, c.Signal.MaxCapitalPerPositionPct)
	}
	if c.Signal.MaxSimultaneousPositions < 0 || c.AutoTrade.MaxSimultaneousPositions < 0 {
		return fmt.Errorf("%w: max simultaneous positions must not be negative", ErrInvalidConfig)
	}
	if err := c.Execution.validate(); err != nil {
		return err
	}
	return c.Exits.validate()
}

func (c ExecutionConfig) validate() error {
	costs := []struct {
		name  string
		value float64
	}{
		{"spread", c.SpreadPct},
		{"slippage", c.SlippagePct},
		{"maker fee", c.MakerFeePct},
		{"taker fee", c.TakerFeePct},
	}
	for _, cost := range costs {
		if cost.value < 0 {
			return fmt.Errorf("%w: %s must not be negative, got %g", ErrInvalidConfig, cost.name, cost.value)
		}
	}
	return nil
}

func (r ExitRules) validate() error {
	if r.StopLossPct < 0 || r.TakeProfit1Pct < 0 || r.TakeProfit2Pct < 0 ||
		r.TakeProfit3Pct < 0 || r.TrailingStopPct < 0 {
		return fmt.Errorf("%w: exit percentages must not be negative", ErrInvalidConfig)
	}
	if r.TakeProfit2Pct > 0 && (r.TakeProfit1Pct <= 0 || r.TakeProfit2Pct <= r.TakeProfit1Pct) {
		return fmt.Errorf("%w: take profit 2 (%g%%) must follow take profit 1 (%g%%)",
			ErrInvalidConfig, r.TakeProfit2Pct, r.TakeProfit1Pct)
	}
	if r.TakeProfit3Pct > 0 && (r.TakeProfit2Pct <= 0 || r.TakeProfit3Pct <= r.TakeProfit2Pct) {
		return fmt.Errorf("%w: take profit 3 (%g%%) must follow take profit 2 (%g%%)",
			ErrInvalidConfig, r.TakeProfit3Pct, r.TakeProfit2Pct)
	}
	return nil
}
