// Package config loads strategy, optimizer and walk-forward settings from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"perp-strategy-lab/internal/domain"
	"perp-strategy-lab/internal/optimizer"
	"perp-strategy-lab/internal/walkforward"
)

// ErrUnknownScenario is returned for an execution scenario that is not defined.
var ErrUnknownScenario = errors.New("unknown execution scenario")

// Config is the file layout shared by all commands.
type Config struct {
	Name           string   `yaml:"name"`
	Symbols        []string `yaml:"symbols"`
	StartDate      Date     `yaml:"start_date"`
	EndDate        Date     `yaml:"end_date"`
	InitialBalance float64  `yaml:"initial_balance"`
	Leverage       float64  `yaml:"leverage"`

	Execution ExecutionConf `yaml:"execution"`
	Signal    SignalConf    `yaml:"signal"`
	Risk      RiskConf      `yaml:"risk"`
	AutoTrade AutoTradeConf `yaml:"auto_trade"`
	Exits     ExitConf      `yaml:"exits"`

	Optimize    OptimizeConf    `yaml:"optimize"`
	WalkForward WalkForwardConf `yaml:"walk_forward"`

	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
	PostgresDSN   string `yaml:"-"` // env POSTGRES_DSN
	ClickhouseDSN string `yaml:"-"` // env CLICKHOUSE_DSN
	MetricsAddr   string `yaml:"metrics_addr"`
}

// ExecutionConf selects a named scenario and overrides its fields.
type ExecutionConf struct {
	Scenario        string   `yaml:"scenario"` // optimistic, realistic, pessimistic
	SpreadPct       *float64 `yaml:"spread_pct"`
	SlippagePct     *float64 `yaml:"slippage_pct"`
	MakerFeePct     *float64 `yaml:"maker_fee_pct"`
	TakerFeePct     *float64 `yaml:"taker_fee_pct"`
	UseMarketOrders *bool    `yaml:"use_market_orders"`
	FundingRatePct  *float64 `yaml:"funding_rate_pct"`
}

type SignalConf struct {
	MinScore                 float64 `yaml:"min_score"`
	MaxSimultaneousPositions int     `yaml:"max_simultaneous_positions"`
	MaxCapitalPerPositionPct float64 `yaml:"max_capital_per_position_pct"`
	AllowLong                bool    `yaml:"allow_long"`
	AllowShort               bool    `yaml:"allow_short"`
}

type RiskConf struct {
	MaxDailyDrawdownPct float64 `yaml:"max_daily_drawdown_pct"`
	MaxTotalDrawdownPct float64 `yaml:"max_total_drawdown_pct"`
	StopOnMaxDrawdown   bool    `yaml:"stop_on_max_drawdown"`
}

type AutoTradeConf struct {
	MinScore                 float64 `yaml:"min_score"`
	MinModelProbability      float64 `yaml:"min_model_probability"`
	MaxSimultaneousPositions int     `yaml:"max_simultaneous_positions"`
	MaxCapitalPerTradePct    float64 `yaml:"max_capital_per_trade_pct"`
}

type ExitConf struct {
	StopLossPct       float64 `yaml:"stop_loss_pct"`
	TakeProfit1Pct    float64 `yaml:"take_profit_1_pct"`
	TakeProfit2Pct    float64 `yaml:"take_profit_2_pct"`
	TakeProfit3Pct    float64 `yaml:"take_profit_3_pct"`
	TrailingStopPct   float64 `yaml:"trailing_stop_pct"`
	CloseOnSignalFlip bool    `yaml:"close_on_signal_flip"`
}

// OptimizeConf configures the grid search. Axis params use the dotted names
// of optimizer.Param, e.g. "exits.takeProfit1Pct".
type OptimizeConf struct {
	Criterion       string     `yaml:"criterion"`
	MaxCombinations int        `yaml:"max_combinations"`
	Workers         int        `yaml:"workers"`
	Axes            []AxisConf `yaml:"axes"`
}

type AxisConf struct {
	Param  string    `yaml:"param"`
	Values []float64 `yaml:"values"`
}

type WalkForwardConf struct {
	WindowMonths       int     `yaml:"window_months"`
	InSampleRatio      float64 `yaml:"in_sample_ratio"`
	MinInSampleBars    int     `yaml:"min_in_sample_bars"`
	MinOutOfSampleBars int     `yaml:"min_out_of_sample_bars"`
}

// Defaults returns the configuration used for keys absent from the file.
func Defaults() *Config {
	d := domain.DefaultStrategyConfig()
	return &Config{
		Name:           d.Name,
		InitialBalance: d.InitialBalance,
		Leverage:       d.Leverage,
		Execution:      ExecutionConf{Scenario: domain.ScenarioRealistic},
		Signal: SignalConf{
			MinScore:                 d.Signal.MinScore,
			MaxSimultaneousPositions: d.Signal.MaxSimultaneousPositions,
			MaxCapitalPerPositionPct: d.Signal.MaxCapitalPerPositionPct,
			AllowLong:                d.Signal.AllowLong,
			AllowShort:               d.Signal.AllowShort,
		},
		Risk: RiskConf(d.Risk),
		AutoTrade: AutoTradeConf{
			MinScore:                 d.AutoTrade.MinScore,
			MinModelProbability:      d.AutoTrade.MinModelProbability,
			MaxSimultaneousPositions: d.AutoTrade.MaxSimultaneousPositions,
			MaxCapitalPerTradePct:    d.AutoTrade.MaxCapitalPerTradePct,
		},
		Exits: ExitConf(d.Exits),
		Optimize: OptimizeConf{
			Criterion:       string(optimizer.CriterionRiskAdjusted),
			MaxCombinations: optimizer.DefaultMaxCombinations,
		},
		WalkForward: WalkForwardConf{
			WindowMonths:       walkforward.DefaultWindowMonths,
			InSampleRatio:      walkforward.DefaultInSampleRatio,
			MinInSampleBars:    walkforward.DefaultMinInSampleBars,
			MinOutOfSampleBars: walkforward.DefaultMinOutOfSampleBars,
		},
		LogLevel:    "info",
		LogFormat:   "json",
		MetricsAddr: ":9090",
	}
}

// Load reads the YAML file at path over Defaults and applies environment
// overrides. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.PostgresDSN = v
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		cfg.ClickhouseDSN = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
}

// ToStrategyConfig resolves the execution scenario and returns the domain config.
// The result is not validated; runs validate it on start.
func (c *Config) ToStrategyConfig() (domain.StrategyConfig, error) {
	exec, err := c.Execution.resolve()
	if err != nil {
		return domain.StrategyConfig{}, err
	}

	symbols := make([]string, 0, len(c.Symbols))
	for _, s := range c.Symbols {
		symbols = append(symbols, strings.ToUpper(strings.TrimSpace(s)))
	}

	return domain.StrategyConfig{
		Name:           c.Name,
		Symbols:        symbols,
		StartDate:      c.StartDate.Time,
		EndDate:        c.EndDate.Time,
		InitialBalance: c.InitialBalance,
		Leverage:       c.Leverage,
		Execution:      exec,
		Signal: domain.SignalFilters{
			MinScore:                 c.Signal.MinScore,
			MaxSimultaneousPositions: c.Signal.MaxSimultaneousPositions,
			MaxCapitalPerPositionPct: c.Signal.MaxCapitalPerPositionPct,
			AllowLong:                c.Signal.AllowLong,
			AllowShort:               c.Signal.AllowShort,
		},
		Risk: domain.RiskLimits(c.Risk),
		AutoTrade: domain.AutoTradeConfig{
			MinScore:                 c.AutoTrade.MinScore,
			MinModelProbability:      c.AutoTrade.MinModelProbability,
			MaxSimultaneousPositions: c.AutoTrade.MaxSimultaneousPositions,
			MaxCapitalPerTradePct:    c.AutoTrade.MaxCapitalPerTradePct,
		},
		Exits: domain.ExitRules(c.Exits),
	}, nil
}

func (e ExecutionConf) resolve() (domain.ExecutionConfig, error) {
	scenario := strings.ToLower(e.Scenario)
	if scenario == "" {
		scenario = domain.ScenarioRealistic
	}
	exec, ok := domain.ExecutionScenario(scenario)
	if !ok {
		return domain.ExecutionConfig{}, fmt.Errorf("%w: %q", ErrUnknownScenario, e.Scenario)
	}

	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	set(&exec.SpreadPct, e.SpreadPct)
	set(&exec.SlippagePct, e.SlippagePct)
	set(&exec.MakerFeePct, e.MakerFeePct)
	set(&exec.TakerFeePct, e.TakerFeePct)
	set(&exec.FundingRatePct, e.FundingRatePct)
	if e.UseMarketOrders != nil {
		exec.UseMarketOrders = *e.UseMarketOrders
	}
	return exec, nil
}

// OptimizerOptions returns the grid search options described by the file.
// Collaborators (signals, logger, metrics, progress) are left for the caller.
func (c *Config) OptimizerOptions() (optimizer.Options, error) {
	axes, err := c.Axes()
	if err != nil {
		return optimizer.Options{}, err
	}
	criterion, err := optimizer.ParseCriterion(c.Optimize.Criterion)
	if err != nil {
		return optimizer.Options{}, err
	}
	return optimizer.Options{
		Axes:            axes,
		Criterion:       criterion,
		MaxCombinations: c.Optimize.MaxCombinations,
		Workers:         c.Optimize.Workers,
	}, nil
}

// Axes resolves the configured axis names to typed parameters.
func (c *Config) Axes() ([]optimizer.Axis, error) {
	axes := make([]optimizer.Axis, 0, len(c.Optimize.Axes))
	for i, a := range c.Optimize.Axes {
		p, err := optimizer.ParseParam(a.Param)
		if err != nil {
			return nil, fmt.Errorf("optimize.axes[%d]: %w", i, err)
		}
		axes = append(axes, optimizer.Axis{Param: p, Values: append([]float64(nil), a.Values...)})
	}
	return axes, nil
}

// WalkForwardOptions returns the validator options described by the file,
// including its optimizer settings.
func (c *Config) WalkForwardOptions() (walkforward.Options, error) {
	opt, err := c.OptimizerOptions()
	if err != nil {
		return walkforward.Options{}, err
	}
	return walkforward.Options{
		WindowMonths:       c.WalkForward.WindowMonths,
		InSampleRatio:      c.WalkForward.InSampleRatio,
		MinInSampleBars:    c.WalkForward.MinInSampleBars,
		MinOutOfSampleBars: c.WalkForward.MinOutOfSampleBars,
		Optimizer:          opt,
	}, nil
}
