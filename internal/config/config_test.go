package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perp-strategy-lab/internal/domain"
	"perp-strategy-lab/internal/optimizer"
)

const sample = `
name: trend
symbols: [btcusdt, " ETHUSDT "]
start_date: 2024-01-01
end_date: 2024-04-01
leverage: 3
execution:
  scenario: pessimistic
  taker_fee_pct: 0.04
signal:
  min_score: 65
  allow_short: false
exits:
  stop_loss_pct: 3
  take_profit_1_pct: 4
optimize:
  criterion: sharpe
  workers: 2
  axes:
    - param: leverage
      values: [2, 3, 5]
    - param: exits.takeProfit1Pct
      values: [2, 4]
walk_forward:
  window_months: 2
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "trend", cfg.Name)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), cfg.StartDate.Time)
	assert.Equal(t, 3.0, cfg.Leverage)
	assert.Equal(t, 10000.0, cfg.InitialBalance, "absent keys keep defaults")
	assert.True(t, cfg.Signal.AllowLong)
	assert.False(t, cfg.Signal.AllowShort)
	assert.Equal(t, 2, cfg.WalkForward.WindowMonths)
	assert.Equal(t, 0.7, cfg.WalkForward.InSampleRatio)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("POSTGRES_DSN", "postgres://lab@localhost/lab")
	t.Setenv("CLICKHOUSE_DSN", "clickhouse://localhost:9000/lab")
	t.Setenv("METRICS_ADDR", ":9999")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "postgres://lab@localhost/lab", cfg.PostgresDSN)
	assert.Equal(t, "clickhouse://localhost:9000/lab", cfg.ClickhouseDSN)
	assert.Equal(t, ":9999", cfg.MetricsAddr)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "start_date: 01/02/2024\n"))
	assert.ErrorContains(t, err, "YYYY-MM-DD")
}

func TestToStrategyConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	sc, err := cfg.ToStrategyConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, sc.Symbols)
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), sc.EndDate)
	assert.Equal(t, 0.04, sc.Execution.TakerFeePct)
	assert.Equal(t, domain.ExecutionScenarioPessimistic().SlippagePct, sc.Execution.SlippagePct)
	assert.Equal(t, 65.0, sc.Signal.MinScore)
	assert.Equal(t, 3.0, sc.Exits.StopLossPct)
	assert.Equal(t, domain.DefaultStrategyConfig().Risk, sc.Risk)
	assert.Zero(t, sc.Exits.TakeProfit2Pct, "only take_profit_1_pct is set")
	assert.Zero(t, sc.Exits.TakeProfit3Pct)
	assert.NoError(t, sc.Validate())
}

func TestToStrategyConfig_SingleTakeProfitAxis(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	sc, err := cfg.ToStrategyConfig()
	require.NoError(t, err)
	opts, err := cfg.OptimizerOptions()
	require.NoError(t, err)

	for _, v := range opts.Axes[1].Values {
		c := sc.Clone()
		require.NoError(t, optimizer.ParamTakeProfit1Pct.Apply(&c, v))
		assert.NoError(t, c.Validate(), "take profit 1 = %v", v)
	}
}

func TestToStrategyConfig_UnknownScenario(t *testing.T) {
	cfg := Defaults()
	cfg.Execution.Scenario = "heroic"

	_, err := cfg.ToStrategyConfig()
	assert.ErrorIs(t, err, ErrUnknownScenario)
}

func TestOptimizerOptions(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	opts, err := cfg.OptimizerOptions()
	require.NoError(t, err)

	assert.Equal(t, optimizer.CriterionSharpe, opts.Criterion)
	assert.Equal(t, 2, opts.Workers)
	assert.Equal(t, optimizer.DefaultMaxCombinations, opts.MaxCombinations)
	assert.Equal(t, []optimizer.Axis{
		{Param: optimizer.ParamLeverage, Values: []float64{2, 3, 5}},
		{Param: optimizer.ParamTakeProfit1Pct, Values: []float64{2, 4}},
	}, opts.Axes)

	wf, err := cfg.WalkForwardOptions()
	require.NoError(t, err)
	assert.Equal(t, 2, wf.WindowMonths)
	assert.Len(t, wf.Optimizer.Axes, 2)
}

func TestAxes_UnknownParam(t *testing.T) {
	cfg := Defaults()
	cfg.Optimize.Axes = []AxisConf{{Param: "exits.magic", Values: []float64{1}}}

	_, err := cfg.Axes()
	assert.ErrorIs(t, err, optimizer.ErrUnknownParam)
	assert.ErrorContains(t, err, "optimize.axes[0]")
}
