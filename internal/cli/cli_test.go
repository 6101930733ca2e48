package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perp-strategy-lab/internal/domain"
	"perp-strategy-lab/internal/storage/memory"
)

const candleCSV = `symbol,timestamp,open,high,low,close,volume
BTCUSDT,1704067200000,100,101,99,100.5,2
BTCUSDT,1704070800000,100.5,102,100,101.5,3
BTCUSDT,1704070800000,100.5,102,100,101.5,3
BTCUSDT,1704153600000,101,103,100,102,4
ETHUSDT,1704067200000,10,11,9,10.5,7
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newEnv(t *testing.T) *Env {
	t.Helper()
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("CLICKHOUSE_DSN", "")

	path := writeFile(t, "config.yaml", `
name: trend
symbols: [btcusdt]
start_date: 2024-01-01
end_date: 2024-01-02
log_level: error
`)
	env, err := Setup("test", path)
	require.NoError(t, err)
	t.Cleanup(env.Close)
	return env
}

func TestSetup(t *testing.T) {
	env := newEnv(t)

	assert.Equal(t, "trend", env.Strategy.Name)
	assert.Equal(t, []string{"BTCUSDT"}, env.Strategy.Symbols)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), env.Strategy.StartDate)
	assert.NotNil(t, env.Metrics)
	assert.NotNil(t, env.Registry)
}

func TestSetup_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Setup("test", filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
	t.Run("unknown scenario", func(t *testing.T) {
		path := writeFile(t, "config.yaml", "execution:\n  scenario: heroic\n")
		_, err := Setup("test", path)
		assert.ErrorContains(t, err, "heroic")
	})
	t.Run("bad log level", func(t *testing.T) {
		path := writeFile(t, "config.yaml", "log_level: loud\n")
		_, err := Setup("test", path)
		assert.ErrorContains(t, err, "init logger")
	})
}

func TestLoadCandles_FromCSV(t *testing.T) {
	env := newEnv(t)
	cfg := env.Strategy

	got, err := env.LoadCandles(context.Background(), writeFile(t, "candles.csv", candleCSV), &cfg)
	require.NoError(t, err)

	// end date is exclusive; the Jan 2 bar is out of range
	want := map[string][]domain.Candle{
		"BTCUSDT": {
			{Timestamp: 1704067200000, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 2},
			{Timestamp: 1704070800000, Open: 100.5, High: 102, Low: 100, Close: 101.5, Volume: 3},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Candles mismatch (-want +got):\n%s", diff)
	}
	// insert_candles and get_candles
	assert.Equal(t, 2, testutil.CollectAndCount(env.Metrics.DBQueryDuration))
	assert.Zero(t, testutil.CollectAndCount(env.Metrics.DBQueryErrors))
}

func TestLoadCandles_NoSource(t *testing.T) {
	env := newEnv(t)
	cfg := env.Strategy

	_, err := env.LoadCandles(context.Background(), "", &cfg)
	assert.ErrorContains(t, err, "no candle source")
}

func TestReadCandles_AllSymbols(t *testing.T) {
	env := newEnv(t)
	store := memory.NewCandleStore()
	ctx := context.Background()

	n, err := env.ImportCandles(ctx, store, BackendMemory, writeFile(t, "candles.csv", candleCSV))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	cfg := env.Strategy
	cfg.Symbols = nil
	got, err := env.ReadCandles(ctx, store, BackendMemory, &cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Symbols)
	assert.Len(t, got["BTCUSDT"], 2)
	assert.Len(t, got["ETHUSDT"], 1)
}

func TestImportCandles_AlreadyStored(t *testing.T) {
	env := newEnv(t)
	store := memory.NewCandleStore()
	ctx := context.Background()
	path := writeFile(t, "candles.csv", candleCSV)

	_, err := env.ImportCandles(ctx, store, BackendMemory, path)
	require.NoError(t, err)

	n, err := env.ImportCandles(ctx, store, BackendMemory, path)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 2.0, testutil.ToFloat64(env.Metrics.DBQueryErrors.WithLabelValues(BackendMemory, "insert_candles")))
}

func TestLoadSignals(t *testing.T) {
	p, n, err := LoadSignals("")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Nil(t, p.SignalAt("BTCUSDT", 1))

	path := writeFile(t, "signals.csv", "timestamp,symbol,direction,score,model_probability\n1000,BTCUSDT,long,70,60\n")
	p, n, err = LoadSignals(path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NotNil(t, p.SignalAt("BTCUSDT", 1000))
	assert.Equal(t, domain.DirectionLong, p.SignalAt("BTCUSDT", 1000).Direction)

	_, _, err = LoadSignals(filepath.Join(t.TempDir(), "absent.csv"))
	assert.Error(t, err)
}

func TestWriteString(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.md")
	require.NoError(t, WriteString(path, "# Report\n"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# Report\n", string(data))

	assert.Error(t, WriteString(filepath.Join(t.TempDir(), "missing", "report.md"), "x"))
}
