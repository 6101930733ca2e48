// Package main runs one backtest of a strategy config over candle history.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"perp-strategy-lab/internal/backtest"
	"perp-strategy-lab/internal/cli"
	"perp-strategy-lab/internal/domain"
	"perp-strategy-lab/internal/reporting"
	"perp-strategy-lab/internal/verification"
)

func main() {
	configPath := flag.String("config", "", "Strategy config YAML (defaults when empty)")
	candlesPath := flag.String("candles", "", "Candle CSV (symbol,timestamp,open,high,low,close,volume); imported into ClickHouse when CLICKHOUSE_DSN is set")
	signalsPath := flag.String("signals", "", "Signal CSV")
	output := flag.String("output", "-", "Report path (- = stdout)")
	outputJSON := flag.Bool("json", false, "Write the result as JSON instead of markdown")
	tradesPath := flag.String("trades-csv", "", "Write closed trades as CSV")
	equityPath := flag.String("equity-csv", "", "Write the equity curve as CSV")
	journal := flag.Bool("journal", false, "Store the trades in the order journal (Postgres when POSTGRES_DSN is set)")
	verify := flag.Bool("verify", false, "Replay the backtest against its journaled trades and exit non-zero on divergence")
	flag.Parse()

	env, err := cli.Setup("backtest", *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backtest: %v\n", err)
		os.Exit(1)
	}
	defer env.Close()
	logger := env.Logger

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	cfg := env.Strategy
	candles, err := env.LoadCandles(ctx, *candlesPath, &cfg)
	if err != nil {
		logger.Fatal("load candles", zap.Error(err))
	}
	provider, nSignals, err := cli.LoadSignals(*signalsPath)
	if err != nil {
		logger.Fatal("load signals", zap.Error(err))
	}
	logger.Info("starting backtest",
		zap.String("strategy", cfg.Name),
		zap.Strings("symbols", cfg.Symbols),
		zap.Int("signals", nSignals),
	)

	runner := backtest.NewRunner(backtest.Options{
		Signals: provider,
		Logger:  logger,
		Metrics: env.Metrics,
	})
	if *verify {
		verifyJournal(ctx, env, runner, cfg, candles)
		return
	}

	result, err := runner.Run(ctx, cfg, candles)
	if err != nil {
		logger.Fatal("backtest failed", zap.Error(err))
	}
	logger.Info("backtest finished",
		zap.String("status", result.Status),
		zap.Int("trades", len(result.Trades)),
		zap.Int("bars", result.Bars),
		zap.Float64("return_pct", result.ReturnPct()),
	)

	if *journal {
		orders, _, backend, err := env.LedgerStores(ctx)
		if err != nil {
			logger.Fatal("open order journal", zap.Error(err))
		}
		start := time.Now()
		err = verification.Journal(ctx, orders, cfg, result)
		env.Observe(backend, "insert_orders", start, err)
		if err != nil {
			logger.Fatal("journal trades", zap.Error(err))
		}
		logger.Info("trades journaled", zap.String("journal_id", verification.JournalID(cfg)), zap.String("store", backend))
	}

	if *outputJSON {
		err = cli.WriteOutput(*output, func(w io.Writer) error {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		})
	} else {
		err = cli.WriteString(*output, reporting.New().BacktestMarkdown(result))
	}
	if err != nil {
		logger.Fatal("write report", zap.Error(err))
	}

	if *tradesPath != "" {
		if err := cli.WriteOutput(*tradesPath, func(w io.Writer) error {
			return reporting.WriteTradesCSV(w, result.Trades)
		}); err != nil {
			logger.Fatal("write trades", zap.Error(err))
		}
	}
	if *equityPath != "" {
		if err := cli.WriteOutput(*equityPath, func(w io.Writer) error {
			return reporting.WriteEquityCSV(w, result.EquityCurve)
		}); err != nil {
			logger.Fatal("write equity curve", zap.Error(err))
		}
	}
}

// verifyJournal replays cfg and compares it with the journaled trades.
func verifyJournal(ctx context.Context, env *cli.Env, runner *backtest.Runner, cfg domain.StrategyConfig, candles map[string][]domain.Candle) {
	logger := env.Logger
	orders, _, _, err := env.LedgerStores(ctx)
	if err != nil {
		logger.Fatal("open order journal", zap.Error(err))
	}

	report, err := verification.NewReplayVerifier(orders, runner).Verify(ctx, cfg, candles)
	if err != nil {
		logger.Fatal("verification failed", zap.Error(err))
	}
	for _, r := range report.Results {
		if r.Match {
			continue
		}
		for _, d := range r.Divergences {
			logger.Warn("divergence",
				zap.String("order_id", r.OrderID),
				zap.String("field", d.Field),
				zap.Any("stored", d.Expected),
				zap.Any("replayed", d.Actual),
			)
		}
	}
	logger.Info("verification finished",
		zap.String("journal_id", report.PortfolioID),
		zap.Int("orders", report.TotalOrders),
		zap.Int("matched", report.Matched),
		zap.Int("divergent", report.Divergent),
		zap.Strings("extra", report.Extra),
	)
	if !report.OK() {
		env.Close()
		os.Exit(2)
	}
}
