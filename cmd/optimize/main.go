// Package main grid-searches strategy parameters and ranks the combinations.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"perp-strategy-lab/internal/cli"
	"perp-strategy-lab/internal/optimizer"
	"perp-strategy-lab/internal/reporting"
)

func main() {
	configPath := flag.String("config", "", "Strategy config YAML with an optimize section")
	candlesPath := flag.String("candles", "", "Candle CSV; imported into ClickHouse when CLICKHOUSE_DSN is set")
	signalsPath := flag.String("signals", "", "Signal CSV")
	criterion := flag.String("criterion", "", "Ranking criterion override: profit, sharpe, drawdown, risk_adjusted")
	output := flag.String("output", "-", "Report path (- = stdout)")
	outputJSON := flag.Bool("json", false, "Write the ranked entries as JSON instead of markdown")
	entriesPath := flag.String("entries-csv", "", "Write the stored entries of the run as CSV")
	top := flag.Int("top", reporting.DefaultTopEntries, "Entries shown in the ranking table")
	flag.Parse()

	env, err := cli.Setup("optimize", *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "optimize: %v\n", err)
		os.Exit(1)
	}
	defer env.Close()
	logger := env.Logger

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	opts, err := env.Config.OptimizerOptions()
	if err != nil {
		logger.Fatal("optimizer options", zap.Error(err))
	}
	if *criterion != "" {
		if opts.Criterion, err = optimizer.ParseCriterion(*criterion); err != nil {
			logger.Fatal("criterion", zap.Error(err))
		}
	}

	cfg := env.Strategy
	candles, err := env.LoadCandles(ctx, *candlesPath, &cfg)
	if err != nil {
		logger.Fatal("load candles", zap.Error(err))
	}
	provider, _, err := cli.LoadSignals(*signalsPath)
	if err != nil {
		logger.Fatal("load signals", zap.Error(err))
	}

	opts.Signals = provider
	opts.Logger = logger
	opts.Metrics = env.Metrics
	opts.Progress = func(p optimizer.Progress) {
		logger.Info("progress",
			zap.String("phase", p.Phase),
			zap.Float64("percent", p.Percent),
			zap.Int("current", p.Current),
			zap.Int("total", p.Total),
		)
	}
	opt, err := optimizer.New(opts)
	if err != nil {
		logger.Fatal("create optimizer", zap.Error(err))
	}

	result, err := opt.Run(ctx, cfg, candles)
	if err != nil {
		logger.Fatal("optimization failed", zap.Error(err))
	}
	logger.Info("optimization finished",
		zap.String("run_id", result.RunID),
		zap.Int("evaluated", len(result.Entries)),
		zap.Int("dropped", result.Dropped),
		zap.Int("warnings", len(result.Warnings)),
	)

	store, backend, err := env.OptimizationStore(ctx)
	if err != nil {
		logger.Fatal("open result store", zap.Error(err))
	}
	start := time.Now()
	err = store.InsertBulk(ctx, result.Entries)
	env.Observe(backend, "insert_optimization_entries", start, err)
	if err != nil {
		logger.Fatal("store entries", zap.Error(err))
	}

	if *outputJSON {
		err = cli.WriteOutput(*output, func(w io.Writer) error {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(result.Ranked)
		})
	} else {
		err = cli.WriteString(*output, reporting.New().WithTop(*top).OptimizationMarkdown(result))
	}
	if err != nil {
		logger.Fatal("write report", zap.Error(err))
	}

	if *entriesPath != "" {
		start := time.Now()
		stored, err := store.GetByRunID(ctx, result.RunID)
		env.Observe(backend, "get_optimization_entries", start, err)
		if err != nil {
			logger.Fatal("read entries", zap.Error(err))
		}
		if err := cli.WriteOutput(*entriesPath, func(w io.Writer) error {
			return reporting.WriteOptimizationCSV(w, stored)
		}); err != nil {
			logger.Fatal("write entries", zap.Error(err))
		}
	}
}
