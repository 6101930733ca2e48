// Package main runs walk-forward validation of a strategy config and stores
// the report.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"perp-strategy-lab/internal/cli"
	"perp-strategy-lab/internal/domain"
	"perp-strategy-lab/internal/optimizer"
	"perp-strategy-lab/internal/reporting"
	"perp-strategy-lab/internal/storage"
	"perp-strategy-lab/internal/walkforward"
)

func main() {
	configPath := flag.String("config", "", "Strategy config YAML with optimize and walk_forward sections")
	candlesPath := flag.String("candles", "", "Candle CSV; imported into ClickHouse when CLICKHOUSE_DSN is set")
	signalsPath := flag.String("signals", "", "Signal CSV")
	reportID := flag.String("report-id", "", "Render a stored report instead of running")
	output := flag.String("output", "-", "Report path (- = stdout)")
	outputJSON := flag.Bool("json", false, "Write the report as JSON instead of markdown")
	windowsPath := flag.String("windows-csv", "", "Write the per-window results as CSV")
	flag.Parse()

	env, err := cli.Setup("walkforward", *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "walkforward: %v\n", err)
		os.Exit(1)
	}
	defer env.Close()
	logger := env.Logger

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	store, backend, err := env.WalkForwardStore(ctx)
	if err != nil {
		logger.Fatal("open report store", zap.Error(err))
	}

	id := *reportID
	if id == "" {
		if id, err = run(ctx, env, store, backend, *candlesPath, *signalsPath); err != nil {
			logger.Fatal("walk-forward failed", zap.Error(err))
		}
	}

	start := time.Now()
	report, err := store.GetByID(ctx, id)
	env.Observe(backend, "get_walkforward_report", start, err)
	if err != nil {
		logger.Fatal("read report", zap.String("id", id), zap.Error(err))
	}

	if *outputJSON {
		err = cli.WriteOutput(*output, func(w io.Writer) error {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		})
	} else {
		err = cli.WriteString(*output, reporting.New().WalkForwardMarkdown(report))
	}
	if err != nil {
		logger.Fatal("write report", zap.Error(err))
	}

	if *windowsPath != "" {
		if err := cli.WriteOutput(*windowsPath, func(w io.Writer) error {
			return reporting.WriteWalkForwardCSV(w, report)
		}); err != nil {
			logger.Fatal("write windows", zap.Error(err))
		}
	}
}

// run validates the configured strategy and stores the report.
// Returns the report id.
func run(ctx context.Context, env *cli.Env, store storage.WalkForwardStore, backend, candlesPath, signalsPath string) (string, error) {
	logger := env.Logger

	opts, err := env.Config.WalkForwardOptions()
	if err != nil {
		return "", fmt.Errorf("walk-forward options: %w", err)
	}

	cfg := env.Strategy
	candles, err := env.LoadCandles(ctx, candlesPath, &cfg)
	if err != nil {
		return "", err
	}
	provider, _, err := cli.LoadSignals(signalsPath)
	if err != nil {
		return "", err
	}

	opts.Signals = provider
	opts.Logger = logger
	opts.Metrics = env.Metrics
	opts.Progress = func(p optimizer.Progress) {
		logger.Info("progress",
			zap.String("phase", p.Phase),
			zap.Float64("percent", p.Percent),
			zap.String("message", p.Message),
		)
	}
	validator, err := walkforward.New(opts)
	if err != nil {
		return "", err
	}

	report, err := validator.Run(ctx, cfg, candles)
	if err != nil {
		return "", err
	}
	logger.Info("walk-forward finished",
		zap.String("id", report.ID),
		zap.String("verdict", string(report.Verdict)),
		zap.Int("processed_windows", report.ProcessedWindows),
		zap.Float64("efficiency", report.OverallEfficiency),
	)

	start := time.Now()
	err = store.Insert(ctx, report)
	env.Observe(backend, "insert_walkforward_report", start, err)
	switch {
	case errors.Is(err, storage.ErrDuplicateKey):
		logger.Warn("report already stored, keeping the first", zap.String("id", report.ID))
	case err != nil:
		return "", fmt.Errorf("store report: %w", err)
	}

	if report.Verdict == domain.VerdictLikelyOverfit {
		logger.Warn("strategy looks overfit", zap.String("summary", report.Summary))
	}
	return report.ID, nil
}
