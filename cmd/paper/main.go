// Package main runs a paper-trading portfolio driven by JSON messages on stdin.
//
// Each input line is one message, for example:
//
//	{"type":"price","prices":{"BTCUSDT":64210.5}}
//	{"type":"signal","price":64210.5,"signal":{"symbol":"BTCUSDT","direction":"long","score":72,"model_probability":68}}
//	{"type":"close","position_id":"...","price":64500}
//
// On exit the performance metrics and the readiness checklist are written to -output.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"perp-strategy-lab/internal/cli"
	"perp-strategy-lab/internal/domain"
	"perp-strategy-lab/internal/ledger"
	"perp-strategy-lab/internal/metrics"
	"perp-strategy-lab/internal/paper"
	"perp-strategy-lab/internal/readiness"
	"perp-strategy-lab/internal/reporting"
	"perp-strategy-lab/internal/storage"
	"perp-strategy-lab/internal/strategy"
)

func main() {
	configPath := flag.String("config", "", "Strategy config YAML (execution, auto_trade and exits are used)")
	portfolioID := flag.String("portfolio", "paper", "Portfolio id for snapshots and the order journal")
	mode := flag.String("mode", string(domain.ModeAutomatic), "Entry mode: automatic or manual")
	fresh := flag.Bool("fresh", false, "Ignore a stored snapshot and start from the initial balance")
	snapshotEvery := flag.Int("snapshot-every", paper.DefaultSnapshotEvery, "Messages between snapshots")
	backtestWinRate := flag.Float64("backtest-win-rate", 0, "Backtest win rate (%) for the readiness similarity check, 0 = none")
	metricsAddr := flag.String("metrics-addr", "", "Metrics listen address (default from config)")
	output := flag.String("output", "-", "Readiness report path (- = stdout)")
	reportOnly := flag.Bool("report-only", false, "Evaluate the stored portfolio without reading messages")
	flag.Parse()

	env, err := cli.Setup("paper", *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "paper: %v\n", err)
		os.Exit(1)
	}
	defer env.Close()
	logger := env.Logger.With(zap.String("portfolio_id", *portfolioID))

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	addr := env.Config.MetricsAddr
	if *metricsAddr != "" {
		addr = *metricsAddr
	}
	env.ServeMetrics(ctx, addr)

	var bt *readiness.BacktestComparison
	if *backtestWinRate > 0 {
		bt = &readiness.BacktestComparison{WinRate: *backtestWinRate}
	}

	cfg := env.Strategy
	if m := domain.Mode(*mode); m != domain.ModeAutomatic && m != domain.ModeManual {
		logger.Fatal("invalid mode", zap.String("mode", *mode))
	}
	entry, err := strategy.FromConfig(strategy.KindAutoTrade, cfg)
	if err != nil {
		logger.Fatal("entry strategy", zap.Error(err))
	}

	orders, snapshots, backend, err := env.LedgerStores(ctx)
	if err != nil {
		logger.Fatal("open ledger stores", zap.Error(err))
	}

	if *reportOnly {
		reportStored(ctx, env, orders, snapshots, *portfolioID, bt, *output)
		return
	}

	session := paper.New(paper.Options{
		PortfolioID: *portfolioID,
		Ledger: ledger.Options{
			InitialBalance: cfg.InitialBalance,
			Execution:      cfg.Execution,
			AutoTrade:      cfg.AutoTrade,
			Mode:           domain.Mode(*mode),
			Entry:          entry,
			IDs:            ledger.RandomIDs{},
			Observer:       ledger.NewLogObserver(logger),
		},
		Orders:        orders,
		Snapshots:     snapshots,
		Backend:       backend,
		SnapshotEvery: *snapshotEvery,
		Logger:        logger,
		Metrics:       env.Metrics,
	})

	if !*fresh {
		restored, err := session.Restore(ctx)
		if err != nil {
			logger.Fatal("restore portfolio", zap.Error(err))
		}
		if restored {
			session.Ledger().SetMode(domain.Mode(*mode))
		}
	}

	logger.Info("paper trading started",
		zap.String("mode", *mode),
		zap.String("store", backend),
		zap.Float64("balance", session.Ledger().Balance()),
	)
	if err := session.Run(ctx, os.Stdin); err != nil {
		logger.Error("paper trading stopped", zap.Error(err))
	}

	result, m := session.Readiness(bt)
	logger.Info("readiness evaluated",
		zap.String("status", string(result.Status)),
		zap.Int("passed", result.Passed),
		zap.Int("total", result.Total),
		zap.Int("trades", m.TotalTrades),
	)

	if err := cli.WriteString(*output, reporting.New().ReadinessMarkdown(result, m)); err != nil {
		logger.Fatal("write report", zap.Error(err))
	}
}

// reportStored evaluates readiness from the journal and snapshot of portfolioID.
func reportStored(ctx context.Context, env *cli.Env, orders storage.OrderStore, snapshots storage.SnapshotStore, portfolioID string, bt *readiness.BacktestComparison, output string) {
	logger := env.Logger

	m, err := metrics.NewAggregator(orders, snapshots).ComputePortfolio(ctx, portfolioID)
	if err != nil {
		logger.Fatal("compute stored metrics", zap.Error(err))
	}
	snap, err := snapshots.Load(ctx, portfolioID)
	if err != nil {
		logger.Fatal("load snapshot", zap.Error(err))
	}

	result := readiness.NewEvaluator().Evaluate(readiness.Input{
		Metrics:   m,
		StartedAt: time.UnixMilli(snap.StartedAt),
		Backtest:  bt,
	})
	if err := cli.WriteString(output, reporting.New().ReadinessMarkdown(result, m)); err != nil {
		logger.Fatal("write report", zap.Error(err))
	}
}
