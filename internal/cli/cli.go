// Package cli holds the wiring shared by the commands: configuration,
// logging, metrics, storage selection, input files and report output.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"perp-strategy-lab/internal/config"
	"perp-strategy-lab/internal/domain"
	"perp-strategy-lab/internal/logging"
	"perp-strategy-lab/internal/observability"
	"perp-strategy-lab/internal/signals"
	chstore "perp-strategy-lab/internal/storage/clickhouse"
	pgstore "perp-strategy-lab/internal/storage/postgres"
)

const metricsNamespace = "perp_strategy_lab"

// Env bundles the collaborators every command builds from its config file.
type Env struct {
	Config   *config.Config
	Strategy domain.StrategyConfig
	Logger   *zap.Logger
	Metrics  *observability.Metrics
	Registry *prometheus.Registry

	pool *pgstore.Pool
	conn *chstore.Conn
}

// Setup loads the config at path (empty = defaults and environment), builds
// the logger and a fresh metrics registry. Call Close when done.
func Setup(command, path string) (*Env, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	strategy, err := cfg.ToStrategyConfig()
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	reg := prometheus.NewRegistry()
	return &Env{
		Config:   cfg,
		Strategy: strategy,
		Logger:   logger.With(zap.String("cmd", command)),
		Metrics:  observability.NewMetrics(metricsNamespace, reg),
		Registry: reg,
	}, nil
}

// Close releases database connections and flushes the logger.
func (e *Env) Close() {
	if e.pool != nil {
		e.pool.Close()
	}
	if e.conn != nil {
		if err := e.conn.Close(); err != nil {
			e.Logger.Warn("close clickhouse", zap.Error(err))
		}
	}
	_ = e.Logger.Sync()
}

// SignalContext returns a context canceled on SIGINT or SIGTERM.
// A second signal exits the process.
func SignalContext(log *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.Info("shutting down", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
			signal.Stop(sigCh)
			return
		}
		<-sigCh
		log.Warn("forced exit")
		os.Exit(1)
	}()
	return ctx, cancel
}

// ServeMetrics serves the registry on addr at /metrics until ctx is done.
// An empty addr disables the endpoint.
func (e *Env) ServeMetrics(ctx context.Context, addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(e.Registry))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		e.Logger.Info("metrics endpoint listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.Logger.Error("metrics endpoint", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// LoadSignals reads a signal CSV. An empty path yields no signals.
func LoadSignals(path string) (signals.Provider, int, error) {
	if path == "" {
		return signals.None{}, 0, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open signals: %w", err)
	}
	defer f.Close()

	sigs, err := signals.LoadCSV(f)
	if err != nil {
		return nil, 0, fmt.Errorf("load signals %s: %w", path, err)
	}
	return signals.NewSeries(sigs), len(sigs), nil
}

// WriteOutput writes to path, or to stdout when path is empty or "-".
func WriteOutput(path string, write func(io.Writer) error) error {
	if path == "" || path == "-" {
		return write(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// WriteString is WriteOutput for a rendered report.
func WriteString(path, content string) error {
	return WriteOutput(path, func(w io.Writer) error {
		_, err := io.WriteString(w, content)
		return err
	})
}
