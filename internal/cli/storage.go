package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"perp-strategy-lab/internal/backtest"
	"perp-strategy-lab/internal/domain"
	"perp-strategy-lab/internal/storage"
	chstore "perp-strategy-lab/internal/storage/clickhouse"
	"perp-strategy-lab/internal/storage/memory"
	"perp-strategy-lab/internal/storage/migrations"
	pgstore "perp-strategy-lab/internal/storage/postgres"
)

// Backend names used as the database label of query metrics.
const (
	BackendMemory     = "memory"
	BackendPostgres   = "postgres"
	BackendClickhouse = "clickhouse"
)

// postgres connects and migrates on first use. Returns nil without a DSN.
func (e *Env) postgres(ctx context.Context) (*pgstore.Pool, error) {
	if e.pool != nil || e.Config.PostgresDSN == "" {
		return e.pool, nil
	}
	pool, err := pgstore.NewPool(ctx, e.Config.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	e.Logger.Info("postgres ready")
	e.pool = pool
	return pool, nil
}

// clickhouse connects and migrates on first use. Returns nil without a DSN.
func (e *Env) clickhouse(ctx context.Context) (*chstore.Conn, error) {
	if e.conn != nil || e.Config.ClickhouseDSN == "" {
		return e.conn, nil
	}
	conn, err := migrations.RunClickhouseMigrations(ctx, e.Config.ClickhouseDSN)
	if err != nil {
		return nil, fmt.Errorf("migrate clickhouse: %w", err)
	}
	e.Logger.Info("clickhouse ready")
	e.conn = conn
	return conn, nil
}

// CandleStore returns the ClickHouse candle store when CLICKHOUSE_DSN is set,
// otherwise an empty in-memory store.
func (e *Env) CandleStore(ctx context.Context) (storage.CandleStore, string, error) {
	conn, err := e.clickhouse(ctx)
	if err != nil {
		return nil, "", err
	}
	if conn == nil {
		return memory.NewCandleStore(), BackendMemory, nil
	}
	return chstore.NewCandleStore(conn), BackendClickhouse, nil
}

// OptimizationStore returns the ClickHouse result store when CLICKHOUSE_DSN
// is set, otherwise an in-memory store.
func (e *Env) OptimizationStore(ctx context.Context) (storage.OptimizationResultStore, string, error) {
	conn, err := e.clickhouse(ctx)
	if err != nil {
		return nil, "", err
	}
	if conn == nil {
		return memory.NewOptimizationResultStore(), BackendMemory, nil
	}
	return chstore.NewOptimizationResultStore(conn), BackendClickhouse, nil
}

// LedgerStores returns the order journal and snapshot stores, backed by
// Postgres when POSTGRES_DSN is set.
func (e *Env) LedgerStores(ctx context.Context) (storage.OrderStore, storage.SnapshotStore, string, error) {
	pool, err := e.postgres(ctx)
	if err != nil {
		return nil, nil, "", err
	}
	if pool == nil {
		return memory.NewOrderStore(), memory.NewSnapshotStore(), BackendMemory, nil
	}
	return pgstore.NewOrderStore(pool), pgstore.NewSnapshotStore(pool), BackendPostgres, nil
}

// WalkForwardStore returns the report store, backed by Postgres when
// POSTGRES_DSN is set.
func (e *Env) WalkForwardStore(ctx context.Context) (storage.WalkForwardStore, string, error) {
	pool, err := e.postgres(ctx)
	if err != nil {
		return nil, "", err
	}
	if pool == nil {
		return memory.NewWalkForwardStore(), BackendMemory, nil
	}
	return pgstore.NewWalkForwardStore(pool), BackendPostgres, nil
}

// Observe records one store call in the query metrics.
func (e *Env) Observe(backend, operation string, start time.Time, err error) {
	e.Metrics.RecordDBQuery(backend, operation, time.Since(start), err)
}

// ImportCandles loads the candle CSV at path into store. Repeated timestamps
// within the file keep their first row. Symbols whose candles are already
// stored are skipped with a warning.
func (e *Env) ImportCandles(ctx context.Context, store storage.CandleStore, backend, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open candles: %w", err)
	}
	defer f.Close()

	series, err := backtest.LoadCandlesCSV(f)
	if err != nil {
		return 0, fmt.Errorf("load candles %s: %w", path, err)
	}

	imported := 0
	for symbol, candles := range series {
		candles = uniqueTimestamps(candles)

		start := time.Now()
		err := store.InsertBulk(ctx, symbol, candles)
		e.Observe(backend, "insert_candles", start, err)
		switch {
		case errors.Is(err, storage.ErrDuplicateKey):
			e.Logger.Warn("candles already stored, skipping symbol", zap.String("symbol", symbol))
			continue
		case err != nil:
			return imported, fmt.Errorf("store candles %s: %w", symbol, err)
		}
		imported += len(candles)
	}
	e.Logger.Info("candles imported",
		zap.String("path", path),
		zap.Int("symbols", len(series)),
		zap.Int("candles", imported),
	)
	return imported, nil
}

// ReadCandles reads every configured symbol over [cfg.StartDate, cfg.EndDate).
// Without configured symbols it reads all symbols in the store and sets them on cfg.
func (e *Env) ReadCandles(ctx context.Context, store storage.CandleStore, backend string, cfg *domain.StrategyConfig) (map[string][]domain.Candle, error) {
	if len(cfg.Symbols) == 0 {
		start := time.Now()
		symbols, err := store.GetSymbols(ctx)
		e.Observe(backend, "get_symbols", start, err)
		if err != nil {
			return nil, fmt.Errorf("list symbols: %w", err)
		}
		cfg.Symbols = symbols
	}

	from, to := cfg.StartDate.UnixMilli(), cfg.EndDate.UnixMilli()-1
	out := make(map[string][]domain.Candle, len(cfg.Symbols))
	for _, symbol := range cfg.Symbols {
		start := time.Now()
		candles, err := store.GetByTimeRange(ctx, symbol, from, to)
		e.Observe(backend, "get_candles", start, err)
		if err != nil {
			return nil, fmt.Errorf("read candles %s: %w", symbol, err)
		}
		out[symbol] = candles
	}
	return out, nil
}

// LoadCandles imports csvPath (when set) into the configured candle store and
// reads the strategy's range back from it.
func (e *Env) LoadCandles(ctx context.Context, csvPath string, cfg *domain.StrategyConfig) (map[string][]domain.Candle, error) {
	store, backend, err := e.CandleStore(ctx)
	if err != nil {
		return nil, err
	}
	if csvPath != "" {
		if _, err := e.ImportCandles(ctx, store, backend, csvPath); err != nil {
			return nil, err
		}
	} else if backend == BackendMemory {
		return nil, errors.New("no candle source: pass -candles or set CLICKHOUSE_DSN")
	}
	return e.ReadCandles(ctx, store, backend, cfg)
}

func uniqueTimestamps(candles []domain.Candle) []domain.Candle {
	seen := make(map[int64]struct{}, len(candles))
	out := candles[:0:0]
	for _, c := range candles {
		if _, dup := seen[c.Timestamp]; dup {
			continue
		}
		seen[c.Timestamp] = struct{}{}
		out = append(out, c)
	}
	return out
}
