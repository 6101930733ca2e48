package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"

	"perp-strategy-lab/internal/domain"
	"perp-strategy-lab/internal/storage"
)

// OptimizationResultStore implements storage.OptimizationResultStore using ClickHouse.
// Params and metrics are stored as JSON next to the columns used for ranking queries.
type OptimizationResultStore struct {
	conn *Conn
}

// NewOptimizationResultStore creates a new OptimizationResultStore.
func NewOptimizationResultStore(conn *Conn) *OptimizationResultStore {
	return &OptimizationResultStore{conn: conn}
}

// Compile-time interface check.
var _ storage.OptimizationResultStore = (*OptimizationResultStore)(nil)

// InsertBulk adds entries. Fails entire batch on duplicate (run_id, index).
func (s *OptimizationResultStore) InsertBulk(ctx context.Context, entries []*domain.OptimizationEntry) error {
	if len(entries) == 0 {
		return nil
	}

	type key struct {
		runID string
		index int
	}
	seen := make(map[key]struct{}, len(entries))
	runs := make(map[string]struct{})
	for _, e := range entries {
		if e == nil || e.RunID == "" || e.Index < 0 {
			return storage.ErrInvalidInput
		}
		k := key{e.RunID, e.Index}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
		runs[e.RunID] = struct{}{}
	}

	for runID := range runs {
		stored, err := s.indexes(ctx, runID)
		if err != nil {
			return fmt.Errorf("check existing entries: %w", err)
		}
		for idx := range stored {
			if _, exists := seen[key{runID, idx}]; exists {
				return storage.ErrDuplicateKey
			}
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO optimization_entries (
			run_id, idx, combo_id, params, metrics, risk_adjusted_score,
			rank, rank_profit, rank_sharpe, rank_drawdown, rank_risk_adjusted,
			total_pnl, sharpe_ratio, max_drawdown_pct, total_trades
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range entries {
		params, err := json.Marshal(e.Params)
		if err != nil {
			return fmt.Errorf("encode params: %w", err)
		}
		metrics, err := json.Marshal(e.Metrics)
		if err != nil {
			return fmt.Errorf("encode metrics: %w", err)
		}
		err = batch.Append(
			e.RunID, uint32(e.Index), e.ComboID, string(params), string(metrics), e.RiskAdjustedScore,
			uint32(e.Rank), uint32(e.Ranks.Profit), uint32(e.Ranks.Sharpe), uint32(e.Ranks.Drawdown), uint32(e.Ranks.RiskAdjusted),
			e.Metrics.TotalPnl, e.Metrics.SharpeRatio, e.Metrics.MaxDrawdownPct, uint32(e.Metrics.TotalTrades),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByRunID retrieves all entries of a run, ordered by rank ASC, index ASC.
func (s *OptimizationResultStore) GetByRunID(ctx context.Context, runID string) ([]*domain.OptimizationEntry, error) {
	query := `
		SELECT
			run_id, idx, combo_id, params, metrics, risk_adjusted_score,
			rank, rank_profit, rank_sharpe, rank_drawdown, rank_risk_adjusted
		FROM optimization_entries
		WHERE run_id = ?
		ORDER BY rank ASC, idx ASC
	`

	rows, err := s.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query entries by run id: %w", err)
	}
	defer rows.Close()

	return scanOptimizationEntries(rows)
}

func (s *OptimizationResultStore) indexes(ctx context.Context, runID string) (map[int]struct{}, error) {
	rows, err := s.conn.Query(ctx, `SELECT idx FROM optimization_entries WHERE run_id = ?`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int]struct{})
	for rows.Next() {
		var idx uint32
		if err := rows.Scan(&idx); err != nil {
			return nil, err
		}
		out[int(idx)] = struct{}{}
	}
	return out, rows.Err()
}

func scanOptimizationEntries(rows chRows) ([]*domain.OptimizationEntry, error) {
	var entries []*domain.OptimizationEntry

	for rows.Next() {
		var (
			e                                         domain.OptimizationEntry
			idx, rank, rProfit, rSharpe, rDD, rRiskAd uint32
			params, metrics                           string
		)
		err := rows.Scan(
			&e.RunID, &idx, &e.ComboID, &params, &metrics, &e.RiskAdjustedScore,
			&rank, &rProfit, &rSharpe, &rDD, &rRiskAd,
		)
		if err != nil {
			return nil, fmt.Errorf("scan optimization entry row: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &e.Params); err != nil {
			return nil, fmt.Errorf("decode params of %s/%d: %w", e.RunID, idx, err)
		}
		if err := json.Unmarshal([]byte(metrics), &e.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics of %s/%d: %w", e.RunID, idx, err)
		}

		e.Index = int(idx)
		e.Rank = int(rank)
		e.Ranks = domain.Ranks{Profit: int(rProfit), Sharpe: int(rSharpe), Drawdown: int(rDD), RiskAdjusted: int(rRiskAd)}
		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate optimization entry rows: %w", err)
	}
	return entries, nil
}
