package postgres

import (
	"context"
	"fmt"

	"perp-strategy-lab/internal/domain"
	"perp-strategy-lab/internal/storage"
)

// WalkForwardStore implements storage.WalkForwardStore using PostgreSQL.
type WalkForwardStore struct {
	pool *Pool
}

// NewWalkForwardStore creates a new WalkForwardStore.
func NewWalkForwardStore(pool *Pool) *WalkForwardStore {
	return &WalkForwardStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WalkForwardStore = (*WalkForwardStore)(nil)

// Insert adds a report. Returns ErrDuplicateKey if the id exists.
func (s *WalkForwardStore) Insert(ctx context.Context, r *domain.WalkForwardReport) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO walkforward_reports (id, strategy, created_at, verdict, overall_efficiency, report)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.pool.Exec(ctx, query, r.ID, r.Strategy, r.CreatedAt, string(r.Verdict), r.OverallEfficiency, r)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert walk-forward report: %w", err)
	}
	return nil
}

// GetByID retrieves a report. Returns ErrNotFound if not exists.
func (s *WalkForwardStore) GetByID(ctx context.Context, id string) (*domain.WalkForwardReport, error) {
	var r domain.WalkForwardReport
	err := s.pool.QueryRow(ctx, `SELECT report FROM walkforward_reports WHERE id = $1`, id).Scan(&r)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get walk-forward report by id: %w", err)
	}
	return &r, nil
}
