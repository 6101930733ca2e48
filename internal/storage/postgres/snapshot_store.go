package postgres

import (
	"context"
	"fmt"

	"perp-strategy-lab/internal/domain"
	"perp-strategy-lab/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using PostgreSQL.
// The state is stored as one JSONB document per portfolio.
type SnapshotStore struct {
	pool *Pool
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(pool *Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Save stores st as the current snapshot of portfolioID, replacing any previous one.
func (s *SnapshotStore) Save(ctx context.Context, portfolioID string, st *domain.PortfolioState) error {
	if portfolioID == "" || st == nil {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO portfolio_snapshots (portfolio_id, state, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (portfolio_id) DO UPDATE
		SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at
	`

	if _, err := s.pool.Exec(ctx, query, portfolioID, st, st.LastUpdate); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load retrieves the current snapshot. Returns ErrNotFound if none was saved.
func (s *SnapshotStore) Load(ctx context.Context, portfolioID string) (*domain.PortfolioState, error) {
	query := `SELECT state FROM portfolio_snapshots WHERE portfolio_id = $1`

	var st domain.PortfolioState
	if err := s.pool.QueryRow(ctx, query, portfolioID).Scan(&st); err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return &st, nil
}
