package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"perp-strategy-lab/internal/domain"
	"perp-strategy-lab/internal/storage"
)

// OrderStore implements storage.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *Pool
}

// NewOrderStore creates a new OrderStore.
func NewOrderStore(pool *Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OrderStore = (*OrderStore)(nil)

const insertOrder = `
	INSERT INTO orders (
		id, portfolio_id, position_id, symbol, direction,
		entry_price, exit_price, entry_time, exit_time,
		quantity, quantity_closed, leverage, margin,
		gross_pnl, fees, funding, net_pnl, pnl_percent,
		exit_reason, duration_ms, signal
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9,
		$10, $11, $12, $13,
		$14, $15, $16, $17, $18,
		$19, $20, $21
	)
`

const selectOrders = `
	SELECT
		id, position_id, symbol, direction,
		entry_price, exit_price, entry_time, exit_time,
		quantity, quantity_closed, leverage, margin,
		gross_pnl, fees, funding, net_pnl, pnl_percent,
		exit_reason, duration_ms, signal
	FROM orders
`

// Insert adds a closed order. Returns ErrDuplicateKey if the order id exists.
func (s *OrderStore) Insert(ctx context.Context, portfolioID string, o *domain.Order) error {
	if portfolioID == "" || o == nil || o.ID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, insertOrder, orderArgs(portfolioID, o)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// InsertBulk adds multiple orders atomically. Fails entire batch on any duplicate.
func (s *OrderStore) InsertBulk(ctx context.Context, portfolioID string, orders []domain.Order) error {
	if portfolioID == "" {
		return storage.ErrInvalidInput
	}
	if len(orders) == 0 {
		return nil
	}
	for i := range orders {
		if orders[i].ID == "" {
			return storage.ErrInvalidInput
		}
	}

	return s.pool.inTx(ctx, func(tx pgx.Tx) error {
		for i := range orders {
			if _, err := tx.Exec(ctx, insertOrder, orderArgs(portfolioID, &orders[i])...); err != nil {
				if isDuplicateKeyError(err) {
					return storage.ErrDuplicateKey
				}
				return fmt.Errorf("insert order in bulk: %w", err)
			}
		}
		return nil
	})
}

// GetByPortfolio retrieves all orders of a portfolio, ordered by exit_time ASC, id ASC.
func (s *OrderStore) GetByPortfolio(ctx context.Context, portfolioID string) ([]domain.Order, error) {
	query := selectOrders + `
		WHERE portfolio_id = $1
		ORDER BY exit_time ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("get orders by portfolio: %w", err)
	}
	defer rows.Close()

	return scanOrders(rows)
}

// GetByTimeRange retrieves orders that exited within [start, end] (inclusive, Unix ms).
func (s *OrderStore) GetByTimeRange(ctx context.Context, portfolioID string, start, end int64) ([]domain.Order, error) {
	query := selectOrders + `
		WHERE portfolio_id = $1 AND exit_time >= $2 AND exit_time <= $3
		ORDER BY exit_time ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, portfolioID, start, end)
	if err != nil {
		return nil, fmt.Errorf("get orders by time range: %w", err)
	}
	defer rows.Close()

	return scanOrders(rows)
}

func orderArgs(portfolioID string, o *domain.Order) []any {
	return []any{
		o.ID, portfolioID, o.PositionID, o.Symbol, string(o.Direction),
		o.EntryPrice, o.ExitPrice, o.EntryTime, o.ExitTime,
		o.Quantity, o.QuantityClosed, o.Leverage, o.Margin,
		o.GrossPnl, o.Fees, o.Funding, o.NetPnl, o.PnlPercent,
		string(o.ExitReason), o.DurationMs, o.Signal,
	}
}

func scanOrders(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order

	for rows.Next() {
		var (
			o                 domain.Order
			direction, reason string
		)
		err := rows.Scan(
			&o.ID, &o.PositionID, &o.Symbol, &direction,
			&o.EntryPrice, &o.ExitPrice, &o.EntryTime, &o.ExitTime,
			&o.Quantity, &o.QuantityClosed, &o.Leverage, &o.Margin,
			&o.GrossPnl, &o.Fees, &o.Funding, &o.NetPnl, &o.PnlPercent,
			&reason, &o.DurationMs, &o.Signal,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		o.Direction = domain.Direction(direction)
		o.ExitReason = domain.ExitReason(reason)
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	return orders, nil
}
