package ledger

import (
	"github.com/google/uuid"

	"perp-strategy-lab/internal/idhash"
)

// IDSource assigns position and order ids.
type IDSource interface {
	PositionID(symbol string, entryTime int64, seq int) string
	OrderID(positionID string) string
}

// RandomIDs assigns random UUIDs. Used by live portfolios.
type RandomIDs struct{}

// PositionID implements IDSource.
func (RandomIDs) PositionID(string, int64, int) string { return uuid.NewString() }

// OrderID implements IDSource.
func (RandomIDs) OrderID(string) string { return uuid.NewString() }

// HashIDs derives ids from the position's inputs so replays reproduce them.
// Used by backtests.
type HashIDs struct {
	Portfolio string
}

// PositionID implements IDSource.
func (h HashIDs) PositionID(symbol string, entryTime int64, seq int) string {
	return idhash.ComputePositionID(h.Portfolio, symbol, entryTime, seq)
}

// OrderID implements IDSource.
func (HashIDs) OrderID(positionID string) string {
	return idhash.ComputeOrderID(positionID)
}

var (
	_ IDSource = RandomIDs{}
	_ IDSource = HashIDs{}
)
