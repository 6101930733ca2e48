package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perp-strategy-lab/internal/domain"
	"perp-strategy-lab/internal/storage"
)

func testOrder(id string, exitTime int64) domain.Order {
	return domain.Order{
		ID:             id,
		PositionID:     "pos-" + id,
		Symbol:         "BTCUSDT",
		Direction:      domain.DirectionLong,
		EntryPrice:     100,
		ExitPrice:      110,
		EntryTime:      exitTime - 3_600_000,
		ExitTime:       exitTime,
		Quantity:       2,
		QuantityClosed: 2,
		Leverage:       2,
		Margin:         100,
		GrossPnl:       20,
		Fees:           0.5,
		Funding:        0.1,
		NetPnl:         19.4,
		PnlPercent:     19.4,
		ExitReason:     domain.ExitReasonTP1,
		DurationMs:     3_600_000,
		Signal:         domain.SignalContext{Score: 80, ModelProbability: 70, Tags: []string{"rsi", "macd"}},
	}
}

func TestOrderStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewOrderStore(pool)
	ctx := context.Background()

	o1 := testOrder("o-1", 2000)
	o2 := testOrder("o-2", 1000)
	require.NoError(t, store.Insert(ctx, "paper", &o1))
	require.NoError(t, store.InsertBulk(ctx, "paper", []domain.Order{o2}))
	other := testOrder("o-3", 1500)
	require.NoError(t, store.Insert(ctx, "other", &other))

	got, err := store.GetByPortfolio(ctx, "paper")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, o2, got[0])
	assert.Equal(t, o1, got[1])

	ranged, err := store.GetByTimeRange(ctx, "paper", 1500, 2000)
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, "o-1", ranged[0].ID)
}

func TestOrderStore_Duplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewOrderStore(pool)
	ctx := context.Background()

	o := testOrder("o-1", 1000)
	require.NoError(t, store.Insert(ctx, "paper", &o))
	assert.ErrorIs(t, store.Insert(ctx, "paper", &o), storage.ErrDuplicateKey)

	// bulk insert is atomic
	err := store.InsertBulk(ctx, "paper", []domain.Order{testOrder("o-2", 2000), o})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	got, err := store.GetByPortfolio(ctx, "paper")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestOrderStore_InvalidInput(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewOrderStore(pool)
	ctx := context.Background()

	assert.ErrorIs(t, store.Insert(ctx, "", &domain.Order{ID: "x"}), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Insert(ctx, "paper", nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.InsertBulk(ctx, "paper", []domain.Order{{}}), storage.ErrInvalidInput)
}
