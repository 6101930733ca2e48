package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perp-strategy-lab/internal/domain"
	"perp-strategy-lab/internal/storage"
)

func TestWalkForwardStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewWalkForwardStore(pool)
	ctx := context.Background()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	report := &domain.WalkForwardReport{
		ID:            "wf-1",
		Strategy:      "trend",
		CreatedAt:     1000,
		WindowMonths:  3,
		InSampleRatio: 0.7,
		Windows: []domain.WalkForwardWindow{{
			Index:      0,
			Start:      start,
			Split:      start.AddDate(0, 2, 0),
			End:        start.AddDate(0, 3, 0),
			BestParams: []domain.ParamValue{{Name: "leverage", Value: 3}},
			Efficiency: 0.6,
		}},
		ProcessedWindows:  1,
		OverallEfficiency: 0.6,
		Verdict:           domain.VerdictPass,
		Summary:           "ok",
	}
	require.NoError(t, store.Insert(ctx, report))
	assert.ErrorIs(t, store.Insert(ctx, report), storage.ErrDuplicateKey)

	got, err := store.GetByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictPass, got.Verdict)
	require.Len(t, got.Windows, 1)
	assert.True(t, got.Windows[0].Split.Equal(report.Windows[0].Split))
	assert.Equal(t, report.Windows[0].BestParams, got.Windows[0].BestParams)

	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
