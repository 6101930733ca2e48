package memory

import (
	"context"
	"errors"
	"testing"

	"perp-strategy-lab/internal/domain"
	"perp-strategy-lab/internal/storage"
)

func order(id string, exitTime int64, net float64) domain.Order {
	return domain.Order{
		ID:         id,
		Symbol:     "BTCUSDT",
		Direction:  domain.DirectionLong,
		ExitTime:   exitTime,
		NetPnl:     net,
		ExitReason: domain.ExitReasonManual,
		Signal:     domain.SignalContext{Tags: []string{"ema_cross"}},
	}
}

func TestOrderStore_Ordering(t *testing.T) {
	store := NewOrderStore()
	ctx := context.Background()

	orders := []domain.Order{order("c", 2000, 1), order("b", 1000, 2), order("a", 2000, 3)}
	if err := store.InsertBulk(ctx, "paper", orders); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByPortfolio(ctx, "paper")
	if err != nil {
		t.Fatalf("GetByPortfolio failed: %v", err)
	}
	want := []string{"b", "a", "c"}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
}

func TestOrderStore_DuplicateKey(t *testing.T) {
	store := NewOrderStore()
	ctx := context.Background()

	o := order("o1", 1000, 1)
	if err := store.Insert(ctx, "paper", &o); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if err := store.Insert(ctx, "paper", &o); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
	if err := store.Insert(ctx, "other", &o); err != nil {
		t.Errorf("same id in another portfolio must be accepted: %v", err)
	}
}

func TestOrderStore_InvalidInput(t *testing.T) {
	store := NewOrderStore()
	ctx := context.Background()

	if err := store.Insert(ctx, "paper", nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for nil order, got %v", err)
	}
	if err := store.InsertBulk(ctx, "paper", []domain.Order{{}}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for missing id, got %v", err)
	}
}

func TestOrderStore_GetByTimeRange(t *testing.T) {
	store := NewOrderStore()
	ctx := context.Background()

	store.InsertBulk(ctx, "paper", []domain.Order{order("a", 1000, 1), order("b", 2000, 1), order("c", 3000, 1)})

	got, err := store.GetByTimeRange(ctx, "paper", 1500, 3000)
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "c" {
		t.Errorf("unexpected range result: %+v", got)
	}
}

func TestOrderStore_ReturnsCopies(t *testing.T) {
	store := NewOrderStore()
	ctx := context.Background()
	store.InsertBulk(ctx, "paper", []domain.Order{order("a", 1000, 1)})

	got, _ := store.GetByPortfolio(ctx, "paper")
	got[0].Signal.Tags[0] = "mutated"

	again, _ := store.GetByPortfolio(ctx, "paper")
	if again[0].Signal.Tags[0] != "ema_cross" {
		t.Error("store shares signal tags with callers")
	}
}
