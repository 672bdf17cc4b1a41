package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"trailing-lab/internal/domain"
	"trailing-lab/internal/storage"
)

func newTestRun(id, pair string, createdAt time.Time) *domain.BacktestRun {
	return &domain.BacktestRun{
		RunID:  id,
		Pair:   pair,
		Source: "csv:test.csv",
		Params: domain.DefaultStrategyParams,
		Ledger: domain.LedgerConfig{InitialQuote: 1000, FeePct: 0.5},
		Run:    domain.RunConfig{InvestQuote: 100, Reenter: true},
		Results: domain.Results{
			Trades: []domain.Trade{
				{Side: domain.SideBuy, Time: domain.Millis(1000), TimestampMs: 1000, Price: 95, BaseQty: 1.047, QuoteQty: -100},
				{Side: domain.SideSell, Time: domain.Millis(5000), TimestampMs: 5000, Price: 107, BaseQty: -1.047, QuoteQty: 111.5},
			},
			StartQuote:  100,
			EndQuote:    1011.5,
			RealizedPnL: 11.5,
		},
		Digest:    "digest-" + id,
		CreatedAt: createdAt,
	}
}

func TestRunStore_InsertAndGet(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	run := newTestRun("run1", "BTC-GBP", time.Unix(100, 0).UTC())
	if err := store.Insert(ctx, run); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "run1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	if got.Digest != "digest-run1" {
		t.Errorf("Digest mismatch: got %s", got.Digest)
	}
	if len(got.Results.Trades) != 2 {
		t.Fatalf("Expected 2 trades, got %d", len(got.Results.Trades))
	}
	if got.Results.Trades[1].Price != 107 {
		t.Errorf("Trade price mismatch: got %v", got.Results.Trades[1].Price)
	}

	// Mutating the caller's copy does not affect the store
	run.Results.Trades[0].Price = 1
	got, _ = store.GetByID(ctx, "run1")
	if got.Results.Trades[0].Price != 95 {
		t.Errorf("stored trade was mutated: %v", got.Results.Trades[0].Price)
	}
}

func TestRunStore_DuplicateKey(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	run := newTestRun("run1", "BTC-GBP", time.Now())
	if err := store.Insert(ctx, run); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.Insert(ctx, run)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestRunStore_InvalidInput(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	if err := store.Insert(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("nil run: expected ErrInvalidInput, got %v", err)
	}
	if err := store.Insert(ctx, newTestRun("", "BTC-GBP", time.Now())); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("empty id: expected ErrInvalidInput, got %v", err)
	}
}

func TestRunStore_NotFound(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	_, err := store.GetByID(ctx, "nonexistent")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestRunStore_List(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	base := time.Unix(1_700_000_000, 0).UTC()
	runs := []*domain.BacktestRun{
		newTestRun("a", "BTC-GBP", base),
		newTestRun("b", "BTC-GBP", base.Add(2*time.Hour)),
		newTestRun("c", "ETH-GBP", base.Add(time.Hour)),
	}
	for _, r := range runs {
		if err := store.Insert(ctx, r); err != nil {
			t.Fatalf("Insert %s failed: %v", r.RunID, err)
		}
	}

	all, err := store.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 || all[0].RunID != "b" || all[1].RunID != "c" || all[2].RunID != "a" {
		t.Errorf("List order wrong: %v", runIDs(all))
	}
	for _, r := range all {
		if r.Results.Trades != nil {
			t.Errorf("List should not load trades for %s", r.RunID)
		}
		if r.TradeCount != 2 {
			t.Errorf("TradeCount for %s: got %d, want 2", r.RunID, r.TradeCount)
		}
	}

	btc, _ := store.List(ctx, "BTC-GBP", 0)
	if len(btc) != 2 {
		t.Errorf("Expected 2 BTC-GBP runs, got %d", len(btc))
	}

	limited, _ := store.List(ctx, "", 1)
	if len(limited) != 1 || limited[0].RunID != "b" {
		t.Errorf("limit 1 returned %v", runIDs(limited))
	}
}

func runIDs(runs []*domain.BacktestRun) []string {
	ids := make([]string, 0, len(runs))
	for _, r := range runs {
		ids = append(ids, r.RunID)
	}
	return ids
}
