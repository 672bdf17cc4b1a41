package memory

import (
	"context"
	"errors"
	"testing"

	"trailing-lab/internal/domain"
	"trailing-lab/internal/storage"
)

func TestPriceSampleStore_InsertBulkAndGet(t *testing.T) {
	store := NewPriceSampleStore()
	ctx := context.Background()

	points := []*domain.PricePoint{
		{Pair: "BTC-GBP", TimestampMs: 2000, Seq: 0, Price: 101},
		{Pair: "BTC-GBP", TimestampMs: 1000, Seq: 1, Price: 100.5},
		{Pair: "BTC-GBP", TimestampMs: 1000, Seq: 0, Price: 100},
		{Pair: "ETH-GBP", TimestampMs: 1000, Seq: 0, Price: 2000},
	}

	if err := store.InsertBulk(ctx, points); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	result, err := store.GetByPair(ctx, "BTC-GBP")
	if err != nil {
		t.Fatalf("GetByPair failed: %v", err)
	}

	if len(result) != 3 {
		t.Fatalf("Expected 3 points, got %d", len(result))
	}

	want := []float64{100, 100.5, 101}
	for i, p := range result {
		if p.Price != want[i] {
			t.Errorf("point %d: price = %v, want %v", i, p.Price, want[i])
		}
	}
}

func TestPriceSampleStore_DuplicateKey(t *testing.T) {
	store := NewPriceSampleStore()
	ctx := context.Background()

	points := []*domain.PricePoint{
		{Pair: "BTC-GBP", TimestampMs: 1000, Price: 1.0},
	}

	if err := store.InsertBulk(ctx, points); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.InsertBulk(ctx, points)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestPriceSampleStore_IntraBatchDuplicate(t *testing.T) {
	store := NewPriceSampleStore()
	ctx := context.Background()

	points := []*domain.PricePoint{
		{Pair: "BTC-GBP", TimestampMs: 1000, Price: 1.0},
		{Pair: "BTC-GBP", TimestampMs: 2000, Price: 1.1},
		{Pair: "BTC-GBP", TimestampMs: 1000, Price: 1.2},
	}

	err := store.InsertBulk(ctx, points)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	// Nothing from the failed batch is stored
	result, _ := store.GetByPair(ctx, "BTC-GBP")
	if len(result) != 0 {
		t.Errorf("Expected 0 points after failed batch, got %d", len(result))
	}
}

func TestPriceSampleStore_InvalidInput(t *testing.T) {
	store := NewPriceSampleStore()
	ctx := context.Background()

	cases := map[string][]*domain.PricePoint{
		"nil point":    {nil},
		"empty pair":   {{TimestampMs: 1, Price: 1}},
		"zero price":   {{Pair: "BTC-GBP", TimestampMs: 1, Price: 0}},
		"negative seq": {{Pair: "BTC-GBP", TimestampMs: 1, Seq: -1, Price: 1}},
	}

	for name, points := range cases {
		if err := store.InsertBulk(ctx, points); !errors.Is(err, storage.ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
}

func TestPriceSampleStore_GetByTimeRange(t *testing.T) {
	store := NewPriceSampleStore()
	ctx := context.Background()

	points := []*domain.PricePoint{
		{Pair: "BTC-GBP", TimestampMs: 1000, Price: 1.0},
		{Pair: "BTC-GBP", TimestampMs: 2000, Price: 1.1},
		{Pair: "BTC-GBP", TimestampMs: 3000, Price: 1.2},
		{Pair: "BTC-GBP", TimestampMs: 4000, Price: 1.3},
	}
	if err := store.InsertBulk(ctx, points); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	result, err := store.GetByTimeRange(ctx, "BTC-GBP", 2000, 3000)
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}

	if len(result) != 2 {
		t.Fatalf("Expected 2 points in range, got %d", len(result))
	}
	if result[0].TimestampMs != 2000 || result[1].TimestampMs != 3000 {
		t.Errorf("Unexpected range: %d..%d", result[0].TimestampMs, result[1].TimestampMs)
	}
}

func TestPriceSampleStore_GetTimeRange(t *testing.T) {
	store := NewPriceSampleStore()
	ctx := context.Background()

	if _, _, err := store.GetTimeRange(ctx, "BTC-GBP"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on empty store, got %v", err)
	}

	points := []*domain.PricePoint{
		{Pair: "BTC-GBP", TimestampMs: 3000, Price: 1.0},
		{Pair: "BTC-GBP", TimestampMs: 1000, Price: 1.1},
		{Pair: "ETH-GBP", TimestampMs: 9000, Price: 1.2},
	}
	if err := store.InsertBulk(ctx, points); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	minTs, maxTs, err := store.GetTimeRange(ctx, "BTC-GBP")
	if err != nil {
		t.Fatalf("GetTimeRange failed: %v", err)
	}
	if minTs != 1000 || maxTs != 3000 {
		t.Errorf("GetTimeRange = (%d, %d), want (1000, 3000)", minTs, maxTs)
	}
}

func TestPriceSampleStore_ReturnsCopies(t *testing.T) {
	store := NewPriceSampleStore()
	ctx := context.Background()

	point := &domain.PricePoint{Pair: "BTC-GBP", TimestampMs: 1000, Price: 1.0}
	if err := store.InsertBulk(ctx, []*domain.PricePoint{point}); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	point.Price = 99

	result, _ := store.GetByPair(ctx, "BTC-GBP")
	result[0].Price = 42

	again, _ := store.GetByPair(ctx, "BTC-GBP")
	if again[0].Price != 1.0 {
		t.Errorf("stored point was mutated: price = %v", again[0].Price)
	}
}
