package ingestion

import (
	"errors"
	"testing"

	"trailing-lab/internal/domain"
)

func TestSortPricePoints(t *testing.T) {
	// Intentionally unordered points
	points := []*domain.PricePoint{
		{Pair: "BTC-GBP", TimestampMs: 2000, Seq: 0},
		{Pair: "BTC-GBP", TimestampMs: 1000, Seq: 1},
		{Pair: "ETH-GBP", TimestampMs: 500, Seq: 0},
		{Pair: "BTC-GBP", TimestampMs: 1000, Seq: 0},
	}

	SortPricePoints(points)

	// Verify order: (pair ASC, timestamp_ms ASC, seq ASC)
	expected := []struct {
		pair string
		ts   int64
		seq  int
	}{
		{"BTC-GBP", 1000, 0},
		{"BTC-GBP", 1000, 1},
		{"BTC-GBP", 2000, 0},
		{"ETH-GBP", 500, 0},
	}

	for i, exp := range expected {
		p := points[i]
		if p.Pair != exp.pair || p.TimestampMs != exp.ts || p.Seq != exp.seq {
			t.Errorf("Index %d: got (%s, %d, %d), want (%s, %d, %d)",
				i, p.Pair, p.TimestampMs, p.Seq, exp.pair, exp.ts, exp.seq)
		}
	}
}

func TestSortPricePoints_Empty(t *testing.T) {
	var points []*domain.PricePoint
	SortPricePoints(points) // Should not panic
}

func TestValidatePricePointOrdering(t *testing.T) {
	ordered := []*domain.PricePoint{
		{Pair: "BTC-GBP", TimestampMs: 1000, Seq: 0},
		{Pair: "BTC-GBP", TimestampMs: 1000, Seq: 1},
		{Pair: "BTC-GBP", TimestampMs: 2000, Seq: 0},
	}
	if err := ValidatePricePointOrdering(ordered); err != nil {
		t.Errorf("expected nil error for ordered points, got %v", err)
	}

	unordered := []*domain.PricePoint{
		{Pair: "BTC-GBP", TimestampMs: 2000, Seq: 0},
		{Pair: "BTC-GBP", TimestampMs: 1000, Seq: 0},
	}
	if err := ValidatePricePointOrdering(unordered); !errors.Is(err, ErrInvalidOrdering) {
		t.Errorf("expected ErrInvalidOrdering, got %v", err)
	}

	duplicate := []*domain.PricePoint{
		{Pair: "BTC-GBP", TimestampMs: 1000, Seq: 0},
		{Pair: "BTC-GBP", TimestampMs: 1000, Seq: 0},
	}
	if err := ValidatePricePointOrdering(duplicate); !errors.Is(err, ErrInvalidOrdering) {
		t.Errorf("expected ErrInvalidOrdering for duplicates, got %v", err)
	}
}

func TestToPricePoints(t *testing.T) {
	ticks := []domain.Tick{
		{Time: domain.Text("2024-01-01T00:00:00Z"), Price: 100},
		{Time: domain.Text("2024-01-01T00:00:00Z"), Price: 101},
		{Time: domain.Text("not a time"), Price: 102},
		{Time: domain.Millis(1704067201000), Price: 0},
		{Time: domain.Millis(1704067201000), Price: 103},
	}

	points, skipped := ToPricePoints("BTC-GBP", ticks)
	if skipped != 2 {
		t.Errorf("skipped: got %d, want 2", skipped)
	}
	if len(points) != 3 {
		t.Fatalf("len: got %d, want 3", len(points))
	}

	want := []domain.PricePoint{
		{Pair: "BTC-GBP", TimestampMs: 1704067200000, Seq: 0, Price: 100},
		{Pair: "BTC-GBP", TimestampMs: 1704067200000, Seq: 1, Price: 101},
		{Pair: "BTC-GBP", TimestampMs: 1704067201000, Seq: 0, Price: 103},
	}
	for i, w := range want {
		if *points[i] != w {
			t.Errorf("Index %d: got %+v, want %+v", i, *points[i], w)
		}
	}
	if err := ValidatePricePointOrdering(points); err != nil {
		t.Errorf("converted points should be ordered: %v", err)
	}
}

func TestToTicks(t *testing.T) {
	ticks := ToTicks([]*domain.PricePoint{{Pair: "BTC-GBP", TimestampMs: 1000, Price: 1.5}})
	if len(ticks) != 1 {
		t.Fatalf("len: got %d, want 1", len(ticks))
	}
	if ms, ok := ticks[0].Time.Numeric(); !ok || ms != 1000 {
		t.Errorf("time: got %v, want 1000", ticks[0].Time)
	}
	if ticks[0].Price != 1.5 {
		t.Errorf("price: got %v, want 1.5", ticks[0].Price)
	}
}
