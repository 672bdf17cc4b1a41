package verification

import (
	"context"
	"errors"
	"testing"
	"time"

	"trailing-lab/internal/domain"
	"trailing-lab/internal/ingestion"
	"trailing-lab/internal/replay"
	"trailing-lab/internal/storage/memory"
)

const baseMs = int64(1_700_000_000_000)

func testParams() domain.StrategyParams {
	return domain.StrategyParams{
		WindowDays:             1,
		BuyBelowPct:            5,
		TrailingBuyPct:         1,
		TrailingStopPct:        2,
		ActivationThresholdPct: 1,
	}
}

func testLedger() domain.LedgerConfig {
	return domain.LedgerConfig{InitialQuote: 1000, FeePct: 0.5}
}

func testRunConfig() domain.RunConfig {
	return domain.RunConfig{InvestQuote: 100, Reenter: true}
}

// buildPath returns 100 flat ticks at 100 followed by prices, one per second.
func buildPath(prices ...float64) []domain.Tick {
	ticks := make([]domain.Tick, 0, 100+len(prices))
	for i := 0; i < 100; i++ {
		ticks = append(ticks, domain.Tick{Time: domain.Millis(baseMs + int64(i)*1000), Price: 100})
	}
	for i, p := range prices {
		ticks = append(ticks, domain.Tick{Time: domain.Millis(baseMs + int64(100+i)*1000), Price: p})
	}
	return ticks
}

func sampleResults(trades ...domain.Trade) domain.Results {
	return domain.Results{
		Trades:         trades,
		StartQuote:     100,
		EndQuote:       1012.3,
		BaseEndQty:     0,
		RealizedPnL:    12.3,
		MaxDrawdownPct: 1.5,
	}
}

func TestCompareResults_ExactMatch(t *testing.T) {
	trades := []domain.Trade{
		{Side: domain.SideBuy, TimestampMs: 1000, Price: 95, BaseQty: 1.047, QuoteQty: -100},
		{Side: domain.SideSell, TimestampMs: 2000, Price: 107, BaseQty: -1.047, QuoteQty: 111.47},
	}

	divergences := CompareResults(sampleResults(trades...), sampleResults(trades...))

	if len(divergences) != 0 {
		t.Errorf("Expected 0 divergences, got %d: %v", len(divergences), divergences)
	}
}

func TestCompareResults_WithinTolerance(t *testing.T) {
	stored := sampleResults()
	replayed := sampleResults()
	replayed.EndQuote += FloatTolerance / 2

	if divergences := CompareResults(stored, replayed); len(divergences) != 0 {
		t.Errorf("Expected 0 divergences within tolerance, got %v", divergences)
	}

	replayed.EndQuote += FloatTolerance * 2
	divergences := CompareResults(stored, replayed)
	if len(divergences) != 1 || divergences[0].Field != "EndQuote" {
		t.Errorf("Expected EndQuote divergence, got %v", divergences)
	}
}

func TestCompareResults_TradeDivergence(t *testing.T) {
	stored := sampleResults(
		domain.Trade{Side: domain.SideBuy, TimestampMs: 1000, Price: 95, BaseQty: 1, QuoteQty: -95},
		domain.Trade{Side: domain.SideSell, TimestampMs: 2000, Price: 107, BaseQty: -1, QuoteQty: 107},
	)
	replayed := sampleResults(
		domain.Trade{Side: domain.SideBuy, TimestampMs: 1500, Price: 95, BaseQty: 1, QuoteQty: -95},
	)

	divergences := CompareResults(stored, replayed)

	fields := make(map[string]bool)
	for _, d := range divergences {
		fields[d.Field] = true
	}
	for _, want := range []string{"TradeCount", "Trades[0].TimestampMs"} {
		if !fields[want] {
			t.Errorf("Expected divergence on %s, got %v", want, divergences)
		}
	}
	if len(divergences) != 2 {
		t.Errorf("Expected 2 divergences, got %d: %v", len(divergences), divergences)
	}
}

func TestCompareResults_SideMismatch(t *testing.T) {
	stored := sampleResults(domain.Trade{Side: domain.SideBuy, Price: 1})
	replayed := sampleResults(domain.Trade{Side: domain.SideSell, Price: 1})

	divergences := CompareResults(stored, replayed)
	if len(divergences) != 1 || divergences[0].Field != "Trades[0].Side" {
		t.Errorf("Expected side divergence, got %v", divergences)
	}
	if divergences[0].Expected != domain.SideBuy || divergences[0].Actual != domain.SideSell {
		t.Errorf("Unexpected values: %+v", divergences[0])
	}
}

// archive runs a backtest over ticks, stores the samples and the run.
func archive(t *testing.T, runs *memory.RunStore, prices *memory.PriceSampleStore, runID string, ticks []domain.Tick) *domain.BacktestRun {
	t.Helper()
	ctx := context.Background()

	points, _ := ingestion.ToPricePoints("BTC-GBP", ticks)
	if err := prices.InsertBulk(ctx, points); err != nil {
		t.Fatalf("InsertBulk: %v", err)
	}

	opts := replay.Options{Run: testRunConfig(), Pair: "BTC-GBP"}
	res, err := replay.Backtest(ctx, testParams(), testLedger(), opts, ingestion.NewSliceSource(ticks))
	if err != nil {
		t.Fatalf("Backtest: %v", err)
	}

	run := &domain.BacktestRun{
		RunID:          runID,
		Pair:           "BTC-GBP",
		Source:         "test",
		Params:         testParams(),
		Ledger:         testLedger(),
		Run:            testRunConfig(),
		FromMs:         res.FromMs,
		ToMs:           res.ToMs,
		TicksProcessed: res.TicksProcessed,
		Results:        res.Results,
		Digest:         res.Digest,
		CreatedAt:      time.Unix(0, 0).UTC(),
	}
	if err := runs.Insert(ctx, run); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return run
}

func TestRunVerifier_VerifyRun_Match(t *testing.T) {
	runs := memory.NewRunStore()
	prices := memory.NewPriceSampleStore()
	run := archive(t, runs, prices, "run-1", buildPath(94, 95, 110, 107))

	if len(run.Results.Trades) != 2 {
		t.Fatalf("Expected a round trip to verify, got %d trades", len(run.Results.Trades))
	}

	verifier := NewRunVerifier(RunVerifierOptions{RunStore: runs, PriceStore: prices})
	result, err := verifier.VerifyRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("VerifyRun: %v", err)
	}

	if !result.Match {
		t.Errorf("Expected match, got divergences: %v", result.Divergences)
	}
	if result.StoredDigest != result.ReplayedDigest {
		t.Errorf("Digest mismatch: %s vs %s", result.StoredDigest, result.ReplayedDigest)
	}
}

func TestRunVerifier_VerifyRun_Divergent(t *testing.T) {
	ctx := context.Background()
	runs := memory.NewRunStore()
	prices := memory.NewPriceSampleStore()
	run := archive(t, runs, prices, "run-1", buildPath(94, 95, 110, 107))

	tampered := *run
	tampered.RunID = "run-2"
	tampered.Digest = "tampered"
	tampered.Results.EndQuote += 1
	if err := runs.Insert(ctx, &tampered); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	verifier := NewRunVerifier(RunVerifierOptions{RunStore: runs, PriceStore: prices})
	result, err := verifier.VerifyRun(ctx, "run-2")
	if err != nil {
		t.Fatalf("VerifyRun: %v", err)
	}

	if result.Match {
		t.Fatal("Expected divergence for tampered run")
	}
	fields := make(map[string]bool)
	for _, d := range result.Divergences {
		fields[d.Field] = true
	}
	if !fields["EndQuote"] || !fields["Digest"] {
		t.Errorf("Expected EndQuote and Digest divergences, got %v", result.Divergences)
	}

	report, err := verifier.VerifyAll(ctx, "", 0)
	if err != nil {
		t.Fatalf("VerifyAll: %v", err)
	}
	if report.TotalRuns != 2 || report.MatchedRuns != 1 || report.DivergentRuns != 1 {
		t.Errorf("Unexpected report counts: total=%d matched=%d divergent=%d",
			report.TotalRuns, report.MatchedRuns, report.DivergentRuns)
	}
}

func TestRunVerifier_VerifyRun_NotFound(t *testing.T) {
	verifier := NewRunVerifier(RunVerifierOptions{
		RunStore:   memory.NewRunStore(),
		PriceStore: memory.NewPriceSampleStore(),
	})

	_, err := verifier.VerifyRun(context.Background(), "missing")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound, got %v", err)
	}
}

func TestVerifyDeterminism(t *testing.T) {
	ticks := buildPath(94, 92, 92.5, 90, 91, 99, 104, 101.5, 95, 94, 95.5)
	opts := replay.Options{Run: testRunConfig(), Pair: "BTC-GBP"}

	divergences, err := VerifyDeterminism(context.Background(), ticks, testParams(), testLedger(), opts)
	if err != nil {
		t.Fatalf("VerifyDeterminism: %v", err)
	}
	if len(divergences) != 0 {
		t.Errorf("Expected identical replays, got %v", divergences)
	}
}

func TestCompareReplays_DetectsDifferentParams(t *testing.T) {
	ctx := context.Background()
	ticks := buildPath(94, 95, 110, 107)
	opts := replay.Options{Run: testRunConfig(), Pair: "BTC-GBP"}

	a, err := replay.Backtest(ctx, testParams(), testLedger(), opts, ingestion.NewSliceSource(ticks))
	if err != nil {
		t.Fatalf("Backtest: %v", err)
	}
	wide := testParams()
	wide.BuyBelowPct = 10
	b, err := replay.Backtest(ctx, wide, testLedger(), opts, ingestion.NewSliceSource(ticks))
	if err != nil {
		t.Fatalf("Backtest: %v", err)
	}

	if divergences := CompareReplays(a, b); len(divergences) == 0 {
		t.Error("Expected divergences between different parameter sets")
	}
}
