// Package verification checks that backtests are reproducible: a replay of
// the same samples with the same parameters must yield the same trades,
// balances and decision digest.
package verification

import (
	"context"
	"fmt"
	"math"

	"trailing-lab/internal/domain"
	"trailing-lab/internal/replay"
)

// FloatTolerance is the tolerance for float64 comparisons.
const FloatTolerance = 1e-7

// FieldDivergence represents a mismatch between stored and replayed values.
type FieldDivergence struct {
	Field    string      `json:"field"`
	Expected interface{} `json:"expected"` // stored value
	Actual   interface{} `json:"actual"`   // replayed value
}

// VerificationResult contains the result of verifying a single run.
type VerificationResult struct {
	RunID            string            `json:"run_id"`
	Match            bool              `json:"match"`
	Divergences      []FieldDivergence `json:"divergences,omitempty"`
	StoredDigest     string            `json:"stored_digest"`
	ReplayedDigest   string            `json:"replayed_digest"`
	StoredEndQuote   float64           `json:"stored_end_quote"`
	ReplayedEndQuote float64           `json:"replayed_end_quote"`
}

// VerificationReport contains results for batch verification.
type VerificationReport struct {
	TotalRuns     int                  `json:"total_runs"`
	MatchedRuns   int                  `json:"matched_runs"`
	DivergentRuns int                  `json:"divergent_runs"`
	Results       []VerificationResult `json:"results"`
}

// Verifier replays archived runs.
type Verifier interface {
	// VerifyRun loads a stored run, replays its samples with the same
	// parameters and compares the outcome.
	VerifyRun(ctx context.Context, runID string) (*VerificationResult, error)

	// VerifyAll verifies the latest runs for a pair (all pairs when empty).
	VerifyAll(ctx context.Context, pair string, limit int) (*VerificationReport, error)
}

// CompareResults compares two ledger outcomes trade by trade.
// Uses FloatTolerance for float64 comparisons.
func CompareResults(stored, replayed domain.Results) []FieldDivergence {
	var d divergences

	d.float("StartQuote", stored.StartQuote, replayed.StartQuote)
	d.float("EndQuote", stored.EndQuote, replayed.EndQuote)
	d.float("BaseEndQty", stored.BaseEndQty, replayed.BaseEndQty)
	d.float("RealizedPnL", stored.RealizedPnL, replayed.RealizedPnL)
	d.float("MaxDrawdownPct", stored.MaxDrawdownPct, replayed.MaxDrawdownPct)

	if len(stored.Trades) != len(replayed.Trades) {
		d.add("TradeCount", len(stored.Trades), len(replayed.Trades))
	}

	n := min(len(stored.Trades), len(replayed.Trades))
	for i := 0; i < n; i++ {
		s, r := stored.Trades[i], replayed.Trades[i]
		prefix := fmt.Sprintf("Trades[%d].", i)

		if s.Side != r.Side {
			d.add(prefix+"Side", s.Side, r.Side)
		}
		if s.TimestampMs != r.TimestampMs {
			d.add(prefix+"TimestampMs", s.TimestampMs, r.TimestampMs)
		}
		d.float(prefix+"Price", s.Price, r.Price)
		d.float(prefix+"BaseQty", s.BaseQty, r.BaseQty)
		d.float(prefix+"QuoteQty", s.QuoteQty, r.QuoteQty)
	}

	return d
}

// CompareRun compares an archived run with a fresh replay of it.
func CompareRun(stored *domain.BacktestRun, replayed *replay.Result) []FieldDivergence {
	d := divergences(CompareResults(stored.Results, replayed.Results))

	if stored.Digest != replayed.Digest {
		d.add("Digest", stored.Digest, replayed.Digest)
	}
	if stored.TicksProcessed != replayed.TicksProcessed {
		d.add("TicksProcessed", stored.TicksProcessed, replayed.TicksProcessed)
	}
	if stored.FromMs != replayed.FromMs {
		d.add("FromMs", stored.FromMs, replayed.FromMs)
	}
	if stored.ToMs != replayed.ToMs {
		d.add("ToMs", stored.ToMs, replayed.ToMs)
	}

	return d
}

// CompareReplays compares two replay results, decision log included.
func CompareReplays(a, b *replay.Result) []FieldDivergence {
	d := divergences(CompareResults(a.Results, b.Results))

	if a.Digest != b.Digest {
		d.add("Digest", a.Digest, b.Digest)
	}
	if len(a.Decisions) != len(b.Decisions) {
		d.add("DecisionCount", len(a.Decisions), len(b.Decisions))
	}
	if a.TicksProcessed != b.TicksProcessed {
		d.add("TicksProcessed", a.TicksProcessed, b.TicksProcessed)
	}
	if a.TicksDropped != b.TicksDropped {
		d.add("TicksDropped", a.TicksDropped, b.TicksDropped)
	}

	return d
}

type divergences []FieldDivergence

func (d *divergences) add(field string, expected, actual interface{}) {
	*d = append(*d, FieldDivergence{Field: field, Expected: expected, Actual: actual})
}

func (d *divergences) float(field string, expected, actual float64) {
	if !floatEquals(expected, actual) {
		d.add(field, expected, actual)
	}
}

// floatEquals compares two float64 values within FloatTolerance.
func floatEquals(a, b float64) bool {
	return math.Abs(a-b) <= FloatTolerance
}
