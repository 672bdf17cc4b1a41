package reporting

import (
	"context"
	"math"
	"time"

	"trailing-lab/internal/domain"
	"trailing-lab/internal/replay"
	"trailing-lab/internal/storage"
	"trailing-lab/internal/strategy"
)

// RunMeta describes where a replay came from.
type RunMeta struct {
	RunID  string
	Pair   string
	Source string
	Params domain.StrategyParams
	Ledger domain.LedgerConfig
	Run    domain.RunConfig
}

// Generator produces reports from replay results or archived runs.
type Generator struct {
	runStore storage.RunStore
	now      func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator. runStore may be nil when
// reports are only built from fresh results.
func NewGenerator(runStore storage.RunStore) *Generator {
	return &Generator{
		runStore: runStore,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// FromResult builds a report for a replay that just finished.
func (g *Generator) FromResult(res *replay.Result, meta RunMeta) *Report {
	r := g.base(meta, res.Results)
	r.Digest = res.Digest
	r.FromMs = res.FromMs
	r.ToMs = res.ToMs
	r.TicksProcessed = res.TicksProcessed
	r.TicksDropped = res.TicksDropped
	return r
}

// FromRun builds a report for an archived run.
func (g *Generator) FromRun(run *domain.BacktestRun) *Report {
	r := g.base(RunMeta{
		RunID:  run.RunID,
		Pair:   run.Pair,
		Source: run.Source,
		Params: run.Params,
		Ledger: run.Ledger,
		Run:    run.Run,
	}, run.Results)
	r.Digest = run.Digest
	r.FromMs = run.FromMs
	r.ToMs = run.ToMs
	r.TicksProcessed = run.TicksProcessed
	return r
}

// Generate loads an archived run and builds its report.
func (g *Generator) Generate(ctx context.Context, runID string) (*Report, error) {
	run, err := g.runStore.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	return g.FromRun(run), nil
}

func (g *Generator) base(meta RunMeta, results domain.Results) *Report {
	trades := append([]domain.Trade(nil), results.Trades...)
	roundTrips, open := pairRoundTrips(trades)

	return &Report{
		GeneratedAt: g.now(),
		RunID:       meta.RunID,
		Pair:        meta.Pair,
		Source:      meta.Source,
		StrategyID:  strategy.ID(meta.Params),
		Params:      meta.Params,
		Ledger:      meta.Ledger,
		Run:         meta.Run,
		Summary:     summarize(results, roundTrips, open),
		Stats:       computeStats(roundTrips),
		Trades:      trades,
		RoundTrips:  roundTrips,
	}
}

// pairRoundTrips matches each BUY with the next SELL. It also reports
// whether a BUY is left open at the end.
func pairRoundTrips(trades []domain.Trade) ([]RoundTripRow, bool) {
	var (
		rows  []RoundTripRow
		entry *domain.Trade
	)
	for i := range trades {
		t := &trades[i]
		switch t.Side {
		case domain.SideBuy:
			entry = t
		case domain.SideSell:
			if entry == nil {
				continue
			}
			in := -entry.QuoteQty
			out := t.QuoteQty
			row := RoundTripRow{
				EntryTimeMs: entry.TimestampMs,
				ExitTimeMs:  t.TimestampMs,
				EntryPrice:  entry.Price,
				ExitPrice:   t.Price,
				QuoteIn:     in,
				QuoteOut:    out,
				PnL:         out - in,
				HoldMs:      t.TimestampMs - entry.TimestampMs,
			}
			if in > 0 {
				row.ReturnPct = (out - in) / in * 100
			}
			rows = append(rows, row)
			entry = nil
		}
	}
	return rows, entry != nil
}

func summarize(results domain.Results, roundTrips []RoundTripRow, open bool) Summary {
	s := Summary{
		StartQuote:     results.StartQuote,
		EndQuote:       results.EndQuote,
		BaseEndQty:     results.BaseEndQty,
		RealizedPnL:    results.RealizedPnL,
		MaxDrawdownPct: results.MaxDrawdownPct,
		TradeCount:     len(results.Trades),
		RoundTrips:     len(roundTrips),
		OpenPosition:   open,
	}
	if results.StartQuote != 0 {
		s.ReturnPct = (results.EndQuote - results.StartQuote) / results.StartQuote * 100
	}
	for _, rt := range roundTrips {
		if rt.PnL > 0 {
			s.Wins++
		}
	}
	if s.RoundTrips > 0 {
		s.WinRate = float64(s.Wins) / float64(s.RoundTrips)
	}
	if math.IsNaN(s.ReturnPct) || math.IsInf(s.ReturnPct, 0) {
		s.ReturnPct = 0
	}
	return s
}
