package reporting

import (
	"encoding/csv"
	"io"
	"strconv"

	"trailing-lab/internal/domain"
	"trailing-lab/internal/strategy"
)

var tradesHeader = []string{
	"index", "side", "time", "timestamp_ms", "price", "base_qty", "quote_qty",
}

// RenderTradesCSV writes the trade list as CSV. Quantities keep full
// precision so the file can be reloaded.
func RenderTradesCSV(w io.Writer, trades []domain.Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tradesHeader); err != nil {
		return err
	}
	for i, t := range trades {
		row := []string{
			strconv.Itoa(i),
			string(t.Side),
			t.Time.String(),
			strconv.FormatInt(t.TimestampMs, 10),
			formatFloat(t.Price),
			formatFloat(t.BaseQty),
			formatFloat(t.QuoteQty),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

var runsHeader = []string{
	"run_id", "created_at", "pair", "source", "strategy_id",
	"ticks_processed", "trades", "start_quote", "end_quote", "realized_pnl", "max_drawdown_pct", "digest",
}

// RenderRunsCSV writes a summary row per archived run.
func RenderRunsCSV(w io.Writer, runs []*domain.BacktestRun) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(runsHeader); err != nil {
		return err
	}
	for _, run := range runs {
		row := []string{
			run.RunID,
			run.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
			run.Pair,
			run.Source,
			strategy.ID(run.Params),
			strconv.Itoa(run.TicksProcessed),
			strconv.Itoa(run.TradeCount),
			quote(run.Results.StartQuote),
			quote(run.Results.EndQuote),
			quote(run.Results.RealizedPnL),
			fixed(run.Results.MaxDrawdownPct, percentPlaces),
			run.Digest,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
