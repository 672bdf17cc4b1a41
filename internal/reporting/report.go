package reporting

import (
	"time"

	"trailing-lab/internal/domain"
)

// Report describes one backtest for display.
type Report struct {
	// Metadata
	GeneratedAt time.Time `json:"generated_at"`
	RunID       string    `json:"run_id,omitempty"` // empty for runs that were not archived
	Pair        string    `json:"pair"`
	Source      string    `json:"source,omitempty"`
	StrategyID  string    `json:"strategy_id"`
	Digest      string    `json:"digest,omitempty"`

	Params domain.StrategyParams `json:"params"`
	Ledger domain.LedgerConfig   `json:"ledger"`
	Run    domain.RunConfig      `json:"run"`

	// Replayed range
	FromMs         int64 `json:"from_ms"`
	ToMs           int64 `json:"to_ms"`
	TicksProcessed int   `json:"ticks_processed"`
	TicksDropped   int   `json:"ticks_dropped"`

	Summary    Summary        `json:"summary"`
	Stats      RoundTripStats `json:"stats"`
	Trades     []domain.Trade `json:"trades"`
	RoundTrips []RoundTripRow `json:"round_trips"`
}

// Summary contains the account outcome.
type Summary struct {
	StartQuote     float64 `json:"start_quote"`
	EndQuote       float64 `json:"end_quote"` // mark-to-market
	BaseEndQty     float64 `json:"base_end_qty"`
	RealizedPnL    float64 `json:"realized_pnl"`
	ReturnPct      float64 `json:"return_pct"` // (EndQuote - StartQuote) / StartQuote * 100, 0 if StartQuote == 0
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	TradeCount     int     `json:"trade_count"`
	RoundTrips     int     `json:"round_trips"`
	Wins           int     `json:"wins"`
	WinRate        float64 `json:"win_rate"`      // Wins / RoundTrips, 0 without round trips
	OpenPosition   bool    `json:"open_position"` // the replay ended long
}

// RoundTripRow pairs a BUY with the SELL that closed it.
type RoundTripRow struct {
	EntryTimeMs int64   `json:"entry_time_ms"`
	ExitTimeMs  int64   `json:"exit_time_ms"`
	EntryPrice  float64 `json:"entry_price"`
	ExitPrice   float64 `json:"exit_price"`
	QuoteIn     float64 `json:"quote_in"`  // quote spent, positive
	QuoteOut    float64 `json:"quote_out"` // quote received after fees
	PnL         float64 `json:"pnl"`
	ReturnPct   float64 `json:"return_pct"`
	HoldMs      int64   `json:"hold_ms"`
}
