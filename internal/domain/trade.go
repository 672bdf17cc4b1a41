package domain

import "time"

// Trade is one simulated execution appended to the ledger.
type Trade struct {
	Side        Side      `json:"side"`
	Time        Timestamp `json:"time"`         // as supplied by the price source
	TimestampMs int64     `json:"timestamp_ms"` // normalized, 0 when unparsable
	Price       float64   `json:"price"`
	BaseQty     float64   `json:"base_qty"`  // positive for buy, negative for sell
	QuoteQty    float64   `json:"quote_qty"` // negative for buy, positive for sell
}

// Results summarizes a simulated account at the end of a replay.
type Results struct {
	Trades         []Trade `json:"trades"`
	StartQuote     float64 `json:"start_quote"`
	EndQuote       float64 `json:"end_quote"` // mark-to-market equity
	BaseEndQty     float64 `json:"base_end_qty"`
	RealizedPnL    float64 `json:"realized_pnl"` // net quote cash flow across all trades
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
}

// DecisionEvent records a non-HOLD signal and whether the caller acted on it.
type DecisionEvent struct {
	Seq         int       `json:"seq"` // index of the tick in the replayed stream
	Time        Timestamp `json:"time"`
	TimestampMs int64     `json:"timestamp_ms"`
	Price       float64   `json:"price"`
	Signal      Signal    `json:"signal"`
	Executed    bool      `json:"executed"`
}

// BacktestRun is an archived replay.
// Corresponds to backtest_runs and backtest_trades tables in PostgreSQL.
type BacktestRun struct {
	RunID  string // uuid
	Pair   string
	Source string // e.g. "csv:data/btc.csv", "clickhouse"

	Params StrategyParams
	Ledger LedgerConfig
	Run    RunConfig

	FromMs         int64 // first replayed timestamp (ms)
	ToMs           int64 // last replayed timestamp (ms)
	TicksProcessed int
	TradeCount     int // set on read, also when trades are not loaded

	Results Results
	Digest  string // decision log digest

	CreatedAt time.Time
}
