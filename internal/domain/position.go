package domain

// Position is the caller-owned exposure of the single traded pair.
type Position string

// Position constants.
const (
	PositionNone Position = "NONE"
	PositionLong Position = "LONG"
)

// Signal is the engine's decision for one price observation.
type Signal string

// Signal constants.
const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

// Side is the direction of an executed trade.
type Side string

// Side constants.
const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// EntryState tracks a potential entry while flat.
// LocalLow is +Inf while no low has been recorded.
type EntryState struct {
	Tracking bool
	LocalLow float64
}

// TrailingStopState tracks the exit level while long.
// EntryPrice is the externally reported fill price of the open position.
type TrailingStopState struct {
	HighestPrice      float64
	TrailingStopPrice float64
	Active            bool
	EntryPrice        float64
}

// LedgerState holds the balances and risk figures of a simulated account.
type LedgerState struct {
	BaseBalance    float64
	QuoteBalance   float64
	PeakEquity     float64
	MaxDrawdownPct float64
}
