// Package strategy implements the entry/exit decision engine: a trailing buy
// armed below a time-windowed moving average, and a trailing stop that never
// realizes a loss.
package strategy

import (
	"fmt"

	"trailing-lab/internal/domain"
)

// Engine decides BUY / SELL / HOLD for each observed price.
// Position is owned by the caller and reconciled through NotifyExecuted.
type Engine interface {
	// NextSignal consumes one observation and returns a decision.
	NextSignal(position domain.Position, ts domain.Timestamp, price float64) domain.Signal

	// NotifyExecuted reports an executed trade and the resulting position.
	NotifyExecuted(position domain.Position, executionPrice float64)

	// Status returns a read-only snapshot of internal state.
	Status() Status

	// ID returns the engine identifier (includes parameters).
	ID() string
}

// ID formats the identifier of an entry/exit engine configured with p.
func ID(p domain.StrategyParams) string {
	return fmt.Sprintf("ENTRY_EXIT_ma%gd_below%g_tb%g_ts%g_act%g",
		p.WindowDays,
		p.BuyBelowPct,
		p.TrailingBuyPct,
		p.TrailingStopPct,
		p.ActivationThresholdPct)
}

// Status is a snapshot of engine state for observers.
// Nil pointers mean "not set".
type Status struct {
	StrategyID string                `json:"strategy_id"`
	Params     domain.StrategyParams `json:"params"`
	MA         *float64              `json:"ma"`
	Samples    int                   `json:"samples"`
	Entry      EntryStatus           `json:"entry"`
	Trailing   TrailingStatus        `json:"trailing"`
}

// EntryStatus reports the trailing-buy tracker.
type EntryStatus struct {
	Tracking bool     `json:"tracking"`
	LocalLow *float64 `json:"local_low"`
}

// TrailingStatus reports the trailing-stop tracker.
type TrailingStatus struct {
	HighestPrice      *float64 `json:"highest_price"`
	TrailingStopPrice *float64 `json:"trailing_stop_price"`
	Active            bool     `json:"active"`
	EntryPrice        *float64 `json:"entry_price"`
}
