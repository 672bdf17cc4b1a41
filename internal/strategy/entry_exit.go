package strategy

import (
	"math"

	"trailing-lab/internal/domain"
	"trailing-lab/internal/window"
)

// EntryExitEngine is the moving-average trailing-buy / trailing-stop engine.
//
// While flat it arms a trailing buy once price drops BuyBelowPct below the
// moving average, then emits BUY when price bounces TrailingBuyPct off the
// lowest price seen since arming. While long it trails a stop
// TrailingStopPct below the highest price and emits SELL when the stop is
// crossed at or above the entry price; below entry it keeps holding.
//
// Not safe for concurrent use.
type EntryExitEngine struct {
	params domain.StrategyParams
	window *window.Window
	entry  domain.EntryState
	exit   trailingStop
}

// NewEntryExitEngine creates an engine with fixed parameters.
func NewEntryExitEngine(params domain.StrategyParams) *EntryExitEngine {
	return &EntryExitEngine{
		params: params,
		window: window.New(params.WindowDays),
		entry:  domain.EntryState{LocalLow: math.Inf(1)},
		exit: trailingStop{
			trailPct:      params.TrailingStopPct,
			activationPct: params.ActivationThresholdPct,
		},
	}
}

// ID returns the strategy identifier including parameters.
func (e *EntryExitEngine) ID() string {
	return ID(e.params)
}

// Params returns the engine parameters.
func (e *EntryExitEngine) Params() domain.StrategyParams {
	return e.params
}

// NextSignal feeds the observation into the moving average and evaluates
// exit rules when long or entry rules when flat.
// Observations with a non-finite or non-positive price only reach the
// window (which drops them) and yield HOLD.
func (e *EntryExitEngine) NextSignal(position domain.Position, ts domain.Timestamp, price float64) domain.Signal {
	e.window.Ingest(ts, price)

	if !window.ValidPrice(price) {
		return domain.SignalHold
	}

	if position == domain.PositionLong {
		return e.exitSignal(price)
	}
	return e.entrySignal(price)
}

func (e *EntryExitEngine) exitSignal(price float64) domain.Signal {
	e.exit.raise(price)

	if e.exit.triggered(price) {
		if e.exit.atOrAboveEntry(price) {
			return domain.SignalSell
		}
		// Below entry: hold through the drawdown.
		return domain.SignalHold
	}

	e.clearEntry()
	return domain.SignalHold
}

func (e *EntryExitEngine) entrySignal(price float64) domain.Signal {
	ma, ok := e.window.Average()
	if !ok {
		return domain.SignalHold
	}

	threshold := ma * (1 - e.params.BuyBelowPct/100)

	if !e.entry.Tracking {
		if price <= threshold {
			e.entry.Tracking = true
			e.entry.LocalLow = price
		}
		return domain.SignalHold
	}

	if price < e.entry.LocalLow {
		e.entry.LocalLow = price
	}
	buyTrigger := e.entry.LocalLow * (1 + e.params.TrailingBuyPct/100)
	if price >= buyTrigger {
		e.exit.reset(price)
		e.clearEntry()
		return domain.SignalBuy
	}

	return domain.SignalHold
}

// NotifyExecuted reconciles engine state with an executed trade.
// LONG starts a new exit leg from executionPrice; NONE clears exit state.
func (e *EntryExitEngine) NotifyExecuted(position domain.Position, executionPrice float64) {
	if position == domain.PositionLong {
		e.exit.reset(executionPrice)
		e.exit.EntryPrice = executionPrice
		e.clearEntry()
		return
	}
	e.exit.clear()
}

func (e *EntryExitEngine) clearEntry() {
	e.entry.Tracking = false
	e.entry.LocalLow = math.Inf(1)
}

// Status returns a snapshot of engine state. It does not mutate the engine.
func (e *EntryExitEngine) Status() Status {
	st := Status{
		StrategyID: e.ID(),
		Params:     e.params,
		Samples:    e.window.Len(),
		Entry: EntryStatus{
			Tracking: e.entry.Tracking,
		},
		Trailing: TrailingStatus{
			HighestPrice:      nonZero(e.exit.HighestPrice),
			TrailingStopPrice: nonZero(e.exit.TrailingStopPrice),
			Active:            e.exit.Active,
			EntryPrice:        nonZero(e.exit.EntryPrice),
		},
	}
	if ma, ok := e.window.Average(); ok {
		st.MA = &ma
	}
	if !math.IsInf(e.entry.LocalLow, 1) {
		low := e.entry.LocalLow
		st.Entry.LocalLow = &low
	}
	return st
}

// EntryState returns the trailing-buy state.
func (e *EntryExitEngine) EntryState() domain.EntryState {
	return e.entry
}

// TrailingStopState returns the trailing-stop state.
func (e *EntryExitEngine) TrailingStopState() domain.TrailingStopState {
	return e.exit.TrailingStopState
}

func nonZero(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}

var _ Engine = (*EntryExitEngine)(nil)
