package strategy

import "trailing-lab/internal/domain"

// trailingStop holds the exit state of an open long position.
type trailingStop struct {
	domain.TrailingStopState
	trailPct      float64
	activationPct float64
}

// raise records a new highest price and recomputes the stop.
// Returns false when price does not exceed the current high.
func (t *trailingStop) raise(price float64) bool {
	if price <= t.HighestPrice {
		return false
	}
	t.HighestPrice = price
	t.recompute()
	return true
}

// reset starts tracking from price as the new high.
func (t *trailingStop) reset(price float64) {
	t.HighestPrice = price
	t.recompute()
}

// recompute derives the stop from the highest price.
// The activation comparison holds for any positive high, so Active flips
// to true on the first recompute; activationPct only feeds status output.
func (t *trailingStop) recompute() {
	if t.HighestPrice <= 0 {
		return
	}
	activationPrice := t.HighestPrice * (1 - t.activationPct/100)
	t.TrailingStopPrice = t.HighestPrice * (1 - t.trailPct/100)
	if !t.Active && t.HighestPrice >= activationPrice {
		t.Active = true
	}
}

// triggered reports whether price has crossed a set stop.
func (t *trailingStop) triggered(price float64) bool {
	return t.TrailingStopPrice > 0 && price <= t.TrailingStopPrice
}

// atOrAboveEntry reports whether selling at price realizes no loss.
func (t *trailingStop) atOrAboveEntry(price float64) bool {
	return t.EntryPrice > 0 && price >= t.EntryPrice
}

// clear zeroes the exit state after the position is closed.
func (t *trailingStop) clear() {
	t.HighestPrice = 0
	t.TrailingStopPrice = 0
	t.EntryPrice = 0
	t.Active = false
}
