// Package ledger simulates a single-pair spot account for backtests:
// balances, proportional fees, an append-only trade log, equity and drawdown.
package ledger

import (
	"math"

	"trailing-lab/internal/domain"
	"trailing-lab/internal/window"
)

// Ledger is a synthetic account holding a quote and a base balance.
// It performs no trading logic of its own. Not safe for concurrent use.
type Ledger struct {
	state    domain.LedgerState
	feeRate  float64
	position domain.Position
	latest   float64
	trades   []domain.Trade
}

// Status is a point-in-time view of the account.
type Status struct {
	Position       domain.Position `json:"position"`
	LatestPrice    float64         `json:"latest_price"`
	BaseBalance    float64         `json:"base_balance"`
	QuoteBalance   float64         `json:"quote_balance"`
	Equity         float64         `json:"equity"`
	PeakEquity     float64         `json:"peak_equity"`
	MaxDrawdownPct float64         `json:"max_drawdown_pct"`
}

// New creates a ledger funded with initialQuote.
// feeRate is a fraction: 0.005 charges 0.5% of every trade.
func New(initialQuote, feeRate float64) *Ledger {
	if initialQuote < 0 || math.IsNaN(initialQuote) {
		initialQuote = 0
	}
	if feeRate < 0 || math.IsNaN(feeRate) {
		feeRate = 0
	}
	return &Ledger{
		state:    domain.LedgerState{QuoteBalance: initialQuote},
		feeRate:  feeRate,
		position: domain.PositionNone,
		trades:   make([]domain.Trade, 0),
	}
}

// NewFromConfig creates a ledger from a ledger configuration.
func NewFromConfig(cfg domain.LedgerConfig) *Ledger {
	return New(cfg.InitialQuote, cfg.FeeRate())
}

// Tick marks the account to price and updates peak equity and drawdown.
// Non-finite or non-positive prices are ignored.
func (l *Ledger) Tick(ts domain.Timestamp, price float64) {
	if !window.ValidPrice(price) {
		return
	}
	l.latest = price

	equity := l.equityAt(price)
	if equity > l.state.PeakEquity {
		l.state.PeakEquity = equity
	}
	if l.state.PeakEquity > 0 {
		dd := (l.state.PeakEquity - equity) / l.state.PeakEquity * 100
		if dd > l.state.MaxDrawdownPct {
			l.state.MaxDrawdownPct = dd
		}
	}
}

// BuyWithQuote spends quoteAmount (fee included) on base at price.
// Returns false without changing state when quoteAmount is non-positive,
// exceeds the quote balance, or buys no base.
func (l *Ledger) BuyWithQuote(ts domain.Timestamp, price, quoteAmount float64) bool {
	if !(quoteAmount > 0) || quoteAmount > l.state.QuoteBalance {
		return false
	}
	fee := quoteAmount * l.feeRate
	spend := math.Max(0, quoteAmount-fee)
	baseQty := spend / price
	if !(baseQty > 0) || math.IsInf(baseQty, 0) {
		return false
	}

	l.state.QuoteBalance -= quoteAmount
	l.state.BaseBalance += baseQty
	l.position = domain.PositionLong

	l.trades = append(l.trades, newTrade(domain.SideBuy, ts, price, baseQty, -quoteAmount))
	return true
}

// SellAll sells the entire base balance at price, net of fee.
// Returns false without changing state when there is nothing to sell.
func (l *Ledger) SellAll(ts domain.Timestamp, price float64) bool {
	if l.state.BaseBalance <= 0 || !window.ValidPrice(price) {
		return false
	}
	gross := l.state.BaseBalance * price
	fee := gross * l.feeRate
	net := math.Max(0, gross-fee)

	l.trades = append(l.trades, newTrade(domain.SideSell, ts, price, -l.state.BaseBalance, net))

	l.state.QuoteBalance += net
	l.state.BaseBalance = 0
	l.position = domain.PositionNone
	return true
}

func newTrade(side domain.Side, ts domain.Timestamp, price, baseQty, quoteQty float64) domain.Trade {
	ms, _ := window.Normalize(ts)
	return domain.Trade{
		Side:        side,
		Time:        ts,
		TimestampMs: ms,
		Price:       price,
		BaseQty:     baseQty,
		QuoteQty:    quoteQty,
	}
}

func (l *Ledger) equityAt(price float64) float64 {
	return l.state.QuoteBalance + l.state.BaseBalance*price
}

// Equity returns quote plus base marked at the latest price.
func (l *Ledger) Equity() float64 {
	return l.equityAt(l.latest)
}

// QuoteBalance returns the free quote balance.
func (l *Ledger) QuoteBalance() float64 {
	return l.state.QuoteBalance
}

// State returns the raw balances and risk figures.
func (l *Ledger) State() domain.LedgerState {
	return l.state
}

// Status returns a snapshot of the account.
func (l *Ledger) Status() Status {
	return Status{
		Position:       l.position,
		LatestPrice:    l.latest,
		BaseBalance:    l.state.BaseBalance,
		QuoteBalance:   l.state.QuoteBalance,
		Equity:         l.Equity(),
		PeakEquity:     l.state.PeakEquity,
		MaxDrawdownPct: l.state.MaxDrawdownPct,
	}
}

// Results summarizes the account.
//
// StartQuote is the total quote spent on buys when the first trade is a
// buy; otherwise, and when no trade happened, it is the current equity.
// RealizedPnL is the net quote cash flow across all trades, not the gain
// on closed lots.
func (l *Ledger) Results() domain.Results {
	equity := l.Equity()

	startQuote := equity
	if len(l.trades) > 0 && l.trades[0].Side == domain.SideBuy {
		startQuote = 0
		for _, t := range l.trades {
			if t.Side == domain.SideBuy {
				startQuote += -t.QuoteQty
			}
		}
	}

	var realized float64
	for _, t := range l.trades {
		realized += t.QuoteQty
	}

	trades := make([]domain.Trade, len(l.trades))
	copy(trades, l.trades)

	return domain.Results{
		Trades:         trades,
		StartQuote:     startQuote,
		EndQuote:       equity,
		BaseEndQty:     l.state.BaseBalance,
		RealizedPnL:    realized,
		MaxDrawdownPct: l.state.MaxDrawdownPct,
	}
}
