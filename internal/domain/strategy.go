package domain

// StrategyParams configures the entry/exit engine.
// All percentages are expressed in percent (5 means 5%).
type StrategyParams struct {
	WindowDays             float64 `json:"window_days"`              // moving-average window length in days
	BuyBelowPct            float64 `json:"buy_below_pct"`            // price below MA that arms the trailing buy
	TrailingBuyPct         float64 `json:"trailing_buy_pct"`         // bounce from local low that triggers BUY
	TrailingStopPct        float64 `json:"trailing_stop_pct"`        // distance of the stop below the highest price
	ActivationThresholdPct float64 `json:"activation_threshold_pct"` // reported in status only, does not gate exits
}

// DefaultStrategyParams mirrors the defaults of the live deployment.
var DefaultStrategyParams = StrategyParams{
	WindowDays:             20,
	BuyBelowPct:            5,
	TrailingBuyPct:         1,
	TrailingStopPct:        2,
	ActivationThresholdPct: 1,
}

// LedgerConfig configures a simulated account.
type LedgerConfig struct {
	InitialQuote float64 `json:"initial_quote"` // starting quote balance
	FeePct       float64 `json:"fee_pct"`       // proportional fee in percent (0.5 means 0.5%)
}

// FeeRate returns the fee as a fraction.
func (c LedgerConfig) FeeRate() float64 {
	return c.FeePct / 100
}

// RunConfig holds the replay policy applied on top of engine and ledger.
type RunConfig struct {
	InvestQuote float64 `json:"invest_quote"` // quote amount spent on each BUY
	Reenter     bool    `json:"reenter"`      // allow BUY after the first completed round trip
}
