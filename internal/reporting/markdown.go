package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# Backtest Report: %s\n\n", r.Pair))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	if r.RunID != "" {
		sb.WriteString(fmt.Sprintf("Run: `%s`\n\n", r.RunID))
	}
	sb.WriteString(fmt.Sprintf("Strategy: `%s`\n\n", r.StrategyID))
	if r.Source != "" {
		sb.WriteString(fmt.Sprintf("Source: %s\n\n", r.Source))
	}

	// Parameters
	sb.WriteString("## Parameters\n\n")
	sb.WriteString("| Parameter | Value |\n")
	sb.WriteString("|-----------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Window (days) | %g |\n", r.Params.WindowDays))
	sb.WriteString(fmt.Sprintf("| Buy below MA | %s |\n", percent(r.Params.BuyBelowPct)))
	sb.WriteString(fmt.Sprintf("| Trailing buy | %s |\n", percent(r.Params.TrailingBuyPct)))
	sb.WriteString(fmt.Sprintf("| Trailing stop | %s |\n", percent(r.Params.TrailingStopPct)))
	sb.WriteString(fmt.Sprintf("| Activation threshold | %s |\n", percent(r.Params.ActivationThresholdPct)))
	sb.WriteString(fmt.Sprintf("| Initial quote | %s |\n", quote(r.Ledger.InitialQuote)))
	sb.WriteString(fmt.Sprintf("| Fee | %s |\n", percent(r.Ledger.FeePct)))
	sb.WriteString(fmt.Sprintf("| Invest per BUY | %s |\n", quote(r.Run.InvestQuote)))
	sb.WriteString(fmt.Sprintf("| Re-enter | %t |\n", r.Run.Reenter))
	sb.WriteString("\n")

	// Replay
	sb.WriteString("## Replay\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| From | %s |\n", timeMs(r.FromMs)))
	sb.WriteString(fmt.Sprintf("| To | %s |\n", timeMs(r.ToMs)))
	sb.WriteString(fmt.Sprintf("| Ticks processed | %d |\n", r.TicksProcessed))
	sb.WriteString(fmt.Sprintf("| Ticks dropped | %d |\n", r.TicksDropped))
	if r.Digest != "" {
		sb.WriteString(fmt.Sprintf("| Decision digest | `%s` |\n", r.Digest))
	}
	sb.WriteString("\n")

	// Summary
	s := r.Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Start quote | %s |\n", quote(s.StartQuote)))
	sb.WriteString(fmt.Sprintf("| End quote | %s |\n", quote(s.EndQuote)))
	sb.WriteString(fmt.Sprintf("| Return | %s |\n", percent(s.ReturnPct)))
	sb.WriteString(fmt.Sprintf("| Base end qty | %s |\n", base(s.BaseEndQty)))
	sb.WriteString(fmt.Sprintf("| Realized PnL | %s |\n", quote(s.RealizedPnL)))
	sb.WriteString(fmt.Sprintf("| Max drawdown | %s |\n", percent(s.MaxDrawdownPct)))
	sb.WriteString(fmt.Sprintf("| Trades | %d |\n", s.TradeCount))
	sb.WriteString(fmt.Sprintf("| Round trips | %d |\n", s.RoundTrips))
	sb.WriteString(fmt.Sprintf("| Win rate | %s |\n", percent(s.WinRate*100)))
	sb.WriteString("\n")
	if s.OpenPosition {
		sb.WriteString("**Position open at end of replay.** End quote is marked to the last price.\n\n")
	}

	// Round trips
	sb.WriteString("## Round Trips\n\n")
	if len(r.RoundTrips) > 0 {
		sb.WriteString("| Entry | Exit | Entry Price | Exit Price | Quote In | Quote Out | PnL | Return | Hold |\n")
		sb.WriteString("|-------|------|-------------|------------|----------|-----------|-----|--------|------|\n")
		for _, rt := range r.RoundTrips {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %s | %s | %s |\n",
				timeMs(rt.EntryTimeMs), timeMs(rt.ExitTimeMs),
				price(rt.EntryPrice), price(rt.ExitPrice),
				quote(rt.QuoteIn), quote(rt.QuoteOut), quote(rt.PnL),
				percent(rt.ReturnPct), duration(rt.HoldMs)))
		}
	} else {
		sb.WriteString("No completed round trips.\n")
	}
	sb.WriteString("\n")

	// Round trip statistics
	if st := r.Stats; st.Count > 1 {
		sb.WriteString("### Return Distribution\n\n")
		sb.WriteString("| Mean | Median | P10 | P90 | Stddev | Best | Worst | Max Loss Streak | PnL Drawdown | Mean Hold |\n")
		sb.WriteString("|------|--------|-----|-----|--------|------|-------|-----------------|--------------|-----------|\n")
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %s | %d | %s | %s |\n\n",
			percent(st.MeanReturnPct), percent(st.MedianReturnPct),
			percent(st.P10ReturnPct), percent(st.P90ReturnPct), percent(st.StddevReturnPct),
			percent(st.BestReturnPct), percent(st.WorstReturnPct),
			st.MaxConsecutiveLosses, quote(st.MaxPnLDrawdown), duration(st.MeanHoldMs)))
	}

	// Trades
	sb.WriteString("## Trades\n\n")
	if len(r.Trades) > 0 {
		sb.WriteString("| # | Side | Time | Price | Base Qty | Quote Qty |\n")
		sb.WriteString("|---|------|------|-------|----------|-----------|\n")
		for i, t := range r.Trades {
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s | %s |\n",
				i+1, t.Side, t.Time, price(t.Price), base(t.BaseQty), quote(t.QuoteQty)))
		}
	} else {
		sb.WriteString("No trades.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}
