package reporting

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// RenderText renders report as aligned plain text for terminals.
func RenderText(r *Report) string {
	var sb strings.Builder
	writeText(&sb, r)
	return sb.String()
}

func writeText(w io.Writer, r *Report) {
	s := r.Summary

	fmt.Fprintf(w, "Backtest %s  %s\n", r.Pair, r.StrategyID)
	if r.RunID != "" {
		fmt.Fprintf(w, "Run %s\n", r.RunID)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Range\t%s .. %s\n", timeMs(r.FromMs), timeMs(r.ToMs))
	fmt.Fprintf(tw, "Ticks\t%d processed, %d dropped\n", r.TicksProcessed, r.TicksDropped)
	fmt.Fprintf(tw, "Trades\t%d (%d round trips, %d wins)\n", s.TradeCount, s.RoundTrips, s.Wins)
	fmt.Fprintf(tw, "Realized PnL\t%s\n", quote(s.RealizedPnL))
	fmt.Fprintf(tw, "Start quote\t%s\n", quote(s.StartQuote))
	fmt.Fprintf(tw, "End quote\t%s (%s)\n", quote(s.EndQuote), percent(s.ReturnPct))
	fmt.Fprintf(tw, "Base end qty\t%s\n", base(s.BaseEndQty))
	fmt.Fprintf(tw, "Max drawdown\t%s\n", percent(s.MaxDrawdownPct))
	if r.Digest != "" {
		fmt.Fprintf(tw, "Digest\t%s\n", r.Digest)
	}
	tw.Flush()

	if len(r.Trades) == 0 {
		return
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "#\tSIDE\tTIME\tPRICE\tBASE\tQUOTE\t")
	for i, t := range r.Trades {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t\n",
			i+1, t.Side, t.Time, price(t.Price), base(t.BaseQty), quote(t.QuoteQty))
	}
	tw.Flush()
}
