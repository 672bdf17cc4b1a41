package reporting

import (
	"math"
	"sort"
)

// RoundTripStats is the distribution of closed round-trip returns.
// Returns are in percent of the quote spent on entry.
type RoundTripStats struct {
	Count   int     `json:"count"`
	Wins    int     `json:"wins"`
	Losses  int     `json:"losses"`
	WinRate float64 `json:"win_rate"`

	MeanReturnPct   float64 `json:"mean_return_pct"`
	MedianReturnPct float64 `json:"median_return_pct"`
	P10ReturnPct    float64 `json:"p10_return_pct"`
	P90ReturnPct    float64 `json:"p90_return_pct"`
	StddevReturnPct float64 `json:"stddev_return_pct"`
	BestReturnPct   float64 `json:"best_return_pct"`
	WorstReturnPct  float64 `json:"worst_return_pct"`

	TotalPnL             float64 `json:"total_pnl"`
	MaxPnLDrawdown       float64 `json:"max_pnl_drawdown"` // worst peak-to-trough of cumulative PnL, in quote
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	MeanHoldMs           int64   `json:"mean_hold_ms"`
}

// computeStats summarizes round trips in chronological order.
func computeStats(rows []RoundTripRow) RoundTripStats {
	n := len(rows)
	if n == 0 {
		return RoundTripStats{}
	}

	returns := make([]float64, n)
	pnls := make([]float64, n)
	var st RoundTripStats
	var hold int64
	for i, r := range rows {
		returns[i] = r.ReturnPct
		pnls[i] = r.PnL
		st.TotalPnL += r.PnL
		hold += r.HoldMs
		if r.PnL > 0 {
			st.Wins++
		} else {
			st.Losses++
		}
	}

	sorted := make([]float64, n)
	copy(sorted, returns)
	sort.Float64s(sorted)

	st.Count = n
	st.WinRate = float64(st.Wins) / float64(n)
	st.MeanReturnPct = mean(returns)
	st.MedianReturnPct = percentile(sorted, 0.50)
	st.P10ReturnPct = percentile(sorted, 0.10)
	st.P90ReturnPct = percentile(sorted, 0.90)
	st.StddevReturnPct = stddev(returns, st.MeanReturnPct)
	st.WorstReturnPct = sorted[0]
	st.BestReturnPct = sorted[n-1]
	st.MaxPnLDrawdown = maxDrawdown(pnls)
	st.MaxConsecutiveLosses = maxConsecutiveLosses(pnls)
	st.MeanHoldMs = hold / int64(n)
	return st
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the sample standard deviation (n-1 denominator).
func stddev(xs []float64, m float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, x := range xs {
		d := x - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// percentile interpolates linearly between closest ranks.
// sorted must be ascending; p is a fraction (0.10 is the 10th percentile).
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}
	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// maxDrawdown is the largest drop of the running sum below its peak.
func maxDrawdown(pnls []float64) float64 {
	cumulative, peak, worst := 0.0, 0.0, 0.0
	for _, p := range pnls {
		cumulative += p
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > worst {
			worst = dd
		}
	}
	return worst
}

// maxConsecutiveLosses is the longest run of round trips with PnL <= 0.
func maxConsecutiveLosses(pnls []float64) int {
	longest, current := 0, 0
	for _, p := range pnls {
		if p <= 0 {
			current++
			longest = max(longest, current)
		} else {
			current = 0
		}
	}
	return longest
}
