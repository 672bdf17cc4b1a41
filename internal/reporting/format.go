package reporting

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Display precision.
const (
	quotePlaces   = 2
	pricePlaces   = 2
	basePlaces    = 8
	percentPlaces = 2
)

// fixed renders v rounded half away from zero to places decimals.
func fixed(v float64, places int32) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return decimal.NewFromFloat(v).StringFixed(places)
}

func quote(v float64) string   { return fixed(v, quotePlaces) }
func price(v float64) string   { return fixed(v, pricePlaces) }
func base(v float64) string    { return fixed(v, basePlaces) }
func percent(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return fixed(v, percentPlaces) + "%"
}

// timeMs renders a millisecond timestamp as RFC 3339 UTC, or "-" when unknown.
func timeMs(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// duration renders a hold time in whole seconds.
func duration(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).Truncate(time.Second).String()
}
