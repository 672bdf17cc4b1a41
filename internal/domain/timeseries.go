package domain

import (
	"encoding/json"
	"strconv"
)

// Timestamp is a time value exactly as a price source delivered it.
// It is either numeric (epoch seconds or epoch milliseconds) or text
// (a calendar/ISO string, or a number rendered as text by a CSV file).
// Conversion to a canonical millisecond epoch happens once, in window.Normalize.
type Timestamp struct {
	text   string
	num    float64
	isText bool
}

// Millis returns a numeric Timestamp holding epoch milliseconds.
func Millis(ms int64) Timestamp {
	return Timestamp{num: float64(ms)}
}

// Number returns a numeric Timestamp (epoch seconds or milliseconds).
func Number(v float64) Timestamp {
	return Timestamp{num: v}
}

// Text returns a textual Timestamp.
func Text(s string) Timestamp {
	return Timestamp{text: s, isText: true}
}

// Numeric returns the numeric value and true when the timestamp is not text.
func (t Timestamp) Numeric() (float64, bool) {
	if t.isText {
		return 0, false
	}
	return t.num, true
}

// IsZero reports whether the timestamp was never set.
func (t Timestamp) IsZero() bool {
	return t == Timestamp{}
}

// String renders the timestamp as delivered.
func (t Timestamp) String() string {
	if t.isText {
		return t.text
	}
	return strconv.FormatFloat(t.num, 'f', -1, 64)
}

// MarshalJSON emits a JSON number for numeric timestamps and a string otherwise.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.isText {
		return json.Marshal(t.text)
	}
	return json.Marshal(t.num)
}

// UnmarshalJSON accepts either a JSON number or a JSON string.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = Text(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*t = Number(f)
	return nil
}

// Tick is one observation from a price source (live tick or CSV row).
type Tick struct {
	Time  Timestamp
	Price float64
}

// PriceSample is a normalized observation retained by the moving-average window.
type PriceSample struct {
	TimestampMs int64   // Unix timestamp in milliseconds
	Price       float64 // observed price, > 0
}

// PricePoint is a stored price observation for one asset pair.
// Corresponds to the price_samples table in ClickHouse.
// Seq disambiguates observations sharing a millisecond.
type PricePoint struct {
	Pair        string  // asset pair, e.g. BTC-GBP
	TimestampMs int64   // Unix timestamp in milliseconds
	Seq         int     // 0-based order among points with the same timestamp
	Price       float64 // observed price
}
