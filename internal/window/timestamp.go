package window

import (
	"math"
	"strconv"
	"strings"
	"time"

	"trailing-lab/internal/domain"
)

// secondsCutoff separates epoch seconds from epoch milliseconds.
// Numeric values below it are treated as seconds.
const secondsCutoff = 1e12

// maxAbsMillis bounds accepted times so the difference of any two stays
// inside int64.
const maxAbsMillis = 1 << 62

// calendarLayouts are tried in order for textual timestamps.
// Layouts without a zone are interpreted as UTC.
var calendarLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// Normalize converts a source timestamp to Unix milliseconds.
// Returns false for non-finite, unparsable or out-of-range input.
func Normalize(ts domain.Timestamp) (int64, bool) {
	v, ok := ts.Numeric()
	if !ok {
		s := strings.TrimSpace(ts.String())
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return parseCalendar(s)
		}
		v = f
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	if v < secondsCutoff {
		v *= 1000
	}
	if v >= maxAbsMillis || v <= -maxAbsMillis {
		return 0, false
	}
	return int64(v), true
}

func parseCalendar(s string) (int64, bool) {
	for _, layout := range calendarLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UnixMilli(), true
		}
	}
	return 0, false
}
