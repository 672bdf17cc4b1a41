// Package window maintains a time-bounded moving average of prices.
package window

import (
	"math"

	"trailing-lab/internal/domain"
)

// MsPerDay is the number of milliseconds in one day.
const MsPerDay = 86_400_000

// compactThreshold bounds how many evicted slots accumulate before the
// backing slice is shifted down.
const compactThreshold = 64

// Window keeps the samples whose timestamp lies within WindowMs of the most
// recently ingested sample, together with a running sum of their prices.
// Samples must arrive in non-decreasing timestamp order; a sample older than
// the latest accepted one is dropped.
// Not safe for concurrent use.
type Window struct {
	windowMs int64

	samples []domain.PriceSample // retained samples live in samples[head:]
	head    int
	sum     float64

	latestMs  int64
	hasLatest bool
}

// New creates a window spanning windowDays days.
func New(windowDays float64) *Window {
	return NewWithMillis(int64(windowDays * MsPerDay))
}

// NewWithMillis creates a window spanning windowMs milliseconds.
func NewWithMillis(windowMs int64) *Window {
	return &Window{windowMs: windowMs}
}

// WindowMs returns the window span in milliseconds.
func (w *Window) WindowMs() int64 {
	return w.windowMs
}

// Ingest normalizes ts and adds the sample, evicting stale entries.
// Returns false when the sample was dropped (unparsable or non-finite time,
// non-finite or non-positive price, or a timestamp older than the latest).
func (w *Window) Ingest(ts domain.Timestamp, price float64) bool {
	tMs, ok := Normalize(ts)
	if !ok {
		return false
	}
	return w.IngestSample(domain.PriceSample{TimestampMs: tMs, Price: price})
}

// IngestSample adds an already normalized sample.
func (w *Window) IngestSample(s domain.PriceSample) bool {
	if !ValidPrice(s.Price) {
		return false
	}
	if w.hasLatest && s.TimestampMs < w.latestMs {
		return false
	}

	w.samples = append(w.samples, s)
	w.sum += s.Price
	w.latestMs = s.TimestampMs
	w.hasLatest = true

	w.evict()
	return true
}

// evict drops samples older than windowMs relative to the latest sample.
func (w *Window) evict() {
	for w.head < len(w.samples) && w.latestMs-w.samples[w.head].TimestampMs > w.windowMs {
		w.sum -= w.samples[w.head].Price
		w.samples[w.head] = domain.PriceSample{}
		w.head++
	}

	if w.head == len(w.samples) {
		// Empty: reset so accumulated rounding does not survive.
		w.samples = w.samples[:0]
		w.head = 0
		w.sum = 0
		return
	}

	if w.head >= compactThreshold && w.head*2 >= len(w.samples) {
		n := copy(w.samples, w.samples[w.head:])
		w.samples = w.samples[:n]
		w.head = 0
	}
}

// Average returns the mean price of the retained samples.
// ok is false when the window is empty.
func (w *Window) Average() (avg float64, ok bool) {
	n := w.Len()
	if n == 0 {
		return math.NaN(), false
	}
	return w.sum / float64(n), true
}

// Len returns the number of retained samples.
func (w *Window) Len() int {
	return len(w.samples) - w.head
}

// Sum returns the running sum of retained prices.
func (w *Window) Sum() float64 {
	return w.sum
}

// Samples returns a copy of the retained samples, oldest first.
func (w *Window) Samples() []domain.PriceSample {
	out := make([]domain.PriceSample, w.Len())
	copy(out, w.samples[w.head:])
	return out
}

// Latest returns the timestamp of the most recently accepted sample.
func (w *Window) Latest() (int64, bool) {
	return w.latestMs, w.hasLatest
}

// ValidPrice reports whether price is finite and positive.
func ValidPrice(price float64) bool {
	return price > 0 && !math.IsInf(price, 1)
}
