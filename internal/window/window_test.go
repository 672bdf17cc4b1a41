package window

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trailing-lab/internal/domain"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		ts   domain.Timestamp
		want int64
		ok   bool
	}{
		{"millis", domain.Millis(1_700_000_000_000), 1_700_000_000_000, true},
		{"seconds", domain.Number(1_700_000_000), 1_700_000_000_000, true},
		{"fractional seconds", domain.Number(1_700_000_000.5), 1_700_000_000_500, true},
		{"numeric text seconds", domain.Text("1700000000"), 1_700_000_000_000, true},
		{"numeric text millis", domain.Text(" 1700000000000 "), 1_700_000_000_000, true},
		{"rfc3339", domain.Text("2024-01-02T03:04:05Z"), 1_704_164_645_000, true},
		{"rfc3339 offset", domain.Text("2024-01-02T04:04:05+01:00"), 1_704_164_645_000, true},
		{"rfc3339 fraction", domain.Text("2024-01-02T03:04:05.250Z"), 1_704_164_645_250, true},
		{"no zone is utc", domain.Text("2024-01-02T03:04:05"), 1_704_164_645_000, true},
		{"space separated", domain.Text("2024-01-02 03:04:05"), 1_704_164_645_000, true},
		{"date only", domain.Text("2024-01-02"), 1_704_153_600_000, true},
		{"garbage", domain.Text("yesterday"), 0, false},
		{"empty", domain.Text(""), 0, false},
		{"nan", domain.Number(math.NaN()), 0, false},
		{"inf", domain.Number(math.Inf(1)), 0, false},
		{"inf text", domain.Text("Inf"), 0, false},
		{"millis beyond int64", domain.Text("1e19"), 0, false},
		{"negative seconds beyond int64", domain.Text("-1e16"), 0, false},
		{"huge number", domain.Number(math.MaxFloat64), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Normalize(tt.ts)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestWindow_EmptyAverageUndefined(t *testing.T) {
	w := New(1)
	avg, ok := w.Average()
	assert.False(t, ok)
	assert.True(t, math.IsNaN(avg))
	assert.Equal(t, 0, w.Len())
}

func TestWindow_Eviction(t *testing.T) {
	w := New(1)

	require.True(t, w.Ingest(domain.Millis(0), 100))
	require.True(t, w.Ingest(domain.Millis(MsPerDay/2), 200))

	avg, ok := w.Average()
	require.True(t, ok)
	assert.Equal(t, 150.0, avg)

	// Exactly windowMs after the first sample: still retained.
	require.True(t, w.Ingest(domain.Millis(MsPerDay), 300))
	assert.Equal(t, 3, w.Len())

	// One millisecond later the first sample falls out.
	require.True(t, w.Ingest(domain.Millis(MsPerDay+1), 400))
	assert.Equal(t, 3, w.Len())
	assert.Equal(t, 900.0, w.Sum())

	// A jump far ahead leaves only the newest sample.
	require.True(t, w.Ingest(domain.Millis(10*MsPerDay), 50))
	assert.Equal(t, 1, w.Len())
	avg, _ = w.Average()
	assert.Equal(t, 50.0, avg)
}

func TestWindow_DropsInvalidInput(t *testing.T) {
	w := New(1)
	require.True(t, w.Ingest(domain.Millis(1_000), 10))

	assert.False(t, w.Ingest(domain.Text("not a time"), 10))
	assert.False(t, w.Ingest(domain.Millis(2_000), math.NaN()))
	assert.False(t, w.Ingest(domain.Millis(2_000), math.Inf(1)))
	assert.False(t, w.Ingest(domain.Millis(2_000), 0))
	assert.False(t, w.Ingest(domain.Millis(2_000), -5))

	assert.Equal(t, 1, w.Len())
	assert.Equal(t, 10.0, w.Sum())
}

func TestWindow_OutOfRangeTimeDoesNotSkewAverage(t *testing.T) {
	w := New(1)
	assert.False(t, w.Ingest(domain.Text("1e19"), 1000))
	assert.False(t, w.Ingest(domain.Text("-1e16"), 1000))

	for i := int64(0); i < 5; i++ {
		require.True(t, w.Ingest(domain.Millis(1_700_000_000_000+i*1_000), 100))
	}

	avg, ok := w.Average()
	require.True(t, ok)
	assert.Equal(t, 100.0, avg)
	assert.Equal(t, 5, w.Len())
}

func TestWindow_DropsOutOfOrder(t *testing.T) {
	w := New(1)
	require.True(t, w.Ingest(domain.Millis(5_000), 10))
	require.True(t, w.Ingest(domain.Millis(5_000), 20)) // equal timestamps allowed

	assert.False(t, w.Ingest(domain.Millis(4_999), 30))

	latest, ok := w.Latest()
	require.True(t, ok)
	assert.Equal(t, int64(5_000), latest)
	assert.Equal(t, 2, w.Len())
}

func TestWindow_MixedTimestampFormats(t *testing.T) {
	w := New(1)
	require.True(t, w.Ingest(domain.Number(1_704_153_600), 10))
	require.True(t, w.Ingest(domain.Text("2024-01-02T12:00:00Z"), 20))
	require.True(t, w.Ingest(domain.Millis(1_704_153_600_000+MsPerDay), 30))

	assert.Equal(t, 3, w.Len())
	avg, ok := w.Average()
	require.True(t, ok)
	assert.Equal(t, 20.0, avg)
}

// The average must equal the mean of exactly those samples within windowMs
// of the latest ingested timestamp, for any ordered sequence.
func TestWindow_InvariantMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 20; run++ {
		windowMs := int64(1 + rng.Intn(10_000))
		w := NewWithMillis(windowMs)

		var all []domain.PriceSample
		ts := int64(rng.Intn(1_000))
		for i := 0; i < 2_000; i++ {
			ts += int64(rng.Intn(500)) // repeats allowed
			price := 1 + rng.Float64()*1_000
			require.True(t, w.IngestSample(domain.PriceSample{TimestampMs: ts, Price: price}))
			all = append(all, domain.PriceSample{TimestampMs: ts, Price: price})

			var sum float64
			var n int
			for _, s := range all {
				if ts-s.TimestampMs <= windowMs {
					sum += s.Price
					n++
				}
			}

			require.Equal(t, n, w.Len(), "run %d step %d", run, i)
			avg, ok := w.Average()
			require.True(t, ok)
			assert.InDelta(t, sum/float64(n), avg, 1e-6, "run %d step %d", run, i)
		}
	}
}

func TestWindow_CompactionKeepsOrder(t *testing.T) {
	w := NewWithMillis(10)
	for i := int64(0); i < 1_000; i++ {
		require.True(t, w.IngestSample(domain.PriceSample{TimestampMs: i, Price: float64(i + 1)}))
	}

	samples := w.Samples()
	require.Len(t, samples, 11)
	for i, s := range samples {
		assert.Equal(t, int64(989+i), s.TimestampMs)
	}
	assert.LessOrEqual(t, len(w.samples), 2*compactThreshold+11)
}
