// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trailing-lab/internal/domain"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "trailing_lab"

// Metrics holds all Prometheus metrics for the application.
// All Record/Update methods are safe to call on a nil *Metrics.
type Metrics struct {
	// Replay metrics
	TicksProcessed prometheus.Counter
	TicksDropped   *prometheus.CounterVec
	Signals        *prometheus.CounterVec
	TradesExecuted *prometheus.CounterVec
	ReplayRuns     *prometheus.CounterVec
	ReplayDuration prometheus.Histogram

	// Account metrics
	LatestPrice    prometheus.Gauge
	MovingAverage  prometheus.Gauge
	Equity         prometheus.Gauge
	MaxDrawdownPct prometheus.Gauge
	PositionLong   prometheus.Gauge

	// Feed metrics
	SourceErrors       *prometheus.CounterVec
	FeedReconnects     prometheus.Counter
	FeedMessageLatency prometheus.Histogram
	SamplesRecorded    prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance registered with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		TicksProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "ticks_processed_total",
			Help:      "Total number of price ticks fed to the engine",
		}),
		TicksDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "ticks_dropped_total",
			Help:      "Total number of price ticks skipped by reason",
		}, []string{"reason"}),
		Signals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "signals_total",
			Help:      "Total number of engine decisions by signal",
		}, []string{"signal"}),
		TradesExecuted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "trades_executed_total",
			Help:      "Total number of simulated trades by side",
		}, []string{"side"}),
		ReplayRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "runs_total",
			Help:      "Total number of replay runs by status",
		}, []string{"status"}),
		ReplayDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "duration_seconds",
			Help:      "Replay run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}),

		LatestPrice: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "latest_price",
			Help:      "Latest price marked by the ledger",
		}),
		MovingAverage: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "moving_average",
			Help:      "Current moving average (0 when undefined)",
		}),
		Equity: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "equity",
			Help:      "Mark-to-market equity in quote currency",
		}),
		MaxDrawdownPct: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "max_drawdown_percent",
			Help:      "Maximum drawdown from peak equity in percent",
		}),
		PositionLong: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "position_long",
			Help:      "1 while a long position is open, 0 otherwise",
		}),

		SourceErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "source_errors_total",
			Help:      "Total number of price source errors by source",
		}, []string{"source"}),
		FeedReconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "reconnects_total",
			Help:      "Total number of live feed reconnect attempts",
		}),
		FeedMessageLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "message_latency_seconds",
			Help:      "WebSocket message decode latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		SamplesRecorded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "samples_recorded_total",
			Help:      "Total number of price samples written to storage",
		}),

		DBQueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
// A nil gatherer serves the default registry.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordTick increments the processed tick counter.
func (m *Metrics) RecordTick() {
	if m == nil {
		return
	}
	m.TicksProcessed.Inc()
}

// RecordDropped increments the dropped tick counter for reason.
func (m *Metrics) RecordDropped(reason string) {
	if m == nil {
		return
	}
	m.TicksDropped.WithLabelValues(reason).Inc()
}

// RecordSignal counts an engine decision.
func (m *Metrics) RecordSignal(sig domain.Signal) {
	if m == nil {
		return
	}
	m.Signals.WithLabelValues(string(sig)).Inc()
}

// RecordTrade counts an executed trade.
func (m *Metrics) RecordTrade(side domain.Side) {
	if m == nil {
		return
	}
	m.TradesExecuted.WithLabelValues(string(side)).Inc()
}

// UpdateAccount sets the account gauges.
func (m *Metrics) UpdateAccount(price, equity, maxDrawdownPct float64, position domain.Position) {
	if m == nil {
		return
	}
	m.LatestPrice.Set(price)
	m.Equity.Set(equity)
	m.MaxDrawdownPct.Set(maxDrawdownPct)
	if position == domain.PositionLong {
		m.PositionLong.Set(1)
	} else {
		m.PositionLong.Set(0)
	}
}

// UpdateMovingAverage sets the moving average gauge; nil resets it to 0.
func (m *Metrics) UpdateMovingAverage(ma *float64) {
	if m == nil {
		return
	}
	if ma == nil {
		m.MovingAverage.Set(0)
		return
	}
	m.MovingAverage.Set(*ma)
}

// RecordReplayRun records a finished replay.
func (m *Metrics) RecordReplayRun(status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ReplayRuns.WithLabelValues(status).Inc()
	m.ReplayDuration.Observe(durationSeconds)
}

// RecordSourceError counts a price source failure.
func (m *Metrics) RecordSourceError(source string) {
	if m == nil {
		return
	}
	m.SourceErrors.WithLabelValues(source).Inc()
}

// RecordReconnect counts a live feed reconnect attempt.
func (m *Metrics) RecordReconnect() {
	if m == nil {
		return
	}
	m.FeedReconnects.Inc()
}

// RecordFeedMessage records the decode latency of one feed message.
func (m *Metrics) RecordFeedMessage(seconds float64) {
	if m == nil {
		return
	}
	m.FeedMessageLatency.Observe(seconds)
}

// RecordSamplesStored counts samples persisted by a recorder.
func (m *Metrics) RecordSamplesStored(n int) {
	if m == nil {
		return
	}
	m.SamplesRecorded.Add(float64(n))
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
