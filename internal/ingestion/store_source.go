package ingestion

import (
	"context"
	"fmt"
	"io"
	"time"

	"trailing-lab/internal/domain"
	"trailing-lab/internal/observability"
	"trailing-lab/internal/storage"
)

// StoreSource replays samples previously stored for one pair.
// The range is loaded on the first call to Next.
type StoreSource struct {
	store   storage.PriceSampleStore
	pair    string
	fromMs  int64
	toMs    int64
	metrics *observability.Metrics
	dbName  string

	loaded bool
	ticks  []domain.Tick
	pos    int
}

// StoreSourceOption configures a StoreSource.
type StoreSourceOption func(*StoreSource)

// WithTimeRange restricts the replay to [fromMs, toMs] inclusive.
func WithTimeRange(fromMs, toMs int64) StoreSourceOption {
	return func(s *StoreSource) {
		s.fromMs = fromMs
		s.toMs = toMs
	}
}

// WithStoreMetrics records query timings under the given database label.
func WithStoreMetrics(m *observability.Metrics, database string) StoreSourceOption {
	return func(s *StoreSource) {
		s.metrics = m
		s.dbName = database
	}
}

// NewStoreSource creates a source over every sample stored for pair unless
// a time range is given.
func NewStoreSource(store storage.PriceSampleStore, pair string, opts ...StoreSourceOption) *StoreSource {
	s := &StoreSource{store: store, pair: pair}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Next returns the next stored sample as a millisecond tick.
func (s *StoreSource) Next(ctx context.Context) (domain.Tick, error) {
	if err := ctx.Err(); err != nil {
		return domain.Tick{}, err
	}
	if !s.loaded {
		if err := s.load(ctx); err != nil {
			return domain.Tick{}, err
		}
	}
	if s.pos >= len(s.ticks) {
		return domain.Tick{}, io.EOF
	}
	t := s.ticks[s.pos]
	s.pos++
	return t, nil
}

// Len returns the number of loaded samples, zero before the first Next.
func (s *StoreSource) Len() int {
	return len(s.ticks)
}

func (s *StoreSource) load(ctx context.Context) error {
	start := time.Now()

	var (
		points []*domain.PricePoint
		err    error
	)
	if s.fromMs == 0 && s.toMs == 0 {
		points, err = s.store.GetByPair(ctx, s.pair)
	} else {
		points, err = s.store.GetByTimeRange(ctx, s.pair, s.fromMs, s.toMs)
	}
	s.metrics.RecordDBQuery(s.dbName, "select_price_samples", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("load price samples for %s: %w", s.pair, err)
	}

	if err := ValidatePricePointOrdering(points); err != nil {
		return fmt.Errorf("price samples for %s: %w", s.pair, err)
	}

	s.ticks = ToTicks(points)
	s.loaded = true
	return nil
}
