package ingestion

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"trailing-lab/internal/domain"
	"trailing-lab/internal/observability"
	"trailing-lab/internal/storage"
	"trailing-lab/internal/window"
)

// DefaultRecorderBatchSize is the number of samples buffered before a flush.
const DefaultRecorderBatchSize = 100

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	Pair      string
	BatchSize int
	// Database labels query metrics, e.g. "clickhouse" or "memory".
	Database string
	Logger   *zap.Logger
	Metrics  *observability.Metrics
}

// Recorder forwards ticks from an inner source and stores each one with a
// valid price and time as a price sample. Samples are written in batches.
// Ticks older than the last stored sample are forwarded but not stored.
// A failed write is logged and the batch discarded; the stream continues.
type Recorder struct {
	src   Source
	store storage.PriceSampleStore
	cfg   RecorderConfig
	log   *zap.Logger

	seq     seqAssigner
	buf     []*domain.PricePoint
	stored  int
	failed  int
	skipped int
}

// NewRecorder wraps src.
func NewRecorder(src Source, store storage.PriceSampleStore, cfg RecorderConfig) *Recorder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultRecorderBatchSize
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{
		src:   src,
		store: store,
		cfg:   cfg,
		log:   log.With(zap.String("component", "recorder"), zap.String("pair", cfg.Pair)),
		buf:   make([]*domain.PricePoint, 0, cfg.BatchSize),
	}
}

// Next returns the next tick of the inner source. Buffered samples are
// flushed when the inner source ends or fails.
func (r *Recorder) Next(ctx context.Context) (domain.Tick, error) {
	t, err := r.src.Next(ctx)
	if err != nil {
		r.flush(context.WithoutCancel(ctx))
		return t, err
	}

	r.record(t)
	if len(r.buf) >= r.cfg.BatchSize {
		r.flush(ctx)
	}
	return t, nil
}

func (r *Recorder) record(t domain.Tick) {
	ms, ok := window.Normalize(t.Time)
	if !ok || !window.ValidPrice(t.Price) {
		r.skipped++
		return
	}
	if r.seq.started && ms < r.seq.lastMs {
		r.skipped++
		return
	}
	r.buf = append(r.buf, &domain.PricePoint{
		Pair:        r.cfg.Pair,
		TimestampMs: ms,
		Seq:         r.seq.next(ms),
		Price:       t.Price,
	})
}

// Flush writes buffered samples.
func (r *Recorder) Flush(ctx context.Context) error {
	return r.flush(ctx)
}

func (r *Recorder) flush(ctx context.Context) error {
	if len(r.buf) == 0 {
		return nil
	}
	batch := r.buf
	r.buf = make([]*domain.PricePoint, 0, r.cfg.BatchSize)

	start := time.Now()
	err := r.store.InsertBulk(ctx, batch)
	r.cfg.Metrics.RecordDBQuery(r.cfg.Database, "insert_price_samples", time.Since(start).Seconds(), err)
	if err != nil {
		r.failed += len(batch)
		level := zap.ErrorLevel
		if errors.Is(err, storage.ErrDuplicateKey) {
			level = zap.WarnLevel
		}
		r.log.Log(level, "failed to store price samples",
			zap.Int("count", len(batch)),
			zap.Int64("from_ms", batch[0].TimestampMs),
			zap.Int64("to_ms", batch[len(batch)-1].TimestampMs),
			zap.Error(err))
		return err
	}

	r.stored += len(batch)
	r.cfg.Metrics.RecordSamplesStored(len(batch))
	r.log.Debug("stored price samples", zap.Int("count", len(batch)))
	return nil
}

// Stats returns the number of samples stored, lost to failed writes, and
// not recorded.
func (r *Recorder) Stats() (stored, failed, skipped int) {
	return r.stored, r.failed, r.skipped
}

// Close flushes remaining samples and closes the inner source if it can be
// closed.
func (r *Recorder) Close(ctx context.Context) error {
	err := r.flush(ctx)
	if c, ok := r.src.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
