package storage

import (
	"context"

	"trailing-lab/internal/domain"
)

// PriceSampleStore provides access to price_samples storage.
type PriceSampleStore interface {
	// InsertBulk adds multiple points. Fails entire batch on duplicate (pair, timestamp_ms, seq).
	InsertBulk(ctx context.Context, points []*domain.PricePoint) error

	// GetByPair retrieves all points for a pair, ordered by (timestamp_ms, seq) ASC.
	GetByPair(ctx context.Context, pair string) ([]*domain.PricePoint, error)

	// GetByTimeRange retrieves points for a pair within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, pair string, start, end int64) ([]*domain.PricePoint, error)

	// GetTimeRange returns the first and last timestamp stored for a pair.
	// Returns ErrNotFound if the pair has no points.
	GetTimeRange(ctx context.Context, pair string) (minTs, maxTs int64, err error)
}

// RunStore provides access to backtest_runs and backtest_trades storage.
type RunStore interface {
	// Insert adds a run with its trades. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, run *domain.BacktestRun) error

	// GetByID retrieves a run and its trades. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID string) (*domain.BacktestRun, error)

	// List retrieves runs for a pair (all pairs when empty), newest first.
	// Trades are not loaded. limit <= 0 means no limit.
	List(ctx context.Context, pair string, limit int) ([]*domain.BacktestRun, error)
}
