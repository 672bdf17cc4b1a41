package clickhouse

import (
	"context"
	"fmt"

	"trailing-lab/internal/domain"
	"trailing-lab/internal/storage"
)

// PriceSampleStore implements storage.PriceSampleStore using ClickHouse.
type PriceSampleStore struct {
	conn *Conn
}

// NewPriceSampleStore creates a new PriceSampleStore.
func NewPriceSampleStore(conn *Conn) *PriceSampleStore {
	return &PriceSampleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PriceSampleStore = (*PriceSampleStore)(nil)

type sampleKey struct {
	pair        string
	timestampMs int64
	seq         int
}

// InsertBulk adds multiple points. Fails entire batch on duplicate (pair, timestamp_ms, seq).
// MergeTree does not enforce uniqueness, so keys are checked before the batch is sent.
func (s *PriceSampleStore) InsertBulk(ctx context.Context, points []*domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	// Validate and check for intra-batch duplicates
	seen := make(map[sampleKey]struct{}, len(points))
	type span struct{ min, max int64 }
	spans := make(map[string]*span)
	for _, p := range points {
		if p == nil || p.Pair == "" || !(p.Price > 0) || p.Seq < 0 {
			return storage.ErrInvalidInput
		}
		k := sampleKey{p.Pair, p.TimestampMs, p.Seq}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}

		sp, ok := spans[p.Pair]
		if !ok {
			spans[p.Pair] = &span{p.TimestampMs, p.TimestampMs}
			continue
		}
		if p.TimestampMs < sp.min {
			sp.min = p.TimestampMs
		}
		if p.TimestampMs > sp.max {
			sp.max = p.TimestampMs
		}
	}

	// Check for duplicates against existing rows, one range query per pair
	for pair, sp := range spans {
		existing, err := s.keysInRange(ctx, pair, sp.min, sp.max)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		for k := range existing {
			if _, dup := seen[k]; dup {
				return storage.ErrDuplicateKey
			}
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_samples (
			pair, timestamp_ms, seq, price
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		err = batch.Append(p.Pair, p.TimestampMs, uint32(p.Seq), p.Price)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByPair retrieves all points for a pair, ordered by (timestamp_ms, seq) ASC.
func (s *PriceSampleStore) GetByPair(ctx context.Context, pair string) ([]*domain.PricePoint, error) {
	query := `
		SELECT pair, timestamp_ms, seq, price
		FROM price_samples
		WHERE pair = ?
		ORDER BY timestamp_ms ASC, seq ASC
	`

	rows, err := s.conn.Query(ctx, query, pair)
	if err != nil {
		return nil, fmt.Errorf("query by pair: %w", err)
	}
	defer rows.Close()

	return scanPriceSamples(rows)
}

// GetByTimeRange retrieves points for a pair within [start, end] (inclusive).
func (s *PriceSampleStore) GetByTimeRange(ctx context.Context, pair string, start, end int64) ([]*domain.PricePoint, error) {
	query := `
		SELECT pair, timestamp_ms, seq, price
		FROM price_samples
		WHERE pair = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC, seq ASC
	`

	rows, err := s.conn.Query(ctx, query, pair, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanPriceSamples(rows)
}

// GetTimeRange returns min and max timestamps stored for a pair.
func (s *PriceSampleStore) GetTimeRange(ctx context.Context, pair string) (minTs, maxTs int64, err error) {
	query := `
		SELECT count(), min(timestamp_ms), max(timestamp_ms)
		FROM price_samples
		WHERE pair = ?
	`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, pair).Scan(&count, &minTs, &maxTs); err != nil {
		return 0, 0, fmt.Errorf("query time range: %w", err)
	}
	if count == 0 {
		return 0, 0, storage.ErrNotFound
	}
	return minTs, maxTs, nil
}

// keysInRange returns the stored keys for a pair within [start, end].
func (s *PriceSampleStore) keysInRange(ctx context.Context, pair string, start, end int64) (map[sampleKey]struct{}, error) {
	query := `
		SELECT timestamp_ms, seq FROM price_samples
		WHERE pair = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
	`

	rows, err := s.conn.Query(ctx, query, pair, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make(map[sampleKey]struct{})
	for rows.Next() {
		var ts int64
		var seq uint32
		if err := rows.Scan(&ts, &seq); err != nil {
			return nil, err
		}
		keys[sampleKey{pair, ts, int(seq)}] = struct{}{}
	}
	return keys, rows.Err()
}

// scanPriceSamples scans multiple rows.
func scanPriceSamples(rows chRows) ([]*domain.PricePoint, error) {
	var points []*domain.PricePoint

	for rows.Next() {
		var p domain.PricePoint
		var seq uint32

		if err := rows.Scan(&p.Pair, &p.TimestampMs, &seq, &p.Price); err != nil {
			return nil, fmt.Errorf("scan price sample row: %w", err)
		}

		p.Seq = int(seq)
		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price sample rows: %w", err)
	}

	return points, nil
}
