package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"trailing-lab/internal/domain"
	"trailing-lab/internal/storage"
)

// PriceSampleStore is an in-memory implementation of storage.PriceSampleStore.
type PriceSampleStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PricePoint // keyed by (pair, timestamp_ms, seq)
}

// NewPriceSampleStore creates a new in-memory price sample store.
func NewPriceSampleStore() *PriceSampleStore {
	return &PriceSampleStore{
		data: make(map[string]*domain.PricePoint),
	}
}

// sampleKey generates a unique key for a price point.
func sampleKey(pair string, timestampMs int64, seq int) string {
	return fmt.Sprintf("%s|%d|%d", pair, timestampMs, seq)
}

// InsertBulk adds multiple points. Fails entire batch on duplicate.
func (s *PriceSampleStore) InsertBulk(_ context.Context, points []*domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(points))

	// First pass: validate and check for duplicates (existing + intra-batch)
	for _, p := range points {
		if p == nil || p.Pair == "" || !(p.Price > 0) || p.Seq < 0 {
			return storage.ErrInvalidInput
		}
		key := sampleKey(p.Pair, p.TimestampMs, p.Seq)

		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, p := range points {
		pointCopy := *p
		s.data[sampleKey(p.Pair, p.TimestampMs, p.Seq)] = &pointCopy
	}

	return nil
}

// GetByPair retrieves all points for a pair, ordered by (timestamp_ms, seq) ASC.
func (s *PriceSampleStore) GetByPair(_ context.Context, pair string) ([]*domain.PricePoint, error) {
	return s.collect(func(p *domain.PricePoint) bool {
		return p.Pair == pair
	}), nil
}

// GetByTimeRange retrieves points for a pair within [start, end] (inclusive).
func (s *PriceSampleStore) GetByTimeRange(_ context.Context, pair string, start, end int64) ([]*domain.PricePoint, error) {
	return s.collect(func(p *domain.PricePoint) bool {
		return p.Pair == pair && p.TimestampMs >= start && p.TimestampMs <= end
	}), nil
}

// GetTimeRange returns min and max timestamps stored for a pair.
func (s *PriceSampleStore) GetTimeRange(_ context.Context, pair string) (minTs, maxTs int64, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	first := true
	for _, p := range s.data {
		if p.Pair != pair {
			continue
		}
		if first {
			minTs, maxTs = p.TimestampMs, p.TimestampMs
			first = false
			continue
		}
		if p.TimestampMs < minTs {
			minTs = p.TimestampMs
		}
		if p.TimestampMs > maxTs {
			maxTs = p.TimestampMs
		}
	}
	if first {
		return 0, 0, storage.ErrNotFound
	}
	return minTs, maxTs, nil
}

func (s *PriceSampleStore) collect(match func(*domain.PricePoint) bool) []*domain.PricePoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PricePoint
	for _, p := range s.data {
		if match(p) {
			pointCopy := *p
			result = append(result, &pointCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].TimestampMs != result[j].TimestampMs {
			return result[i].TimestampMs < result[j].TimestampMs
		}
		return result[i].Seq < result[j].Seq
	})

	return result
}

var _ storage.PriceSampleStore = (*PriceSampleStore)(nil)
