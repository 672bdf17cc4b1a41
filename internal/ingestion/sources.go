// Package ingestion provides the price sources a replay consumes: CSV files,
// stored samples, a live ticker feed, and a recorder that archives what it
// forwards.
package ingestion

import (
	"context"
	"io"
	"sync"

	"trailing-lab/internal/domain"
)

// Source yields ticks in order. Next returns io.EOF once the stream ends.
// Every implementation here satisfies replay.PriceSource.
type Source interface {
	Next(ctx context.Context) (domain.Tick, error)
}

// SliceSource replays a fixed list of ticks.
type SliceSource struct {
	mu    sync.Mutex
	ticks []domain.Tick
	pos   int
}

// NewSliceSource creates a source over a copy of ticks.
func NewSliceSource(ticks []domain.Tick) *SliceSource {
	return &SliceSource{ticks: append([]domain.Tick(nil), ticks...)}
}

// Next returns the next tick or io.EOF.
func (s *SliceSource) Next(ctx context.Context) (domain.Tick, error) {
	if err := ctx.Err(); err != nil {
		return domain.Tick{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pos >= len(s.ticks) {
		return domain.Tick{}, io.EOF
	}
	t := s.ticks[s.pos]
	s.pos++
	return t, nil
}

// Remaining returns the number of ticks not yet consumed.
func (s *SliceSource) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ticks) - s.pos
}

// Drain reads src until io.EOF and returns everything it yielded.
func Drain(ctx context.Context, src Source) ([]domain.Tick, error) {
	var out []domain.Tick
	for {
		t, err := src.Next(ctx)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, t)
	}
}

var (
	_ Source = (*SliceSource)(nil)
	_ Source = (*CSVSource)(nil)
	_ Source = (*StoreSource)(nil)
	_ Source = (*WSSource)(nil)
	_ Source = (*Recorder)(nil)
)
