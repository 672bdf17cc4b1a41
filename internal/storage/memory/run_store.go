package memory

import (
	"context"
	"sort"
	"sync"

	"trailing-lab/internal/domain"
	"trailing-lab/internal/storage"
)

// RunStore is an in-memory implementation of storage.RunStore.
type RunStore struct {
	mu   sync.RWMutex
	data map[string]*domain.BacktestRun // keyed by run_id
}

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{
		data: make(map[string]*domain.BacktestRun),
	}
}

// Insert adds a run with its trades. Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) Insert(_ context.Context, run *domain.BacktestRun) error {
	if run == nil || run.RunID == "" || run.Pair == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[run.RunID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[run.RunID] = cloneRun(run, true)
	return nil
}

// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *RunStore) GetByID(_ context.Context, runID string) (*domain.BacktestRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return cloneRun(run, true), nil
}

// List retrieves runs for a pair, newest first, without trades.
func (s *RunStore) List(_ context.Context, pair string, limit int) ([]*domain.BacktestRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.BacktestRun
	for _, run := range s.data {
		if pair == "" || run.Pair == pair {
			result = append(result, cloneRun(run, false))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].RunID < result[j].RunID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func cloneRun(run *domain.BacktestRun, withTrades bool) *domain.BacktestRun {
	c := *run
	c.TradeCount = len(run.Results.Trades)
	if withTrades {
		c.Results.Trades = append([]domain.Trade(nil), run.Results.Trades...)
	} else {
		c.Results.Trades = nil
	}
	return &c
}

var _ storage.RunStore = (*RunStore)(nil)
