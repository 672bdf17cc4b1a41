// Package status fans engine and ledger snapshots out to observers.
// The engine itself has no callback registry; the replay runner notifies a
// Broadcaster after every processed tick.
package status

import (
	"sync"

	"trailing-lab/internal/domain"
	"trailing-lab/internal/ledger"
	"trailing-lab/internal/strategy"
)

// Snapshot is the state after one processed tick.
type Snapshot struct {
	Seq         int             `json:"seq"`
	Pair        string          `json:"pair,omitempty"`
	Tick        domain.Tick     `json:"tick"`
	TimestampMs int64           `json:"timestamp_ms"`
	Signal      domain.Signal   `json:"signal"`
	Executed    bool            `json:"executed"`
	Engine      strategy.Status `json:"engine"`
	Ledger      ledger.Status   `json:"ledger"`
}

// Observer receives snapshots. It runs on the notifying goroutine and must
// not block.
type Observer func(Snapshot)

// Broadcaster is an observer list. Safe for concurrent use.
type Broadcaster struct {
	mu        sync.RWMutex
	nextID    int
	observers map[int]Observer
	order     []int
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		observers: make(map[int]Observer),
	}
}

// Subscribe registers fn and returns a function that removes it.
// Observers are notified in subscription order.
func (b *Broadcaster) Subscribe(fn Observer) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.observers[id] = fn
	b.order = append(b.order, id)

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Broadcaster) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.observers, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Notify delivers s to every current observer.
// Observers may subscribe or unsubscribe from inside the callback.
func (b *Broadcaster) Notify(s Snapshot) {
	if b == nil {
		return
	}
	b.mu.RLock()
	fns := make([]Observer, 0, len(b.order))
	for _, id := range b.order {
		fns = append(fns, b.observers[id])
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(s)
	}
}

// Len returns the number of observers.
func (b *Broadcaster) Len() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.order)
}
