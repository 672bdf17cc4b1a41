package replay

import (
	"fmt"
	"strings"
)

// OrderingPolicy decides what happens to a tick older than its predecessor.
type OrderingPolicy string

// Ordering policies.
const (
	// OrderingDrop skips the tick entirely and counts it as dropped.
	OrderingDrop OrderingPolicy = "drop"
	// OrderingStrict aborts the replay with ErrInvalidOrdering.
	OrderingStrict OrderingPolicy = "strict"
)

// ParseOrderingPolicy parses "drop" or "strict". Empty means drop.
func ParseOrderingPolicy(s string) (OrderingPolicy, error) {
	switch OrderingPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", OrderingDrop:
		return OrderingDrop, nil
	case OrderingStrict:
		return OrderingStrict, nil
	default:
		return "", fmt.Errorf("unknown ordering policy %q", s)
	}
}

// orderGuard tracks the latest accepted timestamp.
// Equal timestamps are in order.
type orderGuard struct {
	latest    int64
	hasLatest bool
}

// accept reports whether ms is not older than the latest accepted timestamp
// and advances the guard when it is.
func (g *orderGuard) accept(ms int64) bool {
	if g.hasLatest && ms < g.latest {
		return false
	}
	g.latest = ms
	g.hasLatest = true
	return true
}
