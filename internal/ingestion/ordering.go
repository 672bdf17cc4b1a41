package ingestion

import (
	"errors"
	"sort"

	"trailing-lab/internal/domain"
	"trailing-lab/internal/window"
)

// ErrInvalidOrdering is returned when stored points are not in replay order.
var ErrInvalidOrdering = errors.New("price points are not in deterministic order")

// SortPricePoints orders points by (pair ASC, timestamp_ms ASC, seq ASC).
func SortPricePoints(points []*domain.PricePoint) {
	sort.SliceStable(points, func(i, j int) bool {
		return comparePricePoints(points[i], points[j]) < 0
	})
}

// ValidatePricePointOrdering checks that points are strictly increasing.
// Returns ErrInvalidOrdering if not.
func ValidatePricePointOrdering(points []*domain.PricePoint) error {
	for i := 1; i < len(points); i++ {
		if comparePricePoints(points[i-1], points[i]) >= 0 {
			return ErrInvalidOrdering
		}
	}
	return nil
}

// comparePricePoints returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
//
// Order: (pair ASC, timestamp_ms ASC, seq ASC)
func comparePricePoints(a, b *domain.PricePoint) int {
	if a.Pair != b.Pair {
		if a.Pair < b.Pair {
			return -1
		}
		return 1
	}
	if a.TimestampMs != b.TimestampMs {
		if a.TimestampMs < b.TimestampMs {
			return -1
		}
		return 1
	}
	if a.Seq != b.Seq {
		if a.Seq < b.Seq {
			return -1
		}
		return 1
	}
	return 0
}

// seqAssigner numbers points that share a millisecond in arrival order.
type seqAssigner struct {
	lastMs  int64
	nextSeq int
	started bool
}

func (a *seqAssigner) next(ms int64) int {
	if a.started && ms == a.lastMs {
		a.nextSeq++
		return a.nextSeq
	}
	a.started = true
	a.lastMs = ms
	a.nextSeq = 0
	return 0
}

// ToPricePoints converts ticks to storable points for pair.
// Ticks with an invalid price or an unparsable time are skipped;
// the number skipped is returned alongside.
func ToPricePoints(pair string, ticks []domain.Tick) ([]*domain.PricePoint, int) {
	points := make([]*domain.PricePoint, 0, len(ticks))
	skipped := 0
	seqs := make(map[int64]int)
	for _, t := range ticks {
		ms, ok := window.Normalize(t.Time)
		if !ok || !window.ValidPrice(t.Price) {
			skipped++
			continue
		}
		seq := seqs[ms]
		seqs[ms] = seq + 1
		points = append(points, &domain.PricePoint{
			Pair:        pair,
			TimestampMs: ms,
			Seq:         seq,
			Price:       t.Price,
		})
	}
	return points, skipped
}

// ToTicks converts stored points back to replayable ticks.
func ToTicks(points []*domain.PricePoint) []domain.Tick {
	ticks := make([]domain.Tick, len(points))
	for i, p := range points {
		ticks[i] = domain.Tick{Time: domain.Millis(p.TimestampMs), Price: p.Price}
	}
	return ticks
}
