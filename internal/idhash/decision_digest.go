package idhash

import (
	"crypto/sha256"
	"strconv"

	"github.com/mr-tron/base58"

	"trailing-lab/internal/domain"
)

// DecisionDigest hashes a strategy id and its ordered decision log.
// Formula: SHA256(strategy_id, then per event "seq|timestamp_ms|price|signal|executed\n")
// Returns base58-encoded hash. Two replays of the same input with the same
// parameters produce the same digest.
func DecisionDigest(strategyID string, events []domain.DecisionEvent) string {
	h := sha256.New()
	h.Write([]byte(strategyID))
	h.Write([]byte{'\n'})

	buf := make([]byte, 0, 96)
	for _, ev := range events {
		buf = buf[:0]
		buf = strconv.AppendInt(buf, int64(ev.Seq), 10)
		buf = append(buf, '|')
		buf = strconv.AppendInt(buf, ev.TimestampMs, 10)
		buf = append(buf, '|')
		buf = strconv.AppendFloat(buf, ev.Price, 'g', -1, 64)
		buf = append(buf, '|')
		buf = append(buf, string(ev.Signal)...)
		buf = append(buf, '|')
		buf = strconv.AppendBool(buf, ev.Executed)
		buf = append(buf, '\n')
		h.Write(buf)
	}

	return base58.Encode(h.Sum(nil))
}
