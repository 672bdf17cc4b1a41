package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"trailing-lab/internal/domain"
)

// TradeID returns the primary key of an archived fill: hex SHA256 over
// "run_id|index|side|timestamp_ms". The index makes two fills at the same
// millisecond distinct.
func TradeID(runID string, index int, side domain.Side, timestampMs int64) string {
	buf := make([]byte, 0, len(runID)+32)
	buf = append(buf, runID...)
	buf = append(buf, '|')
	buf = strconv.AppendInt(buf, int64(index), 10)
	buf = append(buf, '|')
	buf = append(buf, string(side)...)
	buf = append(buf, '|')
	buf = strconv.AppendInt(buf, timestampMs, 10)

	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}
