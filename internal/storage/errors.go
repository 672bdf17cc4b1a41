// Package storage defines the persistence contracts for price samples and
// archived backtest runs. Both stores are append-only.
package storage

import "errors"

var (
	// ErrNotFound reports a lookup that matched no row.
	ErrNotFound = errors.New("storage: not found")

	// ErrDuplicateKey reports an insert that collides with an existing key.
	// Stored rows are never overwritten.
	ErrDuplicateKey = errors.New("storage: duplicate key")

	// ErrInvalidInput reports a record rejected before it reached the backend.
	ErrInvalidInput = errors.New("storage: invalid input")
)
