// Package storage defines the persistence interfaces and their shared
// error sentinels. Trade history is append-only: rounds and snapshot
// points are inserted once and never updated.
package storage

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when an insert collides with an
	// existing key. The stores are append-only; a collision is a caller
	// bug, not an update.
	ErrDuplicateKey = errors.New("duplicate key in append-only store")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
