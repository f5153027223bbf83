// Package sentinel holds the storage-level error facts. Stores return them,
// possibly wrapped, and services translate them into domain errors.
package sentinel

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	// ErrLimitReached means a bounded index (e.g. holders per context) is full.
	ErrLimitReached = errors.New("limit reached")
)
