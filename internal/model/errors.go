package model

import "errors"

// Error taxonomy surfaced by the core. Callers match with errors.Is; retry
// and fallback policy lives outside the core.
var (
	// ErrInvalidInput marks a malformed observation that slipped past the
	// upstream validation layer. Not retryable.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStorageUnavailable marks a write transaction that could not commit.
	// The observation is absent from every store when this is returned.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrNotFound marks a sku that has never been observed. A normal
	// negative read result, not a failure of the write path.
	ErrNotFound = errors.New("sku not found")

	// ErrTimeout marks a read that exceeded its latency budget.
	ErrTimeout = errors.New("read timed out")
)
