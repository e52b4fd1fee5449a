// Package cache provides the regional key-value cache fronting the
// lowest-price index.
//
// The cache is invalidated, never refreshed, by the write path: refreshing
// would race a concurrent second write and pin a superseded value. Reads
// repopulate on miss. TTLs must stay finite so a region that misses an
// invalidation signal recovers on expiry.
package cache

import (
	"context"
	"time"

	"github.com/fairyhunter13/lowest-price-service/internal/model"
)

// Cache is a regional sku -> lowest-price-entry snapshot store. Entries may
// be stale up to the invalidation propagation delay plus TTL; they are never
// authoritative.
type Cache interface {
	// Get returns the cached entry for sku, if present.
	Get(ctx context.Context, sku string) (model.PriceEntry, bool, error)

	// Put stores a snapshot for sku with the cache's TTL.
	Put(ctx context.Context, sku string, e model.PriceEntry) error

	// Invalidate evicts any entry for sku. It never writes a replacement.
	Invalidate(ctx context.Context, sku string) error
}

// entry pairs a value with its expiry for the in-memory implementation.
type entry struct {
	value   model.PriceEntry
	expires time.Time
}
