package mirror

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fairyhunter13/lowest-price-service/internal/cache"
	"github.com/fairyhunter13/lowest-price-service/internal/obs"
	"github.com/fairyhunter13/lowest-price-service/internal/storage"
)

// Applier mirrors committed changes into a regional replica store. Engines
// whose replication is external (MySQL) leave it nil and only receive
// invalidation signals.
type Applier interface {
	Apply(ch storage.Change)
}

// Region is one regional mirror: a read-only replica plus its cache.
type Region struct {
	Name    string
	Replica storage.ReplicaReader
	Applier Applier
	Cache   cache.Cache
}

// NewMemoryRegion builds a region backed by an in-memory replica and cache.
func NewMemoryRegion(name string, ttl time.Duration) *Region {
	rep := storage.NewMemoryReplica()
	return &Region{
		Name:    name,
		Replica: rep,
		Applier: rep,
		Cache:   cache.NewMemory(ttl),
	}
}

// deliver applies the change to the replica, then invalidates the cache.
// The order matters: invalidating first would let a read repopulate the
// cache from the not-yet-updated replica and miss the new price until TTL.
func (r *Region) deliver(ctx context.Context, ch storage.Change) {
	if r.Applier != nil {
		r.Applier.Apply(ch)
	}
	if r.Cache != nil {
		ictx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := r.Cache.Invalidate(ictx, ch.SKU); err != nil {
			obs.Logger.Warn("region_invalidate_failed",
				zap.String("region", r.Name),
				zap.String("sku", ch.SKU),
				zap.Error(err),
			)
		}
	}
}
