package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fairyhunter13/lowest-price-service/internal/cache"
	"github.com/fairyhunter13/lowest-price-service/internal/model"
	"github.com/fairyhunter13/lowest-price-service/internal/obs"
	"github.com/fairyhunter13/lowest-price-service/internal/storage"
)

// Reader serves lowest-price lookups: regional cache first, then the
// regional replica, never the master. Replica lookups are bounded by the
// read budget; there is no silent fallback anywhere.
type Reader struct {
	cache   cache.Cache
	replica storage.ReplicaReader
	budget  time.Duration
}

// NewReader wires the read path for one region.
func NewReader(c cache.Cache, replica storage.ReplicaReader, budget time.Duration) *Reader {
	return &Reader{cache: c, replica: replica, budget: budget}
}

// FindPrice returns the lowest known price entry for sku.
//
// Errors: ErrNotFound when the sku has never been observed in this region,
// ErrTimeout when the replica lookup exceeds the read budget. A stale entry
// within the propagation window is a valid answer; a wrong one never is.
func (r *Reader) FindPrice(ctx context.Context, sku string) (model.PriceEntry, error) {
	sku = model.CanonicalID(sku)
	if sku == "" {
		return model.PriceEntry{}, fmt.Errorf("%w: blank sku", model.ErrNotFound)
	}

	if e, ok, err := r.cache.Get(ctx, sku); err == nil && ok {
		return e, nil
	} else if err != nil {
		// A broken cache degrades to a replica read, it never fails the
		// lookup.
		obs.Logger.Warn("cache_get_failed", zap.String("sku", sku), zap.Error(err))
	}

	rctx, cancel := context.WithTimeout(ctx, r.budget)
	defer cancel()

	type result struct {
		entry model.PriceEntry
		ok    bool
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		e, ok, err := r.replica.LowestPrice(rctx, sku)
		ch <- result{entry: e, ok: ok, err: err}
	}()

	select {
	case <-rctx.Done():
		return model.PriceEntry{}, fmt.Errorf("%w: replica lookup exceeded %v", model.ErrTimeout, r.budget)
	case res := <-ch:
		if res.err != nil {
			if errors.Is(res.err, context.DeadlineExceeded) {
				return model.PriceEntry{}, fmt.Errorf("%w: replica lookup exceeded %v", model.ErrTimeout, r.budget)
			}
			return model.PriceEntry{}, fmt.Errorf("%w: %v", model.ErrStorageUnavailable, res.err)
		}
		if !res.ok {
			return model.PriceEntry{}, fmt.Errorf("%w: %s", model.ErrNotFound, sku)
		}
		if err := r.cache.Put(ctx, sku, res.entry); err != nil {
			obs.Logger.Warn("cache_put_failed", zap.String("sku", sku), zap.Error(err))
		}
		return res.entry, nil
	}
}
