package pricing

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fairyhunter13/lowest-price-service/internal/cache"
	"github.com/fairyhunter13/lowest-price-service/internal/model"
	"github.com/fairyhunter13/lowest-price-service/internal/obs"
	"github.com/fairyhunter13/lowest-price-service/internal/storage"
)

// ChangePublisher receives committed changes for propagation to the mirror
// topology. Publish must only be called after the write transaction commits.
type ChangePublisher interface {
	Publish(ch storage.Change) bool
}

// Coordinator orchestrates one ingest event across the three stores as one
// atomic unit and emits the post-commit invalidation.
type Coordinator struct {
	engine storage.Engine
	local  cache.Cache
	feed   ChangePublisher
	clock  *Clock
}

// NewCoordinator wires the write path. local is the serving region's cache,
// invalidated synchronously after commit; feed carries the change and
// invalidation signal to the rest of the topology and may be nil.
func NewCoordinator(engine storage.Engine, local cache.Cache, feed ChangePublisher) *Coordinator {
	return &Coordinator{engine: engine, local: local, feed: feed, clock: NewClock()}
}

// Receive ingests one price observation.
//
// The history append, latest-price upsert, and lowest-price decision commit
// atomically on the master; a failure leaves no trace of the observation in
// any store and is reported as ErrStorageUnavailable. Retrying is the
// caller's policy.
func (c *Coordinator) Receive(ctx context.Context, o model.Observation) error {
	o = o.Canonicalize()
	if err := o.Validate(); err != nil {
		return err
	}

	var ch storage.Change
	err := c.engine.Update(ctx, o.SKU, func(tx storage.Tx) error {
		// The ingest timestamp is drawn inside the transaction, under the
		// engine's per-sku serialization, so commit order and timestamp
		// order agree for a (sku, retailer) pair.
		o.ReceivedAt = c.clock.Next()
		return c.apply(tx, o, &ch)
	})
	if err != nil {
		if errors.Is(err, model.ErrInvalidInput) {
			return err
		}
		return fmt.Errorf("%w: %v", model.ErrStorageUnavailable, err)
	}

	// Invalidation strictly follows the commit: evict, never refresh.
	if err := c.local.Invalidate(ctx, o.SKU); err != nil {
		obs.Logger.Warn("local_cache_invalidate_failed",
			zap.String("sku", o.SKU), zap.Error(err))
	}
	if c.feed != nil {
		c.feed.Publish(ch)
	}
	obs.Logger.Info("observation_committed",
		zap.String("sku", o.SKU),
		zap.String("retailer", o.Retailer),
		zap.String("price", o.Price.String()),
		zap.Uint64("history_id", ch.History.ID),
		zap.Bool("lowest_changed", ch.Lowest != nil),
	)
	return nil
}

// apply runs inside the master transaction.
func (c *Coordinator) apply(tx storage.Tx, o model.Observation, ch *storage.Change) error {
	ch.SKU = o.SKU
	h, err := tx.AppendHistory(model.HistoryEntry{
		SKU:        o.SKU,
		Retailer:   o.Retailer,
		Price:      o.Price,
		URL:        o.URL,
		FromDate:   o.FromDate,
		ToDate:     o.ToDate,
		ReceivedAt: o.ReceivedAt,
	})
	if err != nil {
		return err
	}
	ch.History = h

	if o.Dated() {
		// Dated price points live in history only until their effect time.
		return nil
	}

	prev, hadPrev, err := tx.Latest(o.SKU, o.Retailer)
	if err != nil {
		return err
	}
	if hadPrev && prev.ReceivedAt.After(o.ReceivedAt) {
		// The pair's latest row already holds a newer observation; this
		// one is superseded and stays in history only. Cannot happen when
		// the engine serializes the whole transaction per sku, but guards
		// engines whose serialization point sits later in the transaction.
		obs.Logger.Debug("superseded_observation_skipped",
			zap.String("sku", o.SKU),
			zap.String("retailer", o.Retailer),
		)
		return nil
	}

	le := model.LatestEntry{
		SKU:        o.SKU,
		Retailer:   o.Retailer,
		Price:      o.Price,
		URL:        o.URL,
		ReceivedAt: o.ReceivedAt,
	}
	if err := tx.UpsertLatest(le); err != nil {
		return err
	}
	ch.Latest = &le

	cur, exists, err := tx.Lowest(o.SKU)
	if err != nil {
		return err
	}

	var next *model.PriceEntry
	switch {
	case !exists:
		e := le.Entry()
		next = &e
	case o.Price.LessThan(cur.Price):
		e := le.Entry()
		next = &e
	case o.Price.Equal(cur.Price):
		// A tie only refreshes the row when this retailer already holds
		// the slot; a different retailer loses to the older entry.
		if cur.Retailer == o.Retailer {
			e := le.Entry()
			next = &e
		}
	case cur.Retailer == o.Retailer:
		// Demotion: the holder of the lowest slot got more expensive.
		// Rescan all latest rows for the sku (the expensive, rare path).
		entries, err := tx.LatestBySKU(o.SKU)
		if err != nil {
			return err
		}
		e, ok := resolveLowest(entries)
		if !ok {
			return fmt.Errorf("no latest rows for sku %q during demotion", o.SKU)
		}
		next = &e
		obs.Logger.Debug("lowest_demotion_rescan",
			zap.String("sku", o.SKU),
			zap.String("new_retailer", e.Retailer),
			zap.Int("scanned", len(entries)),
		)
	}

	if next != nil {
		if err := tx.UpsertLowest(*next); err != nil {
			return err
		}
		ch.Lowest = next
	}
	return nil
}
