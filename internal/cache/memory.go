package cache

import (
	"context"
	"sync"
	"time"

	"github.com/fairyhunter13/lowest-price-service/internal/model"
)

// Memory is the in-process regional cache used for development and tests.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu sync.RWMutex
	m  map[string]entry
}

// NewMemory creates an in-memory cache with the given TTL.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, now: time.Now, m: make(map[string]entry)}
}

// Get implements Cache. Expired entries read as misses and are dropped.
func (c *Memory) Get(ctx context.Context, sku string) (model.PriceEntry, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.PriceEntry{}, false, err
	}
	c.mu.RLock()
	e, ok := c.m[sku]
	c.mu.RUnlock()
	if !ok {
		return model.PriceEntry{}, false, nil
	}
	if c.now().After(e.expires) {
		c.mu.Lock()
		if cur, still := c.m[sku]; still && c.now().After(cur.expires) {
			delete(c.m, sku)
		}
		c.mu.Unlock()
		return model.PriceEntry{}, false, nil
	}
	return e.value, true, nil
}

// Put implements Cache.
func (c *Memory) Put(ctx context.Context, sku string, v model.PriceEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.m[sku] = entry{value: v, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

// Invalidate implements Cache.
func (c *Memory) Invalidate(ctx context.Context, sku string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.m, sku)
	c.mu.Unlock()
	return nil
}

// Dump returns a copy of the live entries, for the debug endpoint.
func (c *Memory) Dump() map[string]model.PriceEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]model.PriceEntry, len(c.m))
	now := c.now()
	for k, e := range c.m {
		if now.After(e.expires) {
			continue
		}
		out[k] = e.value
	}
	return out
}
