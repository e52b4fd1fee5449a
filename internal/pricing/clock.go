// Package pricing implements the denormalized consistency core: the write
// coordinator keeping the three price tables consistent, the lowest-price
// resolver, and the read router serving lookups from cache and replica.
package pricing

import (
	"sync"
	"time"
)

// Clock assigns ingest timestamps that strictly increase per process, so the
// oldest-wins tie-break stays deterministic even when observations arrive
// within the same wall-clock tick.
type Clock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewClock creates a Clock backed by wall time.
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// Next returns the next ingest timestamp in UTC.
func (c *Clock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC()
	if !t.After(c.last) {
		t = c.last.Add(time.Nanosecond)
	}
	c.last = t
	return t
}
