// Package mirror propagates committed changes from the master toward the
// regional read replicas and caches. Propagation is asynchronous relative to
// the write's own commit; the feed preserves commit order.
package mirror

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fairyhunter13/lowest-price-service/internal/obs"
	"github.com/fairyhunter13/lowest-price-service/internal/storage"
)

// Feed is a buffered change feed with a background broker that delivers
// committed changes to every region in order. One broker goroutine keeps
// per-region apply ordered; invalidations are delivered only after the
// region's replica has the new data.
type Feed struct {
	mu           sync.Mutex
	backlog      []storage.Change
	notify       chan struct{}
	regions      []*Region
	shuttingDown atomic.Bool

	published atomic.Uint64
	delivered atomic.Uint64
}

// NewFeed creates a feed delivering to the given regions.
func NewFeed(regions ...*Region) *Feed {
	return &Feed{
		notify:  make(chan struct{}, 1),
		regions: regions,
	}
}

// Start runs the broker loop.
func (f *Feed) Start(ctx context.Context) {
	go f.broker(ctx)
}

// broker drains the backlog into the regions.
func (f *Feed) broker(ctx context.Context) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		f.flushOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-f.notify:
		case <-ticker.C:
		}
	}
}

// flushOnce delivers every pending change to every region.
func (f *Feed) flushOnce(ctx context.Context) {
	for {
		f.mu.Lock()
		if len(f.backlog) == 0 {
			f.mu.Unlock()
			return
		}
		ch := f.backlog[0]
		f.backlog = f.backlog[1:]
		f.mu.Unlock()

		for _, r := range f.regions {
			r.deliver(ctx, ch)
		}
		f.delivered.Add(1)
	}
}

// Publish appends a committed change and notifies the broker. It returns
// false once intake is closed.
func (f *Feed) Publish(ch storage.Change) bool {
	if f.shuttingDown.Load() {
		return false
	}
	f.published.Add(1)
	f.mu.Lock()
	f.backlog = append(f.backlog, ch)
	f.mu.Unlock()
	select {
	case f.notify <- struct{}{}:
	default:
	}
	return true
}

// BacklogSize returns the number of published-but-undelivered changes.
func (f *Feed) BacklogSize() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.backlog)
}

// Metrics returns delivery counters and backlog size for observability.
func (f *Feed) Metrics() (published, delivered uint64, backlog int) {
	return f.published.Load(), f.delivered.Load(), f.BacklogSize()
}

// CloseIntake disallows future publishes.
func (f *Feed) CloseIntake() { f.shuttingDown.Store(true) }

// IsShuttingDown reports if intake has been closed.
func (f *Feed) IsShuttingDown() bool { return f.shuttingDown.Load() }

// DrainUntil blocks until every published change has been delivered or the
// context is done. Used by shutdown and by tests that need the topology
// caught up.
func (f *Feed) DrainUntil(ctx context.Context) bool {
	for {
		pub, del, backlog := f.Metrics()
		if backlog == 0 && pub == del {
			return true
		}
		select {
		case <-ctx.Done():
			obs.Logger.Warn("mirror_drain_timeout",
				zap.Uint64("published", pub),
				zap.Uint64("delivered", del),
				zap.Int("backlog", backlog),
			)
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
}
