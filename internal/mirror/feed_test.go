package mirror

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/lowest-price-service/internal/model"
	"github.com/fairyhunter13/lowest-price-service/internal/storage"
)

func change(sku string, price int64) storage.Change {
	e := model.PriceEntry{SKU: sku, Retailer: "r1", Price: decimal.NewFromInt(price), ReceivedAt: time.Now().UTC()}
	return storage.Change{SKU: sku, Lowest: &e}
}

func TestFeedDeliversToAllRegions(t *testing.T) {
	r1 := NewMemoryRegion("eu-west", time.Minute)
	r2 := NewMemoryRegion("us-east", time.Minute)
	f := NewFeed(r1, r2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.Start(ctx)

	if ok := f.Publish(change("a", 10)); !ok {
		t.Fatalf("publish rejected")
	}
	dctx, dcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer dcancel()
	if !f.DrainUntil(dctx) {
		t.Fatalf("drain timeout")
	}
	for _, r := range []*Region{r1, r2} {
		got, ok, err := r.Replica.LowestPrice(context.Background(), "a")
		if err != nil || !ok {
			t.Fatalf("region %s missed the change: ok=%v err=%v", r.Name, ok, err)
		}
		if !got.Price.Equal(decimal.NewFromInt(10)) {
			t.Fatalf("region %s has wrong entry: %+v", r.Name, got)
		}
	}
}

func TestFeedInvalidatesRegionCacheAfterApply(t *testing.T) {
	r := NewMemoryRegion("eu-west", time.Minute)
	f := NewFeed(r)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.Start(ctx)

	stale := model.PriceEntry{SKU: "a", Retailer: "r9", Price: decimal.NewFromInt(99)}
	_ = r.Cache.Put(context.Background(), "a", stale)

	_ = f.Publish(change("a", 10))
	dctx, dcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer dcancel()
	if !f.DrainUntil(dctx) {
		t.Fatalf("drain timeout")
	}
	if _, ok, _ := r.Cache.Get(context.Background(), "a"); ok {
		t.Fatalf("regional cache entry survived the invalidation")
	}
	// next read through the replica sees the new price
	got, ok, err := r.Replica.LowestPrice(context.Background(), "a")
	if err != nil || !ok || !got.Price.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("replica not updated: %+v ok=%v err=%v", got, ok, err)
	}
}

func TestFeedPreservesCommitOrder(t *testing.T) {
	r := NewMemoryRegion("eu-west", time.Minute)
	f := NewFeed(r)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.Start(ctx)

	for i := int64(1); i <= 100; i++ {
		_ = f.Publish(change("a", i))
	}
	dctx, dcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer dcancel()
	if !f.DrainUntil(dctx) {
		t.Fatalf("drain timeout")
	}
	got, ok, _ := r.Replica.LowestPrice(context.Background(), "a")
	if !ok || !got.Price.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("last write must win in order: %+v", got)
	}
}

func TestFeedCloseIntake(t *testing.T) {
	f := NewFeed()
	f.CloseIntake()
	if !f.IsShuttingDown() {
		t.Fatalf("expected shutting down true")
	}
	if ok := f.Publish(change("a", 1)); ok {
		t.Fatalf("expected publish false when shutting down")
	}
}

func TestFeedMetrics(t *testing.T) {
	r := NewMemoryRegion("eu-west", time.Minute)
	f := NewFeed(r)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.Start(ctx)
	for i := 0; i < 10; i++ {
		_ = f.Publish(change("a", int64(i)))
	}
	dctx, dcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer dcancel()
	if !f.DrainUntil(dctx) {
		t.Fatalf("drain timeout")
	}
	pub, del, backlog := f.Metrics()
	if pub != 10 || del != 10 || backlog != 0 {
		t.Fatalf("unexpected metrics: pub=%d del=%d backlog=%d", pub, del, backlog)
	}
}
