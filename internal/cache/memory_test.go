package cache

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/lowest-price-service/internal/model"
)

func sampleEntry(sku string, price int64) model.PriceEntry {
	return model.PriceEntry{SKU: sku, Retailer: "r1", Price: decimal.NewFromInt(price)}
}

func TestMemoryPutGet(t *testing.T) {
	c := NewMemory(time.Minute)
	ctx := context.Background()
	if _, ok, _ := c.Get(ctx, "a"); ok {
		t.Fatalf("expected miss on empty cache")
	}
	if err := c.Put(ctx, "a", sampleEntry("a", 10)); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := c.Get(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("expected hit: ok=%v err=%v", ok, err)
	}
	if !got.Price.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected entry: %+v", got)
	}
}

func TestMemoryInvalidateEvicts(t *testing.T) {
	c := NewMemory(time.Minute)
	ctx := context.Background()
	_ = c.Put(ctx, "a", sampleEntry("a", 10))
	if err := c.Invalidate(ctx, "a"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "a"); ok {
		t.Fatalf("entry survived invalidation")
	}
	// invalidating an absent key is a no-op
	if err := c.Invalidate(ctx, "never"); err != nil {
		t.Fatalf("invalidate absent: %v", err)
	}
}

func TestMemoryTTLExpiry(t *testing.T) {
	c := NewMemory(100 * time.Millisecond)
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()
	_ = c.Put(ctx, "a", sampleEntry("a", 10))
	if _, ok, _ := c.Get(ctx, "a"); !ok {
		t.Fatalf("expected hit before expiry")
	}
	now = now.Add(101 * time.Millisecond)
	if _, ok, _ := c.Get(ctx, "a"); ok {
		t.Fatalf("expected miss after expiry")
	}
	if len(c.Dump()) != 0 {
		t.Fatalf("expired entry visible in dump")
	}
}

func TestMemoryDump(t *testing.T) {
	c := NewMemory(time.Minute)
	ctx := context.Background()
	_ = c.Put(ctx, "a", sampleEntry("a", 10))
	_ = c.Put(ctx, "b", sampleEntry("b", 20))
	d := c.Dump()
	if len(d) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(d))
	}
	if !d["b"].Price.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("unexpected dump: %+v", d)
	}
}

func TestMemoryHonorsContext(t *testing.T) {
	c := NewMemory(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := c.Get(ctx, "a"); err == nil {
		t.Fatalf("expected context error")
	}
	if err := c.Put(ctx, "a", sampleEntry("a", 1)); err == nil {
		t.Fatalf("expected context error")
	}
}
