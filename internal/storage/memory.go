package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/fairyhunter13/lowest-price-service/internal/model"
)

type pairKey struct{ sku, retailer string }

// MemoryEngine is the in-memory master engine used for development and
// tests. Writes are staged per transaction and applied all-or-nothing;
// transactions for the same sku serialize on a per-sku mutex so unrelated
// products never contend.
type MemoryEngine struct {
	seq Sequencer

	mu      sync.Mutex
	history []model.HistoryEntry
	latest  map[pairKey]model.LatestEntry
	lowest  map[string]model.PriceEntry
	skuMu   map[string]*sync.Mutex

	commitHook func() error
}

// NewMemoryEngine creates an empty in-memory engine.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		latest: make(map[pairKey]model.LatestEntry),
		lowest: make(map[string]model.PriceEntry),
		skuMu:  make(map[string]*sync.Mutex),
	}
}

// SetCommitHook installs a hook invoked at commit time, before any staged
// write is applied. A hook error aborts the commit and discards the staged
// writes. Test hook for forcing commit failures.
func (e *MemoryEngine) SetCommitHook(fn func() error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.commitHook = fn
}

func (e *MemoryEngine) skuLock(sku string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.skuMu[sku]
	if !ok {
		l = &sync.Mutex{}
		e.skuMu[sku] = l
	}
	return l
}

// Update implements Engine.
func (e *MemoryEngine) Update(ctx context.Context, sku string, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lock := e.skuLock(sku)
	lock.Lock()
	defer lock.Unlock()

	tx := &memTx{
		e:      e,
		latest: make(map[pairKey]model.LatestEntry),
		lowest: make(map[string]model.PriceEntry),
	}
	if err := fn(tx); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.commitHook != nil {
		hook := e.commitHook
		e.commitHook = nil
		if err := hook(); err != nil {
			return err
		}
	}
	e.history = append(e.history, tx.history...)
	for k, v := range tx.latest {
		e.latest[k] = v
	}
	for k, v := range tx.lowest {
		e.lowest[k] = v
	}
	return nil
}

// DebugInfo implements Debugger.
func (e *MemoryEngine) DebugInfo() DebugInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	info := DebugInfo{History: append([]model.HistoryEntry(nil), e.history...)}
	for _, v := range e.latest {
		info.Latest = append(info.Latest, v)
	}
	for _, v := range e.lowest {
		info.Lowest = append(info.Lowest, v)
	}
	sort.Slice(info.Latest, func(i, j int) bool {
		a, b := info.Latest[i], info.Latest[j]
		if a.SKU != b.SKU {
			return a.SKU < b.SKU
		}
		return a.Retailer < b.Retailer
	})
	sort.Slice(info.Lowest, func(i, j int) bool {
		return info.Lowest[i].SKU < info.Lowest[j].SKU
	})
	return info
}

// memTx stages writes; reads observe staged writes over committed state.
type memTx struct {
	e       *MemoryEngine
	history []model.HistoryEntry
	latest  map[pairKey]model.LatestEntry
	lowest  map[string]model.PriceEntry
}

func (t *memTx) AppendHistory(e model.HistoryEntry) (model.HistoryEntry, error) {
	e.ID = t.e.seq.Next()
	t.history = append(t.history, e)
	return e, nil
}

func (t *memTx) Latest(sku, retailer string) (model.LatestEntry, bool, error) {
	k := pairKey{sku, retailer}
	if v, ok := t.latest[k]; ok {
		return v, true, nil
	}
	t.e.mu.Lock()
	defer t.e.mu.Unlock()
	v, ok := t.e.latest[k]
	return v, ok, nil
}

func (t *memTx) UpsertLatest(e model.LatestEntry) error {
	t.latest[pairKey{e.SKU, e.Retailer}] = e
	return nil
}

func (t *memTx) Lowest(sku string) (model.PriceEntry, bool, error) {
	if v, ok := t.lowest[sku]; ok {
		return v, true, nil
	}
	t.e.mu.Lock()
	defer t.e.mu.Unlock()
	v, ok := t.e.lowest[sku]
	return v, ok, nil
}

func (t *memTx) UpsertLowest(e model.PriceEntry) error {
	t.lowest[e.SKU] = e
	return nil
}

func (t *memTx) LatestBySKU(sku string) ([]model.LatestEntry, error) {
	merged := make(map[pairKey]model.LatestEntry)
	t.e.mu.Lock()
	for k, v := range t.e.latest {
		if k.sku == sku {
			merged[k] = v
		}
	}
	t.e.mu.Unlock()
	for k, v := range t.latest {
		if k.sku == sku {
			merged[k] = v
		}
	}
	out := make([]model.LatestEntry, 0, len(merged))
	for _, v := range merged {
		out = append(out, v)
	}
	return out, nil
}

// MemoryReplica is a regional read-only mirror of the lowest-price index,
// fed asynchronously by the mirror feed.
type MemoryReplica struct {
	mu     sync.RWMutex
	lowest map[string]model.PriceEntry
}

// NewMemoryReplica creates an empty replica.
func NewMemoryReplica() *MemoryReplica {
	return &MemoryReplica{lowest: make(map[string]model.PriceEntry)}
}

// Apply mirrors one committed change into the replica.
func (r *MemoryReplica) Apply(ch Change) {
	if ch.Lowest == nil {
		return
	}
	r.mu.Lock()
	r.lowest[ch.SKU] = *ch.Lowest
	r.mu.Unlock()
}

// LowestPrice implements ReplicaReader.
func (r *MemoryReplica) LowestPrice(ctx context.Context, sku string) (model.PriceEntry, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.PriceEntry{}, false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.lowest[sku]
	return v, ok, nil
}
