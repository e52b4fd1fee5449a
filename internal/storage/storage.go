// Package storage defines the transactional store ports backing the price
// indexes, plus the in-memory and mirrored MySQL engines implementing them.
//
// Three tables are kept mutually consistent by every write transaction: the
// append-only history ledger, the latest-price index keyed (sku, retailer),
// and the lowest-price index keyed sku. The engine guarantees all-or-nothing
// commit across the three and serializes transactions per sku.
package storage

import (
	"context"

	"github.com/fairyhunter13/lowest-price-service/internal/model"
)

// Tx is the view of the master stores inside one atomic transaction. Reads
// observe the transaction's own staged writes.
type Tx interface {
	// AppendHistory appends a ledger row and returns it with the
	// store-assigned id (opaque, strictly increasing).
	AppendHistory(e model.HistoryEntry) (model.HistoryEntry, error)

	// Latest returns the latest-price row for (sku, retailer), if any.
	Latest(sku, retailer string) (model.LatestEntry, bool, error)

	// UpsertLatest overwrites the latest-price row for the entry's pair.
	UpsertLatest(e model.LatestEntry) error

	// Lowest returns the lowest-price row for sku, if any, holding
	// exclusive write access to it for the rest of the transaction.
	Lowest(sku string) (model.PriceEntry, bool, error)

	// UpsertLowest overwrites the lowest-price row for the entry's sku.
	UpsertLowest(e model.PriceEntry) error

	// LatestBySKU returns all latest-price rows for sku. Used by the
	// demotion rescan; a consistent read for the transaction's duration.
	LatestBySKU(sku string) ([]model.LatestEntry, error)
}

// Engine is the master write store.
type Engine interface {
	// Update runs fn inside one atomic transaction. Transactions for the
	// same sku are serialized; unrelated skus proceed in parallel. If fn
	// returns an error or the commit fails, no store reflects any of the
	// transaction's writes.
	Update(ctx context.Context, sku string, fn func(Tx) error) error
}

// ReplicaReader is a regional read-only view of the lowest-price index.
// The read path only ever touches replicas, never the master.
type ReplicaReader interface {
	LowestPrice(ctx context.Context, sku string) (model.PriceEntry, bool, error)
}

// Change describes the committed effect of one ingest, in the order replicas
// must apply it.
type Change struct {
	SKU     string
	History model.HistoryEntry
	// Latest is nil for dated observations, which touch history only.
	Latest *model.LatestEntry
	// Lowest is nil when the lowest-price row did not change.
	Lowest *model.PriceEntry
}

// DebugInfo is a point-in-time dump of the master tables, for the debug
// endpoint only.
type DebugInfo struct {
	History []model.HistoryEntry `json:"history"`
	Latest  []model.LatestEntry  `json:"latest"`
	Lowest  []model.PriceEntry   `json:"lowest"`
}

// Debugger is implemented by engines that can dump their tables.
type Debugger interface {
	DebugInfo() DebugInfo
}
