// Package model defines domain types shared by the write and read paths.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Observation represents one incoming price datapoint from a retailer.
//
// SKU and Retailer are case-insensitive identifiers; Canonicalize must be
// called before an Observation is used as a key anywhere. ReceivedAt is
// assigned by the write coordinator at ingest time, not by the caller.
type Observation struct {
	SKU      string          `json:"sku"`
	Retailer string          `json:"retailer"`
	Price    decimal.Decimal `json:"price"`
	URL      string          `json:"url,omitempty"`

	// FromDate/ToDate mark a dated price point: it is recorded in history
	// only and applied to the live indexes by an external scheduler.
	FromDate *time.Time `json:"from_date,omitempty"`
	ToDate   *time.Time `json:"to_date,omitempty"`

	ReceivedAt time.Time `json:"-"`
}

// CanonicalID folds an identifier to its canonical key form. Two identifiers
// differing only in case or surrounding whitespace refer to the same entity.
func CanonicalID(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Canonicalize returns a copy with SKU and Retailer in canonical key form.
func (o Observation) Canonicalize() Observation {
	o.SKU = CanonicalID(o.SKU)
	o.Retailer = CanonicalID(o.Retailer)
	return o
}

// Dated reports whether the observation carries an effective-date range and
// therefore must not touch the latest/lowest indexes.
func (o Observation) Dated() bool {
	return o.FromDate != nil || o.ToDate != nil
}

// Validate re-checks the invariants the upstream validation layer promises.
// Violations mean a logic error upstream, reported as ErrInvalidInput.
func (o Observation) Validate() error {
	if o.SKU == "" {
		return fmt.Errorf("%w: blank sku", ErrInvalidInput)
	}
	if o.Retailer == "" {
		return fmt.Errorf("%w: blank retailer", ErrInvalidInput)
	}
	if o.Price.IsNegative() {
		return fmt.Errorf("%w: negative price %s", ErrInvalidInput, o.Price)
	}
	return nil
}

// HistoryEntry is one immutable row of the append-only price history ledger.
// ID is assigned by the store and strictly increases per master.
type HistoryEntry struct {
	ID         uint64          `json:"id"`
	SKU        string          `json:"sku"`
	Retailer   string          `json:"retailer"`
	Price      decimal.Decimal `json:"price"`
	URL        string          `json:"url,omitempty"`
	FromDate   *time.Time      `json:"from_date,omitempty"`
	ToDate     *time.Time      `json:"to_date,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

// LatestEntry holds the most recent price reported by one retailer for one
// sku. At most one row exists per (sku, retailer) pair.
type LatestEntry struct {
	SKU        string          `json:"sku"`
	Retailer   string          `json:"retailer"`
	Price      decimal.Decimal `json:"price"`
	URL        string          `json:"url,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

// PriceEntry is the lowest-price row for a sku and the payload returned by
// the read path: the cheapest currently-latest observation across retailers.
type PriceEntry struct {
	SKU        string          `json:"sku"`
	Retailer   string          `json:"retailer"`
	Price      decimal.Decimal `json:"price"`
	URL        string          `json:"url,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Entry converts a latest row into a lowest-price row.
func (l LatestEntry) Entry() PriceEntry {
	return PriceEntry{
		SKU:        l.SKU,
		Retailer:   l.Retailer,
		Price:      l.Price,
		URL:        l.URL,
		ReceivedAt: l.ReceivedAt,
	}
}
