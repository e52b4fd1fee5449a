package pricing

import "github.com/fairyhunter13/lowest-price-service/internal/model"

// cheaper reports whether a precedes b in lowest-price order. Price wins
// first; equal prices fall to the older ReceivedAt (stability over recency);
// retailer lexical order is the final key so the order stays total even for
// equal-price equal-timestamp rows.
func cheaper(a, b model.LatestEntry) bool {
	if cmp := a.Price.Cmp(b.Price); cmp != 0 {
		return cmp < 0
	}
	if !a.ReceivedAt.Equal(b.ReceivedAt) {
		return a.ReceivedAt.Before(b.ReceivedAt)
	}
	return a.Retailer < b.Retailer
}

// resolveLowest selects the lowest-price entry among the current latest rows
// for one sku. ok is false for an empty set.
func resolveLowest(entries []model.LatestEntry) (model.PriceEntry, bool) {
	if len(entries) == 0 {
		return model.PriceEntry{}, false
	}
	best := entries[0]
	for _, e := range entries[1:] {
		if cheaper(e, best) {
			best = e
		}
	}
	return best.Entry(), true
}
