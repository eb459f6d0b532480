// Package cart holds the shopper's cart: an ordered set of line items kept in
// memory and mirrored to durable local storage after every change.
package cart

import (
	"github.com/shopspring/decimal"
)

// StorageKey is the local storage key the cart snapshot lives under.
const StorageKey = "cart"

// CartItem is one line in the cart. ID is unique per product or variant.
type CartItem struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	Image    string  `json:"image,omitempty"`
}

// LineTotal returns price times quantity.
func (i CartItem) LineTotal() decimal.Decimal {
	return decimal.NewFromFloat(i.Price).Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// sanitize drops rehydrated entries that break the cart invariants: empty
// ids, non-positive quantities and duplicate ids (first one wins).
func sanitize(items []CartItem) []CartItem {
	seen := make(map[string]struct{}, len(items))
	out := make([]CartItem, 0, len(items))
	for _, it := range items {
		if it.ID == "" || it.Quantity < 1 {
			continue
		}
		if _, dup := seen[it.ID]; dup {
			continue
		}
		seen[it.ID] = struct{}{}
		out = append(out, it)
	}
	return out
}
