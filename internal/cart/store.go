package cart

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/lumen-apothecary/storefront/internal/localstore"
	"github.com/lumen-apothecary/storefront/internal/logging"
	"github.com/lumen-apothecary/storefront/internal/notify"
)

// Operation names reported to the observer.
const (
	OpAdd      = "add"
	OpIncrease = "increase"
	OpDecrease = "decrease"
	OpUpdate   = "update"
	OpRemove   = "remove"
	OpClear    = "clear"
)

// Store is the canonical cart. All methods are safe for concurrent use and
// each mutation is applied atomically before the snapshot is persisted.
type Store struct {
	mu    sync.Mutex
	items []CartItem

	storage  localstore.Storage
	log      *logging.Logger
	notifier notify.Notifier
	observe  func(op string)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for dropped persistence writes.
func WithLogger(log *logging.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithNotifier sets where cart notifications go.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// WithObserver registers a callback invoked with the operation name after
// every mutation that changed the cart.
func WithObserver(fn func(op string)) Option {
	return func(s *Store) { s.observe = fn }
}

// NewStore creates a cart and rehydrates it once from storage. Missing or
// corrupt stored data yields an empty cart.
func NewStore(storage localstore.Storage, opts ...Option) *Store {
	s := &Store{storage: storage}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logging.NewDefault("cart")
	}

	var stored []CartItem
	if localstore.Load(context.Background(), storage, StorageKey, &stored) {
		s.items = sanitize(stored)
	} else {
		s.items = []CartItem{}
	}
	return s
}

func (s *Store) indexOf(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

// commit persists the current snapshot. Caller holds s.mu.
func (s *Store) commit() {
	localstore.Persist(context.Background(), s.storage, StorageKey, s.items, s.log)
}

// observed reports op to the observer. Caller must not hold s.mu so the
// observer can read the cart.
func (s *Store) observed(op string) {
	if s.observe != nil {
		s.observe(op)
	}
}

// AddToCart merges item into the cart. An existing line with the same ID
// grows by item.Quantity; otherwise the item is appended. A quantity below 1
// is treated as 1.
func (s *Store) AddToCart(item CartItem) {
	if item.Quantity < 1 {
		item.Quantity = 1
	}

	s.mu.Lock()
	if i := s.indexOf(item.ID); i >= 0 {
		s.items[i].Quantity += item.Quantity
	} else {
		s.items = append(s.items, item)
	}
	s.commit()
	s.mu.Unlock()
	s.observed(OpAdd)

	notify.Success(context.Background(), s.notifier, "cart", fmt.Sprintf("Added %s to cart", displayName(item)))
}

// IncreaseItemQuantity adds one to the matching line. Unknown ids are ignored.
func (s *Store) IncreaseItemQuantity(id string) {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	s.items[i].Quantity++
	s.commit()
	s.mu.Unlock()
	s.observed(OpIncrease)
}

// DecreaseItemQuantity removes one from the matching line, dropping the line
// when it would reach zero. Unknown ids are ignored.
func (s *Store) DecreaseItemQuantity(id string) {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	removed := s.items[i]
	if s.items[i].Quantity <= 1 {
		s.items = append(s.items[:i], s.items[i+1:]...)
	} else {
		s.items[i].Quantity--
		removed = CartItem{}
	}
	s.commit()
	s.mu.Unlock()
	s.observed(OpDecrease)

	if removed.ID != "" {
		notify.Info(context.Background(), s.notifier, "cart", fmt.Sprintf("Removed %s from cart", displayName(removed)))
	}
}

// UpdateItemQuantity sets the quantity of the matching line to max(qty, 1).
// Unknown ids are ignored.
func (s *Store) UpdateItemQuantity(id string, qty int) {
	if qty < 1 {
		qty = 1
	}

	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	s.items[i].Quantity = qty
	s.commit()
	s.mu.Unlock()
	s.observed(OpUpdate)
}

// RemoveFromCart deletes the matching line.
func (s *Store) RemoveFromCart(id string) {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	removed := s.items[i]
	s.items = append(s.items[:i], s.items[i+1:]...)
	s.commit()
	s.mu.Unlock()
	s.observed(OpRemove)

	notify.Info(context.Background(), s.notifier, "cart", fmt.Sprintf("Removed %s from cart", displayName(removed)))
}

// ClearCart empties the cart.
func (s *Store) ClearCart() {
	s.mu.Lock()
	s.items = []CartItem{}
	s.commit()
	s.mu.Unlock()
	s.observed(OpClear)

	notify.Info(context.Background(), s.notifier, "cart", "Cart cleared")
}

// Items returns a copy of the cart lines in insertion order.
func (s *Store) Items() []CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CartItem, len(s.items))
	copy(out, s.items)
	return out
}

// Item returns the line with the given id.
func (s *Store) Item(id string) (CartItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		return s.items[i], true
	}
	return CartItem{}, false
}

// Count returns the total number of units in the cart.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, it := range s.items {
		n += it.Quantity
	}
	return n
}

// Subtotal returns the sum of line totals. It is display arithmetic only;
// the backend prices the order.
func (s *Store) Subtotal() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, it := range s.items {
		total = total.Add(it.LineTotal())
	}
	return total
}

func displayName(it CartItem) string {
	if it.Name != "" {
		return it.Name
	}
	return "item"
}
