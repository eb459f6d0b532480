package commerce

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lumen-apothecary/storefront/internal/address"
	"github.com/lumen-apothecary/storefront/internal/rating"
	"github.com/lumen-apothecary/storefront/internal/session"
)

// Memory is an in-process stand-in for the commerce backend used when the
// storefront runs without a proxy. Any non-empty credentials log in; the
// user id is derived from the email so restarts keep the same shopper.
type Memory struct {
	*address.MemoryBackend

	mu       sync.Mutex
	products []Product
	reviews  map[string][]rating.ReviewItem
	orders   []OrderRequest
}

// NewMemory creates a backend with a small demo catalog.
func NewMemory() *Memory {
	m := &Memory{
		MemoryBackend: address.NewMemoryBackend(),
		reviews:       make(map[string][]rating.ReviewItem),
	}
	m.products = []Product{
		{ID: "vitamin-c-serum", Name: "Vitamin C Brightening Serum", Category: "serums", Price: decimal.RequireFromString("24.50"), InStock: true},
		{ID: "gel-cleanser", Name: "Gentle Gel Cleanser", Category: "cleansers", Price: decimal.RequireFromString("12.00"), InStock: true},
		{ID: "barrier-cream", Name: "Ceramide Barrier Cream", Category: "moisturisers", Price: decimal.RequireFromString("29.00"), InStock: true},
		{ID: "spf-50", Name: "Mineral Sunscreen SPF 50", Category: "sun", Price: decimal.RequireFromString("19.75"), InStock: false},
	}
	m.reviews["vitamin-c-serum"] = []rating.ReviewItem{
		{ID: "r1", StarRating: rating.Star(5), Comment: "Visible glow in a week"},
		{ID: "r2", StarRating: rating.Star("4"), Comment: "Nice texture"},
		{ID: "r3", StarRating: rating.Star(4.5)},
	}
	return m
}

// Login issues a session for any non-empty credentials.
func (m *Memory) Login(_ context.Context, email, password string) (session.Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return session.Identity{}, &APIError{StatusCode: http.StatusUnauthorized, Code: http.StatusUnauthorized, Message: "invalid credentials"}
	}
	return session.Identity{
		SessionKey: uuid.NewString(),
		UserID:     uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+email)).String(),
		Email:      email,
	}, nil
}

func (m *Memory) Logout(context.Context) error { return nil }

func (m *Memory) ListProducts(_ context.Context, q ProductQuery) ([]Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Product
	for _, p := range m.products {
		if q.Category == "" || p.Category == q.Category {
			out = append(out, p)
		}
	}
	if q.Offset >= len(out) {
		return []Product{}, nil
	}
	out = out[q.Offset:]
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *Memory) GetProduct(_ context.Context, id string) (*Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.products {
		if p.ID == id {
			p := p
			return &p, nil
		}
	}
	return nil, &APIError{StatusCode: http.StatusNotFound, Code: http.StatusNotFound, Message: fmt.Sprintf("product %s not found", id)}
}

func (m *Memory) ListReviews(_ context.Context, productID string) ([]rating.ReviewItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.reviews[productID]
	out := make([]rating.ReviewItem, len(rows))
	copy(out, rows)
	return out, nil
}

// PlaceOrder accepts any order with at least one line and echoes the
// subtotal back as the total.
func (m *Memory) PlaceOrder(_ context.Context, order OrderRequest) (*Order, error) {
	if len(order.Items) == 0 {
		return nil, &APIError{StatusCode: http.StatusBadRequest, Code: http.StatusBadRequest, Message: "order has no items"}
	}
	m.mu.Lock()
	m.orders = append(m.orders, order)
	m.mu.Unlock()
	return &Order{ID: uuid.NewString(), Status: "placed", Total: order.Subtotal}, nil
}

// Orders returns the orders placed so far.
func (m *Memory) Orders() []OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OrderRequest, len(m.orders))
	copy(out, m.orders)
	return out
}
