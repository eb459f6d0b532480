package commerce

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/lumen-apothecary/storefront/internal/address"
	"github.com/lumen-apothecary/storefront/internal/cart"
	"github.com/lumen-apothecary/storefront/internal/rating"
	"github.com/lumen-apothecary/storefront/internal/session"
)

// Product is a catalog entry.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image,omitempty"`
	InStock     bool            `json:"in_stock"`
}

// ProductQuery filters ListProducts. Zero fields are omitted.
type ProductQuery struct {
	Limit    int
	Offset   int
	Category string
}

func (q ProductQuery) values() url.Values {
	v := url.Values{}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	if q.Category != "" {
		v.Set("category", q.Category)
	}
	return v
}

// OrderLine is one product in an order request.
type OrderLine struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderRequest is the body of POST /orders. Subtotal is informational; the
// backend prices the order.
type OrderRequest struct {
	Items     []OrderLine     `json:"items"`
	AddressID string          `json:"address_id"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// NewOrderRequest builds an order from cart lines.
func NewOrderRequest(items []cart.CartItem, addressID string) OrderRequest {
	req := OrderRequest{Items: make([]OrderLine, 0, len(items)), AddressID: addressID, Subtotal: decimal.Zero}
	for _, it := range items {
		req.Items = append(req.Items, OrderLine{
			ProductID: it.ID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: decimal.NewFromFloat(it.Price),
		})
		req.Subtotal = req.Subtotal.Add(it.LineTotal())
	}
	return req
}

// Order is the backend's confirmation of a placed order.
type Order struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Total  decimal.Decimal `json:"total"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges credentials for a session identity.
func (c *Client) Login(ctx context.Context, email, password string) (session.Identity, error) {
	resp, err := c.call(ctx, "auth.login", http.MethodPost, "/auth/login", nil, loginRequest{Email: email, Password: password})
	if err != nil {
		return session.Identity{}, err
	}
	var id session.Identity
	if err := resp.DataJSON(&id); err != nil {
		return session.Identity{}, fmt.Errorf("decode login: %w", err)
	}
	if id.SessionKey == "" || id.UserID == "" {
		return session.Identity{}, fmt.Errorf("decode login: missing session key or user id")
	}
	return id, nil
}

// Logout ends the current session on the backend.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.call(ctx, "auth.logout", http.MethodPost, "/auth/logout", nil, nil)
	return err
}

// ListProducts returns a page of the catalog.
func (c *Client) ListProducts(ctx context.Context, q ProductQuery) ([]Product, error) {
	resp, err := c.call(ctx, "products.list", http.MethodGet, "/products", q.values(), nil)
	if err != nil {
		return nil, err
	}
	var products []Product
	if err := resp.DataJSON(&products); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return products, nil
}

// GetProduct returns one product.
func (c *Client) GetProduct(ctx context.Context, id string) (*Product, error) {
	resp, err := c.call(ctx, "products.get", http.MethodGet, "/products/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return nil, err
	}
	var p Product
	if err := resp.DataJSON(&p); err != nil {
		return nil, fmt.Errorf("decode product: %w", err)
	}
	return &p, nil
}

// ListReviews returns the review rows of a product. Rows with unusable star
// ratings are kept but marked invalid.
func (c *Client) ListReviews(ctx context.Context, productID string) ([]rating.ReviewItem, error) {
	resp, err := c.call(ctx, "reviews.list", http.MethodGet, "/products/"+url.PathEscape(productID)+"/reviews", nil, nil)
	if err != nil {
		return nil, err
	}
	reviews, err := rating.ParseReviews(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode reviews: %w", err)
	}
	return reviews, nil
}

// PlaceOrder submits an order.
func (c *Client) PlaceOrder(ctx context.Context, order OrderRequest) (*Order, error) {
	resp, err := c.call(ctx, "orders.create", http.MethodPost, "/orders", nil, order)
	if err != nil {
		return nil, err
	}
	var o Order
	if err := resp.DataJSON(&o); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	return &o, nil
}

// ListAddresses returns the saved addresses of a user.
func (c *Client) ListAddresses(ctx context.Context, userID string) ([]address.SavedAddress, error) {
	resp, err := c.call(ctx, "addresses.list", http.MethodGet, "/addresses", url.Values{"user_id": {userID}}, nil)
	if err != nil {
		return nil, err
	}
	var list []address.SavedAddress
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return list, nil
	}
	if err := resp.DataJSON(&list); err != nil {
		return nil, fmt.Errorf("decode addresses: %w", err)
	}
	return list, nil
}

// CreateAddress stores a new address.
func (c *Client) CreateAddress(ctx context.Context, addr address.SavedAddress) (address.SavedAddress, error) {
	resp, err := c.call(ctx, "addresses.create", http.MethodPost, "/addresses", nil, addr)
	if err != nil {
		return address.SavedAddress{}, err
	}
	return decodeAddress(resp, addr)
}

// UpdateAddress replaces an existing address.
func (c *Client) UpdateAddress(ctx context.Context, addr address.SavedAddress) (address.SavedAddress, error) {
	resp, err := c.call(ctx, "addresses.update", http.MethodPut, "/addresses/"+url.PathEscape(addr.ID), nil, addr)
	if err != nil {
		return address.SavedAddress{}, err
	}
	return decodeAddress(resp, addr)
}

// SetPrimaryAddress marks addressID primary; the backend demotes the rest.
// Repeating it is harmless, so it is retried like a PUT.
func (c *Client) SetPrimaryAddress(ctx context.Context, userID, addressID string) error {
	body := map[string]string{"user_id": userID}
	_, err := c.call(withIdempotent(ctx), "addresses.primary", http.MethodPost, "/addresses/"+url.PathEscape(addressID)+"/primary", nil, body)
	return err
}

// decodeAddress reads the stored address, falling back to what was sent
// when the backend answers without a body.
func decodeAddress(resp *Response, sent address.SavedAddress) (address.SavedAddress, error) {
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return sent, nil
	}
	var out address.SavedAddress
	if err := resp.DataJSON(&out); err != nil {
		return address.SavedAddress{}, fmt.Errorf("decode address: %w", err)
	}
	return out, nil
}
