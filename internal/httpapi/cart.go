package httpapi

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/lumen-apothecary/storefront/internal/cart"
	"github.com/lumen-apothecary/storefront/internal/httputil"
)

type cartView struct {
	Items    []cart.CartItem `json:"items"`
	Count    int             `json:"count"`
	Subtotal string          `json:"subtotal"`
}

func (h *handler) cartView() cartView {
	return cartView{
		Items:    h.Cart.Items(),
		Count:    h.Cart.Count(),
		Subtotal: h.Cart.Subtotal().StringFixed(2),
	}
}

func (h *handler) getCart(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.cartView())
}

func (h *handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var item cart.CartItem
	if err := httputil.DecodeJSON(w, r, &item); err != nil {
		h.fail(w, r, err)
		return
	}
	item.ID = strings.TrimSpace(item.ID)
	if item.ID == "" {
		httputil.BadRequest(w, r, "Item id is required")
		return
	}
	if item.Price < 0 {
		httputil.BadRequest(w, r, "Item price must not be negative")
		return
	}
	h.Cart.AddToCart(item)
	httputil.WriteJSON(w, http.StatusOK, h.cartView())
}

func (h *handler) increaseCartItem(w http.ResponseWriter, r *http.Request) {
	h.Cart.IncreaseItemQuantity(mux.Vars(r)["id"])
	httputil.WriteJSON(w, http.StatusOK, h.cartView())
}

func (h *handler) decreaseCartItem(w http.ResponseWriter, r *http.Request) {
	h.Cart.DecreaseItemQuantity(mux.Vars(r)["id"])
	httputil.WriteJSON(w, http.StatusOK, h.cartView())
}

func (h *handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Quantity int `json:"quantity"`
	}
	if err := httputil.DecodeJSON(w, r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	h.Cart.UpdateItemQuantity(mux.Vars(r)["id"], payload.Quantity)
	httputil.WriteJSON(w, http.StatusOK, h.cartView())
}

func (h *handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	h.Cart.RemoveFromCart(mux.Vars(r)["id"])
	httputil.WriteJSON(w, http.StatusOK, h.cartView())
}

func (h *handler) clearCart(w http.ResponseWriter, _ *http.Request) {
	h.Cart.ClearCart()
	httputil.WriteJSON(w, http.StatusOK, h.cartView())
}
