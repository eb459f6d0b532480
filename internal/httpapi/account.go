package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/lumen-apothecary/storefront/internal/address"
	"github.com/lumen-apothecary/storefront/internal/commerce"
	"github.com/lumen-apothecary/storefront/internal/errors"
	"github.com/lumen-apothecary/storefront/internal/httputil"
	"github.com/lumen-apothecary/storefront/internal/notify"
	"github.com/lumen-apothecary/storefront/internal/session"
)

type sessionView struct {
	LoggedIn bool              `json:"logged_in"`
	User     *session.Identity `json:"user,omitempty"`
}

func viewOf(id session.Identity, ok bool) sessionView {
	if !ok {
		return sessionView{}
	}
	id.SessionKey = ""
	return sessionView{LoggedIn: true, User: &id}
}

func (h *handler) getSession(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, viewOf(h.Session.Identity()))
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := httputil.DecodeJSON(w, r, &creds); err != nil {
		h.fail(w, r, err)
		return
	}
	id, err := h.Session.Login(r.Context(), creds.Email, creds.Password)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, viewOf(id, true))
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	_ = h.Session.Logout(r.Context())
	httputil.WriteJSON(w, http.StatusOK, sessionView{})
}

type addressesView struct {
	Addresses []address.SavedAddress `json:"addresses"`
	State     address.OpState        `json:"state"`
}

func (h *handler) addressesView(op address.Operation) addressesView {
	list := h.Addresses.Addresses()
	if list == nil {
		list = []address.SavedAddress{}
	}
	return addressesView{Addresses: list, State: h.Addresses.State(op)}
}

func (h *handler) listAddresses(w http.ResponseWriter, r *http.Request) {
	if _, err := h.Addresses.FetchSavedAddresses(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.addressesView(address.OpFetch))
}

func (h *handler) createAddress(w http.ResponseWriter, r *http.Request) {
	var form address.FormData
	if err := httputil.DecodeJSON(w, r, &form); err != nil {
		h.fail(w, r, err)
		return
	}
	h.ensureAddressesLoaded(r.Context())
	if err := h.Addresses.SaveOrUpdateAddress(r.Context(), form, false, nil); err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, h.addressesView(address.OpSave))
}

func (h *handler) updateAddress(w http.ResponseWriter, r *http.Request) {
	var form address.FormData
	if err := httputil.DecodeJSON(w, r, &form); err != nil {
		h.fail(w, r, err)
		return
	}
	id := mux.Vars(r)["id"]
	existing, ok := h.cachedAddress(r.Context(), id)
	if !ok {
		h.fail(w, r, errors.NotFound("address", id))
		return
	}
	if err := h.Addresses.SaveOrUpdateAddress(r.Context(), form, true, &existing); err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.addressesView(address.OpSave))
}

func (h *handler) setPrimaryAddress(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	h.cachedAddress(r.Context(), id)
	if err := h.Addresses.SetPrimary(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.addressesView(address.OpSetPrimary))
}

// ensureAddressesLoaded fills the cache on first use so the capacity check
// sees the shopper's real list.
func (h *handler) ensureAddressesLoaded(ctx context.Context) {
	if h.Addresses.State(address.OpFetch) == address.StateIdle {
		_, _ = h.Addresses.FetchSavedAddresses(ctx)
	}
}

// cachedAddress looks id up in the cache, refetching once on a miss.
func (h *handler) cachedAddress(ctx context.Context, id string) (address.SavedAddress, bool) {
	find := func() (address.SavedAddress, bool) {
		for _, a := range h.Addresses.Addresses() {
			if a.ID == id {
				return a, true
			}
		}
		return address.SavedAddress{}, false
	}
	if a, ok := find(); ok {
		return a, true
	}
	_, _ = h.Addresses.FetchSavedAddresses(ctx)
	return find()
}

func (h *handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		AddressID string `json:"address_id"`
	}
	if err := httputil.DecodeJSON(w, r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	payload.AddressID = strings.TrimSpace(payload.AddressID)
	if payload.AddressID == "" {
		httputil.BadRequest(w, r, "Choose a delivery address")
		return
	}
	items := h.Cart.Items()
	if len(items) == 0 {
		httputil.BadRequest(w, r, "Your cart is empty")
		return
	}

	order, err := h.Catalog.PlaceOrder(r.Context(), commerce.NewOrderRequest(items, payload.AddressID))
	if err != nil {
		se := errors.FromRemote(err, "Could not place your order")
		notify.Failure(r.Context(), h.Notifier, "order", se.Message)
		h.fail(w, r, se)
		return
	}

	h.Cart.ClearCart()
	notify.Success(r.Context(), h.Notifier, "order", "Order placed")
	httputil.WriteJSON(w, http.StatusCreated, order)
}
