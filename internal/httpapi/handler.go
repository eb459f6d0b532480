// Package httpapi is the JSON surface the presentation layer talks to.
package httpapi

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lumen-apothecary/storefront/internal/address"
	"github.com/lumen-apothecary/storefront/internal/cart"
	"github.com/lumen-apothecary/storefront/internal/commerce"
	"github.com/lumen-apothecary/storefront/internal/errors"
	"github.com/lumen-apothecary/storefront/internal/httputil"
	"github.com/lumen-apothecary/storefront/internal/logging"
	"github.com/lumen-apothecary/storefront/internal/metrics"
	"github.com/lumen-apothecary/storefront/internal/middleware"
	"github.com/lumen-apothecary/storefront/internal/notify"
	"github.com/lumen-apothecary/storefront/internal/rating"
	"github.com/lumen-apothecary/storefront/internal/session"
)

// Catalog is the read side of the commerce backend plus order placement.
type Catalog interface {
	ListProducts(ctx context.Context, q commerce.ProductQuery) ([]commerce.Product, error)
	GetProduct(ctx context.Context, id string) (*commerce.Product, error)
	ListReviews(ctx context.Context, productID string) ([]rating.ReviewItem, error)
	PlaceOrder(ctx context.Context, order commerce.OrderRequest) (*commerce.Order, error)
}

// Deps bundles what the handlers need. Hub, RateLimiter and CORS are
// optional.
type Deps struct {
	Cart          *cart.Store
	Addresses     *address.Manager
	Session       *session.Manager
	Catalog       Catalog
	Notifier      notify.Notifier
	Notifications *notify.Recorder
	Hub           *notify.Hub
	Metrics       *metrics.Metrics
	RateLimiter   *middleware.RateLimiter
	CORS          *middleware.CORSMiddleware
	Logger        *logging.Logger
}

type handler struct {
	Deps
}

// NewHandler returns the router exposing the storefront API.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = logging.NewDefault("httpapi")
	}
	h := &handler{Deps: deps}

	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware(deps.Logger))
	if deps.Metrics != nil {
		r.Use(middleware.MetricsMiddleware("storefront", deps.Metrics, "/metrics", "/healthz"))
	}

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler()).Methods(http.MethodGet)
	}
	if deps.Hub != nil {
		r.Handle("/ws/notifications", deps.Hub).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	if deps.RateLimiter != nil {
		api.Use(deps.RateLimiter.Handler)
	}

	api.HandleFunc("/cart", h.getCart).Methods(http.MethodGet)
	api.HandleFunc("/cart", h.clearCart).Methods(http.MethodDelete)
	api.HandleFunc("/cart/items", h.addCartItem).Methods(http.MethodPost)
	api.HandleFunc("/cart/items/{id}/increase", h.increaseCartItem).Methods(http.MethodPost)
	api.HandleFunc("/cart/items/{id}/decrease", h.decreaseCartItem).Methods(http.MethodPost)
	api.HandleFunc("/cart/items/{id}", h.updateCartItem).Methods(http.MethodPut)
	api.HandleFunc("/cart/items/{id}", h.removeCartItem).Methods(http.MethodDelete)

	api.HandleFunc("/ratings/stats", h.ratingStats).Methods(http.MethodPost)
	api.HandleFunc("/ratings/distribution", h.ratingDistribution).Methods(http.MethodPost)

	api.HandleFunc("/products", h.listProducts).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}", h.getProduct).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}/rating", h.productRating).Methods(http.MethodGet)

	api.HandleFunc("/session", h.getSession).Methods(http.MethodGet)
	api.HandleFunc("/session/login", h.login).Methods(http.MethodPost)
	api.HandleFunc("/session/logout", h.logout).Methods(http.MethodPost)

	api.HandleFunc("/notifications", h.notifications).Methods(http.MethodGet)

	authed := api.NewRoute().Subrouter()
	authed.Use(middleware.SessionRequired(deps.Session, deps.Logger))
	authed.HandleFunc("/addresses", h.listAddresses).Methods(http.MethodGet)
	authed.HandleFunc("/addresses", h.createAddress).Methods(http.MethodPost)
	authed.HandleFunc("/addresses/{id}", h.updateAddress).Methods(http.MethodPut)
	authed.HandleFunc("/addresses/{id}/primary", h.setPrimaryAddress).Methods(http.MethodPost)
	authed.HandleFunc("/orders", h.placeOrder).Methods(http.MethodPost)

	if deps.CORS != nil {
		return deps.CORS.Handler(r)
	}
	return r
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// fail renders err. A remote 401 means the stored session is dead, so it is
// dropped and the shopper has to log in again.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errors.CodeUnauthorized) && h.Session != nil {
		h.Session.Clear(r.Context())
	}
	if se := errors.GetServiceError(err); se == nil || se.HTTPStatus >= http.StatusInternalServerError {
		h.Logger.WithContext(r.Context()).WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	httputil.WriteError(w, r, err)
}

func (h *handler) notifications(w http.ResponseWriter, _ *http.Request) {
	events := []notify.Event{}
	if h.Notifications != nil {
		if drained := h.Notifications.Drain(); drained != nil {
			events = drained
		}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"notifications": events})
}
