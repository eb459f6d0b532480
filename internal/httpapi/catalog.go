package httpapi

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/lumen-apothecary/storefront/internal/commerce"
	"github.com/lumen-apothecary/storefront/internal/errors"
	"github.com/lumen-apothecary/storefront/internal/httputil"
	"github.com/lumen-apothecary/storefront/internal/rating"
)

const maxReviewPayload = 4 << 20

func (h *handler) ratingStats(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxReviewPayload))
	if err != nil {
		httputil.BadRequest(w, r, "Could not read request body")
		return
	}
	reviews, err := rating.ParseReviews(raw)
	if err != nil {
		httputil.BadRequest(w, r, "Expected a list of reviews")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rating.CalculateRatingStats(reviews))
}

// ratingDistribution accepts {"5": 10, "4": 2}. Keys that are not whole
// numbers are ignored like any other out-of-range star.
func (h *handler) ratingDistribution(w http.ResponseWriter, r *http.Request) {
	var payload map[string]json.Number
	if err := httputil.DecodeJSON(w, r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	dist := make(map[int]int, len(payload))
	for k, v := range payload {
		star, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		count, err := v.Int64()
		if err != nil {
			continue
		}
		dist[star] = int(count)
	}
	httputil.WriteJSON(w, http.StatusOK, rating.StatsFromDistribution(dist))
}

func (h *handler) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := commerce.ProductQuery{Category: q.Get("category")}
	var err error
	if v := q.Get("limit"); v != "" {
		if query.Limit, err = strconv.Atoi(v); err != nil || query.Limit < 0 {
			httputil.BadRequest(w, r, "limit must be a non-negative integer")
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if query.Offset, err = strconv.Atoi(v); err != nil || query.Offset < 0 {
			httputil.BadRequest(w, r, "offset must be a non-negative integer")
			return
		}
	}

	products, err := h.Catalog.ListProducts(r.Context(), query)
	if err != nil {
		h.fail(w, r, errors.FromRemote(err, "Could not load products"))
		return
	}
	if products == nil {
		products = []commerce.Product{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (h *handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Catalog.GetProduct(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, remoteOrNotFound(err, "product", mux.Vars(r)["id"]))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (h *handler) productRating(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	reviews, err := h.Catalog.ListReviews(r.Context(), id)
	if err != nil {
		h.fail(w, r, remoteOrNotFound(err, "product", id))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"product_id": id,
		"stats":      rating.CalculateRatingStats(reviews),
	})
}

func remoteOrNotFound(err error, resource, id string) error {
	var apiErr *commerce.APIError
	if stderrors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return errors.NotFound(resource, id)
	}
	return errors.FromRemote(err, "Could not load "+resource)
}
