package middleware

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lumen-apothecary/storefront/internal/httputil"
	"github.com/lumen-apothecary/storefront/internal/logging"
	"github.com/lumen-apothecary/storefront/internal/session"
)

// IdentityProvider reports who is logged in.
type IdentityProvider interface {
	Identity() (session.Identity, bool)
}

// SessionRequired rejects requests while no shopper is logged in and tags
// the request context with the shopper's user id.
func SessionRequired(identity IdentityProvider, logger *logging.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := identity.Identity()
			if !ok {
				logger.WithContext(r.Context()).
					WithField("path", r.URL.Path).
					Debug("request without session rejected")
				httputil.Unauthenticated(w, r)
				return
			}
			ctx := logging.WithUserID(r.Context(), id.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
