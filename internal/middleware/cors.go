package middleware

import (
	"net/http"
	"strings"
)

// CORSMiddleware lets the storefront frontend call the API from its own
// origin.
type CORSMiddleware struct {
	allowedOrigins []string
	allowAll       bool
}

// NewCORSMiddleware creates a CORS middleware. An entry of "*" allows every
// origin; an entry of "*.example.com" allows its subdomains.
func NewCORSMiddleware(allowedOrigins []string) *CORSMiddleware {
	allowAll := false
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
			break
		}
	}
	return &CORSMiddleware{allowedOrigins: allowedOrigins, allowAll: allowAll}
}

// corsMethods are the methods the storefront API routes answer to.
var corsMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
}

// Handler answers preflights itself and decorates every other cross-origin
// response. A preflight from an origin outside the allow list, or asking for
// a method no route serves, gets 403 so the browser fails fast.
func (m *CORSMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}
		allowed := m.IsOriginAllowed(origin)
		w.Header().Add("Vary", "Origin")

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			if !allowed || !corsMethods[r.Header.Get("Access-Control-Request-Method")] {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			m.allowOrigin(w, origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+TraceHeader)
			w.Header().Set("Access-Control-Max-Age", "3600")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if allowed {
			m.allowOrigin(w, origin)
			w.Header().Set("Access-Control-Expose-Headers", TraceHeader)
		}
		next.ServeHTTP(w, r)
	})
}

func (m *CORSMiddleware) allowOrigin(w http.ResponseWriter, origin string) {
	w.Header().Set("Access-Control-Allow-Origin", origin)
}

// IsOriginAllowed checks origin against the allow list.
func (m *CORSMiddleware) IsOriginAllowed(origin string) bool {
	if m.allowAll {
		return true
	}
	host := origin
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	for _, allowed := range m.allowedOrigins {
		if allowed == origin {
			return true
		}
		if strings.HasPrefix(allowed, "*.") && strings.HasSuffix(host, allowed[1:]) {
			return true
		}
	}
	return false
}

// CheckOrigin adapts the allow list for websocket upgrades. Requests without
// an Origin header are same-origin and always allowed.
func (m *CORSMiddleware) CheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || m.IsOriginAllowed(origin)
}
