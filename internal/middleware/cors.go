// Package middleware provides HTTP middleware for the agent's control API.
package middleware

import (
	"net/http"
	"strings"
)

// CORS returns middleware that lets editor webviews call the control API.
// An allowed origin may end in "*" to match any origin with that prefix, such
// as "vscode-webview://*". A bare "*" matches every origin.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" {
				if exact, ok := matchOrigin(allowedOrigins, origin); ok {
					h := w.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
					h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-Id")
					h.Set("Access-Control-Expose-Headers", "X-Request-Id")
					h.Add("Vary", "Origin")
					// Credentials only for origins listed verbatim.
					if exact {
						h.Set("Access-Control-Allow-Credentials", "true")
					}
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// matchOrigin reports whether origin is allowed and whether it matched an
// exact entry rather than a pattern.
func matchOrigin(allowedOrigins []string, origin string) (exact, ok bool) {
	for _, o := range allowedOrigins {
		switch {
		case o == origin:
			return true, true
		case o == "*":
			ok = true
		case strings.HasSuffix(o, "*") && strings.HasPrefix(origin, strings.TrimSuffix(o, "*")):
			ok = true
		}
	}
	return false, ok
}

// OriginAllowed reports whether origin matches one of allowedOrigins.
func OriginAllowed(allowedOrigins []string, origin string) bool {
	_, ok := matchOrigin(allowedOrigins, origin)
	return ok
}
