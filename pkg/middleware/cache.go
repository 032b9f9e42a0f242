package middleware

import (
	"net/http"
)

// NoStore returns a middleware that sets "Cache-Control: no-store" so
// credential-bearing responses (tokens, cookies) are never cached by
// browsers or intermediaries.
func NoStore() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			w.Header().Set("Pragma", "no-cache")
			next.ServeHTTP(w, r)
		})
	}
}
