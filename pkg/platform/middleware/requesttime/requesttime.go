// Package requesttime pins one "now" per HTTP request so every timestamp an
// enrichment run produces (fetched_at, audit events, logs) agrees.
package requesttime

import (
	"net/http"
	"time"

	"mfetl/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request
// and stores it in the context for consistent time references throughout the request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
