// Package requestid propagates a correlation ID through X-Request-ID.
package requestid

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"mfetl/pkg/requestcontext"
)

// Header is echoed on every response.
const Header = "X-Request-ID"

const maxLen = 128

// Middleware reuses a sane incoming X-Request-ID or mints a UUID.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(Header))
		if id == "" || len(id) > maxLen {
			id = uuid.NewString()
		}
		w.Header().Set(Header, id)
		ctx := requestcontext.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
