// Package httptransport assembles the public HTTP surface.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mfetl/internal/platform/metrics"
	"mfetl/internal/platform/middleware"
	"mfetl/pkg/platform/httputil"
	"mfetl/pkg/platform/middleware/metadata"
	"mfetl/pkg/platform/middleware/requestid"
	"mfetl/pkg/platform/middleware/requesttime"
)

// Registrar mounts a module's routes.
type Registrar interface {
	Register(r chi.Router)
}

// Deps are the router's collaborators. Ready may be nil, in which case the
// service always reports ready.
type Deps struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Ready   func() bool
	Modules []Registrar
}

// NewRouter wires middleware, operational endpoints and module routes.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(middleware.Logging(deps.Logger, deps.Metrics))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if deps.Ready != nil && !deps.Ready() {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "registry not loaded"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	r.Handle("/metrics", promhttp.Handler())

	for _, m := range deps.Modules {
		m.Register(r)
	}
	return r
}
