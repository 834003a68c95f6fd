package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"mfetl/internal/registry"
	"mfetl/internal/resolver"
	"mfetl/internal/resolver/metrics"
	dErrors "mfetl/pkg/domain-errors"
	"mfetl/pkg/platform/httputil"
	"mfetl/pkg/requestcontext"
)

// SnapshotProvider yields the active registry snapshot.
type SnapshotProvider interface {
	Snapshot(ctx context.Context) (*registry.Snapshot, error)
}

// Handler serves resolution and scheme search over the active registry.
type Handler struct {
	resolver  *resolver.Resolver
	snapshots SnapshotProvider
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// New constructs a registry handler with its dependencies.
func New(r *resolver.Resolver, snapshots SnapshotProvider, logger *slog.Logger, metrics *metrics.Metrics) *Handler {
	return &Handler{
		resolver:  r,
		snapshots: snapshots,
		logger:    logger,
		metrics:   metrics,
	}
}

// Register mounts registry endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/funds/resolve", h.HandleResolve)
	r.Get("/registry/schemes", h.HandleSearchSchemes)
}

// HandleResolve handles POST /funds/resolve requests.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[ResolveRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	snap, err := h.snapshots.Snapshot(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "registry snapshot unavailable",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	results := make([]resolver.Result, len(req.FundNames))
	resolved := 0
	for i, name := range req.FundNames {
		t0 := time.Now()
		results[i] = h.resolver.Resolve(name, snap)
		h.metrics.ObserveResolution(string(results[i].Strategy), time.Since(t0))
		if results[i].Resolved() {
			resolved++
		} else {
			h.logger.WarnContext(ctx, "fund name not resolved",
				"request_id", requestID,
				"fund_name", name,
			)
		}
	}

	h.logger.InfoContext(ctx, "fund names resolved",
		"request_id", requestID,
		"requested", len(req.FundNames),
		"resolved", resolved,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, results)
}

// HandleSearchSchemes handles GET /registry/schemes?q=&limit= requests.
func (h *Handler) HandleSearchSchemes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "q is required"))
		return
	}
	limit := registry.DefaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be between 1 and 500"))
			return
		}
		limit = n
	}

	snap, err := h.snapshots.Snapshot(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "registry snapshot unavailable",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, SchemesResponse{
		Query:   query,
		Schemes: registry.SearchSchemes(snap, query, limit),
	})
}
