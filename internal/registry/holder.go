package registry

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"mfetl/internal/registry/metrics"
	dErrors "mfetl/pkg/domain-errors"
	"mfetl/pkg/platform/sentinel"
)

// SnapshotStore persists the last snapshot that loaded successfully so a
// restart during a registry outage still has data to resolve against.
type SnapshotStore interface {
	Save(ctx context.Context, snap *Snapshot) error
	// Load returns sentinel.ErrNotFound when nothing has been saved.
	Load(ctx context.Context) (*Snapshot, error)
}

// Holder owns the active snapshot. Readers never block on a refresh.
type Holder struct {
	source  Source
	store   SnapshotStore
	metrics *metrics.Metrics
	logger  *slog.Logger

	current atomic.Pointer[Snapshot]
	group   singleflight.Group
}

// HolderOption configures a Holder.
type HolderOption func(*Holder)

// WithStore enables last-good persistence.
func WithStore(store SnapshotStore) HolderOption {
	return func(h *Holder) { h.store = store }
}

// WithMetrics sets the registry metrics.
func WithMetrics(m *metrics.Metrics) HolderOption {
	return func(h *Holder) { h.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) HolderOption {
	return func(h *Holder) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHolder builds an empty holder; call Refresh or Run to populate it.
func NewHolder(source Source, opts ...HolderOption) *Holder {
	h := &Holder{
		source: source,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Current returns the active snapshot or nil before the first load.
func (h *Holder) Current() *Snapshot {
	return h.current.Load()
}

// Ready reports whether a snapshot is loaded.
func (h *Holder) Ready() bool {
	return h.current.Load() != nil
}

// Snapshot returns the active snapshot, loading one first if needed.
func (h *Holder) Snapshot(ctx context.Context) (*Snapshot, error) {
	if snap := h.current.Load(); snap != nil {
		return snap, nil
	}
	return h.Refresh(ctx)
}

// Quote looks up the NAV line of a scheme in the active snapshot.
func (h *Holder) Quote(ctx context.Context, schemeCode string) (NAVQuote, error) {
	snap, err := h.Snapshot(ctx)
	if err != nil {
		return NAVQuote{}, err
	}
	q, ok := snap.Quote(schemeCode)
	if !ok {
		return NAVQuote{}, dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, "scheme "+schemeCode+" not in registry")
	}
	return q, nil
}

// Refresh fetches a new snapshot. Concurrent callers share one fetch. When
// the source fails the active snapshot is kept; with no active snapshot
// the persisted last-good one is loaded instead.
func (h *Holder) Refresh(ctx context.Context) (*Snapshot, error) {
	v, err, _ := h.group.Do("refresh", func() (any, error) {
		return h.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

func (h *Holder) refresh(ctx context.Context) (*Snapshot, error) {
	start := time.Now()
	snap, fetchErr := h.source.Fetch(ctx)
	if fetchErr == nil {
		h.current.Store(snap)
		h.metrics.ObserveRefresh(metrics.OutcomeSuccess, snap.Len(), time.Since(start))
		h.logger.InfoContext(ctx, "registry refreshed",
			"entries", snap.Len(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		h.persist(ctx, snap)
		return snap, nil
	}

	if cur := h.current.Load(); cur != nil {
		h.metrics.ObserveRefresh(metrics.OutcomeFailure, 0, time.Since(start))
		h.logger.WarnContext(ctx, "registry refresh failed, keeping active snapshot",
			"fetched_at", cur.FetchedAt(),
			"error", fetchErr,
		)
		return cur, nil
	}

	if h.store != nil {
		stored, err := h.store.Load(ctx)
		switch {
		case err == nil:
			h.current.Store(stored)
			h.metrics.ObserveRefresh(metrics.OutcomeFallback, stored.Len(), time.Since(start))
			h.logger.WarnContext(ctx, "registry source unavailable, using last good snapshot",
				"entries", stored.Len(),
				"fetched_at", stored.FetchedAt(),
				"error", fetchErr,
			)
			return stored, nil
		case !errors.Is(err, sentinel.ErrNotFound):
			h.logger.ErrorContext(ctx, "failed to load last good registry snapshot", "error", err)
		}
	}

	h.metrics.ObserveRefresh(metrics.OutcomeFailure, 0, time.Since(start))
	h.logger.ErrorContext(ctx, "registry unavailable", "error", fetchErr)
	return nil, dErrors.Wrap(fetchErr, dErrors.CodeUnavailable, "scheme registry unavailable")
}

func (h *Holder) persist(ctx context.Context, snap *Snapshot) {
	if h.store == nil {
		return
	}
	if err := h.store.Save(ctx, snap); err != nil {
		h.logger.WarnContext(ctx, "failed to persist registry snapshot", "error", err)
	}
}

// Run refreshes every interval until ctx is done. It does not perform an
// initial refresh.
func (h *Holder) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// errors are logged by refresh
			_, _ = h.Refresh(ctx)
		}
	}
}
