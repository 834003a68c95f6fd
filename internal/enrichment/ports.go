package enrichment

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks SnapshotProvider,HoldingsProvider,Cache,Purger,Publisher

import (
	"context"
	"time"

	"mfetl/internal/audit"
	"mfetl/internal/enrichment/models"
	"mfetl/internal/provider/holdings"
	"mfetl/internal/registry"
)

// SnapshotProvider yields the active registry snapshot.
type SnapshotProvider interface {
	Snapshot(ctx context.Context) (*registry.Snapshot, error)
}

// HoldingsProvider searches the holdings provider by ISIN, scheme code or
// free-text term.
type HoldingsProvider interface {
	Lookup(ctx context.Context, term string) (*holdings.FundPortfolio, error)
}

// Cache stores enrichment outcomes by normalized fund name. A cached nil
// fund records a name that could not be resolved; Get reports it with
// found=true.
type Cache interface {
	Get(ctx context.Context, key string) (fund *models.EnrichedFund, found bool, err error)
	Set(ctx context.Context, key string, fund *models.EnrichedFund, ttl time.Duration) error
}

// Purger is implemented by caches that must drop expired entries themselves.
type Purger interface {
	PurgeExpired(now time.Time) int
}

// Publisher receives one event per enrichment request.
type Publisher interface {
	Publish(ctx context.Context, event audit.EnrichmentEvent) error
}
