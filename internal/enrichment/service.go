// Package enrichment turns parsed portfolio holdings into enriched fund
// records: registry resolution, NAV, ISIN, top holdings and sector
// allocation.
//
// A fund whose name cannot be resolved to a registry scheme is reported as a
// warning, never as a request failure. Holdings-provider misses degrade the
// record (no holdings, no sectors) instead of failing it.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mfetl/internal/enrichment/metrics"
	"mfetl/internal/enrichment/models"
	"mfetl/internal/provider"
	"mfetl/internal/provider/holdings"
	"mfetl/internal/resolver"
	resolvermetrics "mfetl/internal/resolver/metrics"
	"mfetl/pkg/platform/retry"
	pstrings "mfetl/pkg/platform/strings"
)

const tracerName = "mfetl.enrichment"

// Settings bound the pipeline's concurrency, timeouts and retries.
type Settings struct {
	MaxConcurrent     int
	PerFundTimeout    time.Duration
	EnrichmentTimeout time.Duration
	Retry             retry.Config
	CacheTTL          time.Duration
}

// DefaultSettings matches the service defaults: 5 concurrent funds, 15s per
// fund, 120s per request, three attempts and a one hour cache.
func DefaultSettings() Settings {
	return Settings{
		MaxConcurrent:     5,
		PerFundTimeout:    15 * time.Second,
		EnrichmentTimeout: 120 * time.Second,
		Retry:             retry.DefaultConfig(),
		CacheTTL:          time.Hour,
	}
}

// Service runs the enrichment pipeline.
type Service struct {
	resolver  *resolver.Resolver
	snapshots SnapshotProvider
	holdings  HoldingsProvider
	cache     Cache
	publisher Publisher
	metrics   *metrics.Metrics
	resolved  *resolvermetrics.Metrics
	logger    *slog.Logger
	settings  Settings
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithCache enables result caching. A nil cache disables it.
func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithPublisher sets the sink for per-request enrichment events.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithResolverMetrics records each fund name resolution the pipeline makes.
func WithResolverMetrics(m *resolvermetrics.Metrics) Option {
	return func(s *Service) { s.resolved = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSettings overrides DefaultSettings.
func WithSettings(settings Settings) Option {
	return func(s *Service) { s.settings = settings }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a Service. The resolver, snapshot provider and holdings
// provider are required.
func New(r *resolver.Resolver, snapshots SnapshotProvider, holdingsProvider HoldingsProvider, opts ...Option) (*Service, error) {
	if r == nil {
		return nil, errors.New("resolver is required")
	}
	if snapshots == nil {
		return nil, errors.New("snapshot provider is required")
	}
	if holdingsProvider == nil {
		return nil, errors.New("holdings provider is required")
	}
	s := &Service{
		resolver:  r,
		snapshots: snapshots,
		holdings:  holdingsProvider,
		logger:    slog.Default(),
		settings:  DefaultSettings(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.settings.MaxConcurrent < 1 {
		s.settings.MaxConcurrent = 1
	}
	return s, nil
}

// CacheKey is the normalized form under which a fund name is cached and
// deduplicated.
func CacheKey(fundName string) string {
	return strings.ToLower(strings.TrimSpace(fundName))
}

// EnrichFund enriches a single fund. It returns (nil, nil) when the name
// does not resolve to a registry scheme. Errors are infrastructure failures
// worth retrying or reporting.
func (s *Service) EnrichFund(ctx context.Context, fundName string) (*models.EnrichedFund, error) {
	key := CacheKey(fundName)
	if fund, ok := s.cached(ctx, key); ok {
		return fund, nil
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "enrichment.Service.EnrichFund",
		trace.WithAttributes(attribute.String("fund_name", fundName)),
	)
	defer span.End()

	snap, err := s.snapshots.Snapshot(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	t0 := time.Now()
	res := s.resolver.Resolve(fundName, snap)
	s.resolved.ObserveResolution(string(res.Strategy), time.Since(t0))
	span.SetAttributes(attribute.String("match_strategy", string(res.Strategy)))
	if !res.Resolved() {
		s.logger.WarnContext(ctx, "skipping enrichment, no scheme code",
			"fund_name", fundName,
		)
		s.store(ctx, key, nil)
		span.SetStatus(codes.Ok, "unresolved")
		return nil, nil
	}

	code := res.Code()
	fund := &models.EnrichedFund{
		FundName:      fundName,
		SchemeCode:    code,
		MatchStrategy: string(res.Strategy),
	}
	if res.SchemeName != nil {
		fund.SchemeName = *res.SchemeName
	}

	var isin string
	if quote, ok := snap.Quote(code); ok {
		fund.CurrentNAV = quote.NAV
		fund.NAVAsOf = stringPtr(quote.Date)
		isin = quote.ISIN()
	}

	portfolio, providerISIN, err := s.lookupPortfolio(ctx, lookupOrder(isin, res.SearchTerms(), code, FallbackSearchTerms(fundName, fund.SchemeName)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	switch {
	case isin != "":
	case providerISIN != "":
		isin = providerISIN
	default:
		isin = code
	}
	fund.ISIN = &isin
	if portfolio != nil {
		fund.AMC = stringPtr(portfolio.AMC)
		fund.Category = stringPtr(portfolio.Category)
		fund.ExpenseRatio = portfolio.ExpenseRatio
		fund.TopHoldings = portfolio.TopHoldings
		fund.SectorAllocation = portfolio.Sectors
	}

	s.store(ctx, key, fund)
	span.SetAttributes(attribute.String("scheme_code", code), attribute.String("isin", isin))
	span.SetStatus(codes.Ok, "")
	return fund, nil
}

// lookupOrder lists provider queries from most to least specific: the
// registry ISIN, the resolver's search terms, the scheme code, then the
// derived fallback terms.
func lookupOrder(isin string, terms []string, code string, fallback []string) []string {
	order := make([]string, 0, 2+len(terms)+len(fallback))
	order = append(order, isin)
	order = append(order, terms...)
	order = append(order, code)
	return pstrings.DedupeAndTrim(append(order, fallback...)...)
}

// lookupPortfolio queries the provider with each term until one yields
// holdings or sectors. It also reports the first ISIN the provider
// returned, even from a portfolio without data. Misses move on to the next
// term; an open circuit or a rejected call ends the search without error;
// retryable failures are returned.
func (s *Service) lookupPortfolio(ctx context.Context, terms []string) (*holdings.FundPortfolio, string, error) {
	var firstISIN string
	for _, term := range terms {
		p, err := s.holdings.Lookup(ctx, term)
		if err != nil {
			switch {
			case errors.Is(err, provider.ErrCircuitOpen):
				s.logger.WarnContext(ctx, "holdings provider circuit open, skipping holdings",
					"search_term", term,
				)
				return nil, firstISIN, nil
			case ctx.Err() != nil:
				return nil, firstISIN, ctx.Err()
			case provider.IsRetryable(err):
				return nil, firstISIN, err
			}
			category := provider.GetCategory(err)
			if category == provider.ErrorNotFound || category == provider.ErrorBadData {
				s.logger.DebugContext(ctx, "holdings lookup missed",
					"search_term", term,
					"error", err,
				)
				continue
			}
			s.logger.WarnContext(ctx, "holdings lookup rejected, skipping holdings",
				"search_term", term,
				"error", err,
			)
			return nil, firstISIN, nil
		}
		if p == nil {
			continue
		}
		if firstISIN == "" {
			firstISIN = p.ISIN
		}
		if len(p.TopHoldings) > 0 || len(p.Sectors) > 0 {
			s.logger.DebugContext(ctx, "matched holdings provider",
				"search_term", term,
			)
			return p, firstISIN, nil
		}
	}
	return nil, firstISIN, nil
}

func (s *Service) cached(ctx context.Context, key string) (*models.EnrichedFund, bool) {
	if s.cache == nil {
		return nil, false
	}
	fund, found, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		s.metrics.IncCacheLookup(metrics.CacheError)
		s.logger.WarnContext(ctx, "enrichment cache read failed",
			"cache_key", key,
			"error", err,
		)
		return nil, false
	case found:
		s.metrics.IncCacheLookup(metrics.CacheHit)
		s.logger.DebugContext(ctx, "enrichment cache hit", "cache_key", key)
		return fund, true
	default:
		s.metrics.IncCacheLookup(metrics.CacheMiss)
		return nil, false
	}
}

func (s *Service) store(ctx context.Context, key string, fund *models.EnrichedFund) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, fund, s.settings.CacheTTL); err != nil {
		s.logger.WarnContext(ctx, "enrichment cache write failed",
			"cache_key", key,
			"error", err,
		)
	}
}

func stringPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func describeFailure(fundName string, err error) string {
	return fmt.Sprintf("Enrichment failed for '%s': %v", fundName, err)
}
