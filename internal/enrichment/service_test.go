package enrichment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"mfetl/internal/audit"
	"mfetl/internal/enrichment/mocks"
	"mfetl/internal/enrichment/models"
	"mfetl/internal/provider"
	"mfetl/internal/provider/holdings"
	"mfetl/internal/registry"
	"mfetl/internal/resolver"
	resolvermetrics "mfetl/internal/resolver/metrics"
	dErrors "mfetl/pkg/domain-errors"
	"mfetl/pkg/platform/retry"
)

const (
	axisName = "Axis Bluechip Fund - Direct Plan - Growth"
	axisCode = "120503"
	axisISIN = "INF846K01DP8"
	hdfcName = "HDFC Mid Cap Opportunities Fund - Growth"
	hdfcCode = "105758"
)

// testNow is one day after the snapshot's NAV date.
var testNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func testSnapshot() *registry.Snapshot {
	axisNAV, hdfcNAV := 52.31, 120.5
	return registry.NewSnapshot([]registry.NAVQuote{
		{SchemeCode: axisCode, SchemeName: axisName, ISINGrowth: axisISIN, NAV: &axisNAV, Date: "15-Oct-2026"},
		{SchemeCode: hdfcCode, SchemeName: hdfcName, NAV: &hdfcNAV, Date: "15-Oct-2026"},
	}, time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC))
}

func notFound(term string) error {
	return provider.NewProviderError(provider.ErrorNotFound, holdings.ProviderID, "no fund for "+term, nil)
}

func outage() error {
	return provider.NewProviderError(provider.ErrorProviderOutage, holdings.ProviderID, "unexpected status 503", nil)
}

type ServiceSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	snapshots *mocks.MockSnapshotProvider
	holdings  *mocks.MockHoldingsProvider
	cache     *mocks.MockCache
	publisher *mocks.MockPublisher
	service   *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.reset()
}

// SetupSubTest gives every s.Run case fresh mocks so open-ended
// expectations cannot leak between cases.
func (s *ServiceSuite) SetupSubTest() {
	s.reset()
}

func (s *ServiceSuite) reset() {
	s.ctrl = gomock.NewController(s.T())
	s.snapshots = mocks.NewMockSnapshotProvider(s.ctrl)
	s.holdings = mocks.NewMockHoldingsProvider(s.ctrl)
	s.cache = mocks.NewMockCache(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)
	s.snapshots.EXPECT().Snapshot(gomock.Any()).Return(testSnapshot(), nil).AnyTimes()
	s.service = s.newService(nil)
}

func (s *ServiceSuite) settings() Settings {
	return Settings{
		MaxConcurrent:     2,
		PerFundTimeout:    time.Second,
		EnrichmentTimeout: 5 * time.Second,
		Retry:             retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2},
		CacheTTL:          time.Hour,
	}
}

func (s *ServiceSuite) newService(cache Cache, opts ...Option) *Service {
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithSettings(s.settings()),
		WithCache(cache),
		WithClock(func() time.Time { return testNow }),
	}
	svc, err := New(resolver.NewDefault(), s.snapshots, s.holdings, append(base, opts...)...)
	s.Require().NoError(err)
	return svc
}

func (s *ServiceSuite) TestNew() {
	s.Run("nil resolver returns error", func() {
		_, err := New(nil, s.snapshots, s.holdings)
		s.ErrorContains(err, "resolver is required")
	})
	s.Run("nil snapshot provider returns error", func() {
		_, err := New(resolver.NewDefault(), nil, s.holdings)
		s.ErrorContains(err, "snapshot provider is required")
	})
	s.Run("nil holdings provider returns error", func() {
		_, err := New(resolver.NewDefault(), s.snapshots, nil)
		s.ErrorContains(err, "holdings provider is required")
	})
	s.Run("concurrency is at least one", func() {
		svc, err := New(resolver.NewDefault(), s.snapshots, s.holdings, WithSettings(Settings{}))
		s.Require().NoError(err)
		s.Equal(1, svc.settings.MaxConcurrent)
	})
}

func (s *ServiceSuite) TestEnrichFund() {
	s.Run("registry ISIN is queried first", func() {
		expense := 0.65
		s.holdings.EXPECT().Lookup(gomock.Any(), axisISIN).Return(&holdings.FundPortfolio{
			ISIN:         axisISIN,
			AMC:          "Axis Mutual Fund",
			Category:     "Large Cap",
			ExpenseRatio: &expense,
			TopHoldings:  []map[string]any{{"securityName": "HDFC Bank Ltd"}},
			Sectors:      map[string]float64{"Financial Services": 31.2},
		}, nil)

		fund, err := s.service.EnrichFund(context.Background(), axisName)
		s.Require().NoError(err)
		s.Require().NotNil(fund)

		s.Equal(axisName, fund.FundName)
		s.Equal(axisCode, fund.SchemeCode)
		s.Equal(axisName, fund.SchemeName)
		s.Equal(string(resolver.StrategyExact), fund.MatchStrategy)
		s.Equal(axisISIN, *fund.ISIN)
		s.Equal("Axis Mutual Fund", *fund.AMC)
		s.Equal("Large Cap", *fund.Category)
		s.InDelta(0.65, *fund.ExpenseRatio, 1e-9)
		s.InDelta(52.31, *fund.CurrentNAV, 1e-9)
		s.Equal("15-Oct-2026", *fund.NAVAsOf)
		s.Len(fund.TopHoldings, 1)
		s.InDelta(31.2, fund.SectorAllocation["Financial Services"], 1e-9)
	})

	s.Run("provider ISIN is used when the registry has none", func() {
		s.holdings.EXPECT().Lookup(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, term string) (*holdings.FundPortfolio, error) {
				if term == hdfcCode {
					return &holdings.FundPortfolio{
						ISIN:    "INF179K01CR2",
						Sectors: map[string]float64{"Industrials": 18.4},
					}, nil
				}
				return nil, notFound(term)
			}).MinTimes(1)

		fund, err := s.service.EnrichFund(context.Background(), hdfcName)
		s.Require().NoError(err)
		s.Require().NotNil(fund)
		s.Equal("INF179K01CR2", *fund.ISIN)
		s.Equal(hdfcCode, fund.SchemeCode)
		s.Nil(fund.AMC)
		s.InDelta(18.4, fund.SectorAllocation["Industrials"], 1e-9)
	})

	s.Run("scheme code stands in for a missing ISIN", func() {
		s.holdings.EXPECT().Lookup(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, term string) (*holdings.FundPortfolio, error) {
				return nil, notFound(term)
			}).MinTimes(1)

		fund, err := s.service.EnrichFund(context.Background(), hdfcName)
		s.Require().NoError(err)
		s.Require().NotNil(fund)
		s.Equal(hdfcCode, *fund.ISIN)
		s.Nil(fund.TopHoldings)
		s.Nil(fund.SectorAllocation)
	})

	s.Run("portfolio without data does not stop the search", func() {
		calls := 0
		s.holdings.EXPECT().Lookup(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, term string) (*holdings.FundPortfolio, error) {
				calls++
				if calls == 1 {
					return &holdings.FundPortfolio{ISIN: axisISIN}, nil
				}
				return &holdings.FundPortfolio{TopHoldings: []map[string]any{{"ticker": "HDFCBANK"}}}, nil
			}).Times(2)

		fund, err := s.service.EnrichFund(context.Background(), axisName)
		s.Require().NoError(err)
		s.Len(fund.TopHoldings, 1)
	})

	s.Run("unresolved name yields nil without error", func() {
		fund, err := s.service.EnrichFund(context.Background(), "Zzyzx Imaginary Scheme")
		s.NoError(err)
		s.Nil(fund)
	})

	s.Run("open circuit degrades to a fund without holdings", func() {
		s.holdings.EXPECT().Lookup(gomock.Any(), axisISIN).Return(nil,
			provider.NewProviderError(provider.ErrorProviderOutage, holdings.ProviderID, "circuit open", provider.ErrCircuitOpen))

		fund, err := s.service.EnrichFund(context.Background(), axisName)
		s.Require().NoError(err)
		s.Require().NotNil(fund)
		s.Equal(axisISIN, *fund.ISIN)
		s.Nil(fund.TopHoldings)
	})

	s.Run("authentication failure degrades without further lookups", func() {
		s.holdings.EXPECT().Lookup(gomock.Any(), axisISIN).Return(nil,
			provider.NewProviderError(provider.ErrorAuthentication, holdings.ProviderID, "unexpected status 401", nil))

		fund, err := s.service.EnrichFund(context.Background(), axisName)
		s.Require().NoError(err)
		s.NotNil(fund)
	})

	s.Run("retryable provider failure is returned", func() {
		s.holdings.EXPECT().Lookup(gomock.Any(), axisISIN).Return(nil, outage())

		_, err := s.service.EnrichFund(context.Background(), axisName)
		s.True(provider.IsRetryable(err))
	})
}

func (s *ServiceSuite) TestEnrichFund_SnapshotUnavailable() {
	snapshots := mocks.NewMockSnapshotProvider(s.ctrl)
	snapshots.EXPECT().Snapshot(gomock.Any()).Return(nil, dErrors.New(dErrors.CodeUnavailable, "scheme registry unavailable"))
	svc, err := New(resolver.NewDefault(), snapshots, s.holdings, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Require().NoError(err)

	_, err = svc.EnrichFund(context.Background(), axisName)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func (s *ServiceSuite) TestEnrichFund_ResolverMetrics() {
	m := &resolvermetrics.Metrics{
		Resolutions:    prometheus.NewCounterVec(prometheus.CounterOpts{Name: "resolutions"}, []string{"strategy"}),
		ResolveLatency: prometheus.NewHistogram(prometheus.HistogramOpts{Name: "latency"}),
	}
	svc := s.newService(nil, WithResolverMetrics(m))
	s.holdings.EXPECT().Lookup(gomock.Any(), axisISIN).Return(&holdings.FundPortfolio{}, nil)

	_, err := svc.EnrichFund(context.Background(), axisName)
	s.Require().NoError(err)
	_, err = svc.EnrichFund(context.Background(), "Zzyzx Imaginary Scheme")
	s.Require().NoError(err)

	s.Equal(1.0, testutil.ToFloat64(m.Resolutions.WithLabelValues(string(resolver.StrategyExact))))
	s.Equal(1.0, testutil.ToFloat64(m.Resolutions.WithLabelValues(string(resolver.StrategyNone))))
	s.Equal(2, testutil.CollectAndCount(m.Resolutions))
	s.Equal(1, testutil.CollectAndCount(m.ResolveLatency))
}

func (s *ServiceSuite) TestEnrichFund_Cache() {
	s.Run("hit skips resolution and lookups", func() {
		svc := s.newService(s.cache)
		cached := &models.EnrichedFund{FundName: axisName}
		s.cache.EXPECT().Get(gomock.Any(), "axis bluechip fund - direct plan - growth").Return(cached, true, nil)

		fund, err := svc.EnrichFund(context.Background(), "  "+axisName+" ")
		s.Require().NoError(err)
		s.Same(cached, fund)
	})

	s.Run("cached miss returns nil", func() {
		svc := s.newService(s.cache)
		s.cache.EXPECT().Get(gomock.Any(), "zzyzx").Return(nil, true, nil)

		fund, err := svc.EnrichFund(context.Background(), "Zzyzx")
		s.NoError(err)
		s.Nil(fund)
	})

	s.Run("unresolved names are cached as nil", func() {
		svc := s.newService(s.cache)
		s.cache.EXPECT().Get(gomock.Any(), "zzyzx imaginary scheme").Return(nil, false, nil)
		s.cache.EXPECT().Set(gomock.Any(), "zzyzx imaginary scheme", gomock.Nil(), time.Hour).Return(nil)

		fund, err := svc.EnrichFund(context.Background(), "Zzyzx Imaginary Scheme")
		s.NoError(err)
		s.Nil(fund)
	})

	s.Run("cache errors fall through to enrichment", func() {
		svc := s.newService(s.cache)
		s.cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, false, errors.New("connection refused"))
		s.holdings.EXPECT().Lookup(gomock.Any(), axisISIN).Return(&holdings.FundPortfolio{
			TopHoldings: []map[string]any{{"ticker": "ICICIBANK"}},
		}, nil)
		s.cache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Not(gomock.Nil()), time.Hour).Return(errors.New("connection refused"))

		fund, err := svc.EnrichFund(context.Background(), axisName)
		s.Require().NoError(err)
		s.NotNil(fund)
	})

	s.Run("failures are not cached", func() {
		svc := s.newService(s.cache)
		s.cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, false, nil)
		s.holdings.EXPECT().Lookup(gomock.Any(), axisISIN).Return(nil, outage())

		_, err := svc.EnrichFund(context.Background(), axisName)
		s.Error(err)
	})
}

func (s *ServiceSuite) TestEnrichBatch() {
	s.Run("duplicates are enriched once and results follow input order", func() {
		s.holdings.EXPECT().Lookup(gomock.Any(), axisISIN).Return(&holdings.FundPortfolio{
			TopHoldings: []map[string]any{{"ticker": "HDFCBANK"}},
		}, nil).Times(1)

		out := s.service.EnrichBatch(context.Background(), []string{
			axisName,
			"Zzyzx Imaginary Scheme",
			"  " + axisName + "  ",
		})

		s.Require().Len(out, 3)
		s.Equal(axisName, out[0].Name)
		s.NotNil(out[0].Fund)
		s.Nil(out[1].Fund)
		s.NoError(out[1].Err)
		s.Equal("  "+axisName+"  ", out[2].Name)
		s.Same(out[0].Fund, out[2].Fund)
	})

	s.Run("transient failures are retried", func() {
		gomock.InOrder(
			s.holdings.EXPECT().Lookup(gomock.Any(), axisISIN).Return(nil, outage()),
			s.holdings.EXPECT().Lookup(gomock.Any(), axisISIN).Return(&holdings.FundPortfolio{
				Sectors: map[string]float64{"Technology": 12},
			}, nil),
		)

		out := s.service.EnrichBatch(context.Background(), []string{axisName})
		s.Require().Len(out, 1)
		s.NoError(out[0].Err)
		s.Require().NotNil(out[0].Fund)
		s.InDelta(12.0, out[0].Fund.SectorAllocation["Technology"], 1e-9)
	})

	s.Run("retries are bounded", func() {
		s.holdings.EXPECT().Lookup(gomock.Any(), axisISIN).Return(nil, outage()).Times(3)

		out := s.service.EnrichBatch(context.Background(), []string{axisName})
		s.Require().Len(out, 1)
		s.Nil(out[0].Fund)
		s.ErrorContains(out[0].Err, "failed after 3 attempts")
	})

	s.Run("per-fund timeout is retried", func() {
		settings := s.settings()
		settings.PerFundTimeout = 20 * time.Millisecond
		svc := s.newService(nil, WithSettings(settings))

		var calls atomic.Int32
		s.holdings.EXPECT().Lookup(gomock.Any(), axisISIN).DoAndReturn(
			func(ctx context.Context, _ string) (*holdings.FundPortfolio, error) {
				if calls.Add(1) == 1 {
					<-ctx.Done()
					return nil, provider.FromTransport(holdings.ProviderID, ctx.Err())
				}
				return &holdings.FundPortfolio{TopHoldings: []map[string]any{{"ticker": "TCS"}}}, nil
			}).Times(2)

		out := svc.EnrichBatch(context.Background(), []string{axisName})
		s.NoError(out[0].Err)
		s.NotNil(out[0].Fund)
	})

	s.Run("concurrency is bounded", func() {
		settings := s.settings()
		settings.MaxConcurrent = 2
		svc := s.newService(nil, WithSettings(settings))

		var inFlight, peak atomic.Int32
		s.holdings.EXPECT().Lookup(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, term string) (*holdings.FundPortfolio, error) {
				n := inFlight.Add(1)
				defer inFlight.Add(-1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				return &holdings.FundPortfolio{TopHoldings: []map[string]any{{"ticker": term}}}, nil
			}).AnyTimes()

		names := []string{axisName, hdfcName, "Axis Bluechip Fund - Direct Plan", "HDFC Mid Cap Opportunities Fund"}
		out := svc.EnrichBatch(context.Background(), names)
		s.Len(out, 4)
		s.LessOrEqual(peak.Load(), int32(2))
	})
}

func (s *ServiceSuite) TestEnrich() {
	s.Run("no valid holdings is a bad request", func() {
		_, err := s.service.Enrich(context.Background(), models.Request{
			UploadID: "u1",
			UserID:   "user",
			ParsedHoldings: []models.Holding{
				{FundName: "A", Units: f(0)},
				{FundName: "B", Units: f(1), NAV: f(-2)},
			},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
		de, _ := dErrors.As(err)
		s.Equal("A: units must be positive; B: nav must be positive", de.Message)
	})

	s.Run("empty holdings is a bad request with the default message", func() {
		_, err := s.service.Enrich(context.Background(), models.Request{UploadID: "u1", UserID: "user", ParsedHoldings: []models.Holding{}})
		de, ok := dErrors.As(err)
		s.Require().True(ok)
		s.Equal("No valid holdings available for enrichment", de.Message)
	})

	s.Run("completed response aggregates outcomes and warnings", func() {
		svc := s.newService(nil, WithPublisher(s.publisher))
		s.holdings.EXPECT().Lookup(gomock.Any(), axisISIN).Return(&holdings.FundPortfolio{
			TopHoldings: []map[string]any{{"ticker": "HDFCBANK"}},
		}, nil)

		var event audit.EnrichmentEvent
		s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, e audit.EnrichmentEvent) error {
				event = e
				return nil
			})

		resp, err := svc.Enrich(context.Background(), models.Request{
			UploadID: "upload-1",
			UserID:   "user-1",
			ParsedHoldings: []models.Holding{
				{FundName: axisName, Units: f(10), NAV: f(50)},
				{FundName: "Zzyzx Imaginary Scheme", Units: f(1)},
				{FundName: "", Units: f(1)},
			},
		})
		s.Require().NoError(err)

		s.Equal("upload-1", resp.UploadID)
		s.Equal(models.StatusCompleted, resp.Status)
		s.Require().NotNil(resp.DurationSeconds)
		s.Nil(resp.ErrorMessage)
		s.Len(resp.EnrichedFunds, 1)
		s.Equal(1, resp.EnrichmentQuality.SuccessfullyEnriched)
		s.Equal(1, resp.EnrichmentQuality.FailedToEnrich)
		s.Equal([]string{
			"Skipping holding because fund_name is missing",
			"Could not enrich 'Zzyzx Imaginary Scheme'",
		}, resp.EnrichmentQuality.Warnings)

		s.Equal("upload-1", event.UploadID)
		s.Equal("user-1", event.UserID)
		s.Equal(audit.StatusCompleted, event.Status)
		s.Equal(2, event.HoldingsTotal)
		s.Equal(1, event.FundsEnriched)
		s.Equal(1, event.FundsFailed)
		s.Equal(2, event.Warnings)
	})

	s.Run("stale NAV and implausible sectors become warnings", func() {
		svc := s.newService(nil, WithClock(func() time.Time { return testNow.AddDate(0, 0, 10) }))
		s.holdings.EXPECT().Lookup(gomock.Any(), axisISIN).Return(&holdings.FundPortfolio{
			Sectors: map[string]float64{"Financial Services": 31.2, "Technology": 20},
		}, nil)

		resp, err := svc.Enrich(context.Background(), models.Request{
			UploadID:       "upload-3",
			UserID:         "user-1",
			ParsedHoldings: []models.Holding{{FundName: axisName, Units: f(1)}},
		})
		s.Require().NoError(err)
		s.Equal(1, resp.EnrichmentQuality.SuccessfullyEnriched)
		s.Equal([]string{
			"NAV check failed for '" + axisName + "': NAV data is 11 days old, exceeds 7 day threshold",
			"Sector check failed for '" + axisName + "': Total allocation 51.20% deviates from 100% by 48.80% (tolerance: 1%)",
		}, resp.EnrichmentQuality.Warnings)
	})

	s.Run("failed funds are reported with their error", func() {
		s.holdings.EXPECT().Lookup(gomock.Any(), axisISIN).Return(nil, outage()).Times(3)

		resp, err := s.service.Enrich(context.Background(), models.Request{
			UploadID:       "upload-2",
			UserID:         "user-1",
			ParsedHoldings: []models.Holding{{FundName: axisName, Units: f(1)}},
		})
		s.Require().NoError(err)
		s.Equal(models.StatusCompleted, resp.Status)
		s.Empty(resp.EnrichedFunds)
		s.Require().Len(resp.EnrichmentQuality.Warnings, 1)
		s.Contains(resp.EnrichmentQuality.Warnings[0], "Enrichment failed for '"+axisName+"'")
	})

	s.Run("publisher errors do not fail the request", func() {
		svc := s.newService(nil, WithPublisher(s.publisher))
		s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

		resp, err := svc.Enrich(context.Background(), models.Request{
			UploadID:       "upload-3",
			UserID:         "user-1",
			ParsedHoldings: []models.Holding{{FundName: "Zzyzx Imaginary Scheme", Units: f(1)}},
		})
		s.Require().NoError(err)
		s.Equal(models.StatusCompleted, resp.Status)
	})

	s.Run("overall timeout yields a failed response", func() {
		settings := s.settings()
		settings.EnrichmentTimeout = 30 * time.Millisecond
		settings.PerFundTimeout = time.Second
		svc := s.newService(nil, WithSettings(settings), WithPublisher(s.publisher))

		s.holdings.EXPECT().Lookup(gomock.Any(), axisISIN).DoAndReturn(
			func(ctx context.Context, _ string) (*holdings.FundPortfolio, error) {
				<-ctx.Done()
				return nil, provider.FromTransport(holdings.ProviderID, ctx.Err())
			})
		s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, e audit.EnrichmentEvent) error {
				s.Equal(audit.StatusFailed, e.Status)
				s.Equal("Processing timed out", e.Error)
				return nil
			})

		resp, err := svc.Enrich(context.Background(), models.Request{
			UploadID:       "upload-4",
			UserID:         "user-1",
			ParsedHoldings: []models.Holding{{FundName: axisName, Units: f(1)}},
		})
		s.Require().NoError(err)
		s.Equal(models.StatusFailed, resp.Status)
		s.Nil(resp.DurationSeconds)
		s.Equal("Processing timed out", *resp.ErrorMessage)
		s.Equal([]string{"Processing timed out"}, resp.EnrichmentQuality.Warnings)
		s.Empty(resp.EnrichedFunds)
	})
}
