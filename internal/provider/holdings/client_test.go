package holdings

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mfetl/internal/platform/logger"
	"mfetl/internal/provider"
	"mfetl/pkg/platform/circuit"
)

const portfolioJSON = `{
  "isin": "INF179K01XQ0",
  "name": "HDFC Mid-Cap Opportunities Fund",
  "amc": "HDFC Mutual Fund",
  "category": "Equity: Mid Cap",
  "expense_ratio": "0.74",
  "holdings": [
    {"securityName": "Max Healthcare", "isin": "INE027H01010", "weighting": 3.9, "internalId": "x1"},
    {"securityName": "Indian Hotels", "weighting": "3.1"},
    {"internalId": "only-private"},
    {"securityName": "Coforge", "weighting": 2.8}
  ],
  "sectors": {"EQUITY": {"fundPortfolio": {"portfolioDate": "2025-01-31", "technology": "12.5", "healthcare": 9, "utilities": 0}}}
}`

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestLookup_DecodesAndFiltersPortfolio(t *testing.T) {
	var gotTerm, gotKey string
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/funds/portfolio", r.URL.Path)
		gotTerm = r.URL.Query().Get("term")
		gotKey = r.Header.Get("X-API-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(portfolioJSON))
	})

	client := New(srv.URL+"/", WithAPIKey("secret"), WithTopN(2), WithLogger(logger.Discard()))
	p, err := client.Lookup(context.Background(), "  HDFC Mid Cap Direct Growth ")
	require.NoError(t, err)

	assert.Equal(t, "HDFC Mid Cap Direct Growth", gotTerm)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "INF179K01XQ0", p.ISIN)
	assert.Equal(t, "HDFC Mutual Fund", p.AMC)
	require.NotNil(t, p.ExpenseRatio)
	assert.InDelta(t, 0.74, *p.ExpenseRatio, 1e-9)

	require.Len(t, p.TopHoldings, 2)
	assert.Equal(t, "Max Healthcare", p.TopHoldings[0]["securityName"])
	assert.NotContains(t, p.TopHoldings[0], "internalId")

	assert.Equal(t, map[string]float64{"technology": 12.5, "healthcare": 9}, p.Sectors)
}

func TestLookup_SectorList(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"isin":"INF1","sectors":[{"sectorName":"Financial Services","sectorValue":"31.2"},{"assetType":"Cash","percentage":2},{"sectorValue":5}]}`))
	})

	p, err := New(srv.URL).Lookup(context.Background(), "term")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"Financial Services": 31.2, "Cash": 2}, p.Sectors)
	assert.Nil(t, p.TopHoldings)
}

func TestLookup_ErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		category  provider.ErrorCategory
		retryable bool
	}{
		{name: "unknown fund", status: http.StatusNotFound, category: provider.ErrorNotFound},
		{name: "throttled", status: http.StatusTooManyRequests, category: provider.ErrorRateLimited, retryable: true},
		{name: "outage", status: http.StatusServiceUnavailable, category: provider.ErrorProviderOutage, retryable: true},
		{name: "garbage body", status: http.StatusOK, body: "{not json", category: provider.ErrorBadData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := New(srv.URL, WithLogger(logger.Discard())).Lookup(context.Background(), "term")
			require.Error(t, err)
			assert.Equal(t, tt.category, provider.GetCategory(err))
			assert.Equal(t, tt.retryable, provider.IsRetryable(err))
		})
	}
}

func TestLookup_Timeout(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := New(srv.URL).Lookup(ctx, "slow fund")
	require.Error(t, err)
	assert.Equal(t, provider.ErrorTimeout, provider.GetCategory(err))
	assert.True(t, provider.IsRetryable(err))
}

func TestLookup_EmptyTermRejectedWithoutCall(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) { calls.Add(1) })

	_, err := New(srv.URL).Lookup(context.Background(), "   ")
	require.Error(t, err)
	assert.Equal(t, provider.ErrorBadData, provider.GetCategory(err))
	assert.Zero(t, calls.Load())
}

func TestLookup_CircuitOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	breaker := circuit.New(ProviderID, circuit.WithFailureThreshold(2))
	client := New(srv.URL, WithBreaker(breaker), WithLogger(logger.Discard()))

	for i := 0; i < 2; i++ {
		_, err := client.Lookup(context.Background(), "fund")
		require.Error(t, err)
	}
	require.True(t, breaker.IsOpen())

	_, err := client.Lookup(context.Background(), "fund")
	require.ErrorIs(t, err, provider.ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load(), "open circuit must not reach the provider")
}

func TestLookup_NotFoundDoesNotTripBreaker(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	breaker := circuit.New(ProviderID, circuit.WithFailureThreshold(1))
	client := New(srv.URL, WithBreaker(breaker))

	_, err := client.Lookup(context.Background(), "missing")
	require.Error(t, err)
	assert.False(t, breaker.IsOpen())
}

func TestFilterHoldings(t *testing.T) {
	records := []map[string]any{
		{"securityName": "A", "junk": 1},
		{"securityName": "B"},
		{"securityName": "C"},
	}
	assert.Len(t, FilterHoldings(records, 0), 3, "non-positive n keeps everything")
	assert.Len(t, FilterHoldings(records, 2), 2)
	assert.Nil(t, FilterHoldings(nil, 5))
	assert.Nil(t, FilterHoldings([]map[string]any{{"junk": 1}}, 5))
}

func TestUnconfigured(t *testing.T) {
	_, err := Unconfigured{}.Lookup(context.Background(), "Axis Bluechip")
	assert.Equal(t, provider.ErrorNotFound, provider.GetCategory(err))
	assert.False(t, provider.IsRetryable(err))
}
