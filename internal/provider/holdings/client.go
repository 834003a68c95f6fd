// Package holdings looks up a fund's portfolio (ISIN, top holdings and
// sector allocation) from the holdings provider by free-text search term.
package holdings

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"mfetl/internal/provider"
	"mfetl/pkg/platform/circuit"
)

// ProviderID names this provider in errors, logs and spans.
const ProviderID = "holdings"

const tracerName = "mfetl.provider.holdings"

// maxBodyBytes bounds the response body we are willing to decode.
const maxBodyBytes = 4 << 20

// allowedHoldingKeys is the attribute whitelist kept on each top holding.
var allowedHoldingKeys = []string{
	"securityName",
	"isin",
	"ticker",
	"secId",
	"country",
	"sector",
	"numberOfShare",
	"marketValue",
	"weighting",
	"shareChange",
	"firstBoughtDate",
	"holdingTrend",
	"totalReturn1Year",
	"assessment",
	"stockRating",
	"quantRating",
	"susEsgRiskScore",
	"susEsgRiskCategory",
	"susEsgRiskGlobes",
	"esgAsOfDate",
}

// FundPortfolio is what the provider knows about one fund.
type FundPortfolio struct {
	ISIN         string
	Name         string
	AMC          string
	Category     string
	ExpenseRatio *float64
	TopHoldings  []map[string]any
	Sectors      map[string]float64
}

type portfolioResponse struct {
	ISIN         string           `json:"isin"`
	Name         string           `json:"name"`
	AMC          string           `json:"amc"`
	Category     string           `json:"category"`
	ExpenseRatio any              `json:"expense_ratio"`
	Holdings     []map[string]any `json:"holdings"`
	Sectors      json.RawMessage  `json:"sectors"`
}

// Client calls GET {base}/funds/portfolio?term=.
type Client struct {
	baseURL    string
	apiKey     string
	topN       int
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *circuit.Breaker
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithAPIKey sends key as X-API-Key.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithTopN caps the number of holdings returned.
func WithTopN(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.topN = n
		}
	}
}

// WithRateLimit throttles outbound calls. rps <= 0 disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithBreaker sets the circuit breaker guarding the provider.
func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New builds a client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		topN:       20,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		breaker:    circuit.New(ProviderID),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup searches the provider for term. A term the provider does not know
// yields a non-retryable not_found ProviderError.
func (c *Client) Lookup(ctx context.Context, term string) (*FundPortfolio, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, provider.NewProviderError(provider.ErrorBadData, ProviderID, "empty search term", nil)
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "holdings.Client.Lookup",
		trace.WithAttributes(attribute.String("search_term", term)),
	)
	defer span.End()

	if c.breaker != nil && c.breaker.IsOpen() {
		err := provider.NewProviderError(provider.ErrorProviderOutage, ProviderID, "circuit open", provider.ErrCircuitOpen)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			perr := provider.FromTransport(ProviderID, err)
			span.RecordError(perr)
			span.SetStatus(codes.Error, perr.Error())
			return nil, perr
		}
	}

	portfolio, err := c.fetch(ctx, term)
	c.record(ctx, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("isin", portfolio.ISIN),
		attribute.Int("holdings", len(portfolio.TopHoldings)),
	)
	span.SetStatus(codes.Ok, "")
	return portfolio, nil
}

func (c *Client) record(ctx context.Context, err error) {
	if c.breaker == nil {
		return
	}
	// A missing fund is a healthy answer.
	if err == nil || provider.GetCategory(err) == provider.ErrorNotFound {
		if _, change := c.breaker.RecordSuccess(); change.Closed {
			c.logger.InfoContext(ctx, "provider circuit closed", "provider", ProviderID)
		}
		return
	}
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.logger.WarnContext(ctx, "provider circuit opened", "provider", ProviderID, "error", err)
	}
}

func (c *Client) fetch(ctx context.Context, term string) (*FundPortfolio, error) {
	endpoint := c.baseURL + "/funds/portfolio?" + url.Values{"term": {term}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, provider.NewProviderError(provider.ErrorInternal, ProviderID, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, provider.FromTransport(ProviderID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, provider.FromStatus(ProviderID, resp.StatusCode)
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes))
	dec.UseNumber()
	var body portfolioResponse
	if err := dec.Decode(&body); err != nil {
		return nil, provider.NewProviderError(provider.ErrorBadData, ProviderID, "decode portfolio", err)
	}
	return c.toPortfolio(body)
}

func (c *Client) toPortfolio(body portfolioResponse) (*FundPortfolio, error) {
	sectors, err := decodeSectors(body.Sectors)
	if err != nil {
		return nil, provider.NewProviderError(provider.ErrorBadData, ProviderID, "decode sectors", err)
	}
	return &FundPortfolio{
		ISIN:         strings.TrimSpace(body.ISIN),
		Name:         body.Name,
		AMC:          body.AMC,
		Category:     body.Category,
		ExpenseRatio: provider.FloatPtr(body.ExpenseRatio),
		TopHoldings:  FilterHoldings(body.Holdings, c.topN),
		Sectors:      sectors,
	}, nil
}

// FilterHoldings keeps only whitelisted attributes of the first n records.
// Records left without any attribute are dropped.
func FilterHoldings(records []map[string]any, n int) []map[string]any {
	if len(records) == 0 {
		return nil
	}
	size := len(records)
	if n > 0 && n < size {
		size = n
	}
	out := make([]map[string]any, 0, size)
	for _, record := range records {
		if n > 0 && len(out) == n {
			break
		}
		filtered := make(map[string]any, len(allowedHoldingKeys))
		for _, key := range allowedHoldingKeys {
			if v, ok := record[key]; ok {
				filtered[key] = v
			}
		}
		if len(filtered) > 0 {
			out = append(out, filtered)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func decodeSectors(raw json.RawMessage) (map[string]float64, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	switch trimmed[0] {
	case '{':
		var m map[string]any
		if err := decodeNumbers(raw, &m); err != nil {
			return nil, err
		}
		return NormalizeSectors(m), nil
	case '[':
		var items []map[string]any
		if err := decodeNumbers(raw, &items); err != nil {
			return nil, err
		}
		return NormalizeSectors(sectorsFromList(items)), nil
	default:
		return nil, fmt.Errorf("unexpected sectors payload %q", trimmed[:1])
	}
}

func decodeNumbers(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	return dec.Decode(v)
}

// sectorsFromList flattens [{"sectorName": "...", "sectorValue": 12.5}] rows.
func sectorsFromList(items []map[string]any) map[string]any {
	out := make(map[string]any, len(items))
	for _, item := range items {
		name := firstString(item, "sectorName", "assetType")
		if name == "" {
			continue
		}
		for _, key := range []string{"sectorValue", "percentage", "value"} {
			if v, ok := item[key]; ok && v != nil {
				out[name] = v
				break
			}
		}
	}
	return out
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Unconfigured answers every lookup with not_found. It stands in for the
// provider when no base URL is configured, so enrichment still reports
// registry data.
type Unconfigured struct{}

// Lookup implements the provider contract.
func (Unconfigured) Lookup(context.Context, string) (*FundPortfolio, error) {
	return nil, provider.NewProviderError(provider.ErrorNotFound, ProviderID, "holdings provider not configured", nil)
}
