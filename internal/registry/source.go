package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"mfetl/internal/provider"
	"mfetl/pkg/platform/retry"
)

// ProviderID names the registry source in errors and spans.
const ProviderID = "amfi"

const tracerName = "mfetl.registry"

// Source produces a fresh snapshot.
type Source interface {
	Fetch(ctx context.Context) (*Snapshot, error)
}

// AMFISource downloads NAVAll.txt over HTTP.
type AMFISource struct {
	url        string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      retry.Config
	logger     *slog.Logger
	now        func() time.Time
}

// AMFIOption configures an AMFISource.
type AMFIOption func(*AMFISource)

// WithHTTPClient replaces the default client (30s timeout).
func WithHTTPClient(c *http.Client) AMFIOption {
	return func(s *AMFISource) {
		if c != nil {
			s.httpClient = c
		}
	}
}

// WithRateLimit throttles downloads. rps <= 0 disables throttling.
func WithRateLimit(rps float64) AMFIOption {
	return func(s *AMFISource) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithRetry overrides the retry policy for transient download failures.
func WithRetry(cfg retry.Config) AMFIOption {
	return func(s *AMFISource) { s.retry = cfg }
}

// WithSourceLogger sets the logger.
func WithSourceLogger(logger *slog.Logger) AMFIOption {
	return func(s *AMFISource) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewAMFISource builds a source for url.
func NewAMFISource(url string, opts ...AMFIOption) *AMFISource {
	s := &AMFISource{
		url:        url,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retry:      retry.DefaultConfig(),
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch downloads and parses the registry, retrying timeouts, outages and
// rate limiting.
func (s *AMFISource) Fetch(ctx context.Context) (*Snapshot, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "registry.AMFISource.Fetch",
		trace.WithAttributes(attribute.String("url", s.url)),
	)
	defer span.End()

	attempt := 0
	snap, err := retry.DoWithResult(ctx, s.retry, provider.IsRetryable, func(ctx context.Context) (*Snapshot, error) {
		attempt++
		snap, err := s.fetchOnce(ctx)
		if err != nil && provider.IsRetryable(err) {
			s.logger.WarnContext(ctx, "registry download failed",
				"attempt", attempt,
				"error", err,
			)
		}
		return snap, err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("schemes", snap.Len()))
	span.SetStatus(codes.Ok, "")
	return snap, nil
}

func (s *AMFISource) fetchOnce(ctx context.Context) (*Snapshot, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, provider.FromTransport(ProviderID, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, provider.NewProviderError(provider.ErrorInternal, ProviderID, "build request", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, provider.FromTransport(ProviderID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, provider.FromStatus(ProviderID, resp.StatusCode)
	}
	snap, err := ParseNAVAll(resp.Body, s.now())
	if err != nil {
		if errors.Is(err, ErrEmptyRegistry) {
			return nil, provider.NewProviderError(provider.ErrorBadData, ProviderID, "empty registry", err)
		}
		return nil, provider.FromTransport(ProviderID, err)
	}
	return snap, nil
}

// FileSource reads a NAVAll.txt copy from disk.
type FileSource struct {
	Path string
}

// Fetch implements Source.
func (s FileSource) Fetch(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open registry file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat registry file: %w", err)
	}
	return ParseNAVAll(f, info.ModTime())
}

// NewSource picks the file source when a path is given and the AMFI
// download otherwise.
func NewSource(file, url string, timeout time.Duration, rps float64, logger *slog.Logger) Source {
	if file != "" {
		return FileSource{Path: file}
	}
	return NewAMFISource(url,
		WithHTTPClient(&http.Client{Timeout: timeout}),
		WithRateLimit(rps),
		WithSourceLogger(logger),
	)
}
