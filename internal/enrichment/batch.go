package enrichment

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"mfetl/internal/enrichment/metrics"
	"mfetl/internal/enrichment/models"
	"mfetl/internal/provider"
	dErrors "mfetl/pkg/domain-errors"
	"mfetl/pkg/platform/retry"
	"mfetl/pkg/requestcontext"
)

// FundOutcome is the batch result for one input name. Fund is nil when the
// name did not resolve or Err is set.
type FundOutcome struct {
	Name string
	Fund *models.EnrichedFund
	Err  error
}

// EnrichBatch enriches names concurrently and returns one outcome per input
// name, in input order. Names equal after trimming and case folding are
// enriched once and share the outcome.
func (s *Service) EnrichBatch(ctx context.Context, names []string) []FundOutcome {
	if p, ok := s.cache.(Purger); ok {
		if n := p.PurgeExpired(s.now()); n > 0 {
			s.logger.DebugContext(ctx, "enrichment cache purged", "expired", n)
		}
	}

	unique := make([]string, 0, len(names))
	slots := make(map[string]int, len(names))
	for _, name := range names {
		key := CacheKey(name)
		if _, seen := slots[key]; !seen {
			slots[key] = len(unique)
			unique = append(unique, name)
		}
	}
	if len(unique) < len(names) {
		s.logger.InfoContext(ctx, "deduplicated fund names",
			"requested", len(names),
			"unique", len(unique),
		)
	}

	results := make([]FundOutcome, len(unique))
	sem := semaphore.NewWeighted(int64(s.settings.MaxConcurrent))
	var g errgroup.Group
	for i, name := range unique {
		g.Go(func() error {
			results[i].Name = name
			if err := sem.Acquire(ctx, 1); err != nil {
				results[i].Err = err
				return nil
			}
			defer sem.Release(1)
			results[i].Fund, results[i].Err = s.enrichWithRetry(ctx, name)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]FundOutcome, len(names))
	for i, name := range names {
		r := results[slots[CacheKey(name)]]
		out[i] = FundOutcome{Name: name, Fund: r.Fund, Err: r.Err}
	}
	return out
}

func (s *Service) enrichWithRetry(ctx context.Context, name string) (*models.EnrichedFund, error) {
	logger := s.logger
	if uploadID := requestcontext.UploadID(ctx); uploadID != "" {
		logger = logger.With("upload_id", uploadID)
	}
	attempt := 0
	fund, err := retry.DoWithResult(ctx, s.settings.Retry, transient(ctx), func(ctx context.Context) (*models.EnrichedFund, error) {
		attempt++
		if attempt > 1 {
			logger.WarnContext(ctx, "retrying fund enrichment",
				"fund_name", name,
				"attempt", attempt,
			)
		}
		fctx, cancel := context.WithTimeout(ctx, s.settings.PerFundTimeout)
		defer cancel()
		return s.EnrichFund(fctx, name)
	})
	if err != nil {
		logger.WarnContext(ctx, "fund enrichment failed",
			"fund_name", name,
			"attempts", attempt,
			"error", err,
		)
		return nil, err
	}
	if attempt > 1 {
		logger.InfoContext(ctx, "fund enriched on retry",
			"fund_name", name,
			"attempt", attempt,
		)
	}
	return fund, nil
}

// transient reports errors worth another attempt: retryable provider
// failures, an unavailable registry, and a per-fund timeout while the
// request itself is still alive.
func transient(parent context.Context) func(error) bool {
	return func(err error) bool {
		switch {
		case parent.Err() != nil:
			return false
		case provider.IsRetryable(err):
			return true
		case dErrors.HasCode(err, dErrors.CodeUnavailable):
			return true
		default:
			return errors.Is(err, context.DeadlineExceeded)
		}
	}
}

// Enrich validates the request's holdings, enriches them within the overall
// enrichment timeout and reports per-fund problems as warnings. A request
// without any valid holding is a bad_request error; running out of time
// yields a failed response, not an error.
func (s *Service) Enrich(ctx context.Context, req models.Request) (*models.Response, error) {
	start := s.now()
	logger := s.logger.With("upload_id", req.UploadID)

	valid, warnings := ValidateHoldings(req.ParsedHoldings)
	if len(valid) == 0 {
		msg := "No valid holdings available for enrichment"
		if len(warnings) > 0 {
			msg = strings.Join(warnings, "; ")
		}
		logger.ErrorContext(ctx, "holdings validation failed", "error", msg)
		return nil, dErrors.New(dErrors.CodeBadRequest, msg)
	}
	logger.InfoContext(ctx, "enrichment started",
		"holdings_total", len(req.ParsedHoldings),
		"holdings_valid", len(valid),
	)

	runCtx, cancel := context.WithTimeout(ctx, s.settings.EnrichmentTimeout)
	defer cancel()

	names := make([]string, len(valid))
	for i, h := range valid {
		names[i] = h.FundName
	}
	outcomes := s.EnrichBatch(runCtx, names)

	if err := runCtx.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "enrichment request cancelled")
		}
		logger.ErrorContext(ctx, "enrichment timed out",
			"timeout_seconds", s.settings.EnrichmentTimeout.Seconds(),
		)
		resp := models.FailedResponse(req.UploadID, "Processing timed out", nil)
		s.finish(ctx, req, resp, start, len(valid))
		return resp, nil
	}

	enriched := make([]models.EnrichedFund, 0, len(outcomes))
	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			warnings = append(warnings, describeFailure(o.Name, o.Err))
			s.metrics.IncFund(metrics.OutcomeFailed)
		case o.Fund == nil:
			warnings = append(warnings, "Could not enrich '"+o.Name+"'")
			s.metrics.IncFund(metrics.OutcomeUnresolved)
		default:
			enriched = append(enriched, *o.Fund)
			s.metrics.IncFund(metrics.OutcomeEnriched)
			if checks := qualityWarnings(o.Name, o.Fund, s.now()); len(checks) > 0 {
				logger.WarnContext(ctx, "enriched fund failed quality checks",
					"fund_name", o.Name,
					"problems", len(checks),
				)
				warnings = append(warnings, checks...)
			}
		}
	}
	if warnings == nil {
		warnings = []string{}
	}

	duration := int(s.now().Sub(start).Seconds())
	resp := &models.Response{
		UploadID:        req.UploadID,
		Status:          models.StatusCompleted,
		DurationSeconds: &duration,
		EnrichedFunds:   enriched,
		EnrichmentQuality: models.Quality{
			SuccessfullyEnriched: len(enriched),
			FailedToEnrich:       len(valid) - len(enriched),
			Warnings:             warnings,
		},
	}
	logger.InfoContext(ctx, "enrichment completed",
		"successfully_enriched", resp.EnrichmentQuality.SuccessfullyEnriched,
		"failed_to_enrich", resp.EnrichmentQuality.FailedToEnrich,
		"warnings", len(warnings),
	)
	s.finish(ctx, req, resp, start, len(valid))
	return resp, nil
}

func (s *Service) finish(ctx context.Context, req models.Request, resp *models.Response, start time.Time, holdings int) {
	elapsed := s.now().Sub(start)
	s.metrics.ObserveDuration(elapsed)
	if s.publisher == nil {
		return
	}
	event := auditEvent(ctx, req, resp, holdings, elapsed, s.now())
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish enrichment event",
			"upload_id", req.UploadID,
			"error", err,
		)
	}
}
