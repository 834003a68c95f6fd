package enrichment

import (
	"context"
	"time"

	"mfetl/internal/audit"
	"mfetl/internal/enrichment/models"
	"mfetl/pkg/platform/middleware/metadata"
	"mfetl/pkg/requestcontext"
)

func auditEvent(ctx context.Context, req models.Request, resp *models.Response, holdings int, elapsed time.Duration, now time.Time) audit.EnrichmentEvent {
	event := audit.EnrichmentEvent{
		Timestamp:      now,
		UploadID:       req.UploadID,
		UserID:         req.UserID,
		RequestID:      requestcontext.RequestID(ctx),
		ClientIP:       metadata.GetClientIP(ctx),
		Status:         resp.Status,
		HoldingsTotal:  holdings,
		FundsEnriched:  resp.EnrichmentQuality.SuccessfullyEnriched,
		FundsFailed:    resp.EnrichmentQuality.FailedToEnrich,
		Warnings:       len(resp.EnrichmentQuality.Warnings),
		DurationMillis: elapsed.Milliseconds(),
	}
	if resp.ErrorMessage != nil {
		event.Error = *resp.ErrorMessage
	}
	return event
}
