package audit

import (
	"context"
	"log/slog"
	"time"
)

// Publisher delivers enrichment events to a sink.
type Publisher interface {
	Publish(ctx context.Context, event EnrichmentEvent) error
}

// LogPublisher writes events to the structured log. It is the sink when no
// broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a log-backed publisher.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish implements Publisher.
func (p *LogPublisher) Publish(ctx context.Context, event EnrichmentEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	p.logger.InfoContext(ctx, "enrichment event",
		"upload_id", event.UploadID,
		"user_id", event.UserID,
		"request_id", event.RequestID,
		"status", event.Status,
		"holdings_total", event.HoldingsTotal,
		"funds_enriched", event.FundsEnriched,
		"funds_failed", event.FundsFailed,
		"warnings", event.Warnings,
		"duration_ms", event.DurationMillis,
	)
	return nil
}
