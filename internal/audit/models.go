package audit

import "time"

// Enrichment run statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// EnrichmentEvent summarizes one enrichment request. Keep it
// transport-agnostic so sinks can fan out.
type EnrichmentEvent struct {
	Timestamp      time.Time `json:"timestamp"`
	UploadID       string    `json:"upload_id"`
	UserID         string    `json:"user_id"`
	RequestID      string    `json:"request_id,omitempty"`
	ClientIP       string    `json:"client_ip,omitempty"`
	Status         string    `json:"status"`
	HoldingsTotal  int       `json:"holdings_total"`
	FundsEnriched  int       `json:"funds_enriched"`
	FundsFailed    int       `json:"funds_failed"`
	Warnings       int       `json:"warnings"`
	DurationMillis int64     `json:"duration_ms"`
	Error          string    `json:"error,omitempty"`
}
