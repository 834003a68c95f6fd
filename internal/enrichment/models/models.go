// Package models holds the enrichment request and response shapes.
package models

// Response statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Holding is one parsed portfolio line supplied by the upload parser.
// Only FundName, Units, NAV, Value and PurchaseDate take part in
// enrichment; the rest are carried for the caller.
type Holding struct {
	FundName     string   `json:"fund_name"`
	Units        *float64 `json:"units" validate:"required"`
	NAV          *float64 `json:"nav,omitempty"`
	Value        *float64 `json:"value,omitempty"`
	PurchaseDate *string  `json:"purchase_date,omitempty"`
	ISIN         *string  `json:"isin,omitempty"`
	AMC          *string  `json:"amc,omitempty"`
	Category     *string  `json:"category,omitempty"`
	FolioNumber  *string  `json:"folio_number,omitempty"`
	CurrentValue *float64 `json:"current_value,omitempty"`
	Returns      *float64 `json:"returns,omitempty"`
	XIRR         *float64 `json:"xirr,omitempty"`
}

// Request asks for the holdings of one upload to be enriched.
type Request struct {
	UploadID            string    `json:"upload_id" validate:"required"`
	UserID              string    `json:"user_id" validate:"required"`
	FileType            *string   `json:"file_type,omitempty"`
	ParsedHoldings      []Holding `json:"parsed_holdings" validate:"required,max=1000,dive"`
	EnrichmentTimestamp *int64    `json:"enrichment_timestamp,omitempty"`
}

// EnrichedFund is everything gathered about one fund.
type EnrichedFund struct {
	FundName         string             `json:"fund_name"`
	ISIN             *string            `json:"isin"`
	AMC              *string            `json:"amc"`
	Category         *string            `json:"category"`
	ExpenseRatio     *float64           `json:"expense_ratio"`
	SectorAllocation map[string]float64 `json:"sector_allocation"`
	TopHoldings      []map[string]any   `json:"top_holdings"`
	CurrentNAV       *float64           `json:"current_nav"`
	NAVAsOf          *string            `json:"nav_as_of"`
	SchemeCode       string             `json:"scheme_code,omitempty"`
	SchemeName       string             `json:"scheme_name,omitempty"`
	MatchStrategy    string             `json:"match_strategy,omitempty"`
}

// Quality summarizes how much of an upload could be enriched.
type Quality struct {
	SuccessfullyEnriched int      `json:"successfully_enriched"`
	FailedToEnrich       int      `json:"failed_to_enrich"`
	Warnings             []string `json:"warnings"`
}

// Response is returned for every enrichment request, including failed ones.
type Response struct {
	UploadID          string         `json:"upload_id"`
	Status            string         `json:"status"`
	DurationSeconds   *int           `json:"duration_seconds"`
	EnrichedFunds     []EnrichedFund `json:"enriched_funds"`
	EnrichmentQuality Quality        `json:"enrichment_quality"`
	ErrorMessage      *string        `json:"error_message"`
}

// FailedResponse builds a failed response carrying msg as both the error
// and, when no other warnings are given, the only warning.
func FailedResponse(uploadID, msg string, warnings []string) *Response {
	if uploadID == "" {
		uploadID = "unknown"
	}
	if len(warnings) == 0 {
		warnings = []string{msg}
	}
	return &Response{
		UploadID:      uploadID,
		Status:        StatusFailed,
		EnrichedFunds: []EnrichedFund{},
		EnrichmentQuality: Quality{
			Warnings: warnings,
		},
		ErrorMessage: &msg,
	}
}
