package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mfetl/internal/enrichment/models"
	"mfetl/internal/platform/logger"
	dErrors "mfetl/pkg/domain-errors"
	"mfetl/pkg/testutil"
)

type stubEnricher struct {
	got  *models.Request
	resp *models.Response
	err  error
}

func (s *stubEnricher) Enrich(_ context.Context, req models.Request) (*models.Response, error) {
	s.got = &req
	return s.resp, s.err
}

func newRouter(e Enricher) http.Handler {
	r := chi.NewRouter()
	New(e, logger.Discard()).Register(r)
	return r
}

func TestHandleEnrich_Success(t *testing.T) {
	duration := 2
	stub := &stubEnricher{resp: &models.Response{
		UploadID:        "upload-1",
		Status:          models.StatusCompleted,
		DurationSeconds: &duration,
		EnrichedFunds:   []models.EnrichedFund{{FundName: "Axis Bluechip Fund"}},
		EnrichmentQuality: models.Quality{
			SuccessfullyEnriched: 1,
			Warnings:             []string{},
		},
	}}

	req := testutil.NewJSONRequest(t, http.MethodPost, "/etl/enrich", map[string]any{
		"upload_id": "upload-1",
		"user_id":   "user-1",
		"file_type": "xlsx",
		"parsed_holdings": []map[string]any{
			{"fund_name": "Axis Bluechip Fund", "units": 10.5, "nav": 52.3, "folio_number": "F-1"},
		},
		"extra_field": "ignored",
	})
	rr := testutil.DoRequest(newRouter(stub), req)

	testutil.AssertStatusOK(t, rr)
	require.NotNil(t, stub.got)
	assert.Equal(t, "upload-1", stub.got.UploadID)
	require.Len(t, stub.got.ParsedHoldings, 1)
	assert.InDelta(t, 10.5, *stub.got.ParsedHoldings[0].Units, 1e-9)
	assert.Equal(t, "F-1", *stub.got.ParsedHoldings[0].FolioNumber)

	resp := testutil.UnmarshalResponse[models.Response](t, rr)
	assert.Equal(t, models.StatusCompleted, resp.Status)
	assert.Len(t, resp.EnrichedFunds, 1)
}

func TestHandleEnrich_ValidationFailures(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantUploadID string
		wantMessage  string
	}{
		{
			name:         "missing units",
			body:         `{"upload_id": "u-9", "user_id": "x", "parsed_holdings": [{"fund_name": "A"}]}`,
			wantUploadID: "u-9",
			wantMessage:  "parsed_holdings[0].units is required",
		},
		{
			name:         "missing holdings and user",
			body:         `{"upload_id": "u-9"}`,
			wantUploadID: "u-9",
			wantMessage:  "user_id is required; parsed_holdings is required",
		},
		{
			name:         "wrong type",
			body:         `{"upload_id": "u-9", "user_id": "x", "parsed_holdings": [{"fund_name": "A", "units": "ten"}]}`,
			wantUploadID: "u-9",
			wantMessage:  "units has an invalid type",
		},
		{
			name:         "malformed JSON",
			body:         `{"upload_id": `,
			wantUploadID: "unknown",
			wantMessage:  "invalid JSON body",
		},
		{
			name:         "empty body",
			body:         ``,
			wantUploadID: "unknown",
			wantMessage:  "request body is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubEnricher{}
			rr := testutil.DoRequest(newRouter(stub), testutil.NewRequestWithBody(t, http.MethodPost, "/etl/enrich", tt.body))

			testutil.AssertStatus(t, rr, http.StatusUnprocessableEntity)
			assert.Nil(t, stub.got, "enricher is not called")

			resp := testutil.UnmarshalResponse[models.Response](t, rr)
			assert.Equal(t, models.StatusFailed, resp.Status)
			assert.Equal(t, tt.wantUploadID, resp.UploadID)
			require.NotNil(t, resp.ErrorMessage)
			assert.Contains(t, *resp.ErrorMessage, tt.wantMessage)
			assert.NotEmpty(t, resp.EnrichmentQuality.Warnings)
			assert.Empty(t, resp.EnrichedFunds)
		})
	}
}

func TestHandleEnrich_NoValidHoldings(t *testing.T) {
	stub := &stubEnricher{err: dErrors.New(dErrors.CodeBadRequest, "A: units must be positive")}
	req := testutil.NewJSONRequest(t, http.MethodPost, "/etl/enrich", map[string]any{
		"upload_id":       "u-1",
		"user_id":         "x",
		"parsed_holdings": []map[string]any{{"fund_name": "A", "units": 0}},
	})
	rr := testutil.DoRequest(newRouter(stub), req)

	testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
}

func TestHandleEnrich_UnexpectedError(t *testing.T) {
	stub := &stubEnricher{err: errors.New("boom")}
	req := testutil.NewJSONRequest(t, http.MethodPost, "/etl/enrich", map[string]any{
		"upload_id":       "u-1",
		"user_id":         "x",
		"parsed_holdings": []map[string]any{{"fund_name": "A", "units": 1}},
	})
	rr := testutil.DoRequest(newRouter(stub), req)

	testutil.AssertStatusOK(t, rr)
	resp := testutil.UnmarshalResponse[models.Response](t, rr)
	assert.Equal(t, models.StatusFailed, resp.Status)
	assert.Equal(t, "u-1", resp.UploadID)
	assert.Equal(t, []string{"boom"}, resp.EnrichmentQuality.Warnings)
}
