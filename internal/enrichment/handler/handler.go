package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"mfetl/internal/enrichment/models"
	dErrors "mfetl/pkg/domain-errors"
	"mfetl/pkg/platform/httputil"
	"mfetl/pkg/platform/validation"
	"mfetl/pkg/requestcontext"
)

// maxBodyBytes caps enrichment uploads.
const maxBodyBytes = 4 << 20

// Enricher runs the enrichment pipeline.
type Enricher interface {
	Enrich(ctx context.Context, req models.Request) (*models.Response, error)
}

// Handler serves POST /etl/enrich.
type Handler struct {
	enricher Enricher
	logger   *slog.Logger
}

// New constructs an enrichment handler.
func New(enricher Enricher, logger *slog.Logger) *Handler {
	return &Handler{enricher: enricher, logger: logger}
}

// Register mounts the enrichment endpoint on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/etl/enrich", h.HandleEnrich)
}

// HandleEnrich decodes and validates the upload, then runs enrichment.
// Malformed payloads get a failed EnrichmentResponse with status 422 so
// callers can always parse the body.
func (h *Handler) HandleEnrich(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read request body"))
		return
	}

	req, err := decode(body)
	if err != nil {
		uploadID := peekUploadID(body)
		h.logger.ErrorContext(ctx, "invalid enrichment request",
			"request_id", requestID,
			"upload_id", uploadID,
			"error", err,
		)
		msg := "Validation failed"
		if de, ok := dErrors.As(err); ok && de.Message != "" {
			msg = de.Message
		}
		httputil.WriteJSON(w, http.StatusUnprocessableEntity,
			models.FailedResponse(uploadID, msg, strings.Split(msg, "; ")))
		return
	}

	ctx = requestcontext.WithUploadID(ctx, req.UploadID)
	resp, err := h.enricher.Enrich(ctx, *req)
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			h.logger.ErrorContext(ctx, "enrichment failed",
				"request_id", requestID,
				"upload_id", req.UploadID,
				"error", err,
			)
			msg := err.Error()
			httputil.WriteJSON(w, http.StatusOK, models.FailedResponse(req.UploadID, msg, nil))
			return
		}
		h.logger.WarnContext(ctx, "enrichment rejected",
			"request_id", requestID,
			"upload_id", req.UploadID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

func decode(body []byte) (*models.Request, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "request body is required")
	}
	var req models.Request
	if err := json.Unmarshal(body, &req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, typeErr.Field+" has an invalid type")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid JSON body")
	}
	if err := validation.Struct(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// peekUploadID recovers upload_id from a body that failed validation.
func peekUploadID(body []byte) string {
	var partial struct {
		UploadID any `json:"upload_id"`
	}
	if json.Unmarshal(body, &partial) != nil {
		return ""
	}
	if s, ok := partial.UploadID.(string); ok {
		return s
	}
	return ""
}
