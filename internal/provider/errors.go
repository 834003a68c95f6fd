// Package provider holds what the outbound data providers (scheme registry,
// holdings API) share: a normalized failure taxonomy and lenient numeric parsing.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorCategory classifies a failed call to the registry or the holdings API.
type ErrorCategory string

// Timeouts, outages and rate limiting are transient; the rest are final for
// the term or download that produced them.
const (
	ErrorTimeout        ErrorCategory = "timeout"
	ErrorBadData        ErrorCategory = "bad_data"
	ErrorAuthentication ErrorCategory = "authentication"
	ErrorProviderOutage ErrorCategory = "provider_outage"
	ErrorNotFound       ErrorCategory = "not_found"
	ErrorRateLimited    ErrorCategory = "rate_limited"
	ErrorInternal       ErrorCategory = "internal"
)

// ProviderError is a categorized upstream failure.
type ProviderError struct {
	Category   ErrorCategory
	ProviderID string
	Message    string
	Underlying error
	Retryable  bool
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("provider %s [%s]: %s", e.ProviderID, e.Category, e.Message)
	if e.Underlying == nil {
		return msg
	}
	return msg + ": " + e.Underlying.Error()
}

func (e *ProviderError) Unwrap() error { return e.Underlying }

// NewProviderError derives Retryable from the category.
func NewProviderError(category ErrorCategory, providerID, message string, underlying error) *ProviderError {
	var retryable bool
	switch category {
	case ErrorTimeout, ErrorProviderOutage, ErrorRateLimited:
		retryable = true
	}
	return &ProviderError{
		Category:   category,
		ProviderID: providerID,
		Message:    message,
		Underlying: underlying,
		Retryable:  retryable,
	}
}

// IsRetryable reports whether err is a transient provider failure.
func IsRetryable(err error) bool {
	pe, ok := asProviderError(err)
	return ok && pe.Retryable
}

// GetCategory returns the category of a provider error, or ErrorInternal for
// any other error.
func GetCategory(err error) ErrorCategory {
	if pe, ok := asProviderError(err); ok {
		return pe.Category
	}
	return ErrorInternal
}

func asProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	ok := errors.As(err, &pe)
	return pe, ok
}

// FromStatus maps a non-2xx HTTP status to a provider error.
func FromStatus(providerID string, status int) *ProviderError {
	msg := fmt.Sprintf("unexpected status %d", status)
	switch {
	case status == http.StatusNotFound:
		return NewProviderError(ErrorNotFound, providerID, msg, nil)
	case status == http.StatusTooManyRequests:
		return NewProviderError(ErrorRateLimited, providerID, msg, nil)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewProviderError(ErrorAuthentication, providerID, msg, nil)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return NewProviderError(ErrorTimeout, providerID, msg, nil)
	case status >= 500:
		return NewProviderError(ErrorProviderOutage, providerID, msg, nil)
	default:
		return NewProviderError(ErrorBadData, providerID, msg, nil)
	}
}

// FromTransport classifies a failed round trip. Deadline errors become
// timeouts; anything else is treated as an outage.
func FromTransport(providerID string, err error) *ProviderError {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewProviderError(ErrorTimeout, providerID, "request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return NewProviderError(ErrorInternal, providerID, "request cancelled", err)
	}
	return NewProviderError(ErrorProviderOutage, providerID, "request failed", err)
}

// ErrCircuitOpen is returned without contacting a provider whose breaker is open.
var ErrCircuitOpen = errors.New("provider circuit open")
