package handler

import (
	"mfetl/pkg/platform/validation"
)

// ResolveRequest is the HTTP request body for POST /funds/resolve.
// Empty names are allowed and resolve to nothing. Names are passed to the
// resolver as sent; matching ignores surrounding whitespace and the result
// echoes the caller's input.
type ResolveRequest struct {
	FundNames []string `json:"fund_names" validate:"required,min=1,max=500,dive,max=300"`
}

// Validate validates the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *ResolveRequest) Validate() error {
	return validation.Struct(r)
}
