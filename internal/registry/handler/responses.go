package handler

import "mfetl/internal/registry"

// SchemesResponse is the body of GET /registry/schemes.
type SchemesResponse struct {
	Query   string              `json:"query"`
	Schemes []registry.NAVQuote `json:"schemes"`
}
