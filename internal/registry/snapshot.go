// Package registry keeps the current scheme registry: every scheme code with
// its official name, ISINs and latest NAV, as published in AMFI's daily
// NAVAll.txt. A Snapshot is immutable once built and implements
// resolver.Registry; the Holder swaps snapshots atomically on refresh.
package registry

import (
	"time"

	"mfetl/internal/resolver"
)

// NAVQuote is one scheme line of the registry file.
type NAVQuote struct {
	SchemeCode   string   `json:"scheme_code"`
	SchemeName   string   `json:"scheme_name"`
	ISINGrowth   string   `json:"isin_growth,omitempty"`
	ISINReinvest string   `json:"isin_reinvest,omitempty"`
	NAV          *float64 `json:"nav"`
	Date         string   `json:"nav_date,omitempty"`
}

// ISIN returns the growth ISIN, falling back to the reinvestment ISIN.
func (q NAVQuote) ISIN() string {
	if q.ISINGrowth != "" {
		return q.ISINGrowth
	}
	return q.ISINReinvest
}

// Snapshot is an immutable, ordered view of the registry.
type Snapshot struct {
	entries   []resolver.RegistryEntry
	quotes    []NAVQuote
	index     map[string]int
	fetchedAt time.Time
}

// NewSnapshot builds a snapshot in the given order. Quotes without a code
// are skipped and the first occurrence of a code wins.
func NewSnapshot(quotes []NAVQuote, fetchedAt time.Time) *Snapshot {
	s := &Snapshot{
		entries:   make([]resolver.RegistryEntry, 0, len(quotes)),
		quotes:    make([]NAVQuote, 0, len(quotes)),
		index:     make(map[string]int, len(quotes)),
		fetchedAt: fetchedAt,
	}
	for _, q := range quotes {
		if q.SchemeCode == "" {
			continue
		}
		if _, dup := s.index[q.SchemeCode]; dup {
			continue
		}
		s.index[q.SchemeCode] = len(s.quotes)
		s.quotes = append(s.quotes, q)
		s.entries = append(s.entries, resolver.RegistryEntry{
			SchemeCode:   q.SchemeCode,
			OfficialName: q.SchemeName,
		})
	}
	return s
}

// Entries implements resolver.Registry. Callers must not modify the slice.
func (s *Snapshot) Entries() []resolver.RegistryEntry {
	return s.entries
}

// OfficialName implements resolver.Registry.
func (s *Snapshot) OfficialName(schemeCode string) (string, bool) {
	i, ok := s.index[schemeCode]
	if !ok {
		return "", false
	}
	return s.quotes[i].SchemeName, true
}

// Quote returns the NAV line for schemeCode.
func (s *Snapshot) Quote(schemeCode string) (NAVQuote, bool) {
	i, ok := s.index[schemeCode]
	if !ok {
		return NAVQuote{}, false
	}
	return s.quotes[i], true
}

// Quotes returns a copy of every quote in registry order.
func (s *Snapshot) Quotes() []NAVQuote {
	out := make([]NAVQuote, len(s.quotes))
	copy(out, s.quotes)
	return out
}

// Len is the number of schemes.
func (s *Snapshot) Len() int { return len(s.quotes) }

// FetchedAt is when the source produced the snapshot.
func (s *Snapshot) FetchedAt() time.Time { return s.fetchedAt }
