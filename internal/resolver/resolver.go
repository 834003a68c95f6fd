// Package resolver maps free-text mutual fund names onto registry scheme
// codes and builds search terms for the holdings provider.
//
// Resolution runs a fixed fallback chain (exact, normalized, partial,
// word overlap). Each stage is first-fit over the registry's enumeration
// order; the chain does not rank candidates. A miss is a normal outcome and
// is reported through absent fields on Result, never as an error.
//
// A Resolver holds only immutable rule tables and is safe for concurrent use
// as long as the Registry it is handed is not mutated during the call.
package resolver

import "fmt"

// RegistryEntry is one scheme known to the registry.
type RegistryEntry struct {
	SchemeCode   string `json:"scheme_code"`
	OfficialName string `json:"official_name"`
}

// Registry is a read-only snapshot of scheme codes and official names.
// Entries must enumerate in a stable order.
type Registry interface {
	Entries() []RegistryEntry
	OfficialName(schemeCode string) (string, bool)
}

// Entries is a slice-backed Registry.
type Entries []RegistryEntry

// Entries implements Registry.
func (e Entries) Entries() []RegistryEntry { return e }

// OfficialName implements Registry with a linear scan.
func (e Entries) OfficialName(schemeCode string) (string, bool) {
	for _, entry := range e {
		if entry.SchemeCode == schemeCode {
			return entry.OfficialName, true
		}
	}
	return "", false
}

// Result is the outcome of resolving one fund name.
type Result struct {
	Name                 string        `json:"name"`
	SchemeCode           *string       `json:"scheme_code"`
	SchemeName           *string       `json:"scheme_name"`
	PrimarySearchTerm    string        `json:"primary_search_term"`
	AlternateSearchTerms []string      `json:"alternate_search_terms"`
	Strategy             MatchStrategy `json:"match_strategy"`
}

// Resolved reports whether a scheme code was found.
func (r Result) Resolved() bool { return r.SchemeCode != nil }

// Code returns the scheme code or "".
func (r Result) Code() string {
	if r.SchemeCode == nil {
		return ""
	}
	return *r.SchemeCode
}

// SearchTerms returns the primary term followed by the alternates, the
// order in which the holdings provider should be queried.
func (r Result) SearchTerms() []string {
	terms := make([]string, 0, 1+len(r.AlternateSearchTerms))
	terms = append(terms, r.PrimarySearchTerm)
	return append(terms, r.AlternateSearchTerms...)
}

// Resolver runs the fallback chain and assembles results.
type Resolver struct {
	normalizer *Normalizer
	terms      *TermGenerator
	strategies []matchStrategy
}

// New builds a Resolver from a rule table.
func New(rules Rules) (*Resolver, error) {
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("invalid resolver rules: %w", err)
	}
	return &Resolver{
		normalizer: NewNormalizer(rules),
		terms:      NewTermGenerator(rules),
		strategies: strategies(thresholdPercent(rules.FuzzyThreshold)),
	}, nil
}

// NewDefault builds a Resolver from the embedded rule table.
func NewDefault() *Resolver {
	r, err := New(DefaultRules())
	if err != nil {
		panic(err)
	}
	return r
}

// Normalize exposes the comparison key used by the matcher.
func (r *Resolver) Normalize(name string) string {
	return r.normalizer.Normalize(name)
}

// ResolveSchemeCode returns the scheme code of the first registry entry
// matched by the earliest strategy that matches anything.
func (r *Resolver) ResolveSchemeCode(rawName string, reg Registry) (string, bool) {
	code, strategy := r.matchSchemeCode(rawName, reg)
	return code, strategy != StrategyNone
}

func (r *Resolver) matchSchemeCode(rawName string, reg Registry) (string, MatchStrategy) {
	if reg == nil {
		panic(errNilRegistry)
	}
	entries := reg.Entries()
	if len(entries) == 0 {
		return "", StrategyNone
	}

	key := r.normalizer.Normalize(rawName)
	q := &query{
		folded: foldName(rawName),
		key:    key,
		words:  wordSet(key),
	}
	c := newCandidates(r.normalizer, entries)
	for _, s := range r.strategies {
		for i := range entries {
			if s.match(q, c, i) {
				return entries[i].SchemeCode, s.name
			}
		}
	}
	return "", StrategyNone
}

// Resolve maps rawName to a scheme code, official name and search terms.
// It panics if reg is nil.
func (r *Resolver) Resolve(rawName string, reg Registry) Result {
	result := Result{
		Name:     rawName,
		Strategy: StrategyNone,
	}

	code, strategy := r.matchSchemeCode(rawName, reg)
	var official string
	var hasOfficial bool
	if strategy != StrategyNone {
		result.SchemeCode = &code
		result.Strategy = strategy
		official, hasOfficial = reg.OfficialName(code)
		if hasOfficial {
			result.SchemeName = &official
		}
	}

	result.PrimarySearchTerm, result.AlternateSearchTerms = r.terms.Generate(rawName, official, hasOfficial)
	return result
}
