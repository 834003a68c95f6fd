package resolver

import (
	"strings"

	pstrings "mfetl/pkg/platform/strings"
)

// TermGenerator derives lookup strings for the holdings provider, whose
// naming differs from the registry's.
type TermGenerator struct {
	suffixes      []string
	abbreviations []Abbreviation
}

// NewTermGenerator builds a generator from the suffix and abbreviation rules.
func NewTermGenerator(rules Rules) *TermGenerator {
	c := rules.clone()
	return &TermGenerator{
		suffixes:      c.TermSuffixes,
		abbreviations: c.Abbreviations,
	}
}

// Generate picks the primary term (officialName when hasOfficial, otherwise
// rawName) and returns it with the ordered alternates derived from it. The
// alternates never repeat and never equal the primary term.
func (g *TermGenerator) Generate(rawName, officialName string, hasOfficial bool) (string, []string) {
	primary := rawName
	if hasOfficial {
		primary = officialName
	}

	candidates := make([]string, 0, len(g.suffixes)+len(g.abbreviations))
	for _, suffix := range g.suffixes {
		candidates = append(candidates, primary+suffix)
	}
	for _, a := range g.abbreviations {
		if alt, ok := a.apply(primary); ok {
			candidates = append(candidates, alt)
		}
	}
	return primary, pstrings.DedupeExcluding(candidates, primary)
}

func (a Abbreviation) apply(term string) (string, bool) {
	if !strings.Contains(term, a.Phrase) {
		return "", false
	}
	if a.Unless != "" && strings.Contains(term, a.Unless) {
		return "", false
	}
	if a.FirstOnly {
		return strings.Replace(term, a.Phrase, a.Replacement, 1), true
	}
	return strings.ReplaceAll(term, a.Phrase, a.Replacement), true
}
