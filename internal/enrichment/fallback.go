package enrichment

import (
	"regexp"
	"strings"
)

var (
	planSuffix    = regexp.MustCompile(`(?i)\s*-\s*(Direct|Regular|Growth|Dividend|Monthly|Annual|IDCW|Payout|Reinvestment|Bonus|Hedged).*$`)
	parenthetical = regexp.MustCompile(`\s*\(.*?\)\s*`)
)

// FallbackSearchTerms derives progressively simpler holdings-provider search
// terms from the user's fund name and the registry scheme name. Terms are
// ordered from most to least specific and contain no duplicates.
func FallbackSearchTerms(fundName, schemeName string) []string {
	var terms []string
	add := func(term string) {
		if term == "" {
			return
		}
		for _, t := range terms {
			if t == term {
				return
			}
		}
		terms = append(terms, term)
	}

	if fundName != "" && !strings.EqualFold(fundName, schemeName) {
		add(fundName)
	}

	add(strings.TrimSpace(planSuffix.ReplaceAllString(schemeName, "")))

	cleaned := strings.TrimSpace(parenthetical.ReplaceAllString(schemeName, " "))
	add(cleaned)

	if words := strings.Fields(cleaned); len(words) > 2 {
		add(strings.Join(words[:3], " "))
	}

	if words := strings.Fields(schemeName); len(words) >= 2 {
		add(strings.Join(words[:min(3, len(words))], " "))
	}

	return terms
}
