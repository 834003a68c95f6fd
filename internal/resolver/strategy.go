package resolver

import (
	"math"
	"strings"
)

// MatchStrategy names the fallback stage that produced a scheme code.
type MatchStrategy string

const (
	StrategyNone       MatchStrategy = "none"
	StrategyExact      MatchStrategy = "exact"
	StrategyNormalized MatchStrategy = "normalized"
	StrategyPartial    MatchStrategy = "partial"
	StrategyFuzzy      MatchStrategy = "fuzzy"
)

// query holds the per-call views of the raw name.
type query struct {
	folded string
	key    string
	words  map[string]struct{}
}

// candidates lazily normalizes registry entries so a call that ends at the
// exact stage never pays for normalization.
type candidates struct {
	normalizer *Normalizer
	entries    []RegistryEntry
	keys       []string
	done       []bool
}

func newCandidates(n *Normalizer, entries []RegistryEntry) *candidates {
	return &candidates{
		normalizer: n,
		entries:    entries,
		keys:       make([]string, len(entries)),
		done:       make([]bool, len(entries)),
	}
}

func (c *candidates) key(i int) string {
	if !c.done[i] {
		c.keys[i] = c.normalizer.Normalize(c.entries[i].OfficialName)
		c.done[i] = true
	}
	return c.keys[i]
}

// matchStrategy is one stage of the fallback chain.
type matchStrategy struct {
	name  MatchStrategy
	match func(q *query, c *candidates, i int) bool
}

func strategies(fuzzyPercent int) []matchStrategy {
	return []matchStrategy{
		{name: StrategyExact, match: matchExact},
		{name: StrategyNormalized, match: matchNormalized},
		{name: StrategyPartial, match: matchPartial},
		{name: StrategyFuzzy, match: matchWordOverlap(fuzzyPercent)},
	}
}

func matchExact(q *query, c *candidates, i int) bool {
	return foldName(c.entries[i].OfficialName) == q.folded
}

func matchNormalized(q *query, c *candidates, i int) bool {
	return c.key(i) == q.key
}

func matchPartial(q *query, c *candidates, i int) bool {
	if q.key == "" {
		return false
	}
	return strings.Contains(c.key(i), q.key)
}

func matchWordOverlap(percent int) func(q *query, c *candidates, i int) bool {
	return func(q *query, c *candidates, i int) bool {
		if len(q.words) == 0 {
			return false
		}
		need := requiredOverlap(len(q.words), percent)
		official := wordSet(c.key(i))
		overlap := 0
		for w := range q.words {
			if _, ok := official[w]; ok {
				overlap++
				if overlap >= need {
					return true
				}
			}
		}
		return false
	}
}

// requiredOverlap is ceil(percent/100 * n) in integer arithmetic, so 60% of
// 10 words is exactly 6 rather than 7 after float rounding.
func requiredOverlap(n, percent int) int {
	return (n*percent + 99) / 100
}

func thresholdPercent(threshold float64) int {
	return int(math.Round(threshold * 100))
}

func foldName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
