package resolver

import (
	"sort"
	"strings"
)

// separator is the dash left behind when plan qualifiers are stripped from
// names such as "Fund - Growth Option - Direct Plan".
const separator = "-"

// Normalizer turns a fund name into a comparison key.
type Normalizer struct {
	tokens []string
}

// NewNormalizer builds a normalizer for the noise tokens in rules.
func NewNormalizer(rules Rules) *Normalizer {
	seen := make(map[string]struct{}, len(rules.NoiseTokens))
	tokens := make([]string, 0, len(rules.NoiseTokens))
	for _, tok := range rules.NoiseTokens {
		tok = strings.ToLower(tok)
		if tok == "" {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		tokens = append(tokens, tok)
	}
	// Longest first so the outcome never depends on the configured order of
	// overlapping tokens.
	sort.SliceStable(tokens, func(i, j int) bool {
		if len(tokens[i]) != len(tokens[j]) {
			return len(tokens[i]) > len(tokens[j])
		}
		return tokens[i] < tokens[j]
	})
	return &Normalizer{tokens: tokens}
}

// Normalize lower-cases name, strips noise tokens wherever they occur and
// collapses whitespace. The result may be empty when name is all noise.
// Normalize(Normalize(x)) == Normalize(x).
func (n *Normalizer) Normalize(name string) string {
	key := name
	for {
		next := n.pass(strings.ToLower(key))
		if next == key {
			return key
		}
		key = next
	}
}

func (n *Normalizer) pass(s string) string {
	for _, tok := range n.tokens {
		s = strings.ReplaceAll(s, tok, "")
	}
	return collapse(s)
}

// collapse joins whitespace-separated fields with single spaces and folds
// runs of bare separators into one. Removing plan qualifiers from
// "X - Growth - Direct" leaves "x - -", which must compare equal to "x -".
func collapse(s string) string {
	fields := strings.Fields(s)
	out := fields[:0]
	for _, f := range fields {
		if f == separator && len(out) > 0 && out[len(out)-1] == separator {
			continue
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}

// wordSet splits a normalized key on whitespace.
func wordSet(key string) map[string]struct{} {
	fields := strings.Fields(key)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
