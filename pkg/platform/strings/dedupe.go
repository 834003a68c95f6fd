// Package strings holds slice helpers shared by the resolver and the
// enrichment pipeline.
package strings

import "strings"

// DedupeAndTrim trims each value and drops blanks and repeats, keeping
// first-seen order. The result is never nil.
func DedupeAndTrim(values ...string) []string {
	return dedupe(values, "", strings.TrimSpace)
}

// DedupeExcluding drops blanks, repeats and any value equal to exclude.
// Values are compared verbatim. The result is never nil.
func DedupeExcluding(values []string, exclude string) []string {
	return dedupe(values, exclude, nil)
}

func dedupe(values []string, exclude string, clean func(string) string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if clean != nil {
			v = clean(v)
		}
		if v == "" || (exclude != "" && v == exclude) {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
