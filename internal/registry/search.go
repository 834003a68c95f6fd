package registry

import "strings"

// DefaultSearchLimit caps SearchSchemes when the caller passes no limit.
const DefaultSearchLimit = 50

// SearchSchemes lists schemes whose official name contains partial, case
// insensitively, in registry order. An empty query matches nothing.
func SearchSchemes(s *Snapshot, partial string, limit int) []NAVQuote {
	needle := strings.ToLower(strings.TrimSpace(partial))
	if s == nil || needle == "" {
		return []NAVQuote{}
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	out := make([]NAVQuote, 0, min(limit, 16))
	for _, q := range s.quotes {
		if strings.Contains(strings.ToLower(q.SchemeName), needle) {
			out = append(out, q)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}
