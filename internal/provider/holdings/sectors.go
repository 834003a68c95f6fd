package holdings

import "mfetl/internal/provider"

// NormalizeSectors converts a raw sector breakdown into percentages. An
// equity block shaped {"EQUITY": {"fundPortfolio": {...}}} is unwrapped
// first. Nested values, unparseable values and non-positive values are
// dropped; the result is nil when nothing survives.
func NormalizeSectors(raw map[string]any) map[string]float64 {
	if len(raw) == 0 {
		return nil
	}
	if equity, ok := raw["EQUITY"].(map[string]any); ok {
		if portfolio, ok := equity["fundPortfolio"].(map[string]any); ok {
			raw = portfolio
		}
	}

	out := make(map[string]float64, len(raw))
	for name, value := range raw {
		if name == "portfolioDate" {
			continue
		}
		switch value.(type) {
		case map[string]any, []any:
			continue
		}
		f, ok := provider.SafeFloat(value)
		if !ok || f <= 0 {
			continue
		}
		out[name] = f
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
