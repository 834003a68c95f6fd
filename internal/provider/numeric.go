package provider

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// SafeFloat converts loosely typed provider values ("1,234.56", 12, "N.A.")
// to a float. ok is false for anything that does not parse or is not finite.
func SafeFloat(value any) (float64, bool) {
	var f float64
	switch v := value.(type) {
	case nil:
		return 0, false
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(v), ",", "")
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// FloatPtr is SafeFloat for optional response fields.
func FloatPtr(value any) *float64 {
	f, ok := SafeFloat(value)
	if !ok {
		return nil
	}
	return &f
}
