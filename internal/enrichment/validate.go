package enrichment

import (
	"fmt"
	"math"

	"mfetl/internal/enrichment/models"
)

// valueTolerance is the relative deviation between a reported value and
// units*nav above which a warning is raised.
const valueTolerance = 0.02

// ValidateHoldings drops holdings that cannot be enriched and derives
// missing values. Warnings are returned in input order. Kept holdings are
// copies; the input is not modified.
func ValidateHoldings(holdings []models.Holding) ([]models.Holding, []string) {
	valid := make([]models.Holding, 0, len(holdings))
	var warnings []string

	for _, h := range holdings {
		if h.FundName == "" {
			warnings = append(warnings, "Skipping holding because fund_name is missing")
			continue
		}
		if h.Units != nil && *h.Units <= 0 {
			warnings = append(warnings, h.FundName+": units must be positive")
			continue
		}
		if h.NAV != nil && *h.NAV <= 0 {
			warnings = append(warnings, h.FundName+": nav must be positive")
			continue
		}

		kept := models.Holding{
			FundName:     h.FundName,
			Units:        h.Units,
			NAV:          h.NAV,
			Value:        h.Value,
			PurchaseDate: h.PurchaseDate,
		}
		if h.Units != nil && h.NAV != nil {
			expected := *h.Units * *h.NAV
			switch {
			case h.Value == nil:
				kept.Value = &expected
			case expected > 0:
				deviation := math.Abs(*h.Value-expected) / expected
				if deviation > valueTolerance {
					warnings = append(warnings, fmt.Sprintf(
						"%s: reported value %.2f deviates from units*nav %.2f by %.2f%%",
						h.FundName, *h.Value, expected, deviation*100,
					))
				}
			}
		}
		valid = append(valid, kept)
	}
	return valid, warnings
}
