package enrichment

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"time"

	"mfetl/internal/enrichment/models"
)

// Plausibility limits for enriched NAV and sector data.
const (
	minNAV               = 0.01
	maxNAV               = 100000.0
	maxNAVAgeDays        = 7
	minSectors           = 2
	sectorTotalTolerance = 1.0
)

// NAV dates are DD-Mon-YYYY; some feeds use DD-MM-YYYY.
var navDateLayouts = []string{"02-Jan-2006", "02-01-2006"}

// ValidateNAV reports the first problem with a NAV and its as-of date: a
// value outside [0.01, 100000], an unparseable date, or a date more than
// seven days before now. An empty date skips the age check.
func ValidateNAV(nav float64, date string, now time.Time) []string {
	switch {
	case nav < minNAV:
		return []string{fmt.Sprintf("NAV %g is below minimum threshold %g", nav, minNAV)}
	case nav > maxNAV:
		return []string{fmt.Sprintf("NAV %g exceeds maximum threshold %g", nav, maxNAV)}
	}

	date = strings.TrimSpace(date)
	if date == "" {
		return nil
	}
	asOf, ok := parseNAVDate(date)
	if !ok {
		return []string{fmt.Sprintf("Invalid date format: %s. Expected DD-MM-YYYY or DD-Mon-YYYY", date)}
	}
	if days := int(now.Sub(asOf).Hours() / 24); days > maxNAVAgeDays {
		return []string{fmt.Sprintf("NAV data is %d days old, exceeds %d day threshold", days, maxNAVAgeDays)}
	}
	return nil
}

func parseNAVDate(s string) (time.Time, bool) {
	for _, layout := range navDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ValidateSectors checks a sector allocation in percent: at least two
// sectors, each within [0, 100], totalling 100 within one point. Checks stop
// at the first failing stage.
func ValidateSectors(sectors map[string]float64) []string {
	if len(sectors) == 0 {
		return []string{"Sector data is empty"}
	}
	if len(sectors) < minSectors {
		return []string{fmt.Sprintf("Insufficient sectors: found %d, minimum required %d", len(sectors), minSectors)}
	}

	var problems []string
	var total float64
	for _, name := range slices.Sorted(maps.Keys(sectors)) {
		pct := sectors[name]
		total += pct
		if pct < 0 {
			problems = append(problems, fmt.Sprintf("Sector '%s' has negative allocation: %g%%", name, pct))
		}
		if pct > 100 {
			problems = append(problems, fmt.Sprintf("Sector '%s' allocation exceeds 100%%: %g%%", name, pct))
		}
	}
	if len(problems) > 0 {
		return problems
	}

	if deviation := math.Abs(100 - total); deviation > sectorTotalTolerance {
		return []string{fmt.Sprintf("Total allocation %.2f%% deviates from 100%% by %.2f%% (tolerance: %g%%)",
			total, deviation, sectorTotalTolerance)}
	}
	return nil
}

// qualityWarnings runs the NAV and sector checks on an enriched fund. Funds
// without a NAV or without sector data skip the matching check.
func qualityWarnings(name string, fund *models.EnrichedFund, now time.Time) []string {
	var warnings []string
	if fund.CurrentNAV != nil {
		var date string
		if fund.NAVAsOf != nil {
			date = *fund.NAVAsOf
		}
		for _, p := range ValidateNAV(*fund.CurrentNAV, date, now) {
			warnings = append(warnings, fmt.Sprintf("NAV check failed for '%s': %s", name, p))
		}
	}
	if len(fund.SectorAllocation) > 0 {
		for _, p := range ValidateSectors(fund.SectorAllocation) {
			warnings = append(warnings, fmt.Sprintf("Sector check failed for '%s': %s", name, p))
		}
	}
	return warnings
}
