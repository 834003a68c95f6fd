package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTerms(t *testing.T) {
	g := NewTermGenerator(DefaultRules())

	tests := []struct {
		name        string
		raw         string
		official    string
		hasOfficial bool
		primary     string
		alternates  []string
	}{
		{
			name:        "official name is primary",
			raw:         "hdfc midcap",
			official:    hdfcMidCap,
			hasOfficial: true,
			primary:     hdfcMidCap,
			alternates: []string{
				hdfcMidCap + " Direct Growth",
				hdfcMidCap + "-Direct-Growth",
				hdfcMidCap + " Growth",
				"HDFC Mutual Fund Mid Cap Fund - Growth Option - Direct Plan",
			},
		},
		{
			name:    "raw name is primary when unresolved",
			raw:     "Parag Parikh Flexi Cap",
			primary: "Parag Parikh Flexi Cap",
			alternates: []string{
				"Parag Parikh Flexi Cap Direct Growth",
				"Parag Parikh Flexi Cap-Direct-Growth",
				"Parag Parikh Flexi Cap Growth",
			},
		},
		{
			name:    "Aditya Birla Sun Life is abbreviated",
			raw:     "Aditya Birla Sun Life Flexi Cap Fund",
			primary: "Aditya Birla Sun Life Flexi Cap Fund",
			alternates: []string{
				"Aditya Birla Sun Life Flexi Cap Fund Direct Growth",
				"Aditya Birla Sun Life Flexi Cap Fund-Direct-Growth",
				"Aditya Birla Sun Life Flexi Cap Fund Growth",
				"ABSL Flexi Cap Fund",
			},
		},
		{
			name:    "abbreviation phrase is case sensitive",
			raw:     "aditya birla sun life flexi cap",
			primary: "aditya birla sun life flexi cap",
			alternates: []string{
				"aditya birla sun life flexi cap Direct Growth",
				"aditya birla sun life flexi cap-Direct-Growth",
				"aditya birla sun life flexi cap Growth",
			},
		},
		{
			name:    "HDFC rule skipped when already expanded",
			raw:     "HDFC Mutual Fund Balanced Advantage",
			primary: "HDFC Mutual Fund Balanced Advantage",
			alternates: []string{
				"HDFC Mutual Fund Balanced Advantage Direct Growth",
				"HDFC Mutual Fund Balanced Advantage-Direct-Growth",
				"HDFC Mutual Fund Balanced Advantage Growth",
			},
		},
		{
			name:    "HDFC rule replaces only the first occurrence",
			raw:     "HDFC Banking HDFC",
			primary: "HDFC Banking HDFC",
			alternates: []string{
				"HDFC Banking HDFC Direct Growth",
				"HDFC Banking HDFC-Direct-Growth",
				"HDFC Banking HDFC Growth",
				"HDFC Mutual Fund Banking HDFC",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary, alternates := g.Generate(tt.raw, tt.official, tt.hasOfficial)
			assert.Equal(t, tt.primary, primary)
			assert.Equal(t, tt.alternates, alternates)
		})
	}
}

func TestGenerateTermsInvariants(t *testing.T) {
	rules := DefaultRules()
	// Suffixes that collide with each other and with the primary term.
	rules.TermSuffixes = []string{" Growth", "", " Growth", " Direct Growth"}
	g := NewTermGenerator(rules)

	inputs := []string{"", "X", "HDFC", "Aditya Birla Sun Life", hdfcMidCap}
	for _, in := range inputs {
		primary, alternates := g.Generate(in, "", false)
		require.NotNil(t, alternates)

		seen := make(map[string]struct{}, len(alternates))
		for _, alt := range alternates {
			assert.NotEqual(t, primary, alt, "alternate equals primary for %q", in)
			_, dup := seen[alt]
			assert.False(t, dup, "duplicate alternate %q for %q", alt, in)
			seen[alt] = struct{}{}
		}

		p2, a2 := g.Generate(in, "", false)
		assert.Equal(t, primary, p2)
		assert.Equal(t, alternates, a2)
	}
}

func TestGenerateTermsEmptyPrimary(t *testing.T) {
	g := NewTermGenerator(DefaultRules())
	primary, alternates := g.Generate("", "", false)

	assert.Equal(t, "", primary)
	assert.Equal(t, []string{" Direct Growth", "-Direct-Growth", " Growth"}, alternates)
}
