package resolver

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// Rules is the rule table shared by the normalizer and the search term
// generator. Constructors copy it, so a Rules value handed to New cannot be
// changed underneath a running Resolver.
type Rules struct {
	NoiseTokens    []string       `yaml:"noise_tokens"`
	TermSuffixes   []string       `yaml:"term_suffixes"`
	Abbreviations  []Abbreviation `yaml:"abbreviations"`
	FuzzyThreshold float64        `yaml:"fuzzy_threshold"`
}

// Abbreviation rewrites Phrase to Replacement in a search term. The rule is
// skipped when the term already contains Unless.
type Abbreviation struct {
	Phrase      string `yaml:"phrase"`
	Replacement string `yaml:"replacement"`
	Unless      string `yaml:"unless,omitempty"`
	FirstOnly   bool   `yaml:"first_only,omitempty"`
}

var (
	defaultRules     Rules
	defaultRulesOnce sync.Once
	defaultRulesErr  error
)

// DefaultRules returns the embedded rule table.
func DefaultRules() Rules {
	defaultRulesOnce.Do(func() {
		defaultRules, defaultRulesErr = ParseRules(defaultRulesYAML)
	})
	if defaultRulesErr != nil {
		// The embedded file is part of the binary; failing here is a build defect.
		panic(fmt.Sprintf("resolver: embedded rules.yaml: %v", defaultRulesErr))
	}
	return defaultRules.clone()
}

// ParseRules decodes and validates a YAML rule table.
func ParseRules(data []byte) (Rules, error) {
	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("parse resolver rules: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return Rules{}, err
	}
	return rules, nil
}

// LoadRulesFile reads a rule table from disk.
func LoadRulesFile(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read resolver rules %s: %w", path, err)
	}
	return ParseRules(data)
}

// Validate reports rule tables that would make resolution ill-defined.
func (r Rules) Validate() error {
	if r.FuzzyThreshold <= 0 || r.FuzzyThreshold > 1 {
		return fmt.Errorf("fuzzy_threshold must be in (0, 1], got %v", r.FuzzyThreshold)
	}
	for i, tok := range r.NoiseTokens {
		if tok == "" {
			return fmt.Errorf("noise_tokens[%d] is empty", i)
		}
	}
	for i, a := range r.Abbreviations {
		if a.Phrase == "" {
			return fmt.Errorf("abbreviations[%d]: phrase is required", i)
		}
	}
	return nil
}

// WithFuzzyThreshold returns a copy of r using threshold for the word-overlap strategy.
func (r Rules) WithFuzzyThreshold(threshold float64) Rules {
	c := r.clone()
	c.FuzzyThreshold = threshold
	return c
}

func (r Rules) clone() Rules {
	return Rules{
		NoiseTokens:    append([]string(nil), r.NoiseTokens...),
		TermSuffixes:   append([]string(nil), r.TermSuffixes...),
		Abbreviations:  append([]Abbreviation(nil), r.Abbreviations...),
		FuzzyThreshold: r.FuzzyThreshold,
	}
}

var errNilRegistry = errors.New("resolver: nil registry")

// Load builds a Resolver from rulesFile, or from the embedded table when
// rulesFile is empty. A positive threshold overrides the table's.
func Load(rulesFile string, threshold float64) (*Resolver, error) {
	rules := DefaultRules()
	if rulesFile != "" {
		var err error
		if rules, err = LoadRulesFile(rulesFile); err != nil {
			return nil, err
		}
	}
	if threshold > 0 {
		rules = rules.WithFuzzyThreshold(threshold)
	}
	return New(rules)
}
