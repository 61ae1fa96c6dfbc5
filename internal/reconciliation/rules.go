package reconciliation

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// RulesFile is the on-disk matcher tuning document. Absent keys keep the
// values already configured through the environment.
type RulesFile struct {
	AmountTolerance string   `yaml:"amount_tolerance,omitempty"`
	DateWindowDays  *int     `yaml:"date_window_days,omitempty"`
	AcceptThreshold *float64 `yaml:"accept_threshold,omitempty"`
	FuzzyMinRunes   *int     `yaml:"fuzzy_min_runes,omitempty"`
	Weights         struct {
		Amount      *float64 `yaml:"amount,omitempty"`
		Date        *float64 `yaml:"date,omitempty"`
		Description *float64 `yaml:"description,omitempty"`
	} `yaml:"weights"`
}

// LoadRules reads a YAML rules file and overlays it on base.
func LoadRules(path string, base MatchConfig) (MatchConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return MatchConfig{}, fmt.Errorf("reading matcher rules: %w", err)
	}
	return ParseRules(data, base)
}

// ParseRules overlays a YAML rules document on base and validates the result.
func ParseRules(data []byte, base MatchConfig) (MatchConfig, error) {
	var rf RulesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return MatchConfig{}, fmt.Errorf("parsing matcher rules: %w", err)
	}
	cfg := base
	if rf.AmountTolerance != "" {
		tol, err := decimal.NewFromString(rf.AmountTolerance)
		if err != nil {
			return MatchConfig{}, fmt.Errorf("parsing matcher rules: amount_tolerance %q: %w", rf.AmountTolerance, err)
		}
		cfg.AmountTolerance = tol
	}
	if rf.DateWindowDays != nil {
		cfg.DateWindowDays = *rf.DateWindowDays
	}
	if rf.AcceptThreshold != nil {
		cfg.AcceptThreshold = *rf.AcceptThreshold
	}
	if rf.FuzzyMinRunes != nil {
		cfg.FuzzyMinRunes = *rf.FuzzyMinRunes
	}
	if rf.Weights.Amount != nil {
		cfg.AmountWeight = *rf.Weights.Amount
	}
	if rf.Weights.Date != nil {
		cfg.DateWeight = *rf.Weights.Date
	}
	if rf.Weights.Description != nil {
		cfg.DescriptionWeight = *rf.Weights.Description
	}
	if err := cfg.Validate(); err != nil {
		return MatchConfig{}, err
	}
	return cfg, nil
}
