// Package normalize provides German-aware text normalization for event matching.
//
// Regional publications describe the same event with different spellings,
// boilerplate prefixes, and dialect words (Fasnet vs. Fasching vs. Karneval).
// This package folds all of that into a canonical lowercase ASCII form so the
// signal scorers compare content, not typography.
package normalize

import (
	"errors"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dublette-io/dublette/internal/config"
)

// Rules holds normalizer configuration loaded from .dublette.yaml.
type Rules struct {
	// SourcePrefixes maps a publisher tag to literal title prefixes that the
	// publisher prepends to every listing (e.g. "BZ-Tipp: "). Longest match
	// wins; stripping happens before synonym replacement.
	//nolint:tagliatelle // snake_case is intentional for YAML config files
	SourcePrefixes map[string][]string `yaml:"source_prefixes"`

	// Synonyms maps a canonical token to the dialect variants that should be
	// rewritten to it. Variants are matched per-token on the already
	// casefolded, umlaut-expanded text.
	Synonyms map[string][]string `yaml:"synonyms"`
}

// DefaultRulesPath is the default location for the normalizer rules file.
// Uses hidden file format following common tool conventions (.eslintrc, .prettierrc, etc.).
const DefaultRulesPath = ".dublette.yaml"

// RulesPathEnvVar is the environment variable name for a custom rules path.
const RulesPathEnvVar = "DUBLETTE_RULES_PATH"

// DefaultRules returns the built-in rule set for the southwest German corpus.
// A rules file extends or overrides these; it never has to restate them.
func DefaultRules() *Rules {
	return &Rules{
		SourcePrefixes: map[string][]string{},
		Synonyms: map[string][]string{
			"fasnacht":    {"fasnet", "fasent", "fasching", "fastnacht", "karneval"},
			"umzug":       {"narrenumzug", "fasnachtsumzug", "faschingsumzug"},
			"versammlung": {"hauptversammlung", "jahreshauptversammlung", "mitgliederversammlung", "generalversammlung"},
			"konzert":     {"jahreskonzert", "kirchenkonzert"},
			"markt":       {"wochenmarkt", "flohmarkt"},
		},
	}
}

// LoadRules loads normalizer rules from a YAML file at the given path and
// merges them over the defaults.
//
// Behavior:
//   - Returns defaults (not error) if file doesn't exist - the rules file is optional
//   - Returns defaults + logs warning if YAML is invalid (graceful degradation)
//   - Returns merged rules on success
//
// This graceful degradation ensures a batch run can start even without a
// rules file; the defaults cover the common dialect groups.
func LoadRules(path string) (*Rules, error) {
	rules := DefaultRules()

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("Rules file not found, using built-in normalizer rules",
				slog.String("path", path))

			return rules, nil
		}

		slog.Warn("Failed to read rules file, using built-in normalizer rules",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return rules, nil
	}

	if len(data) == 0 {
		return rules, nil
	}

	var loaded Rules
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		slog.Warn("Failed to parse rules file, using built-in normalizer rules",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return DefaultRules(), nil
	}

	for source, prefixes := range loaded.SourcePrefixes {
		rules.SourcePrefixes[source] = prefixes
	}

	for canonical, variants := range loaded.Synonyms {
		rules.Synonyms[canonical] = variants
	}

	return rules, nil
}

// LoadRulesFromEnv loads rules from the path specified in DUBLETTE_RULES_PATH
// environment variable. Falls back to ".dublette.yaml" in current directory if not set.
func LoadRulesFromEnv() (*Rules, error) {
	path := config.GetEnvStr(RulesPathEnvVar, DefaultRulesPath)

	return LoadRules(path)
}
