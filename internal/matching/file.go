package matching

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dublette-io/dublette/internal/config"
)

// DefaultConfigPath is the default location of the file-based fallback
// configuration, used when no configuration row is persisted yet.
const DefaultConfigPath = ".dublette.matching.yaml"

// ConfigPathEnvVar overrides the fallback configuration path.
const ConfigPathEnvVar = "DUBLETTE_CONFIG_PATH"

// LoadConfigFile loads a MatchingConfig from a YAML file, layered over the
// defaults. A missing file is not an error: the defaults apply unchanged.
// An unreadable or invalid file is fatal - running a batch against a
// half-parsed configuration would silently change every decision.
func LoadConfigFile(path string) (*MatchingConfig, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return nil, fmt.Errorf("%w: read %s: %w", ErrConfigInvalid, path, err)
	}

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %w", ErrConfigInvalid, path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadConfigFileFromEnv loads the fallback configuration from the path in
// DUBLETTE_CONFIG_PATH, defaulting to .dublette.matching.yaml.
func LoadConfigFileFromEnv() (*MatchingConfig, error) {
	return LoadConfigFile(config.GetEnvStr(ConfigPathEnvVar, DefaultConfigPath))
}
