package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig_Valid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*MatchingConfig)
	}{
		{
			name:   "zero scoring weights",
			mutate: func(c *MatchingConfig) { c.Scoring = SignalWeights{} },
		},
		{
			name:   "inverted thresholds",
			mutate: func(c *MatchingConfig) { c.Thresholds.Low = 0.9 },
		},
		{
			name:   "title veto out of range",
			mutate: func(c *MatchingConfig) { c.Thresholds.TitleVeto = 1.5 },
		},
		{
			name:   "non-positive geo distance",
			mutate: func(c *MatchingConfig) { c.Geo.MaxDistanceKM = 0 },
		},
		{
			name:   "inverted title blend band",
			mutate: func(c *MatchingConfig) { c.Title.BlendLower = 0.9 },
		},
		{
			name:   "zero cluster size",
			mutate: func(c *MatchingConfig) { c.Cluster.MaxClusterSize = 0 },
		},
		{
			name:   "inverted ai band",
			mutate: func(c *MatchingConfig) { c.AI.MinCombinedScore = 0.9 },
		},
		{
			name: "ai enabled without concurrency",
			mutate: func(c *MatchingConfig) {
				c.AI.Enabled = true
				c.AI.MaxConcurrentRequests = 0
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfigInvalid)
		})
	}
}

func TestConfig_YAMLRoundTrip(t *testing.T) {
	raw := []byte(`
scoring:
  date: 0.4
  geo: 0.2
  title: 0.3
  description: 0.1
thresholds:
  high: 0.8
  low: 0.3
  title_veto: 0.5
ai:
  enabled: true
  model: claude-sonnet-4-5
  max_concurrent_requests: 3
`)

	cfg := DefaultConfig()
	require.NoError(t, yaml.Unmarshal(raw, cfg))

	assert.InDelta(t, 0.4, cfg.Scoring.Date, 1e-9)
	assert.InDelta(t, 0.8, cfg.Thresholds.High, 1e-9)
	assert.True(t, cfg.AI.Enabled)
	assert.Equal(t, 3, cfg.AI.MaxConcurrentRequests)

	// Untouched sections keep their defaults.
	assert.InDelta(t, 10.0, cfg.Geo.MaxDistanceKM, 1e-9)
	require.NoError(t, cfg.Validate())
}
