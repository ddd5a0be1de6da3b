// Package matching implements the deterministic core of the deduplication
// pipeline: blocking-key generation, candidate-pair enumeration, the four
// signal scorers, and the weighted score combiner with its decision rules.
//
// Everything in this package is a pure function of two event records and a
// configuration slice. Symmetry holds for every scorer:
// score(a,b) == score(b,a).
package matching

import (
	"errors"
	"fmt"

	"github.com/dublette-io/dublette/internal/ingestion"
)

// Sentinel errors for configuration validation.
var (
	// ErrConfigInvalid is returned when a MatchingConfig fails validation.
	ErrConfigInvalid = errors.New("invalid matching configuration")
)

type (
	// MatchingConfig is the versioned, per-run configuration for the whole
	// pipeline. It is loaded once at run start from the configuration store
	// (file fallback if none is persisted) and treated as immutable for the
	// duration of the run.
	MatchingConfig struct {
		Scoring         SignalWeights     `json:"scoring"          yaml:"scoring"`
		Thresholds      ThresholdConfig   `json:"thresholds"       yaml:"thresholds"`
		Geo             GeoConfig         `json:"geo"              yaml:"geo"`
		Date            DateConfig        `json:"date"             yaml:"date"`
		Title           TitleConfig       `json:"title"            yaml:"title"`
		Cluster         ClusterConfig     `json:"cluster"          yaml:"cluster"`
		CategoryWeights CategoryConfig    `json:"category_weights" yaml:"category_weights"`
		Canonical       CanonicalConfig   `json:"canonical"        yaml:"canonical"`
		AI              AIConfig          `json:"ai"               yaml:"ai"`
	}

	// SignalWeights is one set of combination weights for the four signals.
	SignalWeights struct {
		Date        float64 `json:"date"        yaml:"date"`
		Geo         float64 `json:"geo"         yaml:"geo"`
		Title       float64 `json:"title"       yaml:"title"`
		Description float64 `json:"description" yaml:"description"`
	}

	// ThresholdConfig partitions the combined score into match / ambiguous /
	// no_match, plus the title veto that forces ambiguity for coincident
	// events at the same venue.
	ThresholdConfig struct {
		High      float64 `json:"high"       yaml:"high"`
		Low       float64 `json:"low"        yaml:"low"`
		TitleVeto float64 `json:"title_veto" yaml:"title_veto"`
	}

	// GeoConfig controls the geographic scorer.
	GeoConfig struct {
		MaxDistanceKM        float64 `json:"max_distance_km"         yaml:"max_distance_km"`
		MinConfidence        float64 `json:"min_confidence"          yaml:"min_confidence"`
		NeutralScore         float64 `json:"neutral_score"           yaml:"neutral_score"`
		VenueMatchDistanceKM float64 `json:"venue_match_distance_km" yaml:"venue_match_distance_km"`
		VenueMismatchFactor  float64 `json:"venue_mismatch_factor"   yaml:"venue_mismatch_factor"`
		VenueNameThreshold   float64 `json:"venue_name_threshold"    yaml:"venue_name_threshold"`
	}

	// DateConfig controls the date scorer's time-proximity factor.
	// The factor bands, by start-time delta on the earliest overlapping date:
	// delta <= tolerance -> 1.0; <= close -> CloseFactor; <= gap penalty
	// hours -> FarFactor; beyond -> GapPenaltyFactor.
	DateConfig struct {
		TimeToleranceMinutes int     `json:"time_tolerance_minutes"  yaml:"time_tolerance_minutes"`
		TimeCloseMinutes     int     `json:"time_close_minutes"      yaml:"time_close_minutes"`
		CloseFactor          float64 `json:"close_factor"            yaml:"close_factor"`
		FarFactor            float64 `json:"far_factor"              yaml:"far_factor"`
		TimeGapPenaltyHours  int     `json:"time_gap_penalty_hours"  yaml:"time_gap_penalty_hours"`
		TimeGapPenaltyFactor float64 `json:"time_gap_penalty_factor" yaml:"time_gap_penalty_factor"`
	}

	// TitleConfig controls the title scorer's token-sort/token-set blend.
	TitleConfig struct {
		PrimaryWeight   float64          `json:"primary_weight"    yaml:"primary_weight"`
		SecondaryWeight float64          `json:"secondary_weight"  yaml:"secondary_weight"`
		BlendLower      float64          `json:"blend_lower"       yaml:"blend_lower"`
		BlendUpper      float64          `json:"blend_upper"       yaml:"blend_upper"`
		CrossSourceType TitleBlendWeights `json:"cross_source_type" yaml:"cross_source_type"`
	}

	// TitleBlendWeights overrides the blend weights when the two events come
	// from different publication sections (journalistic headlines versus
	// calendar listings diverge lexically).
	TitleBlendWeights struct {
		PrimaryWeight   float64 `json:"primary_weight"   yaml:"primary_weight"`
		SecondaryWeight float64 `json:"secondary_weight" yaml:"secondary_weight"`
	}

	// ClusterConfig controls cluster coherence validation.
	ClusterConfig struct {
		MaxClusterSize        int     `json:"max_cluster_size"        yaml:"max_cluster_size"`
		MinInternalSimilarity float64 `json:"min_internal_similarity" yaml:"min_internal_similarity"`
		MaxDistinctDates      int     `json:"max_distinct_dates"      yaml:"max_distinct_dates"`
	}

	// CategoryConfig holds per-category weight overrides. When both events of
	// a pair share a category present in Overrides, that category's weights
	// replace the default scoring weights; Priority decides which override
	// wins when several categories are shared.
	CategoryConfig struct {
		Priority  []string                 `json:"priority"  yaml:"priority"`
		Overrides map[string]SignalWeights `json:"overrides" yaml:"overrides"`
	}

	// CanonicalConfig names the per-field synthesis strategy. The synthesizer
	// falls back to its built-in strategy for any field not listed.
	CanonicalConfig struct {
		FieldStrategies map[string]string `json:"field_strategies" yaml:"field_strategies"`

		// SourceTypePreference breaks ties in the city-mode strategy: when
		// two cities are named equally often, the value from the earliest
		// listed source type wins. Calendar listings carry cleaner location
		// data than articles, which beat advertisements.
		SourceTypePreference []string `json:"source_type_preference" yaml:"source_type_preference"`
	}

	// AIConfig controls the AI resolver.
	AIConfig struct {
		Enabled               bool    `json:"enabled"                 yaml:"enabled"`
		Model                 string  `json:"model"                   yaml:"model"`
		Temperature           float64 `json:"temperature"             yaml:"temperature"`
		MaxOutputTokens       int     `json:"max_output_tokens"       yaml:"max_output_tokens"`
		MaxConcurrentRequests int     `json:"max_concurrent_requests" yaml:"max_concurrent_requests"`
		RequestsPerSecond     float64 `json:"requests_per_second"     yaml:"requests_per_second"`
		RequestTimeoutSeconds int     `json:"request_timeout_seconds" yaml:"request_timeout_seconds"`
		ConfidenceThreshold   float64 `json:"confidence_threshold"    yaml:"confidence_threshold"`
		MinCombinedScore      float64 `json:"min_combined_score"      yaml:"min_combined_score"`
		MaxCombinedScore      float64 `json:"max_combined_score"      yaml:"max_combined_score"`
		CacheEnabled          bool    `json:"cache_enabled"           yaml:"cache_enabled"`
		CostPerMTokInputUSD   float64 `json:"cost_per_mtok_input"     yaml:"cost_per_mtok_input"`
		CostPerMTokOutputUSD  float64 `json:"cost_per_mtok_output"    yaml:"cost_per_mtok_output"`
	}
)

// DefaultConfig returns the calibrated defaults for the southwest German
// event corpus. Every value can be overridden by the persisted configuration
// or the file fallback.
func DefaultConfig() *MatchingConfig {
	return &MatchingConfig{
		Scoring: SignalWeights{
			Date:        0.30,
			Geo:         0.25,
			Title:       0.30,
			Description: 0.15,
		},
		Thresholds: ThresholdConfig{
			High:      0.75,
			Low:       0.35,
			TitleVeto: 0.45,
		},
		Geo: GeoConfig{
			MaxDistanceKM:        10.0,
			MinConfidence:        0.85,
			NeutralScore:         0.5,
			VenueMatchDistanceKM: 1.0,
			VenueMismatchFactor:  0.5,
			VenueNameThreshold:   0.50,
		},
		Date: DateConfig{
			TimeToleranceMinutes: 30,
			TimeCloseMinutes:     90,
			CloseFactor:          0.7,
			FarFactor:            0.3,
			TimeGapPenaltyHours:  2,
			TimeGapPenaltyFactor: 0.15,
		},
		Title: TitleConfig{
			PrimaryWeight:   0.7,
			SecondaryWeight: 0.3,
			BlendLower:      0.40,
			BlendUpper:      0.80,
			CrossSourceType: TitleBlendWeights{
				PrimaryWeight:   0.4,
				SecondaryWeight: 0.6,
			},
		},
		Cluster: ClusterConfig{
			MaxClusterSize:        15,
			MinInternalSimilarity: 0.40,
			MaxDistinctDates:      3,
		},
		CategoryWeights: CategoryConfig{
			Priority: []string{"fasnacht", "versammlung"},
			Overrides: map[string]SignalWeights{
				// Carnival: every village calls its parade something else,
				// but it happens in exactly one place.
				"fasnacht": {Date: 0.30, Geo: 0.35, Title: 0.20, Description: 0.15},
				// Assemblies: the club name in the title is the identity.
				"versammlung": {Date: 0.30, Geo: 0.15, Title: 0.40, Description: 0.15},
			},
		},
		Canonical: CanonicalConfig{
			FieldStrategies: map[string]string{},
			SourceTypePreference: []string{
				string(ingestion.SourceTypeTerminliste),
				string(ingestion.SourceTypeArtikel),
				string(ingestion.SourceTypeAnzeige),
			},
		},
		AI: AIConfig{
			Enabled:               false,
			Model:                 "claude-sonnet-4-5",
			Temperature:           0.0,
			MaxOutputTokens:       1024,
			MaxConcurrentRequests: 5,
			RequestsPerSecond:     5,
			RequestTimeoutSeconds: 30,
			ConfidenceThreshold:   0.6,
			MinCombinedScore:      0.65,
			MaxCombinedScore:      0.79,
			CacheEnabled:          true,
			CostPerMTokInputUSD:   3.0,
			CostPerMTokOutputUSD:  15.0,
		},
	}
}

// Validate checks the configuration for internally consistent values.
func (c *MatchingConfig) Validate() error {
	if sum := c.Scoring.Date + c.Scoring.Geo + c.Scoring.Title + c.Scoring.Description; sum <= 0 {
		return fmt.Errorf("%w: scoring weights sum to %v", ErrConfigInvalid, sum)
	}

	if c.Thresholds.Low > c.Thresholds.High {
		return fmt.Errorf("%w: low threshold %v exceeds high threshold %v",
			ErrConfigInvalid, c.Thresholds.Low, c.Thresholds.High)
	}

	if c.Thresholds.TitleVeto < 0 || c.Thresholds.TitleVeto > 1 {
		return fmt.Errorf("%w: title veto %v outside [0,1]", ErrConfigInvalid, c.Thresholds.TitleVeto)
	}

	if c.Geo.MaxDistanceKM <= 0 {
		return fmt.Errorf("%w: geo max_distance_km must be positive", ErrConfigInvalid)
	}

	if c.Title.BlendLower > c.Title.BlendUpper {
		return fmt.Errorf("%w: title blend band inverted [%v, %v]",
			ErrConfigInvalid, c.Title.BlendLower, c.Title.BlendUpper)
	}

	if c.Cluster.MaxClusterSize < 1 {
		return fmt.Errorf("%w: max_cluster_size must be at least 1", ErrConfigInvalid)
	}

	if c.AI.MinCombinedScore > c.AI.MaxCombinedScore {
		return fmt.Errorf("%w: ai band inverted [%v, %v]",
			ErrConfigInvalid, c.AI.MinCombinedScore, c.AI.MaxCombinedScore)
	}

	if c.AI.Enabled && c.AI.MaxConcurrentRequests < 1 {
		return fmt.Errorf("%w: ai max_concurrent_requests must be at least 1", ErrConfigInvalid)
	}

	return nil
}

// WeightsFor returns the signal weights to use for a pair that shares the
// given categories. The first priority-listed category that both the shared
// set and the override map contain wins; otherwise the default weights apply.
func (c *MatchingConfig) WeightsFor(sharedCategories map[string]struct{}) SignalWeights {
	if len(sharedCategories) == 0 || len(c.CategoryWeights.Overrides) == 0 {
		return c.Scoring
	}

	for _, category := range c.CategoryWeights.Priority {
		if _, shared := sharedCategories[category]; !shared {
			continue
		}

		if weights, ok := c.CategoryWeights.Overrides[category]; ok {
			return weights
		}
	}

	return c.Scoring
}
