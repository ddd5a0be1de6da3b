package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombine_DecisionBands(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name   string
		scores SignalScores
		want   Decision
	}{
		{
			name:   "all strong signals match",
			scores: SignalScores{Date: 1.0, Geo: 0.9, Title: 0.95, Description: 0.8},
			want:   DecisionMatch,
		},
		{
			name:   "all weak signals no_match",
			scores: SignalScores{Date: 0.0, Geo: 0.2, Title: 0.5, Description: 0.2},
			want:   DecisionNoMatch,
		},
		{
			name:   "middling signals ambiguous",
			scores: SignalScores{Date: 0.5, Geo: 0.5, Title: 0.6, Description: 0.5},
			want:   DecisionAmbiguous,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := testEvent("a", "bz", "x")
			b := testEvent("b", "wzo", "x")

			d := Combine(a, b, tt.scores, cfg)

			assert.Equal(t, tt.want, d.Decision)
			assert.Equal(t, TierDeterministic, d.Tier)
		})
	}
}

func TestCombine_TitleVeto(t *testing.T) {
	cfg := DefaultConfig()
	a := testEvent("a", "bz", "x")
	b := testEvent("b", "wzo", "x")

	// Same place, same evening, different event: date and geo max out while
	// the title disagrees. Without the veto this would cross the high
	// threshold.
	scores := SignalScores{Date: 1.0, Geo: 1.0, Title: 0.35, Description: 0.8}

	d := Combine(a, b, scores, cfg)

	require.GreaterOrEqual(t, d.Combined, cfg.Thresholds.High)
	assert.Equal(t, DecisionAmbiguous, d.Decision)

	// The veto applies below the low threshold too: a vetoed pair is never
	// downgraded to a clean no_match.
	weak := SignalScores{Date: 0.2, Geo: 0.2, Title: 0.1, Description: 0.2}

	d = Combine(a, b, weak, cfg)

	require.LessOrEqual(t, d.Combined, cfg.Thresholds.Low)
	assert.Equal(t, DecisionAmbiguous, d.Decision)
}

func TestCombine_CategoryOverrides(t *testing.T) {
	cfg := DefaultConfig()

	// Scores chosen so the fasnacht weights (geo-heavy, title-light) cross
	// the high threshold (0.78) while the default weights stay below (0.73).
	scores := SignalScores{Date: 0.85, Geo: 1.0, Title: 0.5, Description: 0.5}

	base := func(id, source string, categories ...string) *MatchDecision {
		a := testEvent("a-"+id, source, "x")
		a.Categories = categories
		b := testEvent("b-"+id, "wzo", "x")
		b.Categories = categories

		return Combine(a, b, scores, cfg)
	}

	t.Run("shared fasnacht category uses override weights", func(t *testing.T) {
		d := base("1", "bz", "fasnacht")

		w := cfg.CategoryWeights.Overrides["fasnacht"]
		want := w.Date*scores.Date + w.Geo*scores.Geo + w.Title*scores.Title + w.Description*scores.Description
		assert.InDelta(t, want, d.Combined, 1e-9)
		assert.Equal(t, DecisionMatch, d.Decision)
	})

	t.Run("no shared category uses default weights", func(t *testing.T) {
		a := testEvent("a", "bz", "x")
		a.Categories = []string{"fasnacht"}
		b := testEvent("b", "wzo", "x")
		b.Categories = []string{"konzert"}

		d := Combine(a, b, scores, cfg)

		w := cfg.Scoring
		want := w.Date*scores.Date + w.Geo*scores.Geo + w.Title*scores.Title + w.Description*scores.Description
		assert.InDelta(t, want, d.Combined, 1e-9)
	})

	t.Run("priority order picks first listed category", func(t *testing.T) {
		d := base("2", "bz", "versammlung", "fasnacht")

		w := cfg.CategoryWeights.Overrides["fasnacht"]
		want := w.Date*scores.Date + w.Geo*scores.Geo + w.Title*scores.Title + w.Description*scores.Description
		assert.InDelta(t, want, d.Combined, 1e-9)
	})
}

func TestCombine_PairOrdering(t *testing.T) {
	cfg := DefaultConfig()
	scores := SignalScores{Date: 0.5, Geo: 0.5, Title: 0.5, Description: 0.5}

	a := testEvent("zulu", "bz", "x")
	b := testEvent("alpha", "wzo", "x")

	d := Combine(a, b, scores, cfg)

	assert.Equal(t, "alpha", d.IDA)
	assert.Equal(t, "zulu", d.IDB)
	assert.Equal(t, "alpha|zulu", d.PairKey())
}

func TestScorePair_Symmetric(t *testing.T) {
	cfg := DefaultConfig()

	a := testEvent("a", "bz", "fasnacht umzug elzach", onDate("2025-02-15", "14:00"))
	b := testEvent("b", "wzo", "umzug elzach", onDate("2025-02-15", "14:15"))

	forward := ScorePair(Pair{A: a, B: b}, cfg)
	backward := ScorePair(Pair{A: b, B: a}, cfg)

	assert.Equal(t, forward.IDA, backward.IDA)
	assert.Equal(t, forward.IDB, backward.IDB)
	assert.InDelta(t, forward.Combined, backward.Combined, 1e-9)
	assert.Equal(t, forward.Decision, backward.Decision)
}

func TestWeightsFor_NoOverridesConfigured(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CategoryWeights.Overrides = nil

	shared := map[string]struct{}{"fasnacht": {}}

	assert.Equal(t, cfg.Scoring, cfg.WeightsFor(shared))
}
