package matching

import "github.com/dublette-io/dublette/internal/ingestion"

// ScorePair runs all four signal scorers on a candidate pair and combines
// them into a decided MatchDecision. Pure and symmetric: swapping the pair's
// events yields an identical decision.
func ScorePair(pair Pair, cfg *MatchingConfig) *MatchDecision {
	a, b := pair.A, pair.B

	scores := SignalScores{
		Date:        ScoreDate(a, b, cfg.Date),
		Geo:         ScoreGeo(a, b, cfg.Geo),
		Title:       ScoreTitle(a, b, cfg.Title),
		Description: ScoreDescription(a, b),
	}

	return Combine(a, b, scores, cfg)
}

// Combine applies category-aware weights to the signal scores and decides the
// pair.
//
// Decision rules, in order:
//  1. Title veto: a title score below the veto threshold forces ambiguous
//     regardless of the combined score. Two different events at the same
//     venue on the same evening produce exactly this signature.
//  2. combined >= high: match.
//  3. combined <= low: no_match.
//  4. Otherwise: ambiguous.
//
// The tier is always deterministic here; the AI resolver rewrites it for the
// pairs it arbitrates.
func Combine(a, b *ingestion.SourceEvent, scores SignalScores, cfg *MatchingConfig) *MatchDecision {
	weights := cfg.WeightsFor(sharedCategories(a, b))

	combined := weights.Date*scores.Date +
		weights.Geo*scores.Geo +
		weights.Title*scores.Title +
		weights.Description*scores.Description

	decision := DecisionAmbiguous

	switch {
	case scores.Title < cfg.Thresholds.TitleVeto:
		decision = DecisionAmbiguous
	case combined >= cfg.Thresholds.High:
		decision = DecisionMatch
	case combined <= cfg.Thresholds.Low:
		decision = DecisionNoMatch
	}

	idA, idB := OrderPair(a.ID, b.ID)

	return &MatchDecision{
		IDA:      idA,
		IDB:      idB,
		Scores:   scores,
		Combined: combined,
		Decision: decision,
		Tier:     TierDeterministic,
	}
}

// sharedCategories returns the category intersection of a pair.
func sharedCategories(a, b *ingestion.SourceEvent) map[string]struct{} {
	if len(a.Categories) == 0 || len(b.Categories) == 0 {
		return nil
	}

	setA := make(map[string]struct{}, len(a.Categories))
	for _, c := range a.Categories {
		setA[c] = struct{}{}
	}

	shared := make(map[string]struct{})

	for _, c := range b.Categories {
		if _, ok := setA[c]; ok {
			shared[c] = struct{}{}
		}
	}

	return shared
}
