package matching

import "github.com/dublette-io/dublette/internal/ingestion"

type (
	// Decision is the per-pair verdict of the scoring stage.
	Decision string

	// Tier records how a pair's final decision was reached, for audit queries
	// over persisted decisions.
	Tier string

	// SignalScores holds the four raw signal scores of a pair, each in [0,1].
	SignalScores struct {
		Date        float64 `json:"date"`
		Geo         float64 `json:"geo"`
		Title       float64 `json:"title"`
		Description float64 `json:"description"`
	}

	// Pair is one candidate pair produced by blocking. A is always the event
	// with the lexically smaller id.
	Pair struct {
		A *ingestion.SourceEvent
		B *ingestion.SourceEvent
	}

	// MatchDecision is the scored, decided record for one candidate pair.
	// IDA < IDB always holds so a pair has exactly one canonical row.
	MatchDecision struct {
		IDA      string
		IDB      string
		Scores   SignalScores
		Combined float64
		Decision Decision
		Tier     Tier

		// AIConfidence and AIReasoning are populated only when the AI
		// resolver handled the pair.
		AIConfidence float64
		AIReasoning  string
	}
)

const (
	// DecisionMatch marks a pair as the same real-world event.
	DecisionMatch Decision = "match"

	// DecisionAmbiguous marks a pair the deterministic signals could not
	// settle. Ambiguous pairs contribute no clustering edges.
	DecisionAmbiguous Decision = "ambiguous"

	// DecisionNoMatch marks a pair as distinct events.
	DecisionNoMatch Decision = "no_match"
)

const (
	// TierDeterministic marks a decision made purely by the score combiner.
	TierDeterministic Tier = "deterministic"

	// TierAI marks a decision made by the AI resolver with sufficient
	// confidence.
	TierAI Tier = "ai"

	// TierAILowConfidence marks a pair the AI resolver answered below the
	// confidence threshold; the decision stays ambiguous.
	TierAILowConfidence Tier = "ai_low_confidence"

	// TierAIUnexpected marks a pair whose AI response could not be parsed;
	// the decision stays ambiguous.
	TierAIUnexpected Tier = "ai_unexpected"
)

// OrderPair returns the two ids in lexical order.
func OrderPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}

	return a, b
}

// PairKey renders the decision's id tuple as "smaller|larger" for logs and
// error messages. Ids may themselves contain the separator, so this form is
// display-only and never parsed back.
func (d *MatchDecision) PairKey() string {
	return d.IDA + "|" + d.IDB
}

// IsEdge reports whether this decision contributes a clustering edge.
func (d *MatchDecision) IsEdge() bool {
	return d.Decision == DecisionMatch
}
