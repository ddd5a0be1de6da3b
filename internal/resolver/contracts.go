// Package resolver arbitrates ambiguous candidate pairs through an LLM.
//
// Deterministic scoring leaves a band of pairs it cannot settle: same venue,
// overlapping dates, diverging titles. For those the resolver asks an
// off-box model whether the two records describe the same real-world event.
// Every call is cached by content hash, accounted in a usage ledger, and
// isolated: a failed call degrades one pair to manual review, never the run.
package resolver

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dublette-io/dublette/internal/ingestion"
	"github.com/dublette-io/dublette/internal/matching"
)

// Verdict decisions as returned by the model.
const (
	VerdictSame      = "same"
	VerdictDifferent = "different"
)

type (
	// Request carries the matching-relevant fields of both events plus the
	// deterministic sub-scores to the model.
	Request struct {
		A      *ingestion.SourceEvent
		B      *ingestion.SourceEvent
		Scores matching.SignalScores
	}

	// Verdict is the structured model response.
	Verdict struct {
		Decision   string  `json:"decision"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	}

	// Usage holds the token counts of one model call.
	Usage struct {
		InputTokens  int64
		OutputTokens int64
	}

	// LLMClient is the transport contract with the model service. Judge
	// blocks until the model answers or ctx expires; retries on rate limits
	// and server errors happen inside the client.
	LLMClient interface {
		Judge(ctx context.Context, req *Request) (*Verdict, Usage, error)
	}

	// CacheEntry is one cached resolution, keyed by content hash. Entries
	// survive across runs; a model change invalidates them via ModelID.
	CacheEntry struct {
		ContentHash string
		Decision    string
		Confidence  float64
		Reasoning   string
		ModelID     string
		CreatedAt   time.Time
	}

	// Cache is the persistence contract for AI resolutions.
	Cache interface {
		// Get returns the entry for a content hash, reporting whether one
		// exists.
		Get(ctx context.Context, contentHash string) (*CacheEntry, bool, error)

		// Put upserts an entry keyed by its content hash.
		Put(ctx context.Context, entry *CacheEntry) error
	}

	// UsageRecord is one append-only ledger row, written per arbitrated pair
	// whether or not the cache answered.
	UsageRecord struct {
		BatchID          uuid.UUID
		IDA              string
		IDB              string
		InputTokens      int64
		OutputTokens     int64
		EstimatedCostUSD float64
		CacheHit         bool
	}

	// Ledger is the persistence contract for AI cost accounting. Appends are
	// never rolled back: partial cost accounting on an aborted run is
	// acceptable, missing cost accounting is not.
	Ledger interface {
		Append(ctx context.Context, record *UsageRecord) error
	}
)
