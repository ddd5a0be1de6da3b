package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/dublette-io/dublette/internal/ingestion"
	"github.com/dublette-io/dublette/internal/matching"
)

const tokensPerMillion = 1_000_000

type (
	// Resolver arbitrates ambiguous decisions inside the configured combined
	// score band through an LLM, under a bounded concurrent pool.
	Resolver struct {
		client LLMClient
		cache  Cache
		ledger Ledger
		cfg    matching.AIConfig
		logger *slog.Logger
	}

	// Stats summarizes one resolution pass for the pipeline log record.
	Stats struct {
		Eligible      int
		Resolved      int
		LowConfidence int
		Failed        int
		CacheHits     int
	}
)

// New creates a Resolver. The cache and ledger are required; pass the AI
// configuration slice of the run config.
func New(client LLMClient, cache Cache, ledger Ledger, cfg matching.AIConfig, logger *slog.Logger) *Resolver {
	return &Resolver{
		client: client,
		cache:  cache,
		ledger: ledger,
		cfg:    cfg,
		logger: logger,
	}
}

// Resolve arbitrates every eligible decision in place and returns pass
// statistics. Eligible means: deterministic tier, ambiguous, and combined
// score inside [MinCombinedScore, MaxCombinedScore] - the outer ambiguous
// band is left for human review.
//
// Calls run concurrently under a pool of MaxConcurrentRequests. Results
// mutate each decision through its own pointer, so the caller's slice order
// is untouched and the output is deterministic regardless of response order.
// A per-pair failure marks that pair ai_unexpected and never aborts the
// pass; context cancellation does, with in-flight responses discarded.
func (r *Resolver) Resolve(
	ctx context.Context,
	batchID uuid.UUID,
	decisions []*matching.MatchDecision,
	byID map[string]*ingestion.SourceEvent,
) (*Stats, error) {
	stats := &Stats{}

	if !r.cfg.Enabled {
		return stats, nil
	}

	eligible := r.eligible(decisions, byID)
	stats.Eligible = len(eligible)

	if len(eligible) == 0 {
		return stats, nil
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = semaphore.NewWeighted(int64(r.cfg.MaxConcurrentRequests))
	)

	for _, decision := range eligible {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Cancelled: abandon the rest, wait out the in-flight calls.
			wg.Wait()

			return stats, fmt.Errorf("ai resolution cancelled: %w", err)
		}

		wg.Add(1)

		go func(d *matching.MatchDecision) {
			defer wg.Done()
			defer sem.Release(1)

			tier, cacheHit := r.resolveOne(ctx, batchID, d, byID[d.IDA], byID[d.IDB])

			mu.Lock()
			defer mu.Unlock()

			switch tier {
			case matching.TierAI:
				stats.Resolved++
			case matching.TierAILowConfidence:
				stats.LowConfidence++
			case matching.TierAIUnexpected:
				stats.Failed++
			}

			if cacheHit {
				stats.CacheHits++
			}
		}(decision)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("ai resolution cancelled: %w", err)
	}

	return stats, nil
}

func (r *Resolver) eligible(decisions []*matching.MatchDecision, byID map[string]*ingestion.SourceEvent) []*matching.MatchDecision {
	var out []*matching.MatchDecision

	for _, d := range decisions {
		if d.Tier != matching.TierDeterministic || d.Decision != matching.DecisionAmbiguous {
			continue
		}

		if d.Combined < r.cfg.MinCombinedScore || d.Combined > r.cfg.MaxCombinedScore {
			continue
		}

		if byID[d.IDA] == nil || byID[d.IDB] == nil {
			continue
		}

		out = append(out, d)
	}

	return out
}

// resolveOne arbitrates a single pair and returns the tier it ended on plus
// whether the cache answered.
func (r *Resolver) resolveOne(
	ctx context.Context,
	batchID uuid.UUID,
	d *matching.MatchDecision,
	a, b *ingestion.SourceEvent,
) (matching.Tier, bool) {
	contentHash := ContentHash(a, b)

	if r.cfg.CacheEnabled {
		if tier, ok := r.applyCached(ctx, batchID, d, contentHash); ok {
			return tier, true
		}
	}

	verdict, usage, err := r.client.Judge(ctx, &Request{A: a, B: b, Scores: d.Scores})
	if err != nil {
		d.Tier = matching.TierAIUnexpected

		r.logger.Warn("ai resolution failed for pair",
			slog.String("id_a", d.IDA),
			slog.String("id_b", d.IDB),
			slog.String("error", err.Error()),
		)

		return matching.TierAIUnexpected, false
	}

	r.appendLedger(ctx, &UsageRecord{
		BatchID:          batchID,
		IDA:              d.IDA,
		IDB:              d.IDB,
		InputTokens:      usage.InputTokens,
		OutputTokens:     usage.OutputTokens,
		EstimatedCostUSD: r.estimateCost(usage),
		CacheHit:         false,
	})

	tier := applyVerdict(d, verdict.Decision, verdict.Confidence, verdict.Reasoning, r.cfg.ConfidenceThreshold)

	if r.cfg.CacheEnabled {
		if err := r.cache.Put(ctx, &CacheEntry{
			ContentHash: contentHash,
			Decision:    verdict.Decision,
			Confidence:  verdict.Confidence,
			Reasoning:   verdict.Reasoning,
			ModelID:     r.cfg.Model,
		}); err != nil {
			r.logger.Warn("ai cache write failed", slog.String("error", err.Error()))
		}
	}

	return tier, false
}

// applyCached reuses a cache entry when one exists for the current model.
// Entries written by a different model are stale and ignored.
func (r *Resolver) applyCached(
	ctx context.Context,
	batchID uuid.UUID,
	d *matching.MatchDecision,
	contentHash string,
) (matching.Tier, bool) {
	entry, ok, err := r.cache.Get(ctx, contentHash)
	if err != nil {
		r.logger.Warn("ai cache read failed", slog.String("error", err.Error()))

		return "", false
	}

	if !ok || entry.ModelID != r.cfg.Model {
		return "", false
	}

	r.appendLedger(ctx, &UsageRecord{
		BatchID:  batchID,
		IDA:      d.IDA,
		IDB:      d.IDB,
		CacheHit: true,
	})

	return applyVerdict(d, entry.Decision, entry.Confidence, entry.Reasoning, r.cfg.ConfidenceThreshold), true
}

func (r *Resolver) appendLedger(ctx context.Context, record *UsageRecord) {
	if err := r.ledger.Append(ctx, record); err != nil {
		r.logger.Warn("ai usage ledger append failed",
			slog.String("id_a", record.IDA),
			slog.String("id_b", record.IDB),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Resolver) estimateCost(usage Usage) float64 {
	return float64(usage.InputTokens)/tokensPerMillion*r.cfg.CostPerMTokInputUSD +
		float64(usage.OutputTokens)/tokensPerMillion*r.cfg.CostPerMTokOutputUSD
}

// applyVerdict writes a verdict onto a decision. Confident verdicts flip the
// decision and promote the tier to ai; everything else stays ambiguous at
// tier ai_low_confidence.
func applyVerdict(d *matching.MatchDecision, decision string, confidence float64, reasoning string, threshold float64) matching.Tier {
	d.AIConfidence = confidence
	d.AIReasoning = reasoning

	if confidence < threshold {
		d.Tier = matching.TierAILowConfidence

		return d.Tier
	}

	if decision == VerdictSame {
		d.Decision = matching.DecisionMatch
	} else {
		d.Decision = matching.DecisionNoMatch
	}

	d.Tier = matching.TierAI

	return d.Tier
}
