// Package pipeline orchestrates one deduplication batch end to end:
// publication files are decoded and normalized, the full stored corpus is
// reloaded, candidate pairs are enumerated and scored, the inner ambiguous
// band is optionally arbitrated by the AI resolver, matches are clustered
// and synthesized into canonical events, and the previous run's output is
// atomically replaced.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dublette-io/dublette/internal/cluster"
	"github.com/dublette-io/dublette/internal/ingestion"
	"github.com/dublette-io/dublette/internal/matching"
	"github.com/dublette-io/dublette/internal/normalize"
	"github.com/dublette-io/dublette/internal/resolver"
	"github.com/dublette-io/dublette/internal/synthesis"
)

// Sentinel errors for pipeline execution.
var (
	// ErrPipelineFailed is returned when a batch aborts before the canonical
	// replace. Per-file decode failures never trigger it; they become dead
	// letters instead.
	ErrPipelineFailed = errors.New("pipeline run failed")
)

type (
	// ConfigSource loads the persisted run configuration. The boolean is
	// false when no configuration has been saved yet, in which case the
	// driver falls back to the configuration file.
	ConfigSource interface {
		Load(ctx context.Context) (*matching.MatchingConfig, bool, error)
	}

	// CanonicalWriter atomically replaces the previous run's canonical
	// events and match decisions.
	CanonicalWriter interface {
		ReplaceRun(ctx context.Context, events []*synthesis.CanonicalEvent, decisions []*matching.MatchDecision) error
	}

	// Arbitrator resolves ambiguous decisions in the inner score band. The
	// production implementation is the AI resolver; a nil Arbitrator skips
	// the stage entirely.
	Arbitrator interface {
		Resolve(ctx context.Context, batchID uuid.UUID, decisions []*matching.MatchDecision, byID map[string]*ingestion.SourceEvent) (*resolver.Stats, error)
	}

	// BatchFile is one publication file handed to a run.
	BatchFile struct {
		ID     string
		Reader io.Reader
	}

	// DeadLetter records a rejected publication file. The batch continues
	// without it.
	DeadLetter struct {
		FileID string
		Reason string
	}

	// Result summarizes one completed batch.
	Result struct {
		BatchID uuid.UUID

		FilesIngested  int
		FilesRejected  int
		EventsInserted int
		EventsLoaded   int

		CandidatePairs int
		PairReduction  float64

		Matches   int
		NoMatches int
		Ambiguous int
		Tiers     map[matching.Tier]int

		AI *resolver.Stats

		Clusters        int
		FlaggedClusters int
		CanonicalEvents int

		DeadLetters []DeadLetter
		Duration    time.Duration
	}

	// Deps carries the collaborators of a Driver.
	Deps struct {
		Events     ingestion.Store
		Canonical  CanonicalWriter
		Configs    ConfigSource
		Arbitrator Arbitrator
		Normalizer *normalize.Normalizer
		Logger     *slog.Logger
	}

	// Driver runs deduplication batches.
	Driver struct {
		events     ingestion.Store
		canonical  CanonicalWriter
		configs    ConfigSource
		arbitrator Arbitrator
		normalizer *normalize.Normalizer
		logger     *slog.Logger

		fileConfig func() (*matching.MatchingConfig, error)
		now        func() time.Time
	}
)

// New creates a batch driver. Events, Canonical, Configs and Normalizer are
// required; Arbitrator is optional and nil disables AI arbitration
// regardless of the run configuration.
func New(deps Deps) *Driver {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Driver{
		events:     deps.Events,
		canonical:  deps.Canonical,
		configs:    deps.Configs,
		arbitrator: deps.Arbitrator,
		normalizer: deps.Normalizer,
		logger:     logger,
		fileConfig: matching.LoadConfigFileFromEnv,
		now:        time.Now,
	}
}

// ProcessBatch runs one batch over the given publication files plus
// everything already stored. Files that fail to decode become dead letters
// and never abort the batch; storage failures and a cancelled context do.
//
// The returned Result is valid even alongside a non-nil error and reports
// how far the run got.
func (d *Driver) ProcessBatch(ctx context.Context, files []BatchFile) (*Result, error) {
	start := d.now()
	result := &Result{
		BatchID: uuid.New(),
		Tiers:   make(map[matching.Tier]int),
	}

	logger := d.logger.With(slog.String("batch_id", result.BatchID.String()))

	cfg, err := d.loadConfig(ctx, logger)
	if err != nil {
		return d.fail(result, start, logger, err)
	}

	if err := d.ingestFiles(ctx, files, start, result, logger); err != nil {
		return d.fail(result, start, logger, err)
	}

	events, err := d.events.LoadAll(ctx)
	if err != nil {
		return d.fail(result, start, logger, fmt.Errorf("%w: load events: %w", ErrPipelineFailed, err))
	}

	result.EventsLoaded = len(events)

	logger.Info("events_loaded",
		slog.Int("count", len(events)),
		slog.Int("files_ingested", result.FilesIngested),
		slog.Int("files_rejected", result.FilesRejected),
	)

	byID := make(map[string]*ingestion.SourceEvent, len(events))
	for _, e := range events {
		byID[e.ID] = e
	}

	decisions := d.match(events, cfg, result, logger)

	if err := d.arbitrate(ctx, result.BatchID, decisions, byID, cfg, result, logger); err != nil {
		return d.fail(result, start, logger, err)
	}

	clusters := cluster.Build(events, decisions, cfg.Cluster)
	result.Clusters = len(clusters)

	for _, c := range clusters {
		if !c.Valid {
			result.FlaggedClusters++
		}
	}

	canonicals := synthesis.SynthesizeAll(clusters, byID, cfg.Canonical)
	result.CanonicalEvents = len(canonicals)

	if err := d.canonical.ReplaceRun(ctx, canonicals, decisions); err != nil {
		return d.fail(result, start, logger, fmt.Errorf("%w: replace canonical run: %w", ErrPipelineFailed, err))
	}

	result.Duration = d.now().Sub(start)

	logger.Info("pipeline_complete",
		slog.Int("events", result.EventsLoaded),
		slog.Int("candidate_pairs", result.CandidatePairs),
		slog.Int("clusters", result.Clusters),
		slog.Int("flagged_clusters", result.FlaggedClusters),
		slog.Int("canonical_events", result.CanonicalEvents),
		slog.Duration("duration", result.Duration),
	)

	return result, nil
}

// loadConfig prefers the persisted configuration and falls back to the
// configuration file (or pure defaults when no file exists). Both paths
// validate before use; an invalid configuration aborts the batch.
func (d *Driver) loadConfig(ctx context.Context, logger *slog.Logger) (*matching.MatchingConfig, error) {
	cfg, ok, err := d.configs.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load configuration: %w", ErrPipelineFailed, err)
	}

	if ok {
		logger.Debug("configuration loaded from store")

		return cfg, nil
	}

	cfg, err = d.fileConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: load configuration file: %w", ErrPipelineFailed, err)
	}

	logger.Debug("no persisted configuration, using file fallback")

	return cfg, nil
}

// ingestFiles decodes, normalizes and stores each publication file. A file
// that fails to decode is recorded as a dead letter and skipped; a storage
// failure is fatal because a partially ingested batch would make the run
// non-reproducible.
func (d *Driver) ingestFiles(ctx context.Context, files []BatchFile, ingestedAt time.Time, result *Result, logger *slog.Logger) error {
	for _, file := range files {
		events, err := ingestion.DecodeFile(file.ID, file.Reader, ingestedAt)
		if err != nil {
			result.FilesRejected++
			result.DeadLetters = append(result.DeadLetters, DeadLetter{FileID: file.ID, Reason: err.Error()})

			logger.Warn("file_rejected",
				slog.String("file_id", file.ID),
				slog.String("error", err.Error()),
			)

			continue
		}

		for _, e := range events {
			d.normalizer.ApplyToEvent(e)
		}

		inserted, err := d.events.InsertEvents(ctx, events)
		if err != nil {
			return fmt.Errorf("%w: store file %s: %w", ErrPipelineFailed, file.ID, err)
		}

		result.FilesIngested++
		result.EventsInserted += inserted

		logger.Info("file_ingested",
			slog.String("file_id", file.ID),
			slog.Int("events", len(events)),
			slog.Int("inserted", inserted),
		)
	}

	return nil
}

// match enumerates candidate pairs and scores each one deterministically.
func (d *Driver) match(events []*ingestion.SourceEvent, cfg *matching.MatchingConfig, result *Result, logger *slog.Logger) []*matching.MatchDecision {
	pairs := matching.CandidatePairs(events)

	result.CandidatePairs = len(pairs)
	result.PairReduction = matching.PairReduction(len(events), len(pairs))

	decisions := make([]*matching.MatchDecision, 0, len(pairs))

	for _, pair := range pairs {
		decision := matching.ScorePair(pair, cfg)
		decisions = append(decisions, decision)

		switch decision.Decision {
		case matching.DecisionMatch:
			result.Matches++
		case matching.DecisionNoMatch:
			result.NoMatches++
		case matching.DecisionAmbiguous:
			result.Ambiguous++
		}
	}

	logger.Info("matching_complete",
		slog.Int("candidate_pairs", len(pairs)),
		slog.Float64("pair_reduction_pct", result.PairReduction),
		slog.Int("matches", result.Matches),
		slog.Int("no_matches", result.NoMatches),
		slog.Int("ambiguous", result.Ambiguous),
	)

	return decisions
}

// arbitrate hands the ambiguous inner band to the AI resolver, then
// recounts decisions and tiers since arbitration rewrites both.
func (d *Driver) arbitrate(
	ctx context.Context,
	batchID uuid.UUID,
	decisions []*matching.MatchDecision,
	byID map[string]*ingestion.SourceEvent,
	cfg *matching.MatchingConfig,
	result *Result,
	logger *slog.Logger,
) error {
	if d.arbitrator != nil && cfg.AI.Enabled {
		stats, err := d.arbitrator.Resolve(ctx, batchID, decisions, byID)
		if err != nil {
			return fmt.Errorf("%w: ai arbitration: %w", ErrPipelineFailed, err)
		}

		result.AI = stats

		logger.Info("ai_arbitration_complete",
			slog.Int("eligible", stats.Eligible),
			slog.Int("resolved", stats.Resolved),
			slog.Int("low_confidence", stats.LowConfidence),
			slog.Int("failed", stats.Failed),
			slog.Int("cache_hits", stats.CacheHits),
		)
	}

	result.Matches, result.NoMatches, result.Ambiguous = 0, 0, 0

	for _, decision := range decisions {
		switch decision.Decision {
		case matching.DecisionMatch:
			result.Matches++
		case matching.DecisionNoMatch:
			result.NoMatches++
		case matching.DecisionAmbiguous:
			result.Ambiguous++
		}

		result.Tiers[decision.Tier]++
	}

	return nil
}

// fail finalizes a result for an aborted batch.
func (d *Driver) fail(result *Result, start time.Time, logger *slog.Logger, err error) (*Result, error) {
	result.Duration = d.now().Sub(start)

	logger.Error("pipeline_failed", slog.String("error", err.Error()))

	return result, err
}
