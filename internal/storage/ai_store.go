package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dublette-io/dublette/internal/resolver"
)

// Sentinel errors for AI cache and ledger storage.
var (
	// ErrAIStoreFailed is returned when a cache or ledger operation fails.
	ErrAIStoreFailed = errors.New("ai storage failed")
)

type (
	// AICacheStore implements resolver.Cache over the ai_match_cache table.
	// Single writer, many readers; writes are upserts keyed by content hash.
	// Entries survive pipeline runs and are only invalidated by a model
	// change, which the resolver checks via ModelID.
	AICacheStore struct {
		conn *Connection
	}

	// AIUsageStore implements resolver.Ledger over the append-only
	// ai_usage_log table. Rows are never rolled back, even on an aborted
	// run: spent tokens are spent.
	AIUsageStore struct {
		conn *Connection
	}
)

var (
	_ resolver.Cache  = (*AICacheStore)(nil)
	_ resolver.Ledger = (*AIUsageStore)(nil)
)

// NewAICacheStore creates the resolution cache store.
func NewAICacheStore(conn *Connection) (*AICacheStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &AICacheStore{conn: conn}, nil
}

// Get returns the cache entry for a content hash, reporting whether one
// exists.
func (s *AICacheStore) Get(ctx context.Context, contentHash string) (*resolver.CacheEntry, bool, error) {
	entry := resolver.CacheEntry{ContentHash: contentHash}

	err := s.conn.db.QueryRowContext(ctx, `
		SELECT decision, confidence, reasoning, model_id, created_at
		FROM ai_match_cache
		WHERE content_hash = $1`,
		contentHash,
	).Scan(&entry.Decision, &entry.Confidence, &entry.Reasoning, &entry.ModelID, &entry.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("%w: cache read: %w", ErrAIStoreFailed, err)
	}

	return &entry, true, nil
}

// Put upserts a cache entry keyed by its content hash.
func (s *AICacheStore) Put(ctx context.Context, entry *resolver.CacheEntry) error {
	_, err := s.conn.db.ExecContext(ctx, `
		INSERT INTO ai_match_cache (content_hash, decision, confidence, reasoning, model_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (content_hash) DO UPDATE SET
			decision = EXCLUDED.decision,
			confidence = EXCLUDED.confidence,
			reasoning = EXCLUDED.reasoning,
			model_id = EXCLUDED.model_id,
			created_at = NOW()`,
		entry.ContentHash, entry.Decision, entry.Confidence, entry.Reasoning, entry.ModelID,
	)
	if err != nil {
		return fmt.Errorf("%w: cache upsert: %w", ErrAIStoreFailed, err)
	}

	return nil
}

// NewAIUsageStore creates the usage ledger store.
func NewAIUsageStore(conn *Connection) (*AIUsageStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &AIUsageStore{conn: conn}, nil
}

// Append writes one ledger row.
func (s *AIUsageStore) Append(ctx context.Context, record *resolver.UsageRecord) error {
	_, err := s.conn.db.ExecContext(ctx, `
		INSERT INTO ai_usage_log (
			batch_id, id_a, id_b, input_tokens, output_tokens, estimated_cost_usd, cache_hit, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
		record.BatchID, record.IDA, record.IDB,
		record.InputTokens, record.OutputTokens, record.EstimatedCostUSD, record.CacheHit,
	)
	if err != nil {
		return fmt.Errorf("%w: ledger append: %w", ErrAIStoreFailed, err)
	}

	return nil
}
