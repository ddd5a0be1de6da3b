package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/dublette-io/dublette/internal/matching"
	"github.com/dublette-io/dublette/internal/synthesis"
)

// Sentinel errors for canonical storage.
var (
	// ErrCanonicalStoreFailed is returned when the clear-and-replace
	// transaction fails. The previous canonical state stays intact.
	ErrCanonicalStoreFailed = errors.New("canonical storage failed")
)

// CanonicalStore owns all write access to the canonical tables. One logical
// transaction per pipeline run replaces decisions, links, and canonicals
// wholesale; readers see either the previous run in full or the new one.
type CanonicalStore struct {
	conn *Connection
}

// NewCanonicalStore creates a PostgreSQL-backed canonical store.
func NewCanonicalStore(conn *Connection) (*CanonicalStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &CanonicalStore{conn: conn}, nil
}

const insertCanonicalSQL = `
	INSERT INTO canonical_events (
		title, short_description, description, highlights,
		location_name, city, district, street, zipcode,
		latitude, longitude, geo_confidence,
		categories, is_family_event, is_child_focused, admission_free,
		dates, source_count, match_confidence,
		needs_review, flag_reason, ai_assisted, field_provenance, version
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		$11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
		$21, $22, $23, $24
	)
	RETURNING id`

const insertDecisionSQL = `
	INSERT INTO match_decisions (
		id_a, id_b,
		date_score, geo_score, title_score, description_score,
		combined_score, decision, tier, ai_confidence, ai_reasoning
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

// ReplaceRun atomically replaces the previous run's output with this run's.
//
// Deletion order is child-first (decisions, links, canonicals) to satisfy
// the foreign keys without relying on cascades; then canonicals are inserted
// with one link per cluster member, then all decisions. Source events and
// the AI cache/ledger are never touched here.
func (s *CanonicalStore) ReplaceRun(
	ctx context.Context,
	canonicals []*synthesis.CanonicalEvent,
	decisions []*matching.MatchDecision,
) error {
	tx, err := s.conn.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %w", ErrCanonicalStoreFailed, err)
	}

	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		`DELETE FROM match_decisions`,
		`DELETE FROM canonical_event_sources`,
		`DELETE FROM canonical_events`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrCanonicalStoreFailed, stmt, err)
		}
	}

	for _, c := range canonicals {
		if err := s.insertCanonical(ctx, tx, c); err != nil {
			return err
		}
	}

	for _, d := range decisions {
		if _, err := tx.ExecContext(ctx, insertDecisionSQL,
			d.IDA, d.IDB,
			d.Scores.Date, d.Scores.Geo, d.Scores.Title, d.Scores.Description,
			d.Combined, string(d.Decision), string(d.Tier),
			d.AIConfidence, d.AIReasoning,
		); err != nil {
			return fmt.Errorf("%w: insert decision %s: %w", ErrCanonicalStoreFailed, d.PairKey(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrCanonicalStoreFailed, err)
	}

	return nil
}

func (s *CanonicalStore) insertCanonical(ctx context.Context, tx *sql.Tx, c *synthesis.CanonicalEvent) error {
	provenance, err := json.Marshal(c.FieldProvenance)
	if err != nil {
		return fmt.Errorf("%w: marshal provenance: %w", ErrCanonicalStoreFailed, err)
	}

	var latitude, longitude, confidence sql.NullFloat64
	if c.Geo != nil {
		latitude = sql.NullFloat64{Float64: c.Geo.Latitude, Valid: true}
		longitude = sql.NullFloat64{Float64: c.Geo.Longitude, Valid: true}
		confidence = sql.NullFloat64{Float64: c.Geo.Confidence, Valid: true}
	}

	var id int64

	err = tx.QueryRowContext(ctx, insertCanonicalSQL,
		c.Title, c.ShortDescription, c.Description, pq.Array(c.Highlights),
		c.Location.Name, c.Location.City, c.Location.District, c.Location.Street, c.Location.Zipcode,
		latitude, longitude, confidence,
		pq.Array(c.Categories), c.IsFamilyEvent, c.IsChildFocused, c.AdmissionFree,
		pq.Array(c.Dates), c.SourceCount, c.MatchConfidence,
		c.NeedsReview, c.FlagReason, c.AIAssisted, provenance, c.Version,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("%w: insert canonical %q: %w", ErrCanonicalStoreFailed, c.Title, err)
	}

	c.ID = id

	for _, sourceID := range c.SourceIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO canonical_event_sources (canonical_id, source_event_id) VALUES ($1, $2)`,
			id, sourceID,
		); err != nil {
			return fmt.Errorf("%w: link canonical %d to %s: %w", ErrCanonicalStoreFailed, id, sourceID, err)
		}
	}

	return nil
}

// HealthCheck verifies the storage backend is reachable.
func (s *CanonicalStore) HealthCheck(ctx context.Context) error {
	return s.conn.Ping(ctx)
}
