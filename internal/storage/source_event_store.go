package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/dublette-io/dublette/internal/ingestion"
)

// Sentinel errors for source event storage.
var (
	// ErrSourceEventStoreFailed is returned when a source event operation
	// fails.
	ErrSourceEventStoreFailed = errors.New("source event storage failed")
)

// SourceEventStore implements ingestion.Store with a PostgreSQL backend.
// Source events are immutable: inserts skip existing ids, nothing updates
// or deletes rows.
type SourceEventStore struct {
	conn *Connection
}

var _ ingestion.Store = (*SourceEventStore)(nil)

// NewSourceEventStore creates a PostgreSQL-backed source event store.
func NewSourceEventStore(conn *Connection) (*SourceEventStore, error) {
	if conn == nil {
		return nil, ErrNoDatabaseConnection
	}

	return &SourceEventStore{conn: conn}, nil
}

// eventDateRow is the jsonb wire form of one occurrence entry.
type eventDateRow struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

func marshalDates(dates []ingestion.EventDate) ([]byte, error) {
	rows := make([]eventDateRow, 0, len(dates))
	for _, d := range dates {
		rows = append(rows, eventDateRow{Date: d.Date, StartTime: d.StartTime, EndTime: d.EndTime, EndDate: d.EndDate})
	}

	encoded, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("marshal dates: %w", err)
	}

	return encoded, nil
}

func unmarshalDates(raw []byte) ([]ingestion.EventDate, error) {
	var rows []eventDateRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("unmarshal dates: %w", err)
	}

	dates := make([]ingestion.EventDate, 0, len(rows))
	for _, r := range rows {
		dates = append(dates, ingestion.EventDate{Date: r.Date, StartTime: r.StartTime, EndTime: r.EndTime, EndDate: r.EndDate})
	}

	return dates, nil
}

const insertSourceEventSQL = `
	INSERT INTO source_events (
		id, source_code, source_type,
		title, title_norm,
		short_description, short_description_norm,
		description, description_norm,
		highlights,
		location_name, location_name_norm, city, district, street, zipcode,
		latitude, longitude, geo_confidence,
		categories,
		is_family_event, is_child_focused, admission_free,
		dates, file_id, ingested_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		$11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
		$21, $22, $23, $24, $25, $26
	)
	ON CONFLICT (id) DO NOTHING`

// InsertEvents persists a batch of source events inside one transaction.
// Re-delivered ids are skipped, so re-ingesting a file is a no-op. Returns
// the number of newly inserted rows.
func (s *SourceEventStore) InsertEvents(ctx context.Context, events []*ingestion.SourceEvent) (int, error) {
	tx, err := s.conn.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin transaction: %w", ErrSourceEventStoreFailed, err)
	}

	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertSourceEventSQL)
	if err != nil {
		return 0, fmt.Errorf("%w: prepare insert: %w", ErrSourceEventStoreFailed, err)
	}

	defer func() { _ = stmt.Close() }()

	inserted := 0

	for _, e := range events {
		dates, err := marshalDates(e.Dates)
		if err != nil {
			return 0, fmt.Errorf("%w: event %s: %w", ErrSourceEventStoreFailed, e.ID, err)
		}

		var latitude, longitude, confidence sql.NullFloat64
		if e.Geo != nil {
			latitude = sql.NullFloat64{Float64: e.Geo.Latitude, Valid: true}
			longitude = sql.NullFloat64{Float64: e.Geo.Longitude, Valid: true}
			confidence = sql.NullFloat64{Float64: e.Geo.Confidence, Valid: true}
		}

		result, err := stmt.ExecContext(ctx,
			e.ID, e.SourceCode, string(e.SourceType),
			e.Title, e.TitleNorm,
			e.ShortDescription, e.ShortDescriptionNorm,
			e.Description, e.DescriptionNorm,
			pq.Array(e.Highlights),
			e.Location.Name, e.LocationNameNorm, e.Location.City, e.Location.District,
			e.Location.Street, e.Location.Zipcode,
			latitude, longitude, confidence,
			pq.Array(e.Categories),
			e.IsFamilyEvent, e.IsChildFocused, e.AdmissionFree,
			dates, e.FileID, e.IngestedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("%w: insert event %s: %w", ErrSourceEventStoreFailed, e.ID, err)
		}

		if rows, err := result.RowsAffected(); err == nil {
			inserted += int(rows)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %w", ErrSourceEventStoreFailed, err)
	}

	return inserted, nil
}

const loadSourceEventsSQL = `
	SELECT
		id, source_code, source_type,
		title, title_norm,
		short_description, short_description_norm,
		description, description_norm,
		highlights,
		location_name, location_name_norm, city, district, street, zipcode,
		latitude, longitude, geo_confidence,
		categories,
		is_family_event, is_child_focused, admission_free,
		dates, file_id, ingested_at
	FROM source_events
	ORDER BY id`

// LoadAll returns every stored source event ordered by id. The stable order
// keeps pipeline runs deterministic.
func (s *SourceEventStore) LoadAll(ctx context.Context) ([]*ingestion.SourceEvent, error) {
	rows, err := s.conn.db.QueryContext(ctx, loadSourceEventsSQL)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %w", ErrSourceEventStoreFailed, err)
	}

	defer func() { _ = rows.Close() }()

	var events []*ingestion.SourceEvent

	for rows.Next() {
		e, err := scanSourceEvent(rows)
		if err != nil {
			return nil, err
		}

		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate rows: %w", ErrSourceEventStoreFailed, err)
	}

	return events, nil
}

func scanSourceEvent(rows *sql.Rows) (*ingestion.SourceEvent, error) {
	var (
		e                               ingestion.SourceEvent
		sourceType                      string
		latitude, longitude, confidence sql.NullFloat64
		rawDates                        []byte
	)

	err := rows.Scan(
		&e.ID, &e.SourceCode, &sourceType,
		&e.Title, &e.TitleNorm,
		&e.ShortDescription, &e.ShortDescriptionNorm,
		&e.Description, &e.DescriptionNorm,
		pq.Array(&e.Highlights),
		&e.Location.Name, &e.LocationNameNorm, &e.Location.City, &e.Location.District,
		&e.Location.Street, &e.Location.Zipcode,
		&latitude, &longitude, &confidence,
		pq.Array(&e.Categories),
		&e.IsFamilyEvent, &e.IsChildFocused, &e.AdmissionFree,
		&rawDates, &e.FileID, &e.IngestedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: scan row: %w", ErrSourceEventStoreFailed, err)
	}

	e.SourceType = ingestion.SourceType(sourceType)

	if latitude.Valid && longitude.Valid {
		e.Geo = &ingestion.Geo{
			Latitude:   latitude.Float64,
			Longitude:  longitude.Float64,
			Confidence: confidence.Float64,
		}
	}

	e.Dates, err = unmarshalDates(rawDates)
	if err != nil {
		return nil, fmt.Errorf("%w: event %s: %w", ErrSourceEventStoreFailed, e.ID, err)
	}

	return &e, nil
}

// HealthCheck verifies the storage backend is reachable.
func (s *SourceEventStore) HealthCheck(ctx context.Context) error {
	return s.conn.Ping(ctx)
}
