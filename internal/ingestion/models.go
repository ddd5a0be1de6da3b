// Package ingestion provides the source event domain model and persistence interfaces.
//
// Source events are the immutable input records extracted from regional print
// publications. Each publication delivers a JSON file of event descriptions;
// the same real-world event typically appears in several files with differing
// titles, descriptions, and location strings. The matching pipeline reads
// these records and never mutates them.
package ingestion

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	// DateLayout is the wire and storage format for concrete event dates.
	DateLayout = "2006-01-02"

	// TimeLayout is the wire and storage format for start/end times.
	TimeLayout = "15:04"

	// maxRangeDays bounds end_date expansion so a malformed range cannot
	// blow up the date set (a year-long festival is already unrealistic
	// for this corpus).
	maxRangeDays = 370
)

type (
	// SourceType categorizes the publication section an event was extracted from.
	// Journalistic articles and calendar listings diverge lexically, which the
	// title scorer compensates for with cross-source-type weight overrides.
	SourceType string

	// Location holds the venue address fields of a source event.
	// All fields are optional; City drives blocking.
	Location struct {
		Name     string
		City     string
		District string
		Street   string
		Zipcode  string
	}

	// Geo holds WGS84 coordinates with an extraction confidence in [0,1].
	Geo struct {
		Latitude   float64
		Longitude  float64
		Confidence float64
	}

	// EventDate is one occurrence entry of an event. Date is required
	// (DateLayout); StartTime/EndTime (TimeLayout) and EndDate are optional.
	// A non-empty EndDate denotes an inclusive range [Date, EndDate].
	EventDate struct {
		Date      string
		StartTime string
		EndTime   string
		EndDate   string
	}

	// SourceEvent is an immutable event record from one publication - Domain Model.
	//
	// Identity is the externally assigned ID (globally unique across sources).
	// The *Norm fields are computed once at ingestion time by the text
	// normalizer and are the only representation the matching pipeline
	// compares on.
	SourceEvent struct {
		// ID is the externally assigned, globally unique identifier.
		ID string

		// SourceCode is the publisher tag (e.g. "bz", "wzo").
		SourceCode string

		// SourceType is the publication section: artikel, terminliste, anzeige.
		SourceType SourceType

		Title     string
		TitleNorm string

		ShortDescription     string
		ShortDescriptionNorm string

		Description     string
		DescriptionNorm string

		// Highlights is an ordered sequence of short teaser strings.
		Highlights []string

		Location Location

		// LocationNameNorm is the normalized venue name, used by the geo
		// scorer's venue-name check.
		LocationNameNorm string

		// Geo is nil when no coordinates were extracted.
		Geo *Geo

		// Categories is a set of content tags (e.g. "fasnacht", "versammlung").
		Categories []string

		IsFamilyEvent  bool
		IsChildFocused bool
		AdmissionFree  bool

		// Dates is the ordered occurrence list. Never empty for a valid event.
		Dates []EventDate

		// FileID identifies the ingested publication file this record came from.
		FileID string

		IngestedAt time.Time
	}
)

const (
	// SourceTypeArtikel marks events extracted from editorial articles.
	SourceTypeArtikel SourceType = "artikel"

	// SourceTypeTerminliste marks events extracted from calendar listings.
	SourceTypeTerminliste SourceType = "terminliste"

	// SourceTypeAnzeige marks events extracted from advertisements.
	SourceTypeAnzeige SourceType = "anzeige"
)

// Validation errors (static sentinel errors for errors.Is() checks).
var (
	// ErrEventIDEmpty indicates the external event id is missing.
	ErrEventIDEmpty = errors.New("event id cannot be empty")

	// ErrSourceCodeEmpty indicates the publisher tag is missing.
	ErrSourceCodeEmpty = errors.New("source_code cannot be empty")

	// ErrSourceTypeInvalid indicates an unknown source type.
	ErrSourceTypeInvalid = errors.New("source_type must be one of: artikel, terminliste, anzeige")

	// ErrTitleEmpty indicates the title is missing.
	ErrTitleEmpty = errors.New("title cannot be empty")

	// ErrDatesEmpty indicates the occurrence list is empty.
	ErrDatesEmpty = errors.New("dates cannot be empty")

	// ErrDateInvalid indicates a date that does not parse as YYYY-MM-DD.
	ErrDateInvalid = errors.New("date must be formatted as YYYY-MM-DD")

	// ErrTimeInvalid indicates a time that does not parse as HH:MM.
	ErrTimeInvalid = errors.New("time must be formatted as HH:MM")

	// ErrEndDateBeforeDate indicates an inverted date range.
	ErrEndDateBeforeDate = errors.New("end_date cannot precede date")

	// ErrGeoConfidenceRange indicates a confidence outside [0,1].
	ErrGeoConfidenceRange = errors.New("geo confidence must be within [0,1]")
)

// ValidSourceTypes returns all recognized source types.
func ValidSourceTypes() []SourceType {
	return []SourceType{SourceTypeArtikel, SourceTypeTerminliste, SourceTypeAnzeige}
}

// IsValid checks if the SourceType is a recognized publication section.
func (st SourceType) IsValid() bool {
	for _, valid := range ValidSourceTypes() {
		if st == valid {
			return true
		}
	}

	return false
}

// IsOnline reports whether the event has no physical anchor: no city and no
// coordinates. Online events produce no blocking keys and can only be merged
// through AI arbitration, which never sees them without a candidate pair, so
// in practice they remain singletons.
func (e *SourceEvent) IsOnline() bool {
	return strings.TrimSpace(e.Location.City) == "" && e.Geo == nil
}

// HasGeo reports whether usable coordinates are present.
func (e *SourceEvent) HasGeo() bool {
	return e.Geo != nil
}

// Validate performs domain validation on the SourceEvent.
//
// Validation rules:
//   - id, source_code, title: required
//   - source_type: must be a recognized value
//   - dates: non-empty; every entry parseable; end_date >= date
//   - geo confidence within [0,1] when coordinates are present
//
// Storage-level concerns (uniqueness of id) are handled by the storage layer.
func (e *SourceEvent) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return ErrEventIDEmpty
	}

	if strings.TrimSpace(e.SourceCode) == "" {
		return fmt.Errorf("%w: event %s", ErrSourceCodeEmpty, e.ID)
	}

	if !e.SourceType.IsValid() {
		return fmt.Errorf("%w: got %q", ErrSourceTypeInvalid, e.SourceType)
	}

	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("%w: event %s", ErrTitleEmpty, e.ID)
	}

	if len(e.Dates) == 0 {
		return fmt.Errorf("%w: event %s", ErrDatesEmpty, e.ID)
	}

	for _, d := range e.Dates {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("event %s: %w", e.ID, err)
		}
	}

	if e.Geo != nil && (e.Geo.Confidence < 0 || e.Geo.Confidence > 1) {
		return fmt.Errorf("%w: got %v", ErrGeoConfidenceRange, e.Geo.Confidence)
	}

	return nil
}

// Validate checks one occurrence entry.
func (d *EventDate) Validate() error {
	start, err := time.Parse(DateLayout, d.Date)
	if err != nil {
		return fmt.Errorf("%w: got %q", ErrDateInvalid, d.Date)
	}

	if d.EndDate != "" {
		end, err := time.Parse(DateLayout, d.EndDate)
		if err != nil {
			return fmt.Errorf("%w: got %q", ErrDateInvalid, d.EndDate)
		}

		if end.Before(start) {
			return fmt.Errorf("%w: %s > %s", ErrEndDateBeforeDate, d.Date, d.EndDate)
		}
	}

	for _, tm := range []string{d.StartTime, d.EndTime} {
		if tm == "" {
			continue
		}

		if _, err := time.Parse(TimeLayout, tm); err != nil {
			return fmt.Errorf("%w: got %q", ErrTimeInvalid, tm)
		}
	}

	return nil
}

// ExpandedDates returns the sorted set of concrete dates this event occurs on,
// expanding every end_date range inclusively. Invalid entries are skipped
// (Validate catches them earlier); the result is deduplicated.
func (e *SourceEvent) ExpandedDates() []string {
	seen := make(map[string]struct{}, len(e.Dates))

	for _, d := range e.Dates {
		start, err := time.Parse(DateLayout, d.Date)
		if err != nil {
			continue
		}

		end := start

		if d.EndDate != "" {
			if parsed, err := time.Parse(DateLayout, d.EndDate); err == nil && !parsed.Before(start) {
				end = parsed
			}
		}

		for day, n := start, 0; !day.After(end) && n <= maxRangeDays; day, n = day.AddDate(0, 0, 1), n+1 {
			seen[day.Format(DateLayout)] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for day := range seen {
		out = append(out, day)
	}

	sort.Strings(out)

	return out
}

// StartTimeOn returns the start time of the first occurrence entry covering
// the given concrete date, and whether one exists. Range entries cover every
// date within [Date, EndDate].
func (e *SourceEvent) StartTimeOn(date string) (string, bool) {
	for _, d := range e.Dates {
		if d.StartTime == "" {
			continue
		}

		if d.Date == date {
			return d.StartTime, true
		}

		if d.EndDate != "" && d.Date <= date && date <= d.EndDate {
			return d.StartTime, true
		}
	}

	return "", false
}
