package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// Sentinel errors for file decoding.
var (
	// ErrFileDecodeFailed is returned when a publication file is not valid JSON.
	ErrFileDecodeFailed = errors.New("publication file decode failed")

	// ErrFileEmpty is returned when a publication file contains no events.
	ErrFileEmpty = errors.New("publication file contains no events")

	// ErrFileInvalidEvents is returned when one or more records fail validation.
	// Files with invalid records are rejected wholesale and routed to the
	// dead-letter collaborator; partially ingesting a file would make re-runs
	// non-reproducible.
	ErrFileInvalidEvents = errors.New("publication file contains invalid events")
)

type (
	// fileEvent is the wire representation of one event in a publication file.
	// It exists only for JSON decoding; the domain model carries no tags.
	fileEvent struct {
		ID               string   `json:"id"`
		SourceCode       string   `json:"source_code"`
		SourceType       string   `json:"source_type"`
		Title            string   `json:"title"`
		ShortDescription string   `json:"short_description,omitempty"`
		Description      string   `json:"description,omitempty"`
		Highlights       []string `json:"highlights,omitempty"`

		Location struct {
			Name     string `json:"name,omitempty"`
			City     string `json:"city,omitempty"`
			District string `json:"district,omitempty"`
			Street   string `json:"street,omitempty"`
			Zipcode  string `json:"zipcode,omitempty"`
		} `json:"location"`

		Geo *struct {
			Latitude   float64 `json:"latitude"`
			Longitude  float64 `json:"longitude"`
			Confidence float64 `json:"confidence"`
		} `json:"geo,omitempty"`

		Categories     []string `json:"categories,omitempty"`
		IsFamilyEvent  bool     `json:"is_family_event,omitempty"`
		IsChildFocused bool     `json:"is_child_focused,omitempty"`
		AdmissionFree  bool     `json:"admission_free,omitempty"`

		Dates []struct {
			Date      string `json:"date"`
			StartTime string `json:"start_time,omitempty"`
			EndTime   string `json:"end_time,omitempty"`
			EndDate   string `json:"end_date,omitempty"`
		} `json:"dates"`
	}
)

// DecodeFile decodes one publication file (a JSON array of event records)
// into validated SourceEvents.
//
// The whole file is rejected if any record fails validation; the returned
// error wraps ErrFileInvalidEvents and lists the offending record ids so the
// dead-letter collaborator can report them. IngestedAt is stamped with the
// supplied time so repeated ingestion of the same batch stays deterministic.
func DecodeFile(fileID string, r io.Reader, ingestedAt time.Time) ([]*SourceEvent, error) {
	var wire []fileEvent

	dec := json.NewDecoder(r)
	if err := dec.Decode(&wire); err != nil {
		return nil, fmt.Errorf("%w: file %s: %w", ErrFileDecodeFailed, fileID, err)
	}

	if len(wire) == 0 {
		return nil, fmt.Errorf("%w: file %s", ErrFileEmpty, fileID)
	}

	events := make([]*SourceEvent, 0, len(wire))

	var invalid []error

	for i := range wire {
		event := wire[i].toDomain(fileID, ingestedAt)

		if err := event.Validate(); err != nil {
			invalid = append(invalid, err)

			continue
		}

		events = append(events, event)
	}

	if len(invalid) > 0 {
		return nil, fmt.Errorf("%w: file %s: %w", ErrFileInvalidEvents, fileID, errors.Join(invalid...))
	}

	return events, nil
}

// toDomain maps a wire record to the domain model.
func (fe *fileEvent) toDomain(fileID string, ingestedAt time.Time) *SourceEvent {
	event := &SourceEvent{
		ID:               fe.ID,
		SourceCode:       fe.SourceCode,
		SourceType:       SourceType(fe.SourceType),
		Title:            fe.Title,
		ShortDescription: fe.ShortDescription,
		Description:      fe.Description,
		Highlights:       fe.Highlights,
		Location: Location{
			Name:     fe.Location.Name,
			City:     fe.Location.City,
			District: fe.Location.District,
			Street:   fe.Location.Street,
			Zipcode:  fe.Location.Zipcode,
		},
		Categories:     fe.Categories,
		IsFamilyEvent:  fe.IsFamilyEvent,
		IsChildFocused: fe.IsChildFocused,
		AdmissionFree:  fe.AdmissionFree,
		FileID:         fileID,
		IngestedAt:     ingestedAt,
	}

	if fe.Geo != nil {
		event.Geo = &Geo{
			Latitude:   fe.Geo.Latitude,
			Longitude:  fe.Geo.Longitude,
			Confidence: fe.Geo.Confidence,
		}
	}

	event.Dates = make([]EventDate, 0, len(fe.Dates))
	for _, d := range fe.Dates {
		event.Dates = append(event.Dates, EventDate{
			Date:      d.Date,
			StartTime: d.StartTime,
			EndTime:   d.EndTime,
			EndDate:   d.EndDate,
		})
	}

	return event
}
