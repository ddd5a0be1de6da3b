package ingestion

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var decodeStamp = time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

func TestDecodeFile(t *testing.T) {
	payload := `[
		{
			"id": "bz-1",
			"source_code": "bz",
			"source_type": "terminliste",
			"title": "Jahreskonzert des Musikvereins",
			"location": {"name": "Festhalle", "city": "Waldkirch"},
			"geo": {"latitude": 48.09, "longitude": 7.96, "confidence": 0.95},
			"categories": ["musik"],
			"dates": [{"date": "2026-03-14", "start_time": "19:00"}]
		},
		{
			"id": "bz-2",
			"source_code": "bz",
			"source_type": "artikel",
			"title": "Fasnachtsumzug durch die Altstadt",
			"location": {"city": "Elzach"},
			"dates": [{"date": "2026-02-13", "end_date": "2026-02-16"}]
		}
	]`

	events, err := DecodeFile("bz-2026-03-01", strings.NewReader(payload), decodeStamp)
	require.NoError(t, err)
	require.Len(t, events, 2)

	first := events[0]
	assert.Equal(t, "bz-1", first.ID)
	assert.Equal(t, SourceTypeTerminliste, first.SourceType)
	assert.Equal(t, "Festhalle", first.Location.Name)
	require.NotNil(t, first.Geo)
	assert.InDelta(t, 0.95, first.Geo.Confidence, 1e-9)
	assert.Equal(t, "bz-2026-03-01", first.FileID)
	assert.Equal(t, decodeStamp, first.IngestedAt)

	second := events[1]
	assert.Nil(t, second.Geo)
	assert.Equal(t, "2026-02-16", second.Dates[0].EndDate)
}

func TestDecodeFile_NotJSON(t *testing.T) {
	_, err := DecodeFile("broken", strings.NewReader("{not json"), decodeStamp)
	require.ErrorIs(t, err, ErrFileDecodeFailed)
	assert.Contains(t, err.Error(), "broken")
}

func TestDecodeFile_EmptyArray(t *testing.T) {
	_, err := DecodeFile("empty", strings.NewReader("[]"), decodeStamp)
	require.ErrorIs(t, err, ErrFileEmpty)
}

func TestDecodeFile_InvalidRecordRejectsWholeFile(t *testing.T) {
	payload := `[
		{
			"id": "bz-1",
			"source_code": "bz",
			"source_type": "terminliste",
			"title": "Jahreskonzert des Musikvereins",
			"location": {"city": "Waldkirch"},
			"dates": [{"date": "2026-03-14"}]
		},
		{
			"id": "bz-2",
			"source_code": "bz",
			"source_type": "terminliste",
			"title": "Theaterabend",
			"location": {"city": "Waldkirch"},
			"dates": []
		}
	]`

	events, err := DecodeFile("bz", strings.NewReader(payload), decodeStamp)
	require.ErrorIs(t, err, ErrFileInvalidEvents)
	assert.Nil(t, events, "a valid sibling record does not survive a rejected file")
	assert.Contains(t, err.Error(), "bz-2", "the offending record id is reported")
}
