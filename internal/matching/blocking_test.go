package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dublette-io/dublette/internal/ingestion"
)

func TestBlockingKeys_CityKey(t *testing.T) {
	e := testEvent("a", "bz", "umzug", onDate("2025-02-15", ""))
	e.Location.City = "Elzach"

	keys := BlockingKeys(e)

	assert.Equal(t, []string{"dc|2025-02-15|elzach"}, keys)
}

func TestBlockingKeys_GeoKey(t *testing.T) {
	e := testEvent("a", "bz", "umzug", onDate("2025-02-15", ""))
	e.Geo = &ingestion.Geo{Latitude: 48.1724, Longitude: 8.0719, Confidence: 0.95}

	keys := BlockingKeys(e)

	assert.Equal(t, []string{"dg|2025-02-15|48.17|8.07"}, keys)
}

func TestBlockingKeys_LowConfidenceGeoSkipped(t *testing.T) {
	e := testEvent("a", "bz", "umzug", onDate("2025-02-15", ""))
	e.Geo = &ingestion.Geo{Latitude: 48.1724, Longitude: 8.0719, Confidence: 0.6}

	assert.Empty(t, BlockingKeys(e))
}

func TestBlockingKeys_RangeExpansion(t *testing.T) {
	e := testEvent("a", "bz", "fest",
		ingestion.EventDate{Date: "2025-02-14", EndDate: "2025-02-16"})
	e.Location.City = "Elzach"

	keys := BlockingKeys(e)

	assert.Equal(t, []string{
		"dc|2025-02-14|elzach",
		"dc|2025-02-15|elzach",
		"dc|2025-02-16|elzach",
	}, keys)
}

func TestBlockingKeys_OnlineEventHasNoKeys(t *testing.T) {
	e := testEvent("a", "bz", "webinar", onDate("2025-02-15", ""))

	assert.Empty(t, BlockingKeys(e))
}

func TestCandidatePairs_SameCitySameDate(t *testing.T) {
	a := testEvent("a", "bz", "umzug", onDate("2025-02-15", ""))
	a.Location.City = "Elzach"
	b := testEvent("b", "wzo", "umzug", onDate("2025-02-15", ""))
	b.Location.City = "elzach"

	pairs := CandidatePairs([]*ingestion.SourceEvent{a, b})

	require.Len(t, pairs, 1)
	assert.Equal(t, "a", pairs[0].A.ID)
	assert.Equal(t, "b", pairs[0].B.ID)
}

func TestCandidatePairs_SameSourceExcluded(t *testing.T) {
	a := testEvent("a", "bz", "umzug", onDate("2025-02-15", ""))
	a.Location.City = "Elzach"
	b := testEvent("b", "bz", "umzug", onDate("2025-02-15", ""))
	b.Location.City = "Elzach"

	assert.Empty(t, CandidatePairs([]*ingestion.SourceEvent{a, b}))
}

func TestCandidatePairs_DifferentCitiesNotPaired(t *testing.T) {
	a := testEvent("a", "bz", "umzug", onDate("2025-02-15", ""))
	a.Location.City = "Elzach"
	b := testEvent("b", "wzo", "umzug", onDate("2025-02-15", ""))
	b.Location.City = "Endingen"

	assert.Empty(t, CandidatePairs([]*ingestion.SourceEvent{a, b}))
}

func TestCandidatePairs_DeduplicatedAcrossKeys(t *testing.T) {
	// Two events sharing both the city key and the geo key must pair once.
	a := testEvent("a", "bz", "umzug", onDate("2025-02-15", ""))
	a.Location.City = "Elzach"
	a.Geo = &ingestion.Geo{Latitude: 48.1724, Longitude: 8.0719, Confidence: 0.95}
	b := testEvent("b", "wzo", "umzug", onDate("2025-02-15", ""))
	b.Location.City = "Elzach"
	b.Geo = &ingestion.Geo{Latitude: 48.1730, Longitude: 8.0722, Confidence: 0.92}

	pairs := CandidatePairs([]*ingestion.SourceEvent{a, b})

	assert.Len(t, pairs, 1)
}

func TestCandidatePairs_SeparatorInEventID(t *testing.T) {
	// Source systems mint ids freely; a pipe must not corrupt the pairing.
	a := testEvent("a|x", "bz", "umzug", onDate("2025-02-15", ""))
	a.Location.City = "Elzach"
	b := testEvent("b", "wzo", "umzug", onDate("2025-02-15", ""))
	b.Location.City = "Elzach"

	pairs := CandidatePairs([]*ingestion.SourceEvent{a, b})

	require.Len(t, pairs, 1)
	require.NotNil(t, pairs[0].A)
	require.NotNil(t, pairs[0].B)
	assert.Equal(t, "a|x", pairs[0].A.ID)
	assert.Equal(t, "b", pairs[0].B.ID)
}

func TestCandidatePairs_DeterministicOrder(t *testing.T) {
	events := []*ingestion.SourceEvent{}
	sources := []string{"bz", "wzo", "stz"}

	for i, src := range sources {
		e := testEvent(string(rune('a'+i)), src, "umzug", onDate("2025-02-15", ""))
		e.Location.City = "Elzach"
		events = append(events, e)
	}

	first := CandidatePairs(events)

	// Shuffle the input order.
	reversed := []*ingestion.SourceEvent{events[2], events[0], events[1]}
	second := CandidatePairs(reversed)

	require.Equal(t, len(first), len(second))

	for i := range first {
		assert.Equal(t, first[i].A.ID, second[i].A.ID)
		assert.Equal(t, first[i].B.ID, second[i].B.ID)
	}
}

func TestPairReduction(t *testing.T) {
	// 100 events, 4950 possible pairs, 50 candidates: 98.99% eliminated.
	assert.InDelta(t, 98.99, PairReduction(100, 50), 0.01)
	assert.InDelta(t, 0.0, PairReduction(1, 0), 1e-9)
}
