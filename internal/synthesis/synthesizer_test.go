package synthesis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dublette-io/dublette/internal/cluster"
	"github.com/dublette-io/dublette/internal/ingestion"
	"github.com/dublette-io/dublette/internal/matching"
)

func event(id string, dates ...string) *ingestion.SourceEvent {
	e := &ingestion.SourceEvent{
		ID:         id,
		SourceCode: id,
		SourceType: ingestion.SourceTypeTerminliste,
		Title:      "Fasnachtsumzug Elzach",
	}

	for _, d := range dates {
		e.Dates = append(e.Dates, ingestion.EventDate{Date: d})
	}

	return e
}

func clusterOf(valid bool, events ...*ingestion.SourceEvent) (*cluster.Cluster, map[string]*ingestion.SourceEvent) {
	byID := make(map[string]*ingestion.SourceEvent, len(events))

	c := &cluster.Cluster{Valid: valid}
	for _, e := range events {
		c.Members = append(c.Members, e.ID)
		byID[e.ID] = e
	}

	return c, byID
}

func TestSynthesize_TitlePrefersSubstantialLength(t *testing.T) {
	a := event("a", "2026-02-14")
	a.Title = "Umzug" // under ten characters

	b := event("b", "2026-02-14")
	b.Title = "Fasnachtsumzug durch die Elzacher Innenstadt"

	c, byID := clusterOf(true, a, b)
	canonical := Synthesize(c, byID, matching.DefaultConfig().Canonical)

	assert.Equal(t, b.Title, canonical.Title)
	assert.Equal(t, "b", canonical.FieldProvenance[FieldTitle])
}

func TestSynthesize_TitleFallsBackToLongestOverall(t *testing.T) {
	a := event("a", "2026-02-14")
	a.Title = "Umzug"

	b := event("b", "2026-02-14")
	b.Title = "Ball"

	c, byID := clusterOf(true, a, b)
	canonical := Synthesize(c, byID, matching.DefaultConfig().Canonical)

	assert.Equal(t, "Umzug", canonical.Title)
	assert.Equal(t, "a", canonical.FieldProvenance[FieldTitle])
}

func TestSynthesize_DescriptionsLongestNonEmpty(t *testing.T) {
	a := event("a", "2026-02-14")
	a.Description = "Kurz."

	b := event("b", "2026-02-14")
	b.Description = "Der grosse Umzug zieht am Samstag durch die Stadt."
	b.ShortDescription = "Grosser Umzug am Samstag."

	c, byID := clusterOf(true, a, b)
	canonical := Synthesize(c, byID, matching.DefaultConfig().Canonical)

	assert.Equal(t, b.Description, canonical.Description)
	assert.Equal(t, "b", canonical.FieldProvenance[FieldDescription])
	assert.Equal(t, b.ShortDescription, canonical.ShortDescription)
	assert.Equal(t, "b", canonical.FieldProvenance[FieldShortDescription])
}

func TestSynthesize_HighlightsUnionFirstSeenOrder(t *testing.T) {
	a := event("a", "2026-02-14")
	a.Highlights = []string{"Guggenmusik", "Kinderprogramm"}

	b := event("b", "2026-02-14")
	b.Highlights = []string{"Kinderprogramm", "Narrenbaum"}

	c, byID := clusterOf(true, a, b)
	canonical := Synthesize(c, byID, matching.DefaultConfig().Canonical)

	assert.Equal(t, []string{"Guggenmusik", "Kinderprogramm", "Narrenbaum"}, canonical.Highlights)
	assert.Equal(t, ProvenanceUnion, canonical.FieldProvenance[FieldHighlights])
}

func TestSynthesize_LocationFromMostCompleteSource(t *testing.T) {
	a := event("a", "2026-02-14")
	a.Location = ingestion.Location{City: "Elzach"}

	b := event("b", "2026-02-14")
	b.Location = ingestion.Location{
		Name:    "Festhalle",
		City:    "Elzach",
		Street:  "Hauptstrasse 12",
		Zipcode: "79215",
	}

	c, byID := clusterOf(true, a, b)
	canonical := Synthesize(c, byID, matching.DefaultConfig().Canonical)

	assert.Equal(t, "Festhalle", canonical.Location.Name)
	assert.Equal(t, "Hauptstrasse 12", canonical.Location.Street)
	assert.Equal(t, "79215", canonical.Location.Zipcode)
	assert.Equal(t, "b", canonical.FieldProvenance[FieldLocationName])
	assert.Equal(t, "b", canonical.FieldProvenance[FieldLocationStreet])

	// Empty district contributes no provenance entry.
	_, ok := canonical.FieldProvenance[FieldLocationDistrict]
	assert.False(t, ok)
}

func TestSynthesize_CityModeWithSourceTypeTieBreak(t *testing.T) {
	a := event("a", "2026-02-14")
	a.SourceType = ingestion.SourceTypeArtikel
	a.Location.City = "Waldkirch"

	b := event("b", "2026-02-14")
	b.SourceType = ingestion.SourceTypeTerminliste
	b.Location.City = "Elzach"

	c, byID := clusterOf(true, a, b)
	canonical := Synthesize(c, byID, matching.DefaultConfig().Canonical)

	// One vote each: the terminliste source wins the tie.
	assert.Equal(t, "Elzach", canonical.Location.City)
	assert.Equal(t, "b", canonical.FieldProvenance[FieldLocationCity])

	// A clear majority beats the preference list.
	d := event("d", "2026-02-14")
	d.SourceType = ingestion.SourceTypeAnzeige
	d.Location.City = "Waldkirch"

	c, byID = clusterOf(true, a, b, d)
	canonical = Synthesize(c, byID, matching.DefaultConfig().Canonical)

	assert.Equal(t, "Waldkirch", canonical.Location.City)
	assert.Equal(t, "a", canonical.FieldProvenance[FieldLocationCity])
}

func TestSynthesize_GeoHighestConfidence(t *testing.T) {
	a := event("a", "2026-02-14")
	a.Geo = &ingestion.Geo{Latitude: 48.17, Longitude: 8.07, Confidence: 0.80}

	b := event("b", "2026-02-14")
	b.Geo = &ingestion.Geo{Latitude: 48.1701, Longitude: 8.0699, Confidence: 0.95}

	c, byID := clusterOf(true, a, b)
	canonical := Synthesize(c, byID, matching.DefaultConfig().Canonical)

	require.NotNil(t, canonical.Geo)
	assert.InDelta(t, 0.95, canonical.Geo.Confidence, 1e-9)
	assert.Equal(t, "b", canonical.FieldProvenance[FieldGeo])

	// The canonical owns a copy, not the source's pointer.
	canonical.Geo.Confidence = 0
	assert.InDelta(t, 0.95, b.Geo.Confidence, 1e-9)
}

func TestSynthesize_DateAndCategoryUnion(t *testing.T) {
	a := event("a", "2026-02-13")
	a.Dates = append(a.Dates, ingestion.EventDate{Date: "2026-02-14", EndDate: "2026-02-15"})
	a.Categories = []string{"fasnacht"}

	b := event("b", "2026-02-14")
	b.Categories = []string{"umzug", "fasnacht"}

	c, byID := clusterOf(true, a, b)
	canonical := Synthesize(c, byID, matching.DefaultConfig().Canonical)

	assert.Equal(t, []string{"2026-02-13", "2026-02-14", "2026-02-15"}, canonical.Dates)
	assert.Equal(t, []string{"fasnacht", "umzug"}, canonical.Categories)
	assert.Equal(t, ProvenanceUnion, canonical.FieldProvenance[FieldDates])
	assert.Equal(t, ProvenanceUnion, canonical.FieldProvenance[FieldCategories])
}

func TestSynthesize_FlagsAreORed(t *testing.T) {
	a := event("a", "2026-02-14")
	a.IsFamilyEvent = true

	b := event("b", "2026-02-14")
	b.AdmissionFree = true

	c, byID := clusterOf(true, a, b)
	canonical := Synthesize(c, byID, matching.DefaultConfig().Canonical)

	assert.True(t, canonical.IsFamilyEvent)
	assert.True(t, canonical.AdmissionFree)
	assert.False(t, canonical.IsChildFocused)
	assert.Equal(t, ProvenanceUnion, canonical.FieldProvenance[FieldIsFamilyEvent])

	_, ok := canonical.FieldProvenance[FieldIsChildFocused]
	assert.False(t, ok)
}

func TestSynthesize_ClusterMetadata(t *testing.T) {
	a := event("a", "2026-02-14")
	b := event("b", "2026-02-14")

	c, byID := clusterOf(false, a, b)
	c.FlagReason = cluster.FlagLowSimilarity
	c.Edges = []cluster.Edge{{IDA: "a", IDB: "b", Weight: 0.76, Tier: matching.TierAI}}

	canonical := Synthesize(c, byID, matching.DefaultConfig().Canonical)

	assert.Equal(t, 2, canonical.SourceCount)
	assert.Equal(t, []string{"a", "b"}, canonical.SourceIDs)
	assert.InDelta(t, 0.76, canonical.MatchConfidence, 1e-9)
	assert.True(t, canonical.NeedsReview)
	assert.Equal(t, cluster.FlagLowSimilarity, canonical.FlagReason)
	assert.True(t, canonical.AIAssisted)
}

func TestSynthesize_SingletonConfidenceIsOne(t *testing.T) {
	a := event("a", "2026-02-14")

	c, byID := clusterOf(true, a)
	canonical := Synthesize(c, byID, matching.DefaultConfig().Canonical)

	assert.Equal(t, 1, canonical.SourceCount)
	assert.InDelta(t, 1.0, canonical.MatchConfidence, 1e-9)
	assert.False(t, canonical.NeedsReview)
}

func TestSynthesize_FieldStrategyOverride(t *testing.T) {
	cfg := matching.DefaultConfig().Canonical
	cfg.FieldStrategies = map[string]string{FieldTitle: StrategyLongest}

	a := event("a", "2026-02-14")
	a.Title = "Umzug 2026" // exactly at the substantial cutoff

	b := event("b", "2026-02-14")
	b.Title = "Ball in der Halle" // longer, also substantial

	c, byID := clusterOf(true, a, b)
	canonical := Synthesize(c, byID, cfg)

	assert.Equal(t, "Ball in der Halle", canonical.Title)
}
