package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dublette-io/dublette/internal/ingestion"
)

// testEvent builds a minimal valid event for scorer tests.
func testEvent(id, source, title string, dates ...ingestion.EventDate) *ingestion.SourceEvent {
	return &ingestion.SourceEvent{
		ID:         id,
		SourceCode: source,
		SourceType: ingestion.SourceTypeTerminliste,
		Title:      title,
		TitleNorm:  title,
		Dates:      dates,
	}
}

func onDate(date, startTime string) ingestion.EventDate {
	return ingestion.EventDate{Date: date, StartTime: startTime}
}

func TestScoreDate_IdenticalSingleDate(t *testing.T) {
	cfg := DefaultConfig().Date
	a := testEvent("a", "bz", "umzug", onDate("2025-02-15", "14:00"))
	b := testEvent("b", "wzo", "umzug", onDate("2025-02-15", "14:00"))

	assert.InDelta(t, 1.0, ScoreDate(a, b, cfg), 1e-9)
}

func TestScoreDate_DisjointDates(t *testing.T) {
	cfg := DefaultConfig().Date
	a := testEvent("a", "bz", "umzug", onDate("2025-02-15", "14:00"))
	b := testEvent("b", "wzo", "umzug", onDate("2025-02-22", "14:00"))

	assert.InDelta(t, 0.0, ScoreDate(a, b, cfg), 1e-9)
}

func TestScoreDate_TimeProximityBands(t *testing.T) {
	cfg := DefaultConfig().Date

	tests := []struct {
		name       string
		timeA      string
		timeB      string
		wantFactor float64
	}{
		{name: "within tolerance", timeA: "14:00", timeB: "14:30", wantFactor: 1.0},
		{name: "close", timeA: "14:00", timeB: "15:15", wantFactor: 0.7},
		{name: "far", timeA: "14:00", timeB: "16:00", wantFactor: 0.3},
		{name: "gap penalty", timeA: "10:00", timeB: "19:30", wantFactor: 0.15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := testEvent("a", "bz", "umzug", onDate("2025-02-15", tt.timeA))
			b := testEvent("b", "wzo", "umzug", onDate("2025-02-15", tt.timeB))

			// Jaccard is 1.0 here, so the score is the factor itself.
			assert.InDelta(t, tt.wantFactor, ScoreDate(a, b, cfg), 1e-9)
		})
	}
}

func TestScoreDate_MissingTimeIsNeutral(t *testing.T) {
	cfg := DefaultConfig().Date
	a := testEvent("a", "bz", "umzug", onDate("2025-02-15", "14:00"))
	b := testEvent("b", "wzo", "umzug", onDate("2025-02-15", ""))

	assert.InDelta(t, 1.0, ScoreDate(a, b, cfg), 1e-9)
}

func TestScoreDate_TimelessSharedDateSkipped(t *testing.T) {
	cfg := DefaultConfig().Date

	// The earlier shared date carries no times; the comparison must fall
	// through to the later date, where the starts are ten hours apart.
	a := testEvent("a", "bz", "ball",
		onDate("2025-02-13", ""), onDate("2025-02-14", "10:00"))
	b := testEvent("b", "wzo", "ball",
		onDate("2025-02-13", ""), onDate("2025-02-14", "20:00"))

	// Jaccard is 1.0, so the score is the gap-penalty factor.
	assert.InDelta(t, cfg.TimeGapPenaltyFactor, ScoreDate(a, b, cfg), 1e-9)
}

func TestScoreDate_OneSidedTimelessSharedDateSkipped(t *testing.T) {
	cfg := DefaultConfig().Date

	a := testEvent("a", "bz", "ball",
		onDate("2025-02-13", "11:00"), onDate("2025-02-14", "14:00"))
	b := testEvent("b", "wzo", "ball",
		onDate("2025-02-13", ""), onDate("2025-02-14", "14:15"))

	// 02-13 has a time on one side only; 02-14 decides, within tolerance.
	assert.InDelta(t, 1.0, ScoreDate(a, b, cfg), 1e-9)
}

func TestScoreDate_RangeOverlapsSingleDay(t *testing.T) {
	cfg := DefaultConfig().Date
	festival := testEvent("a", "bz", "fest",
		ingestion.EventDate{Date: "2025-02-14", EndDate: "2025-02-16"})
	listing := testEvent("b", "wzo", "fest", onDate("2025-02-15", ""))

	// Shared {15}, union {14,15,16}: Jaccard 1/3, neutral time factor.
	assert.InDelta(t, 1.0/3.0, ScoreDate(festival, listing, cfg), 1e-9)
}

func TestScoreGeo_MissingCoordinatesNeutral(t *testing.T) {
	cfg := DefaultConfig().Geo
	a := testEvent("a", "bz", "umzug", onDate("2025-02-15", ""))
	b := testEvent("b", "wzo", "umzug", onDate("2025-02-15", ""))
	b.Geo = &ingestion.Geo{Latitude: 48.17, Longitude: 8.07, Confidence: 0.95}

	assert.InDelta(t, cfg.NeutralScore, ScoreGeo(a, b, cfg), 1e-9)
}

func TestScoreGeo_LowConfidenceNeutral(t *testing.T) {
	cfg := DefaultConfig().Geo
	a := testEvent("a", "bz", "umzug", onDate("2025-02-15", ""))
	a.Geo = &ingestion.Geo{Latitude: 48.17, Longitude: 8.07, Confidence: 0.5}
	b := testEvent("b", "wzo", "umzug", onDate("2025-02-15", ""))
	b.Geo = &ingestion.Geo{Latitude: 48.17, Longitude: 8.07, Confidence: 0.95}

	assert.InDelta(t, cfg.NeutralScore, ScoreGeo(a, b, cfg), 1e-9)
}

func TestScoreGeo_SamePointScoresOne(t *testing.T) {
	cfg := DefaultConfig().Geo
	a := testEvent("a", "bz", "umzug", onDate("2025-02-15", ""))
	a.Geo = &ingestion.Geo{Latitude: 48.1724, Longitude: 8.0719, Confidence: 0.95}
	b := testEvent("b", "wzo", "umzug", onDate("2025-02-15", ""))
	b.Geo = &ingestion.Geo{Latitude: 48.1724, Longitude: 8.0719, Confidence: 0.95}

	assert.InDelta(t, 1.0, ScoreGeo(a, b, cfg), 1e-9)
}

func TestScoreGeo_BeyondMaxDistanceScoresZero(t *testing.T) {
	cfg := DefaultConfig().Geo
	// Freiburg and Stuttgart, well over 10 km apart.
	a := testEvent("a", "bz", "umzug", onDate("2025-02-15", ""))
	a.Geo = &ingestion.Geo{Latitude: 47.9990, Longitude: 7.8421, Confidence: 0.95}
	b := testEvent("b", "wzo", "umzug", onDate("2025-02-15", ""))
	b.Geo = &ingestion.Geo{Latitude: 48.7758, Longitude: 9.1829, Confidence: 0.95}

	assert.InDelta(t, 0.0, ScoreGeo(a, b, cfg), 1e-9)
}

func TestScoreGeo_VenueNameMismatchPenalty(t *testing.T) {
	cfg := DefaultConfig().Geo

	build := func(id, venue string) *ingestion.SourceEvent {
		e := testEvent(id, id, "umzug", onDate("2025-02-15", ""))
		e.Geo = &ingestion.Geo{Latitude: 48.1724, Longitude: 8.0719, Confidence: 0.95}
		e.LocationNameNorm = venue

		return e
	}

	t.Run("different venues halve the score", func(t *testing.T) {
		a := build("a", "stadthalle")
		b := build("b", "vereinsheim")

		assert.InDelta(t, cfg.VenueMismatchFactor, ScoreGeo(a, b, cfg), 1e-9)
	})

	t.Run("prefix relationship is agreement", func(t *testing.T) {
		a := build("a", "festhalle")
		b := build("b", "festhalle elzach")

		assert.InDelta(t, 1.0, ScoreGeo(a, b, cfg), 1e-9)
	})

	t.Run("missing venue name skips the check", func(t *testing.T) {
		a := build("a", "")
		b := build("b", "vereinsheim")

		assert.InDelta(t, 1.0, ScoreGeo(a, b, cfg), 1e-9)
	})

	t.Run("exactly at the venue radius is not penalized", func(t *testing.T) {
		a := build("a", "stadthalle")
		b := build("b", "vereinsheim")
		b.Geo = &ingestion.Geo{Latitude: 48.1769, Longitude: 8.0719, Confidence: 0.95}

		// The check applies strictly inside the radius, so a pair sitting
		// exactly on it keeps the distance-only score.
		distance := haversineKM(a.Geo.Latitude, a.Geo.Longitude, b.Geo.Latitude, b.Geo.Longitude)
		cfg.VenueMatchDistanceKM = distance

		assert.InDelta(t, 1.0-distance/cfg.MaxDistanceKM, ScoreGeo(a, b, cfg), 1e-9)
	})
}

func TestScoreTitle_OutsideBlendBand(t *testing.T) {
	cfg := DefaultConfig().Title

	t.Run("high token-sort passes through", func(t *testing.T) {
		a := testEvent("a", "bz", "fasnacht umzug elzach")
		b := testEvent("b", "wzo", "fasnacht umzug elzach")

		assert.InDelta(t, 1.0, ScoreTitle(a, b, cfg), 1e-9)
	})

	t.Run("low token-sort passes through", func(t *testing.T) {
		a := testEvent("a", "bz", "konzert")
		b := testEvent("b", "wzo", "wochenmarkt muensterplatz freiburg")

		assert.Less(t, ScoreTitle(a, b, cfg), cfg.BlendLower)
	})
}

func TestScoreTitle_BlendBandMixesTokenSet(t *testing.T) {
	cfg := DefaultConfig().Title
	a := testEvent("a", "bz", "fasnacht umzug elzach")
	b := testEvent("b", "wzo", "fasnacht umzug elzach lockt tausende besucher")

	sortRatio := TokenSortRatio(a.TitleNorm, b.TitleNorm)
	setRatio := TokenSetRatio(a.TitleNorm, b.TitleNorm)

	assert.GreaterOrEqual(t, sortRatio, cfg.BlendLower)
	assert.LessOrEqual(t, sortRatio, cfg.BlendUpper)

	want := cfg.PrimaryWeight*sortRatio + cfg.SecondaryWeight*setRatio
	assert.InDelta(t, want, ScoreTitle(a, b, cfg), 1e-9)
}

func TestScoreTitle_CrossSourceTypeLeansOnTokenSet(t *testing.T) {
	cfg := DefaultConfig().Title
	a := testEvent("a", "bz", "fasnacht umzug elzach")
	a.SourceType = ingestion.SourceTypeArtikel
	b := testEvent("b", "wzo", "fasnacht umzug elzach lockt tausende besucher")

	sortRatio := TokenSortRatio(a.TitleNorm, b.TitleNorm)
	setRatio := TokenSetRatio(a.TitleNorm, b.TitleNorm)

	want := cfg.CrossSourceType.PrimaryWeight*sortRatio + cfg.CrossSourceType.SecondaryWeight*setRatio
	got := ScoreTitle(a, b, cfg)

	assert.InDelta(t, want, got, 1e-9)

	// Cross-type blending must help this embedded-title case.
	sameType := testEvent("c", "bz", "fasnacht umzug elzach")
	assert.Greater(t, got, ScoreTitle(sameType, b, cfg))
}

func TestScoreDescription(t *testing.T) {
	withDesc := func(id, desc string) *ingestion.SourceEvent {
		e := testEvent(id, id, "umzug")
		e.DescriptionNorm = desc

		return e
	}

	t.Run("both missing is neutral", func(t *testing.T) {
		assert.InDelta(t, 0.5, ScoreDescription(withDesc("a", ""), withDesc("b", "")), 1e-9)
	})

	t.Run("one missing is mildly negative", func(t *testing.T) {
		assert.InDelta(t, 0.4, ScoreDescription(withDesc("a", "grosser umzug"), withDesc("b", "")), 1e-9)
	})

	t.Run("identical descriptions score one", func(t *testing.T) {
		got := ScoreDescription(withDesc("a", "grosser umzug durch die stadt"), withDesc("b", "grosser umzug durch die stadt"))
		assert.InDelta(t, 1.0, got, 1e-9)
	})

	t.Run("short description fallback", func(t *testing.T) {
		a := testEvent("a", "bz", "umzug")
		a.ShortDescriptionNorm = "umzug durch die stadt"
		b := withDesc("b", "umzug durch die stadt")

		assert.InDelta(t, 1.0, ScoreDescription(a, b), 1e-9)
	})
}

func TestScorers_Symmetry(t *testing.T) {
	cfg := DefaultConfig()

	a := testEvent("a", "bz", "fasnacht umzug elzach", onDate("2025-02-15", "14:00"))
	a.Geo = &ingestion.Geo{Latitude: 48.17, Longitude: 8.07, Confidence: 0.95}
	a.DescriptionNorm = "grosser umzug durch die stadt"

	b := testEvent("b", "wzo", "umzug elzach", onDate("2025-02-15", "15:00"))
	b.Geo = &ingestion.Geo{Latitude: 48.18, Longitude: 8.08, Confidence: 0.9}
	b.DescriptionNorm = "narren ziehen durch elzach"

	assert.InDelta(t, ScoreDate(a, b, cfg.Date), ScoreDate(b, a, cfg.Date), 1e-9)
	assert.InDelta(t, ScoreGeo(a, b, cfg.Geo), ScoreGeo(b, a, cfg.Geo), 1e-9)
	assert.InDelta(t, ScoreTitle(a, b, cfg.Title), ScoreTitle(b, a, cfg.Title), 1e-9)
	assert.InDelta(t, ScoreDescription(a, b), ScoreDescription(b, a), 1e-9)
}
