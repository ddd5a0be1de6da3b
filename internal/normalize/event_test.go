package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dublette-io/dublette/internal/ingestion"
)

func TestApplyToEvent(t *testing.T) {
	rules := DefaultRules()
	rules.SourcePrefixes["bz"] = []string{"BZ-Tipp: "}

	n := New(rules)

	e := &ingestion.SourceEvent{
		ID:               "bz-1",
		SourceCode:       "bz",
		Title:            "BZ-Tipp: Jahreskonzert des Musikvereins!",
		ShortDescription: "Großes Konzert",
		Description:      "Der Musikverein lädt zum Fasnet.",
		Location:         ingestion.Location{Name: "Festhalle Elzach"},
	}

	n.ApplyToEvent(e)

	assert.Equal(t, "konzert des musikvereins", e.TitleNorm)
	assert.Equal(t, "grosses konzert", e.ShortDescriptionNorm)
	assert.Equal(t, "der musikverein laedt zum fasnacht", e.DescriptionNorm)
	assert.Equal(t, "festhalle elzach", e.LocationNameNorm)

	// Raw fields stay untouched.
	assert.Equal(t, "BZ-Tipp: Jahreskonzert des Musikvereins!", e.Title)
}

func TestApplyToEvent_VenueNameSkipsPrefixStripping(t *testing.T) {
	rules := DefaultRules()
	rules.SourcePrefixes["bz"] = []string{"Festhalle"}

	n := New(rules)

	e := &ingestion.SourceEvent{
		SourceCode: "bz",
		Location:   ingestion.Location{Name: "Festhalle Elzach"},
	}

	n.ApplyToEvent(e)

	assert.Equal(t, "festhalle elzach", e.LocationNameNorm,
		"publisher prefixes apply to titles, not venue names")
}

func TestApplyToEvent_EmptyFields(t *testing.T) {
	n := New(DefaultRules())

	e := &ingestion.SourceEvent{ID: "x-1", SourceCode: "x", Title: "Konzert"}
	n.ApplyToEvent(e)

	assert.Equal(t, "konzert", e.TitleNorm)
	assert.Empty(t, e.DescriptionNorm)
	assert.Empty(t, e.LocationNameNorm)
}
