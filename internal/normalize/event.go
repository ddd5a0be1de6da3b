package normalize

import "github.com/dublette-io/dublette/internal/ingestion"

// ApplyToEvent computes the normalized projections of a source event in
// place. Titles and descriptions go through the full pipeline including
// source-specific prefix stripping; the venue name skips prefix stripping
// because publisher prefixes only decorate titles.
func (n *Normalizer) ApplyToEvent(e *ingestion.SourceEvent) {
	e.TitleNorm = n.Normalize(e.Title, e.SourceCode)
	e.ShortDescriptionNorm = n.Normalize(e.ShortDescription, e.SourceCode)
	e.DescriptionNorm = n.Normalize(e.Description, e.SourceCode)
	e.LocationNameNorm = n.Normalize(e.Location.Name, "")
}
