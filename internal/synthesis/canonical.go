// Package synthesis builds canonical event records from clusters.
//
// A canonical event represents one real-world event exactly once, assembled
// from the best information any contributing source supplied. Every field
// value either comes verbatim from one linked source or is the union of all
// sources' values; the provenance map records which.
package synthesis

import (
	"time"

	"github.com/dublette-io/dublette/internal/ingestion"
)

// ProvenanceUnion is the provenance sentinel for fields synthesized as the
// union of all contributing sources rather than taken from one of them.
const ProvenanceUnion = "union_all_sources"

// Canonical field names as they appear in the provenance map and in the
// field-strategy configuration.
const (
	FieldTitle            = "title"
	FieldShortDescription = "short_description"
	FieldDescription      = "description"
	FieldHighlights       = "highlights"
	FieldLocationName     = "location_name"
	FieldLocationCity     = "location_city"
	FieldLocationDistrict = "location_district"
	FieldLocationStreet   = "location_street"
	FieldLocationZipcode  = "location_zipcode"
	FieldGeo              = "geo"
	FieldDates            = "dates"
	FieldCategories       = "categories"
	FieldIsFamilyEvent    = "is_family_event"
	FieldIsChildFocused   = "is_child_focused"
	FieldAdmissionFree    = "admission_free"
)

type (
	// CanonicalEvent is the synthesized representation of one real-world
	// event. Identity is assigned by storage on insert; in-memory canonicals
	// carry ID zero until persisted.
	CanonicalEvent struct {
		ID int64

		Title            string
		ShortDescription string
		Description      string
		Highlights       []string

		Location ingestion.Location

		// Geo is nil when no contributing source had coordinates.
		Geo *ingestion.Geo

		Categories []string

		IsFamilyEvent  bool
		IsChildFocused bool
		AdmissionFree  bool

		// Dates is the union of all expanded concrete dates, sorted.
		Dates []string

		// SourceIDs lists the contributing source event ids, sorted. One
		// canonical_event_sources link is persisted per entry.
		SourceIDs []string

		SourceCount int

		// MatchConfidence is the mean intra-cluster edge weight, 1.0 for
		// singletons.
		MatchConfidence float64

		// NeedsReview is set when the cluster failed a coherence check.
		NeedsReview bool

		// FlagReason names the failed coherence check, empty otherwise.
		FlagReason string

		// AIAssisted is true when any contributing edge was decided by the
		// AI resolver.
		AIAssisted bool

		// FieldProvenance maps each synthesized field name to the source
		// event id that contributed it, or to ProvenanceUnion.
		FieldProvenance map[string]string

		Version   int
		CreatedAt time.Time
	}
)
