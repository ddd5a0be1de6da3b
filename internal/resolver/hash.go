package resolver

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/dublette-io/dublette/internal/ingestion"
	"github.com/dublette-io/dublette/internal/matching"
)

// ContentHash fingerprints a pair over its matching-relevant fields only:
// normalized title, descriptions, city, venue name, sorted concrete dates,
// and sorted categories. Volatile fields (ingestion timestamps, file ids,
// batch metadata) are excluded so a re-delivered pair hashes identically.
// The two events are serialized in canonical id order, so hash(a,b) equals
// hash(b,a).
func ContentHash(a, b *ingestion.SourceEvent) string {
	if idA, _ := matching.OrderPair(a.ID, b.ID); idA != a.ID {
		a, b = b, a
	}

	h := sha256.New()
	h.Write([]byte(eventFingerprint(a)))
	h.Write([]byte{0})
	h.Write([]byte(eventFingerprint(b)))

	return hex.EncodeToString(h.Sum(nil))
}

func eventFingerprint(e *ingestion.SourceEvent) string {
	categories := append([]string(nil), e.Categories...)
	sort.Strings(categories)

	parts := []string{
		e.TitleNorm,
		e.ShortDescriptionNorm,
		e.DescriptionNorm,
		strings.ToLower(strings.TrimSpace(e.Location.City)),
		e.LocationNameNorm,
		strings.Join(e.ExpandedDates(), ","),
		strings.Join(categories, ","),
	}

	return strings.Join(parts, "|")
}
