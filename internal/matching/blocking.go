package matching

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dublette-io/dublette/internal/ingestion"
)

// blockingGeoMinConfidence gates the geographic blocking key. Low-confidence
// coordinates would scatter an event across the wrong grid cells, so only
// solid extractions participate.
const blockingGeoMinConfidence = 0.80

// BlockingKeys returns the blocking keys of one event. Two key families:
//
//	dc|<date>|<city>      one per concrete date, city casefolded
//	dg|<date>|<lat>|<lon> one per concrete date, coordinates rounded to a
//	                      0.01 degree grid (about 1 km at this latitude)
//
// Range dates are expanded first so a multi-day festival shares keys with a
// single-day listing of any covered day. Events with neither city nor
// confident coordinates return no keys and stay singletons.
func BlockingKeys(e *ingestion.SourceEvent) []string {
	dates := e.ExpandedDates()
	if len(dates) == 0 {
		return nil
	}

	city := strings.ToLower(strings.TrimSpace(e.Location.City))
	useGeo := e.Geo != nil && e.Geo.Confidence >= blockingGeoMinConfidence

	keys := make([]string, 0, len(dates)*2)

	for _, date := range dates {
		if city != "" {
			keys = append(keys, "dc|"+date+"|"+city)
		}

		if useGeo {
			keys = append(keys, fmt.Sprintf("dg|%s|%.2f|%.2f",
				date, e.Geo.Latitude, e.Geo.Longitude))
		}
	}

	return keys
}

// CandidatePairs buckets events by blocking key and enumerates the unordered
// cross-source pairs within each bucket. Pairs of events from the same
// source are excluded: one publication does not duplicate itself within a
// batch. The result is deduplicated across buckets and sorted by (IDA, IDB)
// so downstream stages iterate in a stable order.
func CandidatePairs(events []*ingestion.SourceEvent) []Pair {
	buckets := make(map[string][]*ingestion.SourceEvent)

	for _, e := range events {
		for _, key := range BlockingKeys(e) {
			buckets[key] = append(buckets[key], e)
		}
	}

	byID := make(map[string]*ingestion.SourceEvent, len(events))
	for _, e := range events {
		byID[e.ID] = e
	}

	// Ids are opaque external strings, so the dedup key is the id tuple
	// itself rather than a joined string that a separator in an id could
	// corrupt.
	seen := make(map[[2]string]struct{})

	for _, bucket := range buckets {
		if len(bucket) < 2 {
			continue
		}

		for i := 0; i < len(bucket); i++ {
			for j := i + 1; j < len(bucket); j++ {
				a, b := bucket[i], bucket[j]
				if a.SourceCode == b.SourceCode {
					continue
				}

				idA, idB := OrderPair(a.ID, b.ID)
				seen[[2]string{idA, idB}] = struct{}{}
			}
		}
	}

	keys := make([][2]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}

		return keys[i][1] < keys[j][1]
	})

	pairs := make([]Pair, 0, len(keys))

	for _, k := range keys {
		pairs = append(pairs, Pair{A: byID[k[0]], B: byID[k[1]]})
	}

	return pairs
}

// PairReduction returns the percentage of the full n*(n-1)/2 comparison space
// that blocking eliminated, for run statistics.
func PairReduction(eventCount, candidateCount int) float64 {
	total := eventCount * (eventCount - 1) / 2
	if total == 0 {
		return 0
	}

	return 100.0 * (1.0 - float64(candidateCount)/float64(total))
}
