package matching

import (
	"math"
	"strings"
	"time"

	"github.com/dublette-io/dublette/internal/ingestion"
)

const (
	// earthRadiusKM is the mean Earth radius used by the haversine formula.
	earthRadiusKM = 6371.0

	// descriptionNeutralScore applies when neither event has a description:
	// absence of evidence, not evidence of absence.
	descriptionNeutralScore = 0.5

	// descriptionOneMissingScore applies when exactly one event has a
	// description, a slightly negative signal.
	descriptionOneMissingScore = 0.4

	minutesPerHour = 60
)

// ScoreDate scores date overlap in [0,1]: the Jaccard similarity of the two
// expanded date sets, attenuated by a start-time proximity factor on the
// earliest shared date. Disjoint date sets score 0 regardless of times.
func ScoreDate(a, b *ingestion.SourceEvent, cfg DateConfig) float64 {
	datesA := a.ExpandedDates()
	datesB := b.ExpandedDates()

	if len(datesA) == 0 || len(datesB) == 0 {
		return 0
	}

	setB := make(map[string]struct{}, len(datesB))
	for _, d := range datesB {
		setB[d] = struct{}{}
	}

	var shared []string

	for _, d := range datesA {
		if _, ok := setB[d]; ok {
			shared = append(shared, d)
		}
	}

	if len(shared) == 0 {
		return 0
	}

	union := len(datesA) + len(datesB) - len(shared)
	jaccard := float64(len(shared)) / float64(union)

	return jaccard * timeProximityFactor(a, b, shared, cfg)
}

// timeProximityFactor compares start times on the earliest shared date where
// both sides carry one. Shared dates with a missing time on either side are
// skipped; if no shared date has times on both sides the factor is neutral
// (1.0): listings frequently omit times and that must not penalize the date
// signal.
func timeProximityFactor(a, b *ingestion.SourceEvent, shared []string, cfg DateConfig) float64 {
	// shared is sorted ascending (ExpandedDates sorts).
	for _, date := range shared {
		startA, okA := a.StartTimeOn(date)
		startB, okB := b.StartTimeOn(date)

		if !okA || !okB {
			continue
		}

		delta := absMinutes(startA, startB)

		switch {
		case delta <= cfg.TimeToleranceMinutes:
			return 1.0
		case delta <= cfg.TimeCloseMinutes:
			return cfg.CloseFactor
		case delta <= cfg.TimeGapPenaltyHours*minutesPerHour:
			return cfg.FarFactor
		default:
			return cfg.TimeGapPenaltyFactor
		}
	}

	return 1.0
}

// absMinutes returns the absolute difference of two HH:MM times in minutes.
// Unparseable times were rejected at validation and count as 00:00 here.
func absMinutes(a, b string) int {
	delta := clockMinutes(a) - clockMinutes(b)
	if delta < 0 {
		return -delta
	}

	return delta
}

func clockMinutes(hhmm string) int {
	t, err := time.Parse(ingestion.TimeLayout, hhmm)
	if err != nil {
		return 0
	}

	return t.Hour()*minutesPerHour + t.Minute()
}

// ScoreGeo scores geographic proximity in [0,1]. Missing or low-confidence
// coordinates on either side yield the neutral score. Otherwise the score
// decays linearly with haversine distance up to MaxDistanceKM, with a
// venue-name penalty when two nearby events carry clearly different venue
// names (same square, different halls).
func ScoreGeo(a, b *ingestion.SourceEvent, cfg GeoConfig) float64 {
	if a.Geo == nil || b.Geo == nil {
		return cfg.NeutralScore
	}

	if a.Geo.Confidence < cfg.MinConfidence || b.Geo.Confidence < cfg.MinConfidence {
		return cfg.NeutralScore
	}

	distance := haversineKM(a.Geo.Latitude, a.Geo.Longitude, b.Geo.Latitude, b.Geo.Longitude)

	score := 1.0 - distance/cfg.MaxDistanceKM
	if score < 0 {
		score = 0
	}

	if distance < cfg.VenueMatchDistanceKM && venueNamesDisagree(a, b, cfg) {
		score *= cfg.VenueMismatchFactor
	}

	return score
}

// venueNamesDisagree reports whether both events name a venue and the names
// neither resemble each other nor share a prefix relationship ("festhalle"
// vs "festhalle elzach" is agreement, not disagreement).
func venueNamesDisagree(a, b *ingestion.SourceEvent, cfg GeoConfig) bool {
	nameA := a.LocationNameNorm
	nameB := b.LocationNameNorm

	if nameA == "" || nameB == "" {
		return false
	}

	if strings.HasPrefix(nameA, nameB) || strings.HasPrefix(nameB, nameA) {
		return false
	}

	return TokenSortRatio(nameA, nameB) < cfg.VenueNameThreshold
}

// haversineKM returns the great-circle distance between two WGS84 points.
func haversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusKM * math.Asin(math.Sqrt(h))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// ScoreTitle scores normalized title similarity in [0,1] with token-sort
// ratio as the primary signal. Inside the mid band where token-sort alone is
// unreliable, the score blends in token-set ratio; cross-source-type pairs
// lean harder on token-set because headlines embed listing titles.
func ScoreTitle(a, b *ingestion.SourceEvent, cfg TitleConfig) float64 {
	sortRatio := TokenSortRatio(a.TitleNorm, b.TitleNorm)

	if sortRatio < cfg.BlendLower || sortRatio > cfg.BlendUpper {
		return sortRatio
	}

	primary := cfg.PrimaryWeight
	secondary := cfg.SecondaryWeight

	if a.SourceType != b.SourceType {
		primary = cfg.CrossSourceType.PrimaryWeight
		secondary = cfg.CrossSourceType.SecondaryWeight
	}

	return primary*sortRatio + secondary*TokenSetRatio(a.TitleNorm, b.TitleNorm)
}

// ScoreDescription scores normalized description similarity in [0,1] via
// token-sort ratio. Both missing is neutral; exactly one missing is a mild
// negative signal.
func ScoreDescription(a, b *ingestion.SourceEvent) float64 {
	descA := bestDescription(a)
	descB := bestDescription(b)

	switch {
	case descA == "" && descB == "":
		return descriptionNeutralScore
	case descA == "" || descB == "":
		return descriptionOneMissingScore
	}

	return TokenSortRatio(descA, descB)
}

// bestDescription prefers the long description, falling back to the short one.
func bestDescription(e *ingestion.SourceEvent) string {
	if e.DescriptionNorm != "" {
		return e.DescriptionNorm
	}

	return e.ShortDescriptionNorm
}
