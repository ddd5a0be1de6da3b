package synthesis

import (
	"sort"

	"github.com/dublette-io/dublette/internal/cluster"
	"github.com/dublette-io/dublette/internal/ingestion"
	"github.com/dublette-io/dublette/internal/matching"
)

// Built-in strategy names, overridable per field through
// matching.CanonicalConfig.FieldStrategies.
const (
	// StrategyLongest picks the longest non-empty value.
	StrategyLongest = "longest"

	// StrategyLongestSubstantial picks the longest value of at least ten
	// characters, falling back to the longest overall. Default for titles:
	// a headline fragment like "Umzug" must not beat a full title.
	StrategyLongestSubstantial = "longest_substantial"

	// StrategyMode picks the most frequent value, ties broken by the
	// configured source-type preference. Default for the city field.
	StrategyMode = "mode"
)

// substantialMinLength is the cutoff for StrategyLongestSubstantial.
const substantialMinLength = 10

// Synthesize builds the canonical record for one cluster. Deterministic:
// members are iterated in sorted id order, so ties in every field strategy
// resolve to the lexically smallest contributing source.
func Synthesize(c *cluster.Cluster, byID map[string]*ingestion.SourceEvent, cfg matching.CanonicalConfig) *CanonicalEvent {
	members := make([]*ingestion.SourceEvent, 0, len(c.Members))

	for _, id := range c.Members {
		if e, ok := byID[id]; ok {
			members = append(members, e)
		}
	}

	canonical := &CanonicalEvent{
		SourceIDs:       append([]string(nil), c.Members...),
		SourceCount:     len(c.Members),
		MatchConfidence: c.MeanEdgeWeight(),
		NeedsReview:     !c.Valid,
		FlagReason:      c.FlagReason,
		AIAssisted:      c.AIAssisted(),
		FieldProvenance: make(map[string]string),
		Version:         1,
	}

	if len(members) == 0 {
		return canonical
	}

	synthesizeTitle(canonical, members, cfg)
	synthesizeDescriptions(canonical, members)
	synthesizeHighlights(canonical, members)
	synthesizeLocation(canonical, members)
	synthesizeCity(canonical, members, cfg)
	synthesizeGeo(canonical, members)
	synthesizeUnions(canonical, members)
	synthesizeFlags(canonical, members)

	return canonical
}

// SynthesizeAll synthesizes every cluster, preserving cluster order.
func SynthesizeAll(clusters []*cluster.Cluster, byID map[string]*ingestion.SourceEvent, cfg matching.CanonicalConfig) []*CanonicalEvent {
	canonicals := make([]*CanonicalEvent, 0, len(clusters))

	for _, c := range clusters {
		canonicals = append(canonicals, Synthesize(c, byID, cfg))
	}

	return canonicals
}

func strategyFor(cfg matching.CanonicalConfig, field, builtin string) string {
	if name, ok := cfg.FieldStrategies[field]; ok && name != "" {
		return name
	}

	return builtin
}

func synthesizeTitle(canonical *CanonicalEvent, members []*ingestion.SourceEvent, cfg matching.CanonicalConfig) {
	strategy := strategyFor(cfg, FieldTitle, StrategyLongestSubstantial)

	var best *ingestion.SourceEvent

	for _, e := range members {
		if e.Title == "" {
			continue
		}

		if best == nil || preferTitle(e.Title, best.Title, strategy) {
			best = e
		}
	}

	if best != nil {
		canonical.Title = best.Title
		canonical.FieldProvenance[FieldTitle] = best.ID
	}
}

// preferTitle reports whether candidate should replace current under the
// given strategy. Strict comparison keeps the first seen value on ties.
func preferTitle(candidate, current, strategy string) bool {
	if strategy == StrategyLongestSubstantial {
		candidateOK := len([]rune(candidate)) >= substantialMinLength
		currentOK := len([]rune(current)) >= substantialMinLength

		if candidateOK != currentOK {
			return candidateOK
		}
	}

	return len([]rune(candidate)) > len([]rune(current))
}

func synthesizeDescriptions(canonical *CanonicalEvent, members []*ingestion.SourceEvent) {
	for _, e := range members {
		if len([]rune(e.ShortDescription)) > len([]rune(canonical.ShortDescription)) {
			canonical.ShortDescription = e.ShortDescription
			canonical.FieldProvenance[FieldShortDescription] = e.ID
		}

		if len([]rune(e.Description)) > len([]rune(canonical.Description)) {
			canonical.Description = e.Description
			canonical.FieldProvenance[FieldDescription] = e.ID
		}
	}
}

func synthesizeHighlights(canonical *CanonicalEvent, members []*ingestion.SourceEvent) {
	seen := make(map[string]struct{})

	for _, e := range members {
		for _, h := range e.Highlights {
			if _, ok := seen[h]; ok {
				continue
			}

			seen[h] = struct{}{}
			canonical.Highlights = append(canonical.Highlights, h)
		}
	}

	if len(canonical.Highlights) > 0 {
		canonical.FieldProvenance[FieldHighlights] = ProvenanceUnion
	}
}

// synthesizeLocation fills name, district, street, and zipcode from the
// member with the most populated location fields. City is handled separately
// by the mode strategy.
func synthesizeLocation(canonical *CanonicalEvent, members []*ingestion.SourceEvent) {
	var best *ingestion.SourceEvent

	bestCount := -1

	for _, e := range members {
		if count := locationFieldCount(e.Location); count > bestCount {
			best, bestCount = e, count
		}
	}

	if best == nil || bestCount == 0 {
		return
	}

	canonical.Location.Name = best.Location.Name
	canonical.Location.District = best.Location.District
	canonical.Location.Street = best.Location.Street
	canonical.Location.Zipcode = best.Location.Zipcode

	for field, value := range map[string]string{
		FieldLocationName:     best.Location.Name,
		FieldLocationDistrict: best.Location.District,
		FieldLocationStreet:   best.Location.Street,
		FieldLocationZipcode:  best.Location.Zipcode,
	} {
		if value != "" {
			canonical.FieldProvenance[field] = best.ID
		}
	}
}

func locationFieldCount(loc ingestion.Location) int {
	count := 0

	for _, v := range []string{loc.Name, loc.City, loc.District, loc.Street, loc.Zipcode} {
		if v != "" {
			count++
		}
	}

	return count
}

// synthesizeCity picks the most frequently named city. Ties go to the
// earliest source type in the configured preference list; a final tie falls
// back to member id order.
func synthesizeCity(canonical *CanonicalEvent, members []*ingestion.SourceEvent, cfg matching.CanonicalConfig) {
	counts := make(map[string]int)

	for _, e := range members {
		if e.Location.City != "" {
			counts[e.Location.City]++
		}
	}

	if len(counts) == 0 {
		return
	}

	modeCount := 0
	for _, n := range counts {
		if n > modeCount {
			modeCount = n
		}
	}

	var best *ingestion.SourceEvent

	for _, e := range members {
		if e.Location.City == "" || counts[e.Location.City] < modeCount {
			continue
		}

		if best == nil || typeRank(e.SourceType, cfg.SourceTypePreference) < typeRank(best.SourceType, cfg.SourceTypePreference) {
			best = e
		}
	}

	canonical.Location.City = best.Location.City
	canonical.FieldProvenance[FieldLocationCity] = best.ID
}

// typeRank returns the index of a source type in the preference list, or the
// list length for unlisted types.
func typeRank(st ingestion.SourceType, preference []string) int {
	for i, name := range preference {
		if string(st) == name {
			return i
		}
	}

	return len(preference)
}

func synthesizeGeo(canonical *CanonicalEvent, members []*ingestion.SourceEvent) {
	var best *ingestion.SourceEvent

	for _, e := range members {
		if e.Geo == nil {
			continue
		}

		if best == nil || e.Geo.Confidence > best.Geo.Confidence {
			best = e
		}
	}

	if best == nil {
		return
	}

	geo := *best.Geo
	canonical.Geo = &geo
	canonical.FieldProvenance[FieldGeo] = best.ID
}

func synthesizeUnions(canonical *CanonicalEvent, members []*ingestion.SourceEvent) {
	dates := make(map[string]struct{})
	categories := make(map[string]struct{})

	for _, e := range members {
		for _, d := range e.ExpandedDates() {
			dates[d] = struct{}{}
		}

		for _, c := range e.Categories {
			categories[c] = struct{}{}
		}
	}

	canonical.Dates = sortedKeys(dates)
	canonical.FieldProvenance[FieldDates] = ProvenanceUnion

	if len(categories) > 0 {
		canonical.Categories = sortedKeys(categories)
		canonical.FieldProvenance[FieldCategories] = ProvenanceUnion
	}
}

func synthesizeFlags(canonical *CanonicalEvent, members []*ingestion.SourceEvent) {
	for _, e := range members {
		canonical.IsFamilyEvent = canonical.IsFamilyEvent || e.IsFamilyEvent
		canonical.IsChildFocused = canonical.IsChildFocused || e.IsChildFocused
		canonical.AdmissionFree = canonical.AdmissionFree || e.AdmissionFree
	}

	if canonical.IsFamilyEvent {
		canonical.FieldProvenance[FieldIsFamilyEvent] = ProvenanceUnion
	}

	if canonical.IsChildFocused {
		canonical.FieldProvenance[FieldIsChildFocused] = ProvenanceUnion
	}

	if canonical.AdmissionFree {
		canonical.FieldProvenance[FieldAdmissionFree] = ProvenanceUnion
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
