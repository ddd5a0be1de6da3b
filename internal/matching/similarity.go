package matching

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// editRatio returns the normalized edit similarity of two strings in [0,1]:
// 1 - levenshtein(a,b) / max(len(a), len(b)), measured in runes.
func editRatio(a, b string) float64 {
	if a == b {
		return 1.0
	}

	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}

	if longest == 0 {
		return 1.0
	}

	dist := levenshtein.ComputeDistance(a, b)

	return 1.0 - float64(dist)/float64(longest)
}

// TokenSortRatio tokenizes both strings on whitespace, sorts the tokens, and
// returns the edit ratio of the rejoined strings. Word order stops mattering:
// "umzug fasnacht elzach" and "elzach fasnacht umzug" score 1.0.
func TokenSortRatio(a, b string) float64 {
	return editRatio(sortTokens(a), sortTokens(b))
}

// TokenSetRatio compares the token sets of both strings, tolerating extra
// tokens on either side. It scores the pairwise edit ratios of the sorted
// intersection against intersection-plus-remainder combinations and returns
// the maximum, so a listing title that embeds the article title still scores
// high.
func TokenSetRatio(a, b string) float64 {
	tokensA := tokenSet(a)
	tokensB := tokenSet(b)

	if len(tokensA) == 0 || len(tokensB) == 0 {
		if len(tokensA) == len(tokensB) {
			return 1.0
		}

		return 0.0
	}

	var common, onlyA, onlyB []string

	for t := range tokensA {
		if _, ok := tokensB[t]; ok {
			common = append(common, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}

	for t := range tokensB {
		if _, ok := tokensA[t]; !ok {
			onlyB = append(onlyB, t)
		}
	}

	sort.Strings(common)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	base := strings.Join(common, " ")
	combinedA := strings.TrimSpace(base + " " + strings.Join(onlyA, " "))
	combinedB := strings.TrimSpace(base + " " + strings.Join(onlyB, " "))

	best := editRatio(base, combinedA)

	if r := editRatio(base, combinedB); r > best {
		best = r
	}

	if r := editRatio(combinedA, combinedB); r > best {
		best = r
	}

	return best
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)

	return strings.Join(tokens, " ")
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range strings.Fields(s) {
		set[t] = struct{}{}
	}

	return set
}
