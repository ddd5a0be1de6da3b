package normalize

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// umlautReplacer expands German umlauts and eszett the way telephone books
// do, so "Fasnachtsumzüge" and "Fasnachtsumzuege" normalize identically.
var umlautReplacer = strings.NewReplacer(
	"ä", "ae",
	"ö", "oe",
	"ü", "ue",
	"ß", "ss",
)

// Normalizer folds raw event text into a canonical comparable form.
// Thread-safe for concurrent use (immutable after construction).
//
// The normalization pipeline, in order:
//  1. Unicode NFC composition
//  2. casefold + trim
//  3. umlaut expansion (ae/oe/ue/ss)
//  4. punctuation removal, keeping intra-word hyphens and spaces
//  5. whitespace collapse
//  6. source-specific prefix stripping (longest configured prefix wins)
//  7. dialect synonym replacement per token
//
// Prefix stripping runs before synonym replacement: a publisher prefix like
// "bz-tipp" must be gone before its tokens could collide with a synonym.
// The result is deterministic and idempotent.
type Normalizer struct {
	// prefixes maps a source code to its normalized prefixes, longest first.
	prefixes map[string][]string

	// synonyms maps a variant token to its canonical token.
	synonyms map[string]string
}

// New compiles a rule set into a Normalizer. Configured prefixes are passed
// through the same base pipeline as event text so they match in normalized
// space regardless of how they are written in the rules file.
func New(rules *Rules) *Normalizer {
	n := &Normalizer{
		prefixes: make(map[string][]string, len(rules.SourcePrefixes)),
		synonyms: make(map[string]string),
	}

	for source, raw := range rules.SourcePrefixes {
		normalized := make([]string, 0, len(raw))

		for _, p := range raw {
			if base := baseNormalize(p); base != "" {
				normalized = append(normalized, base)
			}
		}

		// Longest match wins.
		sort.Slice(normalized, func(i, j int) bool {
			if len(normalized[i]) != len(normalized[j]) {
				return len(normalized[i]) > len(normalized[j])
			}

			return normalized[i] < normalized[j]
		})

		n.prefixes[strings.ToLower(source)] = normalized
	}

	for canonical, variants := range rules.Synonyms {
		canonicalNorm := baseNormalize(canonical)

		for _, v := range variants {
			variantNorm := baseNormalize(v)
			if variantNorm == "" || variantNorm == canonicalNorm {
				continue
			}

			n.synonyms[variantNorm] = canonicalNorm
		}
	}

	return n
}

// Normalize returns the canonical form of raw for the given source code.
func (n *Normalizer) Normalize(raw, sourceCode string) string {
	s := baseNormalize(raw)
	if s == "" {
		return ""
	}

	s = n.stripPrefix(s, strings.ToLower(sourceCode))

	return n.replaceSynonyms(s)
}

// baseNormalize applies the source-independent steps 1-5 of the pipeline.
func baseNormalize(raw string) string {
	s := norm.NFC.String(raw)
	s = strings.ToLower(strings.TrimSpace(s))
	s = umlautReplacer.Replace(s)
	s = stripPunctuation(s)

	return collapseWhitespace(s)
}

// stripPunctuation removes every rune that is not a letter, digit, space, or
// hyphen. Hyphens survive only between word characters; edge hyphens are
// trimmed during whitespace collapse.
func stripPunctuation(s string) string {
	var b strings.Builder

	b.Grow(len(s))

	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(' ')
		}
	}

	return b.String()
}

// collapseWhitespace squeezes runs of whitespace into single spaces and trims
// hyphens left dangling at token edges by punctuation removal.
func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	out := fields[:0]

	for _, f := range fields {
		f = strings.Trim(f, "-")
		if f == "" {
			continue
		}

		out = append(out, f)
	}

	return strings.Join(out, " ")
}

// stripPrefix removes the longest configured prefix for the source, if any.
func (n *Normalizer) stripPrefix(s, sourceCode string) string {
	for _, p := range n.prefixes[sourceCode] {
		if strings.HasPrefix(s, p) {
			stripped := strings.TrimSpace(strings.TrimPrefix(s, p))
			if stripped != "" {
				return stripped
			}
		}
	}

	return s
}

// replaceSynonyms rewrites dialect variant tokens to their canonical token.
func (n *Normalizer) replaceSynonyms(s string) string {
	if len(n.synonyms) == 0 {
		return s
	}

	tokens := strings.Fields(s)
	for i, t := range tokens {
		if canonical, ok := n.synonyms[t]; ok {
			tokens[i] = canonical
		}
	}

	return strings.Join(tokens, " ")
}
