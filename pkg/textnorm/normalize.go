// Package textnorm provides text canonicalization for comparing track metadata.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	// Parenthesized or bracketed fragments that start with a known
	// annotation keyword, e.g. "(feat. X)" or "[Remix]".
	annotationRegex = regexp.MustCompile(`(?i)[\(\[]\s*(?:feat\.?|featuring|remix|edit|mix)[^\)\]]*[\)\]]`)
	// Fragments that mention a variant tag anywhere, e.g. "(Radio Edit)"
	// or "(Club Mix)". Used when deriving the cleaned query title.
	variantTagRegex = regexp.MustCompile(`(?i)[\(\[][^\)\]]*\b(?:feat\.?|featuring|ft\.?|remix|edit|mix|remaster(?:ed)?|version)\b[^\)\]]*[\)\]]`)
	punctRegex      = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// Normalize lower-cases s, folds diacritics, collapses whitespace runs to
// single spaces and trims the ends. It is total: any input (including the
// empty string) yields a valid result, and the function is idempotent.
func Normalize(s string) string {
	s = norm.NFKD.String(s)

	var b strings.Builder
	for _, r := range s {
		if !unicode.IsMark(r) {
			b.WriteRune(r)
		}
	}
	s = b.String()

	s = strings.ToLower(s)
	s = whitespaceRegex.ReplaceAllString(s, " ")

	return strings.TrimSpace(s)
}

// StripAnnotations normalizes s and additionally removes bracketed
// feat/remix/edit/mix fragments and all remaining punctuation, leaving only
// letters, digits and single spaces. Used for fuzzy comparison of titles,
// where "Song (Radio Edit)" should compare equal to variants of "Song".
func StripAnnotations(s string) string {
	s = Normalize(s)
	s = annotationRegex.ReplaceAllString(s, " ")
	s = punctRegex.ReplaceAllString(s, " ")
	s = whitespaceRegex.ReplaceAllString(s, " ")

	return strings.TrimSpace(s)
}

// StripVariantTags removes bracketed remix/edit/feat fragments from a display
// title while preserving its casing, e.g. "One More Time (Radio Edit)" becomes
// "One More Time". Remix and edit releases frequently have no dedicated cover
// art, so lookups retry with the tag stripped to recover the original release.
func StripVariantTags(s string) string {
	s = variantTagRegex.ReplaceAllString(s, " ")
	s = whitespaceRegex.ReplaceAllString(s, " ")

	return strings.TrimSpace(s)
}
