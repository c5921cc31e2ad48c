// Package textmatch provides the word-overlap similarity shared by
// keyframe identification and transcript correlation.
package textmatch

import (
	"sort"
	"strings"
)

// minTokenLen filters connective noise ("a", "of", "is") out of the
// token sets before comparison.
const minTokenLen = 3

// Tokenize lower-cases the text, splits it on whitespace, and keeps
// tokens longer than two characters. Duplicates are collapsed.
func Tokenize(text string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, field := range strings.Fields(strings.ToLower(text)) {
		field = strings.Trim(field, ".,!?;:\"'()[]{}")
		if len(field) >= minTokenLen {
			tokens[field] = struct{}{}
		}
	}
	return tokens
}

// Jaccard computes |intersection| / |union| over the token sets of the
// two texts. Defined as 0 when either set is empty.
func Jaccard(a, b string) float64 {
	return JaccardSets(Tokenize(a), Tokenize(b))
}

// JaccardSets computes the Jaccard index over pre-tokenized sets.
func JaccardSets(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for token := range a {
		if _, ok := b[token]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// Intersection returns the shared tokens of the two texts in sorted
// order, so repeated runs produce identical match explanations.
func Intersection(a, b string) []string {
	return IntersectionSets(Tokenize(a), Tokenize(b))
}

// IntersectionSets returns the shared tokens of two pre-tokenized
// sets, sorted.
func IntersectionSets(a, b map[string]struct{}) []string {
	var shared []string
	for token := range a {
		if _, ok := b[token]; ok {
			shared = append(shared, token)
		}
	}
	sort.Strings(shared)
	return shared
}
