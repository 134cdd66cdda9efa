package search

import (
	"regexp"
	"strings"
)

// synonymGroups maps a canonical term to its accepted variants, per spec
// §4.8. parseQuery expands any matched variant back to the canonical term
// so scoring sees one consistent keyword.
var synonymGroups = map[string][]string{
	"happy":         {"happy", "smiling", "joyful", "cheerful"},
	"outdoor":       {"outdoor", "field", "grass", "sky"},
	"archery range": {"archery range", "archery", "targets", "range"},
}

var canonicalBySynonym = buildCanonicalIndex(synonymGroups)

func buildCanonicalIndex(groups map[string][]string) map[string]string {
	out := make(map[string]string)
	for canonical, variants := range groups {
		for _, v := range variants {
			out[strings.ToLower(v)] = canonical
		}
	}
	return out
}

var negationPattern = regexp.MustCompile(`(?i)\b(?:no|without|exclude)\s+([a-z][a-z\- ]*)|-([a-z][a-z\-]*)`)

var wordPattern = regexp.MustCompile(`[a-zA-Z][a-zA-Z\-]*`)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "of": {}, "in": {}, "on": {}, "at": {},
	"with": {}, "and": {}, "or": {}, "to": {}, "for": {}, "me": {}, "show": {},
	"find": {}, "images": {}, "photos": {}, "pictures": {}, "is": {}, "are": {},
}

// ParseQuery extracts negations ("no X", "without X", "exclude X", "-X")
// into NegativeKeywords and remaining salient words into Keywords, applying
// the synonym table to both.
func ParseQuery(text string) Criteria {
	negatives := make(map[string]struct{})
	for _, m := range negationPattern.FindAllStringSubmatch(text, -1) {
		term := strings.TrimSpace(m[1])
		if term == "" {
			term = strings.TrimSpace(m[2])
		}
		if term == "" {
			continue
		}
		negatives[canonicalize(term)] = struct{}{}
	}

	withoutNegations := negationPattern.ReplaceAllString(text, " ")

	positives := make(map[string]struct{})
	for _, w := range wordPattern.FindAllString(withoutNegations, -1) {
		lower := strings.ToLower(w)
		if _, stop := stopWords[lower]; stop {
			continue
		}
		if len(lower) <= 2 {
			continue
		}
		positives[canonicalize(lower)] = struct{}{}
	}

	return Criteria{
		Keywords:         setToSlice(positives),
		NegativeKeywords: setToSlice(negatives),
	}
}

func canonicalize(term string) string {
	if canonical, ok := canonicalBySynonym[strings.ToLower(term)]; ok {
		return canonical
	}
	return term
}

func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
