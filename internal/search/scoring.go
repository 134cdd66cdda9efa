package search

import (
	"regexp"
	"strings"
	"sync"

	"github.com/maukemana/lumalens/internal/store"
)

// wordMatcherCache compiles one whole-word, case-insensitive regexp per
// distinct term and reuses it across candidates, since the same query terms
// are matched against every candidate record.
type wordMatcherCache struct {
	mu       sync.Mutex
	compiled map[string]*regexp.Regexp
}

func newWordMatcherCache() *wordMatcherCache {
	return &wordMatcherCache{compiled: make(map[string]*regexp.Regexp)}
}

func (c *wordMatcherCache) matches(term, text string) bool {
	term = strings.TrimSpace(term)
	if term == "" || text == "" {
		return false
	}

	c.mu.Lock()
	re, ok := c.compiled[term]
	if !ok {
		re = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(term) + `\b`)
		c.compiled[term] = re
	}
	c.mu.Unlock()

	return re.MatchString(text)
}

// scoreDetail is the per-record scoring breakdown, useful for diagnostics
// and tests.
type scoreDetail struct {
	Record store.ImageRecord
	Score  int
}

const (
	weightKeyword     = 10
	weightTitle       = 8
	weightCaption     = 6
	weightDescription = 4
	weightAlbumHier   = 3
	weightAlbumName   = 2
	weightSemanticSlot = 5
)

// scoreRecord computes crit's relevance score against r, per spec §4.8's
// weighted whole-word matching table.
func scoreRecord(matcher *wordMatcherCache, r store.ImageRecord, crit Criteria) int {
	score := 0

	for _, kw := range crit.Keywords {
		if matchesAny(matcher, kw, r.Keywords) {
			score += weightKeyword
		}
		if matcher.matches(kw, r.Title) {
			score += weightTitle
		}
		if matcher.matches(kw, r.Caption) {
			score += weightCaption
		}
		if matcher.matches(kw, r.Description) {
			score += weightDescription
		}
		if matchesAny(matcher, kw, r.AlbumHierarchy) {
			score += weightAlbumHier
		}
		if matcher.matches(kw, r.AlbumName) {
			score += weightAlbumName
		}
	}

	descAndKeywords := r.Description + " " + strings.Join(r.Keywords, " ")
	albumFields := r.AlbumName + " " + strings.Join(r.AlbumHierarchy, " ") + " " + r.AlbumPath

	for _, slot := range []string{crit.PeopleType, crit.Activity, crit.Mood, crit.Location} {
		if slot != "" && matcher.matches(slot, descAndKeywords) {
			score += weightSemanticSlot
		}
	}
	if crit.AlbumTerm != "" && matcher.matches(crit.AlbumTerm, albumFields) {
		score += weightSemanticSlot
	}

	return score
}

func matchesAny(matcher *wordMatcherCache, term string, haystack []string) bool {
	for _, h := range haystack {
		if matcher.matches(term, h) {
			return true
		}
	}
	return false
}

// passesRequireAll reports whether r whole-word-matches every positive
// keyword somewhere in {description, keywords, title, caption}.
func passesRequireAll(matcher *wordMatcherCache, r store.ImageRecord, keywords []string) bool {
	haystack := r.Description + " " + strings.Join(r.Keywords, " ") + " " + r.Title + " " + r.Caption
	for _, kw := range keywords {
		if !matcher.matches(kw, haystack) {
			return false
		}
	}
	return true
}

// matchesAnyNegative reports whether r whole-word-matches any negative
// keyword in {description, keywords, title, caption}.
func matchesAnyNegative(matcher *wordMatcherCache, r store.ImageRecord, negatives []string) bool {
	haystack := r.Description + " " + strings.Join(r.Keywords, " ") + " " + r.Title + " " + r.Caption
	for _, neg := range negatives {
		if matcher.matches(neg, haystack) {
			return true
		}
	}
	return false
}
