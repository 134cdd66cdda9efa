package store

import (
	"regexp"
	"sort"
	"strings"
)

var tokenSplit = regexp.MustCompile(`[^a-z0-9]+`)

// stopWords are dropped from the description index; short and low-signal.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "with": {}, "that": {},
	"this": {}, "from": {}, "have": {}, "has": {}, "was": {}, "were": {},
	"not": {}, "but": {}, "you": {}, "your": {}, "his": {}, "her": {},
	"their": {}, "its": {}, "into": {}, "over": {}, "under": {}, "can": {},
	"will": {}, "out": {}, "off": {}, "onto": {}, "near": {}, "then": {},
}

// tokenizeDescription lowercases, splits on non-alphanumeric runs, and
// drops stop words and tokens of length ≤ 2, per spec §4.2.
func tokenizeDescription(text string) []string {
	lower := strings.ToLower(text)
	raw := tokenSplit.Split(lower, -1)
	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		if len(tok) <= 2 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// normalizeKeywords trims and deduplicates keywords case-insensitively,
// preserving first-seen original casing.
func normalizeKeywords(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		key := strings.ToLower(k)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, k)
	}
	return out
}

// invertedIndex holds the in-memory keyword→albumKeys and
// descriptionToken→albumKeys mappings. Authoritative data is the albums
// themselves; this index is a derived, rebuildable cache.
type invertedIndex struct {
	keywords     map[string]map[string]struct{}
	descriptions map[string]map[string]struct{}
}

func newInvertedIndex() *invertedIndex {
	return &invertedIndex{
		keywords:     make(map[string]map[string]struct{}),
		descriptions: make(map[string]map[string]struct{}),
	}
}

func (idx *invertedIndex) removeAlbum(albumKey string) {
	removeAlbumFrom(idx.keywords, albumKey)
	removeAlbumFrom(idx.descriptions, albumKey)
}

func removeAlbumFrom(m map[string]map[string]struct{}, albumKey string) {
	for token, albums := range m {
		delete(albums, albumKey)
		if len(albums) == 0 {
			delete(m, token)
		}
	}
}

// addAlbum indexes every record's keywords and description tokens under
// albumKey. Caller must have already called removeAlbum(albumKey) so the
// index reflects only the current contents.
func (idx *invertedIndex) addAlbum(albumKey string, records []ImageRecord) {
	for _, r := range records {
		for _, kw := range r.Keywords {
			token := strings.ToLower(kw)
			if token == "" {
				continue
			}
			addToken(idx.keywords, token, albumKey)
		}
		for _, tok := range tokenizeDescription(r.Description) {
			addToken(idx.descriptions, tok, albumKey)
		}
	}
}

func addToken(m map[string]map[string]struct{}, token, albumKey string) {
	set, ok := m[token]
	if !ok {
		set = make(map[string]struct{})
		m[token] = set
	}
	set[albumKey] = struct{}{}
}

// candidateAlbums returns the union of album sets across both indices for
// the given query tokens.
func (idx *invertedIndex) candidateAlbums(tokens []string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, t := range tokens {
		t = strings.ToLower(t)
		for a := range idx.keywords[t] {
			out[a] = struct{}{}
		}
		for a := range idx.descriptions[t] {
			out[a] = struct{}{}
		}
	}
	return out
}

func (idx *invertedIndex) toPersisted() searchIndex {
	si := searchIndex{
		Keywords:     make(map[string][]string, len(idx.keywords)),
		Descriptions: make(map[string][]string, len(idx.descriptions)),
	}
	for token, albums := range idx.keywords {
		si.Keywords[token] = setToSortedSlice(albums)
	}
	for token, albums := range idx.descriptions {
		si.Descriptions[token] = setToSortedSlice(albums)
	}
	return si
}

func setToSortedSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func fromPersisted(si searchIndex) *invertedIndex {
	idx := newInvertedIndex()
	for token, albums := range si.Keywords {
		set := make(map[string]struct{}, len(albums))
		for _, a := range albums {
			set[a] = struct{}{}
		}
		idx.keywords[token] = set
	}
	for token, albums := range si.Descriptions {
		set := make(map[string]struct{}, len(albums))
		for _, a := range albums {
			set[a] = struct{}{}
		}
		idx.descriptions[token] = set
	}
	return idx
}
