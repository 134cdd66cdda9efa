// Package search implements the SearchEngine from spec §4.8: relevance
// scoring over Store album shards, negative-keyword and require-all
// filtering, natural-language query parsing, and an optional
// vision-verification post-filter.
package search

import (
	"context"
	"sort"

	"github.com/maukemana/lumalens/internal/ports"
	"github.com/maukemana/lumalens/internal/store"
)

// VerifyConfig is the persisted vision-verification configuration from
// spec §4.8.
type VerifyConfig struct {
	Enabled   bool
	BatchSize int
	MaxImages int
	ModelID   string
}

const (
	defaultBatchSize = 5
	defaultMaxImages = 30
)

func (c VerifyConfig) batchSize() int {
	if c.BatchSize > 0 {
		return c.BatchSize
	}
	return defaultBatchSize
}

func (c VerifyConfig) maxImages() int {
	if c.MaxImages > 0 {
		return c.MaxImages
	}
	return defaultMaxImages
}

// Result is one scored, optionally vision-verified search hit.
type Result struct {
	Record store.ImageRecord
	Score  int
}

// Outcome is Engine.Search's return value.
type Outcome struct {
	Results          []Result
	VerificationRan  bool
	VerificationFailed bool
}

// Engine scores and filters candidates drawn from a Store.
type Engine struct {
	Store     store.Interface
	LLM       ports.LLMPort
	PhotoHost ports.PhotoHostPort
	Verify    VerifyConfig
}

// New constructs an Engine bound to s and an optional llm/photoHost for
// vision-verification (pass llm=nil to disable even if Verify.Enabled).
func New(s store.Interface, llm ports.LLMPort, photoHost ports.PhotoHostPort, verify VerifyConfig) *Engine {
	return &Engine{Store: s, LLM: llm, PhotoHost: photoHost, Verify: verify}
}

// Search scores every candidate album's records against crit, filters,
// sorts, truncates, and — if enabled — runs the vision-verification
// post-filter.
func (e *Engine) Search(ctx context.Context, crit Criteria, query string) (Outcome, error) {
	if crit.isEmpty() {
		return e.all(ctx, crit)
	}

	queryTokens := append(append([]string{}, crit.Keywords...), crit.NegativeKeywords...)
	for _, s := range []string{crit.PeopleType, crit.Activity, crit.Mood, crit.Location, crit.AlbumTerm} {
		if s != "" {
			queryTokens = append(queryTokens, s)
		}
	}

	albumKeys, err := e.Store.SearchByIndex(queryTokens)
	if err != nil {
		return Outcome{}, err
	}

	matcher := newWordMatcherCache()
	var results []Result

	for _, albumKey := range albumKeys {
		records, err := e.Store.LoadAlbum(albumKey)
		if err != nil {
			return Outcome{}, err
		}
		for _, r := range records {
			if crit.RequireAllKeywords && len(crit.Keywords) > 0 && !passesRequireAll(matcher, r, crit.Keywords) {
				continue
			}
			if len(crit.NegativeKeywords) > 0 && matchesAnyNegative(matcher, r, crit.NegativeKeywords) {
				continue
			}
			score := scoreRecord(matcher, r, crit)
			if score == 0 {
				continue
			}
			results = append(results, Result{Record: r, Score: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Record.LastUpdatedAt.After(results[j].Record.LastUpdatedAt)
	})

	if max := crit.maxResults(); len(results) > max {
		results = results[:max]
	}

	if !e.Verify.Enabled || e.LLM == nil || e.PhotoHost == nil || len(results) == 0 {
		return Outcome{Results: results}, nil
	}

	verified, ok := e.runVerification(ctx, results, query)
	if !ok {
		return Outcome{Results: results, VerificationRan: true, VerificationFailed: true}, nil
	}
	return Outcome{Results: verified, VerificationRan: true}, nil
}

// all lists every record in the store, most recently updated first,
// truncated to crit.maxResults — the getAllImages tool's plain-listing path,
// bypassing relevance scoring entirely since there is no query to score against.
func (e *Engine) all(ctx context.Context, crit Criteria) (Outcome, error) {
	records, err := e.Store.AllRecords()
	if err != nil {
		return Outcome{}, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].LastUpdatedAt.After(records[j].LastUpdatedAt)
	})

	if max := crit.maxResults(); len(records) > max {
		records = records[:max]
	}

	results := make([]Result, len(records))
	for i, r := range records {
		results[i] = Result{Record: r}
	}
	return Outcome{Results: results}, nil
}

// runVerification applies the vision-verification post-filter per spec
// §4.8: up to maxImages top-scored records, batched, each batch checked
// against the LLM; failures degrade gracefully (caller keeps the
// unverified ranking).
func (e *Engine) runVerification(ctx context.Context, ranked []Result, query string) ([]Result, bool) {
	limit := e.Verify.maxImages()
	if limit > len(ranked) {
		limit = len(ranked)
	}
	candidates := ranked[:limit]

	kept := make([]bool, len(candidates))
	batchSize := e.Verify.batchSize()

	for start := 0; start < len(candidates); start += batchSize {
		end := start + batchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]

		images := make([]ports.ImageInput, len(batch))
		for i, c := range batch {
			b, err := e.PhotoHost.FetchImage(ctx, c.Record.SourceURL)
			if err != nil {
				return nil, false
			}
			images[i] = ports.ImageInput{Bytes: b, MimeType: "image/jpeg"}
		}

		res, err := e.LLM.VerifyImages(ctx, images, query, e.Verify.ModelID)
		if err != nil {
			return nil, false
		}
		for i := range batch {
			if _, ok := res.MatchedIndices[i]; ok {
				kept[start+i] = true
			}
		}
	}

	out := make([]Result, 0, len(candidates))
	for i, k := range kept {
		if k {
			out = append(out, candidates[i])
		}
	}
	return out, true
}
