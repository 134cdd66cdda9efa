package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maukemana/lumalens/internal/ports"
	"github.com/maukemana/lumalens/internal/store"
)

func seedStore(t *testing.T) store.Interface {
	t.Helper()
	s, err := store.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Initialize())

	records := []store.ImageRecord{
		{
			SourceImageKey: "k1", AlbumKey: "X", AlbumName: "Summer Camp",
			AlbumPath: "/summer", AlbumHierarchy: []string{"summer"},
			Title: "Archery day", Description: "kids practicing archery at the range",
			Keywords: []string{"archery", "outdoor", "happy"},
		},
		{
			SourceImageKey: "k2", AlbumKey: "X", AlbumName: "Summer Camp",
			AlbumPath: "/summer", AlbumHierarchy: []string{"summer"},
			Title: "Rainy day indoors", Description: "kids playing board games inside on a rainy day",
			Keywords: []string{"indoor", "games"},
		},
		{
			SourceImageKey: "k3", AlbumKey: "Y", AlbumName: "Winter Trip",
			AlbumPath: "/winter", AlbumHierarchy: []string{"winter"},
			Title: "Snowball fight", Description: "children smiling in the snow",
			Keywords: []string{"snow", "joyful"},
			LastUpdatedAt: time.Now().Add(time.Hour),
		},
	}
	for _, r := range records {
		_, err := s.PutImage(r, store.HandlingSkip)
		require.NoError(t, err)
	}
	return s
}

func TestSearch_ScoresAndFilters(t *testing.T) {
	s := seedStore(t)
	eng := New(s, nil, nil, VerifyConfig{})

	out, err := eng.Search(context.Background(), Criteria{Keywords: []string{"archery"}}, "archery")
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "k1", out.Results[0].Record.SourceImageKey)
}

func TestSearch_NegativeKeywordExcludes(t *testing.T) {
	s := seedStore(t)
	eng := New(s, nil, nil, VerifyConfig{})

	out, err := eng.Search(context.Background(), Criteria{
		Keywords:         []string{"kids"},
		NegativeKeywords: []string{"archery"},
	}, "kids")
	require.NoError(t, err)
	for _, r := range out.Results {
		assert.NotEqual(t, "k1", r.Record.SourceImageKey, "record matching a negative keyword must be excluded")
	}
}

func TestSearch_RequireAllKeywords(t *testing.T) {
	s := seedStore(t)
	eng := New(s, nil, nil, VerifyConfig{})

	out, err := eng.Search(context.Background(), Criteria{
		Keywords:           []string{"archery", "outdoor"},
		RequireAllKeywords: true,
	}, "archery outdoor")
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "k1", out.Results[0].Record.SourceImageKey)
}

func TestSearch_SemanticSlotMatchesMood(t *testing.T) {
	s := seedStore(t)
	eng := New(s, nil, nil, VerifyConfig{})

	out, err := eng.Search(context.Background(), Criteria{Mood: "happy"}, "happy kids")
	require.NoError(t, err)
	require.NotEmpty(t, out.Results)
}

func TestSearch_VisionVerificationFiltersToMatched(t *testing.T) {
	s := seedStore(t)
	mockLLM := ports.NewMockLLM()
	mockLLM.VerifyFunc = func(images []ports.ImageInput, query, modelID string) (ports.VerifyResult, error) {
		return ports.VerifyResult{MatchedIndices: map[int]struct{}{0: {}}}, nil
	}
	mockHost := ports.NewMockPhotoHost()
	mockHost.Bytes[""] = []byte("fake-bytes")

	eng := New(s, mockLLM, mockHost, VerifyConfig{Enabled: true, BatchSize: 5, MaxImages: 10})
	out, err := eng.Search(context.Background(), Criteria{Keywords: []string{"kids"}}, "kids")
	require.NoError(t, err)
	assert.True(t, out.VerificationRan)
	assert.False(t, out.VerificationFailed)
	assert.LessOrEqual(t, len(out.Results), 1)
}

func TestSearch_VisionVerificationFailureDegradesGracefully(t *testing.T) {
	s := seedStore(t)
	mockLLM := ports.NewMockLLM()
	mockHost := ports.NewMockPhotoHost()
	mockHost.FetchErr = assertAnError

	eng := New(s, mockLLM, mockHost, VerifyConfig{Enabled: true})
	out, err := eng.Search(context.Background(), Criteria{Keywords: []string{"kids"}}, "kids")
	require.NoError(t, err)
	assert.True(t, out.VerificationRan)
	assert.True(t, out.VerificationFailed)
	assert.NotEmpty(t, out.Results, "must keep the unverified ranking on verification failure")
}

func TestParseQuery_ExtractsNegationsAndSynonyms(t *testing.T) {
	crit := ParseQuery("show me happy kids outdoor without archery")
	assert.Contains(t, crit.Keywords, "happy")
	assert.Contains(t, crit.Keywords, "outdoor")
	assert.Contains(t, crit.NegativeKeywords, "archery range")
}

var assertAnError = errNoBytes{}

type errNoBytes struct{}

func (errNoBytes) Error() string { return "no bytes" }
