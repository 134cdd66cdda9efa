package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *AlbumStore {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Initialize())
	return s
}

func sampleRecord(albumKey, sourceKey string) ImageRecord {
	return ImageRecord{
		SourceImageKey: sourceKey,
		Filename:       sourceKey + ".jpg",
		AlbumKey:       albumKey,
		AlbumName:      "Album " + albumKey,
		AlbumPath:      "/" + albumKey,
		AlbumHierarchy: []string{albumKey},
		Description:    "a sunset over the mountains",
		Keywords:       []string{"Sunset", "sunset", "Mountains"},
	}
}

func TestPutImage_AddThenSkipUpdateReplace(t *testing.T) {
	s := newTestStore(t)

	res, err := s.PutImage(sampleRecord("X", "k1"), HandlingSkip)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAdded, res.Outcome)
	assert.Equal(t, []string{"Sunset", "Mountains"}, res.Record.Keywords)

	skip := sampleRecord("X", "k1")
	skip.Description = "changed"
	res, err = s.PutImage(skip, HandlingSkip)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Equal(t, "a sunset over the mountains", res.Record.Description)

	upd := sampleRecord("X", "k1")
	upd.Description = "updated description"
	upd.Keywords = nil
	res, err = s.PutImage(upd, HandlingUpdate)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, res.Outcome)
	assert.Equal(t, "updated description", res.Record.Description)
	assert.Equal(t, []string{"Sunset", "Mountains"}, res.Record.Keywords) // empty incoming keywords not merged

	rep := sampleRecord("X", "k1")
	rep.Description = "replaced"
	rep.Keywords = []string{"new"}
	res, err = s.PutImage(rep, HandlingReplace)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReplaced, res.Outcome)
	assert.Equal(t, "replaced", res.Record.Description)
	assert.Equal(t, []string{"new"}, res.Record.Keywords)
}

func TestRegistryConsistency(t *testing.T) {
	s := newTestStore(t)

	_, err := s.PutImage(sampleRecord("X", "k1"), HandlingSkip)
	require.NoError(t, err)
	_, err = s.PutImage(sampleRecord("Y", "k2"), HandlingSkip)
	require.NoError(t, err)

	r, ok, err := s.FindBySourceKey("k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "X", r.AlbumKey)

	r, ok, err = s.FindBySourceKey("k2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Y", r.AlbumKey)

	_, ok, err = s.FindBySourceKey("missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSearchByIndex_KeywordAndDescription(t *testing.T) {
	s := newTestStore(t)
	_, err := s.PutImage(sampleRecord("X", "k1"), HandlingSkip)
	require.NoError(t, err)

	albums, err := s.SearchByIndex([]string{"sunset"})
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, albums)

	albums, err = s.SearchByIndex([]string{"mountains"})
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, albums)

	albums, err = s.SearchByIndex([]string{"nonexistent"})
	require.NoError(t, err)
	assert.Empty(t, albums)
}

func TestIndexRebuild_EmptyTokenDropped(t *testing.T) {
	s := newTestStore(t)
	_, err := s.PutImage(sampleRecord("X", "k1"), HandlingSkip)
	require.NoError(t, err)

	// Replace with a record carrying none of the old keywords.
	rep := sampleRecord("X", "k1")
	rep.Keywords = []string{"desert"}
	rep.Description = "a dry desert landscape"
	_, err = s.PutImage(rep, HandlingReplace)
	require.NoError(t, err)

	albums, err := s.SearchByIndex([]string{"sunset"})
	require.NoError(t, err)
	assert.Empty(t, albums, "stale keyword must be dropped once its album set empties")

	albums, err = s.SearchByIndex([]string{"desert"})
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, albums)
}

func TestGetAlbumStatus(t *testing.T) {
	s := newTestStore(t)
	_, err := s.PutImage(sampleRecord("X", "k1"), HandlingSkip)
	require.NoError(t, err)
	_, err = s.PutImage(sampleRecord("X", "k2"), HandlingSkip)
	require.NoError(t, err)

	status, err := s.GetAlbumStatus("X", 4)
	require.NoError(t, err)
	assert.Equal(t, 2, status.Processed)
	assert.Equal(t, 4, status.Total)
	assert.InDelta(t, 50.0, status.ProgressPercent, 0.001)
	assert.False(t, status.Complete)

	status, err = s.GetAlbumStatus("X", 2)
	require.NoError(t, err)
	assert.True(t, status.Complete)
}

func TestPutImage_RejectsMissingAlbumKey(t *testing.T) {
	s := newTestStore(t)
	_, err := s.PutImage(ImageRecord{SourceImageKey: "k1"}, HandlingSkip)
	assert.Error(t, err)
}

func TestLoadAlbum_PersistsAcrossNewStoreInstance(t *testing.T) {
	dir := t.TempDir()
	s1, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, s1.Initialize())
	_, err = s1.PutImage(sampleRecord("X", "k1"), HandlingSkip)
	require.NoError(t, err)

	s2, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, s2.Initialize())

	r, ok, err := s2.FindBySourceKey("k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "X", r.AlbumKey)

	albums, err := s2.SearchByIndex([]string{"sunset"})
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, albums)
}
