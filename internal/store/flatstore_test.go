package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatStore_PutFindBackupRollback(t *testing.T) {
	fs := NewFlatStore(t.TempDir())
	require.NoError(t, fs.Initialize())

	_, err := fs.PutImage(sampleRecord("X", "k1"), HandlingSkip)
	require.NoError(t, err)

	r, ok, err := fs.FindBySourceKey("k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "X", r.AlbumKey)

	backupPath, err := fs.Backup(time.Unix(1700000000, 0))
	require.NoError(t, err)

	_, err = fs.PutImage(sampleRecord("X", "k2"), HandlingSkip)
	require.NoError(t, err)

	all, err := fs.AllRecords()
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, fs.Rollback(backupPath))

	all, err = fs.AllRecords()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestFlatStore_SearchByIndex(t *testing.T) {
	fs := NewFlatStore(t.TempDir())
	require.NoError(t, fs.Initialize())

	_, err := fs.PutImage(sampleRecord("X", "k1"), HandlingSkip)
	require.NoError(t, err)

	albums, err := fs.SearchByIndex([]string{"sunset"})
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, albums)
}
