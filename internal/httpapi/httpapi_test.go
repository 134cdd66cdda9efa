package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maukemana/lumalens/internal/analysis"
	"github.com/maukemana/lumalens/internal/batch"
	"github.com/maukemana/lumalens/internal/bridge"
	"github.com/maukemana/lumalens/internal/config"
	"github.com/maukemana/lumalens/internal/duplicate"
	"github.com/maukemana/lumalens/internal/ports"
	"github.com/maukemana/lumalens/internal/search"
	"github.com/maukemana/lumalens/internal/store"
)

func newTestServer(t *testing.T) (*gin.Engine, *Dependencies) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dataDir := t.TempDir()
	albumStore, err := store.New(dataDir)
	require.NoError(t, err)
	require.NoError(t, albumStore.Initialize())

	flat := store.NewFlatStore(dataDir)
	require.NoError(t, flat.Initialize())

	llm := ports.NewMockLLM()
	photoHost := ports.NewMockPhotoHost()

	cfg := config.Default()
	cfg.DataDir = dataDir

	engine := search.New(albumStore, llm, photoHost, search.VerifyConfig{})

	deps := &Dependencies{
		Config:    cfg,
		Store:     albumStore,
		Flat:      flat,
		PhotoHost: photoHost,
		LLM:       llm,
		Analysis:  analysis.New(llm),
		Batch:     batch.NewManager(batchConfigFrom(cfg)),
		Search:    engine,
		Bridge:    bridge.New(llm, engine, "model-x", ""),
		Duplicate: duplicate.New(flat),
	}

	return Setup(deps), deps
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(b)
	} else {
		reader = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGetStatus_ReturnsImageCount(t *testing.T) {
	router, deps := newTestServer(t)
	_, err := deps.Store.PutImage(store.ImageRecord{
		SourceImageKey: "k1", AlbumKey: "X", AlbumName: "X", AlbumPath: "/x", AlbumHierarchy: []string{"x"},
	}, store.HandlingSkip)
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodGet, "/api/status", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"imageCount":1`)
}

func TestGetImages_Paginates(t *testing.T) {
	router, deps := newTestServer(t)
	for i := 0; i < 3; i++ {
		_, err := deps.Store.PutImage(store.ImageRecord{
			SourceImageKey: string(rune('a' + i)), AlbumKey: "X", AlbumName: "X", AlbumPath: "/x", AlbumHierarchy: []string{"x"},
		}, store.HandlingSkip)
		require.NoError(t, err)
	}

	rec := doJSON(t, router, http.MethodGet, "/api/images?page=1&limit=2", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []store.ImageRecord `json:"data"`
		Meta struct{ Total int } `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 2)
	assert.Equal(t, 3, resp.Meta.Total)
}

func TestSearch_ReturnsMatchingRecord(t *testing.T) {
	router, deps := newTestServer(t)
	_, err := deps.Store.PutImage(store.ImageRecord{
		SourceImageKey: "k1", AlbumKey: "X", AlbumName: "X", AlbumPath: "/x", AlbumHierarchy: []string{"x"},
		Description: "a sunset over the mountains", Keywords: []string{"sunset"},
	}, store.HandlingSkip)
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodGet, "/api/search?q=sunset", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sunset")
}

func TestChat_RejectsMissingMessage(t *testing.T) {
	router, _ := newTestServer(t)
	rec := doJSON(t, router, http.MethodPost, "/api/chat", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChat_ReturnsBridgeResponse(t *testing.T) {
	router, deps := newTestServer(t)
	_, err := deps.Store.PutImage(store.ImageRecord{
		SourceImageKey: "k1", AlbumKey: "X", AlbumName: "X", AlbumPath: "/x", AlbumHierarchy: []string{"x"},
		Description: "children having fun outdoors", Keywords: []string{"fun"},
	}, store.HandlingSkip)
	require.NoError(t, err)

	mock := deps.LLM.(*ports.MockLLM)
	mock.ToolLoopFunc = func(userText, systemInstruction string, tools []ports.ToolSchema, modelID string) (ports.ToolLoopResult, error) {
		return ports.ToolLoopResult{
			Blocks: []ports.ContentBlock{
				{Kind: ports.BlockToolCall, ToolCallID: "c1", ToolCallName: "searchByKeywords", ToolCallArgs: map[string]any{"keywords": []any{"fun"}}},
				{Kind: ports.BlockText, Text: "Here you go."},
			},
		}, nil
	}

	rec := doJSON(t, router, http.MethodPost, "/api/chat", map[string]any{"message": "find fun photos"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Here you go.")
	assert.Contains(t, rec.Body.String(), `"resultCount":1`)
}

func TestGetConfig_ReturnsTree(t *testing.T) {
	router, _ := newTestServer(t)
	rec := doJSON(t, router, http.MethodGet, "/api/config", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"serviceName"`)
}

func TestSetConfig_RejectsUnknownKey(t *testing.T) {
	router, _ := newTestServer(t)
	rec := doJSON(t, router, http.MethodPost, "/api/config", map[string]any{"key": "notARealKey", "value": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetConfig_UpdatesBatchTuning(t *testing.T) {
	router, deps := newTestServer(t)
	rec := doJSON(t, router, http.MethodPost, "/api/config", map[string]any{"key": "batch.maxConcurrentBatches", "value": 7})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7, deps.Config.Batch.MaxConcurrentBatches)
}

func TestStartBatch_RejectsInvalidDuplicateHandling(t *testing.T) {
	router, _ := newTestServer(t)
	rec := doJSON(t, router, http.MethodPost, "/api/batch/start", map[string]any{"albumKey": "X", "duplicateHandling": "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartBatch_NoNewImagesWhenAllSkipped(t *testing.T) {
	router, deps := newTestServer(t)
	photoHost := deps.PhotoHost.(*ports.MockPhotoHost)
	photoHost.Albums["X"] = ports.AlbumDetails{Name: "X", Path: "/x", Hierarchy: []string{"x"}}
	photoHost.Images["X"] = []ports.SourceImage{{SourceImageKey: "k1", SourceURL: "https://host/k1.jpg"}}

	_, err := deps.Store.PutImage(store.ImageRecord{
		SourceImageKey: "k1", AlbumKey: "X", AlbumName: "X", AlbumPath: "/x", AlbumHierarchy: []string{"x"},
	}, store.HandlingSkip)
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/api/batch/start", map[string]any{
		"albumKey": "X", "duplicateHandling": "skip", "forceReprocessing": false,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "No new images to process")
}

func TestStartBatch_CreatesJobsForNewImages(t *testing.T) {
	router, deps := newTestServer(t)
	photoHost := deps.PhotoHost.(*ports.MockPhotoHost)
	photoHost.Albums["X"] = ports.AlbumDetails{Name: "X", Path: "/x", Hierarchy: []string{"x"}}
	photoHost.Images["X"] = []ports.SourceImage{{SourceImageKey: "k1", SourceURL: "https://host/k1.jpg"}}
	photoHost.Bytes["https://host/k1.jpg"] = []byte("fake-bytes")

	rec := doJSON(t, router, http.MethodPost, "/api/batch/start", map[string]any{"albumKey": "X"})
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"jobCount":1`)
}

func TestAllBatchStatuses_EmptyInitially(t *testing.T) {
	router, _ := newTestServer(t)
	rec := doJSON(t, router, http.MethodGet, "/api/batch/status", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBatchStatus_NotFoundForUnknownID(t *testing.T) {
	router, _ := newTestServer(t)
	rec := doJSON(t, router, http.MethodGet, "/api/batch/status/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelBatch_EmptyIDCancelsAll(t *testing.T) {
	router, _ := newTestServer(t)
	rec := doJSON(t, router, http.MethodPost, "/api/batch/cancel", map[string]any{})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDetectDuplicates_EmptyStoreHasNoGroups(t *testing.T) {
	router, _ := newTestServer(t)
	rec := doJSON(t, router, http.MethodPost, "/api/admin/duplicates/detect", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"duplicateGroups":0`)
}

func TestDetectDuplicatesEndpoint_ReportsGroupsAboveOne(t *testing.T) {
	router, deps := newTestServer(t)
	now := store.ImageRecord{SourceImageKey: "dup", AlbumKey: "A", AlbumName: "A", AlbumPath: "/a", AlbumHierarchy: []string{"a"}, Description: "one"}
	require.NoError(t, deps.Flat.SaveAlbum("A", []store.ImageRecord{now}))
	other := now
	other.AlbumKey = "B"
	other.Description = "two"
	require.NoError(t, deps.Flat.SaveAlbum("B", []store.ImageRecord{other}))

	rec := doJSON(t, router, http.MethodPost, "/api/admin/duplicates/detect", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"duplicateGroups":1`)
}

func TestRollbackDuplicates_RequiresBackupPath(t *testing.T) {
	router, _ := newTestServer(t)
	rec := doJSON(t, router, http.MethodPost, "/api/admin/duplicates/rollback", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListBackups_EmptyWhenNoneTaken(t *testing.T) {
	router, _ := newTestServer(t)
	rec := doJSON(t, router, http.MethodGet, "/api/admin/duplicates/backups", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
