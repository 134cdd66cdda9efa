package batch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maukemana/lumalens/internal/jobqueue"
)

func testJobs(n int, albumKey string) []jobqueue.Job {
	jobs := make([]jobqueue.Job, n)
	for i := range jobs {
		jobs[i] = jobqueue.Job{
			SourceImageKey: albumKey + "-" + string(rune('a'+i)),
			AlbumKey:       albumKey,
			AlbumName:      "Album",
			AlbumPath:      "/" + albumKey,
			AlbumHierarchy: []string{albumKey},
		}
	}
	return jobs
}

func testConfig() Config {
	return Config{
		GlobalRatePerMinute:  6000,
		MaxConcurrentBatches: 2,
		PerBatchConcurrency:  2,
		MaxRetries:           3,
		RetentionSeconds:     1,
	}
}

func TestLimiterConfig_AppliesFloorAndMinimum(t *testing.T) {
	cfg := limiterConfig(Config{GlobalRatePerMinute: 6000, MaxConcurrentBatches: 3})
	assert.Equal(t, 1000.0, cfg.MaxTokens)
	assert.Equal(t, 100.0, cfg.RefillRate)
	assert.Equal(t, 3, cfg.MaxConcurrent)

	lowCfg := limiterConfig(Config{GlobalRatePerMinute: 12, MaxConcurrentBatches: 1})
	assert.Equal(t, 10.0, lowCfg.MaxTokens, "must floor to the 10-token minimum")
}

func TestCreateBatch_RejectsWhenAtConcurrencyLimit(t *testing.T) {
	m := NewManager(Config{GlobalRatePerMinute: 6000, MaxConcurrentBatches: 1, PerBatchConcurrency: 1, MaxRetries: 3})
	defer m.Close()

	_, _, err := m.CreateBatch(testJobs(2, "X"), "batch-a", "X", Statistics{})
	require.NoError(t, err)

	_, _, err = m.CreateBatch(testJobs(1, "Y"), "batch-b", "Y", Statistics{})
	assert.Error(t, err)
}

func TestStartBatch_CompletesAndReportsStatus(t *testing.T) {
	m := NewManager(testConfig())
	defer m.Close()

	batchID, jobCount, err := m.CreateBatch(testJobs(3, "X"), "batch-a", "X", Statistics{})
	require.NoError(t, err)
	assert.Equal(t, 3, jobCount)

	done := make(chan struct{})
	err = m.StartBatch(context.Background(), batchID, func(ctx context.Context, job jobqueue.Job) error {
		return nil
	}, jobqueue.Callbacks{OnComplete: func(s jobqueue.Status) { close(done) }})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("batch did not complete in time")
	}

	view, ok := m.GetBatchStatus(batchID)
	require.True(t, ok)
	assert.Equal(t, jobqueue.PhaseCompleted, view.Phase)
	assert.Equal(t, 3, view.ProcessedCount)
	assert.Equal(t, "batch-a", view.Name)
	assert.Equal(t, "X", view.AlbumKey)
}

func TestCancelAllBatches_DrainsRateLimiterQueue(t *testing.T) {
	m := NewManager(Config{GlobalRatePerMinute: 6000, MaxConcurrentBatches: 2, PerBatchConcurrency: 1, MaxRetries: 3})
	defer m.Close()

	batchID, _, err := m.CreateBatch(testJobs(2, "X"), "batch-a", "X", Statistics{})
	require.NoError(t, err)

	err = m.StartBatch(context.Background(), batchID, func(ctx context.Context, job jobqueue.Job) error {
		time.Sleep(50 * time.Millisecond)
		return nil
	}, jobqueue.Callbacks{})
	require.NoError(t, err)

	m.CancelAllBatches()

	view, ok := m.GetBatchStatus(batchID)
	require.True(t, ok)
	assert.Equal(t, jobqueue.PhaseCancelled, view.Phase)
}
