package jobqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maukemana/lumalens/internal/apperr"
)

func testJobs(n int, albumKey string) []Job {
	jobs := make([]Job, n)
	for i := range jobs {
		jobs[i] = Job{
			SourceImageKey: albumKey + "-" + string(rune('a'+i)),
			AlbumKey:       albumKey,
			AlbumName:      "Album",
			AlbumPath:      "/" + albumKey,
			AlbumHierarchy: []string{albumKey},
		}
	}
	return jobs
}

func TestHappyPath_AllJobsSucceed(t *testing.T) {
	q, err := New(testJobs(3, "X"), "batch1", "X", 2, 3, DuplicateStatistics{})
	require.NoError(t, err)

	var completed atomic.Bool
	q.StartProcessing(context.Background(), func(ctx context.Context, job Job) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	}, Callbacks{OnComplete: func(s Status) { completed.Store(true) }})

	status := q.GetStatus()
	assert.Equal(t, PhaseCompleted, status.Phase)
	assert.Equal(t, 3, status.ProcessedCount)
	assert.Equal(t, 0, status.FailedCount)
	assert.True(t, completed.Load())
}

func TestAddBatch_RejectsMissingAlbumContext(t *testing.T) {
	_, err := New([]Job{{SourceImageKey: "k1"}}, "batch1", "X", 1, 3, DuplicateStatistics{})
	assert.Error(t, err)
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.InputInvalid, ae.Kind)
}

func TestFailedJobsTrackedSeparately(t *testing.T) {
	q, err := New(testJobs(2, "X"), "batch1", "X", 1, 3, DuplicateStatistics{})
	require.NoError(t, err)

	q.StartProcessing(context.Background(), func(ctx context.Context, job Job) error {
		return errors.New("boom")
	}, Callbacks{})

	status := q.GetStatus()
	assert.Equal(t, 2, status.FailedCount)
	assert.Len(t, status.FailedJobDetails, 2)
}

func TestRetryFailedJobs_CapsAtMaxRetries(t *testing.T) {
	q, err := New(testJobs(1, "X"), "batch1", "X", 1, 1, DuplicateStatistics{})
	require.NoError(t, err)

	q.StartProcessing(context.Background(), func(ctx context.Context, job Job) error {
		return errors.New("boom")
	}, Callbacks{})

	retried := q.RetryFailedJobs()
	assert.Equal(t, 1, retried)

	q.StartProcessing(context.Background(), func(ctx context.Context, job Job) error {
		return errors.New("boom again")
	}, Callbacks{})

	retried = q.RetryFailedJobs()
	assert.Equal(t, 0, retried, "job already at maxRetries must not be retried again")
}

func TestPauseResume(t *testing.T) {
	q, err := New(testJobs(5, "X"), "batch1", "X", 1, 3, DuplicateStatistics{})
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string
	done := make(chan struct{})

	go func() {
		q.StartProcessing(context.Background(), func(ctx context.Context, job Job) error {
			mu.Lock()
			order = append(order, job.SourceImageKey)
			mu.Unlock()
			time.Sleep(20 * time.Millisecond)
			return nil
		}, Callbacks{})
		close(done)
	}()

	time.Sleep(15 * time.Millisecond)
	q.Pause()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, PhasePaused, q.GetStatus().Phase)

	q.Resume()
	<-done

	status := q.GetStatus()
	assert.Equal(t, PhaseCompleted, status.Phase)
	assert.Equal(t, 5, status.ProcessedCount)
}

func TestCancel_ClearsPending(t *testing.T) {
	q, err := New(testJobs(5, "X"), "batch1", "X", 1, 3, DuplicateStatistics{})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		q.StartProcessing(context.Background(), func(ctx context.Context, job Job) error {
			time.Sleep(20 * time.Millisecond)
			return nil
		}, Callbacks{})
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	q.Cancel()
	<-done

	status := q.GetStatus()
	assert.Equal(t, PhaseCancelled, status.Phase)
	assert.Less(t, status.ProcessedCount+status.FailedCount, 5)
}
