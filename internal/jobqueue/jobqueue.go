// Package jobqueue manages the lifecycle of exactly one batch's jobs, per
// spec §4.6: a pending/running/failed queue, a phase state machine
// (queued→running→paused↔running→{completed,cancelled,failed}, with
// RetryFailedJobs putting a batch that is not running back to queued),
// and an errgroup-based worker pool sized by perBatchConcurrency. Phase
// naming follows the teacher's ProcessingStatus enum idiom in
// internal/imaging/service.go.
package jobqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/maukemana/lumalens/internal/apperr"
)

// Phase is a batch's lifecycle state.
type Phase string

const (
	PhaseQueued    Phase = "queued"
	PhaseRunning   Phase = "running"
	PhasePaused    Phase = "paused"
	PhaseCompleted Phase = "completed"
	PhaseCancelled Phase = "cancelled"
	PhaseFailed    Phase = "failed"
)

// JobStatus is a job's own lifecycle state.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Job is one unit of batch work: fetch, normalize, analyze, and persist one
// image. Payload carries everything a Processor needs; JobQueue never
// inspects it beyond AlbumKey/AlbumName/AlbumPath/AlbumHierarchy.
type Job struct {
	ID                string
	Type              string
	SourceImageKey    string
	FetchURL          string
	Filename          string
	AlbumKey          string
	AlbumName         string
	AlbumPath         string
	AlbumHierarchy    []string
	DuplicateHandling string
	ForceReprocessing bool

	Attempts  int
	LastError string
	Status    JobStatus
}

// FailedJobDetail is one entry of getStatus's failedJobDetails.
type FailedJobDetail struct {
	JobID      string
	SourceKey  string
	Attempts   int
	LastError  string
}

// DuplicateStatistics is a snapshot of duplicate-handling outcomes, carried
// through from the caller that pre-filtered jobs.
type DuplicateStatistics struct {
	SkippedImages  int
	UpdatedImages  int
	ReplacedImages int
}

// Status is JobQueue.GetStatus's external view.
type Status struct {
	BatchID             string
	TotalJobs           int
	ProcessedCount      int
	FailedCount         int
	CompletedJobs       int
	CurrentJob          string
	ProgressPercent     float64
	Phase               Phase
	StartTime           time.Time
	ETA                 time.Time
	FailedJobDetails    []FailedJobDetail
	DuplicateStatistics DuplicateStatistics
}

// Processor executes one job and returns an error classified via apperr.
type Processor func(ctx context.Context, job Job) error

// Callbacks are invoked as jobs complete; all are optional.
type Callbacks struct {
	OnProgress func(Status)
	OnComplete func(Status)
	OnError    func(job Job, err error)
}

// JobQueue manages exactly one batch.
type JobQueue struct {
	mu sync.Mutex

	batchID    string
	name       string
	albumKey   string
	concurrency int
	maxRetries int

	pending []Job
	running map[string]Job
	failed  []Job
	done    []Job

	phase     Phase
	startTime time.Time
	stats     DuplicateStatistics

	pauseCh  chan struct{}
	resumeCh chan struct{}
	cancelCh chan struct{}
}

// New constructs a queued JobQueue for jobs, validating album context per
// spec §4.6's addBatch invariant.
func New(jobs []Job, name, albumKey string, concurrency, maxRetries int, stats DuplicateStatistics) (*JobQueue, error) {
	for i, j := range jobs {
		if j.AlbumKey == "" || j.AlbumName == "" || j.AlbumPath == "" || len(j.AlbumHierarchy) == 0 {
			return nil, apperr.New(apperr.InputInvalid, fmt.Sprintf("job %d missing required album context", i))
		}
		if jobs[i].ID == "" {
			jobs[i].ID = uuid.NewString()
		}
		jobs[i].Status = JobPending
	}
	if concurrency < 1 {
		concurrency = 1
	}

	return &JobQueue{
		batchID:     uuid.NewString(),
		name:        name,
		albumKey:    albumKey,
		concurrency: concurrency,
		maxRetries:  maxRetries,
		pending:     jobs,
		running:     make(map[string]Job),
		phase:       PhaseQueued,
		stats:       stats,
		pauseCh:     make(chan struct{}),
		resumeCh:    make(chan struct{}),
		cancelCh:    make(chan struct{}),
	}, nil
}

// BatchID returns the generated batch identifier.
func (q *JobQueue) BatchID() string { return q.batchID }

// StartProcessing runs the worker pool until every job is terminal, the
// batch is cancelled, or ctx is done. It blocks until the batch reaches a
// terminal phase (completed/cancelled/failed).
func (q *JobQueue) StartProcessing(ctx context.Context, processor Processor, cb Callbacks) {
	q.mu.Lock()
	if q.phase != PhaseQueued {
		q.mu.Unlock()
		return
	}
	q.phase = PhaseRunning
	q.startTime = time.Now()
	total := len(q.pending)
	q.mu.Unlock()

	if total == 0 {
		q.finish(PhaseCompleted, cb)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(q.concurrency)

	for {
		q.mu.Lock()
		if len(q.pending) == 0 && len(q.running) == 0 {
			q.mu.Unlock()
			break
		}
		if len(q.pending) == 0 {
			q.mu.Unlock()
			break
		}
		job := q.pending[0]
		q.pending = q.pending[1:]
		job.Status = JobRunning
		q.running[job.ID] = job
		q.mu.Unlock()

		g.Go(func() error {
			return q.runOne(gctx, job, processor, cb)
		})

		if q.waitWhilePausedOrCancelled(ctx) {
			break
		}
	}

	g.Wait()
	q.finishAfterDrain(cb)
}

// runOne executes processor against job, recording success or failure.
func (q *JobQueue) runOne(ctx context.Context, job Job, processor Processor, cb Callbacks) error {
	select {
	case <-q.cancelCh:
		q.markCancelled(job)
		return nil
	default:
	}

	err := processor(ctx, job)

	q.mu.Lock()
	delete(q.running, job.ID)
	if q.phase == PhaseCancelled {
		job.Status = JobCancelled
		q.done = append(q.done, job)
		status := q.snapshotLocked()
		q.mu.Unlock()
		if cb.OnProgress != nil {
			cb.OnProgress(status)
		}
		return nil
	}
	if err != nil {
		job.Attempts++
		job.LastError = err.Error()
		job.Status = JobFailed
		q.failed = append(q.failed, job)
		if apperr.IsSystemic(apperr.KindOf(err)) {
			q.phase = PhaseFailed
		}
	} else {
		job.Status = JobSucceeded
		q.done = append(q.done, job)
	}
	status := q.snapshotLocked()
	q.mu.Unlock()

	if err != nil && cb.OnError != nil {
		cb.OnError(job, err)
	}
	if cb.OnProgress != nil {
		cb.OnProgress(status)
	}
	return nil
}

func (q *JobQueue) markCancelled(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.running, job.ID)
	job.Status = JobCancelled
	q.done = append(q.done, job)
}

// waitWhilePausedOrCancelled blocks the submission loop while paused,
// returning true if the batch was cancelled.
func (q *JobQueue) waitWhilePausedOrCancelled(ctx context.Context) bool {
	for {
		q.mu.Lock()
		phase := q.phase
		q.mu.Unlock()

		switch phase {
		case PhaseCancelled:
			return true
		case PhasePaused:
			select {
			case <-q.resumeCh:
				continue
			case <-q.cancelCh:
				return true
			case <-ctx.Done():
				return true
			}
		default:
			return false
		}
	}
}

func (q *JobQueue) finishAfterDrain(cb Callbacks) {
	q.mu.Lock()
	if q.phase == PhaseCancelled {
		q.mu.Unlock()
		if cb.OnComplete != nil {
			cb.OnComplete(q.GetStatus())
		}
		return
	}
	if len(q.failed) > 0 && q.phase != PhaseFailed {
		// Partial failures don't fail the batch; only systemic errors do.
	}
	if q.phase != PhaseFailed {
		q.phase = PhaseCompleted
	}
	q.mu.Unlock()

	if cb.OnComplete != nil {
		cb.OnComplete(q.GetStatus())
	}
}

func (q *JobQueue) finish(phase Phase, cb Callbacks) {
	q.mu.Lock()
	q.phase = phase
	q.mu.Unlock()
	if cb.OnComplete != nil {
		cb.OnComplete(q.GetStatus())
	}
}

// Pause transitions running→paused. No job in flight is interrupted.
func (q *JobQueue) Pause() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.phase != PhaseRunning {
		return false
	}
	q.phase = PhasePaused
	return true
}

// Resume transitions paused→running and wakes the submission loop.
func (q *JobQueue) Resume() bool {
	q.mu.Lock()
	if q.phase != PhasePaused {
		q.mu.Unlock()
		return false
	}
	q.phase = PhaseRunning
	q.mu.Unlock()

	select {
	case q.resumeCh <- struct{}{}:
	default:
	}
	return true
}

// Cancel is terminal: clears pending jobs and marks the currently running
// job cancelled once it returns.
func (q *JobQueue) Cancel() {
	q.mu.Lock()
	q.phase = PhaseCancelled
	q.pending = nil
	q.mu.Unlock()

	close(q.cancelCh)

	select {
	case q.resumeCh <- struct{}{}:
	default:
	}
}

// RetryFailedJobs moves the failed list back to pending, allowing each job
// at most maxRetries retries after its first attempt.
func (q *JobQueue) RetryFailedJobs() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	var retried []Job
	var stillFailed []Job
	for _, j := range q.failed {
		if j.Attempts <= q.maxRetries {
			j.Status = JobPending
			retried = append(retried, j)
		} else {
			stillFailed = append(stillFailed, j)
		}
	}
	q.failed = stillFailed
	q.pending = append(q.pending, retried...)
	if len(retried) > 0 && q.phase != PhaseRunning {
		q.phase = PhaseQueued
	}
	return len(retried)
}

// GetStatus returns the current external status view.
func (q *JobQueue) GetStatus() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

func (q *JobQueue) snapshotLocked() Status {
	total := len(q.pending) + len(q.running) + len(q.failed) + len(q.done)
	processed := len(q.done)
	var pct float64
	if total > 0 {
		pct = float64(processed+len(q.failed)) / float64(total) * 100
	}

	var current string
	for id := range q.running {
		current = id
		break
	}

	details := make([]FailedJobDetail, 0, len(q.failed))
	for _, j := range q.failed {
		details = append(details, FailedJobDetail{JobID: j.ID, SourceKey: j.SourceImageKey, Attempts: j.Attempts, LastError: j.LastError})
	}

	return Status{
		BatchID:             q.batchID,
		TotalJobs:           total,
		ProcessedCount:      processed,
		FailedCount:         len(q.failed),
		CompletedJobs:       processed,
		CurrentJob:          current,
		ProgressPercent:     pct,
		Phase:               q.phase,
		StartTime:           q.startTime,
		FailedJobDetails:    details,
		DuplicateStatistics: q.stats,
	}
}
