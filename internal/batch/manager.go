// Package batch implements the BatchManager from spec §4.7: a multi-batch
// coordinator that owns one shared RateLimiter sized from config, tracks
// active JobQueues under a single table lock, and evicts terminal batches
// 30 seconds after completion.
package batch

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/maukemana/lumalens/internal/apperr"
	"github.com/maukemana/lumalens/internal/jobqueue"
	"github.com/maukemana/lumalens/internal/ratelimiter"
)

// Config is the tunable subset of config.BatchTuning the manager derives
// its shared RateLimiter from.
type Config struct {
	GlobalRatePerMinute   float64
	MaxConcurrentBatches  int
	PerBatchConcurrency   int
	MaxRetries            int
	RetentionSeconds      int
}

// limiterConfig computes the shared RateLimiter's tunables per spec §4.7's
// formulas: maxTokens = max(10, floor(globalRatePerMinute/6)), refillRate =
// globalRatePerMinute/60, maxConcurrent = maxConcurrentBatches.
func limiterConfig(cfg Config) ratelimiter.Config {
	maxTokens := math.Floor(cfg.GlobalRatePerMinute / 6)
	if maxTokens < 10 {
		maxTokens = 10
	}
	return ratelimiter.Config{
		MaxTokens:     maxTokens,
		RefillRate:    cfg.GlobalRatePerMinute / 60,
		MaxConcurrent: cfg.MaxConcurrentBatches,
	}
}

// Statistics carries duplicate-handling counts from pre-filtering, passed
// through to JobQueue and echoed back in status views.
type Statistics = jobqueue.DuplicateStatistics

// View is the external status shape getAllStatuses/getBatchStatus return:
// raw JobQueue status enriched with manager metadata.
type View struct {
	jobqueue.Status
	Name      string
	AlbumKey  string
	CreatedAt time.Time
}

type entry struct {
	queue     *jobqueue.JobQueue
	name      string
	albumKey  string
	createdAt time.Time
	evictTimer *time.Timer
}

// Manager coordinates multiple concurrent batches against one shared
// RateLimiter.
type Manager struct {
	mu      sync.RWMutex
	cfg     Config
	limiter *ratelimiter.Limiter
	batches map[string]*entry
}

// NewManager constructs a Manager and starts its shared RateLimiter.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:     cfg,
		limiter: ratelimiter.New(limiterConfig(cfg)),
		batches: make(map[string]*entry),
	}
}

// activeCountLocked returns the number of batches not yet in a terminal phase.
func (m *Manager) activeCountLocked() int {
	n := 0
	for _, e := range m.batches {
		switch e.queue.GetStatus().Phase {
		case jobqueue.PhaseCompleted, jobqueue.PhaseCancelled, jobqueue.PhaseFailed:
		default:
			n++
		}
	}
	return n
}

// CreateBatch constructs a new JobQueue, rejecting if active batches are
// already at maxConcurrentBatches.
func (m *Manager) CreateBatch(jobs []jobqueue.Job, name, albumKey string, stats Statistics) (string, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeCountLocked() >= m.cfg.MaxConcurrentBatches {
		return "", 0, apperr.New(apperr.InputInvalid, "maximum concurrent batches reached")
	}

	q, err := jobqueue.New(jobs, name, albumKey, m.cfg.PerBatchConcurrency, m.cfg.MaxRetries, stats)
	if err != nil {
		return "", 0, err
	}

	m.batches[q.BatchID()] = &entry{queue: q, name: name, albumKey: albumKey, createdAt: time.Now()}
	return q.BatchID(), len(jobs), nil
}

// StartBatch runs batchID's JobQueue, wrapping every processor call through
// the shared RateLimiter's Execute, and schedules eviction once terminal.
func (m *Manager) StartBatch(ctx context.Context, batchID string, processor jobqueue.Processor, cb jobqueue.Callbacks) error {
	m.mu.RLock()
	e, ok := m.batches[batchID]
	m.mu.RUnlock()
	if !ok {
		return apperr.New(apperr.InputInvalid, "unknown batch id")
	}

	limited := func(jctx context.Context, job jobqueue.Job) error {
		var callErr error
		err := m.limiter.Execute(jctx, func() error {
			callErr = processor(jctx, job)
			return callErr
		})
		if err != nil && callErr == nil {
			return apperr.Wrap(apperr.Cancelled, "rate limiter wait cancelled", err)
		}
		return callErr
	}

	wrappedComplete := cb.OnComplete
	cb.OnComplete = func(s jobqueue.Status) {
		if wrappedComplete != nil {
			wrappedComplete(s)
		}
		m.scheduleEviction(batchID)
	}

	go e.queue.StartProcessing(ctx, limited, cb)
	return nil
}

func (m *Manager) scheduleEviction(batchID string) {
	retention := time.Duration(m.cfg.RetentionSeconds) * time.Second
	if retention <= 0 {
		retention = 30 * time.Second
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.batches[batchID]
	if !ok {
		return
	}
	if e.evictTimer != nil {
		e.evictTimer.Stop()
	}
	e.evictTimer = time.AfterFunc(retention, func() {
		m.mu.Lock()
		delete(m.batches, batchID)
		m.mu.Unlock()
	})
}

// GetAllStatuses returns a View per tracked batch.
func (m *Manager) GetAllStatuses() []View {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]View, 0, len(m.batches))
	for _, e := range m.batches {
		out = append(out, View{Status: e.queue.GetStatus(), Name: e.name, AlbumKey: e.albumKey, CreatedAt: e.createdAt})
	}
	return out
}

// GetBatchStatus returns one batch's View.
func (m *Manager) GetBatchStatus(batchID string) (View, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.batches[batchID]
	if !ok {
		return View{}, false
	}
	return View{Status: e.queue.GetStatus(), Name: e.name, AlbumKey: e.albumKey, CreatedAt: e.createdAt}, true
}

func (m *Manager) withBatch(batchID string, fn func(*jobqueue.JobQueue)) bool {
	m.mu.RLock()
	e, ok := m.batches[batchID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	fn(e.queue)
	return true
}

// Pause pauses batchID's JobQueue.
func (m *Manager) Pause(batchID string) bool {
	var result bool
	m.withBatch(batchID, func(q *jobqueue.JobQueue) { result = q.Pause() })
	return result
}

// Resume resumes batchID's JobQueue.
func (m *Manager) Resume(batchID string) bool {
	var result bool
	m.withBatch(batchID, func(q *jobqueue.JobQueue) { result = q.Resume() })
	return result
}

// Cancel cancels batchID's JobQueue.
func (m *Manager) Cancel(batchID string) bool {
	found := m.withBatch(batchID, func(q *jobqueue.JobQueue) { q.Cancel() })
	if found {
		m.scheduleEviction(batchID)
	}
	return found
}

// CancelAllBatches cancels every tracked batch and drains the shared
// RateLimiter's wait queue.
func (m *Manager) CancelAllBatches() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.batches))
	for id := range m.batches {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		m.Cancel(id)
	}
	m.limiter.ClearQueue()
}

// RetryFailedJobs retries batchID's failed jobs.
func (m *Manager) RetryFailedJobs(batchID string) int {
	var n int
	m.withBatch(batchID, func(q *jobqueue.JobQueue) { n = q.RetryFailedJobs() })
	return n
}

// UpdateConfig propagates a new rate limit / concurrency budget to the
// shared RateLimiter.
func (m *Manager) UpdateConfig(cfg Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
	m.limiter.UpdateConfig(limiterConfig(cfg))
}

// Close stops the shared RateLimiter's background refill goroutine.
func (m *Manager) Close() {
	m.limiter.Close()
}
