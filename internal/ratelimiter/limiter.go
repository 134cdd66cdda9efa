// Package ratelimiter implements the process-wide token-bucket plus
// concurrency cap described in spec §4.1: a single shared Limiter, a FIFO
// wait queue, and cooperative cancellation that never silently grants a
// permit it didn't actually reserve.
//
// golang.org/x/time/rate is not used here: its Wait has no concurrency cap
// distinct from the bucket, no FIFO-fair cancellation signal apart from
// context, and no introspectable token count — all three are exercised by
// this package's property tests.
package ratelimiter

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotAcquired is returned by Acquire when the wait queue was cleared
// (ClearQueue) before a permit could be granted. Callers must not Release.
var ErrNotAcquired = errors.New("ratelimiter: not acquired")

// Config is the tunable state of a Limiter, recomputed by BatchManager
// whenever operators change the global rate or concurrency budget.
type Config struct {
	MaxTokens     float64
	RefillRate    float64 // tokens per second
	MaxConcurrent int
}

// Snapshot is a read-only view of a Limiter's internal state, used by
// diagnostics and property tests.
type Snapshot struct {
	CurrentTokens   float64
	MaxTokens       float64
	ActiveRequests  int
	MaxConcurrent   int
	WaitQueueLength int
}

type waiter struct {
	grant chan bool // true = acquired, false = cancelled/drained
}

// Limiter is a token bucket with a concurrency cap and a FIFO wait queue.
// All mutable state is guarded by mu; it never blocks while holding mu.
type Limiter struct {
	mu sync.Mutex

	cfg Config

	currentTokens  float64
	activeRequests int
	lastRefill     time.Time

	queue []*waiter

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a Limiter and starts its once-per-second refill/drain tick.
func New(cfg Config) *Limiter {
	l := &Limiter{
		cfg:           cfg,
		currentTokens: cfg.MaxTokens,
		lastRefill:    time.Now(),
		stopCh:        make(chan struct{}),
	}
	go l.refillLoop()
	return l
}

// Close stops the background refill goroutine. Safe to call more than once.
func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *Limiter) refillLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.mu.Lock()
			l.refillLocked()
			l.drainLocked()
			l.mu.Unlock()
		}
	}
}

// refillLocked adds elapsed*refillRate tokens, clamped to MaxTokens.
// Caller must hold mu.
func (l *Limiter) refillLocked() {
	now := time.Now()
	elapsed := now.Sub(l.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	l.currentTokens += elapsed * l.cfg.RefillRate
	if l.currentTokens > l.cfg.MaxTokens {
		l.currentTokens = l.cfg.MaxTokens
	}
	l.lastRefill = now
}

// canProceedLocked reports whether a new request may take a permit right now.
// Caller must hold mu.
func (l *Limiter) canProceedLocked() bool {
	return l.currentTokens >= 1 && l.activeRequests < l.cfg.MaxConcurrent
}

// takeLocked consumes one token and one concurrency slot. Caller must hold mu
// and must have already confirmed canProceedLocked().
func (l *Limiter) takeLocked() {
	l.currentTokens--
	l.activeRequests++
}

// drainLocked wakes as many FIFO waiters as current state allows.
// Caller must hold mu.
func (l *Limiter) drainLocked() {
	for len(l.queue) > 0 {
		l.refillLocked()
		if !l.canProceedLocked() {
			return
		}
		w := l.queue[0]
		l.queue = l.queue[1:]
		l.takeLocked()
		// Buffered channel: send never blocks even if nobody is listening yet.
		w.grant <- true
	}
}

// Acquire blocks until a token and a concurrency slot are both available,
// or ctx is done, or the queue is cleared. Returns nil on success; on
// failure the caller must not call Release.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	l.refillLocked()
	if l.canProceedLocked() && len(l.queue) == 0 {
		l.takeLocked()
		l.mu.Unlock()
		return nil
	}

	w := &waiter{grant: make(chan bool, 1)}
	l.queue = append(l.queue, w)
	l.mu.Unlock()

	select {
	case ok := <-w.grant:
		if ok {
			return nil
		}
		return ErrNotAcquired
	case <-ctx.Done():
		if l.tryRemoveWaiter(w) {
			return ctx.Err()
		}
		// Lost the race: a permit was already granted (or a cancellation
		// signal sent) concurrently with ctx expiring. Honor whichever
		// arrived, never dropping a reserved permit silently.
		if ok := <-w.grant; ok {
			l.Release()
		}
		return ctx.Err()
	}
}

// tryRemoveWaiter removes target from the queue if it is still there,
// reporting whether it succeeded. Caller must not be holding mu.
func (l *Limiter) tryRemoveWaiter(target *waiter) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, w := range l.queue {
		if w == target {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			return true
		}
	}
	return false
}

// Release returns one concurrency slot and triggers an immediate drain of
// the wait queue. Every Acquire that returned nil must be matched by
// exactly one Release.
func (l *Limiter) Release() {
	l.mu.Lock()
	if l.activeRequests > 0 {
		l.activeRequests--
	}
	l.drainLocked()
	l.mu.Unlock()
}

// Execute acquires, runs fn, and releases on every exit path (success,
// error, or panic).
func (l *Limiter) Execute(ctx context.Context, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}

// ClearQueue wakes every waiter with a cancellation signal; none of them
// receive a permit and none may call Release.
func (l *Limiter) ClearQueue() {
	l.mu.Lock()
	drained := l.queue
	l.queue = nil
	l.mu.Unlock()

	for _, w := range drained {
		w.grant <- false
	}
}

// UpdateConfig applies new tunables, clamping currentTokens to the new
// MaxTokens without starving waiters already queued — draining runs
// immediately after the update.
func (l *Limiter) UpdateConfig(cfg Config) {
	l.mu.Lock()
	l.cfg = cfg
	if l.currentTokens > cfg.MaxTokens {
		l.currentTokens = cfg.MaxTokens
	}
	l.drainLocked()
	l.mu.Unlock()
}

// Snapshot returns a point-in-time view of the limiter's state.
func (l *Limiter) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillLocked()
	return Snapshot{
		CurrentTokens:   l.currentTokens,
		MaxTokens:       l.cfg.MaxTokens,
		ActiveRequests:  l.activeRequests,
		MaxConcurrent:   l.cfg.MaxConcurrent,
		WaitQueueLength: len(l.queue),
	}
}
