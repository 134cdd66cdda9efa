package middleware

import (
	"context"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/maukemana/lumalens/internal/ratelimiter"
)

// IPRateLimiter hands out one internal/ratelimiter.Limiter per client IP —
// the same token-bucket primitive BatchManager uses for LLM calls, reused
// here to pace inbound HTTP requests instead of a bespoke x/time/rate map.
type IPRateLimiter struct {
	limiters map[string]*ratelimiter.Limiter
	mu       sync.Mutex
	cfg      ratelimiter.Config
}

// NewIPRateLimiter creates a limiter pool: ratePerSecond tokens refill per
// second up to burst, with no separate concurrency cap — HTTP rate
// limiting only cares about request rate, not how many are in flight.
func NewIPRateLimiter(ratePerSecond float64, burst int) *IPRateLimiter {
	i := &IPRateLimiter{
		limiters: make(map[string]*ratelimiter.Limiter),
		cfg:      ratelimiter.Config{MaxTokens: float64(burst), RefillRate: ratePerSecond, MaxConcurrent: math.MaxInt32},
	}
	go i.cleanupLoop()
	return i
}

func (i *IPRateLimiter) limiterFor(ip string) *ratelimiter.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()
	l, ok := i.limiters[ip]
	if !ok {
		l = ratelimiter.New(i.cfg)
		i.limiters[ip] = l
	}
	return l
}

// Allow attempts to take one token for ip without blocking: an already
// cancelled context makes Acquire's slow path resolve immediately rather
// than queue.
func (i *IPRateLimiter) Allow(ip string) bool {
	l := i.limiterFor(ip)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := l.Acquire(ctx); err != nil {
		return false
	}
	l.Release()
	return true
}

// cleanupLoop closes and drops every per-IP limiter once an hour, idle or
// not, so the map doesn't grow unbounded over a long-running process.
func (i *IPRateLimiter) cleanupLoop() {
	for range time.Tick(time.Hour) {
		i.mu.Lock()
		for ip, l := range i.limiters {
			l.Close()
			delete(i.limiters, ip)
		}
		i.mu.Unlock()
	}
}

// RateLimit middleware paces inbound requests per client IP.
func RateLimit() gin.HandlerFunc {
	limiter := NewIPRateLimiter(20, 50)

	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"message": "Too many requests",
			})
			return
		}
		c.Next()
	}
}
