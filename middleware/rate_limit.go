package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// KeyFunc picks the bucket a request is counted against.
type KeyFunc func(c echo.Context) string

// RateLimiterOption customises a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithKeyFunc replaces the default per-IP bucketing.
func WithKeyFunc(fn KeyFunc) RateLimiterOption {
	return func(rl *RateLimiter) { rl.keyFunc = fn }
}

// WithOnLimited registers a callback run for every rejected request.
func WithOnLimited(fn func(c echo.Context)) RateLimiterOption {
	return func(rl *RateLimiter) { rl.onLimited = fn }
}

// keyLimiter holds a rate limiter and the last time it was seen.
type keyLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter provides keyed token-bucket rate limiting, per client IP by default.
type RateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*keyLimiter
	rate      rate.Limit
	burst     int
	keyFunc   KeyFunc
	onLimited func(c echo.Context)
	done      chan struct{}
	once      sync.Once
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(r rate.Limit, burst int, opts ...RateLimiterOption) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*keyLimiter),
		rate:     r,
		burst:    burst,
		keyFunc:  func(c echo.Context) string { return c.RealIP() },
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(rl)
	}
	go rl.cleanupLoop()
	return rl
}

// getLimiter returns the rate limiter for key, creating one if needed.
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if l, exists := rl.limiters[key]; exists {
		l.lastSeen = time.Now()
		return l.limiter
	}

	limiter := rate.NewLimiter(rl.rate, rl.burst)
	rl.limiters[key] = &keyLimiter{limiter: limiter, lastSeen: time.Now()}
	return limiter
}

// evictStale drops buckets idle for longer than maxIdle.
func (rl *RateLimiter) evictStale(maxIdle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, l := range rl.limiters {
		if time.Since(l.lastSeen) > maxIdle {
			delete(rl.limiters, key)
		}
	}
}

// cleanupLoop removes stale entries every 3 minutes.
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(3 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.evictStale(5 * time.Minute)
		case <-rl.done:
			return
		}
	}
}

// Stop ends the cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.done) })
}

// Middleware returns an Echo middleware that enforces the rate limit.
func (rl *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			limiter := rl.getLimiter(rl.keyFunc(c))

			if !limiter.Allow() {
				if rl.onLimited != nil {
					rl.onLimited(c)
				}
				retryAfter := max(int(1.0/float64(rl.rate)), 1)
				c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}

			return next(c)
		}
	}
}
