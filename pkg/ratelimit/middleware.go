// Package ratelimit throttles the admin API per client IP with token
// buckets from golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"ratingcore/internal/config"
	"ratingcore/pkg/errors"
	"ratingcore/pkg/metrics"
)

const (
	defaultCleanupInterval = 5 * time.Minute
	defaultMaxAge          = 10 * time.Minute
)

type client struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one bucket per client IP. Buckets idle for longer than
// maxAge are dropped by Run.
type Limiter struct {
	limit   rate.Limit
	burst   int
	every   time.Duration
	maxAge  time.Duration
	mu      sync.Mutex
	clients map[string]*client
	now     func() time.Time
}

func New(cfg config.RateLimitConfig) *Limiter {
	l := &Limiter{
		limit:   rate.Limit(cfg.RPS),
		burst:   cfg.Burst,
		every:   time.Duration(cfg.CleanupInterval) * time.Second,
		maxAge:  time.Duration(cfg.MaxAge) * time.Second,
		clients: make(map[string]*client),
		now:     time.Now,
	}
	if l.every <= 0 {
		l.every = defaultCleanupInterval
	}
	if l.maxAge <= 0 {
		l.maxAge = defaultMaxAge
	}
	return l
}

// Run evicts idle clients until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *Limiter) sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.maxAge)
	evicted := 0
	for ip, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, ip)
			evicted++
		}
	}
	return evicted
}

// reserve takes a token for ip. It returns the tokens left, or the wait
// before the next token when the bucket is empty.
func (l *Limiter) reserve(ip string) (remaining int, wait time.Duration) {
	now := l.now()

	l.mu.Lock()
	c, ok := l.clients[ip]
	if !ok {
		c = &client{bucket: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = c
	}
	c.lastSeen = now
	l.mu.Unlock()

	r := c.bucket.ReserveN(now, 1)
	if !r.OK() {
		return 0, time.Second
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return 0, d
	}
	return max(int(c.bucket.TokensAt(now)), 0), 0
}

func (l *Limiter) Middleware() gin.HandlerFunc {
	limitHeader := strconv.FormatFloat(float64(l.limit), 'f', -1, 64)

	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = c.RemoteIP()
		}

		remaining, wait := l.reserve(ip)
		c.Header("X-RateLimit-Limit", limitHeader)
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if wait > 0 {
			metrics.RateLimitRequestsTotal.WithLabelValues("limited").Inc()
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			c.AbortWithStatusJSON(errors.ErrRateLimited.Status, errors.ToErrorResponse(errors.ErrRateLimited))
			return
		}

		metrics.RateLimitRequestsTotal.WithLabelValues("allowed").Inc()
		c.Next()
	}
}
