package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"ratingcore/internal/config"
)

func limitedRouter(l *Limiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(l.Middleware())
	router.GET("/api/v1/caches", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func request(router *gin.Engine, remoteAddr string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/caches", nil)
	req.RemoteAddr = remoteAddr
	router.ServeHTTP(w, req)
	return w
}

func TestBurstThenLimited(t *testing.T) {
	router := limitedRouter(New(config.RateLimitConfig{RPS: 0.5, Burst: 2}))

	assert.Equal(t, http.StatusOK, request(router, "10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusOK, request(router, "10.0.0.1:1000").Code)

	w := request(router, "10.0.0.1:1000")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "0.5", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded","error_code":"RATE_LIMIT_EXCEEDED"}`, w.Body.String())
}

func TestLimitedRequestDoesNotConsumeToken(t *testing.T) {
	l := New(config.RateLimitConfig{RPS: 1, Burst: 1})
	now := time.Date(2024, 12, 25, 14, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	router := limitedRouter(l)

	assert.Equal(t, http.StatusOK, request(router, "10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusTooManyRequests, request(router, "10.0.0.1:1000").Code)

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, request(router, "10.0.0.1:1000").Code)
}

func TestPerClientBuckets(t *testing.T) {
	router := limitedRouter(New(config.RateLimitConfig{RPS: 0.001, Burst: 1}))

	assert.Equal(t, http.StatusOK, request(router, "10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusTooManyRequests, request(router, "10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusOK, request(router, "10.0.0.2:1000").Code)
}

func TestRemainingHeader(t *testing.T) {
	router := limitedRouter(New(config.RateLimitConfig{RPS: 0.001, Burst: 5}))

	w := request(router, "10.0.0.3:1000")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "4", w.Header().Get("X-RateLimit-Remaining"))
}

func TestSweepEvictsIdleClients(t *testing.T) {
	l := New(config.RateLimitConfig{RPS: 1, Burst: 1, MaxAge: 60})
	now := time.Date(2024, 12, 25, 14, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.reserve("10.0.0.1")
	now = now.Add(30 * time.Second)
	l.reserve("10.0.0.2")
	now = now.Add(45 * time.Second)

	assert.Equal(t, 1, l.sweep())
	assert.Len(t, l.clients, 1)
	assert.Contains(t, l.clients, "10.0.0.2")
}

func TestDefaults(t *testing.T) {
	l := New(config.RateLimitConfig{RPS: 10, Burst: 20})
	assert.Equal(t, defaultCleanupInterval, l.every)
	assert.Equal(t, defaultMaxAge, l.maxAge)
}
