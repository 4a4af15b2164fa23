// Package health aggregates readiness probes for the rating service. Cache
// snapshots and the scratch store are critical; the reference databases
// only degrade the service because rating keeps running from published
// snapshots while they are down.
package health

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"
)

const checkTimeout = 5 * time.Second

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckFunc returns nil when the dependency is usable.
type CheckFunc func(ctx context.Context) error

type Report struct {
	Status    Status            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]Result `json:"checks"`
}

type Result struct {
	Status   Status        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

type check struct {
	name     string
	critical bool
	fn       CheckFunc
}

type Registry struct {
	checks []check
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Critical adds a check whose failure makes the service unhealthy.
func (r *Registry) Critical(name string, fn CheckFunc) {
	r.checks = append(r.checks, check{name: name, critical: true, fn: fn})
}

// Optional adds a check whose failure only degrades the service.
func (r *Registry) Optional(name string, fn CheckFunc) {
	r.checks = append(r.checks, check{name: name, fn: fn})
}

// Run executes every check concurrently, each under its own timeout.
func (r *Registry) Run(ctx context.Context) Report {
	report := Report{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]Result, len(r.checks)),
	}

	var mu sync.Mutex
	var g errgroup.Group
	for _, c := range r.checks {
		g.Go(func() error {
			res := c.run(ctx)

			mu.Lock()
			defer mu.Unlock()
			report.Checks[c.name] = res
			switch {
			case res.Status == StatusUnhealthy:
				report.Status = StatusUnhealthy
			case res.Status == StatusDegraded && report.Status == StatusHealthy:
				report.Status = StatusDegraded
			}
			return nil
		})
	}
	_ = g.Wait()

	return report
}

func (c check) run(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	err := c.fn(ctx)
	res := Result{Status: StatusHealthy, Duration: time.Since(start)}
	if err != nil {
		res.Message = err.Error()
		res.Status = StatusDegraded
		if c.critical {
			res.Status = StatusUnhealthy
		}
	}
	return res
}

// Handler serves the report, with 503 when the service is unhealthy.
func (r *Registry) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		report := r.Run(c.Request.Context())
		code := http.StatusOK
		if report.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, report)
	}
}

func Postgres(db *sql.DB) CheckFunc {
	return func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("postgresql ping failed: %w", err)
		}
		return nil
	}
}

func Redis(client *redis.Client) CheckFunc {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		return nil
	}
}

func Mongo(client *mongo.Client) CheckFunc {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx, nil); err != nil {
			return fmt.Errorf("mongodb ping failed: %w", err)
		}
		return nil
	}
}

// CacheSet reports named caches that have no published snapshot yet.
type CacheSet interface {
	Unloaded() []string
}

func Caches(caches CacheSet) CheckFunc {
	return func(context.Context) error {
		if unloaded := caches.Unloaded(); len(unloaded) > 0 {
			return fmt.Errorf("caches not loaded: %s", strings.Join(unloaded, ", "))
		}
		return nil
	}
}
