// Package circuitbreaker guards the reference-data stores with sony/gobreaker
// so that a failing database stops being hammered by periodic reloads.
package circuitbreaker

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"ratingcore/internal/config"
	"ratingcore/pkg/errors"
	"ratingcore/pkg/metrics"
)

const (
	defaultMaxRequests  = 3
	defaultInterval     = time.Minute
	defaultTimeout      = time.Minute
	defaultFailureRatio = 0.5
	defaultMinRequests  = 3
)

var stateValues = map[gobreaker.State]float64{
	gobreaker.StateClosed:   0,
	gobreaker.StateHalfOpen: 1,
	gobreaker.StateOpen:     2,
}

type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// New returns nil when cfg is disabled. A nil Breaker passes calls through.
func New(name string, cfg config.CircuitBreakerConfig) *Breaker {
	if !cfg.Enabled {
		return nil
	}

	ratio, minRequests := cfg.FailureRatio, cfg.MinRequests
	if ratio <= 0 {
		ratio = defaultFailureRatio
	}
	if minRequests == 0 {
		minRequests = defaultMinRequests
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: orDefault(cfg.MaxRequests, defaultMaxRequests),
		Interval:    orDefault(cfg.Interval, defaultInterval),
		Timeout:     orDefault(cfg.Timeout, defaultTimeout),
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.Requests >= minRequests && float64(c.TotalFailures)/float64(c.Requests) >= ratio
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, _, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValues[to])
		},
	}

	cb := gobreaker.NewCircuitBreaker(settings)
	metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValues[cb.State()])
	return &Breaker{cb: cb}
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// isSuccessful keeps cancellations and rejected data from counting against
// the store. Only those errors say nothing about the store's health.
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	if stderrors.Is(err, context.Canceled) {
		return true
	}
	return errors.IsValidation(err)
}

// State returns the breaker state, or "disabled" for a nil Breaker.
func (b *Breaker) State() string {
	if b == nil {
		return "disabled"
	}
	return b.cb.State().String()
}

// Do runs fn through b. An open breaker rejects the call with
// SERVICE_UNAVAILABLE wrapping gobreaker.ErrOpenState.
func Do[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if b == nil {
		return fn(ctx)
	}

	name := b.cb.Name()
	result, err := b.cb.Execute(func() (interface{}, error) {
		return fn(ctx)
	})

	metrics.CircuitBreakerRequests.WithLabelValues(name, b.cb.State().String()).Inc()
	switch {
	case stderrors.Is(err, gobreaker.ErrOpenState), stderrors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerFailures.WithLabelValues(name).Inc()
		return zero, errors.ErrServiceUnavailable.
			WithDetail("breaker", name).
			WithCause(fmt.Errorf("circuit breaker %s: %w", name, err))
	case err != nil:
		if !isSuccessful(err) {
			metrics.CircuitBreakerFailures.WithLabelValues(name).Inc()
		}
		return zero, err
	}

	v, _ := result.(T)
	return v, nil
}
