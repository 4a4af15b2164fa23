package loader

import (
	"context"

	"ratingcore/internal/config"
	"ratingcore/internal/prefix"
	"ratingcore/internal/validity"
	"ratingcore/pkg/circuitbreaker"
)

// BreakerPrefixSource guards a PrefixSource with a circuit breaker.
type BreakerPrefixSource struct {
	source PrefixSource
	cb     *circuitbreaker.Breaker
}

func NewBreakerPrefixSource(source PrefixSource, cfg config.CircuitBreakerConfig) *BreakerPrefixSource {
	return &BreakerPrefixSource{source: source, cb: circuitbreaker.New("postgres-prefix", cfg)}
}

func (s *BreakerPrefixSource) LoadPrefixEntries(ctx context.Context, source string) ([]prefix.Entry, error) {
	return circuitbreaker.Do(ctx, s.cb, func(ctx context.Context) ([]prefix.Entry, error) {
		return s.source.LoadPrefixEntries(ctx, source)
	})
}

func (s *BreakerPrefixSource) State() string { return s.cb.State() }

// BreakerValiditySource guards a ValiditySource with a circuit breaker.
type BreakerValiditySource struct {
	source ValiditySource
	cb     *circuitbreaker.Breaker
}

func NewBreakerValiditySource(source ValiditySource, cfg config.CircuitBreakerConfig) *BreakerValiditySource {
	return &BreakerValiditySource{source: source, cb: circuitbreaker.New("mongodb-validity", cfg)}
}

func (s *BreakerValiditySource) LoadValiditySegments(ctx context.Context, source string) ([]validity.Segment, error) {
	return circuitbreaker.Do(ctx, s.cb, func(ctx context.Context) ([]validity.Segment, error) {
		return s.source.LoadValiditySegments(ctx, source)
	})
}

func (s *BreakerValiditySource) State() string { return s.cb.State() }
