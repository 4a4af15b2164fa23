// Package reload rebuilds named caches from their repositories and
// publishes the new engines. A failed rebuild leaves the previous snapshot
// in service.
package reload

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"ratingcore/internal/cache"
	"ratingcore/internal/loader"
	"ratingcore/internal/logger"
	"ratingcore/internal/prefix"
	"ratingcore/internal/validity"
	"ratingcore/pkg/errors"
	"ratingcore/pkg/metrics"
)

// Outcome reports one cache rebuild.
type Outcome struct {
	Cache      string        `json:"cache"`
	Kind       cache.Kind    `json:"kind"`
	Generation uint64        `json:"generation,omitempty"`
	Entries    int           `json:"entries"`
	Duration   time.Duration `json:"duration_ns"`
	Error      string        `json:"error,omitempty"`

	err error
}

func (o Outcome) OK() bool {
	return o.Error == ""
}

type Reloader struct {
	registry   *cache.Registry
	prefixes   loader.PrefixSource
	validities loader.ValiditySource
	logger     logger.Logger

	mu sync.Mutex
}

// New returns a Reloader for registry. A nil source makes every cache of
// that kind fail to reload.
func New(registry *cache.Registry, prefixes loader.PrefixSource, validities loader.ValiditySource, log logger.Logger) *Reloader {
	return &Reloader{
		registry:   registry,
		prefixes:   prefixes,
		validities: validities,
		logger:     log,
	}
}

// ReloadAll rebuilds every configured cache.
func (r *Reloader) ReloadAll(ctx context.Context) ([]Outcome, error) {
	defs := r.registry.Definitions()
	if len(defs) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}
	return r.Reload(ctx, names...)
}

// Reload rebuilds the named caches, or all of them when names is empty.
// Reloads are serialised. Every cache is attempted; the returned error
// joins the individual failures.
func (r *Reloader) Reload(ctx context.Context, names ...string) ([]Outcome, error) {
	if len(names) == 0 {
		return r.ReloadAll(ctx)
	}

	defs := make([]cache.Definition, 0, len(names))
	for _, name := range names {
		d, ok := r.registry.Definition(name)
		if !ok {
			return nil, errors.ErrCacheNotFound.WithDetail("cache", name)
		}
		defs = append(defs, d)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	outcomes := make([]Outcome, 0, len(defs))
	var errs []error
	for _, d := range defs {
		o := r.reloadOne(ctx, d)
		outcomes = append(outcomes, o)
		if !o.OK() {
			errs = append(errs, fmt.Errorf("cache %s: %w", d.Name, o.err))
		}
	}

	if len(errs) > 0 {
		return outcomes, errors.ErrServiceUnavailable.
			WithCause(stderrors.Join(errs...)).
			WithDetail("message", "cache reload failed")
	}
	return outcomes, nil
}

func (r *Reloader) reloadOne(ctx context.Context, d cache.Definition) Outcome {
	start := time.Now()
	o := Outcome{Cache: d.Name, Kind: d.Kind}

	var (
		gen     uint64
		entries int
		err     error
	)
	switch d.Kind {
	case cache.KindPrefix:
		gen, entries, err = r.reloadPrefix(ctx, d)
	case cache.KindValidity:
		gen, entries, err = r.reloadValidity(ctx, d)
	default:
		err = fmt.Errorf("unknown kind %q", d.Kind)
	}

	o.Duration = time.Since(start)
	status := "success"
	if err != nil {
		status = "error"
		o.err = err
		o.Error = err.Error()
		r.logger.ErrorwCtx(ctx, "Cache reload failed, keeping previous snapshot",
			"cache", d.Name,
			"kind", d.Kind,
			"source", d.Source,
			"error", err,
		)
	} else {
		o.Generation = gen
		o.Entries = entries
		metrics.SetCacheSnapshot(d.Name, string(d.Kind), gen, entries)
		r.logger.InfowCtx(ctx, "Cache reloaded",
			"cache", d.Name,
			"kind", d.Kind,
			"generation", gen,
			"entries", entries,
			"duration", o.Duration,
		)
	}
	metrics.ObserveCacheReload(d.Name, status, o.Duration)

	return o
}

func (r *Reloader) reloadPrefix(ctx context.Context, d cache.Definition) (uint64, int, error) {
	if r.prefixes == nil {
		return 0, 0, fmt.Errorf("no prefix source configured")
	}
	holder, err := r.registry.Prefix(d.Name)
	if err != nil {
		return 0, 0, err
	}

	entries, err := r.prefixes.LoadPrefixEntries(ctx, d.Source)
	if err != nil {
		return 0, 0, fmt.Errorf("load: %w", err)
	}

	tree, err := prefix.Build(d.Fields, entries)
	if err != nil {
		return 0, 0, fmt.Errorf("build: %w", err)
	}

	s := holder.Store(tree, tree.Len())
	return s.Generation, s.Entries, nil
}

func (r *Reloader) reloadValidity(ctx context.Context, d cache.Definition) (uint64, int, error) {
	if r.validities == nil {
		return 0, 0, fmt.Errorf("no validity source configured")
	}
	holder, err := r.registry.Validity(d.Name)
	if err != nil {
		return 0, 0, err
	}

	segments, err := r.validities.LoadValiditySegments(ctx, d.Source)
	if err != nil {
		return 0, 0, fmt.Errorf("load: %w", err)
	}

	index, err := validity.Build(segments)
	if err != nil {
		return 0, 0, fmt.Errorf("build: %w", err)
	}

	s := holder.Store(index, index.Len())
	return s.Generation, s.Entries, nil
}

// Start reloads every cache on each tick until ctx is done. Failures are
// logged and retried on the next tick.
func (r *Reloader) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.ReloadAll(ctx); err != nil && ctx.Err() == nil {
				r.logger.WarnwCtx(ctx, "Periodic cache reload incomplete", "error", err)
			}
		}
	}
}
