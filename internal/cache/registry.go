// Package cache resolves named lookup engines and publishes reloaded
// instances to the rating stages.
package cache

import (
	"fmt"
	"sort"
	"time"

	"ratingcore/internal/prefix"
	"ratingcore/internal/validity"
	pkgerrors "ratingcore/pkg/errors"
)

type Kind string

const (
	KindPrefix   Kind = "prefix"
	KindValidity Kind = "validity"
)

func (k Kind) Valid() bool {
	return k == KindPrefix || k == KindValidity
}

// Definition describes one named cache. Source is the data set name in the
// backing store and defaults to Name. Fields applies to prefix caches only.
type Definition struct {
	Name   string
	Kind   Kind
	Source string
	Fields int
}

type Stats struct {
	Name       string    `json:"name"`
	Kind       Kind      `json:"kind"`
	Source     string    `json:"source"`
	Loaded     bool      `json:"loaded"`
	Generation uint64    `json:"generation"`
	LoadedAt   time.Time `json:"loaded_at,omitempty"`
	Entries    int       `json:"entries"`
}

// Registry is the set of named caches a process serves. It is built once
// at startup; the holders it returns are updated in place by reloads.
type Registry struct {
	defs     map[string]Definition
	prefix   map[string]*Holder[*prefix.Tree]
	validity map[string]*Holder[*validity.Index]
}

func NewRegistry(defs []Definition) (*Registry, error) {
	r := &Registry{
		defs:     make(map[string]Definition, len(defs)),
		prefix:   make(map[string]*Holder[*prefix.Tree]),
		validity: make(map[string]*Holder[*validity.Index]),
	}

	for _, d := range defs {
		if d.Name == "" {
			return nil, fmt.Errorf("cache definition without name")
		}
		if _, dup := r.defs[d.Name]; dup {
			return nil, fmt.Errorf("duplicate cache %q", d.Name)
		}
		if d.Source == "" {
			d.Source = d.Name
		}

		switch d.Kind {
		case KindPrefix:
			if d.Fields < 1 {
				return nil, fmt.Errorf("prefix cache %q: fields must be at least 1", d.Name)
			}
			r.prefix[d.Name] = NewHolder[*prefix.Tree](d.Name)
		case KindValidity:
			r.validity[d.Name] = NewHolder[*validity.Index](d.Name)
		default:
			return nil, fmt.Errorf("cache %q: unknown kind %q", d.Name, d.Kind)
		}
		r.defs[d.Name] = d
	}

	return r, nil
}

// Prefix resolves a prefix cache by name. The returned error is fatal for
// the caller's startup.
func (r *Registry) Prefix(name string) (*Holder[*prefix.Tree], error) {
	if err := r.check(name, KindPrefix); err != nil {
		return nil, err
	}
	return r.prefix[name], nil
}

func (r *Registry) Validity(name string) (*Holder[*validity.Index], error) {
	if err := r.check(name, KindValidity); err != nil {
		return nil, err
	}
	return r.validity[name], nil
}

func (r *Registry) check(name string, want Kind) error {
	d, ok := r.defs[name]
	if !ok {
		return pkgerrors.ErrCacheNotFound.
			WithDetail("cache", name).
			AsFatal()
	}
	if d.Kind != want {
		return pkgerrors.ErrCacheWrongKind.
			WithDetail("cache", name).
			WithDetail("kind", string(d.Kind)).
			WithDetail("requested", string(want)).
			AsFatal()
	}
	return nil
}

func (r *Registry) Definition(name string) (Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Definitions returns every definition sorted by name.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) Stats() []Stats {
	defs := r.Definitions()
	out := make([]Stats, 0, len(defs))
	for _, d := range defs {
		st := Stats{Name: d.Name, Kind: d.Kind, Source: d.Source}
		switch d.Kind {
		case KindPrefix:
			fillStats(&st, r.prefix[d.Name].Load())
		case KindValidity:
			fillStats(&st, r.validity[d.Name].Load())
		}
		out = append(out, st)
	}
	return out
}

func fillStats[T any](st *Stats, s *Snapshot[T]) {
	if s == nil {
		return
	}
	st.Loaded = true
	st.Generation = s.Generation
	st.LoadedAt = s.LoadedAt
	st.Entries = s.Entries
}

// Unloaded returns the names of caches that have never been published.
func (r *Registry) Unloaded() []string {
	var out []string
	for _, st := range r.Stats() {
		if !st.Loaded {
			out = append(out, st.Name)
		}
	}
	return out
}

// Generations returns the current generation per loaded cache.
func (r *Registry) Generations() map[string]uint64 {
	out := make(map[string]uint64, len(r.defs))
	for _, st := range r.Stats() {
		if st.Loaded {
			out[st.Name] = st.Generation
		}
	}
	return out
}
