package cache

import (
	"sync/atomic"
	"time"
)

// Snapshot is one published, immutable engine instance.
type Snapshot[T any] struct {
	Value      T
	Generation uint64
	LoadedAt   time.Time
	Entries    int
}

// Holder publishes snapshots of an engine. Readers call Load once per record
// and use that snapshot throughout, so a concurrent Store is never observed
// halfway.
type Holder[T any] struct {
	name    string
	current atomic.Pointer[Snapshot[T]]
	gen     atomic.Uint64
}

func NewHolder[T any](name string) *Holder[T] {
	return &Holder[T]{name: name}
}

func (h *Holder[T]) Name() string {
	return h.name
}

// Load returns the current snapshot, or nil before the first Store.
func (h *Holder[T]) Load() *Snapshot[T] {
	return h.current.Load()
}

// Get returns the current engine, or the zero value before the first Store.
func (h *Holder[T]) Get() T {
	if s := h.current.Load(); s != nil {
		return s.Value
	}
	var zero T
	return zero
}

func (h *Holder[T]) Loaded() bool {
	return h.current.Load() != nil
}

// Store publishes value as the next generation.
func (h *Holder[T]) Store(value T, entries int) *Snapshot[T] {
	s := &Snapshot[T]{
		Value:      value,
		Generation: h.gen.Add(1),
		LoadedAt:   time.Now(),
		Entries:    entries,
	}
	h.current.Store(s)
	return s
}
