package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ratingcore/internal/prefix"
	pkgerrors "ratingcore/pkg/errors"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry([]Definition{
		{Name: "zones", Kind: KindPrefix, Fields: 3},
		{Name: "price_models", Kind: KindValidity, Source: "pm_v2"},
		{Name: "holidays", Kind: KindValidity},
	})
	require.NoError(t, err)
	return r
}

func TestRegistryResolve(t *testing.T) {
	r := testRegistry(t)

	h, err := r.Prefix("zones")
	require.NoError(t, err)
	assert.Equal(t, "zones", h.Name())
	assert.False(t, h.Loaded())
	assert.Nil(t, h.Get())

	_, err = r.Validity("holidays")
	require.NoError(t, err)

	d, ok := r.Definition("holidays")
	require.True(t, ok)
	assert.Equal(t, "holidays", d.Source)
	d, _ = r.Definition("price_models")
	assert.Equal(t, "pm_v2", d.Source)
}

func TestRegistryResolveErrorsAreFatal(t *testing.T) {
	r := testRegistry(t)

	tests := []struct {
		name     string
		resolve  func() error
		wantCode string
	}{
		{
			name:     "unknown prefix",
			resolve:  func() error { _, err := r.Prefix("routes"); return err },
			wantCode: pkgerrors.ErrCacheNotFound.Code,
		},
		{
			name:     "unknown validity",
			resolve:  func() error { _, err := r.Validity("tariffs"); return err },
			wantCode: pkgerrors.ErrCacheNotFound.Code,
		},
		{
			name:     "validity requested as prefix",
			resolve:  func() error { _, err := r.Prefix("holidays"); return err },
			wantCode: pkgerrors.ErrCacheWrongKind.Code,
		},
		{
			name:     "prefix requested as validity",
			resolve:  func() error { _, err := r.Validity("zones"); return err },
			wantCode: pkgerrors.ErrCacheWrongKind.Code,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.resolve()
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, pkgerrors.Code(err))
			assert.True(t, pkgerrors.IsFatal(err))
		})
	}
}

func TestNewRegistryRejectsBadDefinitions(t *testing.T) {
	tests := []struct {
		name string
		defs []Definition
	}{
		{name: "no name", defs: []Definition{{Kind: KindPrefix, Fields: 1}}},
		{name: "duplicate", defs: []Definition{{Name: "a", Kind: KindValidity}, {Name: "a", Kind: KindValidity}}},
		{name: "unknown kind", defs: []Definition{{Name: "a", Kind: "bloom"}}},
		{name: "prefix without fields", defs: []Definition{{Name: "a", Kind: KindPrefix}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.defs)
			assert.Error(t, err)
		})
	}
}

func TestStatsAndUnloaded(t *testing.T) {
	r := testRegistry(t)
	assert.ElementsMatch(t, []string{"zones", "price_models", "holidays"}, r.Unloaded())

	h, _ := r.Prefix("zones")
	tree, err := prefix.Build(3, []prefix.Entry{{Keys: []string{"V", "", "31"}, Value: "NL"}})
	require.NoError(t, err)
	h.Store(tree, tree.Len())

	stats := r.Stats()
	require.Len(t, stats, 3)
	assert.Equal(t, "holidays", stats[0].Name)
	assert.Equal(t, "zones", stats[2].Name)
	assert.True(t, stats[2].Loaded)
	assert.Equal(t, uint64(1), stats[2].Generation)
	assert.Equal(t, 1, stats[2].Entries)

	assert.ElementsMatch(t, []string{"price_models", "holidays"}, r.Unloaded())
	assert.Equal(t, map[string]uint64{"zones": 1}, r.Generations())
}

func TestHolderGenerations(t *testing.T) {
	h := NewHolder[string]("x")
	assert.Nil(t, h.Load())
	assert.Equal(t, "", h.Get())

	s1 := h.Store("a", 1)
	s2 := h.Store("b", 2)
	assert.Equal(t, uint64(1), s1.Generation)
	assert.Equal(t, uint64(2), s2.Generation)
	assert.Equal(t, "b", h.Get())
	assert.Equal(t, "a", s1.Value)
}

// Every snapshot built here maps all keys to the same value, so a reader
// that sees mixed generations within one snapshot would fail.
func TestHolderSwapUnderConcurrentReaders(t *testing.T) {
	build := func(gen int) *prefix.Tree {
		b := prefix.NewBuilder(1)
		for i := 0; i < 100; i++ {
			require.NoError(t, b.Add(prefix.Entry{
				Keys:  []string{fmt.Sprintf("%03d", i)},
				Value: fmt.Sprintf("g%d", gen),
			}))
		}
		return b.Build()
	}

	h := NewHolder[*prefix.Tree]("zones")
	h.Store(build(0), 100)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan string, 8)

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				tree := h.Get()
				want := tree.Lookup("000").Value
				for i := 1; i < 100; i++ {
					if got := tree.Lookup(fmt.Sprintf("%03d", i)).Value; got != want {
						errs <- fmt.Sprintf("mixed snapshot: %s vs %s", got, want)
						return
					}
				}
			}
		}()
	}

	for gen := 1; gen <= 50; gen++ {
		h.Store(build(gen), 100)
	}
	close(stop)
	wg.Wait()
	close(errs)

	for e := range errs {
		t.Error(e)
	}
	assert.Equal(t, uint64(51), h.Load().Generation)
}
