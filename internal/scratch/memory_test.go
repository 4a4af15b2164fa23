package scratch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ratingcore/internal/config"
)

func TestMemoryStorePutGetClear(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	ok, err := s.Contains(ctx, "stream:1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "stream:1", "cdr_0001.dat"))

	v, ok, err := s.Get(ctx, "stream:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "cdr_0001.dat", v)

	require.NoError(t, s.Put(ctx, "stream:1", "cdr_0002.dat"))
	v, _, _ = s.Get(ctx, "stream:1")
	assert.Equal(t, "cdr_0002.dat", v)

	require.NoError(t, s.Clear(ctx, "stream:1"))
	_, ok, err = s.Get(ctx, "stream:1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", "v"))
	now = now.Add(59 * time.Second)
	ok, _ := s.Contains(ctx, "k")
	assert.True(t, ok)

	now = now.Add(time.Second)
	ok, _ = s.Contains(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStoreConcurrent(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("w%d:%d", i, j)
				assert.NoError(t, s.Put(ctx, key, "x"))
				ok, err := s.Contains(ctx, key)
				assert.NoError(t, err)
				assert.True(t, ok)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 800, s.Len())
}

func TestNewSelectsBackend(t *testing.T) {
	s, err := New(config.ScratchConfig{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = New(config.ScratchConfig{Backend: "redis"}, nil)
	assert.Error(t, err)

	_, err = New(config.ScratchConfig{Backend: "etcd"}, nil)
	assert.Error(t, err)
}
