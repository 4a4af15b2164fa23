package scratch

import (
	"context"
	"sync"
	"time"

	"ratingcore/internal/constants"
	"ratingcore/pkg/metrics"
)

type memoryItem struct {
	value     string
	expiresAt time.Time
}

type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	ttl   time.Duration
	now   func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		items: make(map[string]memoryItem),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (s *MemoryStore) Put(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := memoryItem{value: value}
	if s.ttl > 0 {
		item.expiresAt = s.now().Add(s.ttl)
	}
	s.items[key] = item
	metrics.IncScratchOperation(constants.ScratchBackendMemory, "put", "success")
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	item, ok := s.items[key]
	s.mu.RUnlock()

	if ok && s.expired(item) {
		s.mu.Lock()
		if cur, still := s.items[key]; still && s.expired(cur) {
			delete(s.items, key)
		}
		s.mu.Unlock()
		ok = false
	}

	status := "hit"
	if !ok {
		status = "miss"
	}
	metrics.IncScratchOperation(constants.ScratchBackendMemory, "get", status)

	if !ok {
		return "", false, nil
	}
	return item.value, true, nil
}

func (s *MemoryStore) Contains(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *MemoryStore) Clear(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
	metrics.IncScratchOperation(constants.ScratchBackendMemory, "clear", "success")
	return nil
}

// Len counts stored keys, including expired ones not yet evicted.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *MemoryStore) expired(item memoryItem) bool {
	return !item.expiresAt.IsZero() && !s.now().Before(item.expiresAt)
}
