// Package scratch keeps short-lived values shared between the elements of
// one rating stream, such as the header seen before its records.
package scratch

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"ratingcore/internal/config"
	"ratingcore/internal/constants"
)

type Store interface {
	Put(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, bool, error)
	Contains(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context, key string) error
}

// New returns the store selected by cfg. The redis client is only required
// for the redis backend.
func New(cfg config.ScratchConfig, rdb *redis.Client) (Store, error) {
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = constants.DefaultScratchTTL * time.Second
	}

	switch cfg.Backend {
	case "", constants.ScratchBackendMemory:
		return NewMemoryStore(ttl), nil
	case constants.ScratchBackendRedis:
		if rdb == nil {
			return nil, fmt.Errorf("scratch backend redis requires a redis connection")
		}
		prefix := cfg.KeyPrefix
		if prefix == "" {
			prefix = constants.DefaultScratchPrefix
		}
		return NewRedisStore(rdb, prefix, ttl), nil
	default:
		return nil, fmt.Errorf("unknown scratch backend: %s", cfg.Backend)
	}
}
