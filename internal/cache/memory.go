package cache

import (
	"context"
	"time"

	"github.com/maypok86/otter/v2"
)

// Memory is an in-memory cache implementation using otter. Entries expire ttl
// after they are written, regardless of how often they are read.
type Memory[T any] struct {
	cache *otter.Cache[string, T]
	ttl   time.Duration
}

var _ TokenCache[string] = (*Memory[string])(nil)

// NewMemory creates a new in-memory cache with the specified TTL and max size.
func NewMemory[T any](ttl time.Duration, maxSize int) (*Memory[T], error) {
	cache, err := otter.New(&otter.Options[string, T]{
		MaximumSize:      maxSize,
		ExpiryCalculator: otter.ExpiryCreating[string, T](ttl),
	})
	if err != nil {
		return nil, err
	}

	return &Memory[T]{
		cache: cache,
		ttl:   ttl,
	}, nil
}

// TTL returns the lifetime of an entry.
func (m *Memory[T]) TTL() time.Duration {
	return m.ttl
}

func (m *Memory[T]) Get(ctx context.Context, key string) (T, bool, error) {
	value, ok := m.cache.GetIfPresent(key)
	return value, ok, nil
}

func (m *Memory[T]) Set(ctx context.Context, key string, token T) error {
	m.cache.Set(key, token)
	return nil
}

func (m *Memory[T]) Invalidate(ctx context.Context, key string) error {
	m.cache.Invalidate(key)
	return nil
}

func (m *Memory[T]) Close() error {
	m.cache.InvalidateAll()
	return nil
}
