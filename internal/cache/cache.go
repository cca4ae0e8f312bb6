package cache

import (
	"context"
)

// TokenCache stores short-lived credentials by key. The generic type T
// represents the cached token type.
type TokenCache[T any] interface {
	// Get retrieves a token from the cache.
	// Returns the token, whether it was found, and any error.
	Get(ctx context.Context, key string) (T, bool, error)

	// Set stores a token in the cache.
	Set(ctx context.Context, key string, token T) error

	// Invalidate removes a token from the cache. Removing an absent key is not
	// an error.
	Invalidate(ctx context.Context, key string) error

	// Close releases any resources held by the cache.
	Close() error
}
