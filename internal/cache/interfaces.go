package cache

import (
	"context"
	"time"
)

// Cache is a byte-valued key store with per-key TTL. Balances and portal
// tokens live here; anything that gates money movement reads the store
// directly instead.
type Cache interface {
	// Get returns ErrCacheMiss for absent or expired keys.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// GetOrSet returns the cached value or stores and returns fn's result.
	// Errors from fn are returned as-is and nothing is stored.
	GetOrSet(ctx context.Context, key string, ttl time.Duration, fn func() ([]byte, error)) ([]byte, error)

	// Clear drops every key owned by this cache instance.
	Clear(ctx context.Context) error
}

// CacheError is a constant error value.
type CacheError string

func (e CacheError) Error() string { return string(e) }

// ErrCacheMiss indicates the key was not found in cache.
const ErrCacheMiss CacheError = "cache miss"
