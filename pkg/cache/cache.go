// Package cache provides pluggable caching for Dropstage.
//
// Runs repeatedly parse the same asset pools and re-serialize the same
// annotation payloads; the cache lets those survive across process restarts.
// Three backends are provided:
//   - FileCache: per-user on-disk cache for CLI usage
//   - RedisCache: shared cache for the job server
//   - NullCache: caching disabled
//
// Keys are derived by hashing the identifying components (sha256), so a
// cache never returns results for a different pool file or channel.
package cache

import (
	"context"
	"time"
)

// Cache is the storage interface shared by all backends.
type Cache interface {
	// Get retrieves a value. The second return reports whether the key was
	// present and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with a time-to-live. A zero ttl never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Default TTLs per payload class. Keys embed the source file's modification
// time, so stale entries become unreachable when the file changes and a long
// lifetime is safe.
const (
	// TTLPool is the lifetime of parsed asset pools.
	TTLPool = 7 * 24 * time.Hour

	// TTLChannel is the lifetime of parsed channel definitions.
	TTLChannel = 7 * 24 * time.Hour
)

// PoolKey returns the cache key for a parsed asset pool.
func PoolKey(path string, modTime int64) string {
	return hashKey("pool", path, modTime)
}

// ChannelKey returns the cache key for a parsed channel definition.
func ChannelKey(path string, modTime int64) string {
	return hashKey("channel", path, modTime)
}
