// Package cache stores converted cell collections so repeated conversions
// of an unchanged store skip decoding.
//
// Three backends implement [Cache]:
//   - [FileCache]: sharded JSON entries under a directory (CLI default)
//   - [RedisCache]: a shared Redis instance (server deployments)
//   - [NullCache]: caching disabled
//
// Keys come from a [Keyer], which hashes the store fingerprint together with
// every option that changes the output. [ScopedKeyer] adds a namespace
// prefix so several deployments can share one Redis.
package cache

import (
	"context"
	"time"
)

// Cache is a byte store with per-entry expiry.
type Cache interface {
	// Get returns the value for key and whether it was found.
	// Expired entries are reported as misses.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of zero never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Default TTLs.
const (
	// TTLCollection is how long a converted collection stays cached. Source
	// stores are immutable instrument output, so entries live long.
	TTLCollection = 7 * 24 * time.Hour
)

// Backend names accepted by [New].
const (
	BackendFile  = "file"
	BackendRedis = "redis"
	BackendNone  = "none"
)
