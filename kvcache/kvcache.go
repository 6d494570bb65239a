// Package kvcache provides the key-value cache used to memoize embedding
// vectors across queries. The production backend is Redis; a no-op
// implementation keeps the engine functional when no cache is configured.
package kvcache

import (
	"context"
	"time"
)

// Cache is a minimal TTL'd byte cache.
type Cache interface {
	// Get returns the cached value for key. The second return is false
	// on a miss; an error means the backend itself failed.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// SetEx stores value under key with the given TTL.
	SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Ping checks backend liveness.
	Ping(ctx context.Context) error

	Close() error
}

// Noop is a Cache that stores nothing. Every Get is a miss.
type Noop struct{}

func (Noop) Get(ctx context.Context, key string) ([]byte, bool, error) { return nil, false, nil }

func (Noop) SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}

func (Noop) Ping(ctx context.Context) error { return nil }

func (Noop) Close() error { return nil }
