// Package cachemanager provides typed caches over patrickmn/go-cache.
//
// The record layer uses it twice: as the identity index behind each entity
// type's Cache, and as the payload cache behind store.Cached.
package cachemanager

import (
	"context"
	"time"
)

// CacheManager is a typed key/value cache with per-entry TTLs.
type CacheManager[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...K) error
	Flush(ctx context.Context) error
	Count() int
}
