package cachemanager

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/zjrosen/mdata/internal/log"
)

// ReadThroughCache fills misses through a per-call loader. Concurrent misses
// on one key share a single load, and failed loads are never stored.
type ReadThroughCache[K comparable, V any] struct {
	cache   CacheManager[K, V]
	ttl     time.Duration
	refresh bool
	loads   singleflight.Group
}

// NewReadThroughCache stores loaded values for ttl. With refresh set, every
// hit pushes the entry's expiry ttl into the future again.
func NewReadThroughCache[K comparable, V any](cache CacheManager[K, V], ttl time.Duration, refresh bool) *ReadThroughCache[K, V] {
	return &ReadThroughCache[K, V]{cache: cache, ttl: ttl, refresh: refresh}
}

// Get returns the cached value for key, or calls load and caches its result.
func (r *ReadThroughCache[K, V]) Get(ctx context.Context, key K, load func(ctx context.Context) (V, error)) (V, error) {
	if value, ok := r.lookup(ctx, key); ok {
		return value, nil
	}

	res, err, shared := r.loads.Do(fmt.Sprint(key), func() (any, error) {
		// A load that finished while this one waited to enter has filled the entry.
		if value, ok := r.cache.Get(ctx, key); ok {
			return value, nil
		}
		value, err := load(ctx)
		if err != nil {
			return value, err
		}
		r.cache.Set(ctx, key, value, r.ttl)
		return value, nil
	})
	if shared {
		log.Debug(log.CatCache, "shared in-flight load", "key", key)
	}
	value, _ := res.(V)
	return value, err
}

// Invalidate drops keys so the next Get reloads them. Loads already in
// flight for those keys are not joined by later callers.
func (r *ReadThroughCache[K, V]) Invalidate(ctx context.Context, keys ...K) error {
	for _, key := range keys {
		r.loads.Forget(fmt.Sprint(key))
	}
	return r.cache.Delete(ctx, keys...)
}

func (r *ReadThroughCache[K, V]) lookup(ctx context.Context, key K) (V, bool) {
	value, ok := r.cache.Get(ctx, key)
	if ok && r.refresh {
		r.cache.Set(ctx, key, value, r.ttl)
	}
	return value, ok
}
