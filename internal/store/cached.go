package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/zjrosen/mdata/internal/cachemanager"
	"github.com/zjrosen/mdata/internal/log"
)

// Cached decorates a Store with a read-through cache over Get.
// Writes pass through and invalidate every cached read of the same URL.
type Cached struct {
	base  Store
	reads *cachemanager.ReadThroughCache[string, any]

	mu   sync.Mutex
	keys map[string]map[string]struct{} // url -> live cache keys
}

// Ensure Cached implements Store.
var _ Store = (*Cached)(nil)

// readKey is the cache key of one Get. Params are encoded as JSON so
// equivalent requests share an entry.
type readKey struct {
	URL    string `json:"u"`
	Params any    `json:"p"`
	Path   string `json:"o"`
}

// NewCached wraps base with an in-memory cache holding GET payloads for ttl.
func NewCached(base Store, ttl time.Duration) *Cached {
	manager := cachemanager.NewInMemoryCacheManager[string, any]("store", ttl, 2*ttl)
	s := &Cached{
		base:  base,
		reads: cachemanager.NewReadThroughCache[string, any](manager, ttl, false),
		keys:  make(map[string]map[string]struct{}),
	}
	manager.OnEvicted(func(key string, _ any) { s.untrack(key) })
	return s
}

// Get serves from cache when possible. Returned payloads are clones.
func (s *Cached) Get(ctx context.Context, url string, params any, opts *Options) (any, error) {
	data, err := json.Marshal(readKey{URL: url, Params: params, Path: opts.PathOf()})
	if err != nil {
		return s.base.Get(ctx, url, params, opts)
	}
	key := string(data)

	payload, err := s.reads.Get(ctx, key, func(ctx context.Context) (any, error) {
		payload, err := s.base.Get(ctx, url, params, opts)
		if err == nil {
			s.track(url, key)
		}
		return payload, err
	})
	if err != nil {
		return nil, err
	}
	return Clone(payload), nil
}

func (s *Cached) Post(ctx context.Context, url string, body map[string]any, opts *Options) (any, error) {
	defer s.invalidate(ctx, url)
	return s.base.Post(ctx, url, body, opts)
}

func (s *Cached) Put(ctx context.Context, url string, body map[string]any, opts *Options) (any, error) {
	defer s.invalidate(ctx, url)
	return s.base.Put(ctx, url, body, opts)
}

func (s *Cached) Destroy(ctx context.Context, url string, params any, opts *Options) error {
	defer s.invalidate(ctx, url)
	return s.base.Destroy(ctx, url, params, opts)
}

// tracked returns how many cached reads are held for url.
func (s *Cached) tracked(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys[url])
}

func (s *Cached) track(url, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys[url] == nil {
		s.keys[url] = make(map[string]struct{})
	}
	s.keys[url][key] = struct{}{}
}

// untrack runs when an entry expires or is deleted.
func (s *Cached) untrack(key string) {
	var k readKey
	if err := json.Unmarshal([]byte(key), &k); err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys[k.URL], key)
	if len(s.keys[k.URL]) == 0 {
		delete(s.keys, k.URL)
	}
}

func (s *Cached) invalidate(ctx context.Context, url string) {
	s.mu.Lock()
	set := s.keys[url]
	delete(s.keys, url)
	s.mu.Unlock()

	if len(set) == 0 {
		return
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	_ = s.reads.Invalidate(ctx, keys...)
	log.Debug(log.CatCache, "invalidated cached reads", "url", url, "count", len(keys))
}
