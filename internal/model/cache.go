package model

import (
	"context"

	"github.com/zjrosen/mdata/internal/cachemanager"
	"github.com/zjrosen/mdata/internal/store"
)

// Cache deduplicates references: it holds the saved records of one entity
// type so a bare identity written to a reference field resolves to the
// record already in memory. It is a Collection with an identity index.
type Cache struct {
	*Collection
	index *cachemanager.InMemoryCacheManager[string, *Snapshot]
}

func newCache(reg *Registry, ctrl *Controller) *Cache {
	return &Cache{
		Collection: NewCollection(reg, CollectionOptions{Name: ctrl.schema.Name + ".cache", Model: ctrl}),
		index:      cachemanager.NewInMemoryCacheManager[string, *Snapshot](ctrl.schema.Name, cachemanager.NoExpiration, 0),
	}
}

// Lookup returns the cached record with identity id, or nil.
func (c *Cache) Lookup(id any) *Record {
	key, ok := store.Key(id)
	if !ok || c.IsDisposed() {
		return nil
	}
	ctx := context.Background()
	if snap, found := c.index.Get(ctx, key); found {
		if k, has := snap.key(c.reg.cfg.KeyID); has && k == key && c.containsSnapshot(snap) {
			if owner := snap.Record(); owner != nil {
				return owner
			}
		}
		_ = c.index.Delete(ctx, key)
	}

	r := c.byKey(key)
	if r != nil {
		c.index.Set(ctx, key, r.json, cachemanager.NoExpiration)
	}
	return r
}

// Put adds r to the cache without notification. It reports whether r became a member.
func (c *Cache) Put(r *Record) bool {
	if c.IsDisposed() {
		return false
	}
	added, err := c.Add(r, false, true)
	if err != nil {
		return false
	}
	if key, ok := r.identity(); ok {
		c.index.Set(context.Background(), key, r.json, cachemanager.NoExpiration)
	}
	return added
}
