package model

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/zjrosen/mdata/internal/log"
	"github.com/zjrosen/mdata/internal/pubsub"
	"github.com/zjrosen/mdata/internal/store"
)

// PopulateOptions tunes Populate.
type PopulateOptions struct {
	// Fetch holds per-field store options for the reference fetches.
	Fetch map[string]*store.Options
}

func (o *PopulateOptions) fetchOptions(field string) *store.Options {
	if o == nil {
		return nil
	}
	return o.Fetch[field]
}

// Save creates (POST) or updates (PUT) the record depending on whether it has
// an identity, then merges the returned payload as store data. A Save is made
// even when the record is not dirty. Concurrent Saves are not serialized.
func (r *Record) Save(ctx context.Context, opts *store.Options) error {
	r.mustLive("Save")
	st, err := r.reg.store("save", r.Entity())
	if err != nil {
		return err
	}

	body := r.Copy(false, opts.ShouldDepopulate())
	_, hasID := r.identity()

	r.setWorking(Saving)
	var payload any
	if hasID {
		payload, err = st.Put(ctx, r.URL(), body, opts)
	} else {
		payload, err = st.Post(ctx, r.URL(), body, opts)
	}
	if err != nil {
		r.setWorking(Idle)
		log.ErrorErr(log.CatRecord, "Save failed", err, "entity", r.Entity(), "lid", r.lid)
		return err
	}
	if r.IsDisposed() {
		return nil
	}

	if doc := store.Document(store.Pluck(payload, opts.PathOf())); doc != nil {
		r.SetData(doc, false, true)
	}
	_, hasID = r.identity()
	r.mu.Lock()
	r.saved = hasID
	r.working = Idle
	r.mu.Unlock()
	r.addToCache()

	log.Debug(log.CatRecord, "Saved record", "entity", r.Entity(), "lid", r.lid, "id", r.ID())
	return nil
}

// Fetch reloads the record from the store by identity. An empty payload
// marks the record unsaved. Without an identity it returns a
// *PreconditionError and never calls the store.
func (r *Record) Fetch(ctx context.Context, opts *store.Options) error {
	r.mustLive("Fetch")
	id, ok := r.identity()
	if !ok {
		return &PreconditionError{Op: "fetch", Entity: r.Entity()}
	}
	st, err := r.reg.store("fetch", r.Entity())
	if err != nil {
		return err
	}

	r.setWorking(Fetching)
	payload, err := st.Get(ctx, r.URL(), map[string]any{r.ctrl.table.keyID: r.ID()}, opts)
	if err != nil {
		r.setWorking(Idle)
		log.ErrorErr(log.CatRecord, "Fetch failed", err, "entity", r.Entity(), "id", id)
		return err
	}
	if r.IsDisposed() {
		return nil
	}

	doc := store.Document(store.Pluck(payload, opts.PathOf()))
	if doc != nil {
		r.SetData(doc, false, true)
	}
	_, hasID := r.identity()
	r.mu.Lock()
	r.saved = doc != nil && hasID
	r.working = Idle
	r.mu.Unlock()
	r.addToCache()

	log.Debug(log.CatRecord, "Fetched record", "entity", r.Entity(), "id", id, "found", doc != nil)
	return nil
}

// Populate resolves every reference field that still holds a bare identity.
// References already known as saved are linked immediately; the rest are
// fetched concurrently and linked as they arrive. Populate waits for every
// fetch and returns the first error.
func (r *Record) Populate(ctx context.Context, opts *PopulateOptions) error {
	r.mustLive("Populate")
	t := r.ctrl.table

	var g errgroup.Group
	for _, field := range t.order {
		if !t.isRef(field) {
			continue
		}
		raw := r.json.get(field)
		if _, ok := store.Key(raw); !ok || !store.IsIdentity(raw) {
			continue
		}

		target := r.reg.mustController("Populate", t.refs[field])
		ref := target.createOne(map[string]any{t.keyID: raw}, false, true)
		if ref.IsSaved() {
			r.Set(field, ref)
			continue
		}

		fetchOpts := opts.fetchOptions(field)
		g.Go(func() error {
			if err := ref.Fetch(ctx, fetchOpts); err != nil {
				return err
			}
			if !r.IsDisposed() && !ref.IsDisposed() {
				r.Set(field, ref)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.ErrorErr(log.CatRecord, "Populate failed", err, "entity", r.Entity(), "lid", r.lid)
		return err
	}
	return nil
}

// Destroy deletes the record in the store, detaches it from every
// collection and disposes it. Without an identity it returns a
// *PreconditionError and never calls the store.
func (r *Record) Destroy(ctx context.Context, opts *store.Options) error {
	r.mustLive("Destroy")
	id, ok := r.identity()
	if !ok {
		return &PreconditionError{Op: "destroy", Entity: r.Entity()}
	}
	st, err := r.reg.store("destroy", r.Entity())
	if err != nil {
		return err
	}

	r.setWorking(Destroying)
	if err := st.Destroy(ctx, r.URL(), map[string]any{r.ctrl.table.keyID: r.ID()}, opts); err != nil {
		r.setWorking(Idle)
		log.ErrorErr(log.CatRecord, "Destroy failed", err, "entity", r.Entity(), "id", id)
		return err
	}
	if r.IsDisposed() {
		return nil
	}

	r.Detach()
	r.setWorking(Idle)
	r.reg.publish(pubsub.DeletedEvent, r.event("", ""))
	r.Dispose()

	log.Debug(log.CatRecord, "Destroyed record", "entity", r.Entity(), "id", id)
	return nil
}

// Remove detaches and disposes the record without calling the store.
func (r *Record) Remove() {
	r.mustLive("Remove")
	r.Detach()
	r.Dispose()
}

// Detach removes the record from every collection holding it.
func (r *Record) Detach() {
	r.mustLive("Detach")
	for _, c := range r.Collections() {
		if !c.IsDisposed() {
			c.Remove(false, r)
		}
	}
}

// Dispose severs the snapshot back-pointer and clears all state.
// Every later method call except IsDisposed and Dispose panics.
func (r *Record) Dispose() {
	if r.disposed.Swap(true) {
		return
	}
	ev := r.event("", "")
	r.mu.Lock()
	r.cells = nil
	r.collections = nil
	r.working = Idle
	r.mu.Unlock()
	r.json.clear()
	r.reg.publish(pubsub.DisposedEvent, ev)
}

// discard disposes a record that never became a member, without events.
func (r *Record) discard() {
	if r.disposed.Swap(true) {
		return
	}
	r.mu.Lock()
	r.cells = nil
	r.collections = nil
	r.mu.Unlock()
	r.json.clear()
}

func (r *Record) addToCache() {
	if !r.ctrl.schema.Cache || !r.IsSaved() || r.IsDisposed() {
		return
	}
	r.ctrl.cache.Put(r)
}
