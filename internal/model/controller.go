package model

import (
	"context"
	"slices"

	"github.com/zjrosen/mdata/internal/log"
	"github.com/zjrosen/mdata/internal/pubsub"
	"github.com/zjrosen/mdata/internal/store"
)

// Controller is the entity type handle. It constructs records, holds every
// live record of its type as a Collection, and owns the type's Cache.
type Controller struct {
	*Collection

	reg    *Registry
	schema Schema
	table  *fieldTable
	url    string
	cache  *Cache
}

func newController(reg *Registry, schema Schema, table *fieldTable, o controllerOptions) *Controller {
	c := &Controller{
		reg:    reg,
		schema: schema,
		table:  table,
		url:    reg.baseURL(schema),
	}
	c.Collection = NewCollection(reg, CollectionOptions{Name: schema.Name, Model: c, Redraw: o.redraw})
	c.cache = newCache(reg, c)
	return c
}

// Schema returns the entity declaration with Fields normalized.
func (c *Controller) Schema() Schema {
	return c.schema
}

// Fields returns the declared fields in declaration order.
func (c *Controller) Fields() []string {
	return slices.Clone(c.table.order)
}

// HasField reports whether field is declared.
func (c *Controller) HasField(field string) bool {
	return c.table.has(field)
}

// RefTarget returns the entity type referenced by field.
func (c *Controller) RefTarget(field string) (string, bool) {
	target, ok := c.table.refs[field]
	return target, ok
}

// URL returns the resource URL.
func (c *Controller) URL() string {
	return c.url
}

// Cache returns the identity cache.
func (c *Controller) Cache() *Cache {
	return c.cache
}

// New constructs a record from data and adds it to the controller.
// A nil map yields a record with default values only.
func (c *Controller) New(data map[string]any) *Record {
	return c.construct(data, false)
}

// Create merges each item into the member with the same identity, or
// constructs a new record. Items without identity always construct.
func (c *Controller) Create(items ...map[string]any) []*Record {
	return c.create(items, false)
}

func (c *Controller) create(items []map[string]any, fromStore bool) []*Record {
	c.mustLive("Create")
	out := make([]*Record, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, c.createOne(item, fromStore, false))
	}
	return out
}

// createOne is lookup-or-create for one item. Store data marks the record
// saved and caches it. A nested create runs on behalf of a reference write:
// it publishes events but leaves the redraw decision to the outer write.
func (c *Controller) createOne(item map[string]any, fromStore, nested bool) *Record {
	var rec *Record
	if k, ok := store.Key(item[c.table.keyID]); ok {
		rec = c.byKey(k)
		if rec == nil {
			rec = c.cache.Lookup(k)
		}
	}
	if rec != nil {
		c.mergeInto(rec, item, fromStore, nested)
	} else {
		r := c.build(item, fromStore)
		existing, inserted := c.insert(r, false)
		switch {
		case existing != nil:
			// Lost a race with another create of the same identity.
			r.discard()
			rec = existing
			c.mergeInto(rec, item, fromStore, nested)
		case inserted:
			rec = r
			c.added(rec, nested)
		default:
			rec = r
		}
	}
	if _, ok := rec.identity(); ok && fromStore {
		rec.markSaved()
		rec.addToCache()
	}
	return rec
}

func (c *Controller) mergeInto(rec *Record, item map[string]any, fromStore, nested bool) {
	if !nested {
		rec.SetData(item, false, fromStore)
		return
	}
	rec.SetData(item, true, fromStore)
	c.reg.publish(pubsub.UpdatedEvent, rec.event("", ""))
}

func (c *Controller) added(r *Record, nested bool) {
	log.Debug(log.CatCollection, "Added record", "collection", c.name, "entity", c.schema.Name, "lid", r.lid)
	if nested {
		c.announce(pubsub.AddedEvent, r)
	} else {
		c.changed(pubsub.AddedEvent, r)
	}
	c.reg.publish(pubsub.CreatedEvent, r.event("", ""))
	log.Debug(log.CatRecord, "Constructed record", "entity", c.schema.Name, "lid", r.lid)
}

// construct builds a record and adds it. A record whose identity is already
// held by a member is merged into that member and returned unattached.
func (c *Controller) construct(data map[string]any, fromStore bool) *Record {
	r := c.build(data, fromStore)
	// Cannot fail: the record has this controller's type.
	if added, _ := c.Add(r, false, false); added {
		c.reg.publish(pubsub.CreatedEvent, r.event("", ""))
		log.Debug(log.CatRecord, "Constructed record", "entity", c.schema.Name, "lid", r.lid)
	}
	return r
}

func (c *Controller) build(data map[string]any, fromStore bool) *Record {
	c.mustLive("New")
	r := newRecord(c)
	if data != nil && c.schema.Parser != nil {
		data = c.schema.Parser(store.CloneDocument(data))
	}
	for _, field := range c.table.order {
		value := data[field]
		if value == nil && !c.table.isRef(field) {
			value = store.Clone(c.schema.Defaults[field])
		}
		r.writeField(field, value, fromStore, true)
	}
	return r
}

// LoadByID fetches the given identities that are not yet members with a
// single bulk read, then merges the results. It skips the store when every
// identity is already present.
func (c *Controller) LoadByID(ctx context.Context, ids ...any) error {
	c.mustLive("LoadByID")
	if len(ids) == 0 {
		return &PreconditionError{Op: "loadById", Entity: c.schema.Name}
	}

	present := make(map[string]bool)
	for _, r := range c.Records() {
		if k, ok := r.identity(); ok {
			present[k] = true
		}
	}

	var toLoad []any
	for _, id := range ids {
		k, ok := store.Key(id)
		if !ok || present[k] {
			continue
		}
		present[k] = true
		toLoad = append(toLoad, id)
	}
	if len(toLoad) == 0 {
		log.Debug(log.CatCollection, "All identities present, skipping load", "entity", c.schema.Name, "requested", len(ids))
		return nil
	}

	st, err := c.reg.store("loadById", c.schema.Name)
	if err != nil {
		return err
	}
	payload, err := st.Get(ctx, c.url, toLoad, nil)
	if err != nil {
		log.ErrorErr(log.CatCollection, "Bulk load failed", err, "entity", c.schema.Name, "count", len(toLoad))
		return err
	}
	loaded := c.create(store.Documents(payload), true)
	log.Debug(log.CatCollection, "Loaded records", "entity", c.schema.Name, "requested", len(toLoad), "loaded", len(loaded))
	return nil
}

// PullByID is LoadByID followed by returning the members for ids, in order.
func (c *Controller) PullByID(ctx context.Context, ids ...any) ([]*Record, error) {
	if err := c.LoadByID(ctx, ids...); err != nil {
		return nil, err
	}
	return c.GetAll(ids, false), nil
}
