package model

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/zjrosen/mdata/internal/log"
	"github.com/zjrosen/mdata/internal/pubsub"
	"github.com/zjrosen/mdata/internal/store"
)

// CollectionOptions configures a Collection.
type CollectionOptions struct {
	// Name labels the collection in change events and logs.
	Name string

	// Model restricts membership to records of one entity type.
	Model *Controller

	// Redraw makes membership changes and member writes request a redraw.
	Redraw bool
}

// Collection is an ordered set of record snapshots, unique by identity.
//
// A record is a member exactly when the collection holds its snapshot, and
// every member record lists the collection among its Collections.
type Collection struct {
	reg   *Registry
	name  string
	model *Controller

	mu    sync.RWMutex
	items []*Snapshot

	redraw   atomic.Bool
	disposed atomic.Bool
}

// NewCollection creates an empty collection bound to reg.
func NewCollection(reg *Registry, opts CollectionOptions) *Collection {
	c := &Collection{reg: reg, name: opts.Name, model: opts.Model}
	c.redraw.Store(opts.Redraw)
	return c
}

func (c *Collection) mustLive(op string) {
	if c == nil {
		violation(op, "nil collection")
	}
	if c.disposed.Load() {
		violation(op, "collection %q is disposed", c.name)
	}
}

// Name returns the collection label.
func (c *Collection) Name() string {
	return c.name
}

// Model returns the entity type constraint, or nil.
func (c *Collection) Model() *Controller {
	return c.model
}

// SetRedraw toggles the collection-level redraw opt-in.
func (c *Collection) SetRedraw(enabled bool) {
	c.redraw.Store(enabled)
}

// IsDisposed reports whether Dispose has run.
func (c *Collection) IsDisposed() bool {
	return c.disposed.Load()
}

// Add inserts r (at the front when unshift) unless a member with the same
// identity exists, in which case that member is merged from r and no
// membership is created. It reports whether r became a member. A record of
// the wrong entity type yields a *ContractViolationError.
func (c *Collection) Add(r *Record, unshift, silent bool) (bool, error) {
	c.mustLive("Add")
	if r == nil {
		return false, &ContractViolationError{Op: "add", Reason: "record is nil"}
	}
	if r.IsDisposed() {
		return false, &ContractViolationError{Op: "add", Reason: fmt.Sprintf("%s record %s is disposed", r.Entity(), r.lid)}
	}
	if c.model != nil && r.ctrl != c.model {
		return false, &ContractViolationError{
			Op:     "add",
			Reason: fmt.Sprintf("%s record cannot join collection of %s", r.Entity(), c.model.schema.Name),
		}
	}

	existing, inserted := c.insert(r, unshift)
	if existing != nil {
		existing.Merge(r, false, false)
		return false, nil
	}
	if !inserted {
		return false, nil
	}

	log.Debug(log.CatCollection, "Added record", "collection", c.name, "entity", r.Entity(), "lid", r.lid)
	if !silent {
		c.changed(pubsub.AddedEvent, r)
	}
	return true, nil
}

// insert places r unless it is already a member. When another member holds
// the same identity nothing is inserted and that member is returned, so two
// concurrent inserts of one identity always agree on a single record.
func (c *Collection) insert(r *Record, unshift bool) (existing *Record, inserted bool) {
	keyID := c.reg.cfg.KeyID
	id, hasID := r.identity()

	// attach and detach run under c.mu so membership and back-references change together.
	c.mu.Lock()
	defer c.mu.Unlock()
	if slices.Contains(c.items, r.json) {
		r.attach(c)
		return nil, false
	}
	if hasID {
		for _, s := range c.items {
			if k, ok := s.key(keyID); ok && k == id {
				if existing = s.Record(); existing != nil {
					return existing, false
				}
			}
		}
	}
	if unshift {
		c.items = slices.Insert(c.items, 0, r.json)
	} else {
		c.items = append(c.items, r.json)
	}
	r.attach(c)
	return nil, true
}

// announce publishes membership events without redrawing.
func (c *Collection) announce(t pubsub.EventType, records ...*Record) {
	for _, r := range records {
		c.reg.publish(t, r.event("", c.name))
	}
}

// AddAll adds every record and notifies once. It stops at the first error.
func (c *Collection) AddAll(records []*Record, unshift, silent bool) (bool, error) {
	c.mustLive("AddAll")
	var added []*Record
	var err error
	for _, r := range records {
		var ok bool
		ok, err = c.Add(r, unshift, true)
		if err != nil {
			break
		}
		if ok {
			added = append(added, r)
		}
	}
	if len(added) > 0 && !silent {
		c.changed(pubsub.AddedEvent, added...)
	}
	return len(added) > 0, err
}

// Push appends records.
func (c *Collection) Push(records []*Record, silent bool) (bool, error) {
	return c.AddAll(records, false, silent)
}

// Unshift prepends records one by one, so the last record ends up first.
func (c *Collection) Unshift(records []*Record, silent bool) (bool, error) {
	return c.AddAll(records, true, silent)
}

// Shift removes and returns the first member.
func (c *Collection) Shift(silent bool) *Record {
	r := c.First()
	if r != nil {
		c.Remove(silent, r)
	}
	return r
}

// Pop removes and returns the last member.
func (c *Collection) Pop(silent bool) *Record {
	r := c.Last()
	if r != nil {
		c.Remove(silent, r)
	}
	return r
}

// Clear removes every member.
func (c *Collection) Clear(silent bool) {
	records := c.Records()
	if len(records) == 0 {
		return
	}
	items := make([]any, len(records))
	for i, r := range records {
		items[i] = r
	}
	c.Remove(silent, items...)
}

// Remove removes every member matched by items and returns the new size.
// An item is a *Record or *Snapshot (matched by membership), a map (matched
// field by field) or a bare identity. A nil item is a contract violation.
func (c *Collection) Remove(silent bool, items ...any) int {
	c.mustLive("Remove")
	for _, item := range items {
		if item == nil {
			violation("Remove", "item must be set")
		}
		if r, ok := item.(*Record); ok && r == nil {
			violation("Remove", "item must be set")
		}
	}

	keyID := c.reg.cfg.KeyID
	var removed []*Snapshot

	c.mu.Lock()
	if len(c.items) == 0 {
		c.mu.Unlock()
		return 0
	}
	for _, item := range items {
		match := matcherFor(item, keyID)
		c.items = slices.DeleteFunc(c.items, func(s *Snapshot) bool {
			if match(s) {
				removed = append(removed, s)
				return true
			}
			return false
		})
	}
	var records []*Record
	for _, s := range removed {
		if owner := s.Record(); owner != nil {
			owner.detach(c)
			records = append(records, owner)
		}
	}
	size := len(c.items)
	c.mu.Unlock()

	if len(removed) > 0 {
		log.Debug(log.CatCollection, "Removed records", "collection", c.name, "count", len(removed))
		if !silent {
			c.changed(pubsub.RemovedEvent, records...)
		}
	}
	return size
}

// Destroy clears the collection silently and disposes it.
func (c *Collection) Destroy() {
	c.mustLive("Destroy")
	c.Clear(true)
	c.Dispose()
}

// Dispose drops all members without notification. Later use panics.
func (c *Collection) Dispose() {
	if c.disposed.Swap(true) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.items {
		if owner := s.Record(); owner != nil {
			owner.detach(c)
		}
	}
	c.items = nil
}

// memberChanged is called by a member record after a write. It reports
// whether this collection wants a redraw.
func (c *Collection) memberChanged(r *Record) bool {
	if c.disposed.Load() {
		return false
	}
	return c.redraw.Load()
}

// changed publishes membership events and redraws when the collection or
// the registry opts in.
func (c *Collection) changed(t pubsub.EventType, records ...*Record) {
	c.announce(t, records...)
	if c.redraw.Load() || c.reg.cfg.Redraw {
		c.reg.redraw()
	}
}

// matcherFor builds the predicate used by Remove.
func matcherFor(item any, keyID string) func(*Snapshot) bool {
	switch v := item.(type) {
	case *Record:
		return func(s *Snapshot) bool { return s == v.json }
	case *Snapshot:
		return func(s *Snapshot) bool { return s == v }
	case map[string]any:
		return func(s *Snapshot) bool { return s.Record() != nil && s.matches(v, keyID) }
	default:
		want, ok := store.Key(v)
		return func(s *Snapshot) bool {
			if !ok {
				return false
			}
			k, has := s.key(keyID)
			return has && k == want
		}
	}
}
