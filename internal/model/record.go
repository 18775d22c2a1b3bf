package model

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/zjrosen/mdata/internal/pubsub"
	"github.com/zjrosen/mdata/internal/store"
)

// Working is the persistence operation a record is waiting on.
type Working int

const (
	Idle Working = iota
	Fetching
	Saving
	Destroying
)

func (w Working) String() string {
	switch w {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Saving:
		return "saving"
	case Destroying:
		return "destroying"
	default:
		return "unknown"
	}
}

// Record is one entity instance.
type Record struct {
	ctrl *Controller
	reg  *Registry
	lid  string
	json *Snapshot

	mu          sync.RWMutex
	cells       map[string]*Cell
	saved       bool
	modified    bool
	working     Working
	collections []*Collection
	redraw      bool
	parse       bool

	disposed atomic.Bool
}

func newRecord(ctrl *Controller) *Record {
	r := &Record{
		ctrl:  ctrl,
		reg:   ctrl.reg,
		lid:   uuid.NewString(),
		parse: true,
	}
	r.json = newSnapshot(r, len(ctrl.table.order))
	r.cells = make(map[string]*Cell, len(ctrl.table.order))
	for _, field := range ctrl.table.order {
		r.cells[field] = &Cell{rec: r, key: field}
	}
	return r
}

func (r *Record) mustLive(op string) {
	if r == nil {
		violation(op, "nil record")
	}
	if r.disposed.Load() {
		violation(op, "%s record %s is disposed", r.ctrl.schema.Name, r.lid)
	}
}

// LID returns the local identifier assigned at construction.
func (r *Record) LID() string {
	return r.lid
}

// Entity returns the entity type name.
func (r *Record) Entity() string {
	return r.ctrl.schema.Name
}

// Controller returns the record's entity type controller.
func (r *Record) Controller() *Controller {
	return r.ctrl
}

// URL returns the resource URL used for persistence.
func (r *Record) URL() string {
	return r.ctrl.url
}

// ID returns the raw identity value, or nil.
func (r *Record) ID() any {
	r.mustLive("ID")
	return r.json.get(r.ctrl.table.keyID)
}

// SetID writes the identity field without notification.
func (r *Record) SetID(id any) {
	r.SetWith(r.ctrl.table.keyID, id, true, false)
}

func (r *Record) identity() (string, bool) {
	return r.json.key(r.ctrl.table.keyID)
}

// Cell returns the cell of a declared field.
func (r *Record) Cell(field string) *Cell {
	r.mustLive("Cell")
	r.ctrl.table.mustHave("Cell", r.ctrl.schema.Name, field)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cells[field]
}

// Get reads a declared field. Reference fields resolve to the live *Record.
func (r *Record) Get(field string) any {
	r.mustLive("Get")
	t := r.ctrl.table
	t.mustHave("Get", r.ctrl.schema.Name, field)

	value := r.json.get(field)
	if snap, ok := value.(*Snapshot); ok {
		if owner := snap.Record(); owner != nil {
			value = owner
		} else {
			value = nil
		}
	}
	if value == nil {
		value = r.ctrl.schema.Defaults[field]
	}

	if t.placehold[field] && r.reg.cfg.Placeholder != nil && r.IsFetching() {
		return r.reg.cfg.Placeholder
	}
	return value
}

// Ref reads a reference field as a *Record. It returns nil for an unresolved identity.
func (r *Record) Ref(field string) *Record {
	if !r.ctrl.table.isRef(field) {
		r.mustLive("Ref")
		violation("Ref", "%s.%s is not a reference field", r.ctrl.schema.Name, field)
	}
	ref, _ := r.Get(field).(*Record)
	return ref
}

// Set writes a declared field and notifies.
func (r *Record) Set(field string, value any) {
	r.SetWith(field, value, false, false)
}

// SetWith writes a declared field. silent skips propagation; fromStore
// marks the value as authoritative and clears the modified flag.
func (r *Record) SetWith(field string, value any, silent, fromStore bool) {
	r.mustLive("Set")
	r.writeField(field, value, fromStore, false)
	if !silent {
		r.propagate(field)
	}
}

// SetData writes every declared field present in data, skipping unknown keys.
// A saved identity is kept unless the data comes from the store.
// Propagation happens once, after all fields are written.
func (r *Record) SetData(data map[string]any, silent, fromStore bool) {
	r.mustLive("SetData")
	if r.shouldParse() && r.ctrl.schema.Parser != nil {
		data = r.ctrl.schema.Parser(store.CloneDocument(data))
	}
	r.assign(data, fromStore)
	if !silent {
		r.propagate("")
	}
}

// Merge copies other's declared values into r with the same rules as SetData.
// Reference values are linked, not copied.
func (r *Record) Merge(other *Record, silent, fromStore bool) {
	r.mustLive("Merge")
	other.mustLive("Merge")
	if other != r {
		r.assign(other.json.Values(), fromStore)
	}
	if !silent {
		r.propagate("")
	}
}

func (r *Record) assign(data map[string]any, fromStore bool) {
	keyID := r.ctrl.table.keyID
	_, hasID := r.identity()
	saved := r.IsSaved()
	for _, field := range r.ctrl.table.order {
		value, present := data[field]
		if !present {
			continue
		}
		// A saved identity is fixed; an unsaved one can be re-keyed but not cleared.
		if field == keyID && hasID && !fromStore {
			if _, ok := store.Key(value); saved || !ok {
				continue
			}
		}
		r.writeField(field, value, fromStore, false)
	}
}

// writeField stores value, coercing references to snapshots.
func (r *Record) writeField(field string, value any, fromStore, initial bool) {
	t := r.ctrl.table
	t.mustHave("Set", r.ctrl.schema.Name, field)

	var stored any
	if t.isRef(field) {
		stored = r.coerceRef(field, t.refs[field], value, fromStore)
	} else {
		switch value.(type) {
		case *Record, *Snapshot:
			violation("Set", "%s.%s is not a reference field", r.ctrl.schema.Name, field)
		}
		stored = value
	}

	r.mu.Lock()
	prev := r.json.swap(field, stored)
	switch {
	case fromStore:
		r.modified = false
	case initial:
	case !sameValue(prev, stored, t.keyID):
		r.modified = true
	}
	r.mu.Unlock()
}

// coerceRef turns a reference write into the value to store: the referenced
// record's snapshot, a bare identity, or nil.
func (r *Record) coerceRef(field, target string, value any, fromStore bool) any {
	const op = "Set"
	ctrl := r.reg.mustController(op, target)

	var ref *Record
	switch v := value.(type) {
	case nil:
		return nil
	case *Record:
		v.mustLive(op)
		ref = v
	case *Snapshot:
		ref = v.Record()
		if ref == nil {
			return nil
		}
	case map[string]any:
		ref = ctrl.createOne(v, fromStore, true)
	default:
		if !store.IsIdentity(v) {
			violation(op, "%s.%s cannot hold a %T", r.ctrl.schema.Name, field, value)
		}
		if cached := ctrl.cache.Lookup(v); cached != nil {
			ref = cached
			break
		}
		return v
	}

	if ref.ctrl != ctrl {
		violation(op, "%s.%s references %s, got %s", r.ctrl.schema.Name, field, target, ref.ctrl.schema.Name)
	}
	if _, ok := ref.identity(); ok && fromStore {
		ref.markSaved()
	}
	return ref.json
}

// JSON returns the live snapshot. Callers must not mutate it.
func (r *Record) JSON() *Snapshot {
	r.mustLive("JSON")
	return r.json
}

// Copy returns a fresh map of the declared fields.
// References become nested copies (with their own references depopulated)
// or, with depopulate, the referenced identity. deep clones nested maps and slices.
func (r *Record) Copy(deep, depopulate bool) map[string]any {
	r.mustLive("Copy")
	values := r.json.Values()
	out := make(map[string]any, len(r.ctrl.table.order))
	for _, field := range r.ctrl.table.order {
		value := values[field]
		if snap, ok := value.(*Snapshot); ok {
			owner := snap.Record()
			switch {
			case owner == nil:
				out[field] = nil
			case depopulate:
				out[field] = owner.ID()
			default:
				out[field] = owner.Copy(deep, true)
			}
			continue
		}
		if deep {
			value = store.Clone(value)
		}
		out[field] = value
	}
	return out
}

// Has reports whether field is declared.
func (r *Record) Has(field string) bool {
	return r.ctrl.table.has(field)
}

// Keys returns the declared fields in declaration order.
func (r *Record) Keys() []string {
	return slices.Clone(r.ctrl.table.order)
}

// Values returns the field values of Copy(false, true) in declaration order.
func (r *Record) Values() []any {
	c := r.Copy(false, true)
	out := make([]any, 0, len(c))
	for _, field := range r.ctrl.table.order {
		out = append(out, c[field])
	}
	return out
}

// Pick returns a depopulated copy restricted to fields.
func (r *Record) Pick(fields ...string) map[string]any {
	c := r.Copy(false, true)
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := c[f]; ok {
			out[f] = v
		}
	}
	return out
}

// Omit returns a depopulated copy without fields.
func (r *Record) Omit(fields ...string) map[string]any {
	c := r.Copy(false, true)
	for _, f := range fields {
		delete(c, f)
	}
	return c
}

// SetRedraw opts this instance into redraw on change.
func (r *Record) SetRedraw(enabled bool) {
	r.mustLive("SetRedraw")
	r.mu.Lock()
	r.redraw = enabled
	r.mu.Unlock()
}

// SetParse toggles the schema parser for bulk writes of plain data.
func (r *Record) SetParse(enabled bool) {
	r.mustLive("SetParse")
	r.mu.Lock()
	r.parse = enabled
	r.mu.Unlock()
}

func (r *Record) shouldParse() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.parse
}

// IsSaved reports whether the record's state came from the store.
func (r *Record) IsSaved() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.saved
}

// IsNew is !IsSaved.
func (r *Record) IsNew() bool {
	return !r.IsSaved()
}

// IsModified reports whether a field changed since the last store write.
func (r *Record) IsModified() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.modified
}

// IsDirty is IsNew || IsModified.
func (r *Record) IsDirty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.saved || r.modified
}

// Working returns the pending persistence operation.
func (r *Record) Working() Working {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.working
}

// IsWorking reports whether a store call is in flight.
func (r *Record) IsWorking() bool { return r.Working() != Idle }

// IsFetching reports whether a Fetch is in flight.
func (r *Record) IsFetching() bool { return r.Working() == Fetching }

// IsSaving reports whether a Save is in flight.
func (r *Record) IsSaving() bool { return r.Working() == Saving }

// IsDestroying reports whether a Destroy is in flight.
func (r *Record) IsDestroying() bool { return r.Working() == Destroying }

// IsDisposed reports whether Dispose has run.
func (r *Record) IsDisposed() bool {
	return r.disposed.Load()
}

func (r *Record) setWorking(w Working) {
	r.mu.Lock()
	r.working = w
	r.mu.Unlock()
}

func (r *Record) markSaved() {
	r.mu.Lock()
	r.saved = true
	r.mu.Unlock()
}

// Collections returns the collections currently holding the record.
func (r *Record) Collections() []*Collection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.collections)
}

func (r *Record) attach(c *Collection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !slices.Contains(r.collections, c) {
		r.collections = append(r.collections, c)
	}
}

func (r *Record) detach(c *Collection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collections = slices.DeleteFunc(r.collections, func(x *Collection) bool { return x == c })
}

// propagate runs the change cascade for one write.
func (r *Record) propagate(field string) {
	r.mu.RLock()
	collections := slices.Clone(r.collections)
	instance := r.redraw
	r.mu.RUnlock()

	want := false
	for _, c := range collections {
		if c.memberChanged(r) {
			want = true
		}
	}
	want = want || instance || r.ctrl.schema.Redraw || r.reg.cfg.Redraw

	r.reg.publish(pubsub.UpdatedEvent, r.event(field, ""))
	if want {
		r.reg.redraw()
	}
}
