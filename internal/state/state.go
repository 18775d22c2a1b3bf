// Package state holds keyed bags of standalone cells for view state that
// is not backed by a store: form drafts, selection, toggles.
package state

import (
	"maps"
	"slices"
	"sync"

	"github.com/zjrosen/mdata/internal/log"
	"github.com/zjrosen/mdata/internal/model"
)

// DefaultKey is used when Get, Set or Remove is called with an empty key.
const DefaultKey = "__key__"

// Option configures a State.
type Option func(*options)

type options struct {
	onChange func(key, field string, value any)
}

// WithOnChange registers a callback run after every non-silent cell write.
func WithOnChange(fn func(key, field string, value any)) Option {
	return func(o *options) {
		o.onChange = fn
	}
}

// WithRedraw runs hook after every non-silent cell write.
func WithRedraw(hook func()) Option {
	return WithOnChange(func(string, string, any) { hook() })
}

// Bag is one set of cells built from a signature.
type Bag struct {
	key    string
	fields []string
	cells  map[string]*model.Cell
}

func newBag(key string, signature map[string]any, fields []string, o options) *Bag {
	b := &Bag{key: key, fields: fields, cells: make(map[string]*model.Cell, len(fields))}
	for _, field := range fields {
		var onChange func(any)
		if o.onChange != nil {
			onChange = func(v any) { o.onChange(key, field, v) }
		}
		b.cells[field] = model.NewCell(signature[field], onChange)
	}
	return b
}

// Key returns the bag's key in its State, or "" for a Single bag.
func (b *Bag) Key() string {
	return b.key
}

// Cell returns the named cell, or nil if the signature does not declare it.
func (b *Bag) Cell(field string) *model.Cell {
	return b.cells[field]
}

// Get reads a field. Undeclared fields read as nil.
func (b *Bag) Get(field string) any {
	if c := b.cells[field]; c != nil {
		return c.Get()
	}
	return nil
}

// Set writes a declared field and reports whether it exists.
func (b *Bag) Set(field string, value any) bool {
	c := b.cells[field]
	if c == nil {
		return false
	}
	c.Set(value)
	return true
}

// JSON returns the current field values.
func (b *Bag) JSON() map[string]any {
	out := make(map[string]any, len(b.fields))
	for _, field := range b.fields {
		out[field] = b.cells[field].Get()
	}
	return out
}

// Single builds one bag outside any State.
func Single(signature map[string]any, opts ...Option) *Bag {
	return newBag("", signature, sortedFields(signature), applyOptions(opts))
}

// State is a lazily populated map of bags sharing one signature.
type State struct {
	signature map[string]any
	fields    []string
	opts      options

	mu   sync.Mutex
	bags map[string]*Bag
}

// New creates a State whose bags start with the signature's values.
func New(signature map[string]any, opts ...Option) *State {
	return &State{
		signature: maps.Clone(signature),
		fields:    sortedFields(signature),
		opts:      applyOptions(opts),
		bags:      make(map[string]*Bag),
	}
}

// FromFields creates a State whose bags start with every field nil.
func FromFields(fields []string, opts ...Option) *State {
	signature := make(map[string]any, len(fields))
	for _, f := range fields {
		signature[f] = nil
	}
	return New(signature, opts...)
}

// Set returns the bag for key, creating it when missing.
func (s *State) Set(key string) *Bag {
	if key == "" {
		key = DefaultKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bags == nil {
		return nil
	}
	b, ok := s.bags[key]
	if !ok {
		b = newBag(key, s.signature, s.fields, s.opts)
		s.bags[key] = b
	}
	return b
}

// Get is Set: reading a missing key creates its bag.
func (s *State) Get(key string) *Bag {
	return s.Set(key)
}

// Has reports whether a bag exists for key without creating it.
func (s *State) Has(key string) bool {
	if key == "" {
		key = DefaultKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.bags[key]
	return ok
}

// Keys returns the existing bag keys, sorted.
func (s *State) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.bags))
}

// Remove drops the bag for key.
func (s *State) Remove(key string) {
	if key == "" {
		key = DefaultKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bags, key)
}

// Dispose drops every bag. Later Set and Get return nil.
func (s *State) Dispose() {
	s.mu.Lock()
	n := len(s.bags)
	s.bags = nil
	s.mu.Unlock()
	log.Debug(log.CatState, "Disposed state", "bags", n)
}

// JSON returns the values of every bag keyed by bag key.
func (s *State) JSON() map[string]map[string]any {
	s.mu.Lock()
	bags := maps.Clone(s.bags)
	s.mu.Unlock()
	out := make(map[string]map[string]any, len(bags))
	for k, b := range bags {
		out[k] = b.JSON()
	}
	return out
}

func sortedFields(signature map[string]any) []string {
	return slices.Sorted(maps.Keys(signature))
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
