package model

import "sync"

// Cell is a single observable value.
//
// Cells returned by Record.Cell are views over one declared field of the
// record; cells created with NewCell hold their own value and report writes
// to an optional callback.
type Cell struct {
	rec *Record
	key string

	mu       sync.RWMutex
	value    any
	onChange func(value any)
}

// NewCell creates a standalone cell. onChange, when set, runs after every non-silent Set.
func NewCell(initial any, onChange func(value any)) *Cell {
	return &Cell{value: initial, onChange: onChange}
}

// Key returns the field name for record cells and "" for standalone cells.
func (c *Cell) Key() string {
	return c.key
}

// Get returns the current value.
func (c *Cell) Get() any {
	if c.rec != nil {
		return c.rec.Get(c.key)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Set writes v and notifies.
func (c *Cell) Set(v any) {
	c.SetWith(v, false, false)
}

// SetWith writes v. silent suppresses notification; fromStore marks the
// value as authoritative and clears the owning record's modified flag.
func (c *Cell) SetWith(v any, silent, fromStore bool) {
	if c.rec != nil {
		c.rec.SetWith(c.key, v, silent, fromStore)
		return
	}
	c.mu.Lock()
	c.value = v
	fn := c.onChange
	c.mu.Unlock()
	if !silent && fn != nil {
		fn(v)
	}
}
