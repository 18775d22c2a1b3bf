package model

import (
	"cmp"
	"slices"

	"github.com/zjrosen/mdata/internal/store"
)

// The read helpers below work on a copy of the member list taken under the
// read lock, so callbacks may mutate the collection. Snapshots of disposed
// records are skipped.

// Records returns the live member records in order.
func (c *Collection) Records() []*Record {
	c.mustLive("Records")
	c.mu.RLock()
	snaps := slices.Clone(c.items)
	c.mu.RUnlock()

	out := make([]*Record, 0, len(snaps))
	for _, s := range snaps {
		if owner := s.Record(); owner != nil {
			out = append(out, owner)
		}
	}
	return out
}

// Snapshots returns the member snapshots in order.
func (c *Collection) Snapshots() []*Snapshot {
	c.mustLive("Snapshots")
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.items)
}

// Get returns the member matching mixed: a *Record (by membership), a
// *Snapshot, a map carrying the identity key (by identity) or other fields
// (first structural match), or a bare identity.
func (c *Collection) Get(mixed any) *Record {
	c.mustLive("Get")
	keyID := c.reg.cfg.KeyID
	switch v := mixed.(type) {
	case nil:
		return nil
	case *Record:
		if v == nil || v.IsDisposed() || !c.containsSnapshot(v.json) {
			return nil
		}
		return v
	case *Snapshot:
		if !c.containsSnapshot(v) {
			return nil
		}
		return v.Record()
	case map[string]any:
		if k, ok := store.Key(v[keyID]); ok {
			return c.byKey(k)
		}
		return c.Find(func(r *Record) bool { return r.json.matches(v, keyID) })
	default:
		k, ok := store.Key(v)
		if !ok {
			return nil
		}
		return c.byKey(k)
	}
}

// GetAll returns the members matching each item. With falsy, misses are kept as nil entries.
func (c *Collection) GetAll(items []any, falsy bool) []*Record {
	out := make([]*Record, 0, len(items))
	for _, item := range items {
		r := c.Get(item)
		if r != nil || falsy {
			out = append(out, r)
		}
	}
	return out
}

// Contains reports whether r is a member.
func (c *Collection) Contains(r *Record) bool {
	return c.Get(r) != nil
}

func (c *Collection) containsSnapshot(s *Snapshot) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Contains(c.items, s)
}

func (c *Collection) byKey(key string) *Record {
	keyID := c.reg.cfg.KeyID
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.items {
		if k, ok := s.key(keyID); ok && k == key {
			if owner := s.Record(); owner != nil {
				return owner
			}
		}
	}
	return nil
}

// Size returns the number of live members.
func (c *Collection) Size() int {
	return len(c.Records())
}

// ForEach calls fn for every member with its index.
func (c *Collection) ForEach(fn func(r *Record, i int)) {
	for i, r := range c.Records() {
		fn(r, i)
	}
}

// Map applies fn to every member.
func Map[T any](c *Collection, fn func(r *Record, i int) T) []T {
	records := c.Records()
	out := make([]T, len(records))
	for i, r := range records {
		out[i] = fn(r, i)
	}
	return out
}

// Filter returns the members pred accepts.
func (c *Collection) Filter(pred func(*Record) bool) []*Record {
	var out []*Record
	for _, r := range c.Records() {
		if pred(r) {
			out = append(out, r)
		}
	}
	return out
}

// Reject returns the members pred refuses.
func (c *Collection) Reject(pred func(*Record) bool) []*Record {
	return c.Filter(func(r *Record) bool { return !pred(r) })
}

// Find returns the first member pred accepts, or nil.
func (c *Collection) Find(pred func(*Record) bool) *Record {
	for _, r := range c.Records() {
		if pred(r) {
			return r
		}
	}
	return nil
}

// FindIndex returns the index of the first match, or -1.
func (c *Collection) FindIndex(pred func(*Record) bool) int {
	return slices.IndexFunc(c.Records(), pred)
}

// FindLastIndex returns the index of the last match, or -1.
func (c *Collection) FindLastIndex(pred func(*Record) bool) int {
	records := c.Records()
	for i := len(records) - 1; i >= 0; i-- {
		if pred(records[i]) {
			return i
		}
	}
	return -1
}

// Every reports whether pred accepts every member. It is true when empty.
func (c *Collection) Every(pred func(*Record) bool) bool {
	for _, r := range c.Records() {
		if !pred(r) {
			return false
		}
	}
	return true
}

// Some reports whether pred accepts any member.
func (c *Collection) Some(pred func(*Record) bool) bool {
	return c.FindIndex(pred) >= 0
}

// SortBy returns the members stably sorted by cmp.
func (c *Collection) SortBy(compare func(a, b *Record) int) []*Record {
	records := c.Records()
	slices.SortStableFunc(records, compare)
	return records
}

// GroupBy buckets members by key, preserving order within each bucket.
func (c *Collection) GroupBy(key func(*Record) string) map[string][]*Record {
	out := make(map[string][]*Record)
	for _, r := range c.Records() {
		k := key(r)
		out[k] = append(out[k], r)
	}
	return out
}

// MaxBy returns the first member with the largest score, or nil when empty.
func (c *Collection) MaxBy(score func(*Record) float64) *Record {
	return extremeBy(c.Records(), score, 1)
}

// MinBy returns the first member with the smallest score, or nil when empty.
func (c *Collection) MinBy(score func(*Record) float64) *Record {
	return extremeBy(c.Records(), score, -1)
}

func extremeBy(records []*Record, score func(*Record) float64, sign int) *Record {
	var best *Record
	var bestScore float64
	for _, r := range records {
		s := score(r)
		if best == nil || cmp.Compare(s, bestScore) == sign {
			best, bestScore = r, s
		}
	}
	return best
}

// First returns the first member, or nil when empty.
func (c *Collection) First() *Record {
	return c.Nth(0)
}

// Last returns the last member, or nil when empty.
func (c *Collection) Last() *Record {
	return c.Nth(-1)
}

// Nth returns the member at i; negative i counts from the end.
func (c *Collection) Nth(i int) *Record {
	records := c.Records()
	if i < 0 {
		i += len(records)
	}
	if i < 0 || i >= len(records) {
		return nil
	}
	return records[i]
}

// Slice returns members in [start, end), clamped to the collection bounds.
func (c *Collection) Slice(start, end int) []*Record {
	records := c.Records()
	start = max(0, min(start, len(records)))
	end = max(start, min(end, len(records)))
	return slices.Clone(records[start:end])
}

// Initial returns every member but the last.
func (c *Collection) Initial() []*Record {
	records := c.Records()
	if len(records) == 0 {
		return records
	}
	return records[:len(records)-1]
}

// IndexOf returns the position of r, or -1.
func (c *Collection) IndexOf(r *Record) int {
	return slices.Index(c.Records(), r)
}

// LastIndexOf returns the last position of r, or -1.
func (c *Collection) LastIndexOf(r *Record) int {
	records := c.Records()
	for i := len(records) - 1; i >= 0; i-- {
		if records[i] == r {
			return i
		}
	}
	return -1
}

// Reverse returns the members in reverse order without reordering the collection.
func (c *Collection) Reverse() []*Record {
	records := c.Records()
	slices.Reverse(records)
	return records
}

// Pluck reads field from every member.
func (c *Collection) Pluck(field string) []any {
	return Map(c, func(r *Record, _ int) any { return r.Get(field) })
}

// Without returns the members other than the given records.
func (c *Collection) Without(records ...*Record) []*Record {
	return c.Reject(func(r *Record) bool { return slices.Contains(records, r) })
}

// Difference returns the members not present in others.
func (c *Collection) Difference(others []*Record) []*Record {
	return c.Without(others...)
}
