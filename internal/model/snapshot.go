package model

import (
	"reflect"
	"sync"

	"github.com/zjrosen/mdata/internal/store"
)

// Snapshot is the serialized state of one Record: one entry per declared
// field, with reference fields holding the referenced Record's Snapshot or a
// bare identity. A Record owns exactly one Snapshot for its whole life and
// mutates it in place; Collections hold it by pointer.
type Snapshot struct {
	mu     sync.RWMutex
	values map[string]any
	owner  *Record
}

func newSnapshot(owner *Record, size int) *Snapshot {
	return &Snapshot{values: make(map[string]any, size), owner: owner}
}

// Record returns the owning Record, or nil once it is disposed.
func (s *Snapshot) Record() *Record {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner
}

// Get returns the raw stored value of field.
func (s *Snapshot) Get(field string) any {
	return s.get(field)
}

// Values returns a shallow copy of the raw stored values.
func (s *Snapshot) Values() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

func (s *Snapshot) get(field string) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[field]
}

func (s *Snapshot) swap(field string, v any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.values[field]
	if s.values != nil {
		s.values[field] = v
	}
	return old
}

func (s *Snapshot) key(keyID string) (string, bool) {
	return store.Key(s.get(keyID))
}

func (s *Snapshot) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owner = nil
	s.values = nil
}

// sameValue reports whether a write of next over prev leaves the field unchanged.
// A snapshot and a bare identity are the same value when the identity matches.
func sameValue(prev, next any, keyID string) bool {
	ps, pSnap := prev.(*Snapshot)
	ns, nSnap := next.(*Snapshot)
	switch {
	case pSnap && nSnap:
		return ps == ns
	case pSnap:
		return store.IsIdentity(next) && store.SameKey(ps.get(keyID), next)
	case nSnap:
		return store.IsIdentity(prev) && store.SameKey(ns.get(keyID), prev)
	}
	if prev == nil || next == nil {
		return prev == nil && next == nil
	}
	return reflect.DeepEqual(prev, next)
}

// matches reports whether every entry of matcher equals the snapshot's value.
// Nested maps match nested snapshots recursively; identities match snapshots by key.
func (s *Snapshot) matches(matcher map[string]any, keyID string) bool {
	for k, want := range matcher {
		got := s.get(k)
		if nested, ok := want.(map[string]any); ok {
			snap, isSnap := got.(*Snapshot)
			if isSnap {
				if !snap.matches(nested, keyID) {
					return false
				}
				continue
			}
			if !reflect.DeepEqual(got, want) {
				return false
			}
			continue
		}
		if store.IsIdentity(want) && store.IsIdentity(got) {
			if !store.SameKey(got, want) {
				return false
			}
			continue
		}
		if !sameValue(got, want, keyID) {
			return false
		}
	}
	return true
}
