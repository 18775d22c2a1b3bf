// Package store defines the persistence endpoint that records synchronize with.
//
// The record layer never inspects transport details. It hands a Store a
// resource URL plus either identity params or a serialized record body and
// consumes whatever payload comes back. Implementations in this package:
//
//   - Memory: in-process maps, used by tests and the CLI's ephemeral mode.
//   - SQLite: a document table keyed by (resource, identity).
//   - HTTP: JSON over net/http using the GET/POST/PUT/DELETE verbs.
//   - Cached: a read-through decorator that caches GET payloads.
package store

import (
	"context"
	"errors"
	"strings"
)

// DefaultKeyID is the identity field name used when none is configured.
const DefaultKeyID = "id"

var (
	// ErrNotFound is returned when a write or delete targets a missing document.
	ErrNotFound = errors.New("store: document not found")

	// ErrUnsupportedParams is returned when Get or Destroy receives params of an unknown shape.
	ErrUnsupportedParams = errors.New("store: unsupported params")

	// ErrMissingIdentity is returned when a document without identity is written by Put.
	ErrMissingIdentity = errors.New("store: document has no identity")
)

// Options tunes a single store call.
type Options struct {
	// Path plucks the record payload out of a response envelope, e.g. "data.item".
	Path string

	// Depopulate sends reference fields as bare identities instead of nested objects.
	Depopulate bool

	// Headers are extra request headers (HTTP only).
	Headers map[string]string
}

// PathOf returns opts.Path, tolerating a nil receiver.
func (o *Options) PathOf() string {
	if o == nil {
		return ""
	}
	return o.Path
}

// ShouldDepopulate reports whether opts asks for depopulated bodies.
func (o *Options) ShouldDepopulate() bool {
	return o != nil && o.Depopulate
}

// Store is the persistence collaborator.
//
// params is either a map carrying the identity key (single document), a
// []any of identities (bulk read), or nil (every document of the resource).
type Store interface {
	Get(ctx context.Context, url string, params any, opts *Options) (any, error)
	Post(ctx context.Context, url string, body map[string]any, opts *Options) (any, error)
	Put(ctx context.Context, url string, body map[string]any, opts *Options) (any, error)
	Destroy(ctx context.Context, url string, params any, opts *Options) error
}

// Pluck walks a dot-separated path through nested maps.
// An empty path returns payload unchanged; a missing segment returns nil.
func Pluck(payload any, path string) any {
	if path == "" {
		return payload
	}
	cur := payload
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[seg]
	}
	return cur
}

// Document extracts a single document from a payload.
// A one-element list is unwrapped; anything else that is not a map yields nil.
func Document(payload any) map[string]any {
	switch v := payload.(type) {
	case map[string]any:
		return v
	case []any:
		if len(v) == 1 {
			if m, ok := v[0].(map[string]any); ok {
				return m
			}
		}
	case []map[string]any:
		if len(v) == 1 {
			return v[0]
		}
	}
	return nil
}

// Documents normalizes a payload into a list of documents, skipping non-map entries.
func Documents(payload any) []map[string]any {
	switch v := payload.(type) {
	case nil:
		return nil
	case map[string]any:
		return []map[string]any{v}
	case []map[string]any:
		return v
	case []any:
		docs := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				docs = append(docs, m)
			}
		}
		return docs
	}
	return nil
}

// identityParams splits params into the identities they address.
// all is true when params is nil.
func identityParams(params any, keyID string) (ids []string, all bool, err error) {
	switch p := params.(type) {
	case nil:
		return nil, true, nil
	case map[string]any:
		k, ok := Key(p[keyID])
		if !ok {
			return nil, false, ErrMissingIdentity
		}
		return []string{k}, false, nil
	case []any:
		for _, v := range p {
			if k, ok := Key(v); ok {
				ids = append(ids, k)
			}
		}
		return ids, false, nil
	case []string:
		for _, v := range p {
			if k, ok := Key(v); ok {
				ids = append(ids, k)
			}
		}
		return ids, false, nil
	}
	if IsIdentity(params) {
		if k, ok := Key(params); ok {
			return []string{k}, false, nil
		}
	}
	return nil, false, ErrUnsupportedParams
}
