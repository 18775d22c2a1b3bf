package store

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/zjrosen/mdata/internal/log"
)

// Memory is an in-process Store. Documents are cloned on the way in and out
// so callers never alias stored state.
type Memory struct {
	mu        sync.RWMutex
	keyID     string
	resources map[string]*memoryResource
	newID     func() string
}

type memoryResource struct {
	docs  map[string]map[string]any
	order []string
}

// Ensure Memory implements Store.
var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store keyed by keyID.
func NewMemory(keyID string) *Memory {
	if keyID == "" {
		keyID = DefaultKeyID
	}
	return &Memory{
		keyID:     keyID,
		resources: make(map[string]*memoryResource),
		newID:     func() string { return ulid.Make().String() },
	}
}

// Seed inserts documents directly, bypassing identity assignment.
func (s *Memory) Seed(url string, docs ...map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range docs {
		if k, ok := Key(doc[s.keyID]); ok {
			s.putLocked(url, k, CloneDocument(doc))
		}
	}
}

// Len returns the number of documents stored under url.
func (s *Memory) Len(url string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if res, ok := s.resources[url]; ok {
		return len(res.order)
	}
	return 0
}

// Get returns one document (map params), a list (slice params) or every document (nil params).
// A single missing document yields a nil payload, not an error.
func (s *Memory) Get(ctx context.Context, url string, params any, opts *Options) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids, all, err := identityParams(params, s.keyID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	res := s.resources[url]
	if res == nil {
		if _, single := params.(map[string]any); single {
			return nil, nil
		}
		return []any{}, nil
	}

	if all {
		out := make([]any, 0, len(res.order))
		for _, k := range res.order {
			out = append(out, CloneDocument(res.docs[k]))
		}
		return out, nil
	}

	if _, single := params.(map[string]any); single {
		doc, ok := res.docs[ids[0]]
		if !ok {
			log.Debug(log.CatStore, "memory get miss", "url", url, "id", ids[0])
			return nil, nil
		}
		return CloneDocument(doc), nil
	}

	out := make([]any, 0, len(ids))
	for _, k := range ids {
		if doc, ok := res.docs[k]; ok {
			out = append(out, CloneDocument(doc))
		}
	}
	return out, nil
}

// Post stores body, assigning a ULID identity when it has none.
func (s *Memory) Post(ctx context.Context, url string, body map[string]any, opts *Options) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc := CloneDocument(body)
	if doc == nil {
		doc = make(map[string]any)
	}
	k, ok := Key(doc[s.keyID])
	if !ok {
		k = s.newID()
		doc[s.keyID] = k
	}

	s.mu.Lock()
	s.putLocked(url, k, doc)
	s.mu.Unlock()

	log.Debug(log.CatStore, "memory post", "url", url, "id", k)
	return CloneDocument(doc), nil
}

// Put replaces the document addressed by body's identity.
func (s *Memory) Put(ctx context.Context, url string, body map[string]any, opts *Options) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k, ok := Key(body[s.keyID])
	if !ok {
		return nil, ErrMissingIdentity
	}
	doc := CloneDocument(body)

	s.mu.Lock()
	s.putLocked(url, k, doc)
	s.mu.Unlock()

	log.Debug(log.CatStore, "memory put", "url", url, "id", k)
	return CloneDocument(doc), nil
}

// Destroy removes the addressed documents. Removing a missing single document is ErrNotFound.
func (s *Memory) Destroy(ctx context.Context, url string, params any, opts *Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ids, all, err := identityParams(params, s.keyID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.resources[url]
	if all {
		delete(s.resources, url)
		return nil
	}
	if res == nil {
		return ErrNotFound
	}
	removed := 0
	for _, k := range ids {
		if _, ok := res.docs[k]; !ok {
			continue
		}
		delete(res.docs, k)
		for i, existing := range res.order {
			if existing == k {
				res.order = append(res.order[:i], res.order[i+1:]...)
				break
			}
		}
		removed++
	}
	if removed == 0 {
		return ErrNotFound
	}
	log.Debug(log.CatStore, "memory destroy", "url", url, "count", removed)
	return nil
}

func (s *Memory) putLocked(url, key string, doc map[string]any) {
	res := s.resources[url]
	if res == nil {
		res = &memoryResource{docs: make(map[string]map[string]any)}
		s.resources[url] = res
	}
	if _, exists := res.docs[key]; !exists {
		res.order = append(res.order, key)
	}
	res.docs[key] = doc
}
