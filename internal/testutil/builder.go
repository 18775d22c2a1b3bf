package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/mdata/internal/store"
)

// Builder accumulates documents and writes them with Store.Put.
type Builder struct {
	t     *testing.T
	st    store.Store
	keyID string
	docs  []document
}

// NewBuilder creates a builder writing to st.
func NewBuilder(t *testing.T, st store.Store) *Builder {
	t.Helper()
	return &Builder{t: t, st: st, keyID: store.DefaultKeyID}
}

// WithKeyID changes the identity field name.
func (b *Builder) WithKeyID(keyID string) *Builder {
	b.keyID = keyID
	return b
}

// WithDocument queues a document with identity id under url.
func (b *Builder) WithDocument(url string, id any, opts ...DocOption) *Builder {
	doc := map[string]any{b.keyID: id}
	for _, opt := range opts {
		opt(doc)
	}
	b.docs = append(b.docs, document{url: url, fields: doc})
	return b
}

// Build writes every queued document in order.
func (b *Builder) Build() {
	b.t.Helper()
	ctx := context.Background()
	for _, d := range b.docs {
		_, err := b.st.Put(ctx, d.url, d.fields, nil)
		require.NoError(b.t, err)
	}
}
