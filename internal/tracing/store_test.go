package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/mdata/internal/store"
)

func setupTestTracer(t *testing.T) (trace.Tracer, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return provider.Tracer("test"), exporter
}

func attr(span tracetest.SpanStub, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

// failingStore fails every call with err.
type failingStore struct{ err error }

func (f failingStore) Get(context.Context, string, any, *store.Options) (any, error) {
	return nil, f.err
}
func (f failingStore) Post(context.Context, string, map[string]any, *store.Options) (any, error) {
	return nil, f.err
}
func (f failingStore) Put(context.Context, string, map[string]any, *store.Options) (any, error) {
	return nil, f.err
}
func (f failingStore) Destroy(context.Context, string, any, *store.Options) error {
	return f.err
}

func TestWrapStore_NilTracerPassesThrough(t *testing.T) {
	mem := store.NewMemory("")
	require.Same(t, mem, WrapStore(mem, nil))
}

func TestWrapStore_RecordsSpans(t *testing.T) {
	tracer, exporter := setupTestTracer(t)
	mem := store.NewMemory("")
	st := WrapStore(mem, tracer)
	ctx := context.Background()

	_, err := st.Post(ctx, "/post", map[string]any{"id": "p1", "title": "Engines"}, nil)
	require.NoError(t, err)
	_, err = st.Put(ctx, "/post", map[string]any{"id": "p2"}, nil)
	require.NoError(t, err)
	_, err = st.Get(ctx, "/post", []any{"p1", "p2", "p3"}, &store.Options{Path: "data"})
	require.NoError(t, err)
	require.NoError(t, st.Destroy(ctx, "/post", map[string]any{"id": "p1"}, nil))

	spans := exporter.GetSpans()
	require.Len(t, spans, 4)
	names := []string{spans[0].Name, spans[1].Name, spans[2].Name, spans[3].Name}
	require.Equal(t, []string{SpanStorePost, SpanStorePut, SpanStoreGet, SpanStoreDestroy}, names)

	get := spans[2]
	require.Equal(t, trace.SpanKindClient, get.SpanKind)
	require.Equal(t, codes.Ok, get.Status.Code)
	v, ok := attr(get, AttrIDCount)
	require.True(t, ok)
	require.EqualValues(t, 3, v.AsInt64())
	v, ok = attr(get, AttrDocuments)
	require.True(t, ok)
	require.EqualValues(t, 2, v.AsInt64())
	v, ok = attr(get, AttrPath)
	require.True(t, ok)
	require.Equal(t, "data", v.AsString())
	v, ok = attr(get, AttrURL)
	require.True(t, ok)
	require.Equal(t, "/post", v.AsString())
}

func TestWrapStore_RecordsErrors(t *testing.T) {
	tracer, exporter := setupTestTracer(t)
	boom := errors.New("boom")
	st := WrapStore(failingStore{err: boom}, tracer)

	_, err := st.Get(context.Background(), "/post", map[string]any{"id": "p1"}, nil)
	require.ErrorIs(t, err, boom)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Equal(t, codes.Error, spans[0].Status.Code)
	require.Equal(t, "boom", spans[0].Status.Description)
	require.Len(t, spans[0].Events, 1, "error recorded as span event")
}

func TestWrapStore_NotFound(t *testing.T) {
	tracer, exporter := setupTestTracer(t)
	st := WrapStore(store.NewMemory(""), tracer)

	err := st.Destroy(context.Background(), "/post", map[string]any{"id": "missing"}, nil)
	require.ErrorIs(t, err, store.ErrNotFound)

	span := exporter.GetSpans()[0]
	v, ok := attr(span, AttrNotFound)
	require.True(t, ok)
	require.True(t, v.AsBool())
	require.Empty(t, span.Events)
}

func TestNewProvider_Disabled(t *testing.T) {
	p, err := NewProvider(DefaultConfig())
	require.NoError(t, err)
	require.False(t, p.Enabled())
	require.NotNil(t, p.Tracer())
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_Errors(t *testing.T) {
	_, err := NewProvider(Config{Enabled: true, Exporter: "file"})
	require.ErrorContains(t, err, "file_path")

	_, err = NewProvider(Config{Enabled: true, Exporter: "carrier-pigeon"})
	require.ErrorContains(t, err, "unsupported exporter")
}
