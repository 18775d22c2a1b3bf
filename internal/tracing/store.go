package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/mdata/internal/store"
)

// Span names and attribute keys used by Store.
const (
	SpanStoreGet     = "store.get"
	SpanStorePost    = "store.post"
	SpanStorePut     = "store.put"
	SpanStoreDestroy = "store.destroy"

	AttrURL       = "store.url"
	AttrIDCount   = "store.id_count"
	AttrPath      = "store.path"
	AttrDocuments = "store.documents"
	AttrNotFound  = "store.not_found"
)

// Store wraps a store.Store in client spans.
type Store struct {
	base   store.Store
	tracer trace.Tracer
}

// Ensure Store implements store.Store.
var _ store.Store = (*Store)(nil)

// WrapStore returns base unchanged when tracer is nil.
func WrapStore(base store.Store, tracer trace.Tracer) store.Store {
	if tracer == nil {
		return base
	}
	return &Store{base: base, tracer: tracer}
}

func (s *Store) Get(ctx context.Context, url string, params any, opts *store.Options) (any, error) {
	ctx, span := s.start(ctx, SpanStoreGet, url, opts)
	defer span.End()
	span.SetAttributes(attribute.Int(AttrIDCount, idCount(params)))

	payload, err := s.base.Get(ctx, url, params, opts)
	if err == nil {
		span.SetAttributes(attribute.Int(AttrDocuments, len(store.Documents(payload))))
	}
	finish(span, err)
	return payload, err
}

func (s *Store) Post(ctx context.Context, url string, body map[string]any, opts *store.Options) (any, error) {
	ctx, span := s.start(ctx, SpanStorePost, url, opts)
	defer span.End()
	payload, err := s.base.Post(ctx, url, body, opts)
	finish(span, err)
	return payload, err
}

func (s *Store) Put(ctx context.Context, url string, body map[string]any, opts *store.Options) (any, error) {
	ctx, span := s.start(ctx, SpanStorePut, url, opts)
	defer span.End()
	payload, err := s.base.Put(ctx, url, body, opts)
	finish(span, err)
	return payload, err
}

func (s *Store) Destroy(ctx context.Context, url string, params any, opts *store.Options) error {
	ctx, span := s.start(ctx, SpanStoreDestroy, url, opts)
	defer span.End()
	span.SetAttributes(attribute.Int(AttrIDCount, idCount(params)))
	err := s.base.Destroy(ctx, url, params, opts)
	finish(span, err)
	return err
}

func (s *Store) start(ctx context.Context, name, url string, opts *store.Options) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(attribute.String(AttrURL, url))
	if p := opts.PathOf(); p != "" {
		span.SetAttributes(attribute.String(AttrPath, p))
	}
	return ctx, span
}

func finish(span trace.Span, err error) {
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case store.IsNotFound(err):
		span.SetAttributes(attribute.Bool(AttrNotFound, true))
		span.SetStatus(codes.Error, err.Error())
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func idCount(params any) int {
	switch p := params.(type) {
	case nil:
		return 0
	case []any:
		return len(p)
	case []string:
		return len(p)
	default:
		return 1
	}
}
