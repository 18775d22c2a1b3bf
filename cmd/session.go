package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/zjrosen/mdata/internal/config"
	"github.com/zjrosen/mdata/internal/log"
	"github.com/zjrosen/mdata/internal/model"
	"github.com/zjrosen/mdata/internal/store"
	"github.com/zjrosen/mdata/internal/tracing"
)

// session is a registry wired to the configured store, schema and tracer.
type session struct {
	reg     *model.Registry
	store   store.Store
	sqlite  *store.SQLite // set for the sqlite backend
	closers []func(context.Context) error
}

// open builds a session. hook, when set, becomes the registry redraw hook.
func (a *app) open(ctx context.Context, hook func()) (*session, error) {
	entities, err := config.LoadSchema(a.cfg.Schema)
	if err != nil {
		return nil, err
	}

	s := &session{}
	base, err := s.openStore(a.cfg)
	if err != nil {
		return nil, err
	}

	provider, err := tracing.NewProvider(a.cfg.Tracing)
	if err != nil {
		_ = s.Close(ctx)
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}
	s.closers = append(s.closers, provider.Shutdown)

	st := base
	if provider.Enabled() {
		st = tracing.WrapStore(st, provider.Tracer())
	}
	if ttl := a.cfg.Store.CacheTTL; ttl > 0 {
		st = store.NewCached(st, ttl)
	}
	s.store = st

	var placeholder any
	if a.cfg.Placeholder != "" {
		placeholder = a.cfg.Placeholder
	}
	s.reg = model.NewRegistry(model.Config{
		BaseURL:     a.baseURL(),
		KeyID:       a.cfg.KeyID,
		Redraw:      a.cfg.Redraw,
		Store:       st,
		RedrawHook:  hook,
		Placeholder: placeholder,
	})
	if err := config.DefineAll(s.reg, entities); err != nil {
		_ = s.Close(ctx)
		return nil, fmt.Errorf("loading schema %s: %w", a.cfg.Schema, err)
	}

	log.Debug(log.CatRegistry, "Session opened", "types", len(entities), "backend", a.cfg.Store.Backend)
	return s, nil
}

func (s *session) openStore(cfg config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return store.NewMemory(cfg.KeyID), nil
	case config.BackendHTTP:
		return store.NewHTTP(&http.Client{Timeout: cfg.Store.Timeout}, cfg.KeyID, cfg.Store.Headers), nil
	default:
		db, err := store.OpenSQLite(cfg.Store.Path, cfg.KeyID)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		s.sqlite = db
		s.closers = append(s.closers, func(context.Context) error { return db.Close() })
		return db, nil
	}
}

// baseURL prefixes resource paths with the HTTP endpoint for the http backend.
func (a *app) baseURL() string {
	if a.cfg.Store.Backend == config.BackendHTTP {
		return strings.TrimRight(a.cfg.Store.Endpoint, "/") + a.cfg.BaseURL
	}
	return a.cfg.BaseURL
}

// Close releases the registry, tracer and store, in reverse order of creation.
func (s *session) Close(ctx context.Context) error {
	if s.reg != nil {
		s.reg.Close()
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func (s *session) controller(name string) (*model.Controller, error) {
	ctrl, ok := s.reg.Controller(name)
	if !ok {
		return nil, fmt.Errorf("unknown entity type %q (see 'mdata types')", name)
	}
	return ctrl, nil
}

// pull loads the records for ids and fails on the first identity the store does not have.
func (s *session) pull(ctx context.Context, ctrl *model.Controller, ids []string) ([]*model.Record, error) {
	params := make([]any, len(ids))
	for i, id := range ids {
		params[i] = id
	}
	records, err := ctrl.PullByID(ctx, params...)
	if err != nil {
		return nil, err
	}
	found := make(map[string]bool, len(records))
	for _, r := range records {
		if k, ok := store.Key(r.ID()); ok {
			found[k] = true
		}
	}
	for _, id := range ids {
		if k, _ := store.Key(id); !found[k] {
			return nil, fmt.Errorf("%s %s: %w", ctrl.Schema().Name, id, store.ErrNotFound)
		}
	}
	return records, nil
}

// sync mirrors every stored document of ctrl's resource into the controller:
// present records take the stored values, new ones are loaded, and saved
// records missing from the store are removed.
func (s *session) sync(ctx context.Context, ctrl *model.Controller) error {
	payload, err := s.store.Get(ctx, ctrl.URL(), nil, nil)
	if err != nil {
		return err
	}
	keyID := s.reg.KeyID()
	seen := make(map[string]bool)
	var missing []any
	for _, doc := range store.Documents(payload) {
		k, ok := store.Key(doc[keyID])
		if !ok {
			continue
		}
		seen[k] = true
		if rec := ctrl.Get(doc[keyID]); rec != nil {
			rec.SetData(doc, false, true)
			continue
		}
		missing = append(missing, doc[keyID])
	}
	if len(missing) > 0 {
		if err := ctrl.LoadByID(ctx, missing...); err != nil {
			return err
		}
	}
	for _, rec := range ctrl.Records() {
		if rec.IsDisposed() || !rec.IsSaved() {
			continue
		}
		if k, ok := store.Key(rec.ID()); ok && !seen[k] {
			rec.Remove()
		}
	}
	return nil
}

// syncAll runs sync for every registered type.
func (s *session) syncAll(ctx context.Context) error {
	for _, name := range s.reg.Names() {
		ctrl, _ := s.reg.Controller(name)
		if err := s.sync(ctx, ctrl); err != nil {
			return fmt.Errorf("reloading %s: %w", name, err)
		}
	}
	return nil
}
