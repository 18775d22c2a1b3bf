package model

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/zjrosen/mdata/internal/log"
	"github.com/zjrosen/mdata/internal/pubsub"
	"github.com/zjrosen/mdata/internal/store"
)

// Config is the process-level configuration shared by every entity type of a registry.
type Config struct {
	// BaseURL prefixes every resource URL.
	BaseURL string

	// KeyID names the identity field. Defaults to "id".
	KeyID string

	// Redraw opts every record and collection into redraw on change.
	Redraw bool

	// Store is the persistence endpoint. Persistence operations return ErrNoStore without it.
	Store store.Store

	// RedrawHook runs after a change that wants a redraw. It must not block.
	RedrawHook func()

	// Placeholder is read from Placehold fields while their record fetches.
	Placeholder any
}

// Registry maps entity type names to their controllers. Registration is insert-only.
type Registry struct {
	cfg Config

	mu          sync.RWMutex
	controllers map[string]*Controller
	names       []string

	events *pubsub.Broker[ChangeEvent]
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	if cfg.KeyID == "" {
		cfg.KeyID = store.DefaultKeyID
	}
	return &Registry{
		cfg:         cfg,
		controllers: make(map[string]*Controller),
		events:      pubsub.NewBroker[ChangeEvent](),
	}
}

// ControllerOption configures a controller at definition time.
type ControllerOption func(*controllerOptions)

type controllerOptions struct {
	redraw bool
}

// WithCollectionRedraw makes changes to the controller's member records request a redraw.
func WithCollectionRedraw(enabled bool) ControllerOption {
	return func(o *controllerOptions) {
		o.redraw = enabled
	}
}

// Define registers an entity type and returns its controller.
func (r *Registry) Define(schema Schema, opts ...ControllerOption) (*Controller, error) {
	table, err := compileSchema(schema, r.cfg.KeyID)
	if err != nil {
		return nil, err
	}

	var o controllerOptions
	for _, opt := range opts {
		opt(&o)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.controllers[schema.Name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateEntity, schema.Name)
	}

	schema.Fields = slices.Clone(table.order)
	ctrl := newController(r, schema, table, o)
	r.controllers[schema.Name] = ctrl
	r.names = append(r.names, schema.Name)

	log.Info(log.CatRegistry, "Defined entity type", "entity", schema.Name, "fields", len(table.order), "refs", len(table.refs), "cache", schema.Cache)
	return ctrl, nil
}

// MustDefine is Define that panics on error, for package-level setup.
func (r *Registry) MustDefine(schema Schema, opts ...ControllerOption) *Controller {
	ctrl, err := r.Define(schema, opts...)
	if err != nil {
		panic(err)
	}
	return ctrl
}

// Controller looks up a registered entity type.
func (r *Registry) Controller(name string) (*Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctrl, ok := r.controllers[name]
	return ctrl, ok
}

// Names returns the registered entity names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.names)
}

// Validate checks that every reference field points at a registered type.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for _, name := range r.names {
		table := r.controllers[name].table
		for _, field := range table.order {
			target, ok := table.refs[field]
			if !ok {
				continue
			}
			if _, known := r.controllers[target]; !known {
				errs = append(errs, fmt.Errorf("%w: %s.%s references %q", ErrUnknownEntity, name, field, target))
			}
		}
	}
	return errors.Join(errs...)
}

// KeyID returns the identity field name.
func (r *Registry) KeyID() string {
	return r.cfg.KeyID
}

// Store returns the configured persistence endpoint, or nil.
func (r *Registry) Store() store.Store {
	return r.cfg.Store
}

// Events returns the broker carrying change notifications.
func (r *Registry) Events() *pubsub.Broker[ChangeEvent] {
	return r.events
}

// Close shuts down the event broker.
func (r *Registry) Close() {
	r.events.Close()
}

func (r *Registry) baseURL(schema Schema) string {
	if schema.URL != "" {
		return r.cfg.BaseURL + schema.URL
	}
	return r.cfg.BaseURL + "/" + strings.ToLower(schema.Name)
}

func (r *Registry) mustController(op, name string) *Controller {
	ctrl, ok := r.Controller(name)
	if !ok {
		panic(&ContractViolationError{Op: op, Reason: fmt.Sprintf("%v: %q", ErrUnknownEntity, name)})
	}
	return ctrl
}

func (r *Registry) store(op, entity string) (store.Store, error) {
	if r.cfg.Store == nil {
		return nil, fmt.Errorf("%s %s: %w", op, entity, ErrNoStore)
	}
	return r.cfg.Store, nil
}

func (r *Registry) redraw() {
	if r.cfg.RedrawHook == nil {
		return
	}
	log.Debug(log.CatRegistry, "redraw requested")
	r.cfg.RedrawHook()
}

func (r *Registry) publish(t pubsub.EventType, ev ChangeEvent) {
	r.events.Publish(t, ev)
}
