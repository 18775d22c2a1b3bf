package model

import (
	"fmt"
	"slices"
	"strings"
)

// Schema declares an entity type. It is consumed once by Registry.Define.
type Schema struct {
	// Name identifies the entity type in the registry and in references.
	Name string

	// URL overrides the resource path. Defaults to "/" + lower(Name).
	URL string

	// Fields lists the declared fields. Keys of Defaults and the identity
	// key are added when missing.
	Fields []string

	// Defaults are returned for fields whose value is nil, and stored as the
	// initial value of scalar fields.
	Defaults map[string]any

	// Refs maps a reference field to the entity type it points at.
	// The target may be registered after this type.
	Refs map[string]string

	// Redraw opts every record of this type into redraw on change.
	Redraw bool

	// Cache enables the identity cache used to deduplicate references.
	Cache bool

	// Placehold lists fields that read as Config.Placeholder while the record fetches.
	Placehold []string

	// Parser rewrites plain data before bulk writes and construction.
	Parser func(map[string]any) map[string]any
}

type fieldKind int

const (
	scalarField fieldKind = iota
	referenceField
)

// fieldTable is the per-type field layout, resolved at registration.
type fieldTable struct {
	keyID     string
	order     []string
	kinds     map[string]fieldKind
	refs      map[string]string
	placehold map[string]bool
}

func compileSchema(s Schema, keyID string) (*fieldTable, error) {
	if strings.TrimSpace(s.Name) == "" {
		return nil, fmt.Errorf("%w: entity name must be set", ErrInvalidSchema)
	}

	t := &fieldTable{
		keyID:     keyID,
		kinds:     make(map[string]fieldKind),
		refs:      make(map[string]string),
		placehold: make(map[string]bool),
	}

	add := func(field string) error {
		if strings.TrimSpace(field) == "" {
			return fmt.Errorf("%w: %s: blank field name", ErrInvalidSchema, s.Name)
		}
		if _, seen := t.kinds[field]; seen {
			return nil
		}
		t.kinds[field] = scalarField
		t.order = append(t.order, field)
		return nil
	}

	for _, f := range s.Fields {
		if err := add(f); err != nil {
			return nil, err
		}
	}
	defaults := make([]string, 0, len(s.Defaults))
	for f := range s.Defaults {
		defaults = append(defaults, f)
	}
	slices.Sort(defaults)
	for _, f := range defaults {
		if err := add(f); err != nil {
			return nil, err
		}
	}
	if err := add(keyID); err != nil {
		return nil, err
	}

	for field, target := range s.Refs {
		if _, ok := t.kinds[field]; !ok {
			return nil, fmt.Errorf("%w: %s: reference field %q is not declared", ErrInvalidSchema, s.Name, field)
		}
		if field == keyID {
			return nil, fmt.Errorf("%w: %s: identity field %q cannot be a reference", ErrInvalidSchema, s.Name, field)
		}
		if strings.TrimSpace(target) == "" {
			return nil, fmt.Errorf("%w: %s: reference field %q has no target", ErrInvalidSchema, s.Name, field)
		}
		t.kinds[field] = referenceField
		t.refs[field] = target
	}

	for _, f := range s.Placehold {
		if _, ok := t.kinds[f]; ok && f != keyID {
			t.placehold[f] = true
		}
	}
	return t, nil
}

func (t *fieldTable) has(field string) bool {
	_, ok := t.kinds[field]
	return ok
}

func (t *fieldTable) isRef(field string) bool {
	return t.kinds[field] == referenceField
}

func (t *fieldTable) mustHave(op, entity, field string) {
	if !t.has(field) {
		violation(op, "%s has no field %q", entity, field)
	}
}
