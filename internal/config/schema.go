package config

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/mdata/internal/model"
)

// ErrEntityNotFound is returned by RemoveEntity for an unknown name.
var ErrEntityNotFound = errors.New("entity not found in schema file")

// EntityConfig declares one entity type in the schema file.
type EntityConfig struct {
	Name      string            `yaml:"name"`
	URL       string            `yaml:"url,omitempty"`
	Fields    []string          `yaml:"fields,omitempty"`
	Defaults  map[string]any    `yaml:"defaults,omitempty"`
	Refs      map[string]string `yaml:"refs,omitempty"`
	Cache     bool              `yaml:"cache,omitempty"`
	Redraw    bool              `yaml:"redraw,omitempty"`
	Placehold []string          `yaml:"placehold,omitempty"`
}

// SchemaFile is the document stored at Config.Schema.
type SchemaFile struct {
	Entities []EntityConfig `yaml:"entities"`
}

// Schema converts the declaration for model.Registry.Define.
func (e EntityConfig) Schema() model.Schema {
	return model.Schema{
		Name:      e.Name,
		URL:       e.URL,
		Fields:    slices.Clone(e.Fields),
		Defaults:  e.Defaults,
		Refs:      e.Refs,
		Cache:     e.Cache,
		Redraw:    e.Redraw,
		Placehold: slices.Clone(e.Placehold),
	}
}

// LoadSchema reads and validates the schema file. A missing file yields no entities.
func LoadSchema(path string) ([]EntityConfig, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from user config
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading schema: %w", err)
	}

	var file SchemaFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}
	if err := ValidateEntities(file.Entities); err != nil {
		return nil, err
	}
	return file.Entities, nil
}

// ValidateEntities checks names are set and unique. Field-level checks happen in Registry.Define.
func ValidateEntities(entities []EntityConfig) error {
	seen := make(map[string]bool, len(entities))
	for i, e := range entities {
		if e.Name == "" {
			return fmt.Errorf("entity %d: name is required", i)
		}
		if seen[e.Name] {
			return fmt.Errorf("entity %d: duplicate name %q", i, e.Name)
		}
		seen[e.Name] = true
	}
	return nil
}

// DefineAll registers every entity on reg and validates references.
func DefineAll(reg *model.Registry, entities []EntityConfig) error {
	for _, e := range entities {
		if _, err := reg.Define(e.Schema()); err != nil {
			return fmt.Errorf("defining %s: %w", e.Name, err)
		}
	}
	return reg.Validate()
}
