package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjrosen/mdata/internal/config"
	"github.com/zjrosen/mdata/internal/model"
	"github.com/zjrosen/mdata/internal/presentation"
)

func newTypesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List entity types declared in the schema file",
		Long: `List entity types and their fields, references and flags as JSON.

Examples:
  mdata types
  mdata types | jq '.[].name'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withSession(cmd, func(_ context.Context, s *session) error {
				return presentation.NewFormatter(cmd.OutOrStdout()).FormatEntities(presentation.FromRegistry(s.reg))
			})
		},
	}
}

func newTypesDefineCmd(a *app) *cobra.Command {
	var (
		entity   config.EntityConfig
		refs     []string
		defaults []string
	)
	cmd := &cobra.Command{
		Use:   "types:define <Name>",
		Short: "Add or replace an entity type in the schema file",
		Long: `Add an entity type to the schema file, or replace the type with the same name.

The new schema is checked against the other declared types before it is
written: every reference must name a declared type. Reference fields are declared
automatically.

Examples:
  mdata types:define Author --field name --cache
  mdata types:define Post --field title --ref author=Author --cache
  mdata types:define Comment --field body --ref post=Post --default votes=0`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity.Name = args[0]
			var err error
			if entity.Refs, err = parsePairs("--ref", refs, func(s string) (string, error) { return s, nil }); err != nil {
				return err
			}
			if entity.Defaults, err = parsePairs("--default", defaults, func(s string) (any, error) {
				var v any
				if json.Unmarshal([]byte(s), &v) != nil {
					return s, nil
				}
				return v, nil
			}); err != nil {
				return err
			}

			for _, field := range slices.Sorted(maps.Keys(entity.Refs)) {
				if !slices.Contains(entity.Fields, field) {
					entity.Fields = append(entity.Fields, field)
				}
			}

			existing, err := config.LoadSchema(a.cfg.Schema)
			if err != nil {
				return err
			}
			next := slices.DeleteFunc(slices.Clone(existing), func(e config.EntityConfig) bool { return e.Name == entity.Name })
			next = append(next, entity)
			reg, err := checkSchema(next)
			if err != nil {
				return err
			}
			defer reg.Close()

			if err := config.SaveEntity(a.cfg.Schema, entity); err != nil {
				return fmt.Errorf("saving schema: %w", err)
			}
			ctrl, _ := reg.Controller(entity.Name)
			return presentation.NewFormatter(cmd.OutOrStdout()).FormatEntities([]presentation.EntityDTO{presentation.FromController(ctrl)})
		},
	}
	cmd.Flags().StringVar(&entity.URL, "url", "", "resource path (default: /<lowercase name>)")
	cmd.Flags().StringSliceVar(&entity.Fields, "field", nil, "declared field (repeatable or comma separated)")
	cmd.Flags().StringArrayVar(&refs, "ref", nil, "field=Type reference (repeatable)")
	cmd.Flags().StringArrayVar(&defaults, "default", nil, "field=value default (repeatable; value is parsed as JSON when possible)")
	cmd.Flags().StringSliceVar(&entity.Placehold, "placehold", nil, "field shown as the placeholder while the record fetches")
	cmd.Flags().BoolVar(&entity.Cache, "cache", false, "deduplicate references through the identity cache")
	cmd.Flags().BoolVar(&entity.Redraw, "redraw", false, "redraw on every write to records of this type")
	return cmd
}

func newTypesRemoveCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "types:remove <Name>",
		Short: "Remove an entity type from the schema file",
		Long: `Remove an entity type from the schema file.

Removal is refused while another type still references it, unless --force is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			existing, err := config.LoadSchema(a.cfg.Schema)
			if err != nil {
				return err
			}
			if !slices.ContainsFunc(existing, func(e config.EntityConfig) bool { return e.Name == name }) {
				return fmt.Errorf("%w: %s", config.ErrEntityNotFound, name)
			}
			if !force {
				for _, e := range existing {
					for field, target := range e.Refs {
						if target == name && e.Name != name {
							return fmt.Errorf("%s.%s references %s (use --force to remove anyway)", e.Name, field, name)
						}
					}
				}
			}
			if err := config.RemoveEntity(a.cfg.Schema, name); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from %s\n", name, a.cfg.Schema)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "remove even when other types reference it")
	return cmd
}

// checkSchema defines entities on a scratch registry to surface declaration errors.
func checkSchema(entities []config.EntityConfig) (*model.Registry, error) {
	if err := config.ValidateEntities(entities); err != nil {
		return nil, err
	}
	reg := model.NewRegistry(model.Config{})
	if err := config.DefineAll(reg, entities); err != nil {
		reg.Close()
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return reg, nil
}

func parsePairs[V any](flag string, pairs []string, parse func(string) (V, error)) (map[string]V, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]V, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid %s %q: want field=value", flag, pair)
		}
		v, err := parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", flag, pair, err)
		}
		out[key] = v
	}
	return out, nil
}
