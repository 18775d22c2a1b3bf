package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjrosen/mdata/internal/model"
	"github.com/zjrosen/mdata/internal/presentation"
	"github.com/zjrosen/mdata/internal/store"
)

// withSession opens a session for the duration of fn.
func (a *app) withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := a.open(ctx, nil)
	if err != nil {
		return err
	}
	err = fn(ctx, s)
	if closeErr := s.Close(ctx); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

func newGetCmd(a *app) *cobra.Command {
	var deep bool
	cmd := &cobra.Command{
		Use:   "get <Type> [id...]",
		Short: "Print records of a type",
		Long: `Print records of a type as a JSON array.

Without ids every stored record of the type is printed, ordered by id.
With --deep references are populated and printed as nested objects.

Examples:
  mdata get Post
  mdata get Post p1 p2
  mdata get Post p1 --deep | jq '.[0].data.author.name'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				ctrl, err := s.controller(args[0])
				if err != nil {
					return err
				}

				var records []*model.Record
				if ids := args[1:]; len(ids) > 0 {
					if records, err = s.pull(ctx, ctrl, ids); err != nil {
						return err
					}
				} else {
					if err := s.sync(ctx, ctrl); err != nil {
						return err
					}
					records = ctrl.Records()
				}

				if deep {
					for _, r := range records {
						if err := r.Populate(ctx, nil); err != nil {
							return fmt.Errorf("populating %s %v: %w", r.Entity(), r.ID(), err)
						}
					}
				}

				dtos := presentation.FromRecords(records, deep)
				if len(args) == 1 {
					presentation.SortByID(dtos)
				}
				return presentation.NewFormatter(cmd.OutOrStdout()).FormatRecords(dtos)
			})
		},
	}
	cmd.Flags().BoolVar(&deep, "deep", false, "populate references and print them nested")
	return cmd
}

func newCreateCmd(a *app) *cobra.Command {
	var data string
	var sets []string
	cmd := &cobra.Command{
		Use:   "create <Type>",
		Short: "Create and save a record",
		Long: `Create a record from --data and --set values and save it to the store.

The store assigns an identity when none is given. The saved record is printed.

Examples:
  mdata create Author --set name=Ada
  mdata create Post --data '{"title":"Engines","author":"a1"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseValues(data, sets)
			if err != nil {
				return err
			}
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				ctrl, err := s.controller(args[0])
				if err != nil {
					return err
				}
				if err := checkFields(ctrl, values); err != nil {
					return err
				}
				r := ctrl.New(values)
				if err := r.Save(ctx, saveOptions); err != nil {
					return fmt.Errorf("saving %s: %w", args[0], err)
				}
				return presentation.NewFormatter(cmd.OutOrStdout()).FormatRecord(presentation.FromRecord(r, false))
			})
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "record fields as a JSON object")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field=value (repeatable; value is parsed as JSON when possible)")
	return cmd
}

func newUpdateCmd(a *app) *cobra.Command {
	var data string
	var sets []string
	cmd := &cobra.Command{
		Use:   "update <Type> <id>",
		Short: "Change fields of a stored record",
		Long: `Load a record, apply --data and --set values and save it.

Examples:
  mdata update Post p1 --set title=Analytical`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseValues(data, sets)
			if err != nil {
				return err
			}
			if len(values) == 0 {
				return fmt.Errorf("nothing to update: pass --data or --set")
			}
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				ctrl, err := s.controller(args[0])
				if err != nil {
					return err
				}
				if err := checkFields(ctrl, values); err != nil {
					return err
				}
				records, err := s.pull(ctx, ctrl, args[1:])
				if err != nil {
					return err
				}
				r := records[0]
				r.SetData(values, false, false)
				if err := r.Save(ctx, saveOptions); err != nil {
					return fmt.Errorf("saving %s %s: %w", args[0], args[1], err)
				}
				return presentation.NewFormatter(cmd.OutOrStdout()).FormatRecord(presentation.FromRecord(r, false))
			})
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "record fields as a JSON object")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "field=value (repeatable; value is parsed as JSON when possible)")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <Type> <id>...",
		Short: "Destroy stored records",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				ctrl, err := s.controller(args[0])
				if err != nil {
					return err
				}
				records, err := s.pull(ctx, ctrl, args[1:])
				if err != nil {
					return err
				}
				dtos := presentation.FromRecords(records, false)
				for _, r := range records {
					if err := r.Destroy(ctx, nil); err != nil {
						return fmt.Errorf("destroying %s %v: %w", args[0], r.ID(), err)
					}
				}
				return presentation.NewFormatter(cmd.OutOrStdout()).FormatRecords(dtos)
			})
		},
	}
}

func newPopulateCmd(a *app) *cobra.Command {
	var paths []string
	cmd := &cobra.Command{
		Use:   "populate <Type> <id>",
		Short: "Print a record with its references resolved",
		Long: `Load a record, fetch every reference that is still a bare identity and
print the record with those references nested one level deep.

--path field=envelope plucks the referenced document out of a response
envelope for that field (e.g. --path author=data).`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := &model.PopulateOptions{Fetch: make(map[string]*store.Options)}
			for _, p := range paths {
				field, path, ok := strings.Cut(p, "=")
				if !ok || field == "" {
					return fmt.Errorf("invalid --path %q: want field=path", p)
				}
				opts.Fetch[field] = &store.Options{Path: path}
			}
			return a.withSession(cmd, func(ctx context.Context, s *session) error {
				ctrl, err := s.controller(args[0])
				if err != nil {
					return err
				}
				records, err := s.pull(ctx, ctrl, args[1:])
				if err != nil {
					return err
				}
				r := records[0]
				if err := r.Populate(ctx, opts); err != nil {
					return fmt.Errorf("populating %s %s: %w", args[0], args[1], err)
				}
				return presentation.NewFormatter(cmd.OutOrStdout()).FormatRecord(presentation.FromRecord(r, true))
			})
		},
	}
	cmd.Flags().StringArrayVar(&paths, "path", nil, "field=path response envelope for a reference fetch (repeatable)")
	return cmd
}

// saveOptions writes references as identities.
var saveOptions = &store.Options{Depopulate: true}

// parseValues merges a JSON object with field=value assignments; assignments win.
func parseValues(data string, sets []string) (map[string]any, error) {
	values := make(map[string]any)
	if strings.TrimSpace(data) != "" {
		if err := json.Unmarshal([]byte(data), &values); err != nil {
			return nil, fmt.Errorf("invalid --data: %w", err)
		}
	}
	for _, set := range sets {
		field, raw, ok := strings.Cut(set, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid --set %q: want field=value", set)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		values[field] = v
	}
	return values, nil
}

// checkFields rejects undeclared fields before they reach the record.
func checkFields(ctrl *model.Controller, values map[string]any) error {
	for field := range values {
		if !ctrl.HasField(field) {
			return fmt.Errorf("%s has no field %q (fields: %s)",
				ctrl.Schema().Name, field, strings.Join(ctrl.Fields(), ", "))
		}
	}
	return nil
}
