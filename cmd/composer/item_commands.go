package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-composer/internal/media"
	"github.com/heimdex/heimdex-composer/internal/project"
	"github.com/heimdex/heimdex-composer/internal/store"
	"github.com/heimdex/heimdex-composer/internal/timeline"
)

// resolveID accepts a full id or a unique prefix of one.
func resolveID(s *project.Session, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("item id is required")
	}
	if _, err := s.Lookup(ref); err == nil {
		return ref, nil
	}

	var matches []string
	for _, it := range s.List() {
		if strings.HasPrefix(it.ID, ref) {
			matches = append(matches, it.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%s: %w", ref, media.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("id prefix %q is ambiguous (%d items)", ref, len(matches))
	}
}

func parseCutFlags(values []string) ([]timeline.Interval, error) {
	var cuts []timeline.Interval
	for _, v := range values {
		ivs, err := timeline.ParseIntervals(v)
		if err != nil {
			return nil, err
		}
		cuts = append(cuts, ivs...)
	}
	return cuts, nil
}

func newItemsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "items",
		Short: "List raw resources and derived items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withProject(cmd, false, func(s *project.Session, _ store.Repository) error {
				items := s.List()
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "No items. Add one with `composer add <file>`.")
					return nil
				}

				now := time.Now()
				rows := make([][]string, len(items))
				for i, it := range items {
					rows[i] = itemRow(it, now)
				}
				writeRows(out, itemHeaders, rows, itemAligns)
				return nil
			})
		},
	}
}

func newAddCommand(ctx *commandContext) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "add <file>",
		Short: "Register a media file as a raw resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withProject(cmd, true, func(s *project.Session, _ store.Repository) error {
				item, added, err := s.AddRaw(args[0], name)
				if err != nil {
					return err
				}
				if !added {
					fmt.Fprintf(cmd.OutOrStdout(), "Already registered as %s (%s)\n", item.ID, item.Name)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added raw resource %s (%s)\n", item.ID, item.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name (defaults to the file name)")
	return cmd
}

func newImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <folder>",
		Short: "Register every video file under a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withProject(cmd, true, func(s *project.Session, _ store.Repository) error {
				report, err := s.ImportFolder(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Found %d video files: %d added, %d already registered\n",
					report.Found, len(report.Added), report.Skipped)
				return nil
			})
		},
	}
}

func newDeriveCommand(ctx *commandContext) *cobra.Command {
	var (
		base    string
		name    string
		cutArgs []string
		applied bool
	)

	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Create a derived item playing another item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cuts, err := parseCutFlags(cutArgs)
			if err != nil {
				return err
			}
			return ctx.withProject(cmd, true, func(s *project.Session, _ store.Repository) error {
				baseID, err := resolveID(s, base)
				if err != nil {
					return fmt.Errorf("base: %w", err)
				}
				item, err := s.Derive(baseID, name, cuts, applied)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created derived item %s from %s with %d cuts\n",
					item.ID, shortID(baseID), len(item.Cuts))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&base, "base", "", "Id (or unique prefix) of the item to derive from")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringArrayVar(&cutArgs, "cut", nil, "Cut as start-end in seconds; repeatable or comma separated")
	cmd.Flags().BoolVar(&applied, "applied", true, "Apply the cuts to playback")
	_ = cmd.MarkFlagRequired("base")
	return cmd
}

func newCutsCommand(ctx *commandContext) *cobra.Command {
	var (
		cutArgs   []string
		clearCuts bool
		applied   bool
	)

	cmd := &cobra.Command{
		Use:   "cuts <id>",
		Short: "Replace or toggle the cuts of a derived item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setCuts := clearCuts || cmd.Flags().Changed("cut")
			setApplied := cmd.Flags().Changed("applied")

			cuts, err := parseCutFlags(cutArgs)
			if err != nil {
				return err
			}

			return ctx.withProject(cmd, true, func(s *project.Session, _ store.Repository) error {
				id, err := resolveID(s, args[0])
				if err != nil {
					return err
				}

				item, err := s.Lookup(id)
				if err != nil {
					return err
				}
				if setCuts {
					if item, err = s.SetCuts(cmd.Context(), id, cuts); err != nil {
						return err
					}
				}
				if setApplied {
					if item, err = s.SetCutsApplied(cmd.Context(), id, applied); err != nil {
						return err
					}
				}

				state := "applied"
				if !item.CutsApplied {
					state = "not applied"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s cuts: %s (%s)\n", shortID(item.ID), formatCuts(item), state)
				if setCuts || setApplied {
					if deps := s.DependentsOf(id); len(deps) > 0 {
						fmt.Fprintf(cmd.OutOrStdout(), "%d dependent items need rebuilding\n", len(deps))
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&cutArgs, "cut", nil, "Cut as start-end in seconds; repeatable or comma separated")
	cmd.Flags().BoolVar(&clearCuts, "clear", false, "Remove every cut")
	cmd.Flags().BoolVar(&applied, "applied", true, "Whether the cuts affect playback")
	return cmd
}

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps <id>",
		Short: "List the items derived directly from an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withProject(cmd, false, func(s *project.Session, _ store.Repository) error {
				id, err := resolveID(s, args[0])
				if err != nil {
					return err
				}

				deps := s.DependentsOf(id)
				out := cmd.OutOrStdout()
				if len(deps) == 0 {
					fmt.Fprintf(out, "Nothing derives from %s\n", shortID(id))
					return nil
				}

				now := time.Now()
				rows := make([][]string, 0, len(deps))
				for _, dep := range deps {
					it, err := s.Lookup(dep)
					if err != nil {
						continue
					}
					rows = append(rows, itemRow(it, now))
				}
				writeRows(out, itemHeaders, rows, itemAligns)
				return nil
			})
		},
	}
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"remove"},
		Short:   "Unregister an item nothing derives from",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withProject(cmd, true, func(s *project.Session, _ store.Repository) error {
				id, err := resolveID(s, args[0])
				if err != nil {
					return err
				}
				if err := s.Unregister(id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", id)
				return nil
			})
		},
	}
}
