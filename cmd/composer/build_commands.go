package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-composer/internal/media"
	"github.com/heimdex/heimdex-composer/internal/project"
	"github.com/heimdex/heimdex-composer/internal/store"
)

func newBuildCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "build [id...]",
		Short: "Make items ready and build their compositions",
		Long:  "Build the named items, or every item when none are named. One failing item does not stop the others.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withProject(cmd, true, func(s *project.Session, _ store.Repository) error {
				ids := make([]string, 0, len(args))
				for _, ref := range args {
					id, err := resolveID(s, ref)
					if err != nil {
						return err
					}
					ids = append(ids, id)
				}

				report := s.BuildAll(cmd.Context(), ids)
				if report.Total == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing to build.")
					return nil
				}

				rows := make([][]string, len(report.Results))
				for i, res := range report.Results {
					name := ""
					if it, err := s.Lookup(res.ID); err == nil {
						name = it.Name
					}
					row := []string{shortID(res.ID), name, "-", "-", "ok"}
					if res.Err != nil {
						row[4] = media.ErrorCode(res.Err) + ": " + res.Err.Error()
					} else if res.Composition != nil {
						row[2] = formatDuration(res.Composition.Duration)
						row[3] = strconv.Itoa(len(res.Composition.Segments))
					}
					rows[i] = row
				}
				writeRows(cmd.OutOrStdout(),
					[]string{"ID", "Name", "Duration", "Segments", "Result"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				)

				if report.Failed > 0 {
					return errors.New(report.Summary())
				}
				return nil
			})
		},
	}
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	var (
		outDir string
		fps    float64
		title  string
	)

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Write an item's composition as a CMX3600 EDL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if outDir == "" {
				outDir = cfg.ExportDir()
				if err := os.MkdirAll(outDir, 0755); err != nil {
					return fmt.Errorf("create export dir: %w", err)
				}
			}
			if !cmd.Flags().Changed("fps") {
				fps = cfg.ExportFPS()
			}

			return ctx.withProject(cmd, true, func(s *project.Session, _ store.Repository) error {
				id, err := resolveID(s, args[0])
				if err != nil {
					return err
				}
				res, err := s.ExportEDL(cmd.Context(), id, title, fps, outDir)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d events (%s) to %s\n",
					len(res.Composition.Segments), formatDuration(res.Composition.Duration), res.Path)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory (defaults to <data dir>/exports)")
	cmd.Flags().Float64Var(&fps, "fps", 0, "Timecode frame rate; 29.97 and 59.94 use drop-frame")
	cmd.Flags().StringVar(&title, "title", "", "EDL title (defaults to the item name)")
	return cmd
}
