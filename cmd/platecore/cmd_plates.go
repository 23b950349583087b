package main

import (
	"fmt"
	"io"
	"maps"
	"platecore/internal/core"
	"platecore/internal/ingest"
	"platecore/pkg/domain"
	"slices"

	"github.com/spf13/cobra"
)

type ingestReport struct {
	Plates   []domain.PlateAssay `json:"plates" yaml:"plates"`
	Skipped  []skippedBlock      `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Excluded map[string]int      `json:"excluded,omitempty" yaml:"excluded,omitempty"`
}

type skippedBlock struct {
	File           string `json:"file" yaml:"file"`
	ingest.Skipped `yaml:",inline"`
}

func newIngestCommand(a *app) *cobra.Command {
	var tabs bool
	cmd := &cobra.Command{
		Use:   "ingest FILE...",
		Short: "Load plate blocks from spectrophotometer exports",
		Long: `Load every complete plate block of each export. A file is ingested all-or-nothing.
Re-ingesting a plate-assay replaces its readings and keeps its masks and sections.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := ingest.Options{}
			if tabs {
				opts.Comma = '\t'
			}
			report := ingestReport{Excluded: map[string]int{}}
			for _, path := range args {
				parsed, err := ingest.ParseFile(path, a.svc.Grid(), opts)
				if err != nil {
					return err
				}
				for _, s := range parsed.Skipped {
					report.Skipped = append(report.Skipped, skippedBlock{File: path, Skipped: s})
				}
				if len(parsed.Blocks) == 0 {
					continue
				}
				out, err := a.run(cmd, core.IngestBatchCommand{Items: parsed.Items(path)})
				if err != nil {
					return fmt.Errorf("ingest %s: %w", path, err)
				}
				report.Plates = append(report.Plates, out.PlateAssays...)
				if !a.settings.Analysis.AutoExcludeOrphaned {
					continue
				}
				for _, pa := range out.PlateAssays {
					ex, err := a.run(cmd, core.ExcludeOrphansCommand{Key: pa.Key})
					if err != nil {
						return err
					}
					if ex.Changed > 0 {
						report.Excluded[pa.Key.String()] = ex.Changed
					}
				}
			}
			return a.render(report, func(w io.Writer) {
				plateTable(report.Plates)(w)
				for _, s := range report.Skipped {
					fmt.Fprintf(w, "skipped %s line %d (%s): %s\n", s.File, s.Line, s.Name, s.Reason)
				}
				for _, key := range slices.Sorted(maps.Keys(report.Excluded)) {
					fmt.Fprintf(w, "masked %d orphan wells of %s\n", report.Excluded[key], key)
				}
			})
		},
	}
	cmd.Flags().BoolVar(&tabs, "tabs", false, "exports are tab separated")
	return cmd
}

func newPlatesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plates",
		Short: "List loaded plate-assays",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			plates := a.svc.ListPlateAssays(cmd.Context())
			return a.render(plates, plateTable(plates))
		},
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show PLATE_ASSAY",
			Short: "Show the wells of a plate-assay",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				key, err := domain.ParsePlateAssayKey(args[0])
				if err != nil {
					return err
				}
				wells, err := a.svc.Wells(cmd.Context(), key)
				if err != nil {
					return err
				}
				return a.render(wells, plateMap(a.svc.Grid(), wells))
			},
		},
		&cobra.Command{
			Use:   "remove PLATE_ASSAY",
			Short: "Drop a plate-assay with its masks and sections",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				key, err := domain.ParsePlateAssayKey(args[0])
				if err != nil {
					return err
				}
				out, err := a.run(cmd, core.RemovePlateAssayCommand{Key: key})
				if err != nil {
					return err
				}
				return a.render(out, func(w io.Writer) { fmt.Fprintf(w, "removed %s\n", key) })
			},
		},
		&cobra.Command{
			Use:   "recent",
			Short: "List recently ingested files",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				files := a.svc.RecentFiles(cmd.Context())
				return a.render(files, func(w io.Writer) {
					for _, f := range files {
						fmt.Fprintln(w, f)
					}
				})
			},
		},
	)
	return cmd
}

func newExcludeOrphansCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "exclude-orphans PLATE_ASSAY...",
		Short: "Mask read wells that no section covers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var results []core.CommandResult
			for _, arg := range args {
				key, err := domain.ParsePlateAssayKey(arg)
				if err != nil {
					return err
				}
				out, err := a.run(cmd, core.ExcludeOrphansCommand{Key: key})
				if err != nil {
					return err
				}
				results = append(results, out)
			}
			return a.render(results, func(w io.Writer) {
				for i, r := range results {
					row(w, args[i], r.Changed, labels(r.Wells))
				}
			})
		},
	}
}
