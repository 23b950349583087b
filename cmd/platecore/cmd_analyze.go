package main

import (
	"platecore/internal/core"
	"platecore/pkg/domain"

	"github.com/spf13/cobra"
)

func newAnalyzeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze [PLATE_ASSAY [SECTION]]",
		Short: "Compute section statistics",
		Long: `Without arguments every section of every plate-assay is analysed. With a plate-assay
only its effective sections are, and with a section name only that one.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var c core.AnalyzeCommand
			if len(args) > 0 {
				key, err := domain.ParsePlateAssayKey(args[0])
				if err != nil {
					return err
				}
				c.Key = key
			}
			if len(args) > 1 {
				c.Section = args[1]
			}
			out, err := a.run(cmd, c)
			if err != nil {
				return err
			}
			an := a.settings.Analysis
			return a.render(out.Analysis, analysisTable(out.Analysis, an.SectionUnits, an.SubtractControls))
		},
	}
}

func newTimeCourseCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "timecourse PLATE_ASSAY SECTION",
		Short: "Follow a section across every time point of a plate-assay",
		Long: `Analyse the section at each ingested time point in ascending order and report the
change from the first time point in percent.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := domain.ParsePlateAssayKey(args[0])
			if err != nil {
				return err
			}
			out, err := a.run(cmd, core.TimeCourseCommand{Key: key, Section: args[1]})
			if err != nil {
				return err
			}
			return a.render(out.TimeCourse, timeCourseTable(*out.TimeCourse, a.settings.Analysis.SubtractControls))
		},
	}
}
