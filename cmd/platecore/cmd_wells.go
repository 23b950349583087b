package main

import (
	"fmt"
	"io"
	"platecore/internal/core"
	"platecore/pkg/domain"

	"github.com/spf13/cobra"
)

// newWellCommand builds "mask" or "control" with set, clear and toggle subcommands.
func newWellCommand(a *app, flag string, set, toggle core.CommandKind) *cobra.Command {
	cmd := &cobra.Command{
		Use:   flag,
		Short: fmt.Sprintf("Set, clear or toggle the %s flag of wells", flag),
	}
	sub := func(use string, action core.CommandKind, value bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " PLATE_ASSAY WELL...",
			Short: fmt.Sprintf("%s the %s flag, e.g. %s P1_AB A1 B2", use, flag, use),
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				key, err := domain.ParsePlateAssayKey(args[0])
				if err != nil {
					return err
				}
				coords := make([]domain.Coord, 0, len(args)-1)
				for _, label := range args[1:] {
					c, err := domain.ParseWellLabel(label)
					if err != nil {
						return err
					}
					coords = append(coords, c)
				}
				wells := make([]domain.Well, 0, len(coords))
				for _, c := range coords {
					out, err := a.run(cmd, core.WellCommand{Action: action, Key: key, Well: c, Value: value})
					if err != nil {
						return err
					}
					warnings(a.errOut, out.Warnings)
					wells = append(wells, *out.Well)
				}
				return a.render(wells, wellTable(wells))
			},
		}
	}
	cmd.AddCommand(
		sub("set", set, true),
		sub("clear", set, false),
		sub("toggle", toggle, false),
	)
	return cmd
}

func newCopyMasksCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "copy-masks SOURCE DEST...",
		Short: "Copy mask and control flags from one plate-assay to others",
		Long: `Overwrite the mask and control flags of every destination with those of the source.
Readings and sections are untouched. With several destinations nothing changes unless
every destination matches the source grid.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := make([]domain.PlateAssayKey, 0, len(args))
			for _, arg := range args {
				key, err := domain.ParsePlateAssayKey(arg)
				if err != nil {
					return err
				}
				keys = append(keys, key)
			}
			var c core.Command = core.PropagateMasksCommand{Src: keys[0], Dsts: keys[1:]}
			if len(keys) == 2 {
				c = core.CopyMasksCommand{Src: keys[0], Dst: keys[1]}
			}
			out, err := a.run(cmd, c)
			if err != nil {
				return err
			}
			return a.render(out, func(w io.Writer) {
				fmt.Fprintf(w, "copied flags of %s to %d plate-assays, %d wells changed\n", keys[0], len(keys)-1, out.Changed)
			})
		},
	}
}
