package main

import (
	"fmt"
	"io"
	"platecore/internal/core"
	"platecore/pkg/domain"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// parseRect accepts "A1:D4" or a single well label.
func parseRect(s string) (domain.Rect, error) {
	from, to, found := strings.Cut(s, ":")
	a, err := domain.ParseWellLabel(from)
	if err != nil {
		return domain.Rect{}, err
	}
	b := a
	if found {
		if b, err = domain.ParseWellLabel(to); err != nil {
			return domain.Rect{}, err
		}
	}
	return domain.NewRect(a, b), nil
}

// parseScope maps "global" or an empty string to the template scope, anything else to a
// plate-assay scope.
func parseScope(s string) (domain.Scope, error) {
	if s == "" || strings.EqualFold(s, "global") {
		return domain.GlobalScope(), nil
	}
	key, err := domain.ParsePlateAssayKey(s)
	if err != nil {
		return domain.Scope{}, err
	}
	return domain.PlateScope(key), nil
}

func newSectionsCommand(a *app) *cobra.Command {
	var plate string
	scope := func() (domain.Scope, error) { return parseScope(plate) }
	showOne := func(out core.CommandResult) error {
		warnings(a.errOut, out.Warnings)
		return a.render(out.Sections, sectionTable(out.Sections, a.settings.Analysis.SectionUnits))
	}

	cmd := &cobra.Command{
		Use:   "sections",
		Short: "Manage named well rectangles",
	}
	cmd.PersistentFlags().StringVar(&plate, "plate", "", "plate-assay owning the sections (default: global templates)")

	var effective bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List sections in insertion order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sc, err := scope()
			if err != nil {
				return err
			}
			var sections []domain.Section
			if effective && !sc.Global {
				sections, err = a.svc.EffectiveSections(cmd.Context(), sc.PlateAssay)
			} else {
				seq, lerr := a.svc.ListSections(cmd.Context(), sc)
				err = lerr
				if err == nil {
					sections = slices.Collect(seq)
				}
			}
			if err != nil {
				return err
			}
			return a.render(sections, sectionTable(sections, a.settings.Analysis.SectionUnits))
		},
	}
	list.Flags().BoolVar(&effective, "effective", false, "include the global templates the plate-assay does not override")

	var grey float64
	define := &cobra.Command{
		Use:   "define NAME RECT",
		Short: "Define a section, e.g. define S1 A1:D4",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := scope()
			if err != nil {
				return err
			}
			rect, err := parseRect(args[1])
			if err != nil {
				return err
			}
			out, err := a.run(cmd, core.DefineSectionCommand{Scope: sc, Name: args[0], Rect: rect, GreyLevel: grey})
			if err != nil {
				return err
			}
			return showOne(out)
		},
	}
	define.Flags().Float64Var(&grey, "grey", 0, "dose label of the section")

	edit := func(use, short string, action core.CommandKind, apply func(c *core.EditSectionCommand, arg string) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				sc, err := scope()
				if err != nil {
					return err
				}
				c := core.EditSectionCommand{Action: action, Scope: sc, Name: args[0]}
				if err := apply(&c, args[1]); err != nil {
					return err
				}
				out, err := a.run(cmd, c)
				if err != nil {
					return err
				}
				return showOne(out)
			},
		}
	}
	rename := edit("rename NAME NEW_NAME", "Rename a section", core.CmdRenameSection, func(c *core.EditSectionCommand, arg string) error {
		c.NewName = arg
		return nil
	})
	rect := edit("rect NAME RECT", "Replace the rectangle of a section", core.CmdRedefineRect, func(c *core.EditSectionCommand, arg string) error {
		r, err := parseRect(arg)
		c.Rect = r
		return err
	})
	setGrey := edit("grey NAME VALUE", "Set the dose label of a section", core.CmdSetGreyLevel, func(c *core.EditSectionCommand, arg string) error {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return fmt.Errorf("grey level %q: %w", arg, err)
		}
		c.GreyLevel = v
		return nil
	})

	del := &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a section",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := scope()
			if err != nil {
				return err
			}
			out, err := a.run(cmd, core.DeleteSectionCommand{Scope: sc, Name: args[0]})
			if err != nil {
				return err
			}
			return a.render(out, func(w io.Writer) { fmt.Fprintf(w, "deleted %s from %s\n", args[0], sc) })
		},
	}

	seed := &cobra.Command{
		Use:   "seed",
		Short: "Define the six 4x4 blocks S1..S6",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sc, err := scope()
			if err != nil {
				return err
			}
			out, err := a.run(cmd, core.SeedSectionsCommand{Scope: sc})
			if err != nil {
				return err
			}
			return showOne(out)
		},
	}

	var (
		to        string
		overwrite bool
	)
	cp := &cobra.Command{
		Use:   "copy --to SCOPE",
		Short: "Copy every section of --plate (or the templates) into another scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			src, err := scope()
			if err != nil {
				return err
			}
			dst, err := parseScope(to)
			if err != nil {
				return err
			}
			out, err := a.run(cmd, core.CopySectionsCommand{Src: src, Dst: dst, Overwrite: overwrite})
			if err != nil {
				return err
			}
			return a.render(out.Copy, func(w io.Writer) {
				row(w, "COPIED", strings.Join(out.Copy.Copied, ","))
				row(w, "SKIPPED", strings.Join(out.Copy.Skipped, ","))
			})
		},
	}
	cp.Flags().StringVar(&to, "to", "", "destination plate-assay or \"global\"")
	cp.Flags().BoolVar(&overwrite, "overwrite", false, "replace sections with the same name")
	_ = cp.MarkFlagRequired("to")

	resolve := &cobra.Command{
		Use:   "resolve PLATE_ASSAY SECTION",
		Short: "Classify the wells of a section as excluded, control or sample",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := domain.ParsePlateAssayKey(args[0])
			if err != nil {
				return err
			}
			res, err := a.svc.Resolve(cmd.Context(), key, args[1])
			if err != nil {
				return err
			}
			return a.render(res, func(w io.Writer) {
				row(w, "SECTION", res.Section.Name, res.Effective)
				row(w, "EXCLUDED", labels(res.Excluded))
				row(w, "CONTROL", labels(res.Control))
				row(w, "SAMPLE", labels(res.Sample))
			})
		},
	}

	cmd.AddCommand(list, define, rename, rect, setGrey, del, seed, cp, resolve)
	return cmd
}

func labels(cs []domain.Coord) string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Label()
	}
	return strings.Join(out, " ")
}
