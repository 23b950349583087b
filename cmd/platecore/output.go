package main

import (
	"encoding/json"
	"fmt"
	"io"
	"platecore/pkg/domain"
	"strconv"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// render writes v as JSON or YAML, or calls table with a tab-aligned writer.
func (a *app) render(v any, table func(w io.Writer)) error {
	return writeFormatted(a.out, a.format, v, table)
}

func writeFormatted(out io.Writer, format string, v any, table func(w io.Writer)) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		table(tw)
		return tw.Flush()
	}
}

func row(w io.Writer, cols ...any) {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprint(c)
	}
	fmt.Fprintln(w, strings.Join(parts, "\t"))
}

func stat(s domain.Statistic) string {
	if !s.Defined {
		if s.Reason == domain.ReasonNone {
			return "-"
		}
		return "n/a (" + string(s.Reason) + ")"
	}
	return strconv.FormatFloat(s.Value, 'g', 6, 64)
}

func value(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'g', 6, 64)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return ""
}

func plateTable(plates []domain.PlateAssay) func(io.Writer) {
	return func(w io.Writer) {
		row(w, "PLATE", "ASSAY", "HOURS", "TIME POINTS", "READ", "MASKED", "CONTROLS", "SECTIONS", "REVISION", "SOURCE")
		for _, p := range plates {
			row(w, p.Key.PlateID, p.Key.AssayID, value(p.Hours), p.TimePoints, p.ReadWells, p.Masked, p.Controls, p.Sections, p.Revision, p.Source)
		}
	}
}

func sectionTable(sections []domain.Section, units string) func(io.Writer) {
	return func(w io.Writer) {
		row(w, "SCOPE", "NAME", "RECT", "WELLS", "GREY ("+units+")", "ORIGIN")
		for _, s := range sections {
			origin := ""
			if s.Origin != nil {
				origin = s.Origin.Scope.String() + "/" + s.Origin.Name
			}
			row(w, s.Scope, s.Name, s.Rect, s.Rect.Size(), strconv.FormatFloat(s.GreyLevel, 'g', -1, 64), origin)
		}
	}
}

func wellTable(wells []domain.Well) func(io.Writer) {
	return func(w io.Writer) {
		row(w, "PLATE", "WELL", "VALUE", "MASKED", "CONTROL", "STATE")
		for _, well := range wells {
			row(w, well.PlateAssayKey, well.Coord.Label(), value(well.Value), yesNo(well.Masked), yesNo(well.Control), well.State())
		}
	}
}

// analysisTable shows either the normalised view or, with subtract set, the control
// subtracted mean and its propagated error.
func analysisTable(results []domain.AnalysisResult, units string, subtract bool) func(io.Writer) {
	return func(w io.Writer) {
		head := []any{"PLATE", "SECTION", "GREY (" + units + ")", "N", "MEAN", "SD", "CTRL N", "CTRL MEAN"}
		if subtract {
			head = append(head, "MEAN-CTRL", "ERR")
		} else {
			head = append(head, "NORMALIZED")
		}
		row(w, head...)
		for _, r := range results {
			cols := []any{r.PlateAssay, r.Section, strconv.FormatFloat(r.GreyLevel, 'g', -1, 64), r.Count,
				stat(r.Mean), stat(r.Stdev), r.ControlCount, stat(r.ControlMean)}
			if subtract {
				cols = append(cols, stat(r.SubtractedMean), stat(r.PropagatedError))
			} else {
				cols = append(cols, stat(r.NormalizedMean))
			}
			row(w, cols...)
		}
	}
}

// timeCourseTable lists one row per time point with the change from the first one.
func timeCourseTable(tc domain.TimeCourse, subtract bool) func(io.Writer) {
	return func(w io.Writer) {
		head := []any{"HOURS", "N", "MEAN", "CTRL MEAN"}
		if subtract {
			head = append(head, "MEAN-CTRL", "CHANGE %", "ERR %")
		} else {
			head = append(head, "CHANGE %", "ERR %")
		}
		row(w, head...)
		for _, p := range tc.Points {
			r := p.Result
			cols := []any{value(p.Hours), r.Count, stat(r.Mean), stat(r.ControlMean)}
			if subtract {
				cols = append(cols, stat(r.SubtractedMean), stat(p.SubtractedPercentChange), stat(p.SubtractedPercentError))
			} else {
				cols = append(cols, stat(p.PercentChange), stat(p.PercentError))
			}
			row(w, cols...)
		}
	}
}

// plateMap draws the grid of one plate-assay: '.' active, 'x' masked, 'c' control,
// '?' unread.
func plateMap(grid domain.Grid, wells []domain.Well) func(io.Writer) {
	return func(w io.Writer) {
		head := []any{""}
		for c := 1; c <= grid.Cols; c++ {
			head = append(head, c)
		}
		row(w, head...)
		for r := 1; r <= grid.Rows; r++ {
			cols := []any{domain.Coord{Row: r, Col: 1}.Label()[:1]}
			for c := 1; c <= grid.Cols; c++ {
				well := wells[grid.Index(domain.Coord{Row: r, Col: c})]
				cols = append(cols, wellGlyph(well))
			}
			row(w, cols...)
		}
	}
}

func wellGlyph(w domain.Well) string {
	switch {
	case w.State() == domain.StateMasked:
		return "x"
	case w.Value == nil:
		return "?"
	case w.State() == domain.StateControl:
		return "c"
	default:
		return "."
	}
}

func warnings(w io.Writer, vs []domain.Violation) {
	for _, v := range vs {
		fmt.Fprintf(w, "warning: %s: %s\n", v.Rule, v.Message)
	}
}
