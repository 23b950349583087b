// Package ingest reads spectrophotometer plate exports into grids of readings.
//
// An export is a delimited text file holding one or more plate blocks:
//
//	Plate:,P1_AB_24h,...
//	<column header row>
//	,<temp>,v1,v2,...,v12
//	...
//	~End
//
// The grid values sit in the columns after the first two. Rows whose grid cells are all
// blank are ignored; blocks that do not yield a full grid are reported as skipped.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"platecore/internal/core"
	"platecore/pkg/domain"
	"regexp"
	"strconv"
	"strings"
)

const (
	blockStart = "Plate"
	blockEnd   = "~End"
	// leadingCols precede the grid values on every data row.
	leadingCols = 2
)

var (
	platePattern = regexp.MustCompile(`(?i)^P\d+$`)
	timePattern  = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)([hm])$`)
	assayPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*$`)
)

// Block is one complete plate read.
type Block struct {
	Name  string
	Key   domain.PlateAssayKey
	Hours *float64
	// Values has grid.Rows rows of grid.Cols readings; NaN marks a blank cell.
	Values [][]float64
	Line   int
}

// Skipped describes a block that was not turned into a grid.
type Skipped struct {
	Name   string `json:"name"`
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// Result lists the complete blocks in file order and the ones left out.
type Result struct {
	Blocks  []Block
	Skipped []Skipped
}

// Options tune the reader.
type Options struct {
	// Comma is the field delimiter; zero means ','.
	Comma rune
}

// ParseName extracts plate id, assay id and time point from a block name such as
// "P3_ROS_90m". Minutes are converted to hours.
func ParseName(name string) (domain.PlateAssayKey, *float64, error) {
	var (
		plate, assay string
		hours        *float64
	)
	for _, tok := range strings.Split(strings.TrimSpace(name), "_") {
		tok = strings.TrimSpace(tok)
		switch {
		case tok == "":
		case plate == "" && platePattern.MatchString(tok):
			plate = strings.ToUpper(tok)
		case hours == nil && timePattern.MatchString(tok):
			m := timePattern.FindStringSubmatch(tok)
			v, _ := strconv.ParseFloat(m[1], 64)
			if strings.EqualFold(m[2], "m") {
				v /= 60
			}
			hours = &v
		case assay == "" && assayPattern.MatchString(tok):
			assay = strings.ToUpper(tok)
		}
	}
	if plate == "" || assay == "" {
		return domain.PlateAssayKey{}, nil, fmt.Errorf("block name %q does not name a plate and an assay", name)
	}
	return domain.NewPlateAssayKey(plate, assay), hours, nil
}

// Parse reads every plate block of r shaped for grid.
func Parse(r io.Reader, grid domain.Grid, opts Options) (Result, error) {
	if err := grid.Validate(); err != nil {
		return Result{}, err
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}

	var (
		out   Result
		cur   *pending
		line  int
		skips int
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("read plate export: %w", err)
		}
		line, _ = cr.FieldPos(0)
		first := cell(rec, 0)
		switch {
		case cur == nil && strings.HasPrefix(first, blockStart):
			cur = &pending{name: cell(rec, 1), line: line}
			skips = 1
		case cur == nil:
		case first == blockEnd:
			out.add(cur.finish(grid))
			cur = nil
		case skips > 0:
			skips--
		default:
			cur.addRow(rec, grid.Cols)
		}
	}
	if cur != nil {
		out.Skipped = append(out.Skipped, Skipped{Name: cur.name, Line: cur.line, Reason: "missing " + blockEnd + " marker"})
	}
	return out, nil
}

// ParseFile parses the export at path.
func ParseFile(path string, grid domain.Grid, opts Options) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()
	return Parse(f, grid, opts)
}

// Items converts the blocks into a batch for core.Service.IngestBatch, recording source
// as their provenance.
func (r Result) Items(source string) []core.IngestItem {
	items := make([]core.IngestItem, 0, len(r.Blocks))
	for _, b := range r.Blocks {
		items = append(items, core.IngestItem{
			Key:           b.Key,
			Values:        b.Values,
			IngestOptions: core.IngestOptions{Source: source, Hours: b.Hours},
		})
	}
	return items
}

type pending struct {
	name string
	line int
	rows [][]float64
}

func (p *pending) addRow(rec []string, cols int) {
	row := make([]float64, cols)
	blank := true
	for c := range cols {
		v, err := strconv.ParseFloat(cell(rec, leadingCols+c), 64)
		if err != nil {
			v = math.NaN()
		} else {
			blank = false
		}
		row[c] = v
	}
	if !blank {
		p.rows = append(p.rows, row)
	}
}

func (p *pending) finish(grid domain.Grid) (Block, *Skipped) {
	key, hours, err := ParseName(p.name)
	if err != nil {
		return Block{}, &Skipped{Name: p.name, Line: p.line, Reason: err.Error()}
	}
	if len(p.rows) != grid.Rows {
		return Block{}, &Skipped{Name: p.name, Line: p.line,
			Reason: fmt.Sprintf("incomplete plate: %d data rows, grid has %d", len(p.rows), grid.Rows)}
	}
	return Block{Name: p.name, Key: key, Hours: hours, Values: p.rows, Line: p.line}, nil
}

func (r *Result) add(b Block, skipped *Skipped) {
	if skipped != nil {
		r.Skipped = append(r.Skipped, *skipped)
		return
	}
	r.Blocks = append(r.Blocks, b)
}

func cell(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
