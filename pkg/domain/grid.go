package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxLabelRows bounds the grid height that can still be addressed with single letter row labels.
const MaxLabelRows = 26

// Grid describes the well layout of a plate. Rows and columns are 1-based.
type Grid struct {
	Rows int `json:"rows" yaml:"rows"`
	Cols int `json:"cols" yaml:"cols"`
}

// DefaultGrid is the standard 96-well layout (8 rows A-H, 12 columns).
var DefaultGrid = Grid{Rows: 8, Cols: 12}

// Validate reports whether the grid dimensions are usable.
func (g Grid) Validate() error {
	if g.Rows < 1 || g.Cols < 1 {
		return fmt.Errorf("grid %dx%d must have at least one row and column", g.Rows, g.Cols)
	}
	if g.Rows > MaxLabelRows {
		return fmt.Errorf("grid %dx%d exceeds %d rows", g.Rows, g.Cols, MaxLabelRows)
	}
	return nil
}

// Size returns the number of wells in the grid.
func (g Grid) Size() int { return g.Rows * g.Cols }

// InBounds reports whether (row, col) addresses a well of the grid.
func (g Grid) InBounds(row, col int) bool {
	return row >= 1 && row <= g.Rows && col >= 1 && col <= g.Cols
}

// Bounds returns the rectangle covering the whole grid.
func (g Grid) Bounds() Rect {
	return Rect{RowStart: 1, RowEnd: g.Rows, ColStart: 1, ColEnd: g.Cols}
}

// ContainsRect reports whether rect is non-empty and lies fully inside the grid.
func (g Grid) ContainsRect(rect Rect) bool {
	if rect.Empty() {
		return false
	}
	return g.InBounds(rect.RowStart, rect.ColStart) && g.InBounds(rect.RowEnd, rect.ColEnd)
}

// Index converts a coordinate to its row-major offset. The caller must check bounds.
func (g Grid) Index(c Coord) int {
	return (c.Row-1)*g.Cols + (c.Col - 1)
}

// Coords returns every coordinate of the grid in row-major order.
func (g Grid) Coords() []Coord {
	return g.Bounds().Coords()
}

func (g Grid) String() string {
	return fmt.Sprintf("%dx%d", g.Rows, g.Cols)
}

// Coord addresses a single well.
type Coord struct {
	Row int `json:"row" yaml:"row"`
	Col int `json:"col" yaml:"col"`
}

// Label renders the coordinate in plate notation (row letter followed by column, e.g. "B7").
func (c Coord) Label() string {
	if c.Row < 1 || c.Row > MaxLabelRows {
		return fmt.Sprintf("R%dC%d", c.Row, c.Col)
	}
	return string(rune('A'+c.Row-1)) + strconv.Itoa(c.Col)
}

func (c Coord) String() string { return c.Label() }

// ParseWellLabel parses plate notation such as "A1" or "h12" into a coordinate.
func ParseWellLabel(label string) (Coord, error) {
	label = strings.TrimSpace(strings.ToUpper(label))
	if len(label) < 2 {
		return Coord{}, fmt.Errorf("well label %q too short", label)
	}
	letter := label[0]
	if letter < 'A' || letter > 'Z' {
		return Coord{}, fmt.Errorf("well label %q must start with a row letter", label)
	}
	col, err := strconv.Atoi(label[1:])
	if err != nil || col < 1 {
		return Coord{}, fmt.Errorf("well label %q has invalid column", label)
	}
	return Coord{Row: int(letter-'A') + 1, Col: col}, nil
}

// Rect is a closed rectangle of wells: both bounds are inclusive on both axes.
// A rectangle with RowStart > RowEnd or ColStart > ColEnd is empty.
type Rect struct {
	RowStart int `json:"row_start" yaml:"row_start"`
	RowEnd   int `json:"row_end" yaml:"row_end"`
	ColStart int `json:"col_start" yaml:"col_start"`
	ColEnd   int `json:"col_end" yaml:"col_end"`
}

// EmptyRect is the canonical empty rectangle.
var EmptyRect = Rect{RowStart: 1, RowEnd: 0, ColStart: 1, ColEnd: 0}

// NewRect builds a rectangle from two corners in any order.
func NewRect(a, b Coord) Rect {
	r := Rect{RowStart: a.Row, RowEnd: b.Row, ColStart: a.Col, ColEnd: b.Col}
	if r.RowStart > r.RowEnd {
		r.RowStart, r.RowEnd = r.RowEnd, r.RowStart
	}
	if r.ColStart > r.ColEnd {
		r.ColStart, r.ColEnd = r.ColEnd, r.ColStart
	}
	return r
}

// Empty reports whether the rectangle contains no wells.
func (r Rect) Empty() bool {
	return r.RowStart > r.RowEnd || r.ColStart > r.ColEnd
}

// Contains reports whether (row, col) lies inside the rectangle.
func (r Rect) Contains(row, col int) bool {
	return row >= r.RowStart && row <= r.RowEnd && col >= r.ColStart && col <= r.ColEnd
}

// Intersect returns the overlap of r and other, or EmptyRect when they do not overlap.
func (r Rect) Intersect(other Rect) Rect {
	out := Rect{
		RowStart: max(r.RowStart, other.RowStart),
		RowEnd:   min(r.RowEnd, other.RowEnd),
		ColStart: max(r.ColStart, other.ColStart),
		ColEnd:   min(r.ColEnd, other.ColEnd),
	}
	if out.Empty() {
		return EmptyRect
	}
	return out
}

// Size returns the number of wells covered.
func (r Rect) Size() int {
	if r.Empty() {
		return 0
	}
	return (r.RowEnd - r.RowStart + 1) * (r.ColEnd - r.ColStart + 1)
}

// Coords lists the covered wells in ascending row-major order.
func (r Rect) Coords() []Coord {
	if r.Empty() {
		return nil
	}
	out := make([]Coord, 0, r.Size())
	for row := r.RowStart; row <= r.RowEnd; row++ {
		for col := r.ColStart; col <= r.ColEnd; col++ {
			out = append(out, Coord{Row: row, Col: col})
		}
	}
	return out
}

func (r Rect) String() string {
	if r.Empty() {
		return "empty"
	}
	return fmt.Sprintf("%s:%s",
		Coord{Row: r.RowStart, Col: r.ColStart}.Label(),
		Coord{Row: r.RowEnd, Col: r.ColEnd}.Label())
}
