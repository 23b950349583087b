package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridInBounds(t *testing.T) {
	g := DefaultGrid
	cases := []struct {
		row, col int
		want     bool
	}{
		{1, 1, true},
		{8, 12, true},
		{0, 1, false},
		{1, 0, false},
		{9, 1, false},
		{1, 13, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, g.InBounds(tc.row, tc.col), "(%d,%d)", tc.row, tc.col)
	}
}

func TestGridValidate(t *testing.T) {
	require.NoError(t, DefaultGrid.Validate())
	require.Error(t, Grid{Rows: 0, Cols: 12}.Validate())
	require.Error(t, Grid{Rows: 27, Cols: 12}.Validate())
}

func TestGridContainsRect(t *testing.T) {
	g := DefaultGrid
	assert.True(t, g.ContainsRect(Rect{RowStart: 1, RowEnd: 2, ColStart: 1, ColEnd: 3}))
	assert.True(t, g.ContainsRect(g.Bounds()))
	assert.False(t, g.ContainsRect(Rect{RowStart: 1, RowEnd: 1, ColStart: 1, ColEnd: 15}))
	assert.False(t, g.ContainsRect(EmptyRect))
	assert.False(t, g.ContainsRect(Rect{RowStart: 0, RowEnd: 2, ColStart: 1, ColEnd: 2}))
}

func TestRectContainsIsClosed(t *testing.T) {
	r := Rect{RowStart: 2, RowEnd: 4, ColStart: 3, ColEnd: 5}
	assert.True(t, r.Contains(2, 3))
	assert.True(t, r.Contains(4, 5))
	assert.False(t, r.Contains(1, 3))
	assert.False(t, r.Contains(4, 6))
}

func TestRectIntersect(t *testing.T) {
	a := Rect{RowStart: 1, RowEnd: 4, ColStart: 1, ColEnd: 4}
	b := Rect{RowStart: 3, RowEnd: 6, ColStart: 2, ColEnd: 8}
	assert.Equal(t, Rect{RowStart: 3, RowEnd: 4, ColStart: 2, ColEnd: 4}, a.Intersect(b))
	assert.Equal(t, a.Intersect(b), b.Intersect(a))

	c := Rect{RowStart: 5, RowEnd: 6, ColStart: 5, ColEnd: 6}
	got := a.Intersect(c)
	assert.True(t, got.Empty())
	assert.Equal(t, EmptyRect, got)
	assert.Equal(t, 0, got.Size())
	assert.Nil(t, got.Coords())
}

func TestRectCoordsRowMajor(t *testing.T) {
	r := NewRect(Coord{Row: 2, Col: 3}, Coord{Row: 1, Col: 1})
	assert.Equal(t, Rect{RowStart: 1, RowEnd: 2, ColStart: 1, ColEnd: 3}, r)
	assert.Equal(t, []Coord{
		{1, 1}, {1, 2}, {1, 3},
		{2, 1}, {2, 2}, {2, 3},
	}, r.Coords())
	assert.Equal(t, "A1:B3", r.String())
}

func TestWellLabels(t *testing.T) {
	c, err := ParseWellLabel("h12")
	require.NoError(t, err)
	assert.Equal(t, Coord{Row: 8, Col: 12}, c)
	assert.Equal(t, "H12", c.Label())

	for _, bad := range []string{"", "A", "1A", "A0", "Ax"} {
		_, err := ParseWellLabel(bad)
		assert.Error(t, err, bad)
	}
}

func TestDefaultSectionsTileThePlate(t *testing.T) {
	sections := DefaultSections(GlobalScope())
	require.Len(t, sections, 6)
	covered := map[Coord]string{}
	for _, s := range sections {
		require.True(t, DefaultGrid.ContainsRect(s.Rect), s.Name)
		for _, c := range s.Rect.Coords() {
			prev, dup := covered[c]
			require.False(t, dup, "%s overlaps %s at %s", s.Name, prev, c)
			covered[c] = s.Name
		}
	}
	assert.Len(t, covered, DefaultGrid.Size())
	assert.Equal(t, Rect{RowStart: 5, RowEnd: 8, ColStart: 9, ColEnd: 12}, sections[5].Rect)
}

func TestParsePlateAssayKey(t *testing.T) {
	key, err := ParsePlateAssayKey(" P1_AB ")
	require.NoError(t, err)
	assert.Equal(t, PlateAssayKey{PlateID: "P1", AssayID: "AB"}, key)
	assert.Equal(t, "P1_AB", key.String())

	key, err = ParsePlateAssayKey("P2_ROS_24h")
	require.NoError(t, err)
	assert.Equal(t, "ROS_24h", key.AssayID)

	for _, bad := range []string{"", "P1", "_AB", "P1_"} {
		_, err := ParsePlateAssayKey(bad)
		assert.Error(t, err, bad)
	}
}
