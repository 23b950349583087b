package core_test

import (
	"context"
	"math"
	"platecore/internal/core"
	"platecore/pkg/domain"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	p1a1 = domain.NewPlateAssayKey("P1", "A1")
	p2a1 = domain.NewPlateAssayKey("P2", "A1")
	p3a1 = domain.NewPlateAssayKey("P3", "A1")
)

func newService(t *testing.T, opts ...core.ServiceOption) *core.Service {
	t.Helper()
	svc, err := core.NewService(domain.DefaultGrid, opts...)
	require.NoError(t, err)
	return svc
}

// unreadGrid returns a grid of readings with every well unread.
func unreadGrid(g domain.Grid) [][]float64 {
	values := make([][]float64, g.Rows)
	for r := range values {
		values[r] = make([]float64, g.Cols)
		for c := range values[r] {
			values[r][c] = math.NaN()
		}
	}
	return values
}

// fullGrid returns readings where well (r, c) reads r*100+c.
func fullGrid(g domain.Grid) [][]float64 {
	values := make([][]float64, g.Rows)
	for r := range values {
		values[r] = make([]float64, g.Cols)
		for c := range values[r] {
			values[r][c] = float64((r+1)*100 + c + 1)
		}
	}
	return values
}

// scenarioGrid reads 1..6 across rows 1-2, cols 1-3 and leaves the rest unread.
func scenarioGrid() [][]float64 {
	values := unreadGrid(domain.DefaultGrid)
	n := 1.0
	for r := 0; r < 2; r++ {
		for c := 0; c < 3; c++ {
			values[r][c] = n
			n++
		}
	}
	return values
}

func ingest(t *testing.T, svc *core.Service, key domain.PlateAssayKey, values [][]float64) {
	t.Helper()
	_, _, err := svc.Ingest(context.Background(), key, values, core.IngestOptions{})
	require.NoError(t, err)
}

func rect(r1, c1, r2, c2 int) domain.Rect {
	return domain.NewRect(domain.Coord{Row: r1, Col: c1}, domain.Coord{Row: r2, Col: c2})
}

func at(row, col int) domain.Coord { return domain.Coord{Row: row, Col: col} }

// scenario loads P1/A1 with template S1 over A1:B3, A1 masked and B3 a control well.
func scenario(t *testing.T, opts ...core.ServiceOption) *core.Service {
	t.Helper()
	ctx := context.Background()
	svc := newService(t, opts...)
	ingest(t, svc, p1a1, scenarioGrid())
	_, _, err := svc.DefineSection(ctx, domain.GlobalScope(), "S1", rect(1, 1, 2, 3), 0)
	require.NoError(t, err)
	_, _, err = svc.SetMask(ctx, p1a1, at(1, 1), true)
	require.NoError(t, err)
	_, _, err = svc.SetControl(ctx, p1a1, at(2, 3), true)
	require.NoError(t, err)
	return svc
}
