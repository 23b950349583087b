package core_test

import (
	"context"
	"math"
	"math/rand/v2"
	"platecore/internal/core"
	"platecore/pkg/domain"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAndAnalyzeScenario(t *testing.T) {
	ctx := context.Background()
	svc := scenario(t)

	res, err := svc.Resolve(ctx, p1a1, "S1")
	require.NoError(t, err)
	assert.Equal(t, []domain.Coord{at(1, 1)}, res.Excluded)
	assert.Equal(t, []domain.Coord{at(2, 3)}, res.Control)
	assert.Equal(t, []domain.Coord{at(1, 2), at(1, 3), at(2, 1), at(2, 2)}, res.Sample)
	assert.Equal(t, rect(1, 1, 2, 3), res.Effective)

	r, err := svc.Analyze(ctx, p1a1, "S1")
	require.NoError(t, err)
	assert.Equal(t, 4, r.Count)
	assert.Equal(t, 1, r.Excluded)
	assert.Equal(t, 1, r.ControlCount)
	assert.InDelta(t, 3.5, r.Mean.Value, 1e-12)
	assert.InDelta(t, 1.2909944, r.Stdev.Value, 1e-6)
	assert.InDelta(t, 1.2909944/2, r.StdErr.Value, 1e-6)
	assert.InDelta(t, 6, r.ControlMean.Value, 1e-12)
	assert.InDelta(t, 0.5833333, r.NormalizedMean.Value, 1e-6)
	assert.InDelta(t, -2.5, r.SubtractedMean.Value, 1e-12)
	// one control well has no spread, so only the sample error propagates
	assert.InDelta(t, r.StdErr.Value, r.PropagatedError.Value, 1e-12)
	assert.False(t, r.ControlStdev.Defined)
	assert.Equal(t, domain.ReasonInsufficientSamples, r.ControlStdev.Reason)
	assert.True(t, svc.IsCurrent(ctx, r))
}

func TestPropagatedErrorUsesControlSpread(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	ingest(t, svc, p1a1, scenarioGrid())
	_, _, err := svc.DefineSection(ctx, domain.GlobalScope(), "S1", rect(1, 1, 2, 3), 0)
	require.NoError(t, err)
	for _, c := range []domain.Coord{at(2, 2), at(2, 3)} {
		_, _, err = svc.SetControl(ctx, p1a1, c, true)
		require.NoError(t, err)
	}

	r, err := svc.Analyze(ctx, p1a1, "S1")
	require.NoError(t, err)
	// samples 1..4, controls 5 and 6
	assert.InDelta(t, 1.2909944/2, r.StdErr.Value, 1e-6)
	assert.InDelta(t, math.Sqrt2/2, r.ControlStdev.Value, 1e-12)
	assert.InDelta(t, 0.5, r.ControlStdErr.Value, 1e-12)
	assert.InDelta(t, math.Hypot(r.StdErr.Value, r.ControlStdev.Value), r.PropagatedError.Value, 1e-12)
	assert.InDelta(t, 0.9574271, r.PropagatedError.Value, 1e-6)
	assert.InDelta(t, -3, r.SubtractedMean.Value, 1e-12)
}

func TestResolvePartitionsEverySection(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	ingest(t, svc, p1a1, fullGrid(domain.DefaultGrid))
	_, _, err := svc.SeedDefaultSections(ctx, domain.GlobalScope())
	require.NoError(t, err)
	_, _, err = svc.DefineSection(ctx, domain.PlateScope(p1a1), "Diag", rect(2, 2, 7, 11), 0)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(7, 11))
	for _, c := range domain.DefaultGrid.Coords() {
		if rng.IntN(4) == 0 {
			_, _, err := svc.SetMask(ctx, p1a1, c, true)
			require.NoError(t, err)
		}
		if rng.IntN(3) == 0 {
			_, _, err := svc.SetControl(ctx, p1a1, c, true)
			require.NoError(t, err)
		}
	}

	sections, err := svc.EffectiveSections(ctx, p1a1)
	require.NoError(t, err)
	require.Len(t, sections, 7)
	for _, sec := range sections {
		res, err := svc.Resolve(ctx, p1a1, sec.Name)
		require.NoError(t, err)
		seen := make(map[domain.Coord]int)
		for _, set := range [][]domain.Coord{res.Excluded, res.Control, res.Sample} {
			assert.True(t, slices.IsSortedFunc(set, func(a, b domain.Coord) int {
				return domain.DefaultGrid.Index(a) - domain.DefaultGrid.Index(b)
			}), "section %s not in row-major order", sec.Name)
			for _, c := range set {
				seen[c]++
			}
		}
		all := sec.Rect.Coords()
		assert.Len(t, seen, len(all), "section %s", sec.Name)
		for _, c := range all {
			assert.Equal(t, 1, seen[c], "section %s well %s", sec.Name, c)
		}
		for _, c := range res.Control {
			w, err := svc.GetWell(ctx, p1a1, c)
			require.NoError(t, err)
			assert.False(t, w.Masked, "masked well %s classified as control", c)
		}
	}
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	ctx := context.Background()
	svc := scenario(t)

	first, err := svc.Analyze(ctx, p1a1, "S1")
	require.NoError(t, err)
	second, err := svc.Analyze(ctx, p1a1, "S1")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	res, err := svc.Resolve(ctx, p1a1, "S1")
	require.NoError(t, err)
	grid := scenarioGrid()
	value := func(c domain.Coord) (float64, bool) {
		v := grid[c.Row-1][c.Col-1]
		return v, !math.IsNaN(v)
	}
	a := core.ComputeStatistics(res, value)
	b := core.ComputeStatistics(res, value)
	assert.Equal(t, math.Float64bits(a.Stdev.Value), math.Float64bits(b.Stdev.Value))
	assert.Equal(t, math.Float64bits(a.NormalizedMean.Value), math.Float64bits(b.NormalizedMean.Value))
	assert.Equal(t, math.Float64bits(first.Mean.Value), math.Float64bits(a.Mean.Value))
}

func TestAnalyzeZeroControlMean(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	values := scenarioGrid()
	values[1][2] = 0
	ingest(t, svc, p1a1, values)
	_, _, err := svc.DefineSection(ctx, domain.PlateScope(p1a1), "S1", rect(1, 1, 2, 3), 1)
	require.NoError(t, err)
	_, _, err = svc.SetControl(ctx, p1a1, at(2, 3), true)
	require.NoError(t, err)

	r, err := svc.Analyze(ctx, p1a1, "S1")
	require.NoError(t, err)
	assert.False(t, r.NormalizedMean.Defined)
	assert.Equal(t, domain.ReasonDivideByZero, r.NormalizedMean.Reason)
	require.True(t, r.SubtractedMean.Defined)
	assert.InDelta(t, 3, r.SubtractedMean.Value, 1e-12)
}

func TestAnalyzeWithoutControlsOrReadings(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	ingest(t, svc, p1a1, scenarioGrid())
	_, _, err := svc.DefineSection(ctx, domain.GlobalScope(), "Top", rect(1, 1, 1, 3), 0)
	require.NoError(t, err)
	_, _, err = svc.DefineSection(ctx, domain.GlobalScope(), "Dark", rect(5, 5, 6, 6), 0)
	require.NoError(t, err)

	top, err := svc.Analyze(ctx, p1a1, "Top")
	require.NoError(t, err)
	assert.InDelta(t, 2, top.Mean.Value, 1e-12)
	assert.Equal(t, domain.ReasonNoControls, top.NormalizedMean.Reason)
	assert.False(t, top.HasControls())

	dark, err := svc.Analyze(ctx, p1a1, "Dark")
	require.NoError(t, err)
	assert.Equal(t, 4, dark.Count)
	assert.Equal(t, 4, dark.Unread)
	assert.Equal(t, domain.ReasonNoSamples, dark.Mean.Reason)
}

func TestAnalyzeUnknownTargets(t *testing.T) {
	ctx := context.Background()
	svc := scenario(t)

	_, err := svc.Analyze(ctx, p1a1, "S9")
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Analyze(ctx, p2a1, "S1")
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))

	_, err = svc.AnalyzePlate(ctx, p2a1)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestPlateSectionShadowsTemplate(t *testing.T) {
	ctx := context.Background()
	svc := scenario(t)
	_, _, err := svc.DefineSection(ctx, domain.PlateScope(p1a1), "S1", rect(1, 2, 1, 3), 4)
	require.NoError(t, err)

	r, err := svc.Analyze(ctx, p1a1, "S1")
	require.NoError(t, err)
	assert.Equal(t, 2, r.Count)
	assert.InDelta(t, 2.5, r.Mean.Value, 1e-12)
	assert.InDelta(t, 4, r.GreyLevel, 1e-12)
}

func TestAnalyzeAllKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	ingest(t, svc, p2a1, fullGrid(domain.DefaultGrid))
	ingest(t, svc, p1a1, fullGrid(domain.DefaultGrid))
	ingest(t, svc, p3a1, fullGrid(domain.DefaultGrid))
	_, _, err := svc.DefineSection(ctx, domain.GlobalScope(), "S1", rect(1, 1, 2, 2), 0)
	require.NoError(t, err)
	_, _, err = svc.DefineSection(ctx, domain.PlateScope(p1a1), "Z", rect(3, 3, 3, 3), 0)
	require.NoError(t, err)

	results, err := svc.AnalyzeAll(ctx)
	require.NoError(t, err)
	type target struct {
		key     domain.PlateAssayKey
		section string
	}
	var got []target
	for _, r := range results {
		got = append(got, target{r.PlateAssay, r.Section})
	}
	assert.Equal(t, []target{{p2a1, "S1"}, {p1a1, "Z"}, {p1a1, "S1"}, {p3a1, "S1"}}, got)
}

func TestMutationsInvalidateResults(t *testing.T) {
	ctx := context.Background()
	svc := scenario(t)

	before, err := svc.Analyze(ctx, p1a1, "S1")
	require.NoError(t, err)
	_, _, err = svc.SetMask(ctx, p1a1, at(1, 2), true)
	require.NoError(t, err)
	assert.False(t, svc.IsCurrent(ctx, before))

	after, err := svc.Analyze(ctx, p1a1, "S1")
	require.NoError(t, err)
	assert.Equal(t, 3, after.Count)
	assert.InDelta(t, 4, after.Mean.Value, 1e-12)
	assert.Greater(t, after.Revision, before.Revision)
}
