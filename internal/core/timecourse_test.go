package core_test

import (
	"context"
	"platecore/internal/core"
	"platecore/pkg/domain"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scaledScenario multiplies the scenario readings by k.
func scaledScenario(k float64) [][]float64 {
	values := scenarioGrid()
	for r := range values {
		for c := range values[r] {
			values[r][c] *= k
		}
	}
	return values
}

func hoursPtr(h float64) *float64 { return &h }

func timed(key domain.PlateAssayKey, hours float64, values [][]float64) core.IngestItem {
	return core.IngestItem{Key: key, Values: values, IngestOptions: core.IngestOptions{Source: "course.csv", Hours: hoursPtr(hours)}}
}

// courseService defines S1 over A1:B3 with B3 as the control well and loads the 24h read
// before the 0h read.
func courseService(t *testing.T, baseline [][]float64) *core.Service {
	t.Helper()
	ctx := context.Background()
	svc := newService(t)
	plates, _, err := svc.IngestBatch(ctx, []core.IngestItem{
		timed(p1a1, 24, scaledScenario(2)),
		timed(p1a1, 0, baseline),
	})
	require.NoError(t, err)
	require.Len(t, plates, 1)
	assert.Equal(t, 2, plates[0].TimePoints)
	_, _, err = svc.DefineSection(ctx, domain.GlobalScope(), "S1", rect(1, 1, 2, 3), 0)
	require.NoError(t, err)
	_, _, err = svc.SetControl(ctx, p1a1, at(2, 3), true)
	require.NoError(t, err)
	return svc
}

func TestIngestKeepsEveryTimePoint(t *testing.T) {
	ctx := context.Background()
	svc := courseService(t, scenarioGrid())

	pa, err := svc.PlateAssay(ctx, p1a1)
	require.NoError(t, err)
	assert.Equal(t, 2, pa.TimePoints)
	require.NotNil(t, pa.Hours)
	assert.InDelta(t, 24, *pa.Hours, 1e-12)

	// wells and plain analysis show the latest time point
	w, err := svc.GetWell(ctx, p1a1, at(1, 1))
	require.NoError(t, err)
	require.NotNil(t, w.Value)
	assert.InDelta(t, 2, *w.Value, 1e-12)
	r, err := svc.Analyze(ctx, p1a1, "S1")
	require.NoError(t, err)
	assert.InDelta(t, 6, r.Mean.Value, 1e-12)

	// a read of a known time point replaces only that time point
	_, _, err = svc.Ingest(ctx, p1a1, scaledScenario(3), core.IngestOptions{Hours: hoursPtr(0)})
	require.NoError(t, err)
	tc, err := svc.TimeCourse(ctx, p1a1, "S1")
	require.NoError(t, err)
	require.Len(t, tc.Points, 2)
	assert.InDelta(t, 9, tc.Points[0].Result.Mean.Value, 1e-12)
	assert.InDelta(t, 6, tc.Points[1].Result.Mean.Value, 1e-12)
}

func TestTimeCoursePercentChange(t *testing.T) {
	ctx := context.Background()
	svc := courseService(t, scenarioGrid())

	tc, err := svc.TimeCourse(ctx, p1a1, "S1")
	require.NoError(t, err)
	assert.Equal(t, p1a1, tc.PlateAssay)
	assert.Equal(t, "S1", tc.Section)
	assert.Equal(t, svc.Revision(ctx, p1a1), tc.Revision)
	require.Len(t, tc.Points, 2)

	base, later := tc.Points[0], tc.Points[1]
	require.NotNil(t, base.Hours)
	require.NotNil(t, later.Hours)
	assert.InDelta(t, 0, *base.Hours, 1e-12)
	assert.InDelta(t, 24, *later.Hours, 1e-12)
	assert.Equal(t, "course.csv", base.Source)

	// samples A1 A2 A3 B1 B2 read 1..5, the control B3 reads 6; the 24h read doubles both
	assert.InDelta(t, 3, base.Result.Mean.Value, 1e-12)
	assert.InDelta(t, 6, later.Result.Mean.Value, 1e-12)
	assert.InDelta(t, 0, base.PercentChange.Value, 1e-12)
	assert.InDelta(t, 100, later.PercentChange.Value, 1e-9)
	assert.InDelta(t, 0.7071068/3*100, base.PercentError.Value, 1e-5)
	assert.InDelta(t, 2*0.7071068/3*100, later.PercentError.Value, 1e-5)

	assert.InDelta(t, -3, base.Result.SubtractedMean.Value, 1e-12)
	assert.InDelta(t, -6, later.Result.SubtractedMean.Value, 1e-12)
	assert.InDelta(t, 100, later.SubtractedPercentChange.Value, 1e-9)
	assert.True(t, later.SubtractedPercentError.Defined)

	out, err := core.NewDispatcher(svc).Dispatch(ctx, core.TimeCourseCommand{Key: p1a1, Section: "S1"})
	require.NoError(t, err)
	require.NotNil(t, out.TimeCourse)
	assert.Equal(t, tc, *out.TimeCourse)
}

func TestTimeCourseZeroBaselineIsUndefined(t *testing.T) {
	ctx := context.Background()
	svc := courseService(t, scaledScenario(0))

	tc, err := svc.TimeCourse(ctx, p1a1, "S1")
	require.NoError(t, err)
	require.Len(t, tc.Points, 2)
	for _, p := range tc.Points {
		assert.False(t, p.PercentChange.Defined)
		assert.Equal(t, domain.ReasonDivideByZero, p.PercentChange.Reason)
		assert.Equal(t, domain.ReasonDivideByZero, p.PercentError.Reason)
		assert.Equal(t, domain.ReasonDivideByZero, p.SubtractedPercentChange.Reason)
	}
	assert.InDelta(t, 6, tc.Points[1].Result.Mean.Value, 1e-12)
}

func TestTimeCourseOrdersUntimedReadFirst(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	_, _, err := svc.Ingest(ctx, p1a1, scaledScenario(2), core.IngestOptions{Hours: hoursPtr(1.5)})
	require.NoError(t, err)
	ingest(t, svc, p1a1, scenarioGrid())
	_, _, err = svc.DefineSection(ctx, domain.GlobalScope(), "S1", rect(1, 1, 2, 3), 0)
	require.NoError(t, err)

	tc, err := svc.TimeCourse(ctx, p1a1, "S1")
	require.NoError(t, err)
	require.Len(t, tc.Points, 2)
	assert.Nil(t, tc.Points[0].Hours)
	assert.InDelta(t, 100, tc.Points[1].PercentChange.Value, 1e-9)
	assert.Equal(t, domain.ReasonNoControls, tc.Points[1].SubtractedPercentChange.Reason)

	_, err = svc.TimeCourse(ctx, p1a1, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.TimeCourse(ctx, p2a1, "S1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIngestBatchRejectsRepeatedTimePoint(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	_, _, err := svc.IngestBatch(ctx, []core.IngestItem{
		timed(p1a1, 0, scenarioGrid()),
		timed(p2a1, 0, scenarioGrid()),
		timed(p1a1, 0, scaledScenario(2)),
	})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Empty(t, svc.ListPlateAssays(ctx))

	_, _, err = svc.IngestBatch(ctx, []core.IngestItem{
		{Key: p1a1, Values: scenarioGrid()},
		{Key: p1a1, Values: scenarioGrid()},
	})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Empty(t, svc.ListPlateAssays(ctx))
}
