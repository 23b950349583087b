package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"platecore/pkg/domain"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type workspace struct {
	t      *testing.T
	dir    string
	config string
}

func newWorkspace(t *testing.T, extra string) *workspace {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	cfg := filepath.Join(dir, "platecore.yaml")
	body := fmt.Sprintf("storage:\n  driver: sqlite\n  sqlite:\n    path: %s\nlog:\n  level: error\n%s",
		filepath.Join(dir, "ws.db"), extra)
	require.NoError(t, os.WriteFile(cfg, []byte(body), 0o600))
	return &workspace{t: t, dir: dir, config: cfg}
}

func (w *workspace) exec(args ...string) (string, error) {
	w.t.Helper()
	var out, errOut bytes.Buffer
	err := run(context.Background(), append([]string{"--config", w.config}, args...), &out, &errOut)
	return out.String(), err
}

func (w *workspace) mustExec(args ...string) string {
	w.t.Helper()
	out, err := w.exec(args...)
	require.NoError(w.t, err, strings.Join(args, " "))
	return out
}

// writeExport writes a full 8x12 plate block whose well (r, c) reads r*10+c.
func (w *workspace) writeExport(name string, blocks ...string) string {
	w.t.Helper()
	var b strings.Builder
	b.WriteString("Software,1.0\n")
	for _, block := range blocks {
		fmt.Fprintf(&b, "Plate:,%s\n,Temperature", block)
		for c := 1; c <= 12; c++ {
			fmt.Fprintf(&b, ",%d", c)
		}
		b.WriteString("\n")
		for r := 1; r <= 8; r++ {
			b.WriteString(",25.0")
			for c := 1; c <= 12; c++ {
				fmt.Fprintf(&b, ",%d", r*10+c)
			}
			b.WriteString("\n")
		}
		b.WriteString("~End\n")
	}
	path := filepath.Join(w.dir, name)
	require.NoError(w.t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

func TestWorkspaceSurvivesInvocations(t *testing.T) {
	ws := newWorkspace(t, "analysis:\n  auto_exclude_orphaned: false\n")
	export := ws.writeExport("reads.csv", "P1_AB_24h", "P2_AB_24h")

	out := ws.mustExec("ingest", export)
	assert.Contains(t, out, "P1")
	assert.Contains(t, out, "P2")

	ws.mustExec("sections", "define", "S1", "A1:B2", "--grey", "2.5")
	ws.mustExec("control", "set", "P1_AB", "A1")

	// readings come back from the recent file list, annotations from the snapshot
	out = ws.mustExec("-o", "json", "analyze", "P1_AB", "S1")
	var results []domain.AnalysisResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	r := results[0]
	assert.Equal(t, 3, r.Count)
	assert.Equal(t, 1, r.ControlCount)
	assert.InDelta(t, (12.0+21+22)/3, r.Mean.Value, 1e-9)
	assert.InDelta(t, 11, r.ControlMean.Value, 1e-9)
	assert.InDelta(t, 2.5, r.GreyLevel, 1e-12)

	ws.mustExec("copy-masks", "P1_AB", "P2_AB")
	out = ws.mustExec("-o", "json", "analyze", "P2_AB", "S1")
	results = nil
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].ControlCount)

	out = ws.mustExec("plates", "show", "P1_AB")
	assert.Contains(t, out, "c")

	out = ws.mustExec("plates", "recent")
	assert.Contains(t, out, export)
}

func TestTimeCourseAcrossReads(t *testing.T) {
	ws := newWorkspace(t, "")
	export := ws.writeExport("course.csv", "P1_AB_0h", "P1_AB_24h")
	ws.mustExec("sections", "define", "S1", "A1:B2")
	ws.mustExec("ingest", export)

	out := ws.mustExec("-o", "json", "plates")
	var plates []domain.PlateAssay
	require.NoError(t, json.Unmarshal([]byte(out), &plates))
	require.Len(t, plates, 1)
	assert.Equal(t, 2, plates[0].TimePoints)

	out = ws.mustExec("-o", "json", "timecourse", "P1_AB", "S1")
	var tc domain.TimeCourse
	require.NoError(t, json.Unmarshal([]byte(out), &tc))
	require.Len(t, tc.Points, 2)
	require.NotNil(t, tc.Points[1].Hours)
	assert.InDelta(t, 24, *tc.Points[1].Hours, 1e-12)
	assert.InDelta(t, (11.0+12+21+22)/4, tc.Points[1].Result.Mean.Value, 1e-9)
	assert.InDelta(t, 0, tc.Points[1].PercentChange.Value, 1e-9)
}

func TestAutoExcludeOrphansAfterIngest(t *testing.T) {
	ws := newWorkspace(t, "")
	ws.mustExec("sections", "seed")
	ws.mustExec("sections", "delete", "S6")
	export := ws.writeExport("reads.csv", "P1_AB_1h")

	out := ws.mustExec("ingest", export)
	assert.Contains(t, out, "masked 16 orphan wells of P1_AB")

	out = ws.mustExec("-o", "json", "plates")
	var plates []domain.PlateAssay
	require.NoError(t, json.Unmarshal([]byte(out), &plates))
	require.Len(t, plates, 1)
	assert.Equal(t, 16, plates[0].Masked)
}

func TestExportImportRoundTrip(t *testing.T) {
	ws := newWorkspace(t, "")
	ws.mustExec("sections", "define", "Edge", "A1:H1")
	snapshot := filepath.Join(ws.dir, "snap.yaml")
	ws.mustExec("export", snapshot)

	ws.mustExec("sections", "delete", "Edge")
	out := ws.mustExec("sections", "list")
	assert.NotContains(t, out, "Edge")

	ws.mustExec("import", snapshot)
	out = ws.mustExec("sections", "list")
	assert.Contains(t, out, "Edge")
	assert.Contains(t, out, "A1:H1")
}

func TestSectionEditing(t *testing.T) {
	ws := newWorkspace(t, "")
	ws.mustExec("sections", "define", "S1", "A1:D4")
	ws.mustExec("sections", "rename", "S1", "Low")
	ws.mustExec("sections", "rect", "Low", "A1:B2")
	ws.mustExec("sections", "grey", "Low", "0.5")

	out := ws.mustExec("-o", "yaml", "sections", "list")
	assert.Contains(t, out, "name: Low")
	assert.Contains(t, out, "grey_level: 0.5")

	_, err := ws.exec("sections", "define", "Low", "A1:A2")
	require.Error(t, err)
	assert.Equal(t, domain.KindDuplicateName, domain.KindOf(err))

	_, err = ws.exec("sections", "define", "Wide", "A1:A15")
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidRect, domain.KindOf(err))
}

func TestErrorsMapToExitCodes(t *testing.T) {
	ws := newWorkspace(t, "")
	_, err := ws.exec("analyze", "P9_AB", "S1")
	require.Error(t, err)
	assert.Equal(t, 3, exitCode(err))

	assert.Equal(t, 1, exitCode(errors.New("plain")))
	assert.Equal(t, 2, exitCode(domain.NewError(domain.KindShapeMismatch, "ingest", "bad")))

	_, err = ws.exec("-o", "xml", "plates")
	require.Error(t, err)
}

func TestMetricsFile(t *testing.T) {
	ws := newWorkspace(t, "")
	metrics := filepath.Join(ws.dir, "metrics.prom")
	ws.mustExec("--metrics", metrics, "sections", "seed")

	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), "platecore_operations_total")
	assert.Contains(t, string(data), `operation="command:seed_sections"`)
}

func TestParseRect(t *testing.T) {
	r, err := parseRect("D4:a1")
	require.NoError(t, err)
	assert.Equal(t, domain.Rect{RowStart: 1, RowEnd: 4, ColStart: 1, ColEnd: 4}, r)

	r, err = parseRect("B3")
	require.NoError(t, err)
	assert.Equal(t, 1, r.Size())

	_, err = parseRect("A1:Z")
	require.Error(t, err)
}
