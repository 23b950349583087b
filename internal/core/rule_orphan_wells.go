package core

import (
	"context"
	"fmt"
	"platecore/pkg/domain"
)

// NewOrphanWellsRule returns a non-blocking rule that warns about read, active wells
// of a touched plate-assay that no effective section covers.
func NewOrphanWellsRule() domain.Rule {
	return orphanWellsRule{}
}

type orphanWellsRule struct{}

func (orphanWellsRule) Name() string { return "orphan_wells" }

func (r orphanWellsRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	touched := make(map[domain.PlateAssayKey]bool)
	global := false
	for _, change := range changes {
		if change.Scope != nil && change.Scope.Global {
			global = true
			continue
		}
		touched[change.PlateAssay] = true
	}

	res := domain.Result{}
	for _, pa := range view.ListPlateAssays() {
		if !global && !touched[pa.Key] {
			continue
		}
		orphans := OrphanWells(view, pa.Key)
		if len(orphans) == 0 {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityWarn,
			Message:  fmt.Sprintf("%d active wells of %s are outside every section (first %s)", len(orphans), pa.Key, orphans[0]),
			Entity:   domain.EntityPlateAssay,
			EntityID: pa.Key.String(),
		})
	}
	return res, nil
}

// OrphanWells lists, in row-major order, the read and active wells of key covered by no effective section.
// A plate-assay without any section has no orphans.
func OrphanWells(view domain.RuleView, key domain.PlateAssayKey) []domain.Coord {
	sections := view.EffectiveSections(key)
	if len(sections) == 0 {
		return nil
	}
	var out []domain.Coord
	for _, c := range view.Grid().Coords() {
		w, ok := view.FindWell(key, c)
		if !ok || w.Value == nil || w.State() != domain.StateActive {
			continue
		}
		covered := false
		for _, s := range sections {
			if s.Rect.Contains(c.Row, c.Col) {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, c)
		}
	}
	return out
}
