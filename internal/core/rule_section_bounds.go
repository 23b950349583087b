package core

import (
	"context"
	"fmt"
	"platecore/pkg/domain"
)

// NewSectionBoundsRule returns the in-transaction rule that blocks any commit leaving a
// section outside the grid, whichever operation produced it.
func NewSectionBoundsRule() domain.Rule {
	return sectionBoundsRule{}
}

type sectionBoundsRule struct{}

func (sectionBoundsRule) Name() string { return "section_bounds" }

func (r sectionBoundsRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	grid := view.Grid()
	seen := make(map[string]bool)
	for _, change := range changes {
		if change.Entity != domain.EntitySection || change.Scope == nil || change.Action == domain.ActionDelete {
			continue
		}
		scope := *change.Scope
		if seen[scope.String()] {
			continue
		}
		seen[scope.String()] = true
		for _, s := range view.ListSections(scope) {
			if grid.ContainsRect(s.Rect) {
				continue
			}
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("section %s in %s spans %s outside the %s grid", s.Name, scope, s.Rect, grid),
				Entity:   domain.EntitySection,
				EntityID: scope.String() + "/" + s.Name,
			})
		}
	}
	return res, nil
}
