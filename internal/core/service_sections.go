package core

import (
	"context"
	"platecore/pkg/domain"
)

// DefineSection adds a named rectangle to scope. Names are unique per scope and the
// rectangle must lie within the grid.
func (s *Service) DefineSection(ctx context.Context, scope domain.Scope, name string, rect domain.Rect, grey float64) (domain.Section, Result, error) {
	var out domain.Section
	res, err := s.mutate(ctx, "define section", scopeKeys(scope), func(tx *Transaction) error {
		var err error
		out, err = tx.DefineSection(domain.Section{Scope: scope, Name: name, Rect: rect, GreyLevel: grey})
		return err
	}, "scope", scope.String(), "section", name, "rect", rect.String())
	return out, res, err
}

// RenameSection changes the name of a section within its scope.
func (s *Service) RenameSection(ctx context.Context, scope domain.Scope, name, newName string) (domain.Section, Result, error) {
	var out domain.Section
	res, err := s.mutate(ctx, "rename section", scopeKeys(scope), func(tx *Transaction) error {
		var err error
		out, err = tx.UpdateSection("rename section", scope, name, func(sec *domain.Section) error {
			sec.Name = newName
			return nil
		})
		return err
	}, "scope", scope.String(), "section", name, "new_name", newName)
	return out, res, err
}

// RedefineRect replaces the rectangle of a section.
func (s *Service) RedefineRect(ctx context.Context, scope domain.Scope, name string, rect domain.Rect) (domain.Section, Result, error) {
	var out domain.Section
	res, err := s.mutate(ctx, "redefine section", scopeKeys(scope), func(tx *Transaction) error {
		var err error
		out, err = tx.UpdateSection("redefine section", scope, name, func(sec *domain.Section) error {
			sec.Rect = rect
			return nil
		})
		return err
	}, "scope", scope.String(), "section", name, "rect", rect.String())
	return out, res, err
}

// SetGreyLevel sets the dose or concentration label of a section.
func (s *Service) SetGreyLevel(ctx context.Context, scope domain.Scope, name string, grey float64) (domain.Section, Result, error) {
	var out domain.Section
	res, err := s.mutate(ctx, "set grey level", scopeKeys(scope), func(tx *Transaction) error {
		var err error
		out, err = tx.UpdateSection("set grey level", scope, name, func(sec *domain.Section) error {
			sec.GreyLevel = grey
			return nil
		})
		return err
	}, "scope", scope.String(), "section", name, "grey_level", grey)
	return out, res, err
}

// DeleteSection removes a section from scope.
func (s *Service) DeleteSection(ctx context.Context, scope domain.Scope, name string) (Result, error) {
	return s.mutate(ctx, "delete section", scopeKeys(scope), func(tx *Transaction) error {
		return tx.DeleteSection(scope, name)
	}, "scope", scope.String(), "section", name)
}

// SeedDefaultSections defines the six 4x4 blocks S1..S6 in scope. Existing sections with
// the same names are left untouched.
func (s *Service) SeedDefaultSections(ctx context.Context, scope domain.Scope) ([]domain.Section, Result, error) {
	var created []domain.Section
	res, err := s.mutate(ctx, "seed sections", scopeKeys(scope), func(tx *Transaction) error {
		list, err := tx.sections("seed sections", scope)
		if err != nil {
			return err
		}
		for _, sec := range domain.DefaultSections(scope) {
			if _, exists := list.byName[sec.Name]; exists {
				continue
			}
			out, err := tx.DefineSection(sec)
			if err != nil {
				return err
			}
			created = append(created, out)
		}
		return nil
	}, "scope", scope.String())
	return created, res, err
}

// CopyReport lists what CopySections did per section name.
type CopyReport struct {
	Copied  []string `json:"copied" yaml:"copied"`
	Skipped []string `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// CopySections value-copies all sections of src into dst. Later edits to either side
// never affect the other. Collisions are skipped unless overwrite is set. Either every
// section is copied or, when one does not fit the grid, none is.
func (s *Service) CopySections(ctx context.Context, src, dst domain.Scope, overwrite bool) (CopyReport, Result, error) {
	var report CopyReport
	res, err := s.mutate(ctx, "copy sections", scopeKeys(dst), func(tx *Transaction) error {
		var err error
		report.Copied, report.Skipped, err = tx.CopySections(src, dst, overwrite)
		return err
	}, "source", src.String(), "destination", dst.String(), "overwrite", overwrite)
	return report, res, err
}

// CopyMasks overwrites the mask and control flags of dst with those of src. Values and
// sections are untouched. Repeating the copy is a no-op.
func (s *Service) CopyMasks(ctx context.Context, src, dst domain.PlateAssayKey) (int, Result, error) {
	var changed int
	res, err := s.mutate(ctx, "copy masks", []domain.PlateAssayKey{dst}, func(tx *Transaction) error {
		var err error
		changed, err = tx.CopyAnnotations(src, dst)
		return err
	}, "source", src.String(), "destination", dst.String())
	return changed, res, err
}

// PropagateMasks copies the flags of src onto every destination in a single transaction,
// so a failure on any destination leaves all of them unchanged.
func (s *Service) PropagateMasks(ctx context.Context, src domain.PlateAssayKey, dsts ...domain.PlateAssayKey) (map[domain.PlateAssayKey]int, Result, error) {
	changed := make(map[domain.PlateAssayKey]int, len(dsts))
	keys := make([]domain.PlateAssayKey, 0, len(dsts))
	for _, d := range dsts {
		if d != src {
			keys = append(keys, d)
		}
	}
	res, err := s.mutate(ctx, "propagate masks", keys, func(tx *Transaction) error {
		for _, d := range keys {
			n, err := tx.CopyAnnotations(src, d)
			if err != nil {
				return err
			}
			changed[d] = n
		}
		return nil
	}, "source", src.String(), "destinations", len(keys))
	if err != nil {
		return nil, res, err
	}
	return changed, res, nil
}
