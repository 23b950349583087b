package core

import "platecore/pkg/domain"

// Classify splits the wells of section on one plate-assay into the Excluded, Control and
// Sample sets. The section rectangle is clipped to the plate grid first, so a section that
// no longer fits after a grid change resolves to its overlap only. Masking takes
// precedence over the control flag. Each set is in ascending row-major order.
func Classify(view TransactionView, key domain.PlateAssayKey, section domain.Section) (domain.Resolution, error) {
	p, ok := view.plate(key)
	if !ok {
		return domain.Resolution{}, domain.NewError(domain.KindNotFound, "resolve", "plate-assay not loaded").WithPlateAssay(key)
	}
	effective := section.Rect.Intersect(p.grid.Bounds())
	res := domain.Resolution{
		PlateAssay: key,
		Section:    section.Clone(),
		Effective:  effective,
		Revision:   view.Revision(key),
	}
	for _, c := range effective.Coords() {
		switch p.annotations[p.grid.Index(c)].State() {
		case domain.StateMasked:
			res.Excluded = append(res.Excluded, c)
		case domain.StateControl:
			res.Control = append(res.Control, c)
		default:
			res.Sample = append(res.Sample, c)
		}
	}
	return res, nil
}

// Resolve looks up the effective section name for key and classifies its wells.
func Resolve(view TransactionView, key domain.PlateAssayKey, name string) (domain.Resolution, error) {
	if _, ok := view.plate(key); !ok {
		return domain.Resolution{}, domain.NewError(domain.KindNotFound, "resolve", "plate-assay not loaded").WithPlateAssay(key)
	}
	section, ok := view.EffectiveSection(key, name)
	if !ok {
		return domain.Resolution{}, domain.NewError(domain.KindNotFound, "resolve", "no plate or template section").
			WithPlateAssay(key).WithSection(name)
	}
	return Classify(view, key, section)
}
