package core

import (
	"math"
	"platecore/pkg/domain"
	"strings"
)

func (tx *Transaction) plate(op string, key domain.PlateAssayKey) (*plateState, error) {
	p, ok := tx.state.plates[key]
	if !ok {
		return nil, domain.NewError(domain.KindNotFound, op, "plate-assay not loaded").WithPlateAssay(key)
	}
	return p, nil
}

func (tx *Transaction) checkCoord(op string, p *plateState, c domain.Coord) error {
	if !p.grid.InBounds(c.Row, c.Col) {
		return domain.NewError(domain.KindNotFound, op, "well %s outside %s grid", c, p.grid).WithPlateAssay(p.key)
	}
	return nil
}

// IngestOptions carries optional provenance of ingested values.
type IngestOptions struct {
	Source string
	Hours  *float64
}

// Ingest creates the plate-assay or stores one more read of it. A read replaces the
// earlier read of the same time point (opts.Hours, nil for an untimed read); reads of
// other time points are kept. Annotations and sections of an existing plate-assay are
// kept. NaN values mark unread wells.
func (tx *Transaction) Ingest(key domain.PlateAssayKey, values [][]float64, opts IngestOptions) (domain.PlateAssay, error) {
	const op = "ingest"
	if err := key.Validate(); err != nil {
		return domain.PlateAssay{}, &domain.Error{Kind: domain.KindInvalidArgument, Op: op, Err: err}
	}
	grid := tx.state.grid
	if len(values) != grid.Rows {
		return domain.PlateAssay{}, domain.NewError(domain.KindShapeMismatch, op,
			"got %d rows, grid has %d", len(values), grid.Rows).WithPlateAssay(key)
	}
	for i, row := range values {
		if len(row) != grid.Cols {
			return domain.PlateAssay{}, domain.NewError(domain.KindShapeMismatch, op,
				"row %d has %d columns, grid has %d", i+1, len(row), grid.Cols).WithPlateAssay(key)
		}
	}

	p, existed := tx.state.plates[key]
	if !existed {
		p = newPlateState(key, grid)
		tx.state.plates[key] = p
		tx.state.order = append(tx.state.order, key)
	}
	read := plateRead{source: opts.Source, values: make([]float64, grid.Size())}
	for r, row := range values {
		for c, v := range row {
			if math.IsInf(v, 0) {
				v = math.NaN()
			}
			read.values[r*grid.Cols+c] = v
		}
	}
	if opts.Hours != nil {
		h := *opts.Hours
		read.hours = &h
	}
	p.putRead(read)
	if opts.Source != "" {
		tx.addRecentFile(opts.Source)
	}

	action := domain.ActionCreate
	if existed {
		action = domain.ActionUpdate
	}
	summary := tx.state.summary(p)
	tx.recordChange(Change{Entity: domain.EntityPlateAssay, Action: action, PlateAssay: key, After: summary})
	return summary, nil
}

// ensurePlate returns the plate-assay, creating an unread shell when absent.
func (tx *Transaction) ensurePlate(key domain.PlateAssayKey) *plateState {
	if p, ok := tx.state.plates[key]; ok {
		return p
	}
	p := newPlateState(key, tx.state.grid)
	tx.state.plates[key] = p
	tx.state.order = append(tx.state.order, key)
	tx.recordChange(Change{Entity: domain.EntityPlateAssay, Action: domain.ActionCreate, PlateAssay: key, After: tx.state.summary(p)})
	return p
}

// RemovePlateAssay drops the wells and plate-scoped sections of key.
func (tx *Transaction) RemovePlateAssay(key domain.PlateAssayKey) error {
	p, err := tx.plate("remove plate-assay", key)
	if err != nil {
		return err
	}
	before := tx.state.summary(p)
	delete(tx.state.plates, key)
	for i, k := range tx.state.order {
		if k == key {
			tx.state.order = append(tx.state.order[:i], tx.state.order[i+1:]...)
			break
		}
	}
	tx.recordChange(Change{Entity: domain.EntityPlateAssay, Action: domain.ActionDelete, PlateAssay: key, Before: before})
	return nil
}

// SetAnnotation applies mutator to the flags of one well.
func (tx *Transaction) SetAnnotation(op string, key domain.PlateAssayKey, c domain.Coord, mutator func(*domain.Annotation)) (domain.Well, error) {
	p, err := tx.plate(op, key)
	if err != nil {
		return domain.Well{}, err
	}
	if err := tx.checkCoord(op, p, c); err != nil {
		return domain.Well{}, err
	}
	idx := p.grid.Index(c)
	before := p.annotations[idx]
	mutator(&p.annotations[idx])
	if before == p.annotations[idx] {
		return p.well(c), nil
	}
	w := p.well(c)
	tx.recordChange(Change{Entity: domain.EntityWell, Action: domain.ActionUpdate, PlateAssay: key, Name: c.Label(), Before: before, After: w.Annotation})
	return w, nil
}

// SetMask sets the mask flag of one well.
func (tx *Transaction) SetMask(key domain.PlateAssayKey, c domain.Coord, masked bool) (domain.Well, error) {
	return tx.SetAnnotation("set mask", key, c, func(a *domain.Annotation) { a.Masked = masked })
}

// SetControl sets the negative control flag of one well.
func (tx *Transaction) SetControl(key domain.PlateAssayKey, c domain.Coord, control bool) (domain.Well, error) {
	return tx.SetAnnotation("set control", key, c, func(a *domain.Annotation) { a.Control = control })
}

// CopyAnnotations overwrites every mask and control flag of dst with those of src, well for well.
// It returns the number of wells whose flags changed.
func (tx *Transaction) CopyAnnotations(src, dst domain.PlateAssayKey) (int, error) {
	const op = "copy masks"
	sp, err := tx.plate(op, src)
	if err != nil {
		return 0, err
	}
	dp, err := tx.plate(op, dst)
	if err != nil {
		return 0, err
	}
	if sp.grid != dp.grid {
		return 0, domain.NewError(domain.KindShapeMismatch, op, "source grid %s, destination grid %s", sp.grid, dp.grid).WithPlateAssay(dst)
	}
	changed := 0
	for i, a := range sp.annotations {
		if dp.annotations[i] != a {
			dp.annotations[i] = a
			changed++
		}
	}
	if changed > 0 {
		tx.recordChange(Change{Entity: domain.EntityPlateAssay, Action: domain.ActionUpdate, PlateAssay: dst, Name: "annotations", After: tx.state.summary(dp)})
	}
	return changed, nil
}

// ReplaceAnnotations resets every flag of key to the listed masked and control wells.
func (tx *Transaction) ReplaceAnnotations(key domain.PlateAssayKey, masked, controls []domain.Coord) error {
	const op = "import annotations"
	p, err := tx.plate(op, key)
	if err != nil {
		return err
	}
	next := make([]domain.Annotation, len(p.annotations))
	for _, c := range masked {
		if err := tx.checkCoord(op, p, c); err != nil {
			return err
		}
		next[p.grid.Index(c)].Masked = true
	}
	for _, c := range controls {
		if err := tx.checkCoord(op, p, c); err != nil {
			return err
		}
		next[p.grid.Index(c)].Control = true
	}
	p.annotations = next
	tx.recordChange(Change{Entity: domain.EntityPlateAssay, Action: domain.ActionUpdate, PlateAssay: key, Name: "annotations", After: tx.state.summary(p)})
	return nil
}

func (tx *Transaction) sections(op string, scope domain.Scope) (*sectionList, error) {
	list, ok := tx.state.scopeSections(scope)
	if !ok {
		return nil, domain.NewError(domain.KindNotFound, op, "scope %s does not exist", scope).WithPlateAssay(scope.PlateAssay)
	}
	return list, nil
}

func (tx *Transaction) validateRect(op string, scope domain.Scope, name string, rect domain.Rect) error {
	if !tx.state.grid.ContainsRect(rect) {
		err := domain.NewError(domain.KindInvalidRect, op, "rectangle %+v outside %s grid or empty", rect, tx.state.grid).WithSection(name)
		if !scope.Global {
			err = err.WithPlateAssay(scope.PlateAssay)
		}
		return err
	}
	return nil
}

func validateSectionName(op string, name string) error {
	if strings.TrimSpace(name) == "" {
		return domain.NewError(domain.KindInvalidArgument, op, "section name required")
	}
	return nil
}

func scopeChange(action domain.Action, scope domain.Scope, name string, before, after any) Change {
	sc := scope
	return Change{Entity: domain.EntitySection, Action: action, PlateAssay: scope.PlateAssay, Scope: &sc, Name: name, Before: before, After: after}
}

// DefineSection adds a new section to its scope.
func (tx *Transaction) DefineSection(s domain.Section) (domain.Section, error) {
	const op = "define section"
	if err := validateSectionName(op, s.Name); err != nil {
		return domain.Section{}, err
	}
	list, err := tx.sections(op, s.Scope)
	if err != nil {
		return domain.Section{}, err
	}
	if _, exists := list.byName[s.Name]; exists {
		return domain.Section{}, tx.duplicate(op, s.Scope, s.Name)
	}
	if err := tx.validateRect(op, s.Scope, s.Name, s.Rect); err != nil {
		return domain.Section{}, err
	}
	list.add(s)
	tx.recordChange(scopeChange(domain.ActionCreate, s.Scope, s.Name, nil, s.Clone()))
	return s.Clone(), nil
}

func (tx *Transaction) duplicate(op string, scope domain.Scope, name string) error {
	err := domain.NewError(domain.KindDuplicateName, op, "section already exists in scope %s", scope).WithSection(name)
	if !scope.Global {
		err = err.WithPlateAssay(scope.PlateAssay)
	}
	return err
}

func (tx *Transaction) missing(op string, scope domain.Scope, name string) error {
	err := domain.NewError(domain.KindNotFound, op, "no section in scope %s", scope).WithSection(name)
	if !scope.Global {
		err = err.WithPlateAssay(scope.PlateAssay)
	}
	return err
}

// UpdateSection mutates the attributes of an existing section. Name changes are validated
// against the scope; scope changes are ignored.
func (tx *Transaction) UpdateSection(op string, scope domain.Scope, name string, mutator func(*domain.Section) error) (domain.Section, error) {
	list, err := tx.sections(op, scope)
	if err != nil {
		return domain.Section{}, err
	}
	current, ok := list.get(name)
	if !ok {
		return domain.Section{}, tx.missing(op, scope, name)
	}
	before := current.Clone()
	if err := mutator(&current); err != nil {
		return domain.Section{}, err
	}
	current.Scope = scope
	if err := validateSectionName(op, current.Name); err != nil {
		return domain.Section{}, err
	}
	if current.Name != name {
		if _, taken := list.byName[current.Name]; taken {
			return domain.Section{}, tx.duplicate(op, scope, current.Name)
		}
	}
	if err := tx.validateRect(op, scope, current.Name, current.Rect); err != nil {
		return domain.Section{}, err
	}
	if current.Name != name {
		list.rename(name, current.Name)
	}
	list.add(current)
	tx.recordChange(scopeChange(domain.ActionUpdate, scope, current.Name, before, current.Clone()))
	return current.Clone(), nil
}

// DeleteSection removes a section; absent sections are reported, not ignored.
func (tx *Transaction) DeleteSection(scope domain.Scope, name string) error {
	const op = "delete section"
	list, err := tx.sections(op, scope)
	if err != nil {
		return err
	}
	current, ok := list.get(name)
	if !ok {
		return tx.missing(op, scope, name)
	}
	list.remove(name)
	tx.recordChange(scopeChange(domain.ActionDelete, scope, name, current, nil))
	return nil
}

// CopySections value-copies every section of src into dst. On a name collision the
// destination section is replaced when overwrite is set, otherwise it is left as is
// and its name is reported in skipped.
func (tx *Transaction) CopySections(src, dst domain.Scope, overwrite bool) (copied, skipped []string, err error) {
	const op = "copy sections"
	from, err := tx.sections(op, src)
	if err != nil {
		return nil, nil, err
	}
	to, err := tx.sections(op, dst)
	if err != nil {
		return nil, nil, err
	}
	if src == dst {
		return nil, nil, domain.NewError(domain.KindInvalidArgument, op, "source and destination scope are both %s", src)
	}
	for _, s := range from.list() {
		if err := tx.validateRect(op, dst, s.Name, s.Rect); err != nil {
			return nil, nil, err
		}
	}
	for _, s := range from.list() {
		before, exists := to.get(s.Name)
		if exists && !overwrite {
			skipped = append(skipped, s.Name)
			continue
		}
		cp := s.Clone()
		cp.Scope = dst
		cp.Origin = &domain.SectionRef{Scope: src, Name: s.Name}
		to.add(cp)
		action := domain.ActionCreate
		var prev any
		if exists {
			action = domain.ActionUpdate
			prev = before
		}
		tx.recordChange(scopeChange(action, dst, cp.Name, prev, cp.Clone()))
		copied = append(copied, s.Name)
	}
	return copied, skipped, nil
}

// ReplaceSections swaps the full section list of scope, validating every entry first.
func (tx *Transaction) ReplaceSections(scope domain.Scope, sections []domain.Section) error {
	const op = "import sections"
	list, err := tx.sections(op, scope)
	if err != nil {
		return err
	}
	next := newSectionList()
	for _, s := range sections {
		if err := validateSectionName(op, s.Name); err != nil {
			return err
		}
		if _, dup := next.byName[s.Name]; dup {
			return tx.duplicate(op, scope, s.Name)
		}
		if err := tx.validateRect(op, scope, s.Name, s.Rect); err != nil {
			return err
		}
		s.Scope = scope
		next.add(s)
	}
	*list = *next
	tx.recordChange(scopeChange(domain.ActionUpdate, scope, "", nil, len(sections)))
	return nil
}

func (tx *Transaction) addRecentFile(path string) {
	recent := []string{path}
	for _, p := range tx.state.recent {
		if p != path {
			recent = append(recent, p)
		}
	}
	if limit := tx.store.maxRecent; limit > 0 && len(recent) > limit {
		recent = recent[:limit]
	}
	tx.state.recent = recent
}

// SetRecentFiles replaces the recent file list, applying the store limit.
func (tx *Transaction) SetRecentFiles(paths []string) {
	tx.state.recent = nil
	for i := len(paths) - 1; i >= 0; i-- {
		tx.addRecentFile(paths[i])
	}
}
