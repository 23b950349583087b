package core

import (
	"context"
	"math"
	"platecore/pkg/domain"
	"slices"
	"sync"
	"time"
)

// sectionList keeps sections of one scope in insertion order.
type sectionList struct {
	order  []string
	byName map[string]domain.Section
}

func newSectionList() *sectionList {
	return &sectionList{byName: make(map[string]domain.Section)}
}

func (l *sectionList) clone() *sectionList {
	cp := &sectionList{
		order:  append([]string(nil), l.order...),
		byName: make(map[string]domain.Section, len(l.byName)),
	}
	for name, s := range l.byName {
		cp.byName[name] = s.Clone()
	}
	return cp
}

func (l *sectionList) get(name string) (domain.Section, bool) {
	s, ok := l.byName[name]
	if !ok {
		return domain.Section{}, false
	}
	return s.Clone(), true
}

func (l *sectionList) list() []domain.Section {
	out := make([]domain.Section, 0, len(l.order))
	for _, name := range l.order {
		out = append(out, l.byName[name].Clone())
	}
	return out
}

func (l *sectionList) add(s domain.Section) {
	if _, exists := l.byName[s.Name]; !exists {
		l.order = append(l.order, s.Name)
	}
	l.byName[s.Name] = s.Clone()
}

func (l *sectionList) rename(from, to string) {
	s := l.byName[from]
	delete(l.byName, from)
	s.Name = to
	l.byName[to] = s
	for i, name := range l.order {
		if name == from {
			l.order[i] = to
		}
	}
}

func (l *sectionList) remove(name string) {
	delete(l.byName, name)
	l.order = slices.DeleteFunc(l.order, func(n string) bool { return n == name })
}

// plateRead is one ingested grid of readings. Values use NaN for wells that have not
// been read; a nil hours marks an untimed read.
type plateRead struct {
	hours  *float64
	source string
	values []float64
}

func (r plateRead) clone() plateRead {
	cp := plateRead{source: r.source, values: append([]float64(nil), r.values...)}
	if r.hours != nil {
		h := *r.hours
		cp.hours = &h
	}
	return cp
}

// sameTime reports whether two reads belong to the same time point.
func sameTime(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// before orders time points: the untimed read first, then ascending hours.
func before(a, b *float64) bool {
	switch {
	case a == nil:
		return b != nil
	case b == nil:
		return false
	default:
		return *a < *b
	}
}

// plateState owns the reads, well annotations and plate-scoped sections of one
// plate-assay. Annotations and sections are shared by every time point; reads are kept
// in time order and the last one is the current read.
type plateState struct {
	key         domain.PlateAssayKey
	grid        domain.Grid
	reads       []plateRead
	annotations []domain.Annotation
	sections    *sectionList
}

func newPlateState(key domain.PlateAssayKey, grid domain.Grid) *plateState {
	return &plateState{
		key:         key,
		grid:        grid,
		annotations: make([]domain.Annotation, grid.Size()),
		sections:    newSectionList(),
	}
}

func (p *plateState) clone() *plateState {
	cp := *p
	cp.reads = make([]plateRead, len(p.reads))
	for i, r := range p.reads {
		cp.reads[i] = r.clone()
	}
	cp.annotations = append([]domain.Annotation(nil), p.annotations...)
	cp.sections = p.sections.clone()
	return &cp
}

// putRead replaces the read of the same time point or inserts r in time order.
func (p *plateState) putRead(r plateRead) {
	for i, existing := range p.reads {
		if sameTime(existing.hours, r.hours) {
			p.reads[i] = r
			return
		}
	}
	i := len(p.reads)
	for i > 0 && before(r.hours, p.reads[i-1].hours) {
		i--
	}
	p.reads = slices.Insert(p.reads, i, r)
}

func (p *plateState) current() (plateRead, bool) {
	if len(p.reads) == 0 {
		return plateRead{}, false
	}
	return p.reads[len(p.reads)-1], true
}

func (p *plateState) well(c domain.Coord) domain.Well {
	w := domain.Well{PlateAssayKey: p.key, Coord: c, Annotation: p.annotations[p.grid.Index(c)]}
	if v, ok := p.value(c); ok {
		w.Value = &v
	}
	return w
}

// value reads well c from the current read.
func (p *plateState) value(c domain.Coord) (float64, bool) {
	r, ok := p.current()
	if !ok {
		return 0, false
	}
	return r.valueFunc(p.grid)(c)
}

func (r plateRead) valueFunc(grid domain.Grid) ValueFunc {
	return func(c domain.Coord) (float64, bool) {
		v := r.values[grid.Index(c)]
		return v, !math.IsNaN(v)
	}
}

type memoryState struct {
	grid      domain.Grid
	plates    map[domain.PlateAssayKey]*plateState
	order     []domain.PlateAssayKey
	templates *sectionList
	recent    []string
	// revisions outlive removed plate-assays so a re-ingested key keeps counting upward.
	revisions map[domain.PlateAssayKey]uint64
}

func newMemoryState(grid domain.Grid) memoryState {
	return memoryState{
		grid:      grid,
		plates:    make(map[domain.PlateAssayKey]*plateState),
		templates: newSectionList(),
		revisions: make(map[domain.PlateAssayKey]uint64),
	}
}

func (s memoryState) clone() memoryState {
	cloned := memoryState{
		grid:      s.grid,
		plates:    make(map[domain.PlateAssayKey]*plateState, len(s.plates)),
		order:     append([]domain.PlateAssayKey(nil), s.order...),
		templates: s.templates.clone(),
		recent:    append([]string(nil), s.recent...),
		revisions: make(map[domain.PlateAssayKey]uint64, len(s.revisions)),
	}
	for k, p := range s.plates {
		cloned.plates[k] = p.clone()
	}
	for k, v := range s.revisions {
		cloned.revisions[k] = v
	}
	return cloned
}

func (s memoryState) scopeSections(scope domain.Scope) (*sectionList, bool) {
	if scope.Global {
		return s.templates, true
	}
	p, ok := s.plates[scope.PlateAssay]
	if !ok {
		return nil, false
	}
	return p.sections, true
}

func (s memoryState) summary(p *plateState) domain.PlateAssay {
	out := domain.PlateAssay{
		Key:        p.key,
		Grid:       p.grid,
		Revision:   s.revisions[p.key],
		Sections:   len(p.sections.order),
		TimePoints: len(p.reads),
	}
	cur, read := p.current()
	if read {
		out.Source = cur.source
		if cur.hours != nil {
			h := *cur.hours
			out.Hours = &h
		}
	}
	for i, a := range p.annotations {
		if read && !math.IsNaN(cur.values[i]) {
			out.ReadWells++
		}
		if a.Masked {
			out.Masked++
		}
		if a.Control {
			out.Controls++
		}
	}
	return out
}

// MemoryStore provides the transactional in-memory workspace state. Mutations run
// against a cloned state that is committed only when the mutation and every
// blocking rule succeed, so a failed operation never leaves partial changes behind.
type MemoryStore struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time

	busyMu sync.Mutex
	busy   map[domain.PlateAssayKey]struct{}

	maxRecent int

	commitHooks []func(CommitInfo)
}

// CommitInfo describes a committed transaction to observers.
type CommitInfo struct {
	Touched          []domain.PlateAssayKey
	TemplatesChanged bool
	Changes          []Change
}

// NewMemoryStore constructs an in-memory store for the given grid backed by the provided rules engine.
func NewMemoryStore(grid domain.Grid, engine *RulesEngine) *MemoryStore {
	if engine == nil {
		engine = NewRulesEngine()
	}
	return &MemoryStore{
		state:  newMemoryState(grid),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
		busy:   make(map[domain.PlateAssayKey]struct{}),

		maxRecent: DefaultMaxRecentFiles,
	}
}

// DefaultMaxRecentFiles caps the recent file list unless configured otherwise.
const DefaultMaxRecentFiles = 5

// SetMaxRecentFiles changes the recent file cap; n <= 0 disables the cap.
func (s *MemoryStore) SetMaxRecentFiles(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxRecent = n
}

// Grid returns the configured grid.
func (s *MemoryStore) Grid() domain.Grid {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.grid
}

// OnCommit registers fn to run after every committed transaction, while the write lock is still held.
func (s *MemoryStore) OnCommit(fn func(CommitInfo)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitHooks = append(s.commitHooks, fn)
}

// Reserve marks the plate-assays as busy. Any mutation touching them fails with
// a Busy error until release is called. Reserving an already busy key fails.
func (s *MemoryStore) Reserve(keys ...domain.PlateAssayKey) (release func(), err error) {
	s.busyMu.Lock()
	defer s.busyMu.Unlock()
	for _, k := range keys {
		if _, taken := s.busy[k]; taken {
			return nil, domain.NewError(domain.KindBusy, "reserve", "another operation is in flight").WithPlateAssay(k)
		}
	}
	unique := make([]domain.PlateAssayKey, 0, len(keys))
	for _, k := range keys {
		if _, dup := s.busy[k]; dup {
			continue
		}
		s.busy[k] = struct{}{}
		unique = append(unique, k)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			s.busyMu.Lock()
			defer s.busyMu.Unlock()
			for _, k := range unique {
				delete(s.busy, k)
			}
		})
	}, nil
}

// Transaction represents a mutation set applied to the store state.
type Transaction struct {
	store            *MemoryStore
	state            memoryState
	changes          []Change
	touched          map[domain.PlateAssayKey]struct{}
	templatesChanged bool
	now              time.Time
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The plate-assays named in keys are reserved for the duration of the call.
func (s *MemoryStore) RunInTransaction(ctx context.Context, keys []domain.PlateAssayKey, fn func(tx *Transaction) error) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	release, err := s.Reserve(keys...)
	if err != nil {
		return Result{}, err
	}
	defer release()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Transaction{
		store:   s,
		state:   s.state.clone(),
		touched: make(map[domain.PlateAssayKey]struct{}),
		now:     s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil && len(tx.changes) > 0 {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, RuleViolationError{Result: res}
		}
	}

	info := tx.commitInfo()
	for _, k := range info.Touched {
		tx.state.revisions[k]++
	}
	s.state = tx.state
	for _, hook := range s.commitHooks {
		hook(info)
	}
	return result, nil
}

// View executes fn against the current state under a read lock. The view must not escape fn.
func (s *MemoryStore) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(newTransactionView(&s.state))
}

func (tx *Transaction) commitInfo() CommitInfo {
	info := CommitInfo{TemplatesChanged: tx.templatesChanged, Changes: tx.changes}
	if tx.templatesChanged {
		// Template edits can change the effective sections of every plate-assay.
		for _, k := range tx.state.order {
			tx.touched[k] = struct{}{}
		}
	}
	for _, k := range tx.state.order {
		if _, ok := tx.touched[k]; ok {
			info.Touched = append(info.Touched, k)
		}
	}
	for k := range tx.touched {
		if _, live := tx.state.plates[k]; !live {
			info.Touched = append(info.Touched, k)
		}
	}
	return info
}

func (tx *Transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
	if change.Scope != nil && change.Scope.Global {
		tx.templatesChanged = true
		return
	}
	tx.touched[change.PlateAssay] = struct{}{}
}

// Now returns the transaction timestamp.
func (tx *Transaction) Now() time.Time { return tx.now }

// Snapshot returns a read-only view of the in-flight transaction state.
func (tx *Transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// TransactionView exposes a read-only snapshot of the workspace state to rules and queries.
type TransactionView struct {
	state *memoryState
}

var _ domain.RuleView = TransactionView{}

func newTransactionView(state *memoryState) TransactionView {
	return TransactionView{state: state}
}

// Grid returns the configured grid.
func (v TransactionView) Grid() domain.Grid { return v.state.grid }

// ListPlateAssays returns summaries in insertion order.
func (v TransactionView) ListPlateAssays() []domain.PlateAssay {
	out := make([]domain.PlateAssay, 0, len(v.state.order))
	for _, k := range v.state.order {
		out = append(out, v.state.summary(v.state.plates[k]))
	}
	return out
}

// FindPlateAssay returns the summary of one plate-assay.
func (v TransactionView) FindPlateAssay(key domain.PlateAssayKey) (domain.PlateAssay, bool) {
	p, ok := v.state.plates[key]
	if !ok {
		return domain.PlateAssay{}, false
	}
	return v.state.summary(p), true
}

// Revision returns the mutation counter of a plate-assay.
func (v TransactionView) Revision(key domain.PlateAssayKey) uint64 {
	return v.state.revisions[key]
}

// ListSections returns the sections of scope in insertion order, or nil for an unknown scope.
func (v TransactionView) ListSections(scope domain.Scope) []domain.Section {
	list, ok := v.state.scopeSections(scope)
	if !ok {
		return nil
	}
	return list.list()
}

// FindSection looks a section up within one scope.
func (v TransactionView) FindSection(scope domain.Scope, name string) (domain.Section, bool) {
	list, ok := v.state.scopeSections(scope)
	if !ok {
		return domain.Section{}, false
	}
	return list.get(name)
}

// EffectiveSection resolves name for a plate-assay: its own section first, then the global template.
func (v TransactionView) EffectiveSection(key domain.PlateAssayKey, name string) (domain.Section, bool) {
	p, ok := v.state.plates[key]
	if !ok {
		return domain.Section{}, false
	}
	if s, ok := p.sections.get(name); ok {
		return s, true
	}
	return v.state.templates.get(name)
}

// EffectiveSections lists the plate-scoped sections followed by the templates they do not shadow.
func (v TransactionView) EffectiveSections(key domain.PlateAssayKey) []domain.Section {
	p, ok := v.state.plates[key]
	if !ok {
		return nil
	}
	out := p.sections.list()
	for _, t := range v.state.templates.list() {
		if _, shadowed := p.sections.byName[t.Name]; !shadowed {
			out = append(out, t)
		}
	}
	return out
}

// FindWell returns a single well.
func (v TransactionView) FindWell(key domain.PlateAssayKey, c domain.Coord) (domain.Well, bool) {
	p, ok := v.state.plates[key]
	if !ok || !p.grid.InBounds(c.Row, c.Col) {
		return domain.Well{}, false
	}
	return p.well(c), true
}

// RecentFiles returns the most-recent-first list of ingested sources.
func (v TransactionView) RecentFiles() []string {
	return append([]string(nil), v.state.recent...)
}

func (v TransactionView) plate(key domain.PlateAssayKey) (*plateState, bool) {
	p, ok := v.state.plates[key]
	return p, ok
}
