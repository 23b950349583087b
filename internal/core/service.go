package core

import (
	"context"
	"io"
	"iter"
	"log/slog"
	"platecore/pkg/domain"
	"slices"
	"strconv"
	"sync/atomic"
	"time"
)

// Service is the workspace: it exposes every plate, section, analysis and copy operation
// over a MemoryStore. All mutations are validate-then-apply transactions.
type Service struct {
	store    *MemoryStore
	cache    *ResultCache
	metrics  MetricsRecorder
	logger   *slog.Logger
	autosave atomic.Pointer[autosaveSink]
	nowFn    func() time.Time
}

type autosaveSink struct {
	store domain.SnapshotStore
}

// ServiceOption customises a Service.
type ServiceOption func(*serviceConfig)

type serviceConfig struct {
	engine    *RulesEngine
	metrics   MetricsRecorder
	logger    *slog.Logger
	cacheTTL  time.Duration
	maxRecent *int
	autosave  domain.SnapshotStore
	nowFn     func() time.Time
}

// WithRulesEngine replaces the default rules engine.
func WithRulesEngine(engine *RulesEngine) ServiceOption {
	return func(c *serviceConfig) { c.engine = engine }
}

// WithMetrics installs a metrics recorder.
func WithMetrics(m MetricsRecorder) ServiceOption {
	return func(c *serviceConfig) { c.metrics = m }
}

// WithLogger installs a structured logger. A nil logger discards output.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(c *serviceConfig) { c.logger = l }
}

// WithCacheTTL sets the idle expiry of cached analysis results.
func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(c *serviceConfig) { c.cacheTTL = ttl }
}

// WithMaxRecentFiles caps the recent file list.
func WithMaxRecentFiles(n int) ServiceOption {
	return func(c *serviceConfig) { c.maxRecent = &n }
}

// WithAutosave persists an exported snapshot after every committed mutation.
func WithAutosave(store domain.SnapshotStore) ServiceOption {
	return func(c *serviceConfig) { c.autosave = store }
}

// WithClock overrides the time source used for snapshot timestamps.
func WithClock(now func() time.Time) ServiceOption {
	return func(c *serviceConfig) { c.nowFn = now }
}

// NewService constructs a workspace for the given grid.
func NewService(grid domain.Grid, opts ...ServiceOption) (*Service, error) {
	if err := grid.Validate(); err != nil {
		return nil, &domain.Error{Kind: domain.KindInvalidArgument, Op: "new workspace", Err: err}
	}
	cfg := serviceConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.engine == nil {
		cfg.engine = NewDefaultRulesEngine()
	}
	if cfg.metrics == nil {
		cfg.metrics = noopMetrics{}
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.nowFn == nil {
		cfg.nowFn = func() time.Time { return time.Now().UTC() }
	}

	store := NewMemoryStore(grid, cfg.engine)
	store.nowFn = cfg.nowFn
	if cfg.maxRecent != nil {
		store.SetMaxRecentFiles(*cfg.maxRecent)
	}
	s := &Service{
		store:   store,
		cache:   NewResultCache(cfg.cacheTTL),
		metrics: cfg.metrics,
		logger:  cfg.logger,
		nowFn:   cfg.nowFn,
	}
	s.SetAutosave(cfg.autosave)
	store.OnCommit(func(info CommitInfo) {
		s.cache.Invalidate(info.Touched...)
	})
	return s, nil
}

// Store returns the underlying storage implementation.
func (s *Service) Store() *MemoryStore { return s.store }

// Grid returns the grid every plate-assay must match.
func (s *Service) Grid() domain.Grid { return s.store.Grid() }

// SetAutosave starts persisting a snapshot to store after every committed mutation.
// A nil store stops it.
func (s *Service) SetAutosave(store domain.SnapshotStore) {
	if store == nil {
		s.autosave.Store(nil)
		return
	}
	s.autosave.Store(&autosaveSink{store: store})
}

// Logger returns the service logger.
func (s *Service) Logger() *slog.Logger { return s.logger }

func (s *Service) observe(ctx context.Context, op string, started time.Time, err error, attrs ...any) {
	s.metrics.Observe(ctx, op, err == nil, time.Since(started))
	if err != nil {
		attrs = append(attrs, "error", err, "kind", string(domain.KindOf(err)))
		s.logger.WarnContext(ctx, op+" failed", attrs...)
		return
	}
	s.logger.DebugContext(ctx, op, attrs...)
}

// AutosaveViolation names the warning attached to a committed mutation whose autosave
// failed.
const AutosaveViolation = "autosave"

// mutate runs fn as one transaction reserving keys, then records metrics, logs rule
// warnings and autosaves. The mutation is committed once RunInTransaction succeeds, so
// an autosave failure is reported as a warning on the result, never as the error.
func (s *Service) mutate(ctx context.Context, op string, keys []domain.PlateAssayKey, fn func(tx *Transaction) error, attrs ...any) (Result, error) {
	started := time.Now()
	res, err := s.store.RunInTransaction(ctx, keys, fn)
	if err == nil {
		for _, v := range res.Warnings() {
			s.logger.WarnContext(ctx, v.Message, "rule", v.Rule, "entity", v.EntityID)
		}
		if sink := s.autosave.Load(); sink != nil {
			if serr := s.Save(ctx, sink.store); serr != nil {
				res.Violations = append(res.Violations, Violation{
					Rule:     AutosaveViolation,
					Severity: SeverityWarn,
					Message:  "change applied but not saved: " + serr.Error(),
				})
			}
		}
	}
	s.observe(ctx, op, started, err, attrs...)
	return res, err
}

func keyAttrs(key domain.PlateAssayKey) []any {
	return []any{"plate", key.PlateID, "assay", key.AssayID}
}

func scopeKeys(scope domain.Scope) []domain.PlateAssayKey {
	if scope.Global {
		return nil
	}
	return []domain.PlateAssayKey{scope.PlateAssay}
}

// Ingest creates or overwrites the wells of a plate-assay from a grid of readings.
func (s *Service) Ingest(ctx context.Context, key domain.PlateAssayKey, values [][]float64, opts IngestOptions) (domain.PlateAssay, Result, error) {
	var out domain.PlateAssay
	res, err := s.mutate(ctx, "ingest", []domain.PlateAssayKey{key}, func(tx *Transaction) error {
		var err error
		out, err = tx.Ingest(key, values, opts)
		return err
	}, keyAttrs(key)...)
	return out, res, err
}

// IngestItem is one plate-assay of a batch ingestion.
type IngestItem struct {
	Key    domain.PlateAssayKey
	Values [][]float64
	IngestOptions
}

// IngestBatch ingests several reads all-or-nothing: one malformed grid rejects the batch.
// Reads of different time points of one plate-assay are all kept; two reads of the same
// time point are rejected. The result holds one summary per plate-assay in first-seen
// order.
func (s *Service) IngestBatch(ctx context.Context, items []IngestItem) ([]domain.PlateAssay, Result, error) {
	if err := checkBatchTimePoints(items); err != nil {
		return nil, Result{}, err
	}
	keys := make([]domain.PlateAssayKey, 0, len(items))
	for _, it := range items {
		if !slices.Contains(keys, it.Key) {
			keys = append(keys, it.Key)
		}
	}
	var out []domain.PlateAssay
	res, err := s.mutate(ctx, "ingest batch", keys, func(tx *Transaction) error {
		for _, it := range items {
			if _, err := tx.Ingest(it.Key, it.Values, it.IngestOptions); err != nil {
				return err
			}
		}
		out = make([]domain.PlateAssay, 0, len(keys))
		for _, key := range keys {
			out = append(out, tx.state.summary(tx.state.plates[key]))
		}
		return nil
	}, "plate_assays", len(keys), "reads", len(items))
	if err != nil {
		return nil, res, err
	}
	return out, res, nil
}

// checkBatchTimePoints rejects a batch carrying two reads of one time point of the same
// plate-assay, since the later read would silently replace the earlier one.
func checkBatchTimePoints(items []IngestItem) error {
	for i, it := range items {
		for _, prev := range items[:i] {
			if prev.Key == it.Key && sameTime(prev.Hours, it.Hours) {
				when := "untimed"
				if it.Hours != nil {
					when = strconv.FormatFloat(*it.Hours, 'g', -1, 64) + "h"
				}
				return domain.NewError(domain.KindInvalidArgument, "ingest batch",
					"time point %s read twice", when).WithPlateAssay(it.Key)
			}
		}
	}
	return nil
}

// RemovePlateAssay deletes a plate-assay with its wells and plate-scoped sections.
func (s *Service) RemovePlateAssay(ctx context.Context, key domain.PlateAssayKey) (Result, error) {
	return s.mutate(ctx, "remove plate-assay", []domain.PlateAssayKey{key}, func(tx *Transaction) error {
		return tx.RemovePlateAssay(key)
	}, keyAttrs(key)...)
}

// ListPlateAssays returns the loaded plate-assays in insertion order.
func (s *Service) ListPlateAssays(ctx context.Context) []domain.PlateAssay {
	var out []domain.PlateAssay
	_ = s.store.View(ctx, func(v TransactionView) error {
		out = v.ListPlateAssays()
		return nil
	})
	return out
}

// PlateAssay returns the summary of one plate-assay.
func (s *Service) PlateAssay(ctx context.Context, key domain.PlateAssayKey) (domain.PlateAssay, error) {
	var (
		out domain.PlateAssay
		ok  bool
	)
	_ = s.store.View(ctx, func(v TransactionView) error {
		out, ok = v.FindPlateAssay(key)
		return nil
	})
	if !ok {
		return domain.PlateAssay{}, domain.NewError(domain.KindNotFound, "get plate-assay", "plate-assay not loaded").WithPlateAssay(key)
	}
	return out, nil
}

// Revision returns the mutation counter of a plate-assay. It increases on every committed
// mutation touching the plate-assay and never decreases, even across removal.
func (s *Service) Revision(ctx context.Context, key domain.PlateAssayKey) uint64 {
	var rev uint64
	_ = s.store.View(ctx, func(v TransactionView) error {
		rev = v.Revision(key)
		return nil
	})
	return rev
}

// IsCurrent reports whether result was computed at the current revision of its plate-assay.
func (s *Service) IsCurrent(ctx context.Context, result domain.AnalysisResult) bool {
	return s.Revision(ctx, result.PlateAssay) == result.Revision
}

// SetMask sets or clears the mask flag of one well.
func (s *Service) SetMask(ctx context.Context, key domain.PlateAssayKey, c domain.Coord, masked bool) (domain.Well, Result, error) {
	var out domain.Well
	res, err := s.mutate(ctx, "set mask", []domain.PlateAssayKey{key}, func(tx *Transaction) error {
		var err error
		out, err = tx.SetMask(key, c, masked)
		return err
	}, append(keyAttrs(key), "well", c.Label(), "masked", masked)...)
	return out, res, err
}

// SetControl sets or clears the negative control flag of one well.
func (s *Service) SetControl(ctx context.Context, key domain.PlateAssayKey, c domain.Coord, control bool) (domain.Well, Result, error) {
	var out domain.Well
	res, err := s.mutate(ctx, "set control", []domain.PlateAssayKey{key}, func(tx *Transaction) error {
		var err error
		out, err = tx.SetControl(key, c, control)
		return err
	}, append(keyAttrs(key), "well", c.Label(), "control", control)...)
	return out, res, err
}

// ToggleMask flips the mask flag of one well.
func (s *Service) ToggleMask(ctx context.Context, key domain.PlateAssayKey, c domain.Coord) (domain.Well, Result, error) {
	var out domain.Well
	res, err := s.mutate(ctx, "toggle mask", []domain.PlateAssayKey{key}, func(tx *Transaction) error {
		var err error
		out, err = tx.SetAnnotation("toggle mask", key, c, func(a *domain.Annotation) { a.Masked = !a.Masked })
		return err
	}, append(keyAttrs(key), "well", c.Label())...)
	return out, res, err
}

// ToggleControl flips the negative control flag of one well.
func (s *Service) ToggleControl(ctx context.Context, key domain.PlateAssayKey, c domain.Coord) (domain.Well, Result, error) {
	var out domain.Well
	res, err := s.mutate(ctx, "toggle control", []domain.PlateAssayKey{key}, func(tx *Transaction) error {
		var err error
		out, err = tx.SetAnnotation("toggle control", key, c, func(a *domain.Annotation) { a.Control = !a.Control })
		return err
	}, append(keyAttrs(key), "well", c.Label())...)
	return out, res, err
}

// GetWell returns one well of a plate-assay.
func (s *Service) GetWell(ctx context.Context, key domain.PlateAssayKey, c domain.Coord) (domain.Well, error) {
	var (
		out domain.Well
		err error
	)
	_ = s.store.View(ctx, func(v TransactionView) error {
		p, ok := v.plate(key)
		if !ok {
			err = domain.NewError(domain.KindNotFound, "get well", "plate-assay not loaded").WithPlateAssay(key)
			return nil
		}
		if !p.grid.InBounds(c.Row, c.Col) {
			err = domain.NewError(domain.KindNotFound, "get well", "well %s outside %s grid", c, p.grid).WithPlateAssay(key)
			return nil
		}
		out = p.well(c)
		return nil
	})
	return out, err
}

// Wells returns every well of a plate-assay in row-major order.
func (s *Service) Wells(ctx context.Context, key domain.PlateAssayKey) ([]domain.Well, error) {
	var out []domain.Well
	err := s.store.View(ctx, func(v TransactionView) error {
		p, ok := v.plate(key)
		if !ok {
			return domain.NewError(domain.KindNotFound, "list wells", "plate-assay not loaded").WithPlateAssay(key)
		}
		out = make([]domain.Well, 0, p.grid.Size())
		for _, c := range p.grid.Coords() {
			out = append(out, p.well(c))
		}
		return nil
	})
	return out, err
}

// ExcludeOrphans masks every read, active well of key that no effective section covers.
func (s *Service) ExcludeOrphans(ctx context.Context, key domain.PlateAssayKey) ([]domain.Coord, Result, error) {
	var orphans []domain.Coord
	res, err := s.mutate(ctx, "exclude orphans", []domain.PlateAssayKey{key}, func(tx *Transaction) error {
		if _, err := tx.plate("exclude orphans", key); err != nil {
			return err
		}
		orphans = OrphanWells(tx.Snapshot(), key)
		for _, c := range orphans {
			if _, err := tx.SetMask(key, c, true); err != nil {
				return err
			}
		}
		return nil
	}, keyAttrs(key)...)
	return orphans, res, err
}

// RecentFiles returns the most-recent-first list of ingested sources.
func (s *Service) RecentFiles(ctx context.Context) []string {
	var out []string
	_ = s.store.View(ctx, func(v TransactionView) error {
		out = v.RecentFiles()
		return nil
	})
	return out
}

// ListSections returns a finite sequence over the sections of scope in insertion order.
// The sequence iterates a copy taken at call time.
func (s *Service) ListSections(ctx context.Context, scope domain.Scope) (iter.Seq[domain.Section], error) {
	var sections []domain.Section
	err := s.store.View(ctx, func(v TransactionView) error {
		if !scope.Global {
			if _, ok := v.plate(scope.PlateAssay); !ok {
				return domain.NewError(domain.KindNotFound, "list sections", "plate-assay not loaded").WithPlateAssay(scope.PlateAssay)
			}
		}
		sections = v.ListSections(scope)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Values(sections), nil
}

// EffectiveSections lists the sections analysed for a plate-assay: its own sections, then
// the global templates it does not override.
func (s *Service) EffectiveSections(ctx context.Context, key domain.PlateAssayKey) ([]domain.Section, error) {
	var out []domain.Section
	err := s.store.View(ctx, func(v TransactionView) error {
		if _, ok := v.plate(key); !ok {
			return domain.NewError(domain.KindNotFound, "effective sections", "plate-assay not loaded").WithPlateAssay(key)
		}
		out = v.EffectiveSections(key)
		return nil
	})
	return out, err
}
