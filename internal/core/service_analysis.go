package core

import (
	"context"
	"platecore/pkg/domain"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
)

// Resolve classifies the wells of the effective section name on key.
func (s *Service) Resolve(ctx context.Context, key domain.PlateAssayKey, name string) (domain.Resolution, error) {
	started := time.Now()
	var out domain.Resolution
	err := s.store.View(ctx, func(v TransactionView) error {
		var err error
		out, err = Resolve(v, key, name)
		return err
	})
	s.observe(ctx, "resolve", started, err, append(keyAttrs(key), "section", name)...)
	return out, err
}

// Analyze computes the statistics of one section on one plate-assay. Results are cached
// per revision, so repeated calls without intervening mutations return identical values.
func (s *Service) Analyze(ctx context.Context, key domain.PlateAssayKey, name string) (domain.AnalysisResult, error) {
	started := time.Now()
	var out domain.AnalysisResult
	err := s.store.View(ctx, func(v TransactionView) error {
		var err error
		out, err = s.analyzeView(v, key, name)
		return err
	})
	s.observe(ctx, "analyze", started, err, append(keyAttrs(key), "section", name)...)
	return out, err
}

func (s *Service) analyzeView(v TransactionView, key domain.PlateAssayKey, name string) (domain.AnalysisResult, error) {
	rev := v.Revision(key)
	if cached, ok := s.cache.Get(key, rev, name); ok {
		s.cacheOutcome(true)
		return cached, nil
	}
	s.cacheOutcome(false)
	res, err := Resolve(v, key, name)
	if err != nil {
		return domain.AnalysisResult{}, err
	}
	p, _ := v.plate(key)
	out := ComputeStatistics(res, p.value)
	s.cache.Put(out)
	return out, nil
}

func (s *Service) cacheOutcome(hit bool) {
	if co, ok := s.metrics.(cacheObserver); ok {
		co.ObserveCache(hit)
	}
}

// AnalyzePlate analyses every effective section of key in section order.
func (s *Service) AnalyzePlate(ctx context.Context, key domain.PlateAssayKey) ([]domain.AnalysisResult, error) {
	started := time.Now()
	var out []domain.AnalysisResult
	err := s.store.View(ctx, func(v TransactionView) error {
		if _, ok := v.plate(key); !ok {
			return domain.NewError(domain.KindNotFound, "analyze plate", "plate-assay not loaded").WithPlateAssay(key)
		}
		sections := v.EffectiveSections(key)
		out = make([]domain.AnalysisResult, 0, len(sections))
		for _, sec := range sections {
			r, err := s.analyzeView(v, key, sec.Name)
			if err != nil {
				return err
			}
			out = append(out, r)
		}
		return nil
	})
	s.observe(ctx, "analyze plate", started, err, keyAttrs(key)...)
	return out, err
}

// AnalyzeAll analyses every loaded plate-assay concurrently. Results are ordered by
// plate-assay insertion order, then section order.
func (s *Service) AnalyzeAll(ctx context.Context) ([]domain.AnalysisResult, error) {
	started := time.Now()
	plates := s.ListPlateAssays(ctx)
	perPlate := make([][]domain.AnalysisResult, len(plates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, pa := range plates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results, err := s.AnalyzePlate(gctx, pa.Key)
			if domain.KindOf(err) == domain.KindNotFound {
				// removed concurrently
				return nil
			}
			perPlate[i] = results
			return err
		})
	}
	err := g.Wait()
	s.observe(ctx, "analyze all", started, err, "plate_assays", len(plates))
	if err != nil {
		return nil, err
	}
	var out []domain.AnalysisResult
	for _, results := range perPlate {
		out = append(out, results...)
	}
	return out, nil
}
