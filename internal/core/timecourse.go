package core

import (
	"context"
	"platecore/pkg/domain"
	"time"
)

// TimeCourse analyses section name of key at every time point read, in ascending time
// order, and reports each point's change from the first. Masks, controls and sections
// are shared by all time points. A plate-assay with no reads yields no points.
func (s *Service) TimeCourse(ctx context.Context, key domain.PlateAssayKey, name string) (domain.TimeCourse, error) {
	started := time.Now()
	var out domain.TimeCourse
	err := s.store.View(ctx, func(v TransactionView) error {
		res, err := Resolve(v, key, name)
		if err != nil {
			return err
		}
		p, _ := v.plate(key)
		out = computeTimeCourse(res, p.grid, p.reads)
		return nil
	})
	s.observe(ctx, "time course", started, err, append(keyAttrs(key), "section", name)...)
	return out, err
}

// computeTimeCourse derives the statistics of res for each read.
func computeTimeCourse(res domain.Resolution, grid domain.Grid, reads []plateRead) domain.TimeCourse {
	out := domain.TimeCourse{
		PlateAssay: res.PlateAssay,
		Section:    res.Section.Name,
		GreyLevel:  res.Section.GreyLevel,
		Revision:   res.Revision,
		Points:     make([]domain.TimePoint, 0, len(reads)),
	}
	for _, r := range reads {
		pt := domain.TimePoint{
			Source: r.source,
			Result: ComputeStatistics(res, r.valueFunc(grid)),
		}
		if r.hours != nil {
			h := *r.hours
			pt.Hours = &h
		}
		out.Points = append(out.Points, pt)
	}
	if len(out.Points) == 0 {
		return out
	}
	base := out.Points[0].Result
	for i := range out.Points {
		r := out.Points[i].Result
		out.Points[i].PercentChange = domain.PercentChange(r.Mean, base.Mean)
		out.Points[i].PercentError = domain.PercentOf(r.StdErr, base.Mean)
		out.Points[i].SubtractedPercentChange = domain.PercentChange(r.SubtractedMean, base.SubtractedMean)
		out.Points[i].SubtractedPercentError = domain.PercentOf(r.PropagatedError, base.SubtractedMean)
	}
	return out
}
