package core

import (
	"math"
	"platecore/pkg/domain"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ValueFunc returns the raw reading of a well and whether it has been read.
type ValueFunc func(domain.Coord) (float64, bool)

// sampleSummary holds the descriptive statistics of one well set.
type sampleSummary struct {
	n      int
	unread int
	mean   domain.Statistic
	stdev  domain.Statistic
	stderr domain.Statistic
}

// summarize gathers readings in the order given (callers pass row-major order) and
// computes mean, sample standard deviation (n-1) and standard error.
func summarize(coords []domain.Coord, value ValueFunc) sampleSummary {
	xs := make([]float64, 0, len(coords))
	out := sampleSummary{}
	for _, c := range coords {
		v, ok := value(c)
		if !ok {
			out.unread++
			continue
		}
		xs = append(xs, v)
	}
	out.n = len(xs)
	switch out.n {
	case 0:
		out.mean = domain.UndefinedStat(domain.ReasonNoSamples)
		out.stdev = domain.UndefinedStat(domain.ReasonNoSamples)
		out.stderr = domain.UndefinedStat(domain.ReasonNoSamples)
	case 1:
		out.mean = domain.DefinedStat(floats.Sum(xs))
		out.stdev = domain.UndefinedStat(domain.ReasonInsufficientSamples)
		out.stderr = domain.UndefinedStat(domain.ReasonInsufficientSamples)
	default:
		mean, sd := stat.MeanStdDev(xs, nil)
		out.mean = domain.DefinedStat(mean)
		out.stdev = domain.DefinedStat(sd)
		out.stderr = domain.DefinedStat(sd / math.Sqrt(float64(out.n)))
	}
	return out
}

// ComputeStatistics derives the AnalysisResult of a resolved section. The computation is
// a pure function of its inputs: equal resolutions and readings give bit-identical results.
func ComputeStatistics(res domain.Resolution, value ValueFunc) domain.AnalysisResult {
	sample := summarize(res.Sample, value)
	out := domain.AnalysisResult{
		PlateAssay: res.PlateAssay,
		Section:    res.Section.Name,
		GreyLevel:  res.Section.GreyLevel,
		Revision:   res.Revision,
		Count:      len(res.Sample),
		Unread:     sample.unread,
		Excluded:   len(res.Excluded),
		Mean:       sample.mean,
		Stdev:      sample.stdev,
		StdErr:     sample.stderr,
	}

	noControls := domain.UndefinedStat(domain.ReasonNoControls)
	out.ControlMean, out.ControlStdev, out.ControlStdErr = noControls, noControls, noControls
	out.NormalizedMean, out.SubtractedMean, out.PropagatedError = noControls, noControls, noControls
	if len(res.Control) == 0 {
		return out
	}

	control := summarize(res.Control, value)
	out.ControlCount = len(res.Control)
	out.ControlMean = control.mean
	out.ControlStdev = control.stdev
	out.ControlStdErr = control.stderr
	if !control.mean.Defined {
		out.NormalizedMean = control.mean
		out.SubtractedMean = control.mean
		out.PropagatedError = control.mean
		return out
	}
	if !sample.mean.Defined {
		out.NormalizedMean = sample.mean
		out.SubtractedMean = sample.mean
		out.PropagatedError = sample.mean
		return out
	}

	if control.mean.Value == 0 {
		out.NormalizedMean = domain.UndefinedStat(domain.ReasonDivideByZero)
	} else {
		out.NormalizedMean = domain.DefinedStat(sample.mean.Value / control.mean.Value)
	}
	out.SubtractedMean = domain.DefinedStat(sample.mean.Value - control.mean.Value)
	out.PropagatedError = propagate(sample.stderr, control.stdev)
	return out
}

// propagate returns sqrt(sampleErr² + controlSpread²): the sample standard error combined
// with the spread of the control wells. A single control well contributes no spread.
func propagate(sampleErr, controlSpread domain.Statistic) domain.Statistic {
	if !sampleErr.Defined {
		return sampleErr
	}
	ce := 0.0
	if controlSpread.Defined {
		ce = controlSpread.Value
	}
	return domain.DefinedStat(math.Hypot(sampleErr.Value, ce))
}
