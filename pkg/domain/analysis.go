package domain

import (
	"encoding/json"
	"math"
)

// UndefinedReason explains why a statistic carries no value.
type UndefinedReason string

// Reasons reported on undefined statistics.
const (
	ReasonNone                UndefinedReason = ""
	ReasonNoSamples           UndefinedReason = "no_samples"
	ReasonInsufficientSamples UndefinedReason = "insufficient_samples"
	ReasonNoControls          UndefinedReason = "no_controls"
	ReasonDivideByZero        UndefinedReason = UndefinedReason(KindDivideByZero)
)

// Statistic is a numeric aggregate that may be undefined. Undefined values are
// reported with a reason instead of NaN so results stay comparable and encodable.
type Statistic struct {
	Value   float64
	Defined bool
	Reason  UndefinedReason
}

// DefinedStat wraps a computed value. Non-finite input is reported as undefined.
func DefinedStat(v float64) Statistic {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Statistic{Reason: ReasonDivideByZero}
	}
	return Statistic{Value: v, Defined: true}
}

// UndefinedStat returns a statistic carrying only its reason.
func UndefinedStat(reason UndefinedReason) Statistic {
	return Statistic{Reason: reason}
}

// Float returns the value, or NaN when undefined.
func (s Statistic) Float() float64 {
	if !s.Defined {
		return math.NaN()
	}
	return s.Value
}

type statisticJSON struct {
	Value  *float64        `json:"value"`
	Reason UndefinedReason `json:"reason,omitempty"`
}

// MarshalJSON encodes undefined statistics as a null value with a reason.
func (s Statistic) MarshalJSON() ([]byte, error) {
	out := statisticJSON{Reason: s.Reason}
	if s.Defined {
		v := s.Value
		out.Value = &v
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (s *Statistic) UnmarshalJSON(data []byte) error {
	var in statisticJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*s = Statistic{Reason: in.Reason}
	if in.Value != nil {
		s.Value = *in.Value
		s.Defined = true
	}
	return nil
}

// MarshalYAML mirrors MarshalJSON for YAML encoders.
func (s Statistic) MarshalYAML() (any, error) {
	if s.Defined {
		return s.Value, nil
	}
	return map[string]any{"value": nil, "reason": string(s.Reason)}, nil
}

// Classification is the disjoint split of a section's wells (Excluded ∪ Control ∪ Sample).
type Classification struct {
	Excluded []Coord `json:"excluded" yaml:"excluded"`
	Control  []Coord `json:"control" yaml:"control"`
	Sample   []Coord `json:"sample" yaml:"sample"`
}

// Total returns the number of classified wells.
func (c Classification) Total() int {
	return len(c.Excluded) + len(c.Control) + len(c.Sample)
}

// Resolution is the classified well set of one section on one plate-assay.
type Resolution struct {
	PlateAssay PlateAssayKey `json:"plate_assay" yaml:"plate_assay"`
	Section    Section       `json:"section" yaml:"section"`
	// Effective is the section rectangle clipped to the grid.
	Effective      Rect   `json:"effective" yaml:"effective"`
	Revision       uint64 `json:"revision" yaml:"revision"`
	Classification `yaml:",inline"`
}

// AnalysisResult holds the descriptive aggregates of one section on one plate-assay.
// It is derived data: it is valid only for the Revision it was computed at.
type AnalysisResult struct {
	PlateAssay PlateAssayKey `json:"plate_assay" yaml:"plate_assay"`
	Section    string        `json:"section" yaml:"section"`
	GreyLevel  float64       `json:"grey_level" yaml:"grey_level"`
	Revision   uint64        `json:"revision" yaml:"revision"`

	Count    int       `json:"count" yaml:"count"`
	Unread   int       `json:"unread,omitempty" yaml:"unread,omitempty"`
	Excluded int       `json:"excluded" yaml:"excluded"`
	Mean     Statistic `json:"mean" yaml:"mean"`
	Stdev    Statistic `json:"stdev" yaml:"stdev"`
	StdErr   Statistic `json:"stderr" yaml:"stderr"`

	ControlCount   int       `json:"control_count" yaml:"control_count"`
	ControlMean    Statistic `json:"control_mean" yaml:"control_mean"`
	ControlStdev   Statistic `json:"control_stdev" yaml:"control_stdev"`
	ControlStdErr  Statistic `json:"control_stderr" yaml:"control_stderr"`
	NormalizedMean Statistic `json:"normalized_mean" yaml:"normalized_mean"`
	// SubtractedMean is mean - control_mean. PropagatedError is
	// sqrt(stderr² + control_stdev²).
	SubtractedMean  Statistic `json:"subtracted_mean" yaml:"subtracted_mean"`
	PropagatedError Statistic `json:"propagated_error" yaml:"propagated_error"`
}

// HasControls reports whether the result was normalised against controls.
func (r AnalysisResult) HasControls() bool { return r.ControlCount > 0 }

// TimePoint is the analysis of one section at one read of a plate-assay. The percent
// fields compare against the first time point of the course (the baseline); a zero
// baseline leaves them undefined with ReasonDivideByZero.
type TimePoint struct {
	// Hours is nil for an untimed read.
	Hours  *float64       `json:"hours" yaml:"hours"`
	Source string         `json:"source,omitempty" yaml:"source,omitempty"`
	Result AnalysisResult `json:"result" yaml:"result"`

	// PercentChange is (mean / baseline mean - 1) * 100.
	PercentChange Statistic `json:"percent_change" yaml:"percent_change"`
	// PercentError is the standard error as a percentage of the baseline mean.
	PercentError Statistic `json:"percent_error" yaml:"percent_error"`
	// SubtractedPercentChange and SubtractedPercentError do the same for the control
	// subtracted mean and its propagated error.
	SubtractedPercentChange Statistic `json:"subtracted_percent_change" yaml:"subtracted_percent_change"`
	SubtractedPercentError  Statistic `json:"subtracted_percent_error" yaml:"subtracted_percent_error"`
}

// TimeCourse is one section followed across every read of a plate-assay, in ascending
// time order.
type TimeCourse struct {
	PlateAssay PlateAssayKey `json:"plate_assay" yaml:"plate_assay"`
	Section    string        `json:"section" yaml:"section"`
	GreyLevel  float64       `json:"grey_level" yaml:"grey_level"`
	Revision   uint64        `json:"revision" yaml:"revision"`
	Points     []TimePoint   `json:"points" yaml:"points"`
}

// PercentChange returns (v / base - 1) * 100.
func PercentChange(v, base Statistic) Statistic {
	return relative(v, base, -1)
}

// PercentOf returns v / base * 100.
func PercentOf(v, base Statistic) Statistic {
	return relative(v, base, 0)
}

func relative(v, base Statistic, offset float64) Statistic {
	switch {
	case !base.Defined:
		return base
	case !v.Defined:
		return v
	case base.Value == 0:
		return UndefinedStat(ReasonDivideByZero)
	default:
		return DefinedStat((v.Value/base.Value + offset) * 100)
	}
}
