// Package domain defines the plate data model, grid arithmetic, error kinds and
// rule evaluation primitives used by platecore.
package domain

import (
	"fmt"
	"strings"
)

// EntityType identifies the kind of record touched by a Change.
type EntityType string

// Entity identifiers used in Change records and rule violations.
const (
	// EntityPlateAssay identifies a plate-assay grid instance.
	EntityPlateAssay EntityType = "plate_assay"
	// EntityWell identifies a single well annotation.
	EntityWell EntityType = "well"
	// EntitySection identifies a section definition.
	EntitySection EntityType = "section"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	// SeverityLog is informational and never blocks commit.
	SeverityLog Severity = "log"
)

// PlateAssayKey identifies one analyzable grid: a plate read under one assay.
type PlateAssayKey struct {
	PlateID string `json:"plate_id" yaml:"plate_id"`
	AssayID string `json:"assay_id" yaml:"assay_id"`
}

// NewPlateAssayKey normalises surrounding whitespace of both identifiers.
func NewPlateAssayKey(plateID, assayID string) PlateAssayKey {
	return PlateAssayKey{PlateID: strings.TrimSpace(plateID), AssayID: strings.TrimSpace(assayID)}
}

// Validate rejects keys with a missing component.
func (k PlateAssayKey) Validate() error {
	if k.PlateID == "" || k.AssayID == "" {
		return fmt.Errorf("plate-assay key %q requires plate and assay", k.String())
	}
	return nil
}

// String renders the key as "<plate>_<assay>".
func (k PlateAssayKey) String() string {
	return k.PlateID + "_" + k.AssayID
}

// ParsePlateAssayKey parses the String form. The plate id ends at the first underscore.
func ParsePlateAssayKey(s string) (PlateAssayKey, error) {
	plate, assay, ok := strings.Cut(strings.TrimSpace(s), "_")
	key := NewPlateAssayKey(plate, assay)
	if !ok {
		return key, fmt.Errorf("plate-assay %q: want <plate>_<assay>", s)
	}
	return key, key.Validate()
}

// WellState is the effective annotation of a well after precedence is applied.
type WellState int

const (
	// StateActive wells contribute to section statistics.
	StateActive WellState = iota
	// StateMasked wells are excluded from every statistic.
	StateMasked
	// StateControl wells feed the negative control baseline.
	StateControl
)

func (s WellState) String() string {
	switch s {
	case StateMasked:
		return "masked"
	case StateControl:
		return "control"
	default:
		return "active"
	}
}

// Annotation holds the user-set flags of a well. Both flags may be set at once;
// State resolves the precedence (mask wins over control).
type Annotation struct {
	Masked  bool `json:"masked,omitempty" yaml:"masked,omitempty"`
	Control bool `json:"control,omitempty" yaml:"control,omitempty"`
}

// State returns the effective well state.
func (a Annotation) State() WellState {
	switch {
	case a.Masked:
		return StateMasked
	case a.Control:
		return StateControl
	default:
		return StateActive
	}
}

// Well is a read-only view of one well of a plate-assay.
type Well struct {
	PlateAssayKey `yaml:",inline"`
	Coord         `yaml:",inline"`
	// Value is nil when the well has not been read.
	Value      *float64 `json:"value" yaml:"value"`
	Annotation `yaml:",inline"`
}

// IsMasked reports the stored mask flag.
func (w Well) IsMasked() bool { return w.Masked }

// IsNegativeControl reports the stored control flag.
func (w Well) IsNegativeControl() bool { return w.Control }

// PlateAssay summarises a plate-assay held by the store.
type PlateAssay struct {
	Key    PlateAssayKey `json:"key" yaml:"key"`
	Grid   Grid          `json:"grid" yaml:"grid"`
	Source string        `json:"source,omitempty" yaml:"source,omitempty"`
	// Hours is the time point of the current read, the latest one ingested.
	Hours *float64 `json:"hours,omitempty" yaml:"hours,omitempty"`
	// TimePoints counts the reads held, one per distinct time point.
	TimePoints int    `json:"time_points" yaml:"time_points"`
	Revision   uint64 `json:"revision" yaml:"revision"`
	ReadWells  int    `json:"read_wells" yaml:"read_wells"`
	Masked     int    `json:"masked" yaml:"masked"`
	Controls   int    `json:"controls" yaml:"controls"`
	Sections   int    `json:"sections" yaml:"sections"`
}

// Scope names the owner of a section: the global template set or a single plate-assay.
type Scope struct {
	Global     bool          `json:"global,omitempty" yaml:"global,omitempty"`
	PlateAssay PlateAssayKey `json:"plate_assay" yaml:"plate_assay"`
}

// GlobalScope returns the template scope shared by all plate-assays.
func GlobalScope() Scope { return Scope{Global: true} }

// PlateScope returns the scope owned by one plate-assay.
func PlateScope(key PlateAssayKey) Scope { return Scope{PlateAssay: key} }

func (s Scope) String() string {
	if s.Global {
		return "global"
	}
	return s.PlateAssay.String()
}

// SectionRef points at the section a copy was made from. It is provenance only.
type SectionRef struct {
	Scope Scope  `json:"scope" yaml:"scope"`
	Name  string `json:"name" yaml:"name"`
}

// Section is a named rectangular region of the grid with display metadata.
type Section struct {
	Scope     Scope       `json:"scope" yaml:"scope"`
	Name      string      `json:"name" yaml:"name"`
	Rect      Rect        `json:"rect" yaml:"rect"`
	GreyLevel float64     `json:"grey_level" yaml:"grey_level"`
	Origin    *SectionRef `json:"origin,omitempty" yaml:"origin,omitempty"`
}

// Clone returns a deep copy so callers never alias store-held sections.
func (s Section) Clone() Section {
	cp := s
	if s.Origin != nil {
		origin := *s.Origin
		cp.Origin = &origin
	}
	return cp
}

// DefaultSectionNames lists the names produced by DefaultSections.
var DefaultSectionNames = []string{"S1", "S2", "S3", "S4", "S5", "S6"}

// DefaultSections returns the classic six-block layout of a 96-well plate: two bands
// of four rows by three bands of four columns, numbered row-major.
func DefaultSections(scope Scope) []Section {
	out := make([]Section, 0, len(DefaultSectionNames))
	for i, name := range DefaultSectionNames {
		band, block := i/3, i%3
		out = append(out, Section{
			Scope: scope,
			Name:  name,
			Rect: Rect{
				RowStart: band*4 + 1,
				RowEnd:   band*4 + 4,
				ColStart: block*4 + 1,
				ColEnd:   block*4 + 4,
			},
		})
	}
	return out
}

// Change records a single mutation applied inside a transaction.
type Change struct {
	Entity     EntityType
	Action     Action
	PlateAssay PlateAssayKey
	Scope      *Scope
	Name       string
	Before     any
	After      any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported mutations captured in the audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	// ActionDelete indicates an entity was removed.
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string     `json:"rule" yaml:"rule"`
	Severity Severity   `json:"severity" yaml:"severity"`
	Message  string     `json:"message" yaml:"message"`
	Entity   EntityType `json:"entity" yaml:"entity"`
	EntityID string     `json:"entity_id" yaml:"entity_id"`
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Warnings returns the non-blocking violations.
func (r Result) Warnings() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity != SeverityBlock {
			out = append(out, v)
		}
	}
	return out
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Message
		}
	}
	return "transaction blocked by rules"
}
