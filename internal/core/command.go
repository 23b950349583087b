package core

import (
	"context"
	"platecore/pkg/domain"
	"time"
)

// CommandKind names a user action.
type CommandKind string

// Commands understood by the Dispatcher.
const (
	CmdIngest           CommandKind = "ingest"
	CmdIngestBatch      CommandKind = "ingest_batch"
	CmdRemovePlateAssay CommandKind = "remove_plate_assay"
	CmdSetMask          CommandKind = "set_mask"
	CmdSetControl       CommandKind = "set_control"
	CmdToggleMask       CommandKind = "toggle_mask"
	CmdToggleControl    CommandKind = "toggle_control"
	CmdDefineSection    CommandKind = "define_section"
	CmdRenameSection    CommandKind = "rename_section"
	CmdRedefineRect     CommandKind = "redefine_rect"
	CmdSetGreyLevel     CommandKind = "set_grey_level"
	CmdDeleteSection    CommandKind = "delete_section"
	CmdSeedSections     CommandKind = "seed_sections"
	CmdCopyMasks        CommandKind = "copy_masks"
	CmdPropagateMasks   CommandKind = "propagate_masks"
	CmdCopySections     CommandKind = "copy_sections"
	CmdExcludeOrphans   CommandKind = "exclude_orphans"
	CmdAnalyze          CommandKind = "analyze"
	CmdAnalyzePlate     CommandKind = "analyze_plate"
	CmdAnalyzeAll       CommandKind = "analyze_all"
	CmdTimeCourse       CommandKind = "time_course"
	CmdExportState      CommandKind = "export_state"
	CmdImportState      CommandKind = "import_state"
)

// Command is one user action mapped onto a single Service operation.
type Command interface {
	Kind() CommandKind
	Execute(ctx context.Context, svc *Service) (CommandResult, error)
}

// CommandResult is the typed outcome of a Command. Only the fields relevant to Kind are set.
type CommandResult struct {
	Kind        CommandKind             `json:"kind" yaml:"kind"`
	PlateAssays []domain.PlateAssay     `json:"plate_assays,omitempty" yaml:"plate_assays,omitempty"`
	Well        *domain.Well            `json:"well,omitempty" yaml:"well,omitempty"`
	Sections    []domain.Section        `json:"sections,omitempty" yaml:"sections,omitempty"`
	Analysis    []domain.AnalysisResult `json:"analysis,omitempty" yaml:"analysis,omitempty"`
	TimeCourse  *domain.TimeCourse      `json:"time_course,omitempty" yaml:"time_course,omitempty"`
	Copy        *CopyReport             `json:"copy,omitempty" yaml:"copy,omitempty"`
	Changed     int                     `json:"changed,omitempty" yaml:"changed,omitempty"`
	Wells       []domain.Coord          `json:"wells,omitempty" yaml:"wells,omitempty"`
	Snapshot    *domain.Snapshot        `json:"snapshot,omitempty" yaml:"snapshot,omitempty"`
	Warnings    []domain.Violation      `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

func resultOf(kind CommandKind, res Result) CommandResult {
	return CommandResult{Kind: kind, Warnings: res.Warnings()}
}

// Dispatcher executes commands against one workspace. It is the only entry point a
// front end needs.
type Dispatcher struct {
	svc *Service
}

// NewDispatcher binds a dispatcher to svc.
func NewDispatcher(svc *Service) *Dispatcher {
	return &Dispatcher{svc: svc}
}

// Service returns the workspace the dispatcher drives.
func (d *Dispatcher) Service() *Service { return d.svc }

// Dispatch executes cmd, logging and recording its outcome. Errors leave the workspace unchanged.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) (CommandResult, error) {
	started := time.Now()
	out, err := cmd.Execute(ctx, d.svc)
	out.Kind = cmd.Kind()
	d.svc.metrics.Observe(ctx, "command:"+string(cmd.Kind()), err == nil, time.Since(started))
	if err != nil {
		d.svc.logger.WarnContext(ctx, "command failed", "command", string(cmd.Kind()), "error", err, "kind", string(domain.KindOf(err)))
		return CommandResult{Kind: cmd.Kind()}, err
	}
	d.svc.logger.InfoContext(ctx, "command", "command", string(cmd.Kind()), "warnings", len(out.Warnings))
	return out, nil
}

// IngestCommand loads one grid of readings.
type IngestCommand struct {
	Key     domain.PlateAssayKey
	Values  [][]float64
	Options IngestOptions
}

func (IngestCommand) Kind() CommandKind { return CmdIngest }

func (c IngestCommand) Execute(ctx context.Context, svc *Service) (CommandResult, error) {
	pa, res, err := svc.Ingest(ctx, c.Key, c.Values, c.Options)
	out := resultOf(CmdIngest, res)
	out.PlateAssays = []domain.PlateAssay{pa}
	return out, err
}

// IngestBatchCommand loads several grids all-or-nothing.
type IngestBatchCommand struct {
	Items []IngestItem
}

func (IngestBatchCommand) Kind() CommandKind { return CmdIngestBatch }

func (c IngestBatchCommand) Execute(ctx context.Context, svc *Service) (CommandResult, error) {
	plates, res, err := svc.IngestBatch(ctx, c.Items)
	out := resultOf(CmdIngestBatch, res)
	out.PlateAssays = plates
	return out, err
}

// RemovePlateAssayCommand drops a plate-assay.
type RemovePlateAssayCommand struct {
	Key domain.PlateAssayKey
}

func (RemovePlateAssayCommand) Kind() CommandKind { return CmdRemovePlateAssay }

func (c RemovePlateAssayCommand) Execute(ctx context.Context, svc *Service) (CommandResult, error) {
	res, err := svc.RemovePlateAssay(ctx, c.Key)
	return resultOf(CmdRemovePlateAssay, res), err
}

// WellCommand sets or toggles one annotation flag of a well.
type WellCommand struct {
	Action CommandKind // one of CmdSetMask, CmdSetControl, CmdToggleMask, CmdToggleControl
	Key    domain.PlateAssayKey
	Well   domain.Coord
	Value  bool
}

func (c WellCommand) Kind() CommandKind { return c.Action }

func (c WellCommand) Execute(ctx context.Context, svc *Service) (CommandResult, error) {
	var (
		w   domain.Well
		res Result
		err error
	)
	switch c.Action {
	case CmdSetMask:
		w, res, err = svc.SetMask(ctx, c.Key, c.Well, c.Value)
	case CmdSetControl:
		w, res, err = svc.SetControl(ctx, c.Key, c.Well, c.Value)
	case CmdToggleMask:
		w, res, err = svc.ToggleMask(ctx, c.Key, c.Well)
	case CmdToggleControl:
		w, res, err = svc.ToggleControl(ctx, c.Key, c.Well)
	default:
		return CommandResult{}, domain.NewError(domain.KindInvalidArgument, "dispatch", "unknown well action %q", c.Action)
	}
	out := resultOf(c.Action, res)
	out.Well = &w
	return out, err
}

// DefineSectionCommand adds a section.
type DefineSectionCommand struct {
	Scope     domain.Scope
	Name      string
	Rect      domain.Rect
	GreyLevel float64
}

func (DefineSectionCommand) Kind() CommandKind { return CmdDefineSection }

func (c DefineSectionCommand) Execute(ctx context.Context, svc *Service) (CommandResult, error) {
	s, res, err := svc.DefineSection(ctx, c.Scope, c.Name, c.Rect, c.GreyLevel)
	out := resultOf(CmdDefineSection, res)
	out.Sections = []domain.Section{s}
	return out, err
}

// EditSectionCommand changes one attribute of an existing section. Exactly one of
// NewName, Rect and GreyLevel is applied, selected by Action.
type EditSectionCommand struct {
	Action    CommandKind // one of CmdRenameSection, CmdRedefineRect, CmdSetGreyLevel
	Scope     domain.Scope
	Name      string
	NewName   string
	Rect      domain.Rect
	GreyLevel float64
}

func (c EditSectionCommand) Kind() CommandKind { return c.Action }

func (c EditSectionCommand) Execute(ctx context.Context, svc *Service) (CommandResult, error) {
	var (
		s   domain.Section
		res Result
		err error
	)
	switch c.Action {
	case CmdRenameSection:
		s, res, err = svc.RenameSection(ctx, c.Scope, c.Name, c.NewName)
	case CmdRedefineRect:
		s, res, err = svc.RedefineRect(ctx, c.Scope, c.Name, c.Rect)
	case CmdSetGreyLevel:
		s, res, err = svc.SetGreyLevel(ctx, c.Scope, c.Name, c.GreyLevel)
	default:
		return CommandResult{}, domain.NewError(domain.KindInvalidArgument, "dispatch", "unknown section action %q", c.Action)
	}
	out := resultOf(c.Action, res)
	out.Sections = []domain.Section{s}
	return out, err
}

// DeleteSectionCommand removes a section.
type DeleteSectionCommand struct {
	Scope domain.Scope
	Name  string
}

func (DeleteSectionCommand) Kind() CommandKind { return CmdDeleteSection }

func (c DeleteSectionCommand) Execute(ctx context.Context, svc *Service) (CommandResult, error) {
	res, err := svc.DeleteSection(ctx, c.Scope, c.Name)
	return resultOf(CmdDeleteSection, res), err
}

// SeedSectionsCommand defines the default S1..S6 layout.
type SeedSectionsCommand struct {
	Scope domain.Scope
}

func (SeedSectionsCommand) Kind() CommandKind { return CmdSeedSections }

func (c SeedSectionsCommand) Execute(ctx context.Context, svc *Service) (CommandResult, error) {
	created, res, err := svc.SeedDefaultSections(ctx, c.Scope)
	out := resultOf(CmdSeedSections, res)
	out.Sections = created
	return out, err
}

// CopyMasksCommand copies annotations from Src to Dst.
type CopyMasksCommand struct {
	Src, Dst domain.PlateAssayKey
}

func (CopyMasksCommand) Kind() CommandKind { return CmdCopyMasks }

func (c CopyMasksCommand) Execute(ctx context.Context, svc *Service) (CommandResult, error) {
	n, res, err := svc.CopyMasks(ctx, c.Src, c.Dst)
	out := resultOf(CmdCopyMasks, res)
	out.Changed = n
	return out, err
}

// PropagateMasksCommand copies annotations from Src to every destination.
type PropagateMasksCommand struct {
	Src  domain.PlateAssayKey
	Dsts []domain.PlateAssayKey
}

func (PropagateMasksCommand) Kind() CommandKind { return CmdPropagateMasks }

func (c PropagateMasksCommand) Execute(ctx context.Context, svc *Service) (CommandResult, error) {
	changed, res, err := svc.PropagateMasks(ctx, c.Src, c.Dsts...)
	out := resultOf(CmdPropagateMasks, res)
	for _, n := range changed {
		out.Changed += n
	}
	return out, err
}

// CopySectionsCommand value-copies sections between scopes.
type CopySectionsCommand struct {
	Src, Dst  domain.Scope
	Overwrite bool
}

func (CopySectionsCommand) Kind() CommandKind { return CmdCopySections }

func (c CopySectionsCommand) Execute(ctx context.Context, svc *Service) (CommandResult, error) {
	report, res, err := svc.CopySections(ctx, c.Src, c.Dst, c.Overwrite)
	out := resultOf(CmdCopySections, res)
	out.Copy = &report
	return out, err
}

// ExcludeOrphansCommand masks wells outside every section.
type ExcludeOrphansCommand struct {
	Key domain.PlateAssayKey
}

func (ExcludeOrphansCommand) Kind() CommandKind { return CmdExcludeOrphans }

func (c ExcludeOrphansCommand) Execute(ctx context.Context, svc *Service) (CommandResult, error) {
	wells, res, err := svc.ExcludeOrphans(ctx, c.Key)
	out := resultOf(CmdExcludeOrphans, res)
	out.Wells = wells
	out.Changed = len(wells)
	return out, err
}

// AnalyzeCommand analyses one section, every section of one plate-assay when Section is
// empty, or the whole workspace when Key is also zero.
type AnalyzeCommand struct {
	Key     domain.PlateAssayKey
	Section string
}

func (c AnalyzeCommand) Kind() CommandKind {
	switch {
	case c.Key == (domain.PlateAssayKey{}):
		return CmdAnalyzeAll
	case c.Section == "":
		return CmdAnalyzePlate
	default:
		return CmdAnalyze
	}
}

func (c AnalyzeCommand) Execute(ctx context.Context, svc *Service) (CommandResult, error) {
	out := CommandResult{Kind: c.Kind()}
	var err error
	switch out.Kind {
	case CmdAnalyzeAll:
		out.Analysis, err = svc.AnalyzeAll(ctx)
	case CmdAnalyzePlate:
		out.Analysis, err = svc.AnalyzePlate(ctx, c.Key)
	default:
		var r domain.AnalysisResult
		r, err = svc.Analyze(ctx, c.Key, c.Section)
		out.Analysis = []domain.AnalysisResult{r}
	}
	return out, err
}

// TimeCourseCommand follows one section across every time point of a plate-assay.
type TimeCourseCommand struct {
	Key     domain.PlateAssayKey
	Section string
}

func (TimeCourseCommand) Kind() CommandKind { return CmdTimeCourse }

func (c TimeCourseCommand) Execute(ctx context.Context, svc *Service) (CommandResult, error) {
	tc, err := svc.TimeCourse(ctx, c.Key, c.Section)
	return CommandResult{Kind: CmdTimeCourse, TimeCourse: &tc}, err
}

// ExportStateCommand captures a snapshot.
type ExportStateCommand struct{}

func (ExportStateCommand) Kind() CommandKind { return CmdExportState }

func (ExportStateCommand) Execute(ctx context.Context, svc *Service) (CommandResult, error) {
	snap, err := svc.ExportState(ctx)
	return CommandResult{Kind: CmdExportState, Snapshot: &snap}, err
}

// ImportStateCommand restores a snapshot.
type ImportStateCommand struct {
	Snapshot domain.Snapshot
}

func (ImportStateCommand) Kind() CommandKind { return CmdImportState }

func (c ImportStateCommand) Execute(ctx context.Context, svc *Service) (CommandResult, error) {
	res, err := svc.ImportState(ctx, c.Snapshot)
	return resultOf(CmdImportState, res), err
}
