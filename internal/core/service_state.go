package core

import (
	"context"
	"platecore/pkg/domain"
	"time"

	"github.com/google/uuid"
)

// ExportState captures the grid, templates, per plate-assay annotations and sections, and
// the recent file list. Well values are not exported.
func (s *Service) ExportState(ctx context.Context) (domain.Snapshot, error) {
	started := time.Now()
	snap := domain.Snapshot{
		Version:    domain.SnapshotVersion,
		ID:         uuid.NewString(),
		ExportedAt: s.nowFn(),
	}
	err := s.store.View(ctx, func(v TransactionView) error {
		snap.Grid = v.Grid()
		snap.Templates = v.ListSections(domain.GlobalScope())
		snap.RecentFiles = v.RecentFiles()
		for _, key := range v.state.order {
			p := v.state.plates[key]
			rec := domain.PlateAssayRecord{Key: key, Sections: p.sections.list()}
			for _, c := range p.grid.Coords() {
				a := p.annotations[p.grid.Index(c)]
				if a.Masked {
					rec.Masked = append(rec.Masked, c)
				}
				if a.Control {
					rec.Controls = append(rec.Controls, c)
				}
			}
			snap.PlateAssays = append(snap.PlateAssays, rec)
		}
		return nil
	})
	s.observe(ctx, "export state", started, err, "snapshot", snap.ID)
	return snap, err
}

// ImportState restores a snapshot written by ExportState. Templates and the recent file
// list are replaced; each listed plate-assay gets its annotations and sections replaced,
// and is created without readings when it was never ingested. Plate-assays absent from
// the snapshot are left alone. Nothing is applied unless the whole snapshot applies.
func (s *Service) ImportState(ctx context.Context, snap domain.Snapshot) (Result, error) {
	const op = "import state"
	if snap.Version < 1 || snap.Version > domain.SnapshotVersion {
		err := domain.NewError(domain.KindIncompatibleSnapshot, op, "snapshot version %d, supported up to %d", snap.Version, domain.SnapshotVersion)
		s.observe(ctx, op, time.Now(), err)
		return Result{}, err
	}
	if grid := s.Grid(); snap.Grid != grid {
		err := domain.NewError(domain.KindIncompatibleSnapshot, op, "snapshot grid %s, workspace grid %s", snap.Grid, grid)
		s.observe(ctx, op, time.Now(), err)
		return Result{}, err
	}
	keys := make([]domain.PlateAssayKey, 0, len(snap.PlateAssays))
	seen := make(map[domain.PlateAssayKey]struct{}, len(snap.PlateAssays))
	for _, rec := range snap.PlateAssays {
		if _, dup := seen[rec.Key]; dup {
			err := domain.NewError(domain.KindIncompatibleSnapshot, op, "plate-assay listed twice").WithPlateAssay(rec.Key)
			s.observe(ctx, op, time.Now(), err)
			return Result{}, err
		}
		seen[rec.Key] = struct{}{}
		keys = append(keys, rec.Key)
	}

	return s.mutate(ctx, op, keys, func(tx *Transaction) error {
		if err := tx.ReplaceSections(domain.GlobalScope(), snap.Templates); err != nil {
			return incompatible(op, err)
		}
		for _, rec := range snap.PlateAssays {
			if err := rec.Key.Validate(); err != nil {
				return incompatible(op, err)
			}
			tx.ensurePlate(rec.Key)
			if err := tx.ReplaceAnnotations(rec.Key, rec.Masked, rec.Controls); err != nil {
				return incompatible(op, err)
			}
			if err := tx.ReplaceSections(domain.PlateScope(rec.Key), rec.Sections); err != nil {
				return incompatible(op, err)
			}
		}
		tx.SetRecentFiles(snap.RecentFiles)
		return nil
	}, "snapshot", snap.ID, "plate_assays", len(snap.PlateAssays))
}

func incompatible(op string, err error) error {
	return &domain.Error{Kind: domain.KindIncompatibleSnapshot, Op: op, Err: err}
}

// Save exports the workspace and hands the snapshot to store.
func (s *Service) Save(ctx context.Context, store domain.SnapshotStore) error {
	snap, err := s.ExportState(ctx)
	if err != nil {
		return err
	}
	started := time.Now()
	err = store.Save(ctx, snap)
	s.observe(ctx, "save snapshot", started, err, "snapshot", snap.ID)
	return err
}

// Load imports the snapshot held by store. It reports false when the store is empty.
func (s *Service) Load(ctx context.Context, store domain.SnapshotStore) (bool, error) {
	snap, ok, err := store.Load(ctx)
	if err != nil || !ok {
		return false, err
	}
	if _, err := s.ImportState(ctx, snap); err != nil {
		return false, err
	}
	return true, nil
}
