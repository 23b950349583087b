package domain

import (
	"context"
	"time"
)

// SnapshotVersion is the format version written by ExportState.
const SnapshotVersion = 1

// Snapshot is the serialisable workspace state handed to the persistence
// collaborator. Raw well values are not part of it: they are re-ingested from source.
type Snapshot struct {
	Version     int                `json:"version" yaml:"version"`
	ID          string             `json:"id" yaml:"id"`
	ExportedAt  time.Time          `json:"exported_at" yaml:"exported_at"`
	Grid        Grid               `json:"grid" yaml:"grid"`
	Templates   []Section          `json:"templates" yaml:"templates,omitempty"`
	PlateAssays []PlateAssayRecord `json:"plate_assays" yaml:"plate_assays,omitempty"`
	RecentFiles []string           `json:"recent_files" yaml:"recent_files,omitempty"`
}

// PlateAssayRecord carries the annotations and sections owned by one plate-assay.
// Coordinates are listed in ascending row-major order.
type PlateAssayRecord struct {
	Key      PlateAssayKey `json:"key" yaml:"key"`
	Masked   []Coord       `json:"masked" yaml:"masked,omitempty"`
	Controls []Coord       `json:"controls" yaml:"controls,omitempty"`
	Sections []Section     `json:"sections" yaml:"sections,omitempty"`
}

// SnapshotStore is a minimal abstraction over durable snapshot backends.
type SnapshotStore interface {
	// Save replaces the stored snapshot.
	Save(ctx context.Context, snapshot Snapshot) error
	// Load returns the stored snapshot; ok is false when nothing has been saved yet.
	Load(ctx context.Context) (snapshot Snapshot, ok bool, err error)
	Close() error
}
