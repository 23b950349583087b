// Package buckets splits a workspace snapshot into named JSON payloads so SQL
// backends can store each part as one row of a bucket/payload table.
package buckets

import (
	"encoding/json"
	"fmt"
	"platecore/pkg/domain"
	"time"
)

// Bucket names in write order.
const (
	Meta        = "meta"
	Templates   = "templates"
	PlateAssays = "plate_assays"
	RecentFiles = "recent_files"
)

// Names lists every bucket written by Encode.
var Names = []string{Meta, Templates, PlateAssays, RecentFiles}

type meta struct {
	Version    int         `json:"version"`
	ID         string      `json:"id"`
	ExportedAt time.Time   `json:"exported_at"`
	Grid       domain.Grid `json:"grid"`
}

// Encode marshals each part of snap into its bucket.
func Encode(snap domain.Snapshot) (map[string][]byte, error) {
	parts := map[string]any{
		Meta:        meta{Version: snap.Version, ID: snap.ID, ExportedAt: snap.ExportedAt, Grid: snap.Grid},
		Templates:   nonNil(snap.Templates),
		PlateAssays: nonNil(snap.PlateAssays),
		RecentFiles: nonNil(snap.RecentFiles),
	}
	out := make(map[string][]byte, len(parts))
	for _, name := range Names {
		data, err := json.Marshal(parts[name])
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		out[name] = data
	}
	return out, nil
}

// Decode rebuilds a snapshot from stored buckets. It reports false when no meta
// bucket exists, which means nothing has been saved. Unknown buckets are ignored.
func Decode(raw map[string][]byte) (domain.Snapshot, bool, error) {
	metaPayload, ok := raw[Meta]
	if !ok || len(metaPayload) == 0 {
		return domain.Snapshot{}, false, nil
	}
	var m meta
	if err := json.Unmarshal(metaPayload, &m); err != nil {
		return domain.Snapshot{}, false, fmt.Errorf("decode %s: %w", Meta, err)
	}
	snap := domain.Snapshot{Version: m.Version, ID: m.ID, ExportedAt: m.ExportedAt, Grid: m.Grid}
	targets := map[string]any{
		Templates:   &snap.Templates,
		PlateAssays: &snap.PlateAssays,
		RecentFiles: &snap.RecentFiles,
	}
	for name, target := range targets {
		payload := raw[name]
		if len(payload) == 0 {
			continue
		}
		if err := json.Unmarshal(payload, target); err != nil {
			return domain.Snapshot{}, false, fmt.Errorf("decode %s: %w", name, err)
		}
	}
	return snap, true, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
