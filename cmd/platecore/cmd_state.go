package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"platecore/internal/core"
	"platecore/pkg/domain"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newExportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export [FILE]",
		Short: "Write the workspace snapshot (templates, masks, sections, recent files)",
		Long: `Write the snapshot to FILE, or to standard output. The format follows the file
extension (.json, .yaml, .yml) or, for standard output, --output (table means yaml).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := a.run(cmd, core.ExportStateCommand{})
			if err != nil {
				return err
			}
			format := a.format
			if len(args) == 1 {
				format = formatForPath(args[0])
			}
			if format == formatTable {
				format = formatYAML
			}
			var buf bytes.Buffer
			if err := writeFormatted(&buf, format, out.Snapshot, nil); err != nil {
				return err
			}
			if len(args) == 0 {
				_, err := io.Copy(a.out, &buf)
				return err
			}
			if err := os.WriteFile(args[0], buf.Bytes(), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(a.errOut, "exported snapshot %s to %s\n", out.Snapshot.ID, args[0])
			return nil
		},
	}
}

func newImportCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Restore a snapshot written by export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := readSnapshot(args[0])
			if err != nil {
				return err
			}
			out, err := a.run(cmd, core.ImportStateCommand{Snapshot: snap})
			if err != nil {
				return err
			}
			warnings(a.errOut, out.Warnings)
			return a.render(out, func(w io.Writer) {
				fmt.Fprintf(w, "imported snapshot %s: %d templates, %d plate-assays\n", snap.ID, len(snap.Templates), len(snap.PlateAssays))
			})
		},
	}
}

func formatForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return formatJSON
	default:
		return formatYAML
	}
}

func readSnapshot(path string) (domain.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Snapshot{}, err
	}
	var snap domain.Snapshot
	if formatForPath(path) == formatJSON {
		err = json.Unmarshal(data, &snap)
	} else {
		err = yaml.Unmarshal(data, &snap)
	}
	if err != nil {
		return domain.Snapshot{}, &domain.Error{Kind: domain.KindIncompatibleSnapshot, Op: "read snapshot", Err: err}
	}
	return snap, nil
}
