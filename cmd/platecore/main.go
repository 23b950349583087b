// Command platecore manages plate-assay workspaces: ingestion, masks, sections,
// analysis and snapshots.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"platecore/internal/config"
	"platecore/internal/core"
	"platecore/internal/ingest"
	"platecore/internal/logging"
	"platecore/pkg/domain"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(exitCode(err))
	}
}

// run executes one invocation and releases the workspace whatever the outcome.
func run(ctx context.Context, args []string, out, errOut io.Writer) error {
	a, root := newRootCommand(out, errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return errors.Join(err, a.close())
}

// exitCode maps error kinds onto distinct process exit codes.
func exitCode(err error) int {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return 3
	case domain.KindBusy:
		return 4
	case "":
		return 1
	default:
		return 2
	}
}

// app holds the workspace opened for one invocation.
type app struct {
	out, errOut io.Writer

	configFile  string
	format      string
	inputs      []string
	noReload    bool
	metricsFile string
	storage     string
	logLevel    string

	settings *config.Settings
	logger   *slog.Logger
	store    domain.SnapshotStore
	registry *prometheus.Registry
	svc      *core.Service
	dispatch *core.Dispatcher
}

func newRootCommand(out, errOut io.Writer) (*app, *cobra.Command) {
	a := &app{out: out, errOut: errOut}
	root := &cobra.Command{
		Use:          "platecore",
		Short:        "Microplate section analysis",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context(), cmd)
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default: platecore.yaml in . or $XDG_CONFIG_HOME/platecore)")
	flags.StringVarP(&a.format, "output", "o", "table", "output format: table, json or yaml")
	flags.StringSliceVar(&a.inputs, "input", nil, "plate exports to load before running the command")
	flags.BoolVar(&a.noReload, "no-reload", false, "do not reload the recent files of the saved workspace")
	flags.StringVar(&a.metricsFile, "metrics", "", "write Prometheus metrics to this file on exit")
	flags.StringVar(&a.storage, "storage", "", "snapshot storage driver override: memory, sqlite, postgres or blob")
	flags.StringVar(&a.logLevel, "log-level", "", "log level override")

	root.AddCommand(
		newIngestCommand(a),
		newPlatesCommand(a),
		newSectionsCommand(a),
		newWellCommand(a, "mask", core.CmdSetMask, core.CmdToggleMask),
		newWellCommand(a, "control", core.CmdSetControl, core.CmdToggleControl),
		newCopyMasksCommand(a),
		newExcludeOrphansCommand(a),
		newAnalyzeCommand(a),
		newTimeCourseCommand(a),
		newExportCommand(a),
		newImportCommand(a),
	)
	return a, root
}

func (a *app) open(ctx context.Context, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	switch a.format {
	case formatTable, formatJSON, formatYAML:
	default:
		return fmt.Errorf("unknown output format %q", a.format)
	}
	settings, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("storage") {
		settings.Storage.Driver = a.storage
	}
	if cmd.Flags().Changed("log-level") {
		settings.Log.Level = a.logLevel
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	a.settings = settings

	a.logger, err = logging.New(logging.Config{Level: settings.Log.Level, Format: settings.Log.Format, Output: a.errOut, Service: "platecore"})
	if err != nil {
		return err
	}
	a.registry = prometheus.NewRegistry()
	metrics, err := core.NewPrometheusMetricsRecorder(a.registry)
	if err != nil {
		return err
	}
	a.store, err = core.OpenSnapshotStore(ctx, settings.StorageConfig())
	if err != nil {
		return fmt.Errorf("open snapshot storage: %w", err)
	}

	opts := append(settings.ServiceOptions(),
		core.WithLogger(a.logger),
		core.WithMetrics(metrics),
	)
	a.svc, err = core.NewService(settings.GridValue(), opts...)
	if err != nil {
		return err
	}
	if _, err := a.svc.Load(ctx, a.store); err != nil {
		return fmt.Errorf("load workspace: %w", err)
	}
	if err := a.reload(ctx); err != nil {
		return err
	}
	// Loading and reloading are not changes worth persisting.
	a.svc.SetAutosave(a.store)
	a.dispatch = core.NewDispatcher(a.svc)
	return nil
}

// reload ingests the inputs named on the command line, or else the recent files recorded
// in the saved workspace that still exist. Files are replayed oldest first so the recent
// list keeps its order.
func (a *app) reload(ctx context.Context) error {
	files := a.inputs
	if len(files) == 0 && !a.noReload {
		for _, f := range a.svc.RecentFiles(ctx) {
			if _, err := os.Stat(f); err == nil {
				files = append(files, f)
			}
		}
		slices.Reverse(files)
	}
	for _, f := range files {
		res, err := ingest.ParseFile(f, a.svc.Grid(), ingest.Options{})
		if err != nil {
			return fmt.Errorf("reload %s: %w", f, err)
		}
		if _, _, err := a.svc.IngestBatch(ctx, res.Items(f)); err != nil {
			return fmt.Errorf("reload %s: %w", f, err)
		}
	}
	return nil
}

func (a *app) close() error {
	var errs []error
	if a.metricsFile != "" && a.registry != nil {
		errs = append(errs, prometheus.WriteToTextfile(a.metricsFile, a.registry))
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	a.store, a.registry = nil, nil
	return errors.Join(errs...)
}

func (a *app) run(cmd *cobra.Command, c core.Command) (core.CommandResult, error) {
	return a.dispatch.Dispatch(cmd.Context(), c)
}
