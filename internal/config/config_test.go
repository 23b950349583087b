package config

import (
	"os"
	"path/filepath"
	"platecore/internal/blob"
	"platecore/internal/core"
	"platecore/pkg/domain"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	s, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, domain.DefaultGrid, s.GridValue())
	assert.Equal(t, string(core.StorageSQLite), s.Storage.Driver)
	assert.Equal(t, "platecore.db", s.Storage.SQLite.Path)
	assert.True(t, s.Analysis.SubtractControls)
	assert.True(t, s.Analysis.AutoExcludeOrphaned)
	assert.Equal(t, "grays", s.Analysis.SectionUnits)
	assert.Equal(t, 5, s.Session.MaxRecentFiles)
	assert.Equal(t, 5*time.Minute, s.Cache.TTL)
	assert.Equal(t, "info", s.Log.Level)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
grid:
  rows: 16
  cols: 24
storage:
  driver: blob
blob:
  driver: memory
analysis:
  section_units: uM
cache:
  ttl: 30s
`), 0o600))
	t.Setenv("PLATECORE_SESSION_MAX_RECENT_FILES", "9")
	t.Setenv("PLATECORE_LOG_FORMAT", "json")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, domain.Grid{Rows: 16, Cols: 24}, s.GridValue())
	assert.Equal(t, "uM", s.Analysis.SectionUnits)
	assert.Equal(t, 30*time.Second, s.Cache.TTL)
	assert.Equal(t, 9, s.Session.MaxRecentFiles)
	assert.Equal(t, "json", s.Log.Format)

	sc := s.StorageConfig()
	assert.Equal(t, core.StorageBlob, sc.Driver)
	assert.Equal(t, blob.DriverMemory, sc.Blob.Driver)
}

func TestLoadSearchesWorkingDirectory(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile(FileName+".yaml", []byte("grid:\n  cols: 6\n"), 0o600))
	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 6, s.Grid.Cols)
	assert.Equal(t, 8, s.Grid.Rows)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	isolate(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	isolate(t)
	defaults, err := Load("")
	require.NoError(t, err)
	cases := []struct {
		name   string
		mutate func(*Settings)
		want   string
	}{
		{"empty grid", func(s *Settings) { s.Grid.Rows = 0 }, "grid"},
		{"too many rows", func(s *Settings) { s.Grid.Rows = 27 }, "exceeds 26 rows"},
		{"storage driver", func(s *Settings) { s.Storage.Driver = "redis" }, "storage.driver"},
		{"postgres without dsn", func(s *Settings) { s.Storage.Driver = "postgres" }, "storage.postgres.dsn"},
		{"s3 without bucket", func(s *Settings) { s.Blob.Driver = "s3" }, "blob.s3.bucket"},
		{"negative recent", func(s *Settings) { s.Session.MaxRecentFiles = -1 }, "max_recent_files"},
		{"log level", func(s *Settings) { s.Log.Level = "trace" }, "log.level"},
		{"log format", func(s *Settings) { s.Log.Format = "xml" }, "log.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := *defaults
			tc.mutate(&s)
			err := s.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestServiceOptionsApply(t *testing.T) {
	isolate(t)
	s, err := Load("")
	require.NoError(t, err)
	s.Session.MaxRecentFiles = 2
	svc, err := core.NewService(s.GridValue(), s.ServiceOptions()...)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultGrid, svc.Grid())
}
