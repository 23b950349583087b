// Package config loads platecore settings from YAML files and PLATECORE_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"platecore/internal/blob"
	"platecore/internal/core"
	"platecore/pkg/domain"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. PLATECORE_GRID_ROWS.
const EnvPrefix = "PLATECORE"

// FileName is the config file base name searched in each config directory.
const FileName = "platecore"

// Settings is the full configuration tree.
type Settings struct {
	Grid     GridSettings     `mapstructure:"grid"`
	Storage  StorageSettings  `mapstructure:"storage"`
	Blob     BlobSettings     `mapstructure:"blob"`
	Analysis AnalysisSettings `mapstructure:"analysis"`
	Session  SessionSettings  `mapstructure:"session"`
	Log      LogSettings      `mapstructure:"log"`
	Cache    CacheSettings    `mapstructure:"cache"`
}

type GridSettings struct {
	Rows int `mapstructure:"rows"`
	Cols int `mapstructure:"cols"`
}

type StorageSettings struct {
	Driver string `mapstructure:"driver"`
	Keep   int    `mapstructure:"keep"`
	SQLite struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"sqlite"`
	Postgres struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"postgres"`
}

type BlobSettings struct {
	Driver string `mapstructure:"driver"`
	FS     struct {
		Root string `mapstructure:"root"`
	} `mapstructure:"fs"`
	S3 struct {
		Bucket          string `mapstructure:"bucket"`
		Region          string `mapstructure:"region"`
		Endpoint        string `mapstructure:"endpoint"`
		PathStyle       bool   `mapstructure:"pathstyle"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
	} `mapstructure:"s3"`
}

// AnalysisSettings are presentation preferences; they never change computed statistics.
type AnalysisSettings struct {
	SubtractControls    bool   `mapstructure:"subtract_controls"`
	AutoExcludeOrphaned bool   `mapstructure:"auto_exclude_orphaned"`
	SectionUnits        string `mapstructure:"section_units"`
}

type SessionSettings struct {
	MaxRecentFiles int `mapstructure:"max_recent_files"`
}

type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CacheSettings struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("grid.rows", domain.DefaultGrid.Rows)
	v.SetDefault("grid.cols", domain.DefaultGrid.Cols)

	v.SetDefault("storage.driver", string(core.StorageSQLite))
	v.SetDefault("storage.keep", 10)
	v.SetDefault("storage.sqlite.path", "platecore.db")
	v.SetDefault("storage.postgres.dsn", "")

	v.SetDefault("blob.driver", string(blob.DriverFilesystem))
	v.SetDefault("blob.fs.root", "blobdata")
	v.SetDefault("blob.s3.bucket", "")
	v.SetDefault("blob.s3.region", "")
	v.SetDefault("blob.s3.endpoint", "")
	v.SetDefault("blob.s3.pathstyle", false)
	v.SetDefault("blob.s3.access_key_id", "")
	v.SetDefault("blob.s3.secret_access_key", "")

	v.SetDefault("analysis.subtract_controls", true)
	v.SetDefault("analysis.auto_exclude_orphaned", true)
	v.SetDefault("analysis.section_units", "grays")

	v.SetDefault("session.max_recent_files", 5)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("cache.ttl", 5*time.Minute)
}

// ConfigPaths lists the directories searched for platecore.yaml, most specific first.
func ConfigPaths() []string {
	paths := []string{"."}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, "platecore"))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "platecore"))
	}
	return paths
}

// New returns a viper instance with defaults, search paths and environment overrides set.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	for _, p := range ConfigPaths() {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads settings. An explicit file must exist; otherwise a missing config file
// leaves the defaults in place.
func Load(file string) (*Settings, error) {
	v := New()
	if file != "" {
		v.SetConfigFile(file)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the settings held by v.
func FromViper(v *viper.Viper) (*Settings, error) {
	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks ranges and enumerations.
func (s *Settings) Validate() error {
	var errs []error
	if err := s.GridValue().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("grid: %w", err))
	}
	switch core.StorageDriver(s.Storage.Driver) {
	case core.StorageMemory, core.StorageSQLite, core.StorageBlob:
	case core.StoragePostgres:
		if s.Storage.Postgres.DSN == "" {
			errs = append(errs, errors.New("storage.postgres.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q: want memory, sqlite, postgres or blob", s.Storage.Driver))
	}
	switch blob.Driver(s.Blob.Driver) {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if s.Blob.S3.Bucket == "" {
			errs = append(errs, errors.New("blob.s3.bucket is required for the s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("blob.driver %q: want fs, s3 or memory", s.Blob.Driver))
	}
	if s.Session.MaxRecentFiles < 0 {
		errs = append(errs, fmt.Errorf("session.max_recent_files must not be negative, got %d", s.Session.MaxRecentFiles))
	}
	if s.Cache.TTL < 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must not be negative, got %s", s.Cache.TTL))
	}
	switch strings.ToLower(s.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q: want debug, info, warn or error", s.Log.Level))
	}
	switch strings.ToLower(s.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: want text or json", s.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// GridValue returns the configured grid.
func (s *Settings) GridValue() domain.Grid {
	return domain.Grid{Rows: s.Grid.Rows, Cols: s.Grid.Cols}
}

// StorageConfig maps the storage and blob keys onto core.StorageConfig.
func (s *Settings) StorageConfig() core.StorageConfig {
	return core.StorageConfig{
		Driver:      core.StorageDriver(s.Storage.Driver),
		SQLitePath:  s.Storage.SQLite.Path,
		PostgresDSN: s.Storage.Postgres.DSN,
		Blob:        s.BlobConfig(),
		BlobKeep:    s.Storage.Keep,
	}
}

// BlobConfig maps the blob keys onto blob.Config.
func (s *Settings) BlobConfig() blob.Config {
	return blob.Config{
		Driver: blob.Driver(s.Blob.Driver),
		FSRoot: s.Blob.FS.Root,
		S3: blob.S3Config{
			Bucket:          s.Blob.S3.Bucket,
			Region:          s.Blob.S3.Region,
			Endpoint:        s.Blob.S3.Endpoint,
			PathStyle:       s.Blob.S3.PathStyle,
			AccessKeyID:     s.Blob.S3.AccessKeyID,
			SecretAccessKey: s.Blob.S3.SecretAccessKey,
		},
	}
}

// ServiceOptions returns the core options implied by the settings.
func (s *Settings) ServiceOptions() []core.ServiceOption {
	return []core.ServiceOption{
		core.WithCacheTTL(s.Cache.TTL),
		core.WithMaxRecentFiles(s.Session.MaxRecentFiles),
	}
}
