// Package config reads GRAMPSCORE_* environment variables into the settings
// used to open a database and its media store.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adrg/xdg"

	"grampscore/internal/blob"
	"grampscore/internal/core"
	"grampscore/pkg/domain"
)

const (
	appDir           = "grampscore"
	defaultUndoSize  = 1000
	defaultCacheSize = 4096
)

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogText LogFormat = "text"
	LogJSON LogFormat = "json"
)

// Config is the resolved process configuration.
type Config struct {
	Storage   core.StorageConfig
	ReadOnly  bool
	UndoSize  int
	CacheSize int
	// IDFormats holds per-type Gramps ID templates that were set explicitly.
	IDFormats map[domain.EntityType]string
	Media     blob.Config
	LogLevel  slog.Level
	LogFormat LogFormat
}

// DataDir returns the directory holding the default database and media.
func DataDir() string {
	xdg.Reload()
	dataHome := xdg.DataHome
	if dataHome == "" {
		home := xdg.Home
		if home == "" {
			var err error
			home, err = os.UserHomeDir()
			if err != nil {
				return filepath.Join(os.TempDir(), appDir)
			}
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, appDir)
}

// FromEnv builds a Config from the environment. Unset variables take their
// defaults; malformed values are errors.
func FromEnv() (Config, error) {
	cfg := Config{
		UndoSize:  defaultUndoSize,
		CacheSize: defaultCacheSize,
		IDFormats: make(map[domain.EntityType]string),
		LogLevel:  slog.LevelInfo,
		LogFormat: LogText,
	}

	driver := strings.ToLower(strings.TrimSpace(os.Getenv("GRAMPSCORE_STORAGE_DRIVER")))
	switch core.StorageDriver(driver) {
	case "", core.StorageSQLite:
		cfg.Storage.Driver = core.StorageSQLite
	case core.StorageMemory, core.StoragePostgres:
		cfg.Storage.Driver = core.StorageDriver(driver)
	default:
		return Config{}, fmt.Errorf("GRAMPSCORE_STORAGE_DRIVER: unknown driver %q", driver)
	}
	cfg.Storage.SQLitePath = os.Getenv("GRAMPSCORE_SQLITE_PATH")
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = filepath.Join(DataDir(), "family.db")
	}
	cfg.Storage.PostgresDSN = os.Getenv("GRAMPSCORE_POSTGRES_DSN")
	if cfg.Storage.Driver == core.StoragePostgres && cfg.Storage.PostgresDSN == "" {
		return Config{}, errors.New("GRAMPSCORE_POSTGRES_DSN is required for the postgres driver")
	}

	var err error
	if cfg.ReadOnly, err = envBool("GRAMPSCORE_READONLY"); err != nil {
		return Config{}, err
	}
	if cfg.UndoSize, err = envInt("GRAMPSCORE_UNDO_SIZE", defaultUndoSize); err != nil {
		return Config{}, err
	}
	if cfg.CacheSize, err = envInt("GRAMPSCORE_CACHE_SIZE", defaultCacheSize); err != nil {
		return Config{}, err
	}
	for _, kind := range domain.EntityTypes() {
		if v := os.Getenv("GRAMPSCORE_" + strings.ToUpper(string(kind)) + "_ID_FORMAT"); v != "" {
			cfg.IDFormats[kind] = v
		}
	}

	if cfg.Media, err = mediaFromEnv(); err != nil {
		return Config{}, err
	}

	if v := os.Getenv("GRAMPSCORE_LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return Config{}, fmt.Errorf("GRAMPSCORE_LOG_LEVEL: %w", err)
		}
	}
	switch f := LogFormat(strings.ToLower(os.Getenv("GRAMPSCORE_LOG_FORMAT"))); f {
	case "":
	case LogText, LogJSON:
		cfg.LogFormat = f
	default:
		return Config{}, fmt.Errorf("GRAMPSCORE_LOG_FORMAT: unknown format %q", f)
	}
	return cfg, nil
}

func mediaFromEnv() (blob.Config, error) {
	var mc blob.Config
	switch d := blob.Driver(strings.ToLower(os.Getenv("GRAMPSCORE_MEDIA_DRIVER"))); d {
	case "", blob.DriverFilesystem:
		mc.Driver = blob.DriverFilesystem
	case blob.DriverS3, blob.DriverMemory:
		mc.Driver = d
	default:
		return blob.Config{}, fmt.Errorf("GRAMPSCORE_MEDIA_DRIVER: unknown driver %q", d)
	}
	mc.Root = os.Getenv("GRAMPSCORE_MEDIA_ROOT")
	if mc.Root == "" {
		mc.Root = filepath.Join(DataDir(), "media")
	}
	pathStyle, err := envBool("GRAMPSCORE_MEDIA_S3_PATH_STYLE")
	if err != nil {
		return blob.Config{}, err
	}
	mc.S3 = blob.S3Config{
		Bucket:    os.Getenv("GRAMPSCORE_MEDIA_S3_BUCKET"),
		Region:    os.Getenv("GRAMPSCORE_MEDIA_S3_REGION"),
		Endpoint:  os.Getenv("GRAMPSCORE_MEDIA_S3_ENDPOINT"),
		PathStyle: pathStyle,
	}
	if mc.Driver == blob.DriverS3 && mc.S3.Bucket == "" {
		return blob.Config{}, errors.New("GRAMPSCORE_MEDIA_S3_BUCKET is required for the s3 media driver")
	}
	return mc, nil
}

// Options converts the database settings into core options.
func (c Config) Options() []core.Option {
	opts := []core.Option{
		core.WithUndoLimit(c.UndoSize),
		core.WithCacheSize(c.CacheSize),
	}
	if len(c.IDFormats) > 0 {
		opts = append(opts, core.WithIDFormats(c.IDFormats))
	}
	if c.ReadOnly {
		opts = append(opts, core.ReadOnly())
	}
	return opts
}

// Logger returns a slog logger writing to w in the configured format.
func (c Config) Logger(w io.Writer) *slog.Logger {
	ho := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == LogJSON {
		return slog.New(slog.NewJSONHandler(w, ho))
	}
	return slog.New(slog.NewTextHandler(w, ho))
}

func envBool(key string) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s: must not be negative", key)
	}
	return n, nil
}
