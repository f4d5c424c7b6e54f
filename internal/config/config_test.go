package config

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"grampscore/internal/blob"
	"grampscore/internal/core"
	"grampscore/pkg/domain"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)
	for _, k := range []string{
		"GRAMPSCORE_STORAGE_DRIVER", "GRAMPSCORE_SQLITE_PATH", "GRAMPSCORE_POSTGRES_DSN",
		"GRAMPSCORE_READONLY", "GRAMPSCORE_UNDO_SIZE", "GRAMPSCORE_CACHE_SIZE",
		"GRAMPSCORE_MEDIA_DRIVER", "GRAMPSCORE_MEDIA_ROOT", "GRAMPSCORE_MEDIA_S3_BUCKET",
		"GRAMPSCORE_MEDIA_S3_REGION", "GRAMPSCORE_MEDIA_S3_ENDPOINT", "GRAMPSCORE_MEDIA_S3_PATH_STYLE",
		"GRAMPSCORE_LOG_LEVEL", "GRAMPSCORE_LOG_FORMAT", "GRAMPSCORE_PERSON_ID_FORMAT",
	} {
		t.Setenv(k, "")
	}
	return dir
}

func TestFromEnvDefaults(t *testing.T) {
	dir := isolate(t)
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.Storage.Driver != core.StorageSQLite {
		t.Fatalf("driver = %s", cfg.Storage.Driver)
	}
	if want := filepath.Join(dir, "grampscore", "family.db"); cfg.Storage.SQLitePath != want {
		t.Fatalf("sqlite path = %s, want %s", cfg.Storage.SQLitePath, want)
	}
	if cfg.Media.Driver != blob.DriverFilesystem || cfg.Media.Root != filepath.Join(dir, "grampscore", "media") {
		t.Fatalf("media = %+v", cfg.Media)
	}
	if cfg.UndoSize != 1000 || cfg.CacheSize != 4096 || cfg.ReadOnly {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.LogLevel != slog.LevelInfo || cfg.LogFormat != LogText {
		t.Fatalf("log settings = %v %v", cfg.LogLevel, cfg.LogFormat)
	}
	if got := len(cfg.Options()); got != 2 {
		t.Fatalf("options = %d, want 2", got)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("GRAMPSCORE_STORAGE_DRIVER", "Memory")
	t.Setenv("GRAMPSCORE_READONLY", "true")
	t.Setenv("GRAMPSCORE_UNDO_SIZE", "5")
	t.Setenv("GRAMPSCORE_PERSON_ID_FORMAT", "P%05d")
	t.Setenv("GRAMPSCORE_MEDIA_DRIVER", "s3")
	t.Setenv("GRAMPSCORE_MEDIA_S3_BUCKET", "photos")
	t.Setenv("GRAMPSCORE_MEDIA_S3_PATH_STYLE", "1")
	t.Setenv("GRAMPSCORE_LOG_LEVEL", "debug")
	t.Setenv("GRAMPSCORE_LOG_FORMAT", "json")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.Storage.Driver != core.StorageMemory || !cfg.ReadOnly || cfg.UndoSize != 5 {
		t.Fatalf("storage settings = %+v", cfg)
	}
	if cfg.IDFormats[domain.EntityPerson] != "P%05d" {
		t.Fatalf("id formats = %v", cfg.IDFormats)
	}
	if cfg.Media.Driver != blob.DriverS3 || cfg.Media.S3.Bucket != "photos" || !cfg.Media.S3.PathStyle {
		t.Fatalf("media = %+v", cfg.Media)
	}
	if cfg.LogLevel != slog.LevelDebug || cfg.LogFormat != LogJSON {
		t.Fatalf("log settings = %v %v", cfg.LogLevel, cfg.LogFormat)
	}

	var buf bytes.Buffer
	cfg.Logger(&buf).Debug("hello", "k", 1)
	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Fatalf("json log output = %q", buf.String())
	}
}

func TestFromEnvOptionsOpenDatabase(t *testing.T) {
	isolate(t)
	t.Setenv("GRAMPSCORE_STORAGE_DRIVER", "memory")
	t.Setenv("GRAMPSCORE_READONLY", "yes")
	if _, err := FromEnv(); err == nil {
		t.Fatalf("expected error for non-boolean readonly")
	}
	t.Setenv("GRAMPSCORE_READONLY", "1")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	db, err := core.OpenStorage(t.Context(), cfg.Storage, cfg.Options()...)
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	defer db.Close()
	if !db.ReadOnly() {
		t.Fatalf("database should be read-only")
	}
}

func TestFromEnvErrors(t *testing.T) {
	cases := map[string]map[string]string{
		"driver":       {"GRAMPSCORE_STORAGE_DRIVER": "oracle"},
		"postgres dsn": {"GRAMPSCORE_STORAGE_DRIVER": "postgres"},
		"undo size":    {"GRAMPSCORE_UNDO_SIZE": "many"},
		"cache size":   {"GRAMPSCORE_CACHE_SIZE": "-1"},
		"media driver": {"GRAMPSCORE_MEDIA_DRIVER": "ftp"},
		"s3 bucket":    {"GRAMPSCORE_MEDIA_DRIVER": "s3"},
		"log level":    {"GRAMPSCORE_LOG_LEVEL": "loud"},
		"log format":   {"GRAMPSCORE_LOG_FORMAT": "xml"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			isolate(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := FromEnv(); err == nil {
				t.Fatalf("expected error for %v", env)
			}
		})
	}
}
