package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := Load("test")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != "memory" || cfg.Blob.Driver != "fs" || cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Blob.S3.Region != "us-east-1" || cfg.Metrics.Addr != "" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	env := "STORAGE_DRIVER=sqlite\nSQLITE_PATH=/tmp/from-file.db\nLOG_FORMAT=json\n"
	if err := os.WriteFile(filepath.Join(dir, ".env.ci"), []byte(env), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("RESOURCESYNC_SQLITE_PATH", "/tmp/from-env.db")
	t.Setenv("RESOURCESYNC_BLOB_S3_PATH_STYLE", "true")
	cfg, err := Load("ci")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Log.Format != "json" {
		t.Fatalf("expected file values, got %+v", cfg)
	}
	if cfg.Storage.SQLitePath != "/tmp/from-env.db" {
		t.Fatalf("expected env to win, got %s", cfg.Storage.SQLitePath)
	}
	if !cfg.Blob.S3.PathStyle {
		t.Fatalf("expected path style from env")
	}
}

func TestValidateRejectsIncompleteDrivers(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown storage", map[string]string{"RESOURCESYNC_STORAGE_DRIVER": "mongo"}, "unknown storage driver"},
		{"postgres without dsn", map[string]string{"RESOURCESYNC_STORAGE_DRIVER": "postgres"}, "POSTGRES_DSN"},
		{"s3 without bucket", map[string]string{"RESOURCESYNC_BLOB_DRIVER": "s3"}, "BLOB_S3_BUCKET"},
		{"bad log format", map[string]string{"RESOURCESYNC_LOG_FORMAT": "xml"}, "log format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load("test")
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore cwd: %v", err)
		}
	})
}
