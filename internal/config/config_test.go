package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func TestDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DB.Path != "bookquery.db" || cfg.DB.Collection != "books" {
		t.Errorf("Unexpected db config %+v", cfg.DB)
	}
	if cfg.GRPC.Port != 50051 || cfg.Metrics.Port != 9090 {
		t.Errorf("Unexpected ports %d/%d", cfg.GRPC.Port, cfg.Metrics.Port)
	}
	if cfg.Server.MaxDocuments != 1000 || cfg.Log.Level != "info" {
		t.Errorf("Unexpected config %+v", cfg)
	}
}

func TestEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("BOOKQUERY_DB_PATH", ":memory:")
	t.Setenv("BOOKQUERY_GRPC_PORT", "6000")
	t.Setenv("BOOKQUERY_LOG_PRETTY", "true")
	t.Setenv("BOOKQUERY_SERVER_MAX_DOCUMENTS", "25")

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DB.Path != ":memory:" || cfg.GRPC.Port != 6000 || !cfg.Log.Pretty || cfg.Server.MaxDocuments != 25 {
		t.Errorf("Environment not applied: %+v", cfg)
	}
}

func TestFileAndFlagPrecedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "bookquery.yaml")
	content := "db:\n  path: from-file.db\n  collection: novels\nlog:\n  level: debug\n"
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	t.Setenv("BOOKQUERY_LOG_LEVEL", "warn")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("db", "", "")
	flags.String("log-level", "", "")
	if err := flags.Parse([]string{"--db", "from-flag.db"}); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	cfg, err := Load(Options{File: file, Flags: flags})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DB.Path != "from-flag.db" {
		t.Errorf("Expected flag to win, got %q", cfg.DB.Path)
	}
	if cfg.DB.Collection != "novels" {
		t.Errorf("Expected file value, got %q", cfg.DB.Collection)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Expected env to beat file and unset flag, got %q", cfg.Log.Level)
	}
}

func TestLoadErrors(t *testing.T) {
	chdir(t, t.TempDir())

	if _, err := Load(Options{File: "missing.yaml"}); err == nil {
		t.Error("Expected error for missing explicit file")
	}

	t.Setenv("BOOKQUERY_GRPC_PORT", "70000")
	if _, err := Load(Options{}); err == nil {
		t.Error("Expected error for out-of-range port")
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir failed: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
