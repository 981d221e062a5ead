package config

import (
	"os"
	"testing"
)

func TestLoad(t *testing.T) {
	// Test loading with no config file (should use defaults)
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(oldWd)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error loading defaults, got %v", err)
	}
	if cfg == nil {
		t.Fatal("expected config to be non-nil")
	}

	// Check defaults
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "localhost" {
		t.Errorf("expected default host 'localhost', got %s", cfg.Server.Host)
	}
	if cfg.Database.Backend != "memory" {
		t.Errorf("expected default database backend 'memory', got %s", cfg.Database.Backend)
	}
	if cfg.Cache.Backend != "memory" {
		t.Errorf("expected default cache backend 'memory', got %s", cfg.Cache.Backend)
	}
	if cfg.Index.QueueSize != 1024 {
		t.Errorf("expected default index queue size 1024, got %d", cfg.Index.QueueSize)
	}
}

func TestLoadWithConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(oldWd)

	configContent := `
server:
  port: 9090
  host: 0.0.0.0
database:
  backend: sql
  driver: pgx
  url: postgresql://localhost/metagrid
cache:
  backend: redis
  addr: redis:6379
`
	os.WriteFile("metagrid.yml", []byte(configContent), 0644)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error loading config, got %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected host '0.0.0.0', got %s", cfg.Server.Host)
	}
	if cfg.Database.Backend != "sql" {
		t.Errorf("expected database backend 'sql', got %s", cfg.Database.Backend)
	}
	if cfg.Database.Driver != "pgx" {
		t.Errorf("expected database driver 'pgx', got %s", cfg.Database.Driver)
	}
	if cfg.Cache.Addr != "redis:6379" {
		t.Errorf("expected cache addr 'redis:6379', got %s", cfg.Cache.Addr)
	}

	if got, want := cfg.Addr(), "0.0.0.0:9090"; got != want {
		t.Errorf("expected addr %q, got %q", want, got)
	}
}

func TestLoadEnvironmentOverride(t *testing.T) {
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(oldWd)

	t.Setenv("METAGRID_SERVER_PORT", "7070")
	t.Setenv("METAGRID_DATABASE_BACKEND", "sql")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error loading config, got %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("expected port 7070 from environment, got %d", cfg.Server.Port)
	}
	if cfg.Database.Backend != "sql" {
		t.Errorf("expected database backend 'sql' from environment, got %s", cfg.Database.Backend)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(oldWd)

	os.WriteFile("metagrid.yml", []byte("database:\n  backend: oracle\n"), 0644)
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid database backend")
	}

	os.WriteFile("metagrid.yml", []byte("server:\n  port: 99999\n"), 0644)
	if _, err := Load(); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
}
