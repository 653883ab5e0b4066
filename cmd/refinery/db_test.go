package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDBMigrate(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runCommand(t, "db", "migrate", "--config", cfgPath)
	if err != nil {
		t.Fatalf("db migrate: %v", err)
	}
	if !strings.Contains(out, "Migrated 7 tables") {
		t.Errorf("output = %q", out)
	}

	// Idempotent.
	if _, err := runCommand(t, "db", "migrate", "--config", cfgPath); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestDBResetSkipsMySQL(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "refinery.yaml")
	if err := os.WriteFile(cfgPath, []byte("database:\n  driver: mysql\n  name: refinery\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := runCommand(t, "db", "reset", "--yes", "--config", cfgPath)
	if err == nil || !strings.Contains(err.Error(), "sqlite") {
		t.Fatalf("err = %v, want sqlite-only error", err)
	}
}

func TestDBReset(t *testing.T) {
	cfgPath := writeTestConfig(t)
	if _, err := runCommand(t, "db", "migrate", "--config", cfgPath); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	out, err := runCommand(t, "db", "reset", "--yes", "--config", cfgPath)
	if err != nil {
		t.Fatalf("db reset: %v", err)
	}
	if !strings.Contains(out, "Migrated 7 tables") {
		t.Errorf("output = %q", out)
	}
}
