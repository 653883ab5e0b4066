package main

import (
	"strings"
	"testing"
	"time"

	"github.com/refinement-bot/refinery/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestStatusNoBatch(t *testing.T) {
	cfgPath := writeTestConfig(t)
	if _, err := runCommand(t, "db", "migrate", "--config", cfgPath); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	out, err := runCommand(t, "status", "--config", cfgPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "No active batch") {
		t.Errorf("output = %q", out)
	}
}

func TestStatusActiveBatch(t *testing.T) {
	cfgPath := writeTestConfig(t)
	if _, err := runCommand(t, "db", "migrate", "--config", cfgPath); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	// Seed a batch directly against the sqlite file.
	dbPath := strings.Replace(cfgPath, "refinery.yaml", "refinery.db", 1)
	gdb, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	batch := models.Batch{Status: models.BatchActive, Facilitator: "Dana", Deadline: time.Now().Add(48 * time.Hour)}
	if err := gdb.Create(&batch).Error; err != nil {
		t.Fatalf("seed batch: %v", err)
	}
	seed := []interface{}{
		&models.WorkItem{BatchID: batch.ID, Key: "101", URL: "https://github.com/acme/widgets/issues/101"},
		&models.RosterMember{BatchID: batch.ID, Name: "Alice"},
		&models.RosterMember{BatchID: batch.ID, Name: "Bob"},
		&models.Vote{BatchID: batch.ID, Participant: "Alice", ItemKey: "101", Points: 5},
	}
	for _, row := range seed {
		if err := gdb.Create(row).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	out, err := runCommand(t, "status", "--config", cfgPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"Batch 1 (active)", "Facilitator: Dana", "#101", "Votes received: 1/2", "Waiting on: Bob"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
