package audit

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/opencohort/outpost/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.AuditLog{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestLogAction(t *testing.T) {
	db := setupTestDB(t)
	userID := uuid.New()

	err := LogAction(db, userID, ActionUploadReleaseFile, "release:abc",
		map[string]string{"file": "output.csv"})
	if err != nil {
		t.Fatalf("LogAction failed: %v", err)
	}

	var entry models.AuditLog
	if err := db.First(&entry).Error; err != nil {
		t.Fatal(err)
	}
	if entry.UserID != userID || entry.Action != ActionUploadReleaseFile {
		t.Errorf("entry = %+v", entry)
	}
	if entry.Resource != "release:abc" {
		t.Errorf("resource = %s", entry.Resource)
	}
	if !strings.Contains(entry.DetailsJSON, "output.csv") {
		t.Errorf("details = %s", entry.DetailsJSON)
	}
}

func TestLogActionWriteFailureIsLogged(t *testing.T) {
	// No migration: the insert fails, which must be logged and returned,
	// never panic.
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	if err := LogAction(db, uuid.New(), ActionLogin, "user:alice", nil); err == nil {
		t.Fatal("write against a missing table should fail")
	}
	if !strings.Contains(buf.String(), "audit") {
		t.Errorf("failure should be logged, got %q", buf.String())
	}
}
