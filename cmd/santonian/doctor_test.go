package main

import (
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/burnoutdv/santonian-archive/internal/config"
	"github.com/burnoutdv/santonian-archive/internal/store"
)

func TestCheckSQLite(t *testing.T) {
	result := checkSQLite()

	if result.error {
		t.Errorf("SQLite check failed: %s", result.message)
	}

	if result.message == "" {
		t.Error("expected version information in message")
	}
}

func TestCheckDatabase_NonExistent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nonexistent.db")

	result := checkDatabase(dbPath, "")

	// Should not error - database will be created on first run
	if result.error {
		t.Errorf("non-existent database check should not error: %s", result.message)
	}

	if !strings.Contains(result.message, "will be created") {
		t.Errorf("expected message about database creation, got %q", result.message)
	}
}

func TestCheckDatabase_Existing(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if _, err := db.IngestText("CALLX.LOG", "Tom called", store.ByName("ARCHIVE001")); err != nil {
		t.Fatalf("failed to ingest test log: %v", err)
	}
	db.Close()

	result := checkDatabase(dbPath, "")

	if result.error {
		t.Errorf("database check failed: %s", result.message)
	}

	if !strings.Contains(result.message, "1 folders, 1 logs") {
		t.Errorf("expected counts in message, got %q", result.message)
	}
}

func TestCheckDatabase_DanglingLinks(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.CreateOrUpdateTag("x", "name"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	raw, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := raw.Exec(`INSERT INTO tag_link (log, tag, changed) VALUES ('GHOST.LOG', 1, CURRENT_TIMESTAMP)`); err != nil {
		t.Fatal(err)
	}
	raw.Close()

	result := checkDatabase(dbPath, "")
	if !result.error {
		t.Errorf("expected an error for a link to a missing log, got %q", result.message)
	}
}

func TestCheckDatabase_Empty(t *testing.T) {
	result := checkDatabase("", "")

	if !result.warning {
		t.Error("expected warning for empty database path")
	}
}

func TestCheckDatabase_Directory(t *testing.T) {
	result := checkDatabase(t.TempDir(), "")

	if !result.error {
		t.Error("expected error when the database path is a directory")
	}
}

func TestCheckEventsDirectory(t *testing.T) {
	newDir := filepath.Join(t.TempDir(), "artifacts")

	result := checkEventsDirectory(newDir)

	if result.error {
		t.Errorf("events directory check failed: %s", result.message)
	}
	if _, err := os.Stat(newDir); os.IsNotExist(err) {
		t.Error("expected directory to be created")
	}
}

func TestCheckEventsDirectory_File(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(filePath, []byte("test"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	result := checkEventsDirectory(filePath)

	if !result.error {
		t.Error("expected error when path is a file, not a directory")
	}
}

func TestCheckRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `["ARCHIVE001","ARCHIVE002"]`)
	}))
	defer srv.Close()

	cfg := config.Default().Remote
	cfg.Endpoint = srv.URL + "/backend"

	result := checkRemote(cfg)
	if result.error || result.warning {
		t.Errorf("remote check failed: %s", result.message)
	}
	if !strings.Contains(result.message, "2 folders") {
		t.Errorf("expected folder count in message, got %q", result.message)
	}

	srv.Close()
	if result := checkRemote(cfg); !result.warning {
		t.Error("expected a warning for an unreachable remote")
	}
}

func TestCheckDiskSpace(t *testing.T) {
	dir := t.TempDir()

	result := checkDiskSpace(dir, "test")

	// Should not error
	if result.error {
		t.Errorf("disk space check failed: %s", result.message)
	}

	if result.message == "" {
		t.Error("expected message with disk space info")
	}
}

func TestCheckDiskSpace_NonExistent(t *testing.T) {
	result := checkDiskSpace("/nonexistent/path", "test")

	// Should produce a warning (not error)
	if !result.warning {
		t.Error("expected warning for non-existent path")
	}
}
