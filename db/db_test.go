package db

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/restriden/simpli-immo-sub001/models"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func testConnection(t *testing.T, db *sql.DB) *models.Connection {
	t.Helper()

	conn := &models.Connection{
		UserID:       "user-1",
		LocationID:   "loc-" + uuid.NewString(),
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	if err := CreateConnection(db, conn); err != nil {
		t.Fatalf("CreateConnection failed: %v", err)
	}

	return conn
}

func testLead(t *testing.T, db *sql.DB, conn *models.Connection, externalID string) *models.Lead {
	t.Helper()

	lead := &models.Lead{
		ConnectionID: conn.ID,
		ExternalID:   externalID,
		Name:         "Max Mustermann",
	}
	if err := UpsertLead(db, lead); err != nil {
		t.Fatalf("UpsertLead failed: %v", err)
	}

	return lead
}

func TestOpenSQLite(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer db.Close()

	// Verify database file exists
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}

	// Verify schema was initialized
	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table'").Scan(&count)
	if err != nil {
		t.Fatalf("Failed to query tables: %v", err)
	}
	if count < 11 {
		t.Errorf("Expected at least 11 tables, got %d", count)
	}

	// Verify WAL mode
	var mode string
	err = db.QueryRow("PRAGMA journal_mode").Scan(&mode)
	if err != nil {
		t.Fatalf("Failed to query journal mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("Expected WAL mode, got %s", mode)
	}
}

func TestOpenSQLiteInvalidPath(t *testing.T) {
	// A regular file in the middle of the path makes MkdirAll fail
	// regardless of the privileges the tests run with.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("not a directory"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	dbPath := filepath.Join(blocker, "sub", "test.db")

	_, err := OpenSQLite(dbPath)
	if err == nil {
		t.Errorf("Expected error for invalid path, but OpenSQLite succeeded")
	}
}

func TestCreateConnectionDeactivatesPrior(t *testing.T) {
	db := testDB(t)

	first := &models.Connection{
		UserID:       "user-1",
		LocationID:   "loc-1",
		AccessToken:  "a1",
		RefreshToken: "r1",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	if err := CreateConnection(db, first); err != nil {
		t.Fatalf("CreateConnection failed: %v", err)
	}

	second := &models.Connection{
		UserID:       "user-1",
		LocationID:   "loc-1",
		AccessToken:  "a2",
		RefreshToken: "r2",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	if err := CreateConnection(db, second); err != nil {
		t.Fatalf("CreateConnection failed: %v", err)
	}

	active, err := GetActiveConnectionByLocation(db, "loc-1")
	if err != nil {
		t.Fatalf("GetActiveConnectionByLocation failed: %v", err)
	}
	if active == nil || active.ID != second.ID {
		t.Fatalf("expected the newer connection to be active")
	}

	stored, err := GetConnection(db, first.ID)
	if err != nil {
		t.Fatalf("GetConnection failed: %v", err)
	}
	if stored.IsActive {
		t.Error("expected the prior connection to be deactivated")
	}

	var activeCount int
	err = db.QueryRow("SELECT COUNT(*) FROM connections WHERE location_id = 'loc-1' AND is_active = TRUE").Scan(&activeCount)
	if err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if activeCount != 1 {
		t.Errorf("expected exactly 1 active connection, got %d", activeCount)
	}
}

func TestUpdateConnectionTokens(t *testing.T) {
	db := testDB(t)
	conn := testConnection(t, db)

	newExpiry := time.Now().Add(24 * time.Hour)
	if err := UpdateConnectionTokens(db, conn.ID, "new-access", "new-refresh", newExpiry); err != nil {
		t.Fatalf("UpdateConnectionTokens failed: %v", err)
	}

	stored, err := GetConnection(db, conn.ID)
	if err != nil {
		t.Fatalf("GetConnection failed: %v", err)
	}
	if stored.AccessToken != "new-access" || stored.RefreshToken != "new-refresh" {
		t.Errorf("tokens not updated: %s / %s", stored.AccessToken, stored.RefreshToken)
	}
}

func TestDeactivateConnection(t *testing.T) {
	db := testDB(t)
	conn := testConnection(t, db)

	if err := DeactivateConnection(db, conn.ID); err != nil {
		t.Fatalf("DeactivateConnection failed: %v", err)
	}

	stored, err := GetConnection(db, conn.ID)
	if err != nil {
		t.Fatalf("GetConnection failed: %v", err)
	}
	if stored.IsActive {
		t.Error("expected connection to be inactive")
	}

	active, err := GetActiveConnectionByLocation(db, conn.LocationID)
	if err != nil {
		t.Fatalf("GetActiveConnectionByLocation failed: %v", err)
	}
	if active != nil {
		t.Error("expected no active connection for location")
	}
}

func TestGetConnectionMissing(t *testing.T) {
	db := testDB(t)

	conn, err := GetConnection(db, uuid.New())
	if err != nil {
		t.Fatalf("GetConnection failed: %v", err)
	}
	if conn != nil {
		t.Error("expected nil for missing connection")
	}
}
