// ABOUTME: Tests for database schema creation and migrations
// ABOUTME: Uses in-memory SQLite for fast isolated tests
package db

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestInitSchema(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory db: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := InitSchema(db); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}

	tables := []string{
		"connections",
		"listings",
		"leads",
		"messages",
		"todos",
		"knowledge_entries",
		"analysis_jobs",
		"followup_approvals",
		"sync_runs",
		"webhook_events",
		"prompt_templates",
	}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s not found: %v", table, err)
		}
	}

	// Verify indexes exist
	indexes := []string{
		"idx_connections_location",
		"idx_leads_connection",
		"idx_leads_status",
		"idx_messages_lead",
		"idx_todos_due",
		"idx_followup_approvals_status",
		"idx_sync_runs_connection",
	}
	for _, idx := range indexes {
		var indexName string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&indexName)
		if err != nil {
			t.Errorf("Index %s not found: %v", idx, err)
		}
	}
}

func TestInitSchemaIdempotent(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory db: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := InitSchema(db); err != nil {
		t.Fatalf("first InitSchema failed: %v", err)
	}
	if err := InitSchema(db); err != nil {
		t.Fatalf("second InitSchema failed: %v", err)
	}
}

func TestSchemaRejectsInvalidStatus(t *testing.T) {
	db := testDB(t)
	conn := testConnection(t, db)

	_, err := db.Exec(`
		INSERT INTO sync_runs (id, connection_id, sync_type, status, started_at)
		VALUES ('run-1', $1, 'full', 'laufend', $2)
	`, conn.ID.String(), "2026-01-01 00:00:00")
	if err == nil {
		t.Error("expected the status CHECK constraint to reject an unknown value")
	}

	_, err = db.Exec(`
		INSERT INTO sync_runs (id, connection_id, sync_type, status, started_at)
		VALUES ('run-2', $1, 'full', 'failed', $2)
	`, conn.ID.String(), "2026-01-01 00:00:00")
	if err != nil {
		t.Errorf("insert with a known status failed: %v", err)
	}
}
