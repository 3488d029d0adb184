// ABOUTME: Tests for the upsert reconciler
// ABOUTME: Covers idempotency, fallback without a usable conflict target, and error detection
package db

import (
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/restriden/simpli-immo-sub001/models"
)

func TestUpsertIdempotent(t *testing.T) {
	db := testDB(t)
	conn := testConnection(t, db)

	lead := &models.Lead{ConnectionID: conn.ID, ExternalID: "c1", Name: "Max Mustermann"}
	if err := UpsertLead(db, lead); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	again := &models.Lead{ConnectionID: conn.ID, ExternalID: "c1", Name: "Max M.", Email: "max@example.com"}
	if err := UpsertLead(db, again); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM leads WHERE external_id = 'c1'").Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 row, got %d", count)
	}

	stored, err := GetLeadByExternalID(db, "c1")
	if err != nil {
		t.Fatalf("GetLeadByExternalID failed: %v", err)
	}
	if stored.Name != "Max M." || stored.Email != "max@example.com" {
		t.Errorf("expected latest values, got %s / %s", stored.Name, stored.Email)
	}
	if stored.ID != lead.ID {
		t.Errorf("row id changed across upserts")
	}
}

func TestUpsertFallbackWithoutConstraint(t *testing.T) {
	db := testDB(t)

	// listings.name has no unique constraint, so the native conflict target is
	// rejected and the select-then-write path must take over.
	now := time.Now()
	columns := []string{"id", "name", "city", "status", "created_at", "updated_at"}
	updateCols := []string{"city", "updated_at"}

	values := []any{"11111111-1111-1111-1111-111111111111", "Musterstrasse 5", "Berlin", "aktiv", now, now}
	if err := Upsert(db, "listings", columns, values, "name", updateCols); err != nil {
		t.Fatalf("insert via fallback failed: %v", err)
	}

	values = []any{"22222222-2222-2222-2222-222222222222", "Musterstrasse 5", "Hamburg", "aktiv", now, now}
	if err := Upsert(db, "listings", columns, values, "name", updateCols); err != nil {
		t.Fatalf("update via fallback failed: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM listings WHERE name = 'Musterstrasse 5'").Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 row after fallback upsert, got %d", count)
	}

	var city, id string
	if err := db.QueryRow("SELECT id, city FROM listings WHERE name = 'Musterstrasse 5'").Scan(&id, &city); err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if city != "Hamburg" {
		t.Errorf("expected updated city Hamburg, got %s", city)
	}
	if id != "11111111-1111-1111-1111-111111111111" {
		t.Errorf("fallback update must keep the original row id, got %s", id)
	}
}

func TestIsMissingConflictTarget(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"postgres 42P10", &pq.Error{Code: "42P10"}, true},
		{"postgres other code", &pq.Error{Code: "23505"}, false},
		{"sqlite message", errors.New("ON CONFLICT clause does not match any PRIMARY KEY or UNIQUE constraint"), true},
		{"unrelated", errors.New("database is locked"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsMissingConflictTarget(tt.err); got != tt.want {
				t.Errorf("IsMissingConflictTarget() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUpsertMessageKeepsContent(t *testing.T) {
	db := testDB(t)
	conn := testConnection(t, db)
	lead := testLead(t, db, conn, "c1")

	msg := &models.Message{
		LeadID:     lead.ID,
		ExternalID: "m1",
		Direction:  models.DirectionIncoming,
		Content:    "Hallo, ist die Wohnung noch frei?",
		SentAt:     time.Now(),
	}
	if err := UpsertMessage(db, msg); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	replay := &models.Message{
		LeadID:     lead.ID,
		ExternalID: "m1",
		Direction:  models.DirectionIncoming,
		Content:    "tampered content",
		Status:     models.MessageStatusRead,
		SentAt:     time.Now(),
	}
	if err := UpsertMessage(db, replay); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	stored, err := GetMessageByExternalID(db, "m1")
	if err != nil {
		t.Fatalf("GetMessageByExternalID failed: %v", err)
	}
	if stored.Content != "Hallo, ist die Wohnung noch frei?" {
		t.Errorf("message content must be immutable, got %q", stored.Content)
	}
	if stored.Status != models.MessageStatusRead {
		t.Errorf("expected status transition to read, got %s", stored.Status)
	}
}

func TestUpsertTodoRequiresExternalID(t *testing.T) {
	db := testDB(t)

	err := UpsertTodo(db, &models.Todo{Title: "Anrufen"})
	if err == nil {
		t.Fatal("expected error for todo without external id")
	}
}
