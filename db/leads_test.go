// ABOUTME: Tests for lead database operations
// ABOUTME: Covers monotonic stage flags, assignment preservation, and work sets
package db

import (
	"testing"
	"time"

	"github.com/restriden/simpli-immo-sub001/models"
)

func TestUpsertLeadPreservesAssignmentAndFlags(t *testing.T) {
	db := testDB(t)
	conn := testConnection(t, db)
	lead := testLead(t, db, conn, "c1")

	listing := &models.Listing{Name: "Musterstrasse 5"}
	if err := CreateListing(db, listing); err != nil {
		t.Fatalf("CreateListing failed: %v", err)
	}
	if err := AssignLeadListing(db, lead.ID, listing.ID); err != nil {
		t.Fatalf("AssignLeadListing failed: %v", err)
	}
	if err := UpdateLeadPipelineStage(db, lead.ID, "besichtigt", models.StageFlags{Viewing: true}); err != nil {
		t.Fatalf("UpdateLeadPipelineStage failed: %v", err)
	}

	// A later contact sync must not clear the assignment or the flags.
	resync := &models.Lead{ConnectionID: conn.ID, ExternalID: "c1", Name: "Max Mustermann", Phone: "+491701234567"}
	if err := UpsertLead(db, resync); err != nil {
		t.Fatalf("resync upsert failed: %v", err)
	}

	if resync.ListingID == nil || *resync.ListingID != listing.ID {
		t.Error("listing assignment was lost on resync")
	}
	if !resync.ReachedViewing {
		t.Error("reached_viewing flag was lost on resync")
	}
	if resync.Phone != "+491701234567" {
		t.Errorf("contact fields should update, got phone %q", resync.Phone)
	}
}

func TestUpdateLeadPipelineStageMonotonic(t *testing.T) {
	db := testDB(t)
	conn := testConnection(t, db)
	lead := testLead(t, db, conn, "c1")

	err := UpdateLeadPipelineStage(db, lead.ID, "notartermin", models.StageFlags{Viewing: true, Financing: true, Notary: true})
	if err != nil {
		t.Fatalf("UpdateLeadPipelineStage failed: %v", err)
	}

	// Re-sync reporting an earlier stage must not clear any flag.
	err = UpdateLeadPipelineStage(db, lead.ID, "besichtigt", models.StageFlags{Viewing: true})
	if err != nil {
		t.Fatalf("UpdateLeadPipelineStage failed: %v", err)
	}

	stored, err := GetLead(db, lead.ID)
	if err != nil {
		t.Fatalf("GetLead failed: %v", err)
	}
	if stored.PipelineStage != "besichtigt" {
		t.Errorf("expected stage besichtigt, got %s", stored.PipelineStage)
	}
	if !stored.ReachedViewing || !stored.ReachedFinancing || !stored.ReachedNotary {
		t.Errorf("reached flags must never reset: viewing=%v financing=%v notary=%v",
			stored.ReachedViewing, stored.ReachedFinancing, stored.ReachedNotary)
	}
	if stored.ReachedPurchase {
		t.Error("purchase flag was never set and must stay false")
	}
}

func TestTouchLeadLastMessageNeverMovesBack(t *testing.T) {
	db := testDB(t)
	conn := testConnection(t, db)
	lead := testLead(t, db, conn, "c1")

	newer := time.Now()
	older := newer.Add(-time.Hour)

	if err := TouchLeadLastMessage(db, lead.ID, newer); err != nil {
		t.Fatalf("TouchLeadLastMessage failed: %v", err)
	}
	if err := TouchLeadLastMessage(db, lead.ID, older); err != nil {
		t.Fatalf("TouchLeadLastMessage failed: %v", err)
	}

	stored, err := GetLead(db, lead.ID)
	if err != nil {
		t.Fatalf("GetLead failed: %v", err)
	}
	if stored.LastMessageAt == nil {
		t.Fatal("expected last_message_at to be set")
	}
	if stored.LastMessageAt.Before(newer.Add(-time.Second)) {
		t.Errorf("last_message_at moved backwards: %s", stored.LastMessageAt)
	}
}

func TestFindLeadByEmailOrPhone(t *testing.T) {
	db := testDB(t)
	conn := testConnection(t, db)

	lead := &models.Lead{ConnectionID: conn.ID, ExternalID: "c1", Name: "Max", Email: "max@example.com", Phone: "+4917012345"}
	if err := UpsertLead(db, lead); err != nil {
		t.Fatalf("UpsertLead failed: %v", err)
	}

	byEmail, err := FindLeadByEmailOrPhone(db, "max@example.com", "")
	if err != nil {
		t.Fatalf("FindLeadByEmailOrPhone failed: %v", err)
	}
	if byEmail == nil || byEmail.ID != lead.ID {
		t.Error("expected match by email")
	}

	byPhone, err := FindLeadByEmailOrPhone(db, "", "+4917012345")
	if err != nil {
		t.Fatalf("FindLeadByEmailOrPhone failed: %v", err)
	}
	if byPhone == nil || byPhone.ID != lead.ID {
		t.Error("expected match by phone")
	}

	none, err := FindLeadByEmailOrPhone(db, "", "")
	if err != nil {
		t.Fatalf("FindLeadByEmailOrPhone failed: %v", err)
	}
	if none != nil {
		t.Error("empty keys must not match anything")
	}
}

func TestListLeadsForAnalysisWorkSet(t *testing.T) {
	db := testDB(t)
	conn := testConnection(t, db)

	fresh := testLead(t, db, conn, "c1")
	analyzed := testLead(t, db, conn, "c2")

	past := time.Now().Add(-time.Hour)
	if err := UpdateLeadAnalysis(db, analyzed.ID, 70, "warm", "Interessiert an 3-Zimmer-Wohnung", past); err != nil {
		t.Fatalf("UpdateLeadAnalysis failed: %v", err)
	}

	jobStart := time.Now()

	normal, err := ListLeadsForAnalysis(db, jobStart, false, 10)
	if err != nil {
		t.Fatalf("ListLeadsForAnalysis failed: %v", err)
	}
	if len(normal) != 1 || normal[0].ID != fresh.ID {
		t.Fatalf("normal run should only include never-analyzed leads, got %d", len(normal))
	}

	full, err := ListLeadsForAnalysis(db, jobStart, true, 10)
	if err != nil {
		t.Fatalf("ListLeadsForAnalysis failed: %v", err)
	}
	if len(full) != 2 {
		t.Fatalf("full rerun should include previously analyzed leads, got %d", len(full))
	}

	// Once analyzed within this run, a lead leaves the work set.
	if err := UpdateLeadAnalysis(db, fresh.ID, 50, "kalt", "", time.Now()); err != nil {
		t.Fatalf("UpdateLeadAnalysis failed: %v", err)
	}
	remaining, err := ListLeadsForAnalysis(db, jobStart, true, 10)
	if err != nil {
		t.Fatalf("ListLeadsForAnalysis failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != analyzed.ID {
		t.Fatalf("expected only the stale lead to remain, got %d", len(remaining))
	}
}

func TestUpsertLeadMissingExternalID(t *testing.T) {
	db := testDB(t)
	conn := testConnection(t, db)

	err := UpsertLead(db, &models.Lead{ConnectionID: conn.ID, Name: "Max"})
	if err == nil {
		t.Fatal("expected error for lead without external id")
	}
}

func TestCountLeadsByStatus(t *testing.T) {
	db := testDB(t)
	conn := testConnection(t, db)

	a := testLead(t, db, conn, "c1")
	testLead(t, db, conn, "c2")

	if err := UpdateLeadStatus(db, a.ID, models.LeadStatusBought); err != nil {
		t.Fatalf("UpdateLeadStatus failed: %v", err)
	}

	counts, err := CountLeadsByStatus(db)
	if err != nil {
		t.Fatalf("CountLeadsByStatus failed: %v", err)
	}
	if counts[models.LeadStatusBought] != 1 || counts[models.LeadStatusNew] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
}
