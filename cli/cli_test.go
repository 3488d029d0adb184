// ABOUTME: Tests for the CLI commands
// ABOUTME: Runs command functions against a temp SQLite database
package cli

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/restriden/simpli-immo-sub001/config"
	"github.com/restriden/simpli-immo-sub001/db"
	"github.com/restriden/simpli-immo-sub001/models"
)

func setupTestCLI(t *testing.T) *sql.DB {
	t.Helper()

	tmpDB, err := os.CreateTemp("", "test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	_ = tmpDB.Close()
	t.Cleanup(func() { _ = os.Remove(tmpDB.Name()) })

	database, err := db.OpenSQLite(tmpDB.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = database.Close() })

	return database
}

func testConfig() *config.Config {
	return &config.Config{
		CRMAPIVersion:      "2021-07-28",
		BatchSize:          5,
		ClaimTTL:           time.Minute,
		ApprovalTTL:        48 * time.Hour,
		FollowupStaleAfter: 72 * time.Hour,
	}
}

func seedTestConnection(t *testing.T, database *sql.DB) *models.Connection {
	t.Helper()

	conn := &models.Connection{
		UserID:       "user-1",
		LocationID:   "loc-" + uuid.NewString()[:8],
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	if err := db.CreateConnection(database, conn); err != nil {
		t.Fatalf("CreateConnection failed: %v", err)
	}
	return conn
}

func seedTestLead(t *testing.T, database *sql.DB, conn *models.Connection, name string) *models.Lead {
	t.Helper()

	lead := &models.Lead{
		ConnectionID: conn.ID,
		ExternalID:   "contact-" + uuid.NewString()[:8],
		Name:         name,
		Email:        strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com",
		Status:       models.LeadStatusNew,
	}
	if err := db.UpsertLead(database, lead); err != nil {
		t.Fatalf("UpsertLead failed: %v", err)
	}
	return lead
}

func TestLeadsCommand(t *testing.T) {
	database := setupTestCLI(t)

	if err := LeadsCommand(database, []string{}); err != nil {
		t.Errorf("LeadsCommand on empty db failed: %v", err)
	}

	conn := seedTestConnection(t, database)
	lead := seedTestLead(t, database, conn, "Anna Schmidt")

	if err := LeadsCommand(database, []string{}); err != nil {
		t.Errorf("LeadsCommand failed: %v", err)
	}
	if err := LeadsCommand(database, []string{"--query", "Anna"}); err != nil {
		t.Errorf("LeadsCommand with query failed: %v", err)
	}
	if err := LeadsCommand(database, []string{"show", lead.ID.String()}); err != nil {
		t.Errorf("LeadsCommand show failed: %v", err)
	}

	if err := LeadsCommand(database, []string{"show", uuid.NewString()}); err == nil {
		t.Error("LeadsCommand show should fail for an unknown lead")
	}
}

func TestListingsAddAndList(t *testing.T) {
	database := setupTestCLI(t)

	err := ListingsCommand(database, []string{"add", "--name", "Gartenstr. 5", "--city", "Berlin", "--price", "45000000", "--rooms", "3.5"})
	if err != nil {
		t.Fatalf("ListingsCommand add failed: %v", err)
	}

	listings, err := db.ListListings(database)
	if err != nil {
		t.Fatalf("ListListings failed: %v", err)
	}
	if len(listings) != 1 || listings[0].Name != "Gartenstr. 5" {
		t.Errorf("Expected the created listing, got %+v", listings)
	}

	if err := ListingsCommand(database, []string{}); err != nil {
		t.Errorf("ListingsCommand list failed: %v", err)
	}

	if err := ListingsCommand(database, []string{"add"}); err == nil {
		t.Error("ListingsCommand add without --name should fail")
	}
}

func TestListingsMerge(t *testing.T) {
	database := setupTestCLI(t)
	conn := seedTestConnection(t, database)
	lead := seedTestLead(t, database, conn, "Max Weber")

	source := &models.Listing{Name: "Hauptstrasse 1", Status: models.ListingStatusActive}
	target := &models.Listing{Name: "Hauptstr. 1", Status: models.ListingStatusActive}
	if err := db.CreateListing(database, source); err != nil {
		t.Fatalf("CreateListing failed: %v", err)
	}
	if err := db.CreateListing(database, target); err != nil {
		t.Fatalf("CreateListing failed: %v", err)
	}
	if err := db.AssignLeadListing(database, lead.ID, source.ID); err != nil {
		t.Fatalf("AssignLeadListing failed: %v", err)
	}

	err := ListingsCommand(database, []string{"merge", source.ID.String(), target.ID.String()})
	if err != nil {
		t.Fatalf("ListingsCommand merge failed: %v", err)
	}

	gone, err := db.GetListing(database, source.ID)
	if err != nil {
		t.Fatalf("GetListing failed: %v", err)
	}
	if gone != nil {
		t.Error("Source listing should be deleted after merge")
	}

	moved, err := db.GetLead(database, lead.ID)
	if err != nil {
		t.Fatalf("GetLead failed: %v", err)
	}
	if moved.ListingID == nil || *moved.ListingID != target.ID {
		t.Errorf("Lead should point at the target listing, got %v", moved.ListingID)
	}
}

func TestTodosCompleteCommand(t *testing.T) {
	database := setupTestCLI(t)
	conn := seedTestConnection(t, database)
	lead := seedTestLead(t, database, conn, "Lisa Braun")

	todo := &models.Todo{
		LeadID:   &lead.ID,
		Title:    "Unterlagen senden",
		Type:     models.TodoTypeDocuments,
		Priority: models.PriorityNormal,
		Source:   models.TodoSourceManual,
	}
	if err := db.CreateTodo(database, todo); err != nil {
		t.Fatalf("CreateTodo failed: %v", err)
	}

	cfg := testConfig()
	if err := TodosCommand(database, cfg, []string{}); err != nil {
		t.Errorf("TodosCommand list failed: %v", err)
	}

	if err := TodosCommand(database, cfg, []string{"complete", todo.ID.String()}); err != nil {
		t.Fatalf("TodosCommand complete failed: %v", err)
	}

	done, err := db.GetTodo(database, todo.ID)
	if err != nil {
		t.Fatalf("GetTodo failed: %v", err)
	}
	if !done.Completed || done.CompletedAt == nil {
		t.Error("Todo should be completed with a timestamp")
	}

	// Completing again is a no-op, not an error.
	if err := TodosCommand(database, cfg, []string{"complete", todo.ID.String()}); err != nil {
		t.Errorf("Completing an already completed todo failed: %v", err)
	}
}

func TestApprovalsRejectCommand(t *testing.T) {
	database := setupTestCLI(t)
	conn := seedTestConnection(t, database)
	lead := seedTestLead(t, database, conn, "Tom Fischer")

	approval := &models.FollowupApproval{
		LeadID:    lead.ID,
		Draft:     "Hallo Tom, gibt es Neuigkeiten?",
		Reasoning: "Keine Antwort seit einer Woche",
	}
	if err := db.CreatePendingApproval(database, approval); err != nil {
		t.Fatalf("CreatePendingApproval failed: %v", err)
	}

	cfg := testConfig()
	if err := ApprovalsCommand(database, cfg, []string{}); err != nil {
		t.Errorf("ApprovalsCommand list failed: %v", err)
	}

	if err := ApprovalsCommand(database, cfg, []string{"reject", approval.ID.String()}); err != nil {
		t.Fatalf("ApprovalsCommand reject failed: %v", err)
	}

	decided, err := db.GetApproval(database, approval.ID)
	if err != nil {
		t.Fatalf("GetApproval failed: %v", err)
	}
	if decided.Status != models.ApprovalStatusRejected {
		t.Errorf("Expected status rejected, got %s", decided.Status)
	}
}

func TestApprovalsApproveCommand(t *testing.T) {
	crmServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/conversations/messages" {
			t.Errorf("Unexpected CRM call: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"conversationId": "conv-1", "messageId": "msg-99"})
	}))
	defer crmServer.Close()

	database := setupTestCLI(t)
	conn := seedTestConnection(t, database)
	lead := seedTestLead(t, database, conn, "Eva Keller")

	approval := &models.FollowupApproval{
		LeadID: lead.ID,
		Draft:  "Hallo Eva, haben Sie die Unterlagen erhalten?",
	}
	if err := db.CreatePendingApproval(database, approval); err != nil {
		t.Fatalf("CreatePendingApproval failed: %v", err)
	}

	cfg := testConfig()
	cfg.CRMBaseURL = crmServer.URL

	if err := ApprovalsCommand(database, cfg, []string{"approve", approval.ID.String()}); err != nil {
		t.Fatalf("ApprovalsCommand approve failed: %v", err)
	}

	sent, err := db.GetApproval(database, approval.ID)
	if err != nil {
		t.Fatalf("GetApproval failed: %v", err)
	}
	if sent.Status != models.ApprovalStatusSent {
		t.Errorf("Expected status sent, got %s", sent.Status)
	}
	if sent.SentAt == nil {
		t.Error("SentAt should be stamped")
	}

	messages, err := db.ListMessagesByLead(database, lead.ID, 10)
	if err != nil {
		t.Fatalf("ListMessagesByLead failed: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(messages))
	}
	if messages[0].ExternalID != "msg-99" || messages[0].Direction != models.DirectionOutgoing {
		t.Errorf("Unexpected message row: %+v", messages[0])
	}

	refreshed, err := db.GetLead(database, lead.ID)
	if err != nil {
		t.Fatalf("GetLead failed: %v", err)
	}
	if refreshed.LastMessageAt == nil {
		t.Error("Lead last message timestamp should be touched")
	}
}

func TestApprovalsApproveExpired(t *testing.T) {
	database := setupTestCLI(t)
	conn := seedTestConnection(t, database)
	lead := seedTestLead(t, database, conn, "Jan Vogel")

	approval := &models.FollowupApproval{
		LeadID:    lead.ID,
		Draft:     "Hallo Jan",
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	if err := db.CreatePendingApproval(database, approval); err != nil {
		t.Fatalf("CreatePendingApproval failed: %v", err)
	}

	err := ApprovalsCommand(database, testConfig(), []string{"approve", approval.ID.String()})
	if err == nil {
		t.Fatal("Approving an expired draft should fail")
	}
	if !strings.Contains(err.Error(), "expired") {
		t.Errorf("Expected expiry error, got %v", err)
	}

	// The row is untouched so the sweep can expire it later.
	unchanged, err := db.GetApproval(database, approval.ID)
	if err != nil {
		t.Fatalf("GetApproval failed: %v", err)
	}
	if unchanged.Status != models.ApprovalStatusPending {
		t.Errorf("Expected status pending, got %s", unchanged.Status)
	}
}

func TestJobsStartEmbedded(t *testing.T) {
	database := setupTestCLI(t)

	cfg := testConfig()
	cfg.LLMAPIKey = "test-key"
	cfg.LLMModel = "test-model"

	// No listings exist, so the run completes without touching the LLM.
	if err := JobsCommand(database, cfg, []string{"start", models.JobKindListingTranslation}); err != nil {
		t.Fatalf("JobsCommand start failed: %v", err)
	}

	runs, err := db.ListRecentAnalysisJobs(database, 5)
	if err != nil {
		t.Fatalf("ListRecentAnalysisJobs failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("Expected 1 job, got %d", len(runs))
	}
	if runs[0].Status != models.JobStatusCompleted {
		t.Errorf("Expected completed job, got %s", runs[0].Status)
	}

	if err := JobsCommand(database, cfg, []string{}); err != nil {
		t.Errorf("JobsCommand list failed: %v", err)
	}

	if err := JobsCommand(database, cfg, []string{"start", "bogus"}); err == nil {
		t.Error("JobsCommand should reject an unknown kind")
	}
}

func TestJobsStartRequiresLLMKey(t *testing.T) {
	database := setupTestCLI(t)

	err := JobsCommand(database, testConfig(), []string{"start", models.JobKindLeadAnalysis})
	if err == nil {
		t.Error("JobsCommand start should fail without an LLM API key")
	}
}

func TestConnectionsCommand(t *testing.T) {
	database := setupTestCLI(t)

	if err := ConnectionsCommand(database, []string{}); err != nil {
		t.Errorf("ConnectionsCommand on empty db failed: %v", err)
	}

	conn := seedTestConnection(t, database)

	if err := ConnectionsCommand(database, []string{}); err != nil {
		t.Errorf("ConnectionsCommand failed: %v", err)
	}

	if err := ConnectionsCommand(database, []string{"deactivate", conn.ID.String()}); err != nil {
		t.Fatalf("ConnectionsCommand deactivate failed: %v", err)
	}

	off, err := db.GetConnection(database, conn.ID)
	if err != nil {
		t.Fatalf("GetConnection failed: %v", err)
	}
	if off.IsActive {
		t.Error("Connection should be deactivated")
	}

	if err := ConnectionsCommand(database, []string{"--all"}); err != nil {
		t.Errorf("ConnectionsCommand --all failed: %v", err)
	}
}

func TestKnowledgeCommand(t *testing.T) {
	database := setupTestCLI(t)

	err := KnowledgeCommand(database, []string{"add", "--question", "Gibt es einen Aufzug?", "--answer", "Ja, seit 2019."})
	if err != nil {
		t.Fatalf("KnowledgeCommand add failed: %v", err)
	}

	entries, err := db.ListKnowledgeEntries(database, nil, 10)
	if err != nil {
		t.Fatalf("ListKnowledgeEntries failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Source != models.KnowledgeSourceManual {
		t.Errorf("Expected one manual entry, got %+v", entries)
	}

	if err := KnowledgeCommand(database, []string{"search", "Aufzug"}); err != nil {
		t.Errorf("KnowledgeCommand search failed: %v", err)
	}

	if err := KnowledgeCommand(database, []string{"add", "--question", "nur Frage"}); err == nil {
		t.Error("KnowledgeCommand add without --answer should fail")
	}
}

func TestSyncCommandValidation(t *testing.T) {
	database := setupTestCLI(t)
	cfg := testConfig()

	if err := SyncCommand(database, cfg, []string{"--type", "bogus"}); err == nil {
		t.Error("SyncCommand should reject an unknown sync type")
	}

	if err := SyncCommand(database, cfg, []string{"--connection", "not-a-uuid"}); err == nil {
		t.Error("SyncCommand should reject a malformed connection ID")
	}
}

func TestVizCommands(t *testing.T) {
	database := setupTestCLI(t)
	conn := seedTestConnection(t, database)
	seedTestLead(t, database, conn, "Nora Haas")

	if err := VizDashboardCommand(database, []string{}); err != nil {
		t.Errorf("VizDashboardCommand failed: %v", err)
	}

	outPath := filepath.Join(t.TempDir(), "funnel.dot")
	if err := VizFunnelCommand(database, []string{"--output", outPath}); err != nil {
		t.Fatalf("VizFunnelCommand failed: %v", err)
	}

	dot, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("Reading funnel output failed: %v", err)
	}
	if !strings.Contains(string(dot), "digraph") {
		t.Error("Funnel output should be a DOT digraph")
	}
	if !strings.Contains(string(dot), models.LeadStatusNew) {
		t.Error("Funnel output should include the first stage")
	}
}
