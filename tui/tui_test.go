// ABOUTME: Tests for the TUI dashboard model
// ABOUTME: Verifies rendering, key handling, and sync trigger state
package tui

import (
	"database/sql"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/restriden/simpli-immo-sub001/db"
	"github.com/restriden/simpli-immo-sub001/models"
	"github.com/restriden/simpli-immo-sub001/sync"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	database, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test db: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	if err := db.InitSchema(database); err != nil {
		t.Fatalf("Failed to init schema: %v", err)
	}
	return database
}

func seedConnection(t *testing.T, database *sql.DB, locationID string) models.Connection {
	t.Helper()

	conn := &models.Connection{
		UserID:       "user-1",
		LocationID:   locationID,
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	if err := db.CreateConnection(database, conn); err != nil {
		t.Fatalf("Failed to seed connection: %v", err)
	}
	return *conn
}

func TestDashboardRenderingEmpty(t *testing.T) {
	m := NewModel(nil, nil)

	output := m.View()
	if output == "" {
		t.Fatal("Dashboard view should not be empty")
	}

	if !strings.Contains(output, "Immosync Dashboard") {
		t.Error("Dashboard should contain title")
	}
	if !strings.Contains(output, "No connections") {
		t.Error("Dashboard should hint at connecting when no connections exist")
	}
	if !strings.Contains(output, "Quit") {
		t.Error("Dashboard should show the help line")
	}
}

func TestDashboardRenderingWithData(t *testing.T) {
	connID := uuid.New()
	leadID := uuid.New()
	lastSync := time.Now().Add(-10 * time.Minute)

	m := NewModel(nil, nil)
	m.connections = []models.Connection{
		{ID: connID, LocationID: "loc-render", IsActive: true, LastSyncAt: &lastSync},
	}
	m.runs = []models.SyncRun{
		{ID: uuid.New(), ConnectionID: connID, SyncType: models.SyncTypeFull, Status: models.SyncRunStatusSuccess, StartedAt: time.Now().Add(-2 * time.Hour)},
		{ID: uuid.New(), ConnectionID: connID, SyncType: models.SyncTypeContacts, Status: models.SyncRunStatusFailed, ErrorDetail: "token refresh failed", StartedAt: time.Now().Add(-3 * time.Hour)},
	}
	m.jobs = []models.AnalysisJob{
		{ID: uuid.New(), Kind: models.JobKindLeadAnalysis, Status: models.JobStatusRunning, TotalItems: 10, AnalyzedCount: 4},
	}
	m.approvals = []models.FollowupApproval{
		{ID: uuid.New(), LeadID: leadID, Draft: "Hallo Anna, haben Sie noch Interesse?", Status: models.ApprovalStatusPending, ExpiresAt: time.Now().Add(3 * time.Hour)},
	}
	m.leadNames = map[uuid.UUID]string{leadID: "Anna Schmidt"}

	output := m.View()

	if !strings.Contains(output, "loc-render") {
		t.Error("Dashboard should list the connection")
	}
	if !strings.Contains(output, "active") {
		t.Error("Dashboard should mark the connection active")
	}
	if !strings.Contains(output, "token refresh failed") {
		t.Error("Dashboard should surface sync run errors")
	}
	if !strings.Contains(output, models.JobKindLeadAnalysis) {
		t.Error("Dashboard should show the running job")
	}
	if !strings.Contains(output, "4/10") {
		t.Error("Dashboard should show job progress")
	}
	if !strings.Contains(output, "Anna Schmidt") {
		t.Error("Dashboard should resolve lead names on approvals")
	}
}

func TestKeyNavigation(t *testing.T) {
	m := NewModel(nil, nil)
	m.connections = []models.Connection{
		{ID: uuid.New(), LocationID: "loc-a", IsActive: true},
		{ID: uuid.New(), LocationID: "loc-b", IsActive: true},
	}

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = updated.(Model)
	if m.selected != 1 {
		t.Errorf("Expected selected=1 after down, got %d", m.selected)
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = updated.(Model)
	if m.selected != 1 {
		t.Errorf("Selection should clamp at the last connection, got %d", m.selected)
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	m = updated.(Model)
	if m.selected != 0 {
		t.Errorf("Expected selected=0 after up, got %d", m.selected)
	}
}

func TestSyncTriggerGuards(t *testing.T) {
	m := NewModel(nil, nil)

	// No connections: enter does nothing.
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)
	if cmd != nil || m.syncing {
		t.Error("Enter without connections should not start a sync")
	}

	// Inactive connection: enter logs instead of syncing.
	m.connections = []models.Connection{{ID: uuid.New(), LocationID: "loc-off", IsActive: false}}
	updated, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)
	if cmd != nil || m.syncing {
		t.Error("Enter on an inactive connection should not start a sync")
	}
	if len(m.messages) == 0 {
		t.Error("Should log why the sync did not start")
	}
}

func TestSyncTriggerStartsSync(t *testing.T) {
	m := NewModel(nil, &sync.Syncer{})
	m.connections = []models.Connection{{ID: uuid.New(), LocationID: "loc-on", IsActive: true}}

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)
	if cmd == nil {
		t.Fatal("Enter on an active connection should return a sync command")
	}
	if !m.syncing {
		t.Error("Model should be marked as syncing")
	}

	// A second trigger while syncing is ignored.
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	if cmd != nil {
		t.Error("Sync all should be ignored while a sync is running")
	}
}

func TestHandleSyncDone(t *testing.T) {
	m := NewModel(nil, nil)
	m.syncing = true

	msg := syncDoneMsg{
		results: []sync.Result{
			{LocationID: "loc-ok", Counts: map[string]sync.EntityCount{"contacts": {Synced: 7}}},
			{LocationID: "loc-bad", Err: &testError{msg: "boom"}},
		},
	}

	updated, cmd := m.Update(msg)
	m = updated.(Model)

	if m.syncing {
		t.Error("Sync should not be in progress after completion")
	}
	if cmd == nil {
		t.Error("Completion should trigger a data reload")
	}

	joined := strings.Join(m.messages, "\n")
	if !strings.Contains(joined, "✓ loc-ok: 7 items synced") {
		t.Errorf("Expected success message, got %q", joined)
	}
	if !strings.Contains(joined, "✗ loc-bad") {
		t.Errorf("Expected failure message, got %q", joined)
	}
}

func TestLoadData(t *testing.T) {
	database := setupTestDB(t)
	conn := seedConnection(t, database, "loc-load")

	m := NewModel(database, nil)
	msg := m.loadData()()

	data, ok := msg.(dataMsg)
	if !ok {
		t.Fatalf("Expected dataMsg, got %T", msg)
	}
	if data.err != nil {
		t.Fatalf("loadData failed: %v", data.err)
	}
	if len(data.connections) != 1 || data.connections[0].LocationID != conn.LocationID {
		t.Errorf("Expected the seeded connection, got %+v", data.connections)
	}

	m = m.handleData(data)
	if len(m.connections) != 1 {
		t.Error("handleData should apply the snapshot")
	}
	if m.err != nil {
		t.Errorf("handleData should clear the error, got %v", m.err)
	}
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		name     string
		done     int
		total    int
		expected string
	}{
		{"empty", 0, 0, "░░░░░░░░░░"},
		{"half", 5, 10, "█████░░░░░"},
		{"full", 10, 10, "██████████"},
		{"overshoot", 12, 10, "██████████"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := progressBar(tt.done, tt.total); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestFormatTimeSince(t *testing.T) {
	tests := []struct {
		name     string
		time     time.Time
		expected string
	}{
		{"just now", time.Now().Add(-30 * time.Second), "just now"},
		{"minutes ago", time.Now().Add(-5 * time.Minute), "5 minutes ago"},
		{"hours ago", time.Now().Add(-2 * time.Hour), "2 hours ago"},
		{"days ago", time.Now().Add(-3 * 24 * time.Hour), "3 days ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatTimeSince(tt.time); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestFormatUntil(t *testing.T) {
	tests := []struct {
		name     string
		time     time.Time
		expected string
	}{
		{"overdue", time.Now().Add(-time.Minute), "now"},
		{"minutes", time.Now().Add(30*time.Minute + 30*time.Second), "in 30 minutes"},
		{"hours", time.Now().Add(3*time.Hour + time.Minute), "in 3 hours"},
		{"days", time.Now().Add(49 * time.Hour), "in 2 days"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatUntil(tt.time); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestActivityLogCap(t *testing.T) {
	m := NewModel(nil, nil)
	for i := 0; i < activityLogSize+2; i++ {
		m.addMessage("message")
	}

	if len(m.messages) != activityLogSize {
		t.Errorf("Expected log capped at %d, got %d", activityLogSize, len(m.messages))
	}
}

type testError struct {
	msg string
}

func (e *testError) Error() string {
	return e.msg
}
