// ABOUTME: Tests for the CRM webhook ingestor
// ABOUTME: Covers pings, unknown locations, and per-event-type dispatch
package web

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/restriden/simpli-immo-sub001/crm"
	"github.com/restriden/simpli-immo-sub001/db"
	"github.com/restriden/simpli-immo-sub001/models"
	"github.com/restriden/simpli-immo-sub001/queue"
)

func TestWebhookConnectivityChecks(t *testing.T) {
	f := newFixture(t)

	if w := f.request(http.MethodGet, "/webhooks/crm", ""); w.Code != http.StatusOK {
		t.Errorf("GET status = %d, want 200", w.Code)
	}
	if w := f.request(http.MethodHead, "/webhooks/crm", ""); w.Code != http.StatusOK {
		t.Errorf("HEAD status = %d, want 200", w.Code)
	}
}

func TestWebhookPingWithoutLocationWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.createConnection("loc-1")

	w := f.request(http.MethodPost, "/webhooks/crm", `{}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	events, err := db.ListRecentWebhookEvents(f.db, 10)
	if err != nil {
		t.Fatalf("ListRecentWebhookEvents failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("ping must not be logged, got %d events", len(events))
	}
	if tasks := f.recorder.drain(); len(tasks) != 0 {
		t.Errorf("ping must not publish tasks, got %+v", tasks)
	}
}

func TestWebhookUnknownLocationIsRejected(t *testing.T) {
	f := newFixture(t)
	f.createConnection("loc-1")

	payload := `{"type":"InboundMessage","locationId":"loc-fremd","contactId":"c1","messageId":"m-1","body":"Hallo"}`
	w := f.request(http.MethodPost, "/webhooks/crm", payload)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}

	events, err := db.ListRecentWebhookEvents(f.db, 10)
	if err != nil {
		t.Fatalf("ListRecentWebhookEvents failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("dropped event must not be logged, got %d events", len(events))
	}
}

func TestWebhookInboundMessage(t *testing.T) {
	f := newFixture(t)
	conn := f.createConnection("loc-1")
	lead := f.createLead(conn, "c1", "Max Mustermann")

	stale := &models.FollowupApproval{
		LeadID:    lead.ID,
		Draft:     "Alter Entwurf",
		ExpiresAt: time.Now().Add(48 * time.Hour),
	}
	if err := db.CreatePendingApproval(f.db, stale); err != nil {
		t.Fatalf("CreatePendingApproval failed: %v", err)
	}

	payload := `{"type":"InboundMessage","locationId":"loc-1","contactId":"c1","conversationId":"conv-1","messageId":"m-10","messageType":"SMS","direction":"inbound","body":"Ist die Wohnung noch frei?","dateAdded":"2026-04-01T09:30:00Z"}`
	w := f.request(http.MethodPost, "/webhooks/crm", payload)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	f.queue.Wait()

	stored, err := db.GetMessageByExternalID(f.db, "m-10")
	if err != nil || stored == nil {
		t.Fatalf("GetMessageByExternalID = %v, %v", stored, err)
	}
	if stored.Direction != models.DirectionIncoming {
		t.Errorf("direction = %q, want incoming", stored.Direction)
	}
	if stored.Content != "Ist die Wohnung noch frei?" {
		t.Errorf("content = %q", stored.Content)
	}
	if stored.SentAt.UTC().Format(time.RFC3339) != "2026-04-01T09:30:00Z" {
		t.Errorf("sent_at = %v, want the pushed timestamp", stored.SentAt)
	}

	lead, err = db.GetLead(f.db, lead.ID)
	if err != nil {
		t.Fatalf("GetLead failed: %v", err)
	}
	if lead.LastMessageAt == nil {
		t.Error("expected last_message_at to be touched")
	}

	// The conversation moved on, so the old draft must be gone.
	if old, err := db.GetApproval(f.db, stale.ID); err != nil || old != nil {
		t.Errorf("stale approval still present: %v, %v", old, err)
	}

	tasks := f.recorder.drain()
	kinds := make(map[string]queue.Task, len(tasks))
	for _, task := range tasks {
		kinds[task.Kind] = task
	}
	if len(tasks) != 2 {
		t.Fatalf("published %d tasks, want re-analysis and draft regeneration: %+v", len(tasks), tasks)
	}
	for _, kind := range []string{models.JobKindLeadAnalysis, models.JobKindFollowupDrafts} {
		task, ok := kinds[kind]
		if !ok {
			t.Fatalf("missing %s task in %+v", kind, tasks)
		}
		if task.LeadID != lead.ID.String() {
			t.Errorf("%s task lead = %q, want %s", kind, task.LeadID, lead.ID)
		}
		if task.JobID != "" {
			t.Errorf("%s task must not carry a job id", kind)
		}
	}

	events, err := db.ListRecentWebhookEvents(f.db, 10)
	if err != nil {
		t.Fatalf("ListRecentWebhookEvents failed: %v", err)
	}
	if len(events) != 1 || events[0].EventType != crm.EventInboundMessage || events[0].ExternalID != "m-10" {
		t.Errorf("unexpected event log: %+v", events)
	}
}

func TestWebhookOutboundMessagePublishesKnowledgeTask(t *testing.T) {
	f := newFixture(t)
	conn := f.createConnection("loc-1")
	lead := f.createLead(conn, "c1", "Max Mustermann")

	payload := `{"type":"OutboundMessage","locationId":"loc-1","contactId":"c1","messageId":"m-20","messageType":"SMS","direction":"outbound","body":"Die Wohnung hat drei Zimmer.","dateAdded":"2026-04-01T10:00:00Z"}`
	w := f.request(http.MethodPost, "/webhooks/crm", payload)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	f.queue.Wait()

	stored, err := db.GetMessageByExternalID(f.db, "m-20")
	if err != nil || stored == nil {
		t.Fatalf("GetMessageByExternalID = %v, %v", stored, err)
	}
	if stored.Direction != models.DirectionOutgoing {
		t.Errorf("direction = %q, want outgoing", stored.Direction)
	}

	tasks := f.recorder.drain()
	if len(tasks) != 1 {
		t.Fatalf("published %d tasks, want 1: %+v", len(tasks), tasks)
	}
	if tasks[0].Kind != queue.TaskKindKnowledge {
		t.Errorf("task kind = %q, want %s", tasks[0].Kind, queue.TaskKindKnowledge)
	}
	if tasks[0].LeadID != lead.ID.String() || tasks[0].MessageID != "m-20" {
		t.Errorf("unexpected knowledge task: %+v", tasks[0])
	}
}

func TestWebhookMessageForUnknownContactIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	f.createConnection("loc-1")

	payload := `{"type":"InboundMessage","locationId":"loc-1","contactId":"c-ghost","messageId":"m-30","body":"Hallo?"}`
	w := f.request(http.MethodPost, "/webhooks/crm", payload)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	f.queue.Wait()

	if lead, err := db.GetLeadByExternalID(f.db, "c-ghost"); err != nil || lead != nil {
		t.Errorf("no lead must be created, got %v, %v", lead, err)
	}
	if tasks := f.recorder.drain(); len(tasks) != 0 {
		t.Errorf("no tasks expected, got %+v", tasks)
	}

	// Handled events are logged even when nothing downstream could run.
	events, err := db.ListRecentWebhookEvents(f.db, 10)
	if err != nil {
		t.Fatalf("ListRecentWebhookEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected 1 logged event, got %d", len(events))
	}
}

func TestWebhookContactCreateUpsertsAndMatchesListing(t *testing.T) {
	f := newFixture(t)
	f.createConnection("loc-1")

	payload := `{"type":"ContactCreate","locationId":"loc-1","id":"c-neu","firstName":"Erika","lastName":"Musterfrau","email":"erika@example.com","tags":["besichtigt"],"customFields":[{"id":"f1","value":"Gartenweg 12"}]}`
	w := f.request(http.MethodPost, "/webhooks/crm", payload)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	lead, err := db.GetLeadByExternalID(f.db, "c-neu")
	if err != nil || lead == nil {
		t.Fatalf("GetLeadByExternalID = %v, %v", lead, err)
	}
	if lead.Name != "Erika Musterfrau" {
		t.Errorf("name = %q", lead.Name)
	}
	if lead.Status != models.LeadStatusViewed {
		t.Errorf("status = %q, want besichtigt from tags", lead.Status)
	}
	if lead.ListingID == nil {
		t.Fatal("expected listing assignment from the custom field label")
	}
	listing, err := db.GetListing(f.db, *lead.ListingID)
	if err != nil || listing == nil {
		t.Fatalf("GetListing = %v, %v", listing, err)
	}
	if listing.Name != "Gartenweg 12" {
		t.Errorf("listing name = %q", listing.Name)
	}
}

func TestWebhookTaskAndAppointmentEventsCreateTodos(t *testing.T) {
	f := newFixture(t)
	conn := f.createConnection("loc-1")
	lead := f.createLead(conn, "c1", "Max Mustermann")

	task := `{"type":"TaskCreate","locationId":"loc-1","id":"t-1","contactId":"c1","title":"Unterlagen anfordern","dueDate":"2026-05-01T10:00:00Z"}`
	if w := f.request(http.MethodPost, "/webhooks/crm", task); w.Code != http.StatusOK {
		t.Fatalf("task status = %d, want 200", w.Code)
	}

	appointment := `{"type":"AppointmentCreate","locationId":"loc-1","id":"e-1","contactId":"c1","title":"Besichtigung Gartenweg","startTime":"2026-05-02T15:00:00Z","appointmentStatus":"confirmed"}`
	if w := f.request(http.MethodPost, "/webhooks/crm", appointment); w.Code != http.StatusOK {
		t.Fatalf("appointment status = %d, want 200", w.Code)
	}

	todos, err := db.ListTodos(f.db, &lead.ID, true, 10)
	if err != nil {
		t.Fatalf("ListTodos failed: %v", err)
	}
	if len(todos) != 2 {
		t.Fatalf("expected 2 todos, got %d", len(todos))
	}

	byExternal := make(map[string]models.Todo, len(todos))
	for _, todo := range todos {
		byExternal[todo.ExternalID] = todo
	}
	if todo := byExternal["t-1"]; todo.Source != models.TodoSourceTask || todo.Type != models.TodoTypeDocuments || todo.DueAt == nil {
		t.Errorf("unexpected task todo: %+v", todo)
	}
	if todo := byExternal["e-1"]; todo.Source != models.TodoSourceEvent || todo.Type != models.TodoTypeViewing {
		t.Errorf("unexpected appointment todo: %+v", todo)
	}
}

func TestWebhookOpportunityStageUpdate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/opportunities/pipelines" {
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"pipelines":[{"id":"p1","name":"Verkauf","stages":[{"id":"s1","name":"Besichtigung"},{"id":"s2","name":"Closed Won"}]}]}`)
	}))
	defer server.Close()

	f := newFixtureWithCRM(t, server.URL)
	conn := f.createConnection("loc-1")
	lead := f.createLead(conn, "c1", "Max Mustermann")

	payload := `{"type":"OpportunityStageUpdate","locationId":"loc-1","id":"o-1","contactId":"c1","pipelineId":"p1","pipelineStageId":"s2","status":"won"}`
	w := f.request(http.MethodPost, "/webhooks/crm", payload)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	lead, err := db.GetLead(f.db, lead.ID)
	if err != nil {
		t.Fatalf("GetLead failed: %v", err)
	}
	if lead.PipelineStage != "gekauft" {
		t.Errorf("pipeline stage = %q, want gekauft", lead.PipelineStage)
	}
	if !lead.ReachedViewing || !lead.ReachedFinancing || !lead.ReachedNotary || !lead.ReachedPurchase {
		t.Errorf("won stage must raise all flags: %+v", lead)
	}
	if lead.Status != models.LeadStatusBought {
		t.Errorf("status = %q, want gekauft", lead.Status)
	}
}
