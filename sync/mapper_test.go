package sync

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/restriden/simpli-immo-sub001/crm"
	"github.com/restriden/simpli-immo-sub001/models"
)

func TestContactToLead(t *testing.T) {
	connectionID := uuid.New()
	raw := json.RawMessage(`{"id": "c1", "firstName": "Max", "lastName": "Mustermann", "tags": ["gekauft"]}`)
	contact := &crm.Contact{
		ID:        "c1",
		FirstName: "Max",
		LastName:  "Mustermann",
		Email:     " max@example.com ",
		Tags:      []string{"gekauft"},
		Raw:       raw,
	}

	lead, err := ContactToLead(connectionID, contact)
	if err != nil {
		t.Fatalf("ContactToLead() error = %v", err)
	}

	if lead.Name != "Max Mustermann" {
		t.Errorf("Name = %q, want %q", lead.Name, "Max Mustermann")
	}
	if lead.Status != models.LeadStatusBought {
		t.Errorf("Status = %q, want %q", lead.Status, models.LeadStatusBought)
	}
	if lead.Email != "max@example.com" {
		t.Errorf("Email = %q, want trimmed", lead.Email)
	}
	if lead.ExternalID != "c1" {
		t.Errorf("ExternalID = %q, want c1", lead.ExternalID)
	}
	if lead.RawPayload != string(raw) {
		t.Errorf("RawPayload not preserved")
	}
}

func TestContactToLeadNameFallbacks(t *testing.T) {
	connectionID := uuid.New()

	tests := []struct {
		name    string
		contact crm.Contact
		want    string
	}{
		{"first and last", crm.Contact{ID: "c1", FirstName: "Max", LastName: "Mustermann"}, "Max Mustermann"},
		{"first only", crm.Contact{ID: "c2", FirstName: "Max"}, "Max"},
		{"contact name", crm.Contact{ID: "c3", Name: "Erika Musterfrau"}, "Erika Musterfrau"},
		{"nothing", crm.Contact{ID: "c4"}, "Unbekannt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lead, err := ContactToLead(connectionID, &tt.contact)
			if err != nil {
				t.Fatalf("ContactToLead() error = %v", err)
			}
			if lead.Name != tt.want {
				t.Errorf("Name = %q, want %q", lead.Name, tt.want)
			}
		})
	}
}

func TestContactToLeadRequiresID(t *testing.T) {
	if _, err := ContactToLead(uuid.New(), &crm.Contact{FirstName: "Max"}); err == nil {
		t.Error("expected error for contact without id")
	}
}

func TestStatusFromTags(t *testing.T) {
	tests := []struct {
		name string
		tags []string
		want string
	}{
		{"bought", []string{"gekauft"}, models.LeadStatusBought},
		{"buyer english", []string{"serious buyer"}, models.LeadStatusBought},
		{"viewed", []string{"besichtigt"}, models.LeadStatusViewed},
		{"financing partner", []string{"simpli-lead"}, models.LeadStatusFinanced},
		{"contacted", []string{"Kontaktiert"}, models.LeadStatusContacted},
		{"bought wins over viewed", []string{"besichtigt", "gekauft"}, models.LeadStatusBought},
		{"viewed wins over financing", []string{"finanzierung", "besichtigt"}, models.LeadStatusViewed},
		{"no match", []string{"newsletter"}, models.LeadStatusNew},
		{"empty", nil, models.LeadStatusNew},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusFromTags(tt.tags); got != tt.want {
				t.Errorf("StatusFromTags(%v) = %q, want %q", tt.tags, got, tt.want)
			}
		})
	}
}

func TestMessageToMessage(t *testing.T) {
	leadID := uuid.New()
	msg, err := MessageToMessage(leadID, &crm.Message{
		ID:             "m1",
		ConversationID: "conv1",
		Direction:      "inbound",
		Type:           "SMS",
		Body:           "Wann ist die Besichtigung?",
		DateAdded:      "2026-03-01T10:30:00Z",
	})
	if err != nil {
		t.Fatalf("MessageToMessage() error = %v", err)
	}

	if msg.Direction != models.DirectionIncoming {
		t.Errorf("Direction = %q, want incoming", msg.Direction)
	}
	if msg.Channel != "sms" {
		t.Errorf("Channel = %q, want sms", msg.Channel)
	}
	if msg.Status != models.MessageStatusDelivered {
		t.Errorf("Status = %q, want delivered default", msg.Status)
	}
	want := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	if !msg.SentAt.Equal(want) {
		t.Errorf("SentAt = %v, want %v", msg.SentAt, want)
	}
}

func TestMessageToMessageBodyFallback(t *testing.T) {
	msg, err := MessageToMessage(uuid.New(), &crm.Message{ID: "m1", Message: "Hallo"})
	if err != nil {
		t.Fatalf("MessageToMessage() error = %v", err)
	}
	if msg.Content != "Hallo" {
		t.Errorf("Content = %q, want fallback to message field", msg.Content)
	}
}

func TestTaskToTodo(t *testing.T) {
	leadID := uuid.New()
	todo, err := TaskToTodo(leadID, &crm.Task{
		ID:      "t1",
		Title:   "<b>Dringend:</b> Unterlagen anfordern",
		Body:    "Gehaltsnachweise &amp; Schufa",
		DueDate: "2026-03-05T09:00:00Z",
	})
	if err != nil {
		t.Fatalf("TaskToTodo() error = %v", err)
	}

	if todo.Title != "Dringend: Unterlagen anfordern" {
		t.Errorf("Title = %q, want HTML stripped", todo.Title)
	}
	if todo.Description != "Gehaltsnachweise & Schufa" {
		t.Errorf("Description = %q, want entities decoded", todo.Description)
	}
	if todo.Type != models.TodoTypeDocuments {
		t.Errorf("Type = %q, want %q", todo.Type, models.TodoTypeDocuments)
	}
	if todo.Priority != models.PriorityUrgent {
		t.Errorf("Priority = %q, want %q", todo.Priority, models.PriorityUrgent)
	}
	if todo.Source != models.TodoSourceTask {
		t.Errorf("Source = %q, want %q", todo.Source, models.TodoSourceTask)
	}
	if todo.DueAt == nil {
		t.Fatal("DueAt = nil, want parsed due date")
	}
}

func TestEventToTodoDefaultsToViewing(t *testing.T) {
	leadID := uuid.New()
	todo, err := EventToTodo(leadID, &crm.CalendarEvent{
		ID:                "e1",
		StartTime:         "2026-03-10T14:00:00Z",
		AppointmentStatus: "showed",
	})
	if err != nil {
		t.Fatalf("EventToTodo() error = %v", err)
	}

	if todo.Title != "Besichtigung" {
		t.Errorf("Title = %q, want default", todo.Title)
	}
	if todo.Type != models.TodoTypeViewing {
		t.Errorf("Type = %q, want %q", todo.Type, models.TodoTypeViewing)
	}
	if !todo.Completed {
		t.Error("expected showed appointment to be completed")
	}
	if todo.Source != models.TodoSourceEvent {
		t.Errorf("Source = %q, want %q", todo.Source, models.TodoSourceEvent)
	}
}

func TestTodoTypeFromTitle(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Anruf wegen Exposé", models.TodoTypeCall},
		{"Follow-up call", models.TodoTypeCall},
		{"Besichtigung vereinbaren", models.TodoTypeViewing},
		{"Finanzierungsbestätigung prüfen", models.TodoTypeFinancing},
		{"Unterlagen nachreichen", models.TodoTypeDocuments},
		{"Nachfassen", models.TodoTypeMessage},
	}

	for _, tt := range tests {
		if got := TodoTypeFromTitle(tt.title); got != tt.want {
			t.Errorf("TodoTypeFromTitle(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}

func TestPriorityFromText(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"DRINGEND: Rückruf", models.PriorityUrgent},
		{"urgent follow-up", models.PriorityUrgent},
		{"Besichtigung planen", models.PriorityNormal},
	}

	for _, tt := range tests {
		if got := PriorityFromText(tt.text); got != tt.want {
			t.Errorf("PriorityFromText(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"<p>Hallo <b>Max</b></p>", "Hallo Max"},
		{"Kein HTML", "Kein HTML"},
		{"Zeile&nbsp;eins<br/>Zeile zwei", "Zeile eins Zeile zwei"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := StripHTML(tt.input); got != tt.want {
			t.Errorf("StripHTML(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
