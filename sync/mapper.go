// ABOUTME: Pure mapping from CRM payloads to internal models
// ABOUTME: Missing optional fields get defaults, only a missing id is an error
package sync

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/restriden/simpli-immo-sub001/crm"
	"github.com/restriden/simpli-immo-sub001/models"
)

// statusRules map tag substrings to lead statuses. Order matters: the first
// matching rule wins, so later-funnel tags take precedence.
var statusRules = []struct {
	keyword string
	status  string
}{
	{"gekauft", models.LeadStatusBought},
	{"käufer", models.LeadStatusBought},
	{"kaeufer", models.LeadStatusBought},
	{"buyer", models.LeadStatusBought},
	{"purchased", models.LeadStatusBought},
	{"besichtigt", models.LeadStatusViewed},
	{"viewed", models.LeadStatusViewed},
	{"viewing", models.LeadStatusViewed},
	{"finanzierung", models.LeadStatusFinanced},
	{"financed", models.LeadStatusFinanced},
	{"financing", models.LeadStatusFinanced},
	{"simpli", models.LeadStatusFinanced},
	{"kontaktiert", models.LeadStatusContacted},
	{"contacted", models.LeadStatusContacted},
}

// todoTypeRules map title keywords to todo types, first match wins.
var todoTypeRules = []struct {
	keyword  string
	todoType string
}{
	{"anruf", models.TodoTypeCall},
	{"call", models.TodoTypeCall},
	{"besichtigung", models.TodoTypeViewing},
	{"viewing", models.TodoTypeViewing},
	{"finanzierung", models.TodoTypeFinancing},
	{"financ", models.TodoTypeFinancing},
	{"unterlagen", models.TodoTypeDocuments},
	{"document", models.TodoTypeDocuments},
}

var urgentKeywords = []string{"dringend", "urgent", "high", "hoch"}

// ContactToLead maps a CRM contact onto a lead owned by the connection.
func ContactToLead(connectionID uuid.UUID, contact *crm.Contact) (*models.Lead, error) {
	if contact.ID == "" {
		return nil, fmt.Errorf("contact has no external id")
	}

	return &models.Lead{
		ConnectionID: connectionID,
		ExternalID:   contact.ID,
		Name:         contactName(contact),
		Email:        strings.TrimSpace(contact.Email),
		Phone:        strings.TrimSpace(contact.Phone),
		Source:       strings.TrimSpace(contact.Source),
		Status:       StatusFromTags(contact.Tags),
		Tags:         strings.Join(contact.Tags, ","),
		RawPayload:   string(contact.Raw),
	}, nil
}

func contactName(contact *crm.Contact) string {
	name := strings.TrimSpace(strings.TrimSpace(contact.FirstName) + " " + strings.TrimSpace(contact.LastName))
	if name == "" {
		name = strings.TrimSpace(contact.Name)
	}
	if name == "" {
		name = "Unbekannt"
	}
	return name
}

// StatusFromTags derives the lead status from CRM tags.
func StatusFromTags(tags []string) string {
	for _, rule := range statusRules {
		for _, tag := range tags {
			if strings.Contains(strings.ToLower(tag), rule.keyword) {
				return rule.status
			}
		}
	}
	return models.LeadStatusNew
}

// MessageToMessage maps a CRM message onto a lead's message.
func MessageToMessage(leadID uuid.UUID, msg *crm.Message) (*models.Message, error) {
	if msg.ID == "" {
		return nil, fmt.Errorf("message has no external id")
	}

	direction := models.DirectionOutgoing
	if strings.EqualFold(msg.Direction, "inbound") {
		direction = models.DirectionIncoming
	}

	content := msg.Body
	if content == "" {
		content = msg.Message
	}

	return &models.Message{
		LeadID:         leadID,
		ExternalID:     msg.ID,
		ConversationID: msg.ConversationID,
		Direction:      direction,
		Channel:        strings.ToLower(msg.Type),
		Content:        content,
		Status:         messageStatus(msg.Status),
		SentAt:         parseCRMTime(msg.DateAdded),
	}, nil
}

func messageStatus(status string) string {
	switch strings.ToLower(status) {
	case models.MessageStatusPending:
		return models.MessageStatusPending
	case models.MessageStatusRead:
		return models.MessageStatusRead
	case models.MessageStatusFailed, "undelivered", "error":
		return models.MessageStatusFailed
	default:
		// Synced history was delivered by definition.
		return models.MessageStatusDelivered
	}
}

// TaskToTodo maps a CRM task onto a todo for the lead.
func TaskToTodo(leadID uuid.UUID, task *crm.Task) (*models.Todo, error) {
	if task.ID == "" {
		return nil, fmt.Errorf("task has no external id")
	}

	title := StripHTML(task.Title)
	description := StripHTML(task.Body)

	todo := &models.Todo{
		LeadID:      &leadID,
		ExternalID:  task.ID,
		Title:       title,
		Description: description,
		Type:        TodoTypeFromTitle(title),
		Priority:    PriorityFromText(title + " " + description),
		Source:      models.TodoSourceTask,
		Completed:   task.Completed,
	}
	if dueAt := parseCRMTime(task.DueDate); !dueAt.IsZero() {
		todo.DueAt = &dueAt
	}
	return todo, nil
}

// EventToTodo maps a calendar event onto a todo. Events default to viewing
// appointments unless the title says otherwise.
func EventToTodo(leadID uuid.UUID, event *crm.CalendarEvent) (*models.Todo, error) {
	if event.ID == "" {
		return nil, fmt.Errorf("event has no external id")
	}

	title := StripHTML(event.Title)
	if title == "" {
		title = "Besichtigung"
	}
	todoType := TodoTypeFromTitle(title)
	if todoType == models.TodoTypeMessage {
		todoType = models.TodoTypeViewing
	}

	todo := &models.Todo{
		LeadID:      &leadID,
		ExternalID:  event.ID,
		Title:       title,
		Description: StripHTML(event.Notes),
		Type:        todoType,
		Priority:    PriorityFromText(title),
		Source:      models.TodoSourceEvent,
		Completed:   strings.EqualFold(event.AppointmentStatus, "showed"),
	}
	if dueAt := parseCRMTime(event.StartTime); !dueAt.IsZero() {
		todo.DueAt = &dueAt
	}
	return todo, nil
}

// TodoTypeFromTitle picks a todo type from title keywords, defaulting to a
// plain message todo.
func TodoTypeFromTitle(title string) string {
	lowered := strings.ToLower(title)
	for _, rule := range todoTypeRules {
		if strings.Contains(lowered, rule.keyword) {
			return rule.todoType
		}
	}
	return models.TodoTypeMessage
}

// PriorityFromText marks a todo urgent when the text asks for it.
func PriorityFromText(text string) string {
	lowered := strings.ToLower(text)
	for _, keyword := range urgentKeywords {
		if strings.Contains(lowered, keyword) {
			return models.PriorityUrgent
		}
	}
	return models.PriorityNormal
}

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// StripHTML drops tags, unescapes entities, and collapses the whitespace
// HTML leaves behind.
func StripHTML(s string) string {
	stripped := htmlTagPattern.ReplaceAllString(s, " ")
	stripped = html.UnescapeString(stripped)
	return strings.Join(strings.Fields(stripped), " ")
}

// parseCRMTime reads the CRM's RFC3339-style timestamps, returning the zero
// time when absent or malformed so callers can fall back.
func parseCRMTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
