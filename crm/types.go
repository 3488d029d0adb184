// ABOUTME: JSON payload shapes of the external CRM REST API
// ABOUTME: Bindings only, mapping to internal models lives in the sync package
package crm

import "encoding/json"

// Contact is a CRM contact record. Raw keeps the undecoded payload so listing
// labels can be extracted from custom fields and the lead can store it.
type Contact struct {
	ID        string   `json:"id"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Name      string   `json:"contactName"`
	Email     string   `json:"email"`
	Phone     string   `json:"phone"`
	Source    string   `json:"source"`
	Tags      []string `json:"tags"`
	DateAdded string   `json:"dateAdded"`

	Raw json.RawMessage `json:"-"`
}

type Conversation struct {
	ID              string `json:"id"`
	ContactID       string `json:"contactId"`
	LastMessageBody string `json:"lastMessageBody"`
	LastMessageDate int64  `json:"lastMessageDate"`
	UnreadCount     int    `json:"unreadCount"`
}

// Message carries the body in either Body or Message depending on the
// endpoint; the mapper falls back from one to the other.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	ContactID      string `json:"contactId"`
	Direction      string `json:"direction"`
	Type           string `json:"messageType"`
	Body           string `json:"body"`
	Message        string `json:"message"`
	Status         string `json:"status"`
	DateAdded      string `json:"dateAdded"`
}

type Task struct {
	ID        string `json:"id"`
	ContactID string `json:"contactId"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	DueDate   string `json:"dueDate"`
	Completed bool   `json:"completed"`
}

type CalendarEvent struct {
	ID                string `json:"id"`
	ContactID         string `json:"contactId"`
	Title             string `json:"title"`
	Notes             string `json:"notes"`
	AppointmentStatus string `json:"appointmentStatus"`
	StartTime         string `json:"startTime"`
	EndTime           string `json:"endTime"`
}

type Opportunity struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	PipelineID      string             `json:"pipelineId"`
	PipelineStageID string             `json:"pipelineStageId"`
	Status          string             `json:"status"`
	MonetaryValue   float64            `json:"monetaryValue"`
	Contact         OpportunityContact `json:"contact"`
}

type OpportunityContact struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type Pipeline struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Stages []PipelineStage `json:"stages"`
}

type PipelineStage struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Position float64 `json:"position"`
}

// PageMeta is the cursor block list endpoints attach to each page.
type PageMeta struct {
	Total        int    `json:"total"`
	StartAfterID string `json:"startAfterId"`
	NextPageURL  string `json:"nextPageUrl"`
}

type contactsPage struct {
	Contacts []json.RawMessage `json:"contacts"`
	Meta     PageMeta          `json:"meta"`
}

type conversationsPage struct {
	Conversations []Conversation `json:"conversations"`
	Meta          PageMeta       `json:"meta"`
}

// messagesPage mirrors the CRM's nested messages envelope with its
// lastMessageId cursor.
type messagesPage struct {
	Messages struct {
		Messages      []Message `json:"messages"`
		LastMessageID string    `json:"lastMessageId"`
		NextPage      bool      `json:"nextPage"`
	} `json:"messages"`
}

type tasksEnvelope struct {
	Tasks []Task `json:"tasks"`
}

type eventsEnvelope struct {
	Events []CalendarEvent `json:"events"`
}

type opportunitiesPage struct {
	Opportunities []Opportunity `json:"opportunities"`
	Meta          PageMeta      `json:"meta"`
}

type pipelinesEnvelope struct {
	Pipelines []Pipeline `json:"pipelines"`
}

type sendMessageRequest struct {
	Type      string `json:"type"`
	ContactID string `json:"contactId"`
	Message   string `json:"message"`
}

type sendMessageResponse struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

type webhookSubscription struct {
	LocationID string   `json:"locationId"`
	URL        string   `json:"url"`
	Events     []string `json:"events"`
}

// Webhook event type names as the CRM sends them.
const (
	EventInboundMessage         = "InboundMessage"
	EventOutboundMessage        = "OutboundMessage"
	EventContactCreate          = "ContactCreate"
	EventContactUpdate          = "ContactUpdate"
	EventTaskCreate             = "TaskCreate"
	EventAppointmentCreate      = "AppointmentCreate"
	EventAppointmentUpdate      = "AppointmentUpdate"
	EventOpportunityStageUpdate = "OpportunityStageUpdate"
)

// DefaultWebhookEvents is the subscription list registered after an OAuth
// install.
var DefaultWebhookEvents = []string{
	EventInboundMessage,
	EventOutboundMessage,
	EventContactCreate,
	EventContactUpdate,
	EventTaskCreate,
	EventAppointmentCreate,
	EventAppointmentUpdate,
	EventOpportunityStageUpdate,
}

// WebhookPayload is the push-event envelope. The CRM sends one flat shape for
// every event type; fields the type does not use stay zero. Contact events
// carry the contact fields at the top level, so the raw body doubles as a
// Contact payload.
type WebhookPayload struct {
	Type       string `json:"type"`
	LocationID string `json:"locationId"`
	ID         string `json:"id"`
	ContactID  string `json:"contactId"`

	// Message events.
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	Body           string `json:"body"`
	MessageType    string `json:"messageType"`
	Direction      string `json:"direction"`
	DateAdded      string `json:"dateAdded"`

	// Task and appointment events.
	Title             string `json:"title"`
	DueDate           string `json:"dueDate"`
	StartTime         string `json:"startTime"`
	EndTime           string `json:"endTime"`
	AppointmentStatus string `json:"appointmentStatus"`
	Completed         bool   `json:"completed"`

	// Opportunity events.
	PipelineID      string `json:"pipelineId"`
	PipelineStageID string `json:"pipelineStageId"`
	Status          string `json:"status"`
}
