// ABOUTME: Lead MCP tool handlers
// ABOUTME: Implements find_leads and get_lead_timeline tools
package handlers

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/restriden/simpli-immo-sub001/db"
	"github.com/restriden/simpli-immo-sub001/models"
)

type LeadHandlers struct {
	db *sql.DB
}

func NewLeadHandlers(database *sql.DB) *LeadHandlers {
	return &LeadHandlers{db: database}
}

type FindLeadsInput struct {
	Query  string `json:"query,omitempty" jsonschema:"Search query (matches name, email, and phone)"`
	Status string `json:"status,omitempty" jsonschema:"Filter by status (neu/kontaktiert/besichtigt/finanzierung_bestaetigt/gekauft)"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum number of results (default 10)"`
}

type LeadOutput struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Email         string  `json:"email,omitempty"`
	Phone         string  `json:"phone,omitempty"`
	Status        string  `json:"status"`
	Temperature   string  `json:"temperature,omitempty"`
	QualityScore  int     `json:"quality_score,omitempty"`
	Summary       string  `json:"summary,omitempty"`
	PipelineStage string  `json:"pipeline_stage,omitempty"`
	ListingID     *string `json:"listing_id,omitempty"`
	LastMessageAt *string `json:"last_message_at,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

type FindLeadsOutput struct {
	Leads []LeadOutput `json:"leads"`
}

func (h *LeadHandlers) FindLeads(_ context.Context, request *mcp.CallToolRequest, input FindLeadsInput) (*mcp.CallToolResult, FindLeadsOutput, error) {
	limit := input.Limit
	if limit == 0 {
		limit = 10
	}

	leads, err := db.FindLeads(h.db, input.Query, input.Status, limit)
	if err != nil {
		return nil, FindLeadsOutput{}, fmt.Errorf("failed to find leads: %w", err)
	}

	result := make([]LeadOutput, len(leads))
	for i := range leads {
		result[i] = leadToOutput(&leads[i])
	}

	return nil, FindLeadsOutput{Leads: result}, nil
}

type GetLeadTimelineInput struct {
	LeadID       string `json:"lead_id" jsonschema:"Lead ID (required)"`
	MessageLimit int    `json:"message_limit,omitempty" jsonschema:"Maximum number of recent messages (default 20)"`
}

type TimelineMessage struct {
	Direction string `json:"direction"`
	Channel   string `json:"channel,omitempty"`
	Content   string `json:"content"`
	SentAt    string `json:"sent_at"`
}

type TimelineTodo struct {
	Title    string  `json:"title"`
	Type     string  `json:"type"`
	Priority string  `json:"priority"`
	DueAt    *string `json:"due_at,omitempty"`
}

type GetLeadTimelineOutput struct {
	Lead        LeadOutput        `json:"lead"`
	ListingName string            `json:"listing_name,omitempty"`
	Messages    []TimelineMessage `json:"messages"`
	OpenTodos   []TimelineTodo    `json:"open_todos"`
}

// GetLeadTimeline returns a lead's profile with its recent conversation and
// open todos, newest messages first.
func (h *LeadHandlers) GetLeadTimeline(_ context.Context, request *mcp.CallToolRequest, input GetLeadTimelineInput) (*mcp.CallToolResult, GetLeadTimelineOutput, error) {
	if input.LeadID == "" {
		return nil, GetLeadTimelineOutput{}, fmt.Errorf("lead_id is required")
	}
	leadID, err := uuid.Parse(input.LeadID)
	if err != nil {
		return nil, GetLeadTimelineOutput{}, fmt.Errorf("invalid lead_id: %w", err)
	}

	lead, err := db.GetLead(h.db, leadID)
	if err != nil {
		return nil, GetLeadTimelineOutput{}, fmt.Errorf("failed to get lead: %w", err)
	}
	if lead == nil {
		return nil, GetLeadTimelineOutput{}, fmt.Errorf("lead not found")
	}

	output := GetLeadTimelineOutput{Lead: leadToOutput(lead)}

	if lead.ListingID != nil {
		listing, err := db.GetListing(h.db, *lead.ListingID)
		if err == nil && listing != nil {
			output.ListingName = listing.Name
		}
	}

	messageLimit := input.MessageLimit
	if messageLimit == 0 {
		messageLimit = 20
	}
	messages, err := db.ListMessagesByLead(h.db, leadID, messageLimit)
	if err != nil {
		return nil, GetLeadTimelineOutput{}, fmt.Errorf("failed to list messages: %w", err)
	}
	output.Messages = make([]TimelineMessage, len(messages))
	for i, msg := range messages {
		output.Messages[i] = TimelineMessage{
			Direction: msg.Direction,
			Channel:   msg.Channel,
			Content:   msg.Content,
			SentAt:    msg.SentAt.Format("2006-01-02T15:04:05Z07:00"),
		}
	}

	todos, err := db.ListTodos(h.db, &leadID, false, 20)
	if err != nil {
		return nil, GetLeadTimelineOutput{}, fmt.Errorf("failed to list todos: %w", err)
	}
	output.OpenTodos = make([]TimelineTodo, len(todos))
	for i, todo := range todos {
		item := TimelineTodo{
			Title:    todo.Title,
			Type:     todo.Type,
			Priority: todo.Priority,
		}
		if todo.DueAt != nil {
			due := todo.DueAt.Format("2006-01-02T15:04:05Z07:00")
			item.DueAt = &due
		}
		output.OpenTodos[i] = item
	}

	return nil, output, nil
}

func leadToOutput(lead *models.Lead) LeadOutput {
	output := LeadOutput{
		ID:            lead.ID.String(),
		Name:          lead.Name,
		Email:         lead.Email,
		Phone:         lead.Phone,
		Status:        lead.Status,
		Temperature:   lead.Temperature,
		QualityScore:  lead.QualityScore,
		Summary:       lead.Summary,
		PipelineStage: lead.PipelineStage,
		CreatedAt:     lead.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}

	if lead.ListingID != nil {
		lid := lead.ListingID.String()
		output.ListingID = &lid
	}
	if lead.LastMessageAt != nil {
		lma := lead.LastMessageAt.Format("2006-01-02T15:04:05Z07:00")
		output.LastMessageAt = &lma
	}

	return output
}
