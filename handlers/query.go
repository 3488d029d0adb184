// ABOUTME: Universal query tool handler
// ABOUTME: Implements flexible filtering across lead, listing, todo, approval, and knowledge rows
package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/restriden/simpli-immo-sub001/db"
	"github.com/restriden/simpli-immo-sub001/models"
)

type QueryHandlers struct {
	db *sql.DB
}

func NewQueryHandlers(database *sql.DB) *QueryHandlers {
	return &QueryHandlers{db: database}
}

type QueryCRMInput struct {
	EntityType string         `json:"entity_type" jsonschema:"Type of entity to query (lead, listing, todo, approval, knowledge)"`
	Query      string         `json:"query,omitempty" jsonschema:"Search query (name/email/phone for leads, name/city for listings, question text for knowledge)"`
	Filters    map[string]any `json:"filters,omitempty" jsonschema:"Additional filters as key-value pairs (status, lead_id, listing_id, include_completed)"`
	Limit      int            `json:"limit,omitempty" jsonschema:"Maximum results to return (default 10)"`
}

type QueryCRMOutput struct {
	EntityType string `json:"entity_type"`
	Results    []any  `json:"results"`
	Count      int    `json:"count"`
}

func (h *QueryHandlers) QueryCRM(ctx context.Context, req *mcp.CallToolRequest, input QueryCRMInput) (*mcp.CallToolResult, QueryCRMOutput, error) {
	if input.Limit == 0 {
		input.Limit = 10
	}

	switch input.EntityType {
	case "lead":
		return h.queryLeads(input)
	case "listing":
		return h.queryListings(input)
	case "todo":
		return h.queryTodos(input)
	case "approval":
		return h.queryApprovals(input)
	case "knowledge":
		return h.queryKnowledge(input)
	default:
		return nil, QueryCRMOutput{}, fmt.Errorf("invalid entity_type: %s (valid: lead, listing, todo, approval, knowledge)", input.EntityType)
	}
}

func (h *QueryHandlers) queryLeads(input QueryCRMInput) (*mcp.CallToolResult, QueryCRMOutput, error) {
	status, err := stringFilter(input.Filters, "status")
	if err != nil {
		return nil, QueryCRMOutput{}, err
	}

	leads, err := db.FindLeads(h.db, input.Query, status, input.Limit)
	if err != nil {
		return nil, QueryCRMOutput{}, fmt.Errorf("failed to find leads: %w", err)
	}

	results := make([]any, len(leads))
	for i := range leads {
		results[i] = leadToOutput(&leads[i])
	}

	return nil, QueryCRMOutput{EntityType: "lead", Results: results, Count: len(results)}, nil
}

func (h *QueryHandlers) queryListings(input QueryCRMInput) (*mcp.CallToolResult, QueryCRMOutput, error) {
	status, err := stringFilter(input.Filters, "status")
	if err != nil {
		return nil, QueryCRMOutput{}, err
	}

	listings, err := db.ListListings(h.db)
	if err != nil {
		return nil, QueryCRMOutput{}, fmt.Errorf("failed to list listings: %w", err)
	}

	var results []any
	for i := range listings {
		listing := &listings[i]
		if status != "" && listing.Status != status {
			continue
		}
		if input.Query != "" && !containsFold(listing.Name, input.Query) && !containsFold(listing.City, input.Query) {
			continue
		}
		results = append(results, listingToOutput(listing))
		if len(results) >= input.Limit {
			break
		}
	}

	return nil, QueryCRMOutput{EntityType: "listing", Results: results, Count: len(results)}, nil
}

func (h *QueryHandlers) queryTodos(input QueryCRMInput) (*mcp.CallToolResult, QueryCRMOutput, error) {
	leadID, err := uuidFilter(input.Filters, "lead_id")
	if err != nil {
		return nil, QueryCRMOutput{}, err
	}
	includeCompleted := boolFilter(input.Filters, "include_completed")

	todos, err := db.ListTodos(h.db, leadID, includeCompleted, input.Limit)
	if err != nil {
		return nil, QueryCRMOutput{}, fmt.Errorf("failed to list todos: %w", err)
	}

	results := make([]any, len(todos))
	for i := range todos {
		results[i] = todoToOutput(&todos[i])
	}

	return nil, QueryCRMOutput{EntityType: "todo", Results: results, Count: len(results)}, nil
}

func (h *QueryHandlers) queryApprovals(input QueryCRMInput) (*mcp.CallToolResult, QueryCRMOutput, error) {
	approvals, err := db.ListPendingApprovals(h.db, input.Limit)
	if err != nil {
		return nil, QueryCRMOutput{}, fmt.Errorf("failed to list approvals: %w", err)
	}

	results := make([]any, len(approvals))
	for i, approval := range approvals {
		results[i] = ApprovalOutput{
			ID:        approval.ID.String(),
			LeadID:    approval.LeadID.String(),
			Draft:     approval.Draft,
			Reasoning: approval.Reasoning,
			Status:    approval.Status,
			ExpiresAt: approval.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
		}
	}

	return nil, QueryCRMOutput{EntityType: "approval", Results: results, Count: len(results)}, nil
}

func (h *QueryHandlers) queryKnowledge(input QueryCRMInput) (*mcp.CallToolResult, QueryCRMOutput, error) {
	listingID, err := uuidFilter(input.Filters, "listing_id")
	if err != nil {
		return nil, QueryCRMOutput{}, err
	}

	var entries []models.KnowledgeEntry
	if input.Query != "" {
		entries, err = db.SearchKnowledge(h.db, input.Query, input.Limit)
	} else {
		entries, err = db.ListKnowledgeEntries(h.db, listingID, input.Limit)
	}
	if err != nil {
		return nil, QueryCRMOutput{}, fmt.Errorf("failed to query knowledge: %w", err)
	}

	var results []any
	for i := range entries {
		entry := &entries[i]
		// SearchKnowledge has no listing filter, apply it here.
		if listingID != nil && (entry.ListingID == nil || *entry.ListingID != *listingID) {
			continue
		}
		results = append(results, knowledgeToOutput(entry))
	}

	return nil, QueryCRMOutput{EntityType: "knowledge", Results: results, Count: len(results)}, nil
}

type TodoOutput struct {
	ID        string  `json:"id"`
	LeadID    *string `json:"lead_id,omitempty"`
	Title     string  `json:"title"`
	Type      string  `json:"type"`
	Priority  string  `json:"priority"`
	Source    string  `json:"source"`
	DueAt     *string `json:"due_at,omitempty"`
	Completed bool    `json:"completed"`
}

type KnowledgeOutput struct {
	ID        string  `json:"id"`
	ListingID *string `json:"listing_id,omitempty"`
	Question  string  `json:"question"`
	Answer    string  `json:"answer"`
	Source    string  `json:"source"`
}

func listingToOutput(listing *models.Listing) ListingOutput {
	return ListingOutput{
		ID:      listing.ID.String(),
		Name:    listing.Name,
		City:    listing.City,
		Price:   listing.Price,
		Rooms:   listing.Rooms,
		AreaSqm: listing.AreaSqm,
		Status:  listing.Status,
	}
}

func todoToOutput(todo *models.Todo) TodoOutput {
	output := TodoOutput{
		ID:        todo.ID.String(),
		Title:     todo.Title,
		Type:      todo.Type,
		Priority:  todo.Priority,
		Source:    todo.Source,
		Completed: todo.Completed,
	}
	if todo.LeadID != nil {
		lid := todo.LeadID.String()
		output.LeadID = &lid
	}
	if todo.DueAt != nil {
		due := todo.DueAt.Format("2006-01-02T15:04:05Z07:00")
		output.DueAt = &due
	}
	return output
}

func knowledgeToOutput(entry *models.KnowledgeEntry) KnowledgeOutput {
	output := KnowledgeOutput{
		ID:       entry.ID.String(),
		Question: entry.Question,
		Answer:   entry.Answer,
		Source:   entry.Source,
	}
	if entry.ListingID != nil {
		lid := entry.ListingID.String()
		output.ListingID = &lid
	}
	return output
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func stringFilter(filters map[string]any, key string) (string, error) {
	if filters == nil {
		return "", nil
	}
	raw, ok := filters[key]
	if !ok {
		return "", nil
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("filter %s must be a string", key)
	}
	return value, nil
}

func uuidFilter(filters map[string]any, key string) (*uuid.UUID, error) {
	value, err := stringFilter(filters, key)
	if err != nil || value == "" {
		return nil, err
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	return &id, nil
}

func boolFilter(filters map[string]any, key string) bool {
	if filters == nil {
		return false
	}
	value, ok := filters[key].(bool)
	return ok && value
}
