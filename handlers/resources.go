// ABOUTME: MCP resource handlers for exposing synced data
// ABOUTME: Provides read-only access to leads, listings, funnel, and knowledge via URI
package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/restriden/simpli-immo-sub001/db"
	"github.com/restriden/simpli-immo-sub001/models"
)

type ResourceHandlers struct {
	db *sql.DB
}

func NewResourceHandlers(database *sql.DB) *ResourceHandlers {
	return &ResourceHandlers{db: database}
}

// Resources describes the registered static resources for server setup.
func (h *ResourceHandlers) Resources() []*mcp.Resource {
	return []*mcp.Resource{
		{URI: "immosync://leads", Name: "leads", Description: "Active leads with listing, message, and todo counts", MIMEType: "application/json"},
		{URI: "immosync://listings", Name: "listings", Description: "Property listings", MIMEType: "application/json"},
		{URI: "immosync://funnel", Name: "funnel", Description: "Lead counts per status and cumulative milestone counts", MIMEType: "application/json"},
		{URI: "immosync://knowledge", Name: "knowledge", Description: "Listing Q&A knowledge base", MIMEType: "application/json"},
	}
}

// ResourceTemplates describes the per-entity URI templates for server setup.
func (h *ResourceHandlers) ResourceTemplates() []*mcp.ResourceTemplate {
	return []*mcp.ResourceTemplate{
		{URITemplate: "immosync://leads/{id}", Name: "lead", Description: "One lead with its conversation", MIMEType: "application/json"},
		{URITemplate: "immosync://listings/{id}", Name: "listing", Description: "One listing with its knowledge entries", MIMEType: "application/json"},
	}
}

// ReadResource handles resource read requests.
func (h *ResourceHandlers) ReadResource(ctx context.Context, request *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := request.Params.URI
	if !strings.HasPrefix(uri, "immosync://") {
		return nil, fmt.Errorf("invalid URI scheme: expected immosync://")
	}

	path := strings.TrimPrefix(uri, "immosync://")
	parts := strings.Split(path, "/")

	switch parts[0] {
	case "leads":
		if len(parts) == 1 {
			return h.readAllLeads()
		}
		return h.readLead(parts[1])

	case "listings":
		if len(parts) == 1 {
			return h.readAllListings()
		}
		return h.readListing(parts[1])

	case "funnel":
		return h.readFunnel()

	case "knowledge":
		return h.readKnowledge()

	default:
		return nil, fmt.Errorf("unknown resource: %s", parts[0])
	}
}

func jsonResource(uri string, payload any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}

	return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{
		{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}}, nil
}

func (h *ResourceHandlers) readAllLeads() (*mcp.ReadResourceResult, error) {
	overviews, err := db.ListLeadOverviews(h.db, "", 1000)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch leads: %w", err)
	}
	return jsonResource("immosync://leads", overviews)
}

func (h *ResourceHandlers) readLead(idStr string) (*mcp.ReadResourceResult, error) {
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid lead ID: %w", err)
	}

	lead, err := db.GetLead(h.db, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch lead: %w", err)
	}
	if lead == nil {
		return nil, fmt.Errorf("lead not found: %s", idStr)
	}

	messages, err := db.ListMessagesByLead(h.db, id, 50)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	leadData := struct {
		models.Lead
		Messages []models.Message `json:"messages"`
	}{
		Lead:     *lead,
		Messages: messages,
	}

	return jsonResource(fmt.Sprintf("immosync://leads/%s", idStr), leadData)
}

func (h *ResourceHandlers) readAllListings() (*mcp.ReadResourceResult, error) {
	listings, err := db.ListListings(h.db)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listings: %w", err)
	}
	return jsonResource("immosync://listings", listings)
}

func (h *ResourceHandlers) readListing(idStr string) (*mcp.ReadResourceResult, error) {
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid listing ID: %w", err)
	}

	listing, err := db.GetListing(h.db, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listing: %w", err)
	}
	if listing == nil {
		return nil, fmt.Errorf("listing not found: %s", idStr)
	}

	entries, err := db.ListKnowledgeEntries(h.db, &id, 200)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch knowledge entries: %w", err)
	}

	listingData := struct {
		models.Listing
		Knowledge []models.KnowledgeEntry `json:"knowledge"`
	}{
		Listing:   *listing,
		Knowledge: entries,
	}

	return jsonResource(fmt.Sprintf("immosync://listings/%s", idStr), listingData)
}

func (h *ResourceHandlers) readFunnel() (*mcp.ReadResourceResult, error) {
	byStatus, err := db.CountLeadsByStatus(h.db)
	if err != nil {
		return nil, fmt.Errorf("failed to count leads by status: %w", err)
	}
	stages, err := db.CountStageReached(h.db)
	if err != nil {
		return nil, fmt.Errorf("failed to count stage milestones: %w", err)
	}

	funnel := struct {
		ByStatus map[string]int     `json:"by_status"`
		Reached  models.StageCounts `json:"reached"`
	}{
		ByStatus: byStatus,
		Reached:  stages,
	}

	return jsonResource("immosync://funnel", funnel)
}

func (h *ResourceHandlers) readKnowledge() (*mcp.ReadResourceResult, error) {
	entries, err := db.ListKnowledgeEntries(h.db, nil, 1000)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch knowledge entries: %w", err)
	}
	return jsonResource("immosync://knowledge", entries)
}
