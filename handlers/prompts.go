// ABOUTME: MCP prompt handlers for recurring agent workflows
// ABOUTME: Builds briefing, funnel review, and exposé prompts from live data
package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/restriden/simpli-immo-sub001/db"
	"github.com/restriden/simpli-immo-sub001/models"
)

type PromptHandlers struct {
	db *sql.DB
}

func NewPromptHandlers(database *sql.DB) *PromptHandlers {
	return &PromptHandlers{db: database}
}

// Prompts describes the registered prompt set for server setup.
func (h *PromptHandlers) Prompts() []*mcp.Prompt {
	return []*mcp.Prompt{
		{
			Name:        "lead-briefing",
			Description: "Briefing on one lead with conversation history and open todos",
			Arguments: []*mcp.PromptArgument{
				{Name: "lead_id", Description: "Lead ID", Required: true},
			},
		},
		{
			Name:        "funnel-review",
			Description: "Review of the lead funnel with stage and temperature distribution",
		},
		{
			Name:        "listing-exposee",
			Description: "Exposé draft request for a listing, grounded in its knowledge base",
			Arguments: []*mcp.PromptArgument{
				{Name: "listing_id", Description: "Listing ID", Required: true},
			},
		},
		{
			Name:        "followup-review",
			Description: "Prioritization of leads without recent activity and waiting drafts",
			Arguments: []*mcp.PromptArgument{
				{Name: "stale_days", Description: "Days without a message before a lead counts as stale (default 3)", Required: false},
			},
		},
	}
}

// GetPrompt builds the prompt message for the requested template.
func (h *PromptHandlers) GetPrompt(ctx context.Context, request *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := request.Params.Name
	arguments := request.Params.Arguments
	switch name {
	case "lead-briefing":
		return h.getLeadBriefingPrompt(arguments)
	case "funnel-review":
		return h.getFunnelReviewPrompt()
	case "listing-exposee":
		return h.getListingExposeePrompt(arguments)
	case "followup-review":
		return h.getFollowupReviewPrompt(arguments)
	default:
		return nil, fmt.Errorf("unknown prompt: %s", name)
	}
}

func (h *PromptHandlers) getLeadBriefingPrompt(args map[string]string) (*mcp.GetPromptResult, error) {
	leadIDStr, ok := args["lead_id"]
	if !ok {
		return nil, fmt.Errorf("lead_id is required")
	}
	leadID, err := uuid.Parse(leadIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid lead_id: %w", err)
	}

	lead, err := db.GetLead(h.db, leadID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch lead: %w", err)
	}
	if lead == nil {
		return nil, fmt.Errorf("lead not found: %s", leadID)
	}

	var promptText strings.Builder
	promptText.WriteString("Erstelle ein Briefing zu diesem Interessenten:\n\n")
	promptText.WriteString(fmt.Sprintf("Name: %s\n", lead.Name))
	promptText.WriteString(fmt.Sprintf("Status: %s\n", lead.Status))
	if lead.Email != "" {
		promptText.WriteString(fmt.Sprintf("E-Mail: %s\n", lead.Email))
	}
	if lead.Phone != "" {
		promptText.WriteString(fmt.Sprintf("Telefon: %s\n", lead.Phone))
	}
	if lead.Temperature != "" {
		promptText.WriteString(fmt.Sprintf("Einstufung: %s (Score %d)\n", lead.Temperature, lead.QualityScore))
	}
	if lead.Summary != "" {
		promptText.WriteString(fmt.Sprintf("Letzte Einschaetzung: %s\n", lead.Summary))
	}

	if lead.ListingID != nil {
		listing, err := db.GetListing(h.db, *lead.ListingID)
		if err == nil && listing != nil {
			promptText.WriteString(fmt.Sprintf("Objekt: %s", listing.Name))
			if listing.City != "" {
				promptText.WriteString(fmt.Sprintf(", %s", listing.City))
			}
			promptText.WriteString("\n")
		}
	}

	messages, err := db.ListMessagesByLead(h.db, leadID, 20)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	if len(messages) > 0 {
		promptText.WriteString("\nNachrichtenverlauf (neueste zuerst):\n")
		for _, msg := range messages {
			direction := "Interessent"
			if msg.Direction == models.DirectionOutgoing {
				direction = "Makler"
			}
			promptText.WriteString(fmt.Sprintf("  [%s] %s: %s\n", msg.SentAt.Format("02.01."), direction, msg.Content))
		}
	}

	todos, err := db.ListTodos(h.db, &leadID, false, 10)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch todos: %w", err)
	}
	if len(todos) > 0 {
		promptText.WriteString("\nOffene Aufgaben:\n")
		for _, todo := range todos {
			promptText.WriteString(fmt.Sprintf("  - %s (%s)\n", todo.Title, todo.Type))
		}
	}

	promptText.WriteString("\nBitte liefere:")
	promptText.WriteString("\n1. Eine kurze Zusammenfassung von Interesse und Kaufphase")
	promptText.WriteString("\n2. Den konkreten naechsten Schritt fuer den Makler")
	promptText.WriteString("\n3. Offene Fragen, die vor einer Besichtigung geklaert werden sollten")

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Briefing for lead: %s", lead.Name),
		Messages: []*mcp.PromptMessage{
			{
				Role:    "user",
				Content: &mcp.TextContent{Text: promptText.String()},
			},
		},
	}, nil
}

func (h *PromptHandlers) getFunnelReviewPrompt() (*mcp.GetPromptResult, error) {
	byStatus, err := db.CountLeadsByStatus(h.db)
	if err != nil {
		return nil, fmt.Errorf("failed to count leads by status: %w", err)
	}
	stages, err := db.CountStageReached(h.db)
	if err != nil {
		return nil, fmt.Errorf("failed to count stage milestones: %w", err)
	}
	byTemperature, err := db.CountLeadsByTemperature(h.db)
	if err != nil {
		return nil, fmt.Errorf("failed to count leads by temperature: %w", err)
	}

	var promptText strings.Builder
	promptText.WriteString("Analysiere den aktuellen Lead-Funnel:\n\n")
	promptText.WriteString(fmt.Sprintf("Aktive Interessenten: %d\n\n", stages.Total))

	promptText.WriteString("Nach Status:\n")
	for _, status := range []string{
		models.LeadStatusNew, models.LeadStatusContacted, models.LeadStatusViewed,
		models.LeadStatusFinanced, models.LeadStatusBought,
	} {
		promptText.WriteString(fmt.Sprintf("  - %s: %d\n", status, byStatus[status]))
	}

	promptText.WriteString("\nErreichte Meilensteine (kumulativ):\n")
	promptText.WriteString(fmt.Sprintf("  - Besichtigung: %d\n", stages.Viewing))
	promptText.WriteString(fmt.Sprintf("  - Finanzierung: %d\n", stages.Financing))
	promptText.WriteString(fmt.Sprintf("  - Notartermin: %d\n", stages.Notary))
	promptText.WriteString(fmt.Sprintf("  - Kauf: %d\n", stages.Purchase))

	promptText.WriteString("\nNach Einstufung:\n")
	promptText.WriteString(fmt.Sprintf("  - heiss: %d, warm: %d, kalt: %d, unbewertet: %d\n",
		byTemperature[models.TemperatureHot], byTemperature[models.TemperatureWarm],
		byTemperature[models.TemperatureCold], byTemperature[""]))

	promptText.WriteString("\nBitte liefere:")
	promptText.WriteString("\n1. Eine Einschaetzung der Funnel-Gesundheit und der Engpaesse")
	promptText.WriteString("\n2. Die Stufe mit dem groessten Abfluss und moegliche Gruende")
	promptText.WriteString("\n3. Konkrete Massnahmen fuer die naechste Woche")

	return &mcp.GetPromptResult{
		Description: "Lead funnel review",
		Messages: []*mcp.PromptMessage{
			{
				Role:    "user",
				Content: &mcp.TextContent{Text: promptText.String()},
			},
		},
	}, nil
}

func (h *PromptHandlers) getListingExposeePrompt(args map[string]string) (*mcp.GetPromptResult, error) {
	listingIDStr, ok := args["listing_id"]
	if !ok {
		return nil, fmt.Errorf("listing_id is required")
	}
	listingID, err := uuid.Parse(listingIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid listing_id: %w", err)
	}

	listing, err := db.GetListing(h.db, listingID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listing: %w", err)
	}
	if listing == nil {
		return nil, fmt.Errorf("listing not found: %s", listingID)
	}

	entries, err := db.ListKnowledgeEntries(h.db, &listingID, 50)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch knowledge entries: %w", err)
	}

	var promptText strings.Builder
	promptText.WriteString(fmt.Sprintf("Entwirf ein Kurzexposee fuer dieses Objekt: %s\n\n", listing.Name))
	if listing.City != "" {
		promptText.WriteString(fmt.Sprintf("Ort: %s\n", listing.City))
	}
	if listing.Price > 0 {
		promptText.WriteString(fmt.Sprintf("Preis: %.2f EUR\n", float64(listing.Price)/100))
	}
	if listing.Rooms > 0 {
		promptText.WriteString(fmt.Sprintf("Zimmer: %.1f\n", listing.Rooms))
	}
	if listing.AreaSqm > 0 {
		promptText.WriteString(fmt.Sprintf("Wohnflaeche: %.0f m²\n", listing.AreaSqm))
	}
	if listing.Description != "" {
		promptText.WriteString(fmt.Sprintf("\nBeschreibung:\n%s\n", listing.Description))
	}

	if len(entries) > 0 {
		promptText.WriteString("\nBekannte Fragen und Antworten:\n")
		for _, entry := range entries {
			promptText.WriteString(fmt.Sprintf("  F: %s\n  A: %s\n", entry.Question, entry.Answer))
		}
	}

	promptText.WriteString("\nBitte liefere:")
	promptText.WriteString("\n1. Einen Exposee-Text von 3 bis 5 Absaetzen auf Deutsch")
	promptText.WriteString("\n2. Drei Verkaufsargumente als Stichpunkte")
	promptText.WriteString("\n3. Fehlende Angaben, die vor Veroeffentlichung ergaenzt werden muessen")

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Exposé draft for %s", listing.Name),
		Messages: []*mcp.PromptMessage{
			{
				Role:    "user",
				Content: &mcp.TextContent{Text: promptText.String()},
			},
		},
	}, nil
}

func (h *PromptHandlers) getFollowupReviewPrompt(args map[string]string) (*mcp.GetPromptResult, error) {
	staleDays := 3
	if d, ok := args["stale_days"]; ok && d != "" {
		parsed, err := strconv.Atoi(d)
		if err != nil || parsed < 1 {
			return nil, fmt.Errorf("invalid stale_days: %q", d)
		}
		staleDays = parsed
	}
	staleBefore := time.Now().AddDate(0, 0, -staleDays)

	leads, err := db.ListLeadsForFollowup(h.db, staleBefore, time.Now(), 50)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stale leads: %w", err)
	}
	approvals, err := db.ListPendingApprovals(h.db, 50)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending approvals: %w", err)
	}

	var promptText strings.Builder
	promptText.WriteString(fmt.Sprintf("Interessenten ohne Nachricht seit %d+ Tagen:\n\n", staleDays))

	if len(leads) == 0 {
		promptText.WriteString("Keine. Alle aktiven Interessenten haben aktuelle Nachrichten.\n")
	}
	for _, lead := range leads {
		promptText.WriteString(fmt.Sprintf("- %s (%s", lead.Name, lead.Status))
		if lead.Temperature != "" {
			promptText.WriteString(fmt.Sprintf(", %s", lead.Temperature))
		}
		if lead.LastMessageAt != nil {
			promptText.WriteString(fmt.Sprintf(", letzte Nachricht %s", lead.LastMessageAt.Format("02.01.2006")))
		}
		promptText.WriteString(")\n")
	}

	if len(approvals) > 0 {
		promptText.WriteString(fmt.Sprintf("\nBereits entworfene Follow-ups, die auf Freigabe warten: %d\n", len(approvals)))
	}

	promptText.WriteString("\nBitte liefere:")
	promptText.WriteString("\n1. Eine Reihenfolge, wer zuerst kontaktiert werden sollte, mit Begruendung")
	promptText.WriteString("\n2. Je Interessent einen passenden Aufhaenger fuer die Nachricht")
	promptText.WriteString("\n3. Interessenten, bei denen sich ein weiteres Follow-up nicht mehr lohnt")

	return &mcp.GetPromptResult{
		Description: "Follow-up prioritization",
		Messages: []*mcp.PromptMessage{
			{
				Role:    "user",
				Content: &mcp.TextContent{Text: promptText.String()},
			},
		},
	}, nil
}
