// ABOUTME: Listing MCP tool handlers
// ABOUTME: Implements the match_listing fuzzy lookup tool
package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/restriden/simpli-immo-sub001/db"
	"github.com/restriden/simpli-immo-sub001/models"
	"github.com/restriden/simpli-immo-sub001/sync"
)

type ListingHandlers struct {
	db *sql.DB
}

func NewListingHandlers(database *sql.DB) *ListingHandlers {
	return &ListingHandlers{db: database}
}

type MatchListingInput struct {
	Reference string `json:"reference" jsonschema:"Free-text property reference, e.g. an address fragment (required)"`
}

type ListingOutput struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	City    string  `json:"city,omitempty"`
	Price   int64   `json:"price,omitempty"`
	Rooms   float64 `json:"rooms,omitempty"`
	AreaSqm float64 `json:"area_sqm,omitempty"`
	Status  string  `json:"status"`
}

type MatchListingOutput struct {
	Matched bool           `json:"matched"`
	Score   float64        `json:"score"`
	Listing *ListingOutput `json:"listing,omitempty"`
}

// MatchListing scores the reference against every listing name and returns
// the best candidate. Unlike contact ingestion it never creates a
// placeholder row; an unmatched reference just reports matched false.
func (h *ListingHandlers) MatchListing(_ context.Context, request *mcp.CallToolRequest, input MatchListingInput) (*mcp.CallToolResult, MatchListingOutput, error) {
	reference := strings.TrimSpace(input.Reference)
	if reference == "" {
		return nil, MatchListingOutput{}, fmt.Errorf("reference is required")
	}

	listings, err := db.ListListings(h.db)
	if err != nil {
		return nil, MatchListingOutput{}, fmt.Errorf("failed to list listings: %w", err)
	}

	var best *models.Listing
	bestScore := 0.0
	for i := range listings {
		if score := sync.MatchScore(reference, listings[i].Name); score > bestScore {
			best = &listings[i]
			bestScore = score
		}
	}

	output := MatchListingOutput{Score: bestScore}
	if best != nil && bestScore > sync.MatchThreshold {
		output.Matched = true
		output.Listing = &ListingOutput{
			ID:      best.ID.String(),
			Name:    best.Name,
			City:    best.City,
			Price:   best.Price,
			Rooms:   best.Rooms,
			AreaSqm: best.AreaSqm,
			Status:  best.Status,
		}
	}

	return nil, output, nil
}
