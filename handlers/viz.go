// ABOUTME: Graphviz visualization MCP handlers
// ABOUTME: Provides the funnel_graph tool for agents
package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/restriden/simpli-immo-sub001/viz"
)

type VizHandlers struct {
	db *sql.DB
}

func NewVizHandlers(database *sql.DB) *VizHandlers {
	return &VizHandlers{db: database}
}

type FunnelGraphInput struct{}

type FunnelGraphOutput struct {
	DOTSource string `json:"dot_source"`
	NodeCount int    `json:"node_count"`
	EdgeCount int    `json:"edge_count"`
}

// FunnelGraph renders the lead funnel as DOT source so an agent can pass it
// to a renderer or reason about the stage flow directly.
func (h *VizHandlers) FunnelGraph(_ context.Context, request *mcp.CallToolRequest, input FunnelGraphInput) (*mcp.CallToolResult, FunnelGraphOutput, error) {
	dot, err := viz.NewGraphGenerator(h.db).GenerateFunnelGraph()
	if err != nil {
		return nil, FunnelGraphOutput{}, fmt.Errorf("failed to generate funnel graph: %w", err)
	}

	return nil, FunnelGraphOutput{
		DOTSource: dot,
		NodeCount: strings.Count(dot, "[label="),
		EdgeCount: strings.Count(dot, "->"),
	}, nil
}
