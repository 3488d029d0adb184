// ABOUTME: MCP server subcommand
// ABOUTME: Exposes lead, approval, sync, and listing tools to agents over stdio
package cli

import (
	"context"
	"database/sql"
	"log"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/restriden/simpli-immo-sub001/config"
	"github.com/restriden/simpli-immo-sub001/handlers"
)

// MCPCommand starts the MCP server on stdio
func MCPCommand(database *sql.DB, cfg *config.Config) error {
	log.Println("Starting immosync MCP server...")

	leadHandlers := handlers.NewLeadHandlers(database)
	approvalHandlers := handlers.NewApprovalHandlers(database, cfg)
	syncHandlers := handlers.NewSyncHandlers(database)
	listingHandlers := handlers.NewListingHandlers(database)
	queryHandlers := handlers.NewQueryHandlers(database)
	vizHandlers := handlers.NewVizHandlers(database)
	promptHandlers := handlers.NewPromptHandlers(database)
	resourceHandlers := handlers.NewResourceHandlers(database)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "immosync",
		Version: "0.1.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "find_leads",
		Description: "Search leads by name, email, or phone, optionally filtered by status",
	}, leadHandlers.FindLeads)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_lead_timeline",
		Description: "Get a lead's profile with recent messages and open todos",
	}, leadHandlers.GetLeadTimeline)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_pending_approvals",
		Description: "List follow-up drafts waiting for a decision",
	}, approvalHandlers.ListPendingApprovals)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "decide_followup",
		Description: "Approve or reject a pending follow-up draft; approving sends it via the CRM",
	}, approvalHandlers.DecideFollowup)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_status",
		Description: "Show CRM connections, recent sync runs, and webhook activity",
	}, syncHandlers.SyncStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "match_listing",
		Description: "Find the listing a free-text property reference points at",
	}, listingHandlers.MatchListing)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "query_crm",
		Description: "Universal query tool for flexible filtering across entity types (lead, listing, todo, approval, knowledge)",
	}, queryHandlers.QueryCRM)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "funnel_graph",
		Description: "Render the lead funnel as Graphviz DOT source",
	}, vizHandlers.FunnelGraph)

	for _, prompt := range promptHandlers.Prompts() {
		server.AddPrompt(prompt, promptHandlers.GetPrompt)
	}
	for _, resource := range resourceHandlers.Resources() {
		server.AddResource(resource, resourceHandlers.ReadResource)
	}
	for _, template := range resourceHandlers.ResourceTemplates() {
		server.AddResourceTemplate(template, resourceHandlers.ReadResource)
	}

	ctx := context.Background()
	return server.Run(ctx, &mcp.StdioTransport{})
}
