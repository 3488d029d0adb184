// ABOUTME: Acquisition funnel graph generation via graphviz
// ABOUTME: Renders lead progression through the pipeline stages as DOT
package viz

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/restriden/simpli-immo-sub001/db"
	"github.com/restriden/simpli-immo-sub001/models"
)

// GraphGenerator renders pipeline graphs from the local database.
type GraphGenerator struct {
	db *sql.DB
}

func NewGraphGenerator(database *sql.DB) *GraphGenerator {
	return &GraphGenerator{db: database}
}

// funnelStage pairs a lead status with its node fill color, in
// acquisition order.
type funnelStage struct {
	status string
	fill   string
}

var funnelStages = []funnelStage{
	{models.LeadStatusNew, "lightgray"},
	{models.LeadStatusContacted, "lightblue"},
	{models.LeadStatusViewed, "lightyellow"},
	{models.LeadStatusFinanced, "orange"},
	{models.LeadStatusBought, "lightgreen"},
}

// GenerateFunnelGraph renders the acquisition funnel as DOT. Node counts
// show where leads currently sit; edge labels show how many leads ever
// reached the downstream milestone, so the two can legitimately differ.
func (g *GraphGenerator) GenerateFunnelGraph() (string, error) {
	ctx := context.Background()
	gv, err := graphviz.New(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create graphviz instance: %w", err)
	}
	defer gv.Close()

	graph, err := gv.Graph()
	if err != nil {
		return "", fmt.Errorf("failed to create graph: %w", err)
	}
	defer graph.Close()

	graph.SetRankDir(cgraph.LRRank)

	byStatus, err := db.CountLeadsByStatus(g.db)
	if err != nil {
		return "", fmt.Errorf("failed to count leads by status: %w", err)
	}

	stages, err := db.CountStageReached(g.db)
	if err != nil {
		return "", fmt.Errorf("failed to count stage milestones: %w", err)
	}

	// The notary milestone has no status of its own, so it only appears
	// in the graph label.
	graph.SetLabel(fmt.Sprintf("Lead funnel: %d active leads, %d reached the notary", stages.Total, stages.Notary))

	nodes := make([]*cgraph.Node, 0, len(funnelStages))
	for _, stage := range funnelStages {
		node, err := graph.CreateNodeByName(fmt.Sprintf("stage_%s", stage.status))
		if err != nil {
			return "", fmt.Errorf("failed to create stage node: %w", err)
		}
		node.SetLabel(fmt.Sprintf("%s\n%d leads", stage.status, byStatus[stage.status]))
		node.SetShape("box")
		node.SetStyle("filled")
		node.SetFillColor(stage.fill)
		nodes = append(nodes, node)
	}

	reached := []int{-1, stages.Viewing, stages.Financing, stages.Purchase}
	for i := 0; i < len(nodes)-1; i++ {
		edge, err := graph.CreateEdgeByName("", nodes[i], nodes[i+1])
		if err != nil {
			return "", fmt.Errorf("failed to create funnel edge: %w", err)
		}
		if reached[i] >= 0 {
			edge.SetLabel(fmt.Sprintf("%d reached", reached[i]))
		}
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, graphviz.XDOT, &buf); err != nil {
		return "", fmt.Errorf("failed to render graph: %w", err)
	}

	return buf.String(), nil
}
