// ABOUTME: Terminal dashboard statistics and rendering
// ABOUTME: Provides an ASCII overview of the local sync database
package viz

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/restriden/simpli-immo-sub001/db"
	"github.com/restriden/simpli-immo-sub001/models"
)

// staleAfter marks leads with no message activity for this long as
// needing attention.
const staleAfter = 7 * 24 * time.Hour

// approvalWarnWindow flags pending approvals that expire within it.
const approvalWarnWindow = 12 * time.Hour

type DashboardStats struct {
	LeadsByStatus      map[string]int
	LeadsByTemperature map[string]int
	Stages             models.StageCounts

	TotalListings     int
	ListingsWithoutAI int

	PendingApprovals int
	ExpiringSoon     int
	OpenTodos        int

	ActiveConnections int
	LastSyncAt        *time.Time

	StaleLeads int
}

func GenerateDashboardStats(database *sql.DB) (*DashboardStats, error) {
	stats := &DashboardStats{}

	var err error
	stats.LeadsByStatus, err = db.CountLeadsByStatus(database)
	if err != nil {
		return nil, fmt.Errorf("failed to count leads by status: %w", err)
	}

	stats.LeadsByTemperature, err = db.CountLeadsByTemperature(database)
	if err != nil {
		return nil, fmt.Errorf("failed to count leads by temperature: %w", err)
	}

	stats.Stages, err = db.CountStageReached(database)
	if err != nil {
		return nil, fmt.Errorf("failed to count stage milestones: %w", err)
	}

	listings, err := db.ListListings(database)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch listings: %w", err)
	}
	stats.TotalListings = len(listings)
	for _, listing := range listings {
		if !listing.AIReady {
			stats.ListingsWithoutAI++
		}
	}

	now := time.Now()
	approvals, err := db.ListPendingApprovals(database, 1000)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending approvals: %w", err)
	}
	stats.PendingApprovals = len(approvals)
	for _, approval := range approvals {
		if approval.ExpiresAt.Before(now.Add(approvalWarnWindow)) {
			stats.ExpiringSoon++
		}
	}

	todos, err := db.ListTodos(database, nil, false, 1000)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch todos: %w", err)
	}
	stats.OpenTodos = len(todos)

	connections, err := db.ListConnections(database, true)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch connections: %w", err)
	}
	stats.ActiveConnections = len(connections)
	for _, conn := range connections {
		if conn.LastSyncAt == nil {
			continue
		}
		if stats.LastSyncAt == nil || conn.LastSyncAt.After(*stats.LastSyncAt) {
			stats.LastSyncAt = conn.LastSyncAt
		}
	}

	// Bought leads drop out of the attention list.
	leads, err := db.FindLeads(database, "", "", 10000)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch leads: %w", err)
	}
	for _, lead := range leads {
		if lead.Status == models.LeadStatusBought {
			continue
		}
		if lead.LastMessageAt != nil && now.Sub(*lead.LastMessageAt) > staleAfter {
			stats.StaleLeads++
		}
	}

	return stats, nil
}

func RenderDashboard(stats *DashboardStats) string {
	var out strings.Builder

	// Header
	out.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	out.WriteString("  IMMOSYNC DASHBOARD\n")
	out.WriteString("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

	// Funnel by current status
	out.WriteString("LEAD FUNNEL\n")
	renderFunnel(&out, stats.LeadsByStatus)
	out.WriteString("\n")

	// Cumulative milestones from the sticky stage flags
	out.WriteString("MILESTONES\n")
	out.WriteString(fmt.Sprintf("  🏠 %d viewings  💶 %d financing  📜 %d notary  🔑 %d purchases\n\n",
		stats.Stages.Viewing, stats.Stages.Financing, stats.Stages.Notary, stats.Stages.Purchase))

	// Stats
	out.WriteString("STATS\n")
	out.WriteString(fmt.Sprintf("  👤 %d leads  🏢 %d listings  🔗 %d connections\n",
		stats.Stages.Total, stats.TotalListings, stats.ActiveConnections))
	out.WriteString(fmt.Sprintf("  🔴 %d heiss  🟡 %d warm  🔵 %d kalt\n",
		stats.LeadsByTemperature[models.TemperatureHot],
		stats.LeadsByTemperature[models.TemperatureWarm],
		stats.LeadsByTemperature[models.TemperatureCold]))
	if stats.LastSyncAt != nil {
		out.WriteString(fmt.Sprintf("  Last sync: %s\n", stats.LastSyncAt.Format("02.01.2006 15:04")))
	}
	out.WriteString("\n")

	// Work queue
	out.WriteString("WORK QUEUE\n")
	out.WriteString(fmt.Sprintf("  📝 %d pending approvals  📋 %d open todos\n\n",
		stats.PendingApprovals, stats.OpenTodos))

	// Needs attention
	if stats.StaleLeads > 0 || stats.ExpiringSoon > 0 || stats.ListingsWithoutAI > 0 {
		out.WriteString("NEEDS ATTENTION\n")

		if stats.StaleLeads > 0 {
			out.WriteString(fmt.Sprintf("  ⚠️  %d leads - no message activity in 7+ days\n", stats.StaleLeads))
		}

		if stats.ExpiringSoon > 0 {
			out.WriteString(fmt.Sprintf("  ⚠️  %d approvals - expiring within 12 hours\n", stats.ExpiringSoon))
		}

		if stats.ListingsWithoutAI > 0 {
			out.WriteString(fmt.Sprintf("  ⚠️  %d listings - missing AI description\n", stats.ListingsWithoutAI))
		}
	}

	return out.String()
}

func renderFunnel(out *strings.Builder, byStatus map[string]int) {
	statuses := []string{
		models.LeadStatusNew,
		models.LeadStatusContacted,
		models.LeadStatusViewed,
		models.LeadStatusFinanced,
		models.LeadStatusBought,
	}

	// Find max count for scaling
	maxCount := 0
	for _, status := range statuses {
		if byStatus[status] > maxCount {
			maxCount = byStatus[status]
		}
	}
	if maxCount == 0 {
		maxCount = 1
	}

	for _, status := range statuses {
		count := byStatus[status]

		// Calculate bar length (0-10 blocks)
		barLength := (count * 10) / maxCount
		bar := strings.Repeat("█", barLength) + strings.Repeat("░", 10-barLength)

		out.WriteString(fmt.Sprintf("  %-24s %s %3d\n", status, bar, count))
	}
}
