// ABOUTME: Dashboard rendering for the TUI
// ABOUTME: Draws the connection, sync run, job, and approval sections
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/restriden/simpli-immo-sub001/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Underline(true)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	busyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")).
			Bold(true)

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	selectedStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			MarginTop(1)
)

func (m Model) View() string {
	var s strings.Builder

	s.WriteString(titleStyle.Render("Immosync Dashboard"))
	s.WriteString("\n\n")

	if m.syncing {
		s.WriteString(m.spinner.View())
		s.WriteString(busyStyle.Render(" Sync in progress..."))
		s.WriteString("\n\n")
	}

	m.renderConnections(&s)
	m.renderSyncRuns(&s)
	m.renderJobs(&s)
	m.renderApprovals(&s)
	m.renderActivity(&s)

	if m.err != nil {
		s.WriteString(failStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		s.WriteString("\n")
	}

	s.WriteString(helpStyle.Render("↑/↓: Select connection • Enter: Sync selected • s: Sync all • r: Refresh • q: Quit"))

	return s.String()
}

func (m Model) renderConnections(s *strings.Builder) {
	s.WriteString(headerStyle.Render("Connections"))
	s.WriteString("\n\n")

	if len(m.connections) == 0 {
		s.WriteString(mutedStyle.Render("  No connections. Run 'immosync connect' to link a CRM location."))
		s.WriteString("\n\n")
		return
	}

	for i, conn := range m.connections {
		var row strings.Builder

		if i == m.selected {
			row.WriteString("▶ ")
			row.WriteString(selectedStyle.Render(conn.LocationID))
		} else {
			row.WriteString("  ")
			row.WriteString(conn.LocationID)
		}

		if !conn.IsActive {
			row.WriteString(failStyle.Render("  ✗ inactive"))
		} else {
			row.WriteString(okStyle.Render("  ✓ active"))
			if conn.LastSyncAt != nil {
				row.WriteString(mutedStyle.Render(" • last synced " + formatTimeSince(*conn.LastSyncAt)))
			}
		}

		s.WriteString(row.String())
		s.WriteString("\n")
	}
	s.WriteString("\n")
}

func (m Model) renderSyncRuns(s *strings.Builder) {
	s.WriteString(headerStyle.Render("Recent Sync Runs"))
	s.WriteString("\n\n")

	if len(m.runs) == 0 {
		s.WriteString(mutedStyle.Render("  No sync runs yet."))
		s.WriteString("\n\n")
		return
	}

	locations := make(map[uuid.UUID]string, len(m.connections))
	for _, conn := range m.connections {
		locations[conn.ID] = conn.LocationID
	}

	for _, run := range m.runs {
		location := locations[run.ConnectionID]
		if location == "" {
			location = run.ConnectionID.String()[:8]
		}

		var status string
		switch run.Status {
		case models.SyncRunStatusSuccess:
			status = okStyle.Render("✓")
		case models.SyncRunStatusPartial:
			status = busyStyle.Render("◐")
		default:
			status = failStyle.Render("✗")
		}

		s.WriteString(fmt.Sprintf("  %s %-13s %-22s %s\n",
			status, run.SyncType, location, mutedStyle.Render(formatTimeSince(run.StartedAt))))
		if run.ErrorDetail != "" {
			s.WriteString(failStyle.Render("      " + truncateText(run.ErrorDetail, 60)))
			s.WriteString("\n")
		}
	}
	s.WriteString("\n")
}

func (m Model) renderJobs(s *strings.Builder) {
	s.WriteString(headerStyle.Render("Jobs"))
	s.WriteString("\n\n")

	if len(m.jobs) == 0 {
		s.WriteString(mutedStyle.Render("  No jobs yet. Start one with 'immosync jobs start'."))
		s.WriteString("\n\n")
		return
	}

	for _, job := range m.jobs {
		processed := job.AnalyzedCount + job.SkippedCount + job.FailedCount

		var icon string
		switch job.Status {
		case models.JobStatusRunning:
			icon = busyStyle.Render("⟳")
		case models.JobStatusCompleted:
			icon = okStyle.Render("✓")
		default:
			icon = failStyle.Render("✗")
		}

		s.WriteString(fmt.Sprintf("  %s %-19s %s %d/%d",
			icon, job.Kind, progressBar(processed, job.TotalItems), processed, job.TotalItems))
		if job.FailedCount > 0 {
			s.WriteString(failStyle.Render(fmt.Sprintf("  (%d failed)", job.FailedCount)))
		}
		s.WriteString("\n")
	}
	s.WriteString("\n")
}

func (m Model) renderApprovals(s *strings.Builder) {
	s.WriteString(headerStyle.Render(fmt.Sprintf("Pending Approvals (%d)", len(m.approvals))))
	s.WriteString("\n\n")

	if len(m.approvals) == 0 {
		s.WriteString(mutedStyle.Render("  Nothing waiting for a decision."))
		s.WriteString("\n\n")
		return
	}

	for _, approval := range m.approvals {
		name := m.leadNames[approval.LeadID]
		if name == "" {
			name = approval.LeadID.String()[:8]
		}

		s.WriteString(fmt.Sprintf("  • %s: %s %s\n",
			name, truncateText(approval.Draft, 50), mutedStyle.Render("expires "+formatUntil(approval.ExpiresAt))))
	}
	s.WriteString("\n")
}

func (m Model) renderActivity(s *strings.Builder) {
	if len(m.messages) == 0 {
		return
	}

	s.WriteString(headerStyle.Render("Activity"))
	s.WriteString("\n\n")
	for _, msg := range m.messages {
		s.WriteString(mutedStyle.Render("  " + msg))
		s.WriteString("\n")
	}
	s.WriteString("\n")
}

func progressBar(done, total int) string {
	if total <= 0 {
		return strings.Repeat("░", 10)
	}

	filled := done * 10 / total
	if filled > 10 {
		filled = 10
	}

	return strings.Repeat("█", filled) + strings.Repeat("░", 10-filled)
}

func truncateText(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

// formatTimeSince formats a past timestamp in a human-readable way.
func formatTimeSince(t time.Time) string {
	duration := time.Since(t)

	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		minutes := int(duration.Minutes())
		if minutes == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	case duration < 24*time.Hour:
		hours := int(duration.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	default:
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}

// formatUntil formats a future deadline relative to now.
func formatUntil(t time.Time) string {
	d := time.Until(t)

	switch {
	case d <= 0:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("in %d minutes", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("in %d hours", int(d.Hours()))
	default:
		return fmt.Sprintf("in %d days", int(d.Hours()/24))
	}
}
