// ABOUTME: Lead CLI commands
// ABOUTME: Listing, searching, and inspecting synced leads
package cli

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"

	"github.com/restriden/simpli-immo-sub001/db"
	"github.com/restriden/simpli-immo-sub001/models"
)

// LeadsCommand lists leads or shows one lead's timeline.
func LeadsCommand(database *sql.DB, args []string) error {
	if len(args) > 0 && args[0] == "show" {
		return showLead(database, args[1:])
	}

	fs := flag.NewFlagSet("leads", flag.ExitOnError)
	query := fs.String("query", "", "Search by name, email, or phone")
	status := fs.String("status", "", "Filter by status (neu/kontaktiert/besichtigt/finanzierung_bestaetigt/gekauft)")
	limit := fs.Int("limit", 50, "Maximum results")
	_ = fs.Parse(args)

	if *query != "" {
		leads, err := db.FindLeads(database, *query, *status, *limit)
		if err != nil {
			return fmt.Errorf("failed to find leads: %w", err)
		}
		return printLeads(leads)
	}

	overviews, err := db.ListLeadOverviews(database, *status, *limit)
	if err != nil {
		return fmt.Errorf("failed to list leads: %w", err)
	}

	if len(overviews) == 0 {
		fmt.Println("No leads found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tSTATUS\tTEMP\tSCORE\tLISTING\tMSGS\tTODOS\tID")
	_, _ = fmt.Fprintln(w, "----\t------\t----\t-----\t-------\t----\t-----\t--")

	for _, o := range overviews {
		listing := o.ListingName
		if listing == "" {
			listing = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			o.Name, o.Status, temperatureIcon(o.Temperature), formatScore(o.QualityScore),
			listing, o.MessageCount, o.OpenTodoCount, o.ID.String()[:8])
	}
	_ = w.Flush()

	fmt.Printf("\nTotal: %d lead(s)\n", len(overviews))
	return nil
}

func printLeads(leads []models.Lead) error {
	if len(leads) == 0 {
		fmt.Println("No leads found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tSTATUS\tTEMP\tSCORE\tEMAIL\tID")
	_, _ = fmt.Fprintln(w, "----\t------\t----\t-----\t-----\t--")

	for _, lead := range leads {
		email := lead.Email
		if email == "" {
			email = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			lead.Name, lead.Status, temperatureIcon(lead.Temperature),
			formatScore(lead.QualityScore), email, lead.ID.String()[:8])
	}
	_ = w.Flush()

	fmt.Printf("\nTotal: %d lead(s)\n", len(leads))
	return nil
}

func showLead(database *sql.DB, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("lead ID is required")
	}

	leadID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid lead ID: %w", err)
	}

	lead, err := db.GetLead(database, leadID)
	if err != nil {
		return fmt.Errorf("failed to lookup lead: %w", err)
	}
	if lead == nil {
		return fmt.Errorf("lead not found: %s", leadID)
	}

	fmt.Printf("%s (%s)\n", lead.Name, lead.Status)
	if lead.Email != "" {
		fmt.Printf("  Email: %s\n", lead.Email)
	}
	if lead.Phone != "" {
		fmt.Printf("  Phone: %s\n", lead.Phone)
	}
	if lead.Temperature != "" {
		fmt.Printf("  Temperature: %s %s (score %d)\n", temperatureIcon(lead.Temperature), lead.Temperature, lead.QualityScore)
	}
	if lead.Summary != "" {
		fmt.Printf("  Summary: %s\n", lead.Summary)
	}
	if lead.PipelineStage != "" {
		fmt.Printf("  Pipeline: %s%s\n", lead.PipelineStage, stageFlagsSuffix(lead))
	}
	if lead.ListingID != nil {
		listing, err := db.GetListing(database, *lead.ListingID)
		if err == nil && listing != nil {
			fmt.Printf("  Listing: %s\n", listing.Name)
		}
	}
	if lead.LastMessageAt != nil {
		fmt.Printf("  Last message: %s\n", lead.LastMessageAt.Format("2006-01-02 15:04"))
	}

	messages, err := db.ListMessagesByLead(database, leadID, 10)
	if err != nil {
		return fmt.Errorf("failed to list messages: %w", err)
	}
	if len(messages) > 0 {
		fmt.Println("\nRecent messages:")
		for _, msg := range messages {
			arrow := "←"
			if msg.Direction == models.DirectionOutgoing {
				arrow = "→"
			}
			fmt.Printf("  %s %s  %s\n", arrow, msg.SentAt.Format("02.01. 15:04"), truncate(msg.Content, 70))
		}
	}

	todos, err := db.ListTodos(database, &leadID, false, 10)
	if err != nil {
		return fmt.Errorf("failed to list todos: %w", err)
	}
	if len(todos) > 0 {
		fmt.Println("\nOpen todos:")
		for _, todo := range todos {
			due := ""
			if todo.DueAt != nil {
				due = fmt.Sprintf(" (due %s)", todo.DueAt.Format("02.01."))
			}
			fmt.Printf("  • %s%s\n", todo.Title, due)
		}
	}

	return nil
}

func stageFlagsSuffix(lead *models.Lead) string {
	reached := ""
	if lead.ReachedViewing {
		reached += " besichtigt"
	}
	if lead.ReachedFinancing {
		reached += " finanziert"
	}
	if lead.ReachedNotary {
		reached += " notar"
	}
	if lead.ReachedPurchase {
		reached += " gekauft"
	}
	if reached == "" {
		return ""
	}
	return " [" + reached[1:] + "]"
}

func temperatureIcon(temperature string) string {
	switch temperature {
	case models.TemperatureHot:
		return "🔴"
	case models.TemperatureWarm:
		return "🟡"
	case models.TemperatureCold:
		return "🔵"
	default:
		return "-"
	}
}

func formatScore(score int) string {
	if score == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", score)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
