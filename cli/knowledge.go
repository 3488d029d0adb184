// ABOUTME: Knowledge base CLI commands
// ABOUTME: Lists, adds, and searches listing Q&A entries
package cli

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"

	"github.com/restriden/simpli-immo-sub001/db"
	"github.com/restriden/simpli-immo-sub001/models"
)

// KnowledgeCommand lists knowledge entries, adds one, or searches them.
func KnowledgeCommand(database *sql.DB, args []string) error {
	if len(args) > 0 {
		switch args[0] {
		case "add":
			return addKnowledge(database, args[1:])
		case "search":
			return searchKnowledge(database, args[1:])
		}
	}

	fs := flag.NewFlagSet("knowledge", flag.ExitOnError)
	listingID := fs.String("listing", "", "Filter by listing ID")
	limit := fs.Int("limit", 50, "Maximum results")
	_ = fs.Parse(args)

	var listingPtr *uuid.UUID
	if *listingID != "" {
		parsed, err := uuid.Parse(*listingID)
		if err != nil {
			return fmt.Errorf("invalid listing ID: %w", err)
		}
		listingPtr = &parsed
	}

	entries, err := db.ListKnowledgeEntries(database, listingPtr, *limit)
	if err != nil {
		return fmt.Errorf("failed to list knowledge entries: %w", err)
	}

	return printKnowledge(database, entries)
}

func addKnowledge(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("knowledge add", flag.ExitOnError)
	question := fs.String("question", "", "Question the entry answers (required)")
	answer := fs.String("answer", "", "Answer text (required)")
	listingID := fs.String("listing", "", "Listing the entry belongs to")
	_ = fs.Parse(args)

	if *question == "" || *answer == "" {
		return fmt.Errorf("--question and --answer are required")
	}

	entry := &models.KnowledgeEntry{
		Question: *question,
		Answer:   *answer,
		Source:   models.KnowledgeSourceManual,
	}
	if *listingID != "" {
		parsed, err := uuid.Parse(*listingID)
		if err != nil {
			return fmt.Errorf("invalid listing ID: %w", err)
		}
		listing, err := db.GetListing(database, parsed)
		if err != nil {
			return fmt.Errorf("failed to lookup listing: %w", err)
		}
		if listing == nil {
			return fmt.Errorf("listing not found: %s", parsed)
		}
		entry.ListingID = &parsed
	}

	if err := db.CreateKnowledgeEntry(database, entry); err != nil {
		return fmt.Errorf("failed to create knowledge entry: %w", err)
	}

	fmt.Printf("✓ Knowledge entry created (ID: %s)\n", entry.ID)
	return nil
}

func searchKnowledge(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("knowledge search", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Maximum results")
	_ = fs.Parse(args)

	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		return fmt.Errorf("search query is required")
	}

	entries, err := db.SearchKnowledge(database, query, *limit)
	if err != nil {
		return fmt.Errorf("failed to search knowledge: %w", err)
	}

	return printKnowledge(database, entries)
}

func printKnowledge(database *sql.DB, entries []models.KnowledgeEntry) error {
	if len(entries) == 0 {
		fmt.Println("No knowledge entries found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "QUESTION\tANSWER\tSOURCE\tLISTING\tID")
	_, _ = fmt.Fprintln(w, "--------\t------\t------\t-------\t--")

	for _, entry := range entries {
		listingName := "-"
		if entry.ListingID != nil {
			if listing, err := db.GetListing(database, *entry.ListingID); err == nil && listing != nil {
				listingName = listing.Name
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			truncate(entry.Question, 40), truncate(entry.Answer, 50),
			entry.Source, listingName, entry.ID.String()[:8])
	}
	_ = w.Flush()

	fmt.Printf("\nTotal: %d entries\n", len(entries))
	return nil
}
