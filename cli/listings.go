// ABOUTME: Listing CLI commands
// ABOUTME: Listing inventory, manual entry, and duplicate merging
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

// ListingsCommand lists listings, adds one, or merges duplicates.
func ListingsCommand(database *sql.DB, args []string) error {
	if len(args) > 0 {
		switch args[0] {
		case "add":
			return addListing(database, args[1:])
		case "merge":
			return mergeListings(database, args[1:])
		}
	}

	fs := flag.NewFlagSet("listings", flag.ExitOnError)
	_ = fs.Parse(args)

	listings, err := db.ListListings(database)
	if err != nil {
		return fmt.Errorf("failed to list listings: %w", err)
	}

	if len(listings) == 0 {
		fmt.Println("No listings found. Add one with 'immosync listings add'.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tCITY\tPRICE\tROOMS\tAREA\tSTATUS\tAI\tID")
	_, _ = fmt.Fprintln(w, "----\t----\t-----\t-----\t----\t------\t--\t--")

	for _, listing := range listings {
		city := listing.City
		if city == "" {
			city = "-"
		}
		ai := "-"
		if listing.AIReady {
			ai = "✓"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.1f\t%.0f m²\t%s\t%s\t%s\n",
			listing.Name, city, formatPrice(listing.Price), listing.Rooms,
			listing.AreaSqm, listing.Status, ai, listing.ID.String()[:8])
	}
	_ = w.Flush()

	fmt.Printf("\nTotal: %d listing(s)\n", len(listings))
	return nil
}

func addListing(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("listings add", flag.ExitOnError)
	name := fs.String("name", "", "Listing name (required)")
	city := fs.String("city", "", "City")
	price := fs.Int64("price", 0, "Price in cents")
	rooms := fs.Float64("rooms", 0, "Number of rooms")
	area := fs.Float64("area", 0, "Living area in square meters")
	description := fs.String("description", "", "German description")
	aiReady := fs.Bool("ai-ready", false, "Allow the assistant to use this listing")
	_ = fs.Parse(args)

	if *name == "" {
		return fmt.Errorf("--name is required")
	}

	listing := &models.Listing{
		Name:        *name,
		City:        *city,
		Price:       *price,
		Rooms:       *rooms,
		AreaSqm:     *area,
		Status:      models.ListingStatusActive,
		AIReady:     *aiReady,
		Description: *description,
	}

	if err := db.CreateListing(database, listing); err != nil {
		return fmt.Errorf("failed to create listing: %w", err)
	}

	fmt.Printf("✓ Listing created: %s (ID: %s)\n", listing.Name, listing.ID)
	if listing.City != "" {
		fmt.Printf("  City: %s\n", listing.City)
	}
	if listing.Price > 0 {
		fmt.Printf("  Price: %s\n", formatPrice(listing.Price))
	}
	return nil
}

// mergeListings folds one listing into another. Leads, todos, and knowledge
// entries move in the same transaction the source row is deleted in.
func mergeListings(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("listings merge", flag.ExitOnError)
	_ = fs.Parse(args)

	if fs.NArg() < 2 {
		return fmt.Errorf("source and target listing IDs are required")
	}

	sourceID, err := uuid.Parse(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("invalid source listing ID: %w", err)
	}
	targetID, err := uuid.Parse(fs.Arg(1))
	if err != nil {
		return fmt.Errorf("invalid target listing ID: %w", err)
	}

	source, err := db.GetListing(database, sourceID)
	if err != nil {
		return fmt.Errorf("failed to lookup source listing: %w", err)
	}
	if source == nil {
		return fmt.Errorf("source listing not found: %s", sourceID)
	}
	target, err := db.GetListing(database, targetID)
	if err != nil {
		return fmt.Errorf("failed to lookup target listing: %w", err)
	}
	if target == nil {
		return fmt.Errorf("target listing not found: %s", targetID)
	}

	if err := db.MergeListings(database, sourceID, targetID); err != nil {
		return fmt.Errorf("failed to merge listings: %w", err)
	}

	fmt.Printf("✓ Merged %q into %q\n", source.Name, target.Name)
	fmt.Printf("  Leads, todos, and knowledge entries now point at %s\n", targetID)
	return nil
}

func formatPrice(cents int64) string {
	if cents == 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f €", float64(cents)/100)
}
