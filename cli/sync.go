// ABOUTME: CRM connection and sync CLI commands
// ABOUTME: Handles OAuth connect, connection listing, and manual sync runs
package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/exec"
	goruntime "runtime"
	"text/tabwriter"

	"github.com/google/uuid"

	"github.com/restriden/simpli-immo-sub001/config"
	"github.com/restriden/simpli-immo-sub001/crm"
	"github.com/restriden/simpli-immo-sub001/db"
	"github.com/restriden/simpli-immo-sub001/models"
	"github.com/restriden/simpli-immo-sub001/sync"
)

// ConnectCommand prints the CRM authorization URL and opens it in a browser.
// The OAuth callback lands on the running server, which stores the connection.
func ConnectCommand(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("connect", flag.ExitOnError)
	user := fs.String("user", "", "Internal user ID carried through the OAuth state (required)")
	noBrowser := fs.Bool("no-browser", false, "Print the URL without opening a browser")
	_ = fs.Parse(args)

	if *user == "" {
		return fmt.Errorf("--user is required")
	}
	if err := cfg.RequireCRMCredentials(); err != nil {
		return err
	}

	authURL := crm.AuthorizeURL(cfg, *user)

	fmt.Println("Opening browser for CRM authorization...")
	fmt.Printf("\nIf the browser doesn't open, visit this URL:\n%s\n\n", authURL)
	fmt.Printf("The callback lands on %s, so 'immosync serve' must be running there.\n", cfg.OAuthRedirectURL)

	if !*noBrowser {
		_ = openBrowser(authURL)
	}
	return nil
}

// ConnectionsCommand lists CRM connections or deactivates one.
func ConnectionsCommand(database *sql.DB, args []string) error {
	if len(args) > 0 && args[0] == "deactivate" {
		return deactivateConnection(database, args[1:])
	}

	fs := flag.NewFlagSet("connections", flag.ExitOnError)
	all := fs.Bool("all", false, "Include inactive connections")
	_ = fs.Parse(args)

	connections, err := db.ListConnections(database, !*all)
	if err != nil {
		return fmt.Errorf("failed to list connections: %w", err)
	}

	if len(connections) == 0 {
		fmt.Println("No connections found. Run 'immosync connect' to link a CRM location.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "LOCATION\tUSER\tACTIVE\tLAST SYNC\tTOKEN EXPIRES\tID")
	_, _ = fmt.Fprintln(w, "--------\t----\t------\t---------\t-------------\t--")

	for _, conn := range connections {
		active := "yes"
		if !conn.IsActive {
			active = "no"
		}
		lastSync := "-"
		if conn.LastSyncAt != nil {
			lastSync = conn.LastSyncAt.Format("2006-01-02 15:04")
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			conn.LocationID, conn.UserID, active, lastSync,
			conn.ExpiresAt.Format("2006-01-02 15:04"), conn.ID.String()[:8])
	}
	_ = w.Flush()

	fmt.Printf("\nTotal: %d connection(s)\n", len(connections))
	return nil
}

func deactivateConnection(database *sql.DB, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("connection ID is required")
	}

	connID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid connection ID: %w", err)
	}

	conn, err := db.GetConnection(database, connID)
	if err != nil {
		return fmt.Errorf("failed to lookup connection: %w", err)
	}
	if conn == nil {
		return fmt.Errorf("connection not found: %s", connID)
	}

	if err := db.DeactivateConnection(database, connID); err != nil {
		return fmt.Errorf("failed to deactivate connection: %w", err)
	}

	fmt.Printf("✓ Connection deactivated: %s (%s)\n", conn.LocationID, connID)
	return nil
}

// SyncCommand runs a sync pass for one connection or all active ones.
func SyncCommand(database *sql.DB, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	connectionID := fs.String("connection", "", "Sync a single connection by ID")
	syncType := fs.String("type", models.SyncTypeFull, "Sync type (full/contacts/conversations/appointments/tasks/pipeline)")
	_ = fs.Parse(args)

	switch *syncType {
	case models.SyncTypeFull, models.SyncTypeContacts, models.SyncTypeConversations,
		models.SyncTypeAppointments, models.SyncTypeTasks, models.SyncTypePipeline:
	default:
		return fmt.Errorf("unknown sync type: %s", *syncType)
	}

	syncer := sync.NewSyncer(database, crm.NewClient(cfg), cfg)
	ctx := context.Background()

	if *connectionID != "" {
		connID, err := uuid.Parse(*connectionID)
		if err != nil {
			return fmt.Errorf("invalid connection ID: %w", err)
		}
		conn, err := db.GetConnection(database, connID)
		if err != nil {
			return fmt.Errorf("failed to lookup connection: %w", err)
		}
		if conn == nil {
			return fmt.Errorf("connection not found: %s", connID)
		}

		fmt.Printf("Syncing %s (%s)...\n", conn.LocationID, *syncType)
		return printSyncResults([]sync.Result{syncer.SyncConnection(ctx, conn, *syncType)})
	}

	fmt.Printf("Syncing all active connections (%s)...\n", *syncType)
	results, err := syncer.SyncAll(ctx, *syncType)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	if len(results) == 0 {
		fmt.Println("No active connections. Run 'immosync connect' first.")
		return nil
	}
	return printSyncResults(results)
}

func printSyncResults(results []sync.Result) error {
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			fmt.Printf("  ✗ %s: %v\n", res.LocationID, res.Err)
			failed++
			continue
		}

		total := 0
		errors := 0
		for _, count := range res.Counts {
			total += count.Synced
			errors += count.Errors
		}
		if errors > 0 {
			fmt.Printf("  ✓ %s: %d synced, %d errors (%s)\n", res.LocationID, total, errors, res.Status)
			continue
		}
		fmt.Printf("  ✓ %s: %d synced\n", res.LocationID, total)
	}

	if failed > 0 {
		return fmt.Errorf("%d connection(s) failed to sync", failed)
	}
	return nil
}

// openBrowser attempts to open URL in the default browser.
func openBrowser(url string) error {
	var cmd string
	var args []string

	switch goruntime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{url}
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start", url}
	default:
		cmd = "xdg-open"
		args = []string{url}
	}

	command := exec.Command(cmd, args...)
	return command.Start()
}
