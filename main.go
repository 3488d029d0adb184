// ABOUTME: Entry point for the immosync server and CLI
// ABOUTME: Routes to serve, worker, sync, and management commands
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/restriden/simpli-immo-sub001/cli"
	"github.com/restriden/simpli-immo-sub001/config"
	"github.com/restriden/simpli-immo-sub001/db"
)

const version = "0.1.0"

func main() {
	showVersion := flag.Bool("version", false, "Show version and exit")
	dbPath := flag.String("db-path", "", "SQLite database path (default: ~/.local/share/immosync/immosync.db)")
	initOnly := flag.Bool("init", false, "Initialize the database schema and exit")

	// Parse global flags but don't fail on unknown (for subcommands)
	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("immosync version %s\n", version)
		os.Exit(0)
	}

	cfg := config.Load()

	// An explicit --db-path forces SQLite regardless of DATABASE_URL.
	if *dbPath != "" {
		cfg.DatabaseURL = ""
		cfg.DatabasePath = *dbPath
	}

	if *initOnly {
		database, err := db.Open(cfg.DatabaseURL, cfg.DatabasePath)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer database.Close()

		log.Println("Database initialized successfully")
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	command := args[0]
	commandArgs := args[1:]

	// Connect only prints the authorization URL, no database needed.
	if command == "connect" {
		if err := cli.ConnectCommand(cfg, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
		return
	}

	database, err := db.Open(cfg.DatabaseURL, cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	// The MCP server keeps its startup quiet for the stdio transport.
	if cfg.DatabaseURL == "" && command != "mcp" {
		log.Printf("Local database: %s", cfg.DatabasePath)
	}

	switch command {
	case "serve":
		if err := cli.ServeCommand(database, cfg, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}

	case "worker":
		if err := cli.WorkerCommand(database, cfg, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}

	case "sync":
		if err := cli.SyncCommand(database, cfg, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}

	case "connections":
		if err := cli.ConnectionsCommand(database, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}

	case "leads":
		if err := cli.LeadsCommand(database, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}

	case "listings":
		if err := cli.ListingsCommand(database, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}

	case "todos":
		if err := cli.TodosCommand(database, cfg, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}

	case "approvals":
		if err := cli.ApprovalsCommand(database, cfg, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}

	case "jobs":
		if err := cli.JobsCommand(database, cfg, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}

	case "knowledge":
		if err := cli.KnowledgeCommand(database, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}

	case "tui":
		if err := cli.TUICommand(database, cfg); err != nil {
			log.Fatalf("Error: %v", err)
		}

	case "viz":
		if len(commandArgs) == 0 {
			fmt.Println("Error: viz requires a subcommand (funnel or dashboard)")
			printUsage()
			os.Exit(1)
		}

		vizCommand := commandArgs[0]
		vizArgs := commandArgs[1:]

		switch vizCommand {
		case "funnel":
			if err := cli.VizFunnelCommand(database, vizArgs); err != nil {
				log.Fatalf("Error: %v", err)
			}
		case "dashboard":
			if err := cli.VizDashboardCommand(database, vizArgs); err != nil {
				log.Fatalf("Error: %v", err)
			}
		default:
			fmt.Printf("Unknown viz command: %s\n\n", vizCommand)
			printUsage()
			os.Exit(1)
		}

	case "mcp":
		if err := cli.MCPCommand(database, cfg); err != nil {
			log.Fatalf("MCP server failed: %v", err)
		}

	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`immosync v%s - CRM synchronization backend for real estate agents

USAGE:
  immosync [global flags] <command> [subcommand] [flags]

GLOBAL FLAGS:
  --version              Show version and exit
  --db-path <path>       SQLite database path (default: ~/.local/share/immosync/immosync.db)
  --init                 Initialize the database schema and exit

SERVER:
  immosync serve         Run the HTTP server (webhooks, OAuth callback, REST API)
    --addr <addr>          Listen address (default: from LISTEN_ADDR)
    --scheduler=<bool>     Run periodic sync and sweep schedules (default: true)

  immosync worker        Run a queue worker against the AMQP broker
    --scheduler            Also run periodic schedules on this worker

CRM SYNC:
  immosync connect       Print the CRM authorization URL for a new location
    --user <id>            Agent user ID to bind the connection to (required)
    --no-browser           Do not open the browser automatically

  immosync connections   List CRM connections
    --all                  Include deactivated connections
  immosync connections deactivate <id>   Deactivate a connection

  immosync sync          Sync CRM data into the local database
    --connection <id>      Sync a single connection
    --type <type>          full, contacts, conversations, appointments, tasks, or pipeline

DATA:
  immosync leads         List leads
    --query <text>         Search by name, email, or phone
    --status <status>      Filter by status (neu, kontaktiert, besichtigt, ...)
    --limit <n>            Max results (default: 50)
  immosync leads show <id>   Show one lead with messages and todos

  immosync listings      List property listings
  immosync listings add      Create a listing (--name required)
  immosync listings merge <source-id> <target-id>   Merge duplicate listings

  immosync todos         List open todos
    --lead <id>            Filter by lead
    --all                  Include completed todos
  immosync todos complete <id>   Complete a todo (writes back to the CRM task)

  immosync knowledge     List learned Q&A knowledge
  immosync knowledge add     Add an entry (--question and --answer required)
  immosync knowledge search <text>   Search entries

AI PIPELINE:
  immosync jobs          List recent analysis jobs
  immosync jobs start <kind>   Start a job (lead_analysis, followup_drafts, listing_translation)
    --full                 Re-process items that were already handled

  immosync approvals     List follow-up drafts waiting for a decision
  immosync approvals approve <id>   Approve and send a draft via the CRM
    --type <type>          Message channel (default: SMS)
  immosync approvals reject <id>    Reject a draft

DASHBOARDS:
  immosync tui           Interactive terminal dashboard
  immosync viz funnel    Export the acquisition funnel as a DOT graph
    --output <file>        Output file (default: stdout)
  immosync viz dashboard Print the stats dashboard

MCP SERVER:
  immosync mcp           Start the MCP server on stdio (for agent integrations)

EXAMPLES:
  # Run the server with the embedded queue
  immosync serve

  # Link a CRM location, then sync it
  immosync connect --user agent-42
  immosync sync

  # Review and send AI follow-up drafts
  immosync approvals
  immosync approvals approve 7d1f0e7a-... --type SMS

  # Start a lead analysis run
  immosync jobs start lead_analysis

`, version)
}
