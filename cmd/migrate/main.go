// ABOUTME: Schema utility for the immosync database
// ABOUTME: Applies missing tables with dry-run and backup support

package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/restriden/simpli-immo-sub001/db"
)

// schemaTables lists every table InitSchema manages, in creation order.
var schemaTables = []string{
	"connections", "listings", "leads", "messages", "todos",
	"knowledge_entries", "analysis_jobs", "followup_approvals",
	"sync_runs", "webhook_events", "prompt_templates",
}

func main() {
	dbPath := flag.String("db", "", "Path to the SQLite database file")
	dsn := flag.String("dsn", os.Getenv("DATABASE_URL"), "Postgres DSN (default: DATABASE_URL)")
	dryRun := flag.Bool("dry-run", false, "Show what would happen without making changes")
	backup := flag.Bool("backup", true, "Create a backup before migrating (SQLite only)")
	flag.Parse()

	if *dbPath == "" && *dsn == "" {
		log.Fatal("Error: -db or -dsn is required")
	}

	if err := migrate(*dsn, *dbPath, *dryRun, *backup); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("Migration completed successfully")
}

func migrate(dsn, dbPath string, dryRun, createBackup bool) error {
	if dsn == "" {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return fmt.Errorf("database file does not exist: %s", dbPath)
		}

		if createBackup && !dryRun {
			backupPath := fmt.Sprintf("%s.backup.%s", dbPath, time.Now().Format("20060102-150405"))
			log.Printf("Creating backup: %s", backupPath)

			input, err := os.ReadFile(dbPath)
			if err != nil {
				return fmt.Errorf("failed to read database: %w", err)
			}

			if err := os.WriteFile(backupPath, input, 0644); err != nil {
				return fmt.Errorf("failed to create backup: %w", err)
			}
			log.Printf("Backup created successfully")
		}
	}

	// Open without db.Open: that helper applies the schema on connect,
	// which would make the dry run pointless.
	database, err := open(dsn, dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = database.Close() }()

	tables, err := getCurrentTables(database, dsn != "")
	if err != nil {
		return fmt.Errorf("failed to inspect current tables: %w", err)
	}

	log.Printf("Current tables: %v", tables)

	missing := missingTables(tables)
	if len(missing) == 0 {
		log.Printf("Schema is up to date, nothing to do")
		return nil
	}

	if dryRun {
		log.Printf("[DRY RUN] Would create tables: %v", missing)
		log.Printf("[DRY RUN] Would create indexes for lead, todo, and approval lookups")
		return nil
	}

	log.Printf("Creating missing tables: %v", missing)
	if err := db.InitSchema(database); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

func open(dsn, dbPath string) (*sql.DB, error) {
	if dsn != "" {
		database, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, err
		}
		if err := database.Ping(); err != nil {
			database.Close()
			return nil, err
		}
		return database, nil
	}

	return sql.Open("sqlite3", dbPath)
}

func getCurrentTables(database *sql.DB, postgres bool) ([]string, error) {
	query := "SELECT name FROM sqlite_master WHERE type='table' ORDER BY name"
	if postgres {
		query = "SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' ORDER BY table_name"
	}

	rows, err := database.Query(query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}

	return tables, rows.Err()
}

func missingTables(current []string) []string {
	present := make(map[string]bool, len(current))
	for _, table := range current {
		present[table] = true
	}

	var missing []string
	for _, table := range schemaTables {
		if !present[table] {
			missing = append(missing, table)
		}
	}

	return missing
}
