// ABOUTME: Todo CLI commands
// ABOUTME: Lists open todos and completes them with CRM write-back
package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/restriden/simpli-immo-sub001/config"
	"github.com/restriden/simpli-immo-sub001/crm"
	"github.com/restriden/simpli-immo-sub001/db"
	"github.com/restriden/simpli-immo-sub001/models"
	"github.com/restriden/simpli-immo-sub001/sync"
)

// TodosCommand lists todos or completes one.
func TodosCommand(database *sql.DB, cfg *config.Config, args []string) error {
	if len(args) > 0 && args[0] == "complete" {
		return completeTodo(database, cfg, args[1:])
	}

	fs := flag.NewFlagSet("todos", flag.ExitOnError)
	leadID := fs.String("lead", "", "Filter by lead ID")
	all := fs.Bool("all", false, "Include completed todos")
	limit := fs.Int("limit", 50, "Maximum results")
	_ = fs.Parse(args)

	var leadPtr *uuid.UUID
	if *leadID != "" {
		parsed, err := uuid.Parse(*leadID)
		if err != nil {
			return fmt.Errorf("invalid lead ID: %w", err)
		}
		leadPtr = &parsed
	}

	todos, err := db.ListTodos(database, leadPtr, *all, *limit)
	if err != nil {
		return fmt.Errorf("failed to list todos: %w", err)
	}

	if len(todos) == 0 {
		fmt.Println("No todos found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TITLE\tTYPE\tPRIORITY\tDUE\tSOURCE\tDONE\tID")
	_, _ = fmt.Fprintln(w, "-----\t----\t--------\t---\t------\t----\t--")

	for _, todo := range todos {
		due := "-"
		if todo.DueAt != nil {
			due = todo.DueAt.Format("2006-01-02")
		}
		done := "-"
		if todo.Completed {
			done = "✓"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncate(todo.Title, 40), todo.Type, todo.Priority, due,
			todo.Source, done, todo.ID.String()[:8])
	}
	_ = w.Flush()

	fmt.Printf("\nTotal: %d todo(s)\n", len(todos))
	return nil
}

func completeTodo(database *sql.DB, cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("todo ID is required")
	}

	todoID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid todo ID: %w", err)
	}

	todo, err := db.GetTodo(database, todoID)
	if err != nil {
		return fmt.Errorf("failed to lookup todo: %w", err)
	}
	if todo == nil {
		return fmt.Errorf("todo not found: %s", todoID)
	}
	if todo.Completed {
		fmt.Printf("Todo already completed: %s\n", todo.Title)
		return nil
	}

	if err := db.CompleteTodo(database, todoID, time.Now()); err != nil {
		return fmt.Errorf("failed to complete todo: %w", err)
	}

	// Write-back is best effort. The local row is already closed either way.
	if todo.Source == models.TodoSourceTask && todo.ExternalID != "" && todo.LeadID != nil {
		completeCRMTask(database, cfg, todo)
	}

	fmt.Printf("✓ Todo completed: %s\n", todo.Title)
	return nil
}

func completeCRMTask(database *sql.DB, cfg *config.Config, todo *models.Todo) {
	ctx := context.Background()

	lead, err := db.GetLead(database, *todo.LeadID)
	if err != nil || lead == nil {
		log.Printf("warning: lead lookup for todo %s failed: %v", todo.ID, err)
		return
	}
	conn, err := db.GetConnection(database, lead.ConnectionID)
	if err != nil || conn == nil || !conn.IsActive {
		log.Printf("warning: no active connection for todo %s write-back", todo.ID)
		return
	}
	conn, err = sync.EnsureValidToken(ctx, database, cfg, conn)
	if err != nil {
		log.Printf("warning: token refresh for todo %s write-back failed: %v", todo.ID, err)
		return
	}
	if err := crm.NewClient(cfg).CompleteTask(ctx, conn.AccessToken, lead.ExternalID, todo.ExternalID); err != nil {
		log.Printf("warning: failed to complete CRM task %s: %v", todo.ExternalID, err)
	}
}
