// ABOUTME: Todo database operations
// ABOUTME: Upserts keyed on external task/event id plus manual todo CRUD
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/restriden/simpli-immo-sub001/models"
)

const todoColumns = `id, lead_id, listing_id, external_id, title, description, type, priority, source, due_at, completed, completed_at, created_at, updated_at`

// UpsertTodo persists a synced todo keyed on its external task/event id.
// Manual todos carry no external id and go through CreateTodo instead.
func UpsertTodo(db *sql.DB, todo *models.Todo) error {
	if todo.ExternalID == "" {
		return fmt.Errorf("todo is missing an external id")
	}

	prepareTodo(todo)

	columns := []string{
		"id", "lead_id", "listing_id", "external_id", "title", "description", "type",
		"priority", "source", "due_at", "completed", "completed_at", "created_at", "updated_at",
	}
	values := []any{
		todo.ID.String(), uuidPtrString(todo.LeadID), uuidPtrString(todo.ListingID), todo.ExternalID,
		todo.Title, todo.Description, todo.Type, todo.Priority, todo.Source, todo.DueAt,
		todo.Completed, todo.CompletedAt, todo.CreatedAt, todo.UpdatedAt,
	}
	updateCols := []string{"title", "description", "type", "priority", "due_at", "completed", "completed_at", "updated_at"}

	if err := Upsert(db, "todos", columns, values, "external_id", updateCols); err != nil {
		return fmt.Errorf("failed to upsert todo %s: %w", todo.ExternalID, err)
	}

	stored, err := GetTodoByExternalID(db, todo.ExternalID)
	if err != nil {
		return err
	}
	if stored != nil {
		*todo = *stored
	}

	return nil
}

func CreateTodo(db *sql.DB, todo *models.Todo) error {
	prepareTodo(todo)
	if todo.Source == "" {
		todo.Source = models.TodoSourceManual
	}

	var externalID *string
	if todo.ExternalID != "" {
		externalID = &todo.ExternalID
	}

	_, err := db.Exec(`
		INSERT INTO todos (id, lead_id, listing_id, external_id, title, description, type, priority, source, due_at, completed, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, todo.ID.String(), uuidPtrString(todo.LeadID), uuidPtrString(todo.ListingID), externalID,
		todo.Title, todo.Description, todo.Type, todo.Priority, todo.Source, todo.DueAt,
		todo.Completed, todo.CompletedAt, todo.CreatedAt, todo.UpdatedAt)

	return err
}

func GetTodo(db *sql.DB, id uuid.UUID) (*models.Todo, error) {
	row := db.QueryRow(`SELECT `+todoColumns+` FROM todos WHERE id = $1`, id.String())

	todo, err := scanTodo(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return todo, nil
}

func GetTodoByExternalID(db *sql.DB, externalID string) (*models.Todo, error) {
	row := db.QueryRow(`SELECT `+todoColumns+` FROM todos WHERE external_id = $1`, externalID)

	todo, err := scanTodo(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return todo, nil
}

// ListTodos returns todos, optionally scoped to one lead, open ones first by
// due date.
func ListTodos(db *sql.DB, leadID *uuid.UUID, includeCompleted bool, limit int) ([]models.Todo, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows *sql.Rows
	var err error

	switch {
	case leadID != nil && includeCompleted:
		rows, err = db.Query(`
			SELECT `+todoColumns+` FROM todos WHERE lead_id = $1
			ORDER BY completed, due_at LIMIT $2
		`, leadID.String(), limit)
	case leadID != nil:
		rows, err = db.Query(`
			SELECT `+todoColumns+` FROM todos WHERE lead_id = $1 AND completed = FALSE
			ORDER BY due_at LIMIT $2
		`, leadID.String(), limit)
	case includeCompleted:
		rows, err = db.Query(`
			SELECT `+todoColumns+` FROM todos
			ORDER BY completed, due_at LIMIT $1
		`, limit)
	default:
		rows, err = db.Query(`
			SELECT `+todoColumns+` FROM todos WHERE completed = FALSE
			ORDER BY due_at LIMIT $1
		`, limit)
	}

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var todos []models.Todo
	for rows.Next() {
		todo, err := scanTodo(rows)
		if err != nil {
			return nil, err
		}
		todos = append(todos, *todo)
	}

	return todos, rows.Err()
}

func CompleteTodo(db *sql.DB, id uuid.UUID, at time.Time) error {
	_, err := db.Exec(`
		UPDATE todos SET completed = TRUE, completed_at = $1, updated_at = $2 WHERE id = $3
	`, at, time.Now(), id.String())

	return err
}

func prepareTodo(todo *models.Todo) {
	if todo.ID == uuid.Nil {
		todo.ID = uuid.New()
	}
	now := time.Now()
	if todo.CreatedAt.IsZero() {
		todo.CreatedAt = now
	}
	todo.UpdatedAt = now
	if todo.Type == "" {
		todo.Type = models.TodoTypeMessage
	}
	if todo.Priority == "" {
		todo.Priority = models.PriorityNormal
	}
	if todo.Source == "" {
		todo.Source = models.TodoSourceTask
	}
}

func scanTodo(row rowScanner) (*models.Todo, error) {
	todo := &models.Todo{}
	var leadID, listingID, externalID sql.NullString
	var dueAt, completedAt sql.NullTime

	err := row.Scan(
		&todo.ID,
		&leadID,
		&listingID,
		&externalID,
		&todo.Title,
		&todo.Description,
		&todo.Type,
		&todo.Priority,
		&todo.Source,
		&dueAt,
		&todo.Completed,
		&completedAt,
		&todo.CreatedAt,
		&todo.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if leadID.Valid {
		if id, err := uuid.Parse(leadID.String); err == nil {
			todo.LeadID = &id
		}
	}
	if listingID.Valid {
		if id, err := uuid.Parse(listingID.String); err == nil {
			todo.ListingID = &id
		}
	}
	if externalID.Valid {
		todo.ExternalID = externalID.String
	}
	if dueAt.Valid {
		todo.DueAt = &dueAt.Time
	}
	if completedAt.Valid {
		todo.CompletedAt = &completedAt.Time
	}

	return todo, nil
}

func uuidPtrString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
