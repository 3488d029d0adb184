// ABOUTME: PromptTemplate database operations
// ABOUTME: Named template overrides, absent rows fall back to compiled-in defaults
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/restriden/simpli-immo-sub001/models"
)

// GetPromptTemplate returns the stored template override by name, or nil when
// the compiled-in default should be used.
func GetPromptTemplate(db *sql.DB, name string) (*models.PromptTemplate, error) {
	tmpl := &models.PromptTemplate{}

	err := db.QueryRow(`
		SELECT id, name, template, created_at, updated_at
		FROM prompt_templates WHERE name = $1
	`, name).Scan(&tmpl.ID, &tmpl.Name, &tmpl.Template, &tmpl.CreatedAt, &tmpl.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return tmpl, nil
}

// SetPromptTemplate stores or replaces a named template override.
func SetPromptTemplate(db *sql.DB, name, template string) error {
	now := time.Now()

	columns := []string{"id", "name", "template", "created_at", "updated_at"}
	values := []any{uuid.New().String(), name, template, now, now}

	if err := Upsert(db, "prompt_templates", columns, values, "name", []string{"template", "updated_at"}); err != nil {
		return fmt.Errorf("failed to set prompt template %s: %w", name, err)
	}

	return nil
}

func ListPromptTemplates(db *sql.DB) ([]models.PromptTemplate, error) {
	rows, err := db.Query(`
		SELECT id, name, template, created_at, updated_at
		FROM prompt_templates ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []models.PromptTemplate
	for rows.Next() {
		var tmpl models.PromptTemplate
		if err := rows.Scan(&tmpl.ID, &tmpl.Name, &tmpl.Template, &tmpl.CreatedAt, &tmpl.UpdatedAt); err != nil {
			return nil, err
		}
		templates = append(templates, tmpl)
	}

	return templates, rows.Err()
}

func DeletePromptTemplate(db *sql.DB, name string) error {
	_, err := db.Exec(`DELETE FROM prompt_templates WHERE name = $1`, name)
	return err
}
