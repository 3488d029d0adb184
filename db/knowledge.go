// ABOUTME: Knowledge base database operations
// ABOUTME: Q/A entries learned from agent responses or entered by hand
package db

import (
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/restriden/simpli-immo-sub001/models"
)

const knowledgeColumns = `id, listing_id, question, answer, source, created_at, updated_at`

func CreateKnowledgeEntry(db *sql.DB, entry *models.KnowledgeEntry) error {
	entry.ID = uuid.New()
	now := time.Now()
	entry.CreatedAt = now
	entry.UpdatedAt = now
	if entry.Source == "" {
		entry.Source = models.KnowledgeSourceManual
	}

	_, err := db.Exec(`
		INSERT INTO knowledge_entries (id, listing_id, question, answer, source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ID.String(), uuidPtrString(entry.ListingID), entry.Question, entry.Answer,
		entry.Source, entry.CreatedAt, entry.UpdatedAt)

	return err
}

// ListKnowledgeEntries returns entries, optionally scoped to one listing.
func ListKnowledgeEntries(db *sql.DB, listingID *uuid.UUID, limit int) ([]models.KnowledgeEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows *sql.Rows
	var err error

	if listingID != nil {
		rows, err = db.Query(`
			SELECT `+knowledgeColumns+` FROM knowledge_entries
			WHERE listing_id = $1
			ORDER BY created_at DESC LIMIT $2
		`, listingID.String(), limit)
	} else {
		rows, err = db.Query(`
			SELECT `+knowledgeColumns+` FROM knowledge_entries
			ORDER BY created_at DESC LIMIT $1
		`, limit)
	}

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectKnowledgeEntries(rows)
}

// SearchKnowledge finds entries whose question or answer contains the query,
// used to assemble drafting context.
func SearchKnowledge(db *sql.DB, query string, limit int) ([]models.KnowledgeEntry, error) {
	if limit <= 0 {
		limit = 10
	}

	searchPattern := "%" + strings.ToLower(query) + "%"
	rows, err := db.Query(`
		SELECT `+knowledgeColumns+` FROM knowledge_entries
		WHERE LOWER(question) LIKE $1 OR LOWER(answer) LIKE $2
		ORDER BY created_at DESC LIMIT $3
	`, searchPattern, searchPattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectKnowledgeEntries(rows)
}

func DeleteKnowledgeEntry(db *sql.DB, id uuid.UUID) error {
	_, err := db.Exec(`DELETE FROM knowledge_entries WHERE id = $1`, id.String())
	return err
}

func collectKnowledgeEntries(rows *sql.Rows) ([]models.KnowledgeEntry, error) {
	var entries []models.KnowledgeEntry
	for rows.Next() {
		entry := models.KnowledgeEntry{}
		var listingID sql.NullString

		if err := rows.Scan(&entry.ID, &listingID, &entry.Question, &entry.Answer,
			&entry.Source, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
			return nil, err
		}

		if listingID.Valid {
			if id, err := uuid.Parse(listingID.String); err == nil {
				entry.ListingID = &id
			}
		}

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
