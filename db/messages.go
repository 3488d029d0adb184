// ABOUTME: Message database operations
// ABOUTME: Upserts keyed on external message id, content immutable after insert
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/restriden/simpli-immo-sub001/models"
)

const messageColumns = `id, lead_id, external_id, conversation_id, direction, channel, content, status, from_template, sent_at, created_at`

// UpsertMessage persists a message keyed on its external id. A replayed
// message only transitions delivery status; content never changes.
func UpsertMessage(db *sql.DB, msg *models.Message) error {
	if msg.ExternalID == "" {
		return fmt.Errorf("message is missing an external id")
	}

	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = msg.CreatedAt
	}
	if msg.Status == "" {
		msg.Status = models.MessageStatusPending
	}

	columns := []string{
		"id", "lead_id", "external_id", "conversation_id", "direction", "channel",
		"content", "status", "from_template", "sent_at", "created_at",
	}
	values := []any{
		msg.ID.String(), msg.LeadID.String(), msg.ExternalID, msg.ConversationID, msg.Direction,
		msg.Channel, msg.Content, msg.Status, msg.FromTemplate, msg.SentAt, msg.CreatedAt,
	}

	if err := Upsert(db, "messages", columns, values, "external_id", []string{"status"}); err != nil {
		return fmt.Errorf("failed to upsert message %s: %w", msg.ExternalID, err)
	}

	stored, err := GetMessageByExternalID(db, msg.ExternalID)
	if err != nil {
		return err
	}
	if stored != nil {
		*msg = *stored
	}

	return nil
}

func GetMessageByExternalID(db *sql.DB, externalID string) (*models.Message, error) {
	row := db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE external_id = $1`, externalID)

	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessagesByLead returns a lead's messages ordered by their external
// timestamp, newest first.
func ListMessagesByLead(db *sql.DB, leadID uuid.UUID, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.Query(`
		SELECT `+messageColumns+` FROM messages
		WHERE lead_id = $1
		ORDER BY sent_at DESC LIMIT $2
	`, leadID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *msg)
	}

	return msgs, rows.Err()
}

func UpdateMessageStatus(db *sql.DB, externalID, status string) error {
	_, err := db.Exec(`
		UPDATE messages SET status = $1 WHERE external_id = $2
	`, status, externalID)

	return err
}

func scanMessage(row rowScanner) (*models.Message, error) {
	msg := &models.Message{}

	err := row.Scan(
		&msg.ID,
		&msg.LeadID,
		&msg.ExternalID,
		&msg.ConversationID,
		&msg.Direction,
		&msg.Channel,
		&msg.Content,
		&msg.Status,
		&msg.FromTemplate,
		&msg.SentAt,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return msg, nil
}
