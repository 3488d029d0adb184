// ABOUTME: Database operations for sync_runs and webhook_events tables
// ABOUTME: Structured logs for sync outcomes and received CRM push events
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/restriden/simpli-immo-sub001/models"
)

const syncRunColumns = `id, connection_id, sync_type, status, counts, error_detail, started_at, finished_at`

// StartSyncRun records the beginning of a sync for one connection. Runs
// start as failed; only FinishSyncRun promotes them, so a crashed run never
// reads as successful.
func StartSyncRun(db *sql.DB, connectionID uuid.UUID, syncType string) (*models.SyncRun, error) {
	run := &models.SyncRun{
		ID:           uuid.New(),
		ConnectionID: connectionID,
		SyncType:     syncType,
		Status:       models.SyncRunStatusFailed,
		StartedAt:    time.Now(),
	}

	_, err := db.Exec(`
		INSERT INTO sync_runs (id, connection_id, sync_type, status, counts, error_detail, started_at, finished_at)
		VALUES ($1, $2, $3, 'failed', '', '', $4, NULL)
	`, run.ID.String(), run.ConnectionID.String(), run.SyncType, run.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert sync run: %w", err)
	}

	return run, nil
}

// FinishSyncRun records the outcome of a sync run.
func FinishSyncRun(db *sql.DB, id uuid.UUID, status, counts, errorDetail string) error {
	_, err := db.Exec(`
		UPDATE sync_runs SET status = $1, counts = $2, error_detail = $3, finished_at = $4
		WHERE id = $5
	`, status, counts, errorDetail, time.Now(), id.String())
	if err != nil {
		return fmt.Errorf("failed to finish sync run: %w", err)
	}

	return nil
}

// ListSyncRuns returns recent sync runs, optionally scoped to one connection.
func ListSyncRuns(db *sql.DB, connectionID *uuid.UUID, limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows *sql.Rows
	var err error

	if connectionID != nil {
		rows, err = db.Query(`
			SELECT `+syncRunColumns+` FROM sync_runs
			WHERE connection_id = $1
			ORDER BY started_at DESC LIMIT $2
		`, connectionID.String(), limit)
	} else {
		rows, err = db.Query(`
			SELECT `+syncRunColumns+` FROM sync_runs
			ORDER BY started_at DESC LIMIT $1
		`, limit)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []models.SyncRun
	for rows.Next() {
		var run models.SyncRun
		var finishedAt sql.NullTime

		err := rows.Scan(
			&run.ID,
			&run.ConnectionID,
			&run.SyncType,
			&run.Status,
			&run.Counts,
			&run.ErrorDetail,
			&run.StartedAt,
			&finishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}

		if finishedAt.Valid {
			run.FinishedAt = &finishedAt.Time
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync runs: %w", err)
	}

	return runs, nil
}

// LogWebhookEvent records a received push event. Every handled event is
// logged regardless of what its downstream triggers do.
func LogWebhookEvent(db *sql.DB, eventType, locationID, externalID string) error {
	_, err := db.Exec(`
		INSERT INTO webhook_events (id, event_type, location_id, external_id, received_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New().String(), eventType, locationID, externalID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to log webhook event: %w", err)
	}

	return nil
}

func ListRecentWebhookEvents(db *sql.DB, limit int) ([]models.WebhookEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.Query(`
		SELECT id, event_type, location_id, external_id, received_at
		FROM webhook_events ORDER BY received_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhook events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []models.WebhookEvent
	for rows.Next() {
		var event models.WebhookEvent
		if err := rows.Scan(&event.ID, &event.EventType, &event.LocationID, &event.ExternalID, &event.ReceivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan webhook event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating webhook events: %w", err)
	}

	return events, nil
}

// CountWebhookEventsSince reports webhook volume for dashboards.
func CountWebhookEventsSince(db *sql.DB, since time.Time) (int, error) {
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM webhook_events WHERE received_at >= $1
	`, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count webhook events: %w", err)
	}

	return count, nil
}
