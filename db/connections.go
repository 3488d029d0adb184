// ABOUTME: Connection database operations
// ABOUTME: Stores CRM location credentials, one active connection per location
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/restriden/simpli-immo-sub001/models"
)

func CreateConnection(db *sql.DB, conn *models.Connection) error {
	conn.ID = uuid.New()
	now := time.Now()
	conn.CreatedAt = now
	conn.UpdatedAt = now
	conn.IsActive = true

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // Safe even after commit
	}()

	// At most one active connection per location
	_, err = tx.Exec(`
		UPDATE connections SET is_active = FALSE, updated_at = $1
		WHERE location_id = $2 AND is_active = TRUE
	`, now, conn.LocationID)
	if err != nil {
		return fmt.Errorf("failed to deactivate prior connections: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO connections (id, user_id, location_id, company_id, access_token, refresh_token, expires_at, is_active, last_sync_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, conn.ID.String(), conn.UserID, conn.LocationID, conn.CompanyID, conn.AccessToken, conn.RefreshToken,
		conn.ExpiresAt, conn.IsActive, conn.LastSyncAt, conn.CreatedAt, conn.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert connection: %w", err)
	}

	return tx.Commit()
}

func GetConnection(db *sql.DB, id uuid.UUID) (*models.Connection, error) {
	row := db.QueryRow(`
		SELECT id, user_id, location_id, company_id, access_token, refresh_token, expires_at, is_active, last_sync_at, created_at, updated_at
		FROM connections WHERE id = $1
	`, id.String())

	conn, err := scanConnection(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// GetActiveConnectionByLocation returns the active connection for an external
// location id, or nil when none exists.
func GetActiveConnectionByLocation(db *sql.DB, locationID string) (*models.Connection, error) {
	row := db.QueryRow(`
		SELECT id, user_id, location_id, company_id, access_token, refresh_token, expires_at, is_active, last_sync_at, created_at, updated_at
		FROM connections WHERE location_id = $1 AND is_active = TRUE
	`, locationID)

	conn, err := scanConnection(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func ListConnections(db *sql.DB, activeOnly bool) ([]models.Connection, error) {
	query := `
		SELECT id, user_id, location_id, company_id, access_token, refresh_token, expires_at, is_active, last_sync_at, created_at, updated_at
		FROM connections ORDER BY created_at DESC
	`
	if activeOnly {
		query = `
			SELECT id, user_id, location_id, company_id, access_token, refresh_token, expires_at, is_active, last_sync_at, created_at, updated_at
			FROM connections WHERE is_active = TRUE ORDER BY created_at DESC
		`
	}

	rows, err := db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conns []models.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		conns = append(conns, *conn)
	}

	return conns, rows.Err()
}

func UpdateConnectionTokens(db *sql.DB, id uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) error {
	_, err := db.Exec(`
		UPDATE connections
		SET access_token = $1, refresh_token = $2, expires_at = $3, updated_at = $4
		WHERE id = $5
	`, accessToken, refreshToken, expiresAt, time.Now(), id.String())

	return err
}

func DeactivateConnection(db *sql.DB, id uuid.UUID) error {
	_, err := db.Exec(`
		UPDATE connections SET is_active = FALSE, updated_at = $1 WHERE id = $2
	`, time.Now(), id.String())

	return err
}

func UpdateConnectionLastSync(db *sql.DB, id uuid.UUID, at time.Time) error {
	_, err := db.Exec(`
		UPDATE connections SET last_sync_at = $1, updated_at = $2 WHERE id = $3
	`, at, time.Now(), id.String())

	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*models.Connection, error) {
	conn := &models.Connection{}
	var lastSyncAt sql.NullTime

	err := row.Scan(
		&conn.ID,
		&conn.UserID,
		&conn.LocationID,
		&conn.CompanyID,
		&conn.AccessToken,
		&conn.RefreshToken,
		&conn.ExpiresAt,
		&conn.IsActive,
		&lastSyncAt,
		&conn.CreatedAt,
		&conn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastSyncAt.Valid {
		conn.LastSyncAt = &lastSyncAt.Time
	}

	return conn, nil
}
