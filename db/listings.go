// ABOUTME: Listing database operations
// ABOUTME: CRUD, translation bookkeeping, and transactional merge of duplicates
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/restriden/simpli-immo-sub001/models"
)

const listingColumns = `id, name, city, price, rooms, area_sqm, status, ai_ready, description, translated_description, translated_at, created_at, updated_at`

// CreateListing inserts a listing, filling placeholder defaults for fields
// the caller left empty.
func CreateListing(db *sql.DB, listing *models.Listing) error {
	listing.ID = uuid.New()
	now := time.Now()
	listing.CreatedAt = now
	listing.UpdatedAt = now

	if listing.City == "" {
		listing.City = "Unbekannt"
	}
	if listing.Status == "" {
		listing.Status = models.ListingStatusActive
	}

	_, err := db.Exec(`
		INSERT INTO listings (id, name, city, price, rooms, area_sqm, status, ai_ready, description, translated_description, translated_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, listing.ID.String(), listing.Name, listing.City, listing.Price, listing.Rooms,
		listing.AreaSqm, listing.Status, listing.AIReady, listing.Description,
		listing.TranslatedDescription, listing.TranslatedAt, listing.CreatedAt, listing.UpdatedAt)

	return err
}

func GetListing(db *sql.DB, id uuid.UUID) (*models.Listing, error) {
	row := db.QueryRow(`SELECT `+listingColumns+` FROM listings WHERE id = $1`, id.String())

	listing, err := scanListing(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return listing, nil
}

func ListListings(db *sql.DB) ([]models.Listing, error) {
	rows, err := db.Query(`SELECT ` + listingColumns + ` FROM listings ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, *listing)
	}

	return listings, rows.Err()
}

func UpdateListing(db *sql.DB, id uuid.UUID, updates *models.Listing) error {
	updates.UpdatedAt = time.Now()

	_, err := db.Exec(`
		UPDATE listings
		SET name = $1, city = $2, price = $3, rooms = $4, area_sqm = $5, status = $6, ai_ready = $7, description = $8, updated_at = $9
		WHERE id = $10
	`, updates.Name, updates.City, updates.Price, updates.Rooms, updates.AreaSqm,
		updates.Status, updates.AIReady, updates.Description, updates.UpdatedAt, id.String())

	return err
}

func UpdateListingTranslation(db *sql.DB, id uuid.UUID, translated string, at time.Time) error {
	_, err := db.Exec(`
		UPDATE listings SET translated_description = $1, translated_at = $2, updated_at = $3 WHERE id = $4
	`, translated, at, time.Now(), id.String())

	return err
}

// ListListingsForTranslation returns the remaining work set for a translation
// run: described listings without a translation, or with fullRerun everything
// not yet translated by this run.
func ListListingsForTranslation(db *sql.DB, jobStartedAt time.Time, fullRerun bool, limit int) ([]models.Listing, error) {
	var rows *sql.Rows
	var err error

	if fullRerun {
		rows, err = db.Query(`
			SELECT `+listingColumns+` FROM listings
			WHERE description != '' AND (translated_at IS NULL OR translated_at < $1)
			ORDER BY created_at LIMIT $2
		`, jobStartedAt, limit)
	} else {
		rows, err = db.Query(`
			SELECT `+listingColumns+` FROM listings
			WHERE description != '' AND translated_at IS NULL
			ORDER BY created_at LIMIT $1
		`, limit)
	}

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, *listing)
	}

	return listings, rows.Err()
}

func CountListingsForTranslation(db *sql.DB, fullRerun bool) (int, error) {
	query := `SELECT COUNT(*) FROM listings WHERE description != '' AND translated_at IS NULL`
	if fullRerun {
		query = `SELECT COUNT(*) FROM listings WHERE description != ''`
	}

	var count int
	err := db.QueryRow(query).Scan(&count)
	return count, err
}

// MergeListings reassigns every lead, knowledge entry, and todo referencing
// the source listing to the target, then deletes the source. The whole merge
// runs in one transaction.
func MergeListings(db *sql.DB, sourceID, targetID uuid.UUID) error {
	if sourceID == targetID {
		return fmt.Errorf("cannot merge a listing into itself")
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // Safe even after commit
	}()

	now := time.Now()

	if _, err := tx.Exec(`
		UPDATE leads SET listing_id = $1, updated_at = $2 WHERE listing_id = $3
	`, targetID.String(), now, sourceID.String()); err != nil {
		return fmt.Errorf("failed to reassign leads: %w", err)
	}

	if _, err := tx.Exec(`
		UPDATE knowledge_entries SET listing_id = $1, updated_at = $2 WHERE listing_id = $3
	`, targetID.String(), now, sourceID.String()); err != nil {
		return fmt.Errorf("failed to reassign knowledge entries: %w", err)
	}

	if _, err := tx.Exec(`
		UPDATE todos SET listing_id = $1, updated_at = $2 WHERE listing_id = $3
	`, targetID.String(), now, sourceID.String()); err != nil {
		return fmt.Errorf("failed to reassign todos: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM listings WHERE id = $1`, sourceID.String()); err != nil {
		return fmt.Errorf("failed to delete merged listing: %w", err)
	}

	return tx.Commit()
}

func scanListing(row rowScanner) (*models.Listing, error) {
	listing := &models.Listing{}
	var translatedAt sql.NullTime

	err := row.Scan(
		&listing.ID,
		&listing.Name,
		&listing.City,
		&listing.Price,
		&listing.Rooms,
		&listing.AreaSqm,
		&listing.Status,
		&listing.AIReady,
		&listing.Description,
		&listing.TranslatedDescription,
		&translatedAt,
		&listing.CreatedAt,
		&listing.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if translatedAt.Valid {
		listing.TranslatedAt = &translatedAt.Time
	}

	return listing, nil
}
