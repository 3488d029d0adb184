package sync

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/restriden/simpli-immo-sub001/config"
	"github.com/restriden/simpli-immo-sub001/db"
	"github.com/restriden/simpli-immo-sub001/models"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	return database
}

func testConfig() *config.Config {
	return &config.Config{
		CRMClientID:     "client-id",
		CRMClientSecret: "client-secret",
		CRMAPIVersion:   "2021-07-28",
	}
}

func createTestConnection(t *testing.T, database *sql.DB, locationID string) *models.Connection {
	t.Helper()

	conn := &models.Connection{
		UserID:       "user-1",
		LocationID:   locationID,
		AccessToken:  "access-" + uuid.NewString(),
		RefreshToken: "refresh-" + uuid.NewString(),
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	if err := db.CreateConnection(database, conn); err != nil {
		t.Fatalf("CreateConnection failed: %v", err)
	}

	return conn
}

func createTestListing(t *testing.T, database *sql.DB, name string) *models.Listing {
	t.Helper()

	listing := &models.Listing{Name: name}
	if err := db.CreateListing(database, listing); err != nil {
		t.Fatalf("CreateListing failed: %v", err)
	}

	return listing
}
