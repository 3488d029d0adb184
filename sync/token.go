// ABOUTME: OAuth token refresh for CRM connections
// ABOUTME: Refreshes expiring access tokens and deactivates dead connections
package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/oauth2"

	"github.com/restriden/simpli-immo-sub001/config"
	"github.com/restriden/simpli-immo-sub001/crm"
	"github.com/restriden/simpli-immo-sub001/db"
	"github.com/restriden/simpli-immo-sub001/models"
)

// ErrTokenRefresh marks a connection whose refresh token no longer works.
var ErrTokenRefresh = errors.New("token refresh failed")

// tokenLookahead refreshes tokens this long before they actually expire.
const tokenLookahead = 5 * time.Minute

// EnsureValidToken refreshes the connection's access token when it is close
// to expiry and persists the new pair. A refresh failure deactivates the
// connection so the sync loop stops retrying a dead grant.
func EnsureValidToken(ctx context.Context, database *sql.DB, cfg *config.Config, conn *models.Connection) (*models.Connection, error) {
	if time.Until(conn.ExpiresAt) > tokenLookahead {
		return conn, nil
	}

	// Force the oauth2 transport to treat the token as stale so it always
	// hits the refresh endpoint.
	stale := &oauth2.Token{
		AccessToken:  conn.AccessToken,
		RefreshToken: conn.RefreshToken,
		Expiry:       time.Now().Add(-time.Minute),
	}
	token, err := crm.OAuthConfig(cfg).TokenSource(ctx, stale).Token()
	if err != nil {
		if deactivateErr := db.DeactivateConnection(database, conn.ID); deactivateErr != nil {
			log.Printf("failed to deactivate connection %s: %v", conn.ID, deactivateErr)
		}
		return nil, fmt.Errorf("%w for location %s: %v", ErrTokenRefresh, conn.LocationID, err)
	}

	refreshToken := token.RefreshToken
	if refreshToken == "" {
		refreshToken = conn.RefreshToken
	}
	if err := db.UpdateConnectionTokens(database, conn.ID, token.AccessToken, refreshToken, token.Expiry); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed tokens: %w", err)
	}

	return db.GetConnection(database, conn.ID)
}
