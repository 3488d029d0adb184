package sync

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/restriden/simpli-immo-sub001/db"
)

func TestEnsureValidTokenRefreshes(t *testing.T) {
	var refreshCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm failed: %v", err)
		}
		if got := r.FormValue("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q, want refresh_token", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token": "new-access", "refresh_token": "new-refresh", "token_type": "Bearer", "expires_in": 3600}`))
	}))
	defer server.Close()

	database := testDB(t)
	cfg := testConfig()
	cfg.CRMTokenURL = server.URL + "/oauth/token"

	conn := createTestConnection(t, database, "loc-1")
	// Push the expiry inside the refresh lookahead.
	if err := db.UpdateConnectionTokens(database, conn.ID, conn.AccessToken, conn.RefreshToken, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("UpdateConnectionTokens failed: %v", err)
	}
	conn, err := db.GetConnection(database, conn.ID)
	if err != nil {
		t.Fatalf("GetConnection failed: %v", err)
	}

	refreshed, err := EnsureValidToken(context.Background(), database, cfg, conn)
	if err != nil {
		t.Fatalf("EnsureValidToken() error = %v", err)
	}

	if refreshed.AccessToken != "new-access" {
		t.Errorf("AccessToken = %q, want new-access", refreshed.AccessToken)
	}
	if refreshed.RefreshToken != "new-refresh" {
		t.Errorf("RefreshToken = %q, want new-refresh", refreshed.RefreshToken)
	}
	if time.Until(refreshed.ExpiresAt) < 30*time.Minute {
		t.Errorf("ExpiresAt = %v, want pushed out by expires_in", refreshed.ExpiresAt)
	}
	if refreshCalls.Load() != 1 {
		t.Errorf("refresh calls = %d, want 1", refreshCalls.Load())
	}

	stored, err := db.GetConnection(database, conn.ID)
	if err != nil {
		t.Fatalf("GetConnection failed: %v", err)
	}
	if stored.AccessToken != "new-access" || !stored.IsActive {
		t.Errorf("stored connection = %+v, want persisted tokens on active connection", stored)
	}
}

func TestEnsureValidTokenKeepsFreshToken(t *testing.T) {
	var refreshCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	database := testDB(t)
	cfg := testConfig()
	cfg.CRMTokenURL = server.URL + "/oauth/token"

	conn := createTestConnection(t, database, "loc-1")

	same, err := EnsureValidToken(context.Background(), database, cfg, conn)
	if err != nil {
		t.Fatalf("EnsureValidToken() error = %v", err)
	}
	if same.AccessToken != conn.AccessToken {
		t.Errorf("AccessToken changed for a fresh token")
	}
	if refreshCalls.Load() != 0 {
		t.Errorf("refresh calls = %d, want 0", refreshCalls.Load())
	}
}

func TestEnsureValidTokenDeactivatesOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "invalid_grant"}`))
	}))
	defer server.Close()

	database := testDB(t)
	cfg := testConfig()
	cfg.CRMTokenURL = server.URL + "/oauth/token"

	conn := createTestConnection(t, database, "loc-1")
	if err := db.UpdateConnectionTokens(database, conn.ID, conn.AccessToken, conn.RefreshToken, time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("UpdateConnectionTokens failed: %v", err)
	}
	conn, err := db.GetConnection(database, conn.ID)
	if err != nil {
		t.Fatalf("GetConnection failed: %v", err)
	}

	_, err = EnsureValidToken(context.Background(), database, cfg, conn)
	if !errors.Is(err, ErrTokenRefresh) {
		t.Fatalf("EnsureValidToken() error = %v, want ErrTokenRefresh", err)
	}

	stored, err := db.GetConnection(database, conn.ID)
	if err != nil {
		t.Fatalf("GetConnection failed: %v", err)
	}
	if stored.IsActive {
		t.Error("expected connection to be deactivated after refresh failure")
	}
}
