// ABOUTME: OAuth callback completing a CRM app install
// ABOUTME: Exchanges the code, stores the connection, and kicks off the first sync
package web

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/restriden/simpli-immo-sub001/crm"
	"github.com/restriden/simpli-immo-sub001/db"
	"github.com/restriden/simpli-immo-sub001/models"
)

const initialSyncTimeout = 10 * time.Minute

// handleOAuthCallback finishes the install flow the CRM marketplace started.
// The browser lands here, so the outcome is a redirect into the app's deep
// links rather than a JSON body.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if errCode := query.Get("error"); errCode != "" {
		message := query.Get("error_description")
		if message == "" {
			message = errCode
		}
		log.Printf("oauth: install declined: %s", message)
		s.redirectApp(w, r, s.cfg.AppErrorURL, message)
		return
	}

	code := query.Get("code")
	if code == "" {
		s.redirectApp(w, r, s.cfg.AppErrorURL, "Autorisierungscode fehlt")
		return
	}

	grant, err := crm.ExchangeCode(r.Context(), s.cfg, code)
	if err != nil {
		log.Printf("oauth: code exchange failed: %v", err)
		s.redirectApp(w, r, s.cfg.AppErrorURL, "Verbindung fehlgeschlagen")
		return
	}

	conn := &models.Connection{
		UserID:       query.Get("state"),
		LocationID:   grant.LocationID,
		CompanyID:    grant.CompanyID,
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    grant.ExpiresAt,
	}
	if err := db.CreateConnection(s.db, conn); err != nil {
		log.Printf("oauth: failed to store connection for %s: %v", grant.LocationID, err)
		s.redirectApp(w, r, s.cfg.AppErrorURL, "Verbindung konnte nicht gespeichert werden")
		return
	}

	// Push events degrade to polling sync, so a failed registration only logs.
	callbackURL := s.cfg.PublicBaseURL + "/webhooks/crm"
	if err := s.crm.RegisterWebhook(r.Context(), grant.AccessToken, grant.LocationID, callbackURL, crm.DefaultWebhookEvents); err != nil {
		log.Printf("oauth: webhook registration for %s: %v", grant.LocationID, err)
	}

	// The first sync pulls the whole location and can outlive the callback
	// request, so it runs detached.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), initialSyncTimeout)
		defer cancel()

		result := s.syncer.SyncConnection(ctx, conn, models.SyncTypeFull)
		if result.Err != nil {
			log.Printf("oauth: initial sync for %s: %v", grant.LocationID, result.Err)
			return
		}
		log.Printf("oauth: initial sync for %s finished: %s", grant.LocationID, result.Status)
	}()

	s.redirectApp(w, r, s.cfg.AppSuccessURL, "Verbindung hergestellt")
}

// redirectApp sends the browser into the app with a human-readable message.
func (s *Server) redirectApp(w http.ResponseWriter, r *http.Request, target, message string) {
	u, err := url.Parse(target)
	if err != nil {
		log.Printf("oauth: bad redirect target %q: %v", target, err)
		http.Error(w, message, http.StatusInternalServerError)
		return
	}

	q := u.Query()
	q.Set("message", message)
	u.RawQuery = q.Encode()

	http.Redirect(w, r, u.String(), http.StatusFound)
}
