// ABOUTME: HTTP server for CRM webhooks, OAuth callbacks, and the app API
// ABOUTME: Routes with chi and delegates to the syncer, job runner, and CRM client
package web

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/restriden/simpli-immo-sub001/config"
	"github.com/restriden/simpli-immo-sub001/crm"
	"github.com/restriden/simpli-immo-sub001/jobs"
	"github.com/restriden/simpli-immo-sub001/queue"
	"github.com/restriden/simpli-immo-sub001/sync"
)

type Server struct {
	db     *sql.DB
	cfg    *config.Config
	crm    *crm.Client
	queue  queue.Queue
	runner *jobs.Runner
	syncer *sync.Syncer
}

func NewServer(database *sql.DB, cfg *config.Config, client *crm.Client, q queue.Queue, runner *jobs.Runner, syncer *sync.Syncer) *Server {
	return &Server{
		db:     database,
		cfg:    cfg,
		crm:    client,
		queue:  q,
		runner: runner,
		syncer: syncer,
	}
}

// Router assembles the HTTP surface. The CRM calls the webhook and OAuth
// endpoints, everything else serves the app and operators.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)

	r.Get("/webhooks/crm", s.handleWebhookCheck)
	r.Head("/webhooks/crm", s.handleWebhookCheck)
	r.Post("/webhooks/crm", s.handleWebhook)

	r.Get("/oauth/callback", s.handleOAuthCallback)

	r.Post("/jobs/{kind}", s.handleTriggerJob)
	r.Post("/sync", s.handleTriggerSync)

	r.Get("/approvals", s.handleListApprovals)
	r.Post("/approvals/{id}/approve", s.handleApproveFollowup)
	r.Post("/approvals/{id}/reject", s.handleRejectFollowup)

	r.Post("/todos/{id}/complete", s.handleCompleteTodo)

	return r
}

func (s *Server) Start() error {
	log.Printf("web: listening on %s", s.cfg.ListenAddr)
	return http.ListenAndServe(s.cfg.ListenAddr, s.Router())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("web: failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
