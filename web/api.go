// ABOUTME: JSON API for job triggers, sync runs, approvals, and todo completion
// ABOUTME: Serves the operator app with the same rows the sync layer writes
package web

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/restriden/simpli-immo-sub001/db"
	"github.com/restriden/simpli-immo-sub001/models"
	"github.com/restriden/simpli-immo-sub001/sync"
)

// decodeBody fills dst from an optional JSON request body. An empty body
// leaves dst at its zero value.
func decodeBody(r *http.Request, dst interface{}) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// handleTriggerJob starts a batch job or synchronously drives one more batch
// of an existing job when the body names a job_id.
func (s *Server) handleTriggerJob(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	switch kind {
	case models.JobKindLeadAnalysis, models.JobKindFollowupDrafts, models.JobKindListingTranslation:
	default:
		writeError(w, http.StatusBadRequest, "unknown job kind")
		return
	}

	var req struct {
		JobID     string `json:"job_id"`
		FullRerun bool   `json:"full_rerun"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.JobID != "" {
		jobID, err := uuid.Parse(req.JobID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid job id")
			return
		}
		job, err := s.runner.ContinueNow(r.Context(), jobID)
		if err != nil {
			log.Printf("api: failed to continue job %s: %v", jobID, err)
			writeError(w, http.StatusInternalServerError, "job continuation failed")
			return
		}
		if job == nil {
			writeError(w, http.StatusNotFound, "unknown job")
			return
		}
		writeJSON(w, http.StatusOK, job)
		return
	}

	job, err := s.runner.Start(r.Context(), kind, req.FullRerun)
	if err != nil {
		log.Printf("api: failed to start %s job: %v", kind, err)
		writeError(w, http.StatusInternalServerError, "job start failed")
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

// handleTriggerSync runs a sync pass synchronously and returns the per-entity
// counts, mirroring what the scheduler does on its interval.
func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConnectionID string `json:"connection_id"`
		Type         string `json:"type"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	syncType := req.Type
	if syncType == "" {
		syncType = models.SyncTypeFull
	}
	switch syncType {
	case models.SyncTypeFull, models.SyncTypeContacts, models.SyncTypeConversations,
		models.SyncTypeAppointments, models.SyncTypeTasks, models.SyncTypePipeline:
	default:
		writeError(w, http.StatusBadRequest, "unknown sync type")
		return
	}

	if req.ConnectionID != "" {
		connID, err := uuid.Parse(req.ConnectionID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid connection id")
			return
		}
		conn, err := db.GetConnection(s.db, connID)
		if err != nil {
			log.Printf("api: connection lookup failed: %v", err)
			writeError(w, http.StatusInternalServerError, "connection lookup failed")
			return
		}
		if conn == nil || !conn.IsActive {
			writeError(w, http.StatusNotFound, "unknown or inactive connection")
			return
		}
		result := s.syncer.SyncConnection(r.Context(), conn, syncType)
		writeJSON(w, http.StatusOK, map[string]interface{}{"results": []sync.Result{result}})
		return
	}

	results, err := s.syncer.SyncAll(r.Context(), syncType)
	if err != nil {
		log.Printf("api: sync failed: %v", err)
		writeError(w, http.StatusInternalServerError, "sync failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	approvals, err := db.ListPendingApprovals(s.db, 200)
	if err != nil {
		log.Printf("api: failed to list approvals: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list approvals")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"approvals": approvals})
}

// handleApproveFollowup sends the approved draft through the CRM. The
// pending-to-approved transition is the fence: a concurrent second approval
// loses it and never sends.
func (s *Server) handleApproveFollowup(w http.ResponseWriter, r *http.Request) {
	approvalID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid approval id")
		return
	}

	var req struct {
		MessageType string `json:"message_type"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	approval, err := db.GetApproval(s.db, approvalID)
	if err != nil {
		log.Printf("api: approval lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "approval lookup failed")
		return
	}
	if approval == nil {
		writeError(w, http.StatusNotFound, "unknown approval")
		return
	}
	if approval.IsExpired(time.Now()) {
		writeError(w, http.StatusConflict, "approval expired")
		return
	}

	lead, err := db.GetLead(s.db, approval.LeadID)
	if err != nil || lead == nil {
		log.Printf("api: lead lookup for approval %s failed: %v", approvalID, err)
		writeError(w, http.StatusInternalServerError, "lead lookup failed")
		return
	}
	conn, err := db.GetConnection(s.db, lead.ConnectionID)
	if err != nil || conn == nil {
		log.Printf("api: connection lookup for lead %s failed: %v", lead.ID, err)
		writeError(w, http.StatusInternalServerError, "connection lookup failed")
		return
	}
	conn, err = sync.EnsureValidToken(r.Context(), s.db, s.cfg, conn)
	if err != nil {
		log.Printf("api: token refresh for approval %s failed: %v", approvalID, err)
		writeError(w, http.StatusBadGateway, "CRM connection unavailable")
		return
	}

	if err := db.DecideApproval(s.db, approvalID, models.ApprovalStatusApproved); err != nil {
		writeError(w, http.StatusConflict, "approval already decided")
		return
	}

	messageID, err := s.crm.SendMessage(r.Context(), conn.AccessToken, lead.ExternalID, req.MessageType, approval.Draft)
	if err != nil {
		// Approved but unsent. Reported distinctly so the operator knows the
		// draft never reached the lead.
		log.Printf("api: failed to send follow-up for approval %s: %v", approvalID, err)
		writeError(w, http.StatusBadGateway, "approved, but sending via CRM failed")
		return
	}

	now := time.Now()
	if err := db.MarkApprovalSent(s.db, approvalID, now); err != nil {
		log.Printf("api: failed to mark approval %s sent: %v", approvalID, err)
	}

	channel := strings.ToLower(req.MessageType)
	if channel == "" {
		channel = "sms"
	}
	msg := &models.Message{
		LeadID:     lead.ID,
		ExternalID: messageID,
		Direction:  models.DirectionOutgoing,
		Channel:    channel,
		Content:    approval.Draft,
		SentAt:     now,
	}
	if msg.ExternalID == "" {
		// The CRM accepted the send but returned no id. Keep the local copy
		// under a synthetic id so the conversation view stays complete.
		msg.ExternalID = "local-" + approvalID.String()
	}
	if err := db.UpsertMessage(s.db, msg); err != nil {
		log.Printf("api: failed to store sent follow-up for lead %s: %v", lead.ID, err)
	}
	if err := db.TouchLeadLastMessage(s.db, lead.ID, now); err != nil {
		log.Printf("api: failed to stamp lead %s activity: %v", lead.ID, err)
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":     models.ApprovalStatusSent,
		"message_id": messageID,
	})
}

func (s *Server) handleRejectFollowup(w http.ResponseWriter, r *http.Request) {
	approvalID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid approval id")
		return
	}

	approval, err := db.GetApproval(s.db, approvalID)
	if err != nil {
		log.Printf("api: approval lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "approval lookup failed")
		return
	}
	if approval == nil {
		writeError(w, http.StatusNotFound, "unknown approval")
		return
	}

	if err := db.DecideApproval(s.db, approvalID, models.ApprovalStatusRejected); err != nil {
		writeError(w, http.StatusConflict, "approval already decided")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": models.ApprovalStatusRejected})
}

// handleCompleteTodo closes a todo locally and mirrors the completion to the
// CRM when the todo came from a CRM task.
func (s *Server) handleCompleteTodo(w http.ResponseWriter, r *http.Request) {
	todoID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid todo id")
		return
	}

	todo, err := db.GetTodo(s.db, todoID)
	if err != nil {
		log.Printf("api: todo lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "todo lookup failed")
		return
	}
	if todo == nil {
		writeError(w, http.StatusNotFound, "unknown todo")
		return
	}

	now := time.Now()
	if err := db.CompleteTodo(s.db, todoID, now); err != nil {
		log.Printf("api: failed to complete todo %s: %v", todoID, err)
		writeError(w, http.StatusInternalServerError, "failed to complete todo")
		return
	}

	// Write-back is best effort. The local row is already closed either way.
	if todo.Source == models.TodoSourceTask && todo.ExternalID != "" && todo.LeadID != nil {
		s.completeCRMTask(r, todo)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func (s *Server) completeCRMTask(r *http.Request, todo *models.Todo) {
	lead, err := db.GetLead(s.db, *todo.LeadID)
	if err != nil || lead == nil {
		log.Printf("api: lead lookup for todo %s failed: %v", todo.ID, err)
		return
	}
	conn, err := db.GetConnection(s.db, lead.ConnectionID)
	if err != nil || conn == nil || !conn.IsActive {
		log.Printf("api: no active connection for todo %s write-back", todo.ID)
		return
	}
	conn, err = sync.EnsureValidToken(r.Context(), s.db, s.cfg, conn)
	if err != nil {
		log.Printf("api: token refresh for todo %s write-back failed: %v", todo.ID, err)
		return
	}
	if err := s.crm.CompleteTask(r.Context(), conn.AccessToken, lead.ExternalID, todo.ExternalID); err != nil {
		log.Printf("api: failed to complete CRM task %s: %v", todo.ExternalID, err)
	}
}
