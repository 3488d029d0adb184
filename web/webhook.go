// ABOUTME: CRM webhook ingestor translating push events into local writes
// ABOUTME: Acknowledges handled events with 200 so the CRM never redelivers them
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/restriden/simpli-immo-sub001/crm"
	"github.com/restriden/simpli-immo-sub001/db"
	"github.com/restriden/simpli-immo-sub001/models"
	"github.com/restriden/simpli-immo-sub001/queue"
	"github.com/restriden/simpli-immo-sub001/sync"
)

const maxWebhookBody = 1 << 20

// handleWebhookCheck answers the CRM's connectivity probes.
func (s *Server) handleWebhookCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// handleWebhook ingests one push event. Once the location check passes the
// response is always 200: a non-2xx would make the CRM redeliver an event
// whose side effects already happened.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	var payload crm.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Printf("webhook: ignoring malformed payload: %v", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	if payload.LocationID == "" {
		// Connectivity ping. Acknowledge without writing anything.
		w.WriteHeader(http.StatusOK)
		return
	}

	conn, err := db.GetActiveConnectionByLocation(s.db, payload.LocationID)
	if err != nil {
		log.Printf("webhook: connection lookup for %s: %v", payload.LocationID, err)
		writeError(w, http.StatusInternalServerError, "connection lookup failed")
		return
	}
	if conn == nil {
		// 404 tells the CRM this subscription is dead. No retry queue here.
		writeError(w, http.StatusNotFound, "unknown location")
		return
	}

	externalID := payload.ID
	if externalID == "" {
		externalID = payload.MessageID
	}
	if err := db.LogWebhookEvent(s.db, payload.Type, payload.LocationID, externalID); err != nil {
		log.Printf("webhook: failed to log %s event: %v", payload.Type, err)
	}

	if err := s.dispatchEvent(r.Context(), conn, &payload, body); err != nil {
		log.Printf("webhook: %s event for %s: %v", payload.Type, payload.LocationID, err)
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) dispatchEvent(ctx context.Context, conn *models.Connection, payload *crm.WebhookPayload, body []byte) error {
	switch payload.Type {
	case crm.EventInboundMessage:
		return s.ingestMessage(ctx, payload, "inbound")
	case crm.EventOutboundMessage:
		return s.ingestMessage(ctx, payload, "outbound")
	case crm.EventContactCreate, crm.EventContactUpdate:
		return s.ingestContact(conn, payload, body)
	case crm.EventTaskCreate:
		return s.ingestTask(payload)
	case crm.EventAppointmentCreate, crm.EventAppointmentUpdate:
		return s.ingestAppointment(payload)
	case crm.EventOpportunityStageUpdate:
		return s.ingestStageUpdate(ctx, conn, payload)
	default:
		log.Printf("webhook: ignoring %s event", payload.Type)
		return nil
	}
}

// ingestMessage persists a pushed message and queues the LLM follow-on work.
// Inbound messages invalidate any pending follow-up draft, the conversation
// has moved past it.
func (s *Server) ingestMessage(ctx context.Context, payload *crm.WebhookPayload, direction string) error {
	lead, err := db.GetLeadByExternalID(s.db, payload.ContactID)
	if err != nil {
		return fmt.Errorf("failed to look up lead: %w", err)
	}
	if lead == nil {
		// The contact sync has not seen this contact yet. The message comes
		// back with the next conversation sync.
		log.Printf("webhook: message for unknown contact %s", payload.ContactID)
		return nil
	}

	externalID := payload.MessageID
	if externalID == "" {
		externalID = payload.ID
	}
	msg, err := sync.MessageToMessage(lead.ID, &crm.Message{
		ID:             externalID,
		ConversationID: payload.ConversationID,
		ContactID:      payload.ContactID,
		Direction:      direction,
		Type:           payload.MessageType,
		Body:           payload.Body,
		DateAdded:      payload.DateAdded,
	})
	if err != nil {
		return err
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}

	if err := db.UpsertMessage(s.db, msg); err != nil {
		return fmt.Errorf("failed to store message: %w", err)
	}
	if err := db.TouchLeadLastMessage(s.db, lead.ID, msg.SentAt); err != nil {
		return fmt.Errorf("failed to stamp lead activity: %w", err)
	}

	if direction == "inbound" {
		if err := db.DeletePendingApproval(s.db, lead.ID); err != nil {
			log.Printf("webhook: failed to drop stale approval for lead %s: %v", lead.ID, err)
		}
		s.publishTask(ctx, queue.Task{Kind: models.JobKindLeadAnalysis, LeadID: lead.ID.String()})
		s.publishTask(ctx, queue.Task{Kind: models.JobKindFollowupDrafts, LeadID: lead.ID.String()})
		return nil
	}

	// Outbound messages are the agent answering a question. Worth learning from.
	s.publishTask(ctx, queue.Task{Kind: queue.TaskKindKnowledge, LeadID: lead.ID.String(), MessageID: externalID})
	return nil
}

// publishTask enqueues follow-on work. Failures only log: the event row is
// written and the scheduled jobs cover anything the queue loses.
func (s *Server) publishTask(ctx context.Context, task queue.Task) {
	body, err := task.Encode()
	if err != nil {
		log.Printf("webhook: failed to encode %s task: %v", task.Kind, err)
		return
	}
	if err := s.queue.Publish(ctx, queue.TopicTasks, body); err != nil {
		log.Printf("webhook: failed to publish %s task: %v", task.Kind, err)
	}
}

func (s *Server) ingestContact(conn *models.Connection, payload *crm.WebhookPayload, body []byte) error {
	var contact crm.Contact
	if err := json.Unmarshal(body, &contact); err != nil {
		return fmt.Errorf("failed to decode contact event: %w", err)
	}
	if contact.ID == "" {
		contact.ID = payload.ContactID
	}
	if contact.ID == "" {
		contact.ID = payload.ID
	}
	contact.Raw = body

	return s.syncer.IngestContact(conn, &contact)
}

func (s *Server) ingestTask(payload *crm.WebhookPayload) error {
	lead, err := db.GetLeadByExternalID(s.db, payload.ContactID)
	if err != nil {
		return fmt.Errorf("failed to look up lead: %w", err)
	}
	if lead == nil {
		log.Printf("webhook: task for unknown contact %s", payload.ContactID)
		return nil
	}

	todo, err := sync.TaskToTodo(lead.ID, &crm.Task{
		ID:        payload.ID,
		ContactID: payload.ContactID,
		Title:     payload.Title,
		Body:      payload.Body,
		DueDate:   payload.DueDate,
		Completed: payload.Completed,
	})
	if err != nil {
		return err
	}
	return db.UpsertTodo(s.db, todo)
}

func (s *Server) ingestAppointment(payload *crm.WebhookPayload) error {
	lead, err := db.GetLeadByExternalID(s.db, payload.ContactID)
	if err != nil {
		return fmt.Errorf("failed to look up lead: %w", err)
	}
	if lead == nil {
		log.Printf("webhook: appointment for unknown contact %s", payload.ContactID)
		return nil
	}

	todo, err := sync.EventToTodo(lead.ID, &crm.CalendarEvent{
		ID:                payload.ID,
		ContactID:         payload.ContactID,
		Title:             payload.Title,
		Notes:             payload.Body,
		AppointmentStatus: payload.AppointmentStatus,
		StartTime:         payload.StartTime,
		EndTime:           payload.EndTime,
	})
	if err != nil {
		return err
	}
	return db.UpsertTodo(s.db, todo)
}

// ingestStageUpdate resolves the pushed stage id to its pipeline stage name
// and applies the stage mapping to the lead. The push carries only ids, so
// the pipeline listing is fetched to translate them.
func (s *Server) ingestStageUpdate(ctx context.Context, conn *models.Connection, payload *crm.WebhookPayload) error {
	lead, err := db.GetLeadByExternalID(s.db, payload.ContactID)
	if err != nil {
		return fmt.Errorf("failed to look up lead: %w", err)
	}
	if lead == nil {
		log.Printf("webhook: opportunity for unknown contact %s", payload.ContactID)
		return nil
	}

	conn, err = sync.EnsureValidToken(ctx, s.db, s.cfg, conn)
	if err != nil {
		return err
	}
	pipelines, err := s.crm.ListPipelines(ctx, conn.AccessToken, conn.LocationID)
	if err != nil {
		return fmt.Errorf("failed to list pipelines: %w", err)
	}

	stageName := ""
	for _, pipeline := range pipelines {
		if pipeline.ID != payload.PipelineID {
			continue
		}
		for _, stage := range pipeline.Stages {
			if stage.ID == payload.PipelineStageID {
				stageName = stage.Name
				break
			}
		}
	}
	if stageName == "" {
		return fmt.Errorf("unknown pipeline stage %s", payload.PipelineStageID)
	}

	return sync.ApplyStageUpdate(s.db, lead, stageName, payload.Status)
}
