// ABOUTME: Sync orchestration pulling CRM entities into the local database
// ABOUTME: Per-connection and per-entity error isolation with recorded sync runs
package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/restriden/simpli-immo-sub001/config"
	"github.com/restriden/simpli-immo-sub001/crm"
	"github.com/restriden/simpli-immo-sub001/db"
	"github.com/restriden/simpli-immo-sub001/models"
)

// Calendar fetch window around now.
const (
	appointmentLookback  = 30 * 24 * time.Hour
	appointmentLookahead = 90 * 24 * time.Hour
)

// EntityCount tallies synced rows and row-level errors for one entity type.
type EntityCount struct {
	Synced int `json:"synced"`
	Errors int `json:"errors"`
}

// Result summarizes one connection's sync.
type Result struct {
	ConnectionID uuid.UUID              `json:"connection_id"`
	LocationID   string                 `json:"location_id"`
	Status       string                 `json:"status"`
	Counts       map[string]EntityCount `json:"counts"`
	Err          error                  `json:"-"`
}

// Syncer pulls CRM entities for connected locations into the database.
type Syncer struct {
	db     *sql.DB
	client *crm.Client
	cfg    *config.Config
}

func NewSyncer(database *sql.DB, client *crm.Client, cfg *config.Config) *Syncer {
	return &Syncer{db: database, client: client, cfg: cfg}
}

// SyncAll syncs every active connection. One connection's failure never
// prevents the others from syncing.
func (s *Syncer) SyncAll(ctx context.Context, syncType string) ([]Result, error) {
	connections, err := db.ListConnections(s.db, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	results := make([]Result, 0, len(connections))
	for i := range connections {
		results = append(results, s.SyncConnection(ctx, &connections[i], syncType))
	}
	return results, nil
}

// entityTypesFor expands a sync type into the entity passes to run. Pipeline
// sync is individually requestable, never part of a full sync.
func entityTypesFor(syncType string) []string {
	if syncType == models.SyncTypeFull {
		return []string{
			models.SyncTypeContacts,
			models.SyncTypeConversations,
			models.SyncTypeAppointments,
			models.SyncTypeTasks,
		}
	}
	return []string{syncType}
}

// SyncConnection runs the requested entity passes for one connection and
// records the outcome as a SyncRun row. Entity-level failures are collected,
// they never abort the remaining passes.
func (s *Syncer) SyncConnection(ctx context.Context, conn *models.Connection, syncType string) Result {
	if syncType == "" {
		syncType = models.SyncTypeFull
	}
	result := Result{
		ConnectionID: conn.ID,
		LocationID:   conn.LocationID,
		Counts:       map[string]EntityCount{},
	}

	conn, err := EnsureValidToken(ctx, s.db, s.cfg, conn)
	if err != nil {
		result.Status = models.SyncRunStatusFailed
		result.Err = err
		return result
	}

	run, err := db.StartSyncRun(s.db, conn.ID, syncType)
	if err != nil {
		result.Status = models.SyncRunStatusFailed
		result.Err = fmt.Errorf("failed to start sync run: %w", err)
		return result
	}

	entityTypes := entityTypesFor(syncType)
	var failures []string
	for _, entityType := range entityTypes {
		count, err := s.syncEntity(ctx, conn, entityType)
		result.Counts[entityType] = count
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", entityType, err))
			log.Printf("sync %s for location %s: %v", entityType, conn.LocationID, err)
		}
	}

	status := models.SyncRunStatusSuccess
	switch {
	case len(failures) == len(entityTypes):
		status = models.SyncRunStatusFailed
	case len(failures) > 0:
		status = models.SyncRunStatusPartial
	}

	counts, err := json.Marshal(result.Counts)
	if err != nil {
		counts = []byte("{}")
	}
	if err := db.FinishSyncRun(s.db, run.ID, status, string(counts), strings.Join(failures, "; ")); err != nil {
		log.Printf("failed to finish sync run %s: %v", run.ID, err)
	}
	if status != models.SyncRunStatusFailed {
		if err := db.UpdateConnectionLastSync(s.db, conn.ID, time.Now()); err != nil {
			log.Printf("failed to update last sync for connection %s: %v", conn.ID, err)
		}
	}

	result.Status = status
	if len(failures) > 0 {
		result.Err = errors.New(strings.Join(failures, "; "))
	}
	return result
}

func (s *Syncer) syncEntity(ctx context.Context, conn *models.Connection, entityType string) (EntityCount, error) {
	switch entityType {
	case models.SyncTypeContacts:
		return s.syncContacts(ctx, conn)
	case models.SyncTypeConversations:
		return s.syncConversations(ctx, conn)
	case models.SyncTypeAppointments:
		return s.syncAppointments(ctx, conn)
	case models.SyncTypeTasks:
		return s.syncTasks(ctx, conn)
	case models.SyncTypePipeline:
		return s.syncPipeline(ctx, conn)
	default:
		return EntityCount{}, fmt.Errorf("unknown sync type %q", entityType)
	}
}

func (s *Syncer) syncContacts(ctx context.Context, conn *models.Connection) (EntityCount, error) {
	var count EntityCount
	contacts, err := s.client.ListContacts(ctx, conn.AccessToken, conn.LocationID)
	if err != nil {
		return count, err
	}

	for i := range contacts {
		if err := s.IngestContact(conn, &contacts[i]); err != nil {
			count.Errors++
			log.Printf("contact %s: %v", contacts[i].ID, err)
			continue
		}
		count.Synced++
	}
	return count, nil
}

// IngestContact upserts the lead and assigns a listing when the contact names
// one and the lead has none yet. The webhook ingestor shares it with the
// contact sync.
func (s *Syncer) IngestContact(conn *models.Connection, contact *crm.Contact) error {
	lead, err := ContactToLead(conn.ID, contact)
	if err != nil {
		return err
	}
	if err := db.UpsertLead(s.db, lead); err != nil {
		return err
	}
	if lead.ListingID != nil {
		return nil
	}

	label := ExtractListingLabel(contact.Raw)
	if label == "" {
		return nil
	}
	listing, err := MatchOrCreateListing(s.db, label)
	if err != nil {
		return err
	}
	if listing == nil {
		return nil
	}
	return db.AssignLeadListing(s.db, lead.ID, listing.ID)
}

func (s *Syncer) syncConversations(ctx context.Context, conn *models.Connection) (EntityCount, error) {
	var count EntityCount
	conversations, err := s.client.SearchConversations(ctx, conn.AccessToken, conn.LocationID)
	if err != nil {
		return count, err
	}

	for _, conv := range conversations {
		lead, err := db.GetLeadByExternalID(s.db, conv.ContactID)
		if err != nil {
			count.Errors++
			continue
		}
		if lead == nil {
			// Nothing local to attach the conversation to yet.
			continue
		}

		messages, err := s.client.ListConversationMessages(ctx, conn.AccessToken, conv.ID)
		if err != nil {
			count.Errors++
			log.Printf("conversation %s: %v", conv.ID, err)
			continue
		}

		var newest time.Time
		for i := range messages {
			msg, err := MessageToMessage(lead.ID, &messages[i])
			if err != nil {
				count.Errors++
				continue
			}
			if err := db.UpsertMessage(s.db, msg); err != nil {
				count.Errors++
				continue
			}
			count.Synced++
			if msg.SentAt.After(newest) {
				newest = msg.SentAt
			}
		}
		if !newest.IsZero() {
			if err := db.TouchLeadLastMessage(s.db, lead.ID, newest); err != nil {
				log.Printf("failed to touch lead %s: %v", lead.ID, err)
			}
		}
	}
	return count, nil
}

func (s *Syncer) syncAppointments(ctx context.Context, conn *models.Connection) (EntityCount, error) {
	var count EntityCount
	now := time.Now()
	events, err := s.client.ListCalendarEvents(ctx, conn.AccessToken, conn.LocationID,
		now.Add(-appointmentLookback), now.Add(appointmentLookahead))
	if err != nil {
		return count, err
	}

	for i := range events {
		lead, err := db.GetLeadByExternalID(s.db, events[i].ContactID)
		if err != nil || lead == nil {
			if err != nil {
				count.Errors++
			}
			continue
		}
		todo, err := EventToTodo(lead.ID, &events[i])
		if err != nil {
			count.Errors++
			continue
		}
		if err := db.UpsertTodo(s.db, todo); err != nil {
			count.Errors++
			log.Printf("event %s: %v", events[i].ID, err)
			continue
		}
		count.Synced++
	}
	return count, nil
}

func (s *Syncer) syncTasks(ctx context.Context, conn *models.Connection) (EntityCount, error) {
	var count EntityCount
	leads, err := db.ListLeadsByConnection(s.db, conn.ID)
	if err != nil {
		return count, err
	}

	for i := range leads {
		tasks, err := s.client.ListContactTasks(ctx, conn.AccessToken, leads[i].ExternalID)
		if err != nil {
			count.Errors++
			log.Printf("tasks for contact %s: %v", leads[i].ExternalID, err)
			continue
		}
		for j := range tasks {
			todo, err := TaskToTodo(leads[i].ID, &tasks[j])
			if err != nil {
				count.Errors++
				continue
			}
			if err := db.UpsertTodo(s.db, todo); err != nil {
				count.Errors++
				log.Printf("task %s: %v", tasks[j].ID, err)
				continue
			}
			count.Synced++
		}
	}
	return count, nil
}

// syncPipeline applies opportunity stages to leads: stage names come from the
// pipeline definitions, leads resolve by external contact id with email/phone
// as fallback, and won opportunities promote the lead status.
func (s *Syncer) syncPipeline(ctx context.Context, conn *models.Connection) (EntityCount, error) {
	var count EntityCount
	pipelines, err := s.client.ListPipelines(ctx, conn.AccessToken, conn.LocationID)
	if err != nil {
		return count, err
	}
	stageNames := make(map[string]string)
	for _, p := range pipelines {
		for _, stage := range p.Stages {
			stageNames[stage.ID] = stage.Name
		}
	}

	opportunities, err := s.client.SearchOpportunities(ctx, conn.AccessToken, conn.LocationID)
	if err != nil {
		return count, err
	}

	for i := range opportunities {
		if err := s.applyOpportunity(&opportunities[i], stageNames); err != nil {
			count.Errors++
			log.Printf("opportunity %s: %v", opportunities[i].ID, err)
			continue
		}
		count.Synced++
	}
	return count, nil
}

func (s *Syncer) applyOpportunity(opp *crm.Opportunity, stageNames map[string]string) error {
	lead, err := db.GetLeadByExternalID(s.db, opp.Contact.ID)
	if err != nil {
		return err
	}
	if lead == nil {
		lead, err = db.FindLeadByEmailOrPhone(s.db, opp.Contact.Email, opp.Contact.Phone)
		if err != nil {
			return err
		}
	}
	if lead == nil {
		return fmt.Errorf("no lead for contact %s", opp.Contact.ID)
	}

	stageName, ok := stageNames[opp.PipelineStageID]
	if !ok {
		stageName = opp.PipelineStageID
	}
	return ApplyStageUpdate(s.db, lead, stageName, opp.Status)
}

// ApplyStageUpdate records a pipeline stage on a lead. The webhook ingestor
// shares it with the pipeline sync.
func ApplyStageUpdate(database *sql.DB, lead *models.Lead, stageName, oppStatus string) error {
	stage := MapStageName(stageName)
	flags := StageFlagsFor(stage)
	if err := db.UpdateLeadPipelineStage(database, lead.ID, stage, flags); err != nil {
		return err
	}

	// Won opportunities promote the lead, they never demote it.
	if (flags.Purchase || strings.EqualFold(oppStatus, "won")) && lead.Status != models.LeadStatusBought {
		return db.UpdateLeadStatus(database, lead.ID, models.LeadStatusBought)
	}
	return nil
}
