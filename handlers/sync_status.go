// ABOUTME: Sync status MCP tool handler
// ABOUTME: Reports connections, recent sync runs, and webhook activity
package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/restriden/simpli-immo-sub001/db"
)

type SyncHandlers struct {
	db *sql.DB
}

func NewSyncHandlers(database *sql.DB) *SyncHandlers {
	return &SyncHandlers{db: database}
}

type SyncStatusInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Number of recent sync runs to include (default 10)"`
}

type ConnectionStatus struct {
	ID             string  `json:"id"`
	LocationID     string  `json:"location_id"`
	Active         bool    `json:"active"`
	LastSyncAt     *string `json:"last_sync_at,omitempty"`
	TokenExpiresAt string  `json:"token_expires_at"`
}

type SyncRunStatus struct {
	ID          string  `json:"id"`
	LocationID  string  `json:"location_id,omitempty"`
	SyncType    string  `json:"sync_type"`
	Status      string  `json:"status"`
	Counts      string  `json:"counts,omitempty"`
	ErrorDetail string  `json:"error_detail,omitempty"`
	StartedAt   string  `json:"started_at"`
	FinishedAt  *string `json:"finished_at,omitempty"`
}

type SyncStatusOutput struct {
	Connections      []ConnectionStatus `json:"connections"`
	RecentRuns       []SyncRunStatus    `json:"recent_runs"`
	WebhookEvents24h int                `json:"webhook_events_24h"`
}

func (h *SyncHandlers) SyncStatus(_ context.Context, request *mcp.CallToolRequest, input SyncStatusInput) (*mcp.CallToolResult, SyncStatusOutput, error) {
	limit := input.Limit
	if limit == 0 {
		limit = 10
	}

	connections, err := db.ListConnections(h.db, false)
	if err != nil {
		return nil, SyncStatusOutput{}, fmt.Errorf("failed to list connections: %w", err)
	}

	locationByID := make(map[string]string, len(connections))
	output := SyncStatusOutput{Connections: make([]ConnectionStatus, len(connections))}
	for i, conn := range connections {
		locationByID[conn.ID.String()] = conn.LocationID
		status := ConnectionStatus{
			ID:             conn.ID.String(),
			LocationID:     conn.LocationID,
			Active:         conn.IsActive,
			TokenExpiresAt: conn.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
		}
		if conn.LastSyncAt != nil {
			ls := conn.LastSyncAt.Format("2006-01-02T15:04:05Z07:00")
			status.LastSyncAt = &ls
		}
		output.Connections[i] = status
	}

	runs, err := db.ListSyncRuns(h.db, nil, limit)
	if err != nil {
		return nil, SyncStatusOutput{}, fmt.Errorf("failed to list sync runs: %w", err)
	}
	output.RecentRuns = make([]SyncRunStatus, len(runs))
	for i, run := range runs {
		status := SyncRunStatus{
			ID:          run.ID.String(),
			LocationID:  locationByID[run.ConnectionID.String()],
			SyncType:    run.SyncType,
			Status:      run.Status,
			Counts:      run.Counts,
			ErrorDetail: run.ErrorDetail,
			StartedAt:   run.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
		if run.FinishedAt != nil {
			fin := run.FinishedAt.Format("2006-01-02T15:04:05Z07:00")
			status.FinishedAt = &fin
		}
		output.RecentRuns[i] = status
	}

	count, err := db.CountWebhookEventsSince(h.db, time.Now().Add(-24*time.Hour))
	if err != nil {
		return nil, SyncStatusOutput{}, fmt.Errorf("failed to count webhook events: %w", err)
	}
	output.WebhookEvents24h = count

	return nil, output, nil
}
