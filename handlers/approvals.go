// ABOUTME: Follow-up approval MCP tool handlers
// ABOUTME: Implements list_pending_approvals and decide_followup tools
package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/restriden/simpli-immo-sub001/config"
	"github.com/restriden/simpli-immo-sub001/crm"
	"github.com/restriden/simpli-immo-sub001/db"
	"github.com/restriden/simpli-immo-sub001/models"
	"github.com/restriden/simpli-immo-sub001/sync"
)

type ApprovalHandlers struct {
	db  *sql.DB
	cfg *config.Config
	crm *crm.Client
}

func NewApprovalHandlers(database *sql.DB, cfg *config.Config) *ApprovalHandlers {
	return &ApprovalHandlers{db: database, cfg: cfg, crm: crm.NewClient(cfg)}
}

type ListPendingApprovalsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of results (default 20)"`
}

type ApprovalOutput struct {
	ID        string `json:"id"`
	LeadID    string `json:"lead_id"`
	LeadName  string `json:"lead_name,omitempty"`
	Draft     string `json:"draft"`
	Reasoning string `json:"reasoning,omitempty"`
	Status    string `json:"status"`
	ExpiresAt string `json:"expires_at"`
}

type ListPendingApprovalsOutput struct {
	Approvals []ApprovalOutput `json:"approvals"`
}

func (h *ApprovalHandlers) ListPendingApprovals(_ context.Context, request *mcp.CallToolRequest, input ListPendingApprovalsInput) (*mcp.CallToolResult, ListPendingApprovalsOutput, error) {
	limit := input.Limit
	if limit == 0 {
		limit = 20
	}

	approvals, err := db.ListPendingApprovals(h.db, limit)
	if err != nil {
		return nil, ListPendingApprovalsOutput{}, fmt.Errorf("failed to list approvals: %w", err)
	}

	result := make([]ApprovalOutput, len(approvals))
	for i, approval := range approvals {
		out := ApprovalOutput{
			ID:        approval.ID.String(),
			LeadID:    approval.LeadID.String(),
			Draft:     approval.Draft,
			Reasoning: approval.Reasoning,
			Status:    approval.Status,
			ExpiresAt: approval.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
		}
		if lead, err := db.GetLead(h.db, approval.LeadID); err == nil && lead != nil {
			out.LeadName = lead.Name
		}
		result[i] = out
	}

	return nil, ListPendingApprovalsOutput{Approvals: result}, nil
}

type DecideFollowupInput struct {
	ApprovalID  string `json:"approval_id" jsonschema:"Approval ID (required)"`
	Approve     bool   `json:"approve" jsonschema:"true sends the draft through the CRM, false rejects it"`
	MessageType string `json:"message_type,omitempty" jsonschema:"CRM message channel when approving (SMS/Email/WhatsApp, default SMS)"`
}

type DecideFollowupOutput struct {
	Status    string `json:"status"`
	MessageID string `json:"message_id,omitempty"`
}

// DecideFollowup approves or rejects a pending draft. The pending-to-approved
// transition fences the send, so a decision that lost the race returns an
// error instead of sending twice.
func (h *ApprovalHandlers) DecideFollowup(ctx context.Context, request *mcp.CallToolRequest, input DecideFollowupInput) (*mcp.CallToolResult, DecideFollowupOutput, error) {
	if input.ApprovalID == "" {
		return nil, DecideFollowupOutput{}, fmt.Errorf("approval_id is required")
	}
	approvalID, err := uuid.Parse(input.ApprovalID)
	if err != nil {
		return nil, DecideFollowupOutput{}, fmt.Errorf("invalid approval_id: %w", err)
	}

	approval, err := db.GetApproval(h.db, approvalID)
	if err != nil {
		return nil, DecideFollowupOutput{}, fmt.Errorf("failed to get approval: %w", err)
	}
	if approval == nil {
		return nil, DecideFollowupOutput{}, fmt.Errorf("approval not found")
	}

	if !input.Approve {
		if err := db.DecideApproval(h.db, approvalID, models.ApprovalStatusRejected); err != nil {
			return nil, DecideFollowupOutput{}, fmt.Errorf("approval already decided: %w", err)
		}
		return nil, DecideFollowupOutput{Status: models.ApprovalStatusRejected}, nil
	}

	if approval.IsExpired(time.Now()) {
		return nil, DecideFollowupOutput{}, fmt.Errorf("approval expired at %s", approval.ExpiresAt.Format("2006-01-02 15:04"))
	}

	lead, err := db.GetLead(h.db, approval.LeadID)
	if err != nil || lead == nil {
		return nil, DecideFollowupOutput{}, fmt.Errorf("failed to get lead %s: %w", approval.LeadID, err)
	}
	conn, err := db.GetConnection(h.db, lead.ConnectionID)
	if err != nil || conn == nil {
		return nil, DecideFollowupOutput{}, fmt.Errorf("failed to get connection for lead %s: %w", lead.ID, err)
	}
	conn, err = sync.EnsureValidToken(ctx, h.db, h.cfg, conn)
	if err != nil {
		return nil, DecideFollowupOutput{}, fmt.Errorf("CRM connection unavailable: %w", err)
	}

	if err := db.DecideApproval(h.db, approvalID, models.ApprovalStatusApproved); err != nil {
		return nil, DecideFollowupOutput{}, fmt.Errorf("approval already decided: %w", err)
	}

	messageID, err := h.crm.SendMessage(ctx, conn.AccessToken, lead.ExternalID, input.MessageType, approval.Draft)
	if err != nil {
		return nil, DecideFollowupOutput{}, fmt.Errorf("approved, but sending via CRM failed: %w", err)
	}

	now := time.Now()
	if err := db.MarkApprovalSent(h.db, approvalID, now); err != nil {
		log.Printf("mcp: failed to mark approval %s sent: %v", approvalID, err)
	}

	channel := strings.ToLower(input.MessageType)
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
		msg.ExternalID = "local-" + approvalID.String()
	}
	if err := db.UpsertMessage(h.db, msg); err != nil {
		log.Printf("mcp: failed to store sent follow-up for lead %s: %v", lead.ID, err)
	}
	if err := db.TouchLeadLastMessage(h.db, lead.ID, now); err != nil {
		log.Printf("mcp: failed to stamp lead %s activity: %v", lead.ID, err)
	}

	return nil, DecideFollowupOutput{Status: models.ApprovalStatusSent, MessageID: messageID}, nil
}
