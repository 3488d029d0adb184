// ABOUTME: Follow-up approval CLI commands
// ABOUTME: Lists pending drafts and approves or rejects them
package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/restriden/simpli-immo-sub001/config"
	"github.com/restriden/simpli-immo-sub001/crm"
	"github.com/restriden/simpli-immo-sub001/db"
	"github.com/restriden/simpli-immo-sub001/models"
	"github.com/restriden/simpli-immo-sub001/sync"
)

// ApprovalsCommand lists pending follow-up drafts or decides one.
func ApprovalsCommand(database *sql.DB, cfg *config.Config, args []string) error {
	if len(args) > 0 {
		switch args[0] {
		case "approve":
			return approveFollowup(database, cfg, args[1:])
		case "reject":
			return rejectFollowup(database, args[1:])
		}
	}

	fs := flag.NewFlagSet("approvals", flag.ExitOnError)
	limit := fs.Int("limit", 50, "Maximum results")
	_ = fs.Parse(args)

	approvals, err := db.ListPendingApprovals(database, *limit)
	if err != nil {
		return fmt.Errorf("failed to list approvals: %w", err)
	}

	if len(approvals) == 0 {
		fmt.Println("No pending approvals")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "LEAD\tDRAFT\tEXPIRES\tID")
	_, _ = fmt.Fprintln(w, "----\t-----\t-------\t--")

	for _, approval := range approvals {
		leadName := approval.LeadID.String()[:8]
		if lead, err := db.GetLead(database, approval.LeadID); err == nil && lead != nil {
			leadName = lead.Name
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			leadName, truncate(approval.Draft, 60),
			approval.ExpiresAt.Format("2006-01-02 15:04"), approval.ID)
	}
	_ = w.Flush()

	fmt.Printf("\nTotal: %d pending approval(s)\n", len(approvals))
	return nil
}

// approveFollowup sends the draft through the CRM. The pending-to-approved
// transition is the fence, so a draft the server approved concurrently is
// never sent twice.
func approveFollowup(database *sql.DB, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("approvals approve", flag.ExitOnError)
	messageType := fs.String("type", "SMS", "CRM message channel (SMS/Email/WhatsApp)")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("approval ID is required")
	}
	approvalID, err := uuid.Parse(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("invalid approval ID: %w", err)
	}

	approval, err := db.GetApproval(database, approvalID)
	if err != nil {
		return fmt.Errorf("failed to lookup approval: %w", err)
	}
	if approval == nil {
		return fmt.Errorf("approval not found: %s", approvalID)
	}
	if approval.IsExpired(time.Now()) {
		return fmt.Errorf("approval expired at %s", approval.ExpiresAt.Format("2006-01-02 15:04"))
	}

	lead, err := db.GetLead(database, approval.LeadID)
	if err != nil || lead == nil {
		return fmt.Errorf("failed to lookup lead %s: %w", approval.LeadID, err)
	}
	conn, err := db.GetConnection(database, lead.ConnectionID)
	if err != nil || conn == nil {
		return fmt.Errorf("failed to lookup connection for lead %s: %w", lead.ID, err)
	}

	ctx := context.Background()
	conn, err = sync.EnsureValidToken(ctx, database, cfg, conn)
	if err != nil {
		return fmt.Errorf("CRM connection unavailable: %w", err)
	}

	if err := db.DecideApproval(database, approvalID, models.ApprovalStatusApproved); err != nil {
		return fmt.Errorf("approval already decided: %w", err)
	}

	messageID, err := crm.NewClient(cfg).SendMessage(ctx, conn.AccessToken, lead.ExternalID, *messageType, approval.Draft)
	if err != nil {
		return fmt.Errorf("approved, but sending via CRM failed: %w", err)
	}

	now := time.Now()
	if err := db.MarkApprovalSent(database, approvalID, now); err != nil {
		log.Printf("warning: failed to mark approval %s sent: %v", approvalID, err)
	}

	channel := strings.ToLower(*messageType)
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
	if err := db.UpsertMessage(database, msg); err != nil {
		log.Printf("warning: failed to store sent follow-up for lead %s: %v", lead.ID, err)
	}
	if err := db.TouchLeadLastMessage(database, lead.ID, now); err != nil {
		log.Printf("warning: failed to stamp lead %s activity: %v", lead.ID, err)
	}

	fmt.Printf("✓ Follow-up sent to %s\n", lead.Name)
	if messageID != "" {
		fmt.Printf("  CRM message: %s\n", messageID)
	}
	return nil
}

func rejectFollowup(database *sql.DB, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("approval ID is required")
	}
	approvalID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid approval ID: %w", err)
	}

	approval, err := db.GetApproval(database, approvalID)
	if err != nil {
		return fmt.Errorf("failed to lookup approval: %w", err)
	}
	if approval == nil {
		return fmt.Errorf("approval not found: %s", approvalID)
	}

	if err := db.DecideApproval(database, approvalID, models.ApprovalStatusRejected); err != nil {
		return fmt.Errorf("approval already decided: %w", err)
	}

	fmt.Printf("✓ Follow-up rejected: %s\n", approvalID)
	return nil
}
