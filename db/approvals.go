// ABOUTME: FollowupApproval database operations
// ABOUTME: Enforces at most one pending approval per lead
package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/restriden/simpli-immo-sub001/models"
)

const approvalColumns = `id, lead_id, draft, reasoning, status, expires_at, decided_at, sent_at, created_at, updated_at`

// CreatePendingApproval stores a new draft for review. Any prior pending
// approval for the lead is deleted in the same transaction, so afterwards the
// lead has exactly one pending row.
func CreatePendingApproval(db *sql.DB, approval *models.FollowupApproval) error {
	approval.ID = uuid.New()
	now := time.Now()
	approval.Status = models.ApprovalStatusPending
	approval.CreatedAt = now
	approval.UpdatedAt = now
	if approval.ExpiresAt.IsZero() {
		approval.ExpiresAt = now.Add(48 * time.Hour)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // Safe even after commit
	}()

	_, err = tx.Exec(`
		DELETE FROM followup_approvals WHERE lead_id = $1 AND status = 'pending'
	`, approval.LeadID.String())
	if err != nil {
		return fmt.Errorf("failed to clear prior pending approval: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO followup_approvals (id, lead_id, draft, reasoning, status, expires_at, decided_at, sent_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULL, NULL, $7, $8)
	`, approval.ID.String(), approval.LeadID.String(), approval.Draft, approval.Reasoning,
		approval.Status, approval.ExpiresAt, approval.CreatedAt, approval.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert approval: %w", err)
	}

	return tx.Commit()
}

// DeletePendingApproval drops a lead's pending draft, typically because a new
// inbound message made it stale.
func DeletePendingApproval(db *sql.DB, leadID uuid.UUID) error {
	_, err := db.Exec(`
		DELETE FROM followup_approvals WHERE lead_id = $1 AND status = 'pending'
	`, leadID.String())

	return err
}

func GetApproval(db *sql.DB, id uuid.UUID) (*models.FollowupApproval, error) {
	row := db.QueryRow(`SELECT `+approvalColumns+` FROM followup_approvals WHERE id = $1`, id.String())

	approval, err := scanApproval(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return approval, nil
}

func GetPendingApprovalByLead(db *sql.DB, leadID uuid.UUID) (*models.FollowupApproval, error) {
	row := db.QueryRow(`
		SELECT `+approvalColumns+` FROM followup_approvals
		WHERE lead_id = $1 AND status = 'pending'
	`, leadID.String())

	approval, err := scanApproval(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return approval, nil
}

func ListPendingApprovals(db *sql.DB, limit int) ([]models.FollowupApproval, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.Query(`
		SELECT `+approvalColumns+` FROM followup_approvals
		WHERE status = 'pending'
		ORDER BY created_at LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var approvals []models.FollowupApproval
	for rows.Next() {
		approval, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		approvals = append(approvals, *approval)
	}

	return approvals, rows.Err()
}

// DecideApproval moves a pending approval to approved or rejected. Deciding a
// non-pending approval is an error.
func DecideApproval(db *sql.DB, id uuid.UUID, status string) error {
	if status != models.ApprovalStatusApproved && status != models.ApprovalStatusRejected {
		return fmt.Errorf("invalid approval decision: %s", status)
	}

	now := time.Now()
	res, err := db.Exec(`
		UPDATE followup_approvals SET status = $1, decided_at = $2, updated_at = $3
		WHERE id = $4 AND status = 'pending'
	`, status, now, now, id.String())
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("approval %s is not pending", id)
	}
	return nil
}

func MarkApprovalSent(db *sql.DB, id uuid.UUID, at time.Time) error {
	_, err := db.Exec(`
		UPDATE followup_approvals SET status = 'sent', sent_at = $1, updated_at = $2
		WHERE id = $3 AND status = 'approved'
	`, at, time.Now(), id.String())

	return err
}

// ExpirePendingApprovals marks overdue pending approvals expired and reports
// how many were swept.
func ExpirePendingApprovals(db *sql.DB, now time.Time) (int, error) {
	res, err := db.Exec(`
		UPDATE followup_approvals SET status = 'expired', decided_at = $1, updated_at = $2
		WHERE status = 'pending' AND expires_at < $3
	`, now, now, now)
	if err != nil {
		return 0, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

func scanApproval(row rowScanner) (*models.FollowupApproval, error) {
	approval := &models.FollowupApproval{}
	var decidedAt, sentAt sql.NullTime

	err := row.Scan(
		&approval.ID,
		&approval.LeadID,
		&approval.Draft,
		&approval.Reasoning,
		&approval.Status,
		&approval.ExpiresAt,
		&decidedAt,
		&sentAt,
		&approval.CreatedAt,
		&approval.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if decidedAt.Valid {
		approval.DecidedAt = &decidedAt.Time
	}
	if sentAt.Valid {
		approval.SentAt = &sentAt.Time
	}

	return approval, nil
}
