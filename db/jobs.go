// ABOUTME: AnalysisJob database operations
// ABOUTME: Lease-based batch claiming and claim-token-fenced counter updates
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/restriden/simpli-immo-sub001/models"
)

// ErrClaimLost means a fenced job update found the claim token gone, so the
// batch's work must not be counted by this holder.
var ErrClaimLost = errors.New("analysis job claim lost")

const jobColumns = `id, kind, status, total_items, analyzed_count, skipped_count, failed_count, batch_size, full_rerun, claimed_at, claim_token, last_error, started_at, completed_at, updated_at`

func CreateAnalysisJob(db *sql.DB, job *models.AnalysisJob) error {
	job.ID = uuid.New()
	now := time.Now()
	job.Status = models.JobStatusRunning
	job.StartedAt = now
	job.UpdatedAt = now
	if job.BatchSize <= 0 {
		job.BatchSize = 10
	}

	_, err := db.Exec(`
		INSERT INTO analysis_jobs (id, kind, status, total_items, analyzed_count, skipped_count, failed_count, batch_size, full_rerun, claimed_at, claim_token, last_error, started_at, completed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL, '', '', $10, NULL, $11)
	`, job.ID.String(), job.Kind, job.Status, job.TotalItems, job.AnalyzedCount,
		job.SkippedCount, job.FailedCount, job.BatchSize, job.FullRerun, job.StartedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert analysis job: %w", err)
	}

	return nil
}

func GetAnalysisJob(db *sql.DB, id uuid.UUID) (*models.AnalysisJob, error) {
	row := db.QueryRow(`SELECT `+jobColumns+` FROM analysis_jobs WHERE id = $1`, id.String())

	job, err := scanAnalysisJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ClaimAnalysisJob takes the batch lease for a running job. The claim
// succeeds only when the job is unclaimed or its previous lease is older than
// leaseTTL, so overlapping continuations settle on one holder.
func ClaimAnalysisJob(db *sql.DB, id uuid.UUID, token string, leaseTTL time.Duration) (bool, error) {
	now := time.Now()
	cutoff := now.Add(-leaseTTL)

	res, err := db.Exec(`
		UPDATE analysis_jobs SET claimed_at = $1, claim_token = $2, updated_at = $3
		WHERE id = $4 AND status = 'running' AND (claimed_at IS NULL OR claimed_at < $5)
	`, now, token, now, id.String(), cutoff)
	if err != nil {
		return false, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// AddAnalysisJobCounts applies a batch's counter deltas, fenced by the claim
// token so a stolen lease cannot double-count.
func AddAnalysisJobCounts(db *sql.DB, id uuid.UUID, token string, analyzed, skipped, failed int) error {
	res, err := db.Exec(`
		UPDATE analysis_jobs SET
			analyzed_count = analyzed_count + $1,
			skipped_count = skipped_count + $2,
			failed_count = failed_count + $3,
			updated_at = $4
		WHERE id = $5 AND claim_token = $6
	`, analyzed, skipped, failed, time.Now(), id.String(), token)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrClaimLost
	}
	return nil
}

// ReleaseAnalysisJob drops the lease if this holder still owns it.
func ReleaseAnalysisJob(db *sql.DB, id uuid.UUID, token string) error {
	_, err := db.Exec(`
		UPDATE analysis_jobs SET claimed_at = NULL, claim_token = '', updated_at = $1
		WHERE id = $2 AND claim_token = $3
	`, time.Now(), id.String(), token)

	return err
}

func CompleteAnalysisJob(db *sql.DB, id uuid.UUID, token string) error {
	now := time.Now()

	res, err := db.Exec(`
		UPDATE analysis_jobs SET status = 'completed', completed_at = $1, claimed_at = NULL, claim_token = '', updated_at = $2
		WHERE id = $3 AND claim_token = $4 AND status = 'running'
	`, now, now, id.String(), token)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrClaimLost
	}
	return nil
}

func FailAnalysisJob(db *sql.DB, id uuid.UUID, token, lastError string) error {
	now := time.Now()

	res, err := db.Exec(`
		UPDATE analysis_jobs SET status = 'failed', last_error = $1, completed_at = $2, claimed_at = NULL, claim_token = '', updated_at = $3
		WHERE id = $4 AND claim_token = $5 AND status = 'running'
	`, lastError, now, now, id.String(), token)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrClaimLost
	}
	return nil
}

func ListRecentAnalysisJobs(db *sql.DB, limit int) ([]models.AnalysisJob, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.Query(`
		SELECT `+jobColumns+` FROM analysis_jobs ORDER BY started_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAnalysisJobs(rows)
}

// ListStalledAnalysisJobs finds running jobs that have not progressed since
// cutoff and hold no live lease. The scheduler republishes their
// continuations.
func ListStalledAnalysisJobs(db *sql.DB, cutoff time.Time) ([]models.AnalysisJob, error) {
	rows, err := db.Query(`
		SELECT `+jobColumns+` FROM analysis_jobs
		WHERE status = 'running' AND updated_at < $1 AND (claimed_at IS NULL OR claimed_at < $2)
	`, cutoff, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAnalysisJobs(rows)
}

func collectAnalysisJobs(rows *sql.Rows) ([]models.AnalysisJob, error) {
	var jobs []models.AnalysisJob
	for rows.Next() {
		job, err := scanAnalysisJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func scanAnalysisJob(row rowScanner) (*models.AnalysisJob, error) {
	job := &models.AnalysisJob{}
	var claimedAt, completedAt sql.NullTime

	err := row.Scan(
		&job.ID,
		&job.Kind,
		&job.Status,
		&job.TotalItems,
		&job.AnalyzedCount,
		&job.SkippedCount,
		&job.FailedCount,
		&job.BatchSize,
		&job.FullRerun,
		&claimedAt,
		&job.ClaimToken,
		&job.LastError,
		&job.StartedAt,
		&completedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if claimedAt.Valid {
		job.ClaimedAt = &claimedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}

	return job, nil
}
