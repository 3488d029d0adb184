// ABOUTME: Tests for analysis job claiming and fenced counter updates
// ABOUTME: Covers lease exclusivity, expiry takeover, and claim-lost detection
package db

import (
	"errors"
	"testing"
	"time"

	"github.com/restriden/simpli-immo-sub001/models"
)

func TestClaimAnalysisJobExclusive(t *testing.T) {
	db := testDB(t)

	job := &models.AnalysisJob{Kind: models.JobKindLeadAnalysis, TotalItems: 5, BatchSize: 2}
	if err := CreateAnalysisJob(db, job); err != nil {
		t.Fatalf("CreateAnalysisJob failed: %v", err)
	}

	claimed, err := ClaimAnalysisJob(db, job.ID, "token-a", time.Minute)
	if err != nil {
		t.Fatalf("first claim failed: %v", err)
	}
	if !claimed {
		t.Fatal("expected first claim to succeed")
	}

	stolen, err := ClaimAnalysisJob(db, job.ID, "token-b", time.Minute)
	if err != nil {
		t.Fatalf("second claim errored: %v", err)
	}
	if stolen {
		t.Fatal("second claim must fail while the lease is held")
	}
}

func TestClaimAnalysisJobAfterLeaseExpiry(t *testing.T) {
	db := testDB(t)

	job := &models.AnalysisJob{Kind: models.JobKindLeadAnalysis, TotalItems: 5}
	if err := CreateAnalysisJob(db, job); err != nil {
		t.Fatalf("CreateAnalysisJob failed: %v", err)
	}

	claimed, err := ClaimAnalysisJob(db, job.ID, "token-a", 10*time.Millisecond)
	if err != nil || !claimed {
		t.Fatalf("first claim failed: claimed=%v err=%v", claimed, err)
	}

	time.Sleep(25 * time.Millisecond)

	takeover, err := ClaimAnalysisJob(db, job.ID, "token-b", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("takeover claim errored: %v", err)
	}
	if !takeover {
		t.Fatal("expected claim to succeed after lease expiry")
	}

	stored, err := GetAnalysisJob(db, job.ID)
	if err != nil {
		t.Fatalf("GetAnalysisJob failed: %v", err)
	}
	if stored.ClaimToken != "token-b" {
		t.Errorf("expected token-b to hold the lease, got %q", stored.ClaimToken)
	}
}

func TestAddAnalysisJobCountsFenced(t *testing.T) {
	db := testDB(t)

	job := &models.AnalysisJob{Kind: models.JobKindFollowupDrafts, TotalItems: 4}
	if err := CreateAnalysisJob(db, job); err != nil {
		t.Fatalf("CreateAnalysisJob failed: %v", err)
	}

	if _, err := ClaimAnalysisJob(db, job.ID, "token-a", time.Minute); err != nil {
		t.Fatalf("claim failed: %v", err)
	}

	if err := AddAnalysisJobCounts(db, job.ID, "token-a", 2, 1, 0); err != nil {
		t.Fatalf("AddAnalysisJobCounts failed: %v", err)
	}

	err := AddAnalysisJobCounts(db, job.ID, "stale-token", 2, 0, 0)
	if !errors.Is(err, ErrClaimLost) {
		t.Fatalf("expected ErrClaimLost for a stale token, got %v", err)
	}

	stored, err := GetAnalysisJob(db, job.ID)
	if err != nil {
		t.Fatalf("GetAnalysisJob failed: %v", err)
	}
	if stored.AnalyzedCount != 2 || stored.SkippedCount != 1 || stored.FailedCount != 0 {
		t.Errorf("unexpected counts: analyzed=%d skipped=%d failed=%d",
			stored.AnalyzedCount, stored.SkippedCount, stored.FailedCount)
	}
	if stored.Remaining() != 1 {
		t.Errorf("expected 1 remaining, got %d", stored.Remaining())
	}
}

func TestCompleteAnalysisJob(t *testing.T) {
	db := testDB(t)

	job := &models.AnalysisJob{Kind: models.JobKindListingTranslation, TotalItems: 1}
	if err := CreateAnalysisJob(db, job); err != nil {
		t.Fatalf("CreateAnalysisJob failed: %v", err)
	}

	if _, err := ClaimAnalysisJob(db, job.ID, "token-a", time.Minute); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if err := CompleteAnalysisJob(db, job.ID, "token-a"); err != nil {
		t.Fatalf("CompleteAnalysisJob failed: %v", err)
	}

	stored, err := GetAnalysisJob(db, job.ID)
	if err != nil {
		t.Fatalf("GetAnalysisJob failed: %v", err)
	}
	if stored.Status != models.JobStatusCompleted {
		t.Errorf("expected completed, got %s", stored.Status)
	}
	if stored.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}

	// A terminal job cannot be completed or claimed again.
	if err := CompleteAnalysisJob(db, job.ID, "token-a"); !errors.Is(err, ErrClaimLost) {
		t.Errorf("expected ErrClaimLost on double completion, got %v", err)
	}
	claimed, err := ClaimAnalysisJob(db, job.ID, "token-b", time.Minute)
	if err != nil {
		t.Fatalf("claim errored: %v", err)
	}
	if claimed {
		t.Error("completed job must not be claimable")
	}
}

func TestFailAnalysisJob(t *testing.T) {
	db := testDB(t)

	job := &models.AnalysisJob{Kind: models.JobKindLeadAnalysis, TotalItems: 3}
	if err := CreateAnalysisJob(db, job); err != nil {
		t.Fatalf("CreateAnalysisJob failed: %v", err)
	}

	if _, err := ClaimAnalysisJob(db, job.ID, "token-a", time.Minute); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if err := FailAnalysisJob(db, job.ID, "token-a", "LLM nicht erreichbar"); err != nil {
		t.Fatalf("FailAnalysisJob failed: %v", err)
	}

	stored, err := GetAnalysisJob(db, job.ID)
	if err != nil {
		t.Fatalf("GetAnalysisJob failed: %v", err)
	}
	if stored.Status != models.JobStatusFailed {
		t.Errorf("expected failed, got %s", stored.Status)
	}
	if stored.LastError != "LLM nicht erreichbar" {
		t.Errorf("unexpected last error: %s", stored.LastError)
	}
}

func TestListStalledAnalysisJobs(t *testing.T) {
	db := testDB(t)

	job := &models.AnalysisJob{Kind: models.JobKindLeadAnalysis, TotalItems: 3}
	if err := CreateAnalysisJob(db, job); err != nil {
		t.Fatalf("CreateAnalysisJob failed: %v", err)
	}

	// Fresh jobs are not stalled.
	stalled, err := ListStalledAnalysisJobs(db, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("ListStalledAnalysisJobs failed: %v", err)
	}
	if len(stalled) != 0 {
		t.Fatalf("expected no stalled jobs, got %d", len(stalled))
	}

	// Age the job's progress timestamp past the cutoff.
	old := time.Now().Add(-time.Hour)
	if _, err := db.Exec("UPDATE analysis_jobs SET updated_at = $1 WHERE id = $2", old, job.ID.String()); err != nil {
		t.Fatalf("aging update failed: %v", err)
	}

	stalled, err = ListStalledAnalysisJobs(db, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("ListStalledAnalysisJobs failed: %v", err)
	}
	if len(stalled) != 1 || stalled[0].ID != job.ID {
		t.Fatalf("expected the aged job to be stalled, got %d", len(stalled))
	}
}
