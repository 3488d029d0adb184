// ABOUTME: Background job runner driving batch LLM work through the queue
// ABOUTME: Claims one batch per continuation message and fences counter updates
package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/restriden/simpli-immo-sub001/config"
	"github.com/restriden/simpli-immo-sub001/db"
	"github.com/restriden/simpli-immo-sub001/llm"
	"github.com/restriden/simpli-immo-sub001/models"
	"github.com/restriden/simpli-immo-sub001/queue"
)

// contextMessageLimit caps how much conversation history one LLM call sees.
const contextMessageLimit = 50

// knowledgeLimit caps the knowledge entries rendered into a follow-up prompt.
const knowledgeLimit = 20

var errUnknownKind = errors.New("unknown job kind")

// Runner drains analysis tasks from the queue. Batch jobs advance through
// continuation messages: each one claims the job, processes one bounded
// batch, adds the claim-fenced counter deltas, and either completes the job
// or publishes the next continuation.
type Runner struct {
	db        *sql.DB
	assistant *llm.Assistant
	queue     queue.Queue
	cfg       *config.Config
}

func NewRunner(database *sql.DB, assistant *llm.Assistant, q queue.Queue, cfg *config.Config) *Runner {
	return &Runner{db: database, assistant: assistant, queue: q, cfg: cfg}
}

// Subscribe attaches the runner to the task topic.
func (r *Runner) Subscribe() error {
	return r.queue.Subscribe(queue.TopicTasks, r.Handle)
}

// Start creates a batch job sized to the current work set and publishes its
// first continuation.
func (r *Runner) Start(ctx context.Context, kind string, fullRerun bool) (*models.AnalysisJob, error) {
	total, err := r.countWork(kind, fullRerun)
	if err != nil {
		return nil, fmt.Errorf("failed to count %s work: %w", kind, err)
	}

	job := &models.AnalysisJob{
		Kind:       kind,
		TotalItems: total,
		BatchSize:  r.cfg.BatchSize,
		FullRerun:  fullRerun,
	}
	if err := db.CreateAnalysisJob(r.db, job); err != nil {
		return nil, err
	}

	if err := r.publishContinuation(ctx, job.ID, kind); err != nil {
		// The stalled-job sweep republishes the continuation later.
		log.Printf("jobs: failed to publish first continuation for %s: %v", job.ID, err)
	}

	return job, nil
}

func (r *Runner) countWork(kind string, fullRerun bool) (int, error) {
	switch kind {
	case models.JobKindLeadAnalysis:
		return db.CountLeadsForAnalysis(r.db, fullRerun)
	case models.JobKindFollowupDrafts:
		return db.CountLeadsForFollowup(r.db, time.Now().Add(-r.cfg.FollowupStaleAfter))
	case models.JobKindListingTranslation:
		return db.CountListingsForTranslation(r.db, fullRerun)
	default:
		return 0, fmt.Errorf("%w %q", errUnknownKind, kind)
	}
}

// Republish puts a job's continuation back on the queue. The scheduler calls
// this for jobs whose last holder died without finishing a batch.
func (r *Runner) Republish(ctx context.Context, job *models.AnalysisJob) error {
	return r.publishContinuation(ctx, job.ID, job.Kind)
}

// ContinueNow runs one continuation synchronously and returns the job row
// afterwards. The HTTP job-trigger endpoint uses it; queue deliveries go
// through Handle.
func (r *Runner) ContinueNow(ctx context.Context, jobID uuid.UUID) (*models.AnalysisJob, error) {
	if err := r.continueJob(ctx, queue.Task{JobID: jobID.String()}); err != nil {
		return nil, err
	}
	return db.GetAnalysisJob(r.db, jobID)
}

func (r *Runner) publishContinuation(ctx context.Context, jobID uuid.UUID, kind string) error {
	body, err := queue.Task{Kind: kind, JobID: jobID.String()}.Encode()
	if err != nil {
		return err
	}
	return r.queue.Publish(ctx, queue.TopicTasks, body)
}

// Handle consumes one queue message. A nil return acknowledges the message;
// an error makes the queue redeliver it.
func (r *Runner) Handle(ctx context.Context, body []byte) error {
	task, err := queue.DecodeTask(body)
	if err != nil {
		// A malformed message will not improve on redelivery.
		log.Printf("jobs: dropping undecodable task: %v", err)
		return nil
	}

	if task.JobID != "" {
		return r.continueJob(ctx, task)
	}
	return r.runLeadTask(ctx, task)
}

// continueJob claims the job, runs one batch, and schedules the next step.
func (r *Runner) continueJob(ctx context.Context, task queue.Task) error {
	jobID, err := uuid.Parse(task.JobID)
	if err != nil {
		log.Printf("jobs: dropping task with bad job id %q", task.JobID)
		return nil
	}

	// ULID tokens sort by claim time, which makes lease handoffs readable in
	// the job log.
	token := ulid.Make().String()
	claimed, err := db.ClaimAnalysisJob(r.db, jobID, token, r.cfg.ClaimTTL)
	if err != nil {
		return err
	}
	if !claimed {
		// Finished, unknown, or leased to another worker whose own
		// continuation carries the job forward.
		return nil
	}

	job, err := db.GetAnalysisJob(r.db, jobID)
	if err != nil {
		r.release(jobID, token)
		return err
	}
	if job == nil {
		return nil
	}

	if job.Remaining() == 0 {
		return r.complete(jobID, token)
	}

	processed, analyzed, skipped, failed, err := r.runBatch(ctx, job)
	if err != nil {
		if errors.Is(err, errUnknownKind) {
			if failErr := db.FailAnalysisJob(r.db, jobID, token, err.Error()); failErr != nil && !errors.Is(failErr, db.ErrClaimLost) {
				log.Printf("jobs: failed to mark job %s failed: %v", jobID, failErr)
			}
			return nil
		}
		r.release(jobID, token)
		return err
	}

	if processed == 0 {
		return r.complete(jobID, token)
	}

	if err := db.AddAnalysisJobCounts(r.db, jobID, token, analyzed, skipped, failed); err != nil {
		if errors.Is(err, db.ErrClaimLost) {
			// The lease expired mid-batch and another holder took over, so
			// this batch must not be counted by us as well.
			return nil
		}
		return err
	}
	r.release(jobID, token)

	return r.publishContinuation(ctx, jobID, job.Kind)
}

// runBatch fetches and processes one bounded batch. processed is the batch
// size; the other counts say how the items fared.
func (r *Runner) runBatch(ctx context.Context, job *models.AnalysisJob) (processed, analyzed, skipped, failed int, err error) {
	limit := job.BatchSize
	if remaining := job.Remaining(); remaining < limit {
		limit = remaining
	}

	switch job.Kind {
	case models.JobKindLeadAnalysis:
		leads, err := db.ListLeadsForAnalysis(r.db, job.StartedAt, job.FullRerun, limit)
		if err != nil {
			return 0, 0, 0, 0, err
		}
		a, s, f := r.forEachLead(ctx, leads, r.analyzeLead)
		return len(leads), a, s, f, nil

	case models.JobKindFollowupDrafts:
		staleBefore := time.Now().Add(-r.cfg.FollowupStaleAfter)
		leads, err := db.ListLeadsForFollowup(r.db, staleBefore, job.StartedAt, limit)
		if err != nil {
			return 0, 0, 0, 0, err
		}
		a, s, f := r.forEachLead(ctx, leads, r.draftFollowup)
		return len(leads), a, s, f, nil

	case models.JobKindListingTranslation:
		listings, err := db.ListListingsForTranslation(r.db, job.StartedAt, job.FullRerun, limit)
		if err != nil {
			return 0, 0, 0, 0, err
		}
		a, s, f := r.translateListings(ctx, listings)
		return len(listings), a, s, f, nil

	default:
		return 0, 0, 0, 0, fmt.Errorf("%w %q", errUnknownKind, job.Kind)
	}
}

type itemResult int

const (
	itemDone itemResult = iota
	itemSkipped
	itemFailed
)

// forEachLead fans the batch out to one goroutine per lead and waits for the
// whole batch before any counters are written.
func (r *Runner) forEachLead(ctx context.Context, leads []models.Lead, work func(context.Context, *models.Lead) itemResult) (analyzed, skipped, failed int) {
	var wg sync.WaitGroup
	results := make([]itemResult, len(leads))

	for i := range leads {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = work(ctx, &leads[i])
		}(i)
	}
	wg.Wait()

	return tally(results)
}

func (r *Runner) translateListings(ctx context.Context, listings []models.Listing) (analyzed, skipped, failed int) {
	var wg sync.WaitGroup
	results := make([]itemResult, len(listings))

	for i := range listings {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.translateListing(ctx, &listings[i])
		}(i)
	}
	wg.Wait()

	return tally(results)
}

func tally(results []itemResult) (analyzed, skipped, failed int) {
	for _, res := range results {
		switch res {
		case itemDone:
			analyzed++
		case itemSkipped:
			skipped++
		case itemFailed:
			failed++
		}
	}
	return analyzed, skipped, failed
}

// analyzeLead classifies one lead and stores the result.
func (r *Runner) analyzeLead(ctx context.Context, lead *models.Lead) itemResult {
	messages, err := db.ListMessagesByLead(r.db, lead.ID, contextMessageLimit)
	if err != nil {
		log.Printf("jobs: failed to load messages for lead %s: %v", lead.ID, err)
		return itemFailed
	}
	if len(messages) == 0 {
		// Nothing to classify yet. The webhook requeues the lead once a
		// message arrives, so stamp it out of the work set.
		if err := db.TouchLeadAnalyzed(r.db, lead.ID, time.Now()); err != nil {
			log.Printf("jobs: failed to mark lead %s skipped: %v", lead.ID, err)
		}
		return itemSkipped
	}

	analysis, err := r.assistant.AnalyzeLead(ctx, lead, messages)
	if err != nil {
		log.Printf("jobs: analysis failed for lead %s: %v", lead.ID, err)
		return itemFailed
	}

	if err := db.UpdateLeadAnalysis(r.db, lead.ID, analysis.QualityScore, analysis.Temperature, analysis.Summary, time.Now()); err != nil {
		log.Printf("jobs: failed to store analysis for lead %s: %v", lead.ID, err)
		return itemFailed
	}

	if analysis.SuggestedStatus != "" && analysis.SuggestedStatus != lead.Status && lead.Status != models.LeadStatusBought {
		if err := db.UpdateLeadStatus(r.db, lead.ID, analysis.SuggestedStatus); err != nil {
			log.Printf("jobs: failed to update status for lead %s: %v", lead.ID, err)
		}
	}

	return itemDone
}

// draftFollowup writes a follow-up draft for a quiet lead and parks it as a
// pending approval.
func (r *Runner) draftFollowup(ctx context.Context, lead *models.Lead) itemResult {
	messages, err := db.ListMessagesByLead(r.db, lead.ID, contextMessageLimit)
	if err != nil {
		log.Printf("jobs: failed to load messages for lead %s: %v", lead.ID, err)
		return itemFailed
	}
	if len(messages) == 0 {
		return itemSkipped
	}

	var knowledge []models.KnowledgeEntry
	if lead.ListingID != nil {
		knowledge, err = db.ListKnowledgeEntries(r.db, lead.ListingID, knowledgeLimit)
		if err != nil {
			log.Printf("jobs: failed to load knowledge for lead %s: %v", lead.ID, err)
		}
	}

	draft, err := r.assistant.DraftFollowup(ctx, lead, messages, knowledge)
	if err != nil {
		log.Printf("jobs: follow-up draft failed for lead %s: %v", lead.ID, err)
		return itemFailed
	}

	approval := &models.FollowupApproval{
		LeadID:    lead.ID,
		Draft:     draft.Message,
		Reasoning: draft.Reasoning,
		ExpiresAt: time.Now().Add(r.cfg.ApprovalTTL),
	}
	if err := db.CreatePendingApproval(r.db, approval); err != nil {
		log.Printf("jobs: failed to store follow-up draft for lead %s: %v", lead.ID, err)
		return itemFailed
	}

	return itemDone
}

func (r *Runner) translateListing(ctx context.Context, listing *models.Listing) itemResult {
	translated, err := r.assistant.TranslateListing(ctx, listing.Description)
	if err != nil {
		log.Printf("jobs: translation failed for listing %s: %v", listing.ID, err)
		return itemFailed
	}

	if err := db.UpdateListingTranslation(r.db, listing.ID, translated, time.Now()); err != nil {
		log.Printf("jobs: failed to store translation for listing %s: %v", listing.ID, err)
		return itemFailed
	}

	return itemDone
}

// runLeadTask handles the single-lead tasks the webhook ingestor publishes.
func (r *Runner) runLeadTask(ctx context.Context, task queue.Task) error {
	leadID, err := uuid.Parse(task.LeadID)
	if err != nil {
		log.Printf("jobs: dropping task with bad lead id %q", task.LeadID)
		return nil
	}

	lead, err := db.GetLead(r.db, leadID)
	if err != nil {
		return err
	}
	if lead == nil {
		log.Printf("jobs: dropping %s task for unknown lead %s", task.Kind, leadID)
		return nil
	}

	switch task.Kind {
	case models.JobKindLeadAnalysis:
		if r.analyzeLead(ctx, lead) == itemFailed {
			return fmt.Errorf("failed to analyze lead %s", lead.ID)
		}
		return nil
	case models.JobKindFollowupDrafts:
		if r.draftFollowup(ctx, lead) == itemFailed {
			return fmt.Errorf("failed to draft follow-up for lead %s", lead.ID)
		}
		return nil
	case queue.TaskKindKnowledge:
		return r.learnFromConversation(ctx, lead, task.MessageID)
	default:
		log.Printf("jobs: dropping task with unknown kind %q", task.Kind)
		return nil
	}
}

// learnFromConversation mines an answered question out of the lead's message
// history. messageID names the outbound answer; the question is the newest
// inbound message before it.
func (r *Runner) learnFromConversation(ctx context.Context, lead *models.Lead, messageID string) error {
	messages, err := db.ListMessagesByLead(r.db, lead.ID, contextMessageLimit)
	if err != nil {
		return err
	}

	answerIdx := -1
	for i, m := range messages {
		if m.Direction != models.DirectionOutgoing {
			continue
		}
		if messageID == "" || m.ExternalID == messageID {
			answerIdx = i
			break
		}
	}
	if answerIdx == -1 {
		return nil
	}

	answer := messages[answerIdx]
	var question *models.Message
	for i := answerIdx + 1; i < len(messages); i++ {
		if messages[i].Direction == models.DirectionIncoming {
			question = &messages[i]
			break
		}
	}
	if question == nil || strings.TrimSpace(question.Content) == "" || strings.TrimSpace(answer.Content) == "" {
		return nil
	}

	entries, err := r.assistant.ExtractKnowledge(ctx, question.Content, answer.Content)
	if err != nil {
		var parseErr *llm.ParseError
		if errors.As(err, &parseErr) {
			// Unparseable output will not improve on redelivery.
			log.Printf("jobs: knowledge extraction unparseable for lead %s: %v", lead.ID, err)
			return nil
		}
		return err
	}

	for i := range entries {
		entry := &models.KnowledgeEntry{
			ListingID: lead.ListingID,
			Question:  entries[i].Question,
			Answer:    entries[i].Answer,
			Source:    models.KnowledgeSourceLearned,
		}
		if err := db.CreateKnowledgeEntry(r.db, entry); err != nil {
			return err
		}
	}

	return nil
}

func (r *Runner) release(jobID uuid.UUID, token string) {
	if err := db.ReleaseAnalysisJob(r.db, jobID, token); err != nil {
		log.Printf("jobs: failed to release claim on job %s: %v", jobID, err)
	}
}

func (r *Runner) complete(jobID uuid.UUID, token string) error {
	if err := db.CompleteAnalysisJob(r.db, jobID, token); err != nil && !errors.Is(err, db.ErrClaimLost) {
		return err
	}
	return nil
}
