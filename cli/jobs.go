// ABOUTME: Analysis job CLI commands
// ABOUTME: Starts batch jobs and shows their continuation progress
package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/restriden/simpli-immo-sub001/config"
	"github.com/restriden/simpli-immo-sub001/db"
	"github.com/restriden/simpli-immo-sub001/models"
)

// JobsCommand lists recent jobs or starts a new one.
func JobsCommand(database *sql.DB, cfg *config.Config, args []string) error {
	if len(args) > 0 && args[0] == "start" {
		return startJob(database, cfg, args[1:])
	}

	fs := flag.NewFlagSet("jobs", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Maximum results")
	_ = fs.Parse(args)

	jobs, err := db.ListRecentAnalysisJobs(database, *limit)
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found. Start one with 'immosync jobs start <kind>'.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KIND\tSTATUS\tPROGRESS\tFAILED\tSTARTED\tID")
	_, _ = fmt.Fprintln(w, "----\t------\t--------\t------\t-------\t--")

	for _, job := range jobs {
		processed := job.AnalyzedCount + job.SkippedCount + job.FailedCount
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d/%d\t%d\t%s\t%s\n",
			job.Kind, job.Status, processed, job.TotalItems, job.FailedCount,
			job.StartedAt.Format("2006-01-02 15:04"), job.ID.String()[:8])
	}
	_ = w.Flush()

	fmt.Printf("\nTotal: %d job(s)\n", len(jobs))
	return nil
}

// startJob creates a job and, in embedded mode, drains the queue so the run
// finishes before the command returns. With a broker the workers take over.
func startJob(database *sql.DB, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("jobs start", flag.ExitOnError)
	full := fs.Bool("full", false, "Reprocess items that were already handled")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("job kind is required (lead_analysis/followup_drafts/listing_translation)")
	}
	kind := fs.Arg(0)
	switch kind {
	case models.JobKindLeadAnalysis, models.JobKindFollowupDrafts, models.JobKindListingTranslation:
	default:
		return fmt.Errorf("unknown job kind: %s", kind)
	}

	if err := cfg.RequireLLM(); err != nil {
		return err
	}

	rt, err := newRuntime(database, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if rt.embedded {
		if err := rt.runner.Subscribe(); err != nil {
			return fmt.Errorf("failed to subscribe job runner: %w", err)
		}
	}

	job, err := rt.runner.Start(context.Background(), kind, *full)
	if err != nil {
		return fmt.Errorf("failed to start job: %w", err)
	}

	fmt.Printf("→ Started %s job %s (%d items)\n", kind, job.ID, job.TotalItems)

	if !rt.embedded {
		fmt.Println("  Queue workers will process it; check 'immosync jobs' for progress.")
		return nil
	}

	rt.waitIdle()

	final, err := db.GetAnalysisJob(database, job.ID)
	if err != nil || final == nil {
		return fmt.Errorf("failed to reload job %s: %w", job.ID, err)
	}

	if final.Status == models.JobStatusFailed {
		return fmt.Errorf("job failed: %s", final.LastError)
	}
	fmt.Printf("✓ %s finished: %d analyzed, %d skipped, %d failed\n",
		kind, final.AnalyzedCount, final.SkippedCount, final.FailedCount)
	return nil
}
