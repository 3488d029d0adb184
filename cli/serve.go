// ABOUTME: Long-running serve and worker subcommands
// ABOUTME: HTTP surface, queue subscription, and the periodic gocron schedules
package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/restriden/simpli-immo-sub001/config"
	"github.com/restriden/simpli-immo-sub001/db"
	"github.com/restriden/simpli-immo-sub001/models"
	"github.com/restriden/simpli-immo-sub001/web"
)

const (
	scheduledSyncTimeout  = 15 * time.Minute
	approvalSweepInterval = 10 * time.Minute
	leaseReapInterval     = time.Minute
)

// ServeCommand runs the HTTP server with an embedded job consumer and the
// periodic schedules. This is the single-process deployment shape.
func ServeCommand(database *sql.DB, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", cfg.ListenAddr, "HTTP listen address")
	withScheduler := fs.Bool("scheduler", true, "Run periodic sync and sweep schedules")
	_ = fs.Parse(args)

	cfg.ListenAddr = *addr

	rt, err := newRuntime(database, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.runner.Subscribe(); err != nil {
		return fmt.Errorf("failed to subscribe job runner: %w", err)
	}

	if *withScheduler {
		scheduler, err := startScheduler(database, rt)
		if err != nil {
			return err
		}
		defer scheduler.Stop()
	}

	server := web.NewServer(database, cfg, rt.crm, rt.queue, rt.runner, rt.syncer)
	log.Printf("immosync listening on %s", cfg.ListenAddr)
	return server.Start()
}

// WorkerCommand runs a broker-fed job consumer without the HTTP surface.
// Multiple workers compete on the same queue; enable the scheduler on
// exactly one process per deployment.
func WorkerCommand(database *sql.DB, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("worker", flag.ExitOnError)
	withScheduler := fs.Bool("scheduler", false, "Run periodic sync and sweep schedules on this worker")
	_ = fs.Parse(args)

	if cfg.AMQPURL == "" {
		return fmt.Errorf("worker mode needs a broker. Set AMQP_URL or run 'immosync serve' for the embedded queue")
	}

	rt, err := newRuntime(database, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.runner.Subscribe(); err != nil {
		return fmt.Errorf("failed to subscribe job runner: %w", err)
	}

	if *withScheduler {
		scheduler, err := startScheduler(database, rt)
		if err != nil {
			return err
		}
		defer scheduler.Stop()
	}

	log.Println("immosync worker consuming tasks")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("worker shutting down")
	return nil
}

// startScheduler registers the periodic work: full sync of every active
// connection, the pending-approval expiry sweep, and the stalled-job reaper
// that republishes continuations for jobs whose lease ran out.
func startScheduler(database *sql.DB, rt *runtime) (*gocron.Scheduler, error) {
	s := gocron.NewScheduler(time.UTC)

	_, err := s.Every(rt.cfg.SyncInterval).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), scheduledSyncTimeout)
		defer cancel()

		results, err := rt.syncer.SyncAll(ctx, models.SyncTypeFull)
		if err != nil {
			log.Printf("scheduler: periodic sync failed: %v", err)
			return
		}
		for _, res := range results {
			if res.Err != nil {
				log.Printf("scheduler: sync for %s failed: %v", res.LocationID, res.Err)
			}
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule periodic sync: %w", err)
	}

	_, err = s.Every(approvalSweepInterval).Do(func() {
		expired, err := db.ExpirePendingApprovals(database, time.Now())
		if err != nil {
			log.Printf("scheduler: approval sweep failed: %v", err)
			return
		}
		if expired > 0 {
			log.Printf("scheduler: expired %d stale approvals", expired)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule approval sweep: %w", err)
	}

	_, err = s.Every(leaseReapInterval).Do(func() {
		cutoff := time.Now().Add(-rt.cfg.ClaimTTL)
		stalled, err := db.ListStalledAnalysisJobs(database, cutoff)
		if err != nil {
			log.Printf("scheduler: stalled job scan failed: %v", err)
			return
		}
		for i := range stalled {
			job := &stalled[i]
			if err := rt.runner.Republish(context.Background(), job); err != nil {
				log.Printf("scheduler: failed to republish job %s: %v", job.ID, err)
				continue
			}
			log.Printf("scheduler: republished stalled %s job %s", job.Kind, job.ID)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule lease reaper: %w", err)
	}

	s.StartAsync()
	return s, nil
}
