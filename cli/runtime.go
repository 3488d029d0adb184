// ABOUTME: Shared service wiring for CLI commands
// ABOUTME: Builds the CRM client, queue, LLM assistant, job runner, and syncer
package cli

import (
	"database/sql"
	"fmt"

	"github.com/restriden/simpli-immo-sub001/config"
	"github.com/restriden/simpli-immo-sub001/crm"
	"github.com/restriden/simpli-immo-sub001/jobs"
	"github.com/restriden/simpli-immo-sub001/llm"
	"github.com/restriden/simpli-immo-sub001/queue"
	"github.com/restriden/simpli-immo-sub001/sync"
)

// runtime bundles the long-lived components a command needs. Embedded mode
// runs the in-process queue; with AMQP_URL set the broker carries the tasks.
type runtime struct {
	cfg       *config.Config
	crm       *crm.Client
	queue     queue.Queue
	assistant *llm.Assistant
	runner    *jobs.Runner
	syncer    *sync.Syncer
	embedded  bool
}

func newRuntime(database *sql.DB, cfg *config.Config) (*runtime, error) {
	client := crm.NewClient(cfg)

	var q queue.Queue
	embedded := cfg.AMQPURL == ""
	if embedded {
		q = queue.NewInMemoryQueue()
	} else {
		amqpQueue, err := queue.NewAMQPQueue(cfg.AMQPURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
		}
		q = amqpQueue
	}

	assistant := llm.NewAssistant(database, llm.NewClient(cfg), cfg)

	return &runtime{
		cfg:       cfg,
		crm:       client,
		queue:     q,
		assistant: assistant,
		runner:    jobs.NewRunner(database, assistant, q, cfg),
		syncer:    sync.NewSyncer(database, client, cfg),
		embedded:  embedded,
	}, nil
}

func (rt *runtime) Close() {
	_ = rt.queue.Close()
}

// waitIdle blocks until the embedded queue drained. A no-op on the broker
// queue, whose consumers live in other processes.
func (rt *runtime) waitIdle() {
	if q, ok := rt.queue.(*queue.InMemoryQueue); ok {
		q.Wait()
	}
}
