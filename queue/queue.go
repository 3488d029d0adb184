// ABOUTME: Queue abstraction carrying background task messages
// ABOUTME: In-memory implementation with retry, AMQP implementation in amqp.go
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"
)

// TopicTasks carries job continuations and webhook-triggered lead tasks.
const TopicTasks = "analysis_tasks"

// TaskKindKnowledge marks a single-lead knowledge extraction task. Batch task
// kinds reuse the models.JobKind* values.
const TaskKindKnowledge = "knowledge_learn"

// Task is the message the queue carries: a batch-job continuation when JobID
// is set, otherwise a single-lead task published by the webhook ingestor.
type Task struct {
	Kind      string `json:"kind"`
	JobID     string `json:"job_id,omitempty"`
	LeadID    string `json:"lead_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

func (t Task) Encode() ([]byte, error) {
	return json.Marshal(t)
}

func DecodeTask(body []byte) (Task, error) {
	var task Task
	if err := json.Unmarshal(body, &task); err != nil {
		return Task{}, fmt.Errorf("failed to decode task: %w", err)
	}
	return task, nil
}

// Handler consumes one message. A returned error triggers redelivery until
// the retry budget is spent.
type Handler func(ctx context.Context, body []byte) error

// Queue is the transport for background tasks. Delivery is at-least-once:
// handlers must tolerate duplicates.
type Queue interface {
	Publish(ctx context.Context, topic string, body []byte) error
	Subscribe(topic string, handler Handler) error
	Close() error
}

const defaultMaxRetries = 3

// InMemoryQueue delivers messages to subscribers on goroutines with bounded
// retry. It backs single-process deployments and tests; multi-process setups
// use the AMQP queue.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	retryGap time.Duration

	wg     sync.WaitGroup
	closed bool
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]Handler),
		retryGap: 200 * time.Millisecond,
	}
}

func (q *InMemoryQueue) Publish(ctx context.Context, topic string, body []byte) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("queue is closed")
	}
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		q.wg.Add(1)
		go q.deliver(handler, topic, body)
	}
	return nil
}

// deliver retries a failing handler with a growing gap, then drops the
// message once the budget is spent.
func (q *InMemoryQueue) deliver(handler Handler, topic string, body []byte) {
	defer q.wg.Done()

	for attempt := 0; ; attempt++ {
		err := handler(context.Background(), body)
		if err == nil {
			return
		}
		if attempt >= defaultMaxRetries {
			log.Printf("queue: dropping message on %s after %d attempts: %v", topic, attempt+1, err)
			return
		}
		log.Printf("queue: handler on %s failed (attempt %d/%d): %v", topic, attempt+1, defaultMaxRetries, err)
		time.Sleep(time.Duration(attempt+1) * q.retryGap)
	}
}

func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}
	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Wait blocks until every in-flight delivery, including continuations
// published by running handlers, has finished.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}

// Close drains in-flight deliveries and rejects later publishes.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.wg.Wait()
	return nil
}
