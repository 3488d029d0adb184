// ABOUTME: AMQP-backed queue for multi-process deployments
// ABOUTME: Durable queues, manual acks, retry counting via message headers
package queue

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/streadway/amqp"
)

const retryCountHeader = "x-retry-count"

// AMQPQueue publishes and consumes tasks over a broker. Queues are durable
// and messages persistent, so tasks survive broker restarts.
type AMQPQueue struct {
	conn *amqp.Connection

	mu       sync.Mutex
	pubCh    *amqp.Channel
	declared map[string]bool
}

func NewAMQPQueue(url string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}
	pubCh, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open publish channel: %w", err)
	}

	return &AMQPQueue{conn: conn, pubCh: pubCh, declared: make(map[string]bool)}, nil
}

func (q *AMQPQueue) Publish(_ context.Context, topic string, body []byte) error {
	return q.publish(topic, body, 0)
}

func (q *AMQPQueue) publish(topic string, body []byte, retryCount int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.declared[topic] {
		if _, err := q.pubCh.QueueDeclare(topic, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", topic, err)
		}
		q.declared[topic] = true
	}

	return q.pubCh.Publish("", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{retryCountHeader: int32(retryCount)},
		Body:         body,
	})
}

// Subscribe consumes the topic on its own channel. Failed deliveries are
// republished with an incremented retry header so the count survives
// redelivery, then acked; messages over budget are dropped.
func (q *AMQPQueue) Subscribe(topic string, handler Handler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consume channel: %w", err)
	}
	if _, err := ch.QueueDeclare(topic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", topic, err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}

	deliveries, err := ch.Consume(topic, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	go func() {
		for d := range deliveries {
			err := handler(context.Background(), d.Body)
			if err != nil {
				retries := headerRetryCount(d.Headers)
				if retries < defaultMaxRetries {
					if pubErr := q.publish(topic, d.Body, retries+1); pubErr != nil {
						log.Printf("queue: failed to requeue message on %s: %v", topic, pubErr)
						_ = d.Nack(false, true)
						continue
					}
				} else {
					log.Printf("queue: dropping message on %s after %d attempts: %v", topic, retries+1, err)
				}
			}
			_ = d.Ack(false)
		}
	}()

	return nil
}

func headerRetryCount(headers amqp.Table) int {
	switch v := headers[retryCountHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func (q *AMQPQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.pubCh.Close(); err != nil {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}
