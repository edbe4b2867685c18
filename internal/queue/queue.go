// Package queue provides the async plumbing between the request path and
// slow sinks. Two queues exist in this service: the usage queue, drained
// in batches into the usage_records table, and the notification queue,
// drained one-by-one into the ops Telegram channel.
//
// Two backends implement the same interface. The memory queue is
// channel-based with no persistence and suits single-instance or dev
// deployments; the Redis list queue survives restarts and supports
// draining from a separate worker process. Items that exhaust their
// retries land in a dead letter queue for manual inspection.
package queue

import (
	"context"
	"time"
)

// Queue is a FIFO byte-agnostic message queue. Dequeue blocks until at
// least one item arrives; DequeueWithTimeout returns an empty slice if
// nothing shows up in time, which lets workers batch partial windows.
type Queue interface {
	Enqueue(ctx context.Context, item interface{}) error
	Dequeue(ctx context.Context, maxItems int) ([]interface{}, error)
	DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]interface{}, error)
	Length(ctx context.Context) (int, error)
	Close() error
}

// DeadLetterQueue holds items a worker gave up on, together with the
// final error. Nothing drains it automatically.
type DeadLetterQueue interface {
	Add(ctx context.Context, item interface{}, err error) error
	List(ctx context.Context, maxItems int) ([]DeadLetterItem, error)
	Remove(ctx context.Context, id string) error
	Close() error
}

// DeadLetterItem is one parked failure.
type DeadLetterItem struct {
	ID        string      `json:"id"`
	Item      interface{} `json:"item"`
	Error     string      `json:"error"`
	Timestamp time.Time   `json:"timestamp"`
	Retries   int         `json:"retries"`
}

// Config tunes a queue and the worker draining it.
type Config struct {
	QueueName    string
	BatchSize    int
	BatchTimeout time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// DefaultConfig returns the settings used by the usage pipeline: batches
// of up to 100 records, a 5 second partial-batch window, and 3 retries
// with exponential backoff.
func DefaultConfig(queueName string) *Config {
	return &Config{
		QueueName:    queueName,
		BatchSize:    100,
		BatchTimeout: 5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 1 * time.Second,
	}
}
