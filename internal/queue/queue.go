// Package queue provides typed queues for asynchronous processing with two
// backends:
//
//  1. Memory queue (channel based): no persistence, no dependencies. Suits
//     single-process and development deployments.
//  2. Redis queue (list based): survives restarts and can be drained by
//     workers in other processes.
//
// Both come with a dead-letter queue for items that exhausted their retries.
// The usage-event writer is the main consumer:
//
//	enrich call ──► usage queue ──► usage worker (batches) ──► record store
//	                                      │ (retry)
//	                                      └──► DLQ
package queue

import (
	"context"
	"time"
)

// Queue defines the interface for message queuing
type Queue[T any] interface {
	// Enqueue adds an item to the queue
	Enqueue(ctx context.Context, item T) error

	// Dequeue retrieves up to maxItems items, blocking until at least one
	// is available or ctx is cancelled
	Dequeue(ctx context.Context, maxItems int) ([]T, error)

	// DequeueWithTimeout is Dequeue bounded by timeout; it returns an empty
	// slice when nothing arrived in time
	DequeueWithTimeout(ctx context.Context, maxItems int, timeout time.Duration) ([]T, error)

	// Length returns the current queue length
	Length(ctx context.Context) (int, error)

	// Close shuts down the queue gracefully
	Close() error
}

// DeadLetterQueue defines the interface for handling failed items
type DeadLetterQueue[T any] interface {
	// Add stores a failed item together with the error that sank it
	Add(ctx context.Context, item T, err error) error

	// List retrieves up to maxItems items; maxItems <= 0 means all
	List(ctx context.Context, maxItems int) ([]DeadLetterItem[T], error)

	// Remove removes an item from the dead letter queue
	Remove(ctx context.Context, id string) error

	// Close shuts down the dead letter queue
	Close() error
}

// DeadLetterItem represents an item in the dead letter queue
type DeadLetterItem[T any] struct {
	ID        string    `json:"id"`
	Item      T         `json:"item"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
	Retries   int       `json:"retries"`
}

// Config holds queue configuration
type Config struct {
	// BatchSize is the maximum number of items to process in a batch
	BatchSize int

	// BatchTimeout is how long to wait before processing a partial batch
	BatchTimeout time.Duration

	// MaxRetries is the maximum number of retry attempts
	MaxRetries int

	// RetryBackoff is the initial backoff duration for retries
	RetryBackoff time.Duration

	// QueueName is the name/key for the queue
	QueueName string
}

// DefaultConfig returns default queue configuration
func DefaultConfig(queueName string) *Config {
	return &Config{
		BatchSize:    100,
		BatchTimeout: 5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 1 * time.Second,
		QueueName:    queueName,
	}
}
