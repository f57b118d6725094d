package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"listing_enricher/internal/models"
	"listing_enricher/internal/queue"
	"listing_enricher/internal/utils"
)

// UsageTable holds one record per attempted provider call
const UsageTable = "ai_usage"

// UsageQueueWorker drains usage events from a queue into the record store in
// batches. Events that cannot be written after MaxRetries go to the DLQ.
type UsageQueueWorker struct {
	queue       queue.Queue[models.UsageEvent]
	dlq         queue.DeadLetterQueue[models.UsageEvent]
	store       RecordStore
	config      *queue.Config
	logger      *utils.Logger
	stopChan    chan struct{}
	stoppedChan chan struct{}
}

// NewUsageQueueWorker creates a new usage queue worker
func NewUsageQueueWorker(q queue.Queue[models.UsageEvent], dlq queue.DeadLetterQueue[models.UsageEvent], store RecordStore, config *queue.Config) *UsageQueueWorker {
	if config == nil {
		config = queue.DefaultConfig("usage")
	}

	return &UsageQueueWorker{
		queue:       q,
		dlq:         dlq,
		store:       store,
		config:      config,
		logger:      utils.NewLogger("usage-worker"),
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// Start starts the worker goroutine
func (w *UsageQueueWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop gracefully stops the worker. Events still queued are flushed first.
func (w *UsageQueueWorker) Stop() error {
	close(w.stopChan)
	<-w.stoppedChan
	return nil
}

// Enqueue stamps and queues a usage event
func (w *UsageQueueWorker) Enqueue(ctx context.Context, event models.UsageEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	return w.queue.Enqueue(ctx, event)
}

// run is the main worker loop
func (w *UsageQueueWorker) run(ctx context.Context) {
	defer close(w.stoppedChan)

	for {
		select {
		case <-w.stopChan:
			w.flush(context.Background())
			w.logger.Info("Usage worker stopping")
			return
		case <-ctx.Done():
			w.logger.Info("Usage worker context cancelled")
			return
		default:
			w.processBatch(ctx, w.config.BatchTimeout)
		}
	}
}

// flush writes whatever is left in the queue without waiting for more
func (w *UsageQueueWorker) flush(ctx context.Context) {
	for {
		n, err := w.queue.Length(ctx)
		if err != nil || n == 0 {
			return
		}
		if w.processBatch(ctx, 10*time.Millisecond) == 0 {
			return
		}
	}
}

// processBatch handles one batch and returns how many events it dequeued
func (w *UsageQueueWorker) processBatch(ctx context.Context, timeout time.Duration) int {
	events, err := w.queue.DequeueWithTimeout(ctx, w.config.BatchSize, timeout)
	if err != nil {
		if errors.Is(err, queue.ErrQueueClosed) || ctx.Err() != nil {
			// Stop spinning until the owner stops the worker.
			w.wait(ctx, w.config.BatchTimeout)
			return 0
		}
		w.logger.Error("Failed to dequeue usage events", "error", err)
		w.wait(ctx, time.Second)
		return 0
	}

	if len(events) == 0 {
		return 0
	}

	w.logger.Debug("Processing usage batch", "count", len(events))

	if err := w.insertBatch(ctx, events); err != nil {
		w.logger.Error("Failed to insert batch, falling back to individual inserts", "error", err)
		for _, event := range events {
			if err := w.processItem(ctx, event); err != nil {
				w.logger.Error("Failed to process usage event", "error", err)
			}
		}
	}
	return len(events)
}

// insertBatch writes all events in a single transaction when the store
// supports it
func (w *UsageQueueWorker) insertBatch(ctx context.Context, events []models.UsageEvent) error {
	batcher, ok := w.store.(BatchUpserter)
	if !ok {
		return fmt.Errorf("store does not support batch writes")
	}

	entries := make([]Entry, 0, len(events))
	for _, event := range events {
		entry, err := usageEntry(event)
		if err != nil {
			return err
		}
		entries = append(entries, entry)
	}

	if err := batcher.UpsertBatch(ctx, UsageTable, entries); err != nil {
		return err
	}

	w.logger.Debug("Inserted batch successfully", "count", len(entries))
	return nil
}

// processItem writes a single event with retries and exponential backoff
func (w *UsageQueueWorker) processItem(ctx context.Context, event models.UsageEvent) error {
	var lastErr error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := w.config.RetryBackoff * time.Duration(1<<uint(attempt-1))
			w.logger.Debug("Retrying usage event", "attempt", attempt, "backoff", backoff)
			w.wait(ctx, backoff)
		}

		if err := PutJSON(ctx, w.store, UsageTable, event.ID.String(), event); err != nil {
			lastErr = err
			w.logger.Error("Failed to insert usage event", "attempt", attempt, "error", err)
			continue
		}

		return nil
	}

	if w.dlq != nil {
		if err := w.dlq.Add(ctx, event, lastErr); err != nil {
			w.logger.Error("Failed to add to dead letter queue", "error", err)
		} else {
			w.logger.Warn("Usage event moved to DLQ", "event_id", event.ID, "error", lastErr)
		}
	}

	return fmt.Errorf("%w: %v", queue.ErrMaxRetriesExceeded, lastErr)
}

func (w *UsageQueueWorker) wait(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	case <-w.stopChan:
	}
}

func usageEntry(event models.UsageEvent) (Entry, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to marshal usage event: %w", err)
	}
	return Entry{Key: event.ID.String(), Record: data}, nil
}

// GetQueueLength returns the current queue length
func (w *UsageQueueWorker) GetQueueLength(ctx context.Context) (int, error) {
	return w.queue.Length(ctx)
}

// GetDeadLetterItems returns items from the dead letter queue
func (w *UsageQueueWorker) GetDeadLetterItems(ctx context.Context, maxItems int) ([]queue.DeadLetterItem[models.UsageEvent], error) {
	if w.dlq == nil {
		return nil, fmt.Errorf("dead letter queue not configured")
	}
	return w.dlq.List(ctx, maxItems)
}

// RetryDeadLetterItem re-enqueues a failed event from the dead letter queue
func (w *UsageQueueWorker) RetryDeadLetterItem(ctx context.Context, id string) error {
	if w.dlq == nil {
		return fmt.Errorf("dead letter queue not configured")
	}

	items, err := w.dlq.List(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to list dead letter items: %w", err)
	}

	for _, dlItem := range items {
		if dlItem.ID != id {
			continue
		}
		if err := w.queue.Enqueue(ctx, dlItem.Item); err != nil {
			return fmt.Errorf("failed to re-enqueue item: %w", err)
		}
		if err := w.dlq.Remove(ctx, id); err != nil {
			return fmt.Errorf("failed to remove from DLQ: %w", err)
		}
		return nil
	}

	return queue.ErrItemNotFound
}

// ListUsageEvents returns the stored usage events of one user, oldest first
func ListUsageEvents(ctx context.Context, s RecordStore, userID string) ([]models.UsageEvent, error) {
	events, err := QueryJSON(ctx, s, UsageTable, func(e models.UsageEvent) bool {
		return e.UserID == userID
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
	return events, nil
}
