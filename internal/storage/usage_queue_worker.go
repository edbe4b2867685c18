package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/models"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/queue"
	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/utils"
)

// UsageStore is the subset of UsageRepository the worker needs. Narrowed
// to an interface so worker behavior is testable without postgres.
type UsageStore interface {
	Create(ctx context.Context, record *models.UsageRecord) error
	CreateBatch(ctx context.Context, records []*models.UsageRecord) error
}

// UsageQueueWorker drains the usage queue into the usage_records table
// in batches. Failed batches fall back to per-record inserts with
// exponential backoff; records that still fail land in the DLQ.
type UsageQueueWorker struct {
	queue       queue.Queue
	dlq         queue.DeadLetterQueue
	store       UsageStore
	config      *queue.Config
	logger      *utils.Logger
	stopChan    chan struct{}
	stoppedChan chan struct{}

	sleep func(time.Duration)
}

func NewUsageQueueWorker(q queue.Queue, dlq queue.DeadLetterQueue, store UsageStore, config *queue.Config) *UsageQueueWorker {
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
		sleep:       time.Sleep,
	}
}

// Start launches the worker goroutine.
func (w *UsageQueueWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop blocks until the in-flight batch finishes.
func (w *UsageQueueWorker) Stop() error {
	close(w.stopChan)
	<-w.stoppedChan
	return nil
}

// Enqueue hands a record to the queue; called from the orchestrator.
func (w *UsageQueueWorker) Enqueue(ctx context.Context, record *models.UsageRecord) error {
	return w.queue.Enqueue(ctx, record)
}

func (w *UsageQueueWorker) run(ctx context.Context) {
	defer close(w.stoppedChan)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("usage worker stopping")
			return
		case <-ctx.Done():
			w.logger.Info("usage worker context cancelled")
			return
		default:
			w.processBatch(ctx)
		}
	}
}

func (w *UsageQueueWorker) processBatch(ctx context.Context) {
	items, err := w.queue.DequeueWithTimeout(ctx, w.config.BatchSize, w.config.BatchTimeout)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("dequeue usage records failed", "error", err)
			w.sleep(time.Second)
		}
		return
	}
	if len(items) == 0 {
		return
	}

	records := make([]*models.UsageRecord, 0, len(items))
	for _, item := range items {
		var record models.UsageRecord
		if err := decodeQueueItem(item, &record); err != nil {
			w.logger.Error("undecodable usage record dropped", "error", err)
			continue
		}
		records = append(records, &record)
	}
	if len(records) == 0 {
		return
	}

	if err := w.store.CreateBatch(ctx, records); err == nil {
		w.logger.Debug("usage batch inserted", "count", len(records))
		return
	} else {
		w.logger.Error("usage batch insert failed, retrying per record", "count", len(records), "error", err)
	}

	for _, record := range records {
		if err := w.processRecord(ctx, record); err != nil {
			w.logger.Error("usage record abandoned", "request_id", record.RequestID, "error", err)
		}
	}
}

func (w *UsageQueueWorker) processRecord(ctx context.Context, record *models.UsageRecord) error {
	var lastErr error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			w.sleep(w.config.RetryBackoff << (attempt - 1))
		}

		if err := w.store.Create(ctx, record); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	if w.dlq != nil {
		if err := w.dlq.Add(ctx, record, lastErr); err != nil {
			w.logger.Error("dead letter add failed", "error", err)
		} else {
			w.logger.Warn("usage record moved to DLQ", "request_id", record.RequestID, "error", lastErr)
		}
	}
	return fmt.Errorf("%w: %v", queue.ErrMaxRetriesExceeded, lastErr)
}

// QueueLength reports the backlog, exposed on the health endpoint.
func (w *UsageQueueWorker) QueueLength(ctx context.Context) (int, error) {
	return w.queue.Length(ctx)
}

// RetryDeadLetterItem re-enqueues one parked record.
func (w *UsageQueueWorker) RetryDeadLetterItem(ctx context.Context, id string) error {
	if w.dlq == nil {
		return fmt.Errorf("dead letter queue not configured")
	}

	items, err := w.dlq.List(ctx, 0)
	if err != nil {
		return fmt.Errorf("list dead letter items: %w", err)
	}

	for _, dlItem := range items {
		if dlItem.ID != id {
			continue
		}
		if err := w.queue.Enqueue(ctx, dlItem.Item); err != nil {
			return fmt.Errorf("re-enqueue dead letter item: %w", err)
		}
		if err := w.dlq.Remove(ctx, id); err != nil {
			return fmt.Errorf("remove dead letter item: %w", err)
		}
		return nil
	}
	return queue.ErrItemNotFound
}

// decodeQueueItem copes with both backends: the memory queue hands the
// typed value straight back, the Redis queue hands raw JSON.
func decodeQueueItem(item interface{}, record *models.UsageRecord) error {
	switch v := item.(type) {
	case *models.UsageRecord:
		*record = *v
		return nil
	case models.UsageRecord:
		*record = v
		return nil
	case json.RawMessage:
		return json.Unmarshal(v, record)
	case []byte:
		return json.Unmarshal(v, record)
	default:
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshal queue item: %w", err)
		}
		return json.Unmarshal(data, record)
	}
}
