package roomcast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coregx/roomcast/model"
	"github.com/coregx/roomcast/retry"
)

// OutboxWorker drains the publish outbox with automatic retry logic.
// It handles pending publishes, failed retries, and abandoned-delivery
// bookkeeping.
//
// The worker runs continuously in the background, processing batches at
// regular intervals. It implements exponential backoff and records publishes
// that exhaust their retries as delivery failures for manual inspection —
// delivery to the affected channel becomes delayed, never lost, because the
// message itself stays persisted.
//
// Key responsibilities:
//   - Publish pending outbox items (first attempt missed by the fan-out path)
//   - Retry failed publishes with exponential backoff
//   - Record exhausted retries as delivery failures
//   - Clean up expired outbox items
//   - Send notifications for publish failures and abandoned deliveries
//
// Thread safety: Safe for concurrent use. Each batch is processed sequentially,
// ordered by sequence ASC so a retried room keeps per-room ordering.
type OutboxWorker struct {
	or                  OutboxRepository
	mr                  MessageRepository
	fr                  DeliveryFailureRepository
	hub                 BroadcastHub
	retryStrategy       retry.Strategy
	logger              Logger
	notificationService NotificationService
	batchSize           int
}

// NewOutboxWorker creates a new outbox worker with the provided options.
//
// Required options:
//   - WithWorkerRepositories: outbox, message, and delivery failure repositories
//   - WithHub: broadcast hub transport
//   - WithLogger: logger instance
//
// Optional options:
//   - WithRetryStrategy: custom retry strategy (default: retry.DefaultStrategy())
//   - WithBatchSize: batch processing size (default: 100)
//
// Example:
//
//	worker, err := roomcast.NewOutboxWorker(
//	    roomcast.WithWorkerRepositories(outboxRepo, msgRepo, failureRepo),
//	    roomcast.WithHub(hub),
//	    roomcast.WithLogger(logger),
//	    roomcast.WithBatchSize(200), // optional
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
func NewOutboxWorker(opts ...Option) (*OutboxWorker, error) {
	// Default configuration
	w := &OutboxWorker{
		retryStrategy:       retry.DefaultStrategy(),
		batchSize:           100,
		notificationService: &NoOpNotificationService{}, // Default: no notifications
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply option", err)
		}
	}

	// Validate required dependencies
	if w.or == nil {
		return nil, NewError(ErrCodeConfiguration, "OutboxRepository is required (use WithWorkerRepositories)")
	}
	if w.mr == nil {
		return nil, NewError(ErrCodeConfiguration, "MessageRepository is required (use WithWorkerRepositories)")
	}
	if w.fr == nil {
		return nil, NewError(ErrCodeConfiguration, "DeliveryFailureRepository is required (use WithWorkerRepositories)")
	}
	if w.hub == nil {
		return nil, NewError(ErrCodeConfiguration, "BroadcastHub is required (use WithHub)")
	}
	if w.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithLogger)")
	}

	return w, nil
}

// ProcessPendingItems publishes pending outbox items awaiting a first attempt.
// It finds all items with status=PENDING and next_retry_at <= now, ordered by
// sequence ASC so per-room ordering is preserved.
//
// Returns the number of successfully published items and any critical error.
// Individual item failures are logged but don't stop batch processing.
func (w *OutboxWorker) ProcessPendingItems(ctx context.Context) (int, error) {
	items, err := w.or.FindPendingItems(ctx, w.batchSize)
	if err != nil {
		if errors.Is(err, ErrNoData) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to find pending items: %w", err)
	}

	processed := 0
	for i := range items {
		if err := w.processOutboxItem(ctx, &items[i]); err != nil {
			w.logger.Errorf("Failed to process outbox item %d: %v", items[i].ID, err)
			continue
		}
		processed++
	}

	return processed, nil
}

// ProcessRetryableItems retries failed publishes whose backoff delay elapsed.
// It finds all items with status=FAILED and next_retry_at <= now, ordered by
// sequence ASC.
//
// Returns the number of successfully published items and any critical error.
// Individual item failures are logged but don't stop batch processing.
func (w *OutboxWorker) ProcessRetryableItems(ctx context.Context) (int, error) {
	items, err := w.or.FindRetryableItems(ctx, w.batchSize)
	if err != nil {
		if errors.Is(err, ErrNoData) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to find retryable items: %w", err)
	}

	processed := 0
	for i := range items {
		if err := w.processOutboxItem(ctx, &items[i]); err != nil {
			w.logger.Errorf("Failed to process retryable item %d: %v", items[i].ID, err)
			continue
		}
		processed++
	}

	return processed, nil
}

// processOutboxItem publishes a single outbox item with retry logic.
func (w *OutboxWorker) processOutboxItem(ctx context.Context, item *model.Outbox) error {
	// Check if a publish can be attempted
	if err := item.CanAttemptPublish(w.retryStrategy.MaxAttempts); err != nil {
		w.logger.Debugf("Cannot attempt publish for outbox item %d: %v", item.ID, err)
		return err
	}

	// Load the committed message
	message, err := w.mr.Load(ctx, item.MessageID)
	if err != nil {
		return fmt.Errorf("failed to load message: %w", err)
	}

	// Rebuild the broadcast event. The event ID is derived from the message
	// and channel, so a replayed publish carries the same ID and consumers
	// deduplicate it.
	event := model.NewBroadcastEvent(item.Channel, message)

	if err := w.hub.Publish(ctx, item.Channel, event); err != nil {
		w.handlePublishFailure(ctx, item, err)
		return fmt.Errorf("publish failed: %w", err)
	}

	w.handlePublishSuccess(ctx, item)
	return nil
}

// handlePublishSuccess handles a successful publish.
func (w *OutboxWorker) handlePublishSuccess(ctx context.Context, item *model.Outbox) {
	item.MarkPublished()

	if _, err := w.or.Save(ctx, item); err != nil {
		w.logger.Errorf("Failed to mark outbox item %d as published: %v", item.ID, err)
		return
	}

	w.logger.Infof("Successfully published message %d to %s (outbox_id=%d, attempts=%d)",
		item.MessageID, item.Channel, item.ID, item.AttemptCount)
}

// handlePublishFailure handles a failed publish with retry logic.
func (w *OutboxWorker) handlePublishFailure(ctx context.Context, item *model.Outbox, publishErr error) {
	// Calculate next retry delay
	retryDelay := w.retryStrategy.CalculateRetryDelay(item.AttemptCount + 1)

	// Mark as failed with retry schedule
	item.MarkFailed(publishErr, retryDelay)

	if _, err := w.or.Save(ctx, item); err != nil {
		w.logger.Errorf("Failed to update outbox item %d after failure: %v", item.ID, err)
		return
	}

	// Notify about publish failure
	if err := w.notificationService.NotifyPublishFailure(ctx, item, publishErr); err != nil {
		w.logger.Warnf("Failed to send publish failure notification: %v", err)
	}

	// Check if retries are exhausted
	if item.ShouldAbandon(w.retryStrategy.AbandonThreshold) {
		w.logger.Warnf("Abandoning outbox item %d (attempts=%d, threshold=%d)",
			item.ID, item.AttemptCount, w.retryStrategy.AbandonThreshold)

		if err := w.abandonDelivery(ctx, item); err != nil {
			w.logger.Errorf("Failed to record delivery failure for outbox item %d: %v", item.ID, err)
		}
		return
	}

	w.logger.Warnf("Publish failed for message %d on %s (outbox_id=%d, attempts=%d, next_retry=%v): %v",
		item.MessageID, item.Channel, item.ID, item.AttemptCount, retryDelay, publishErr)
}

// CleanupExpiredItems removes expired outbox items.
// Items are considered expired when expires_at <= now and status != PUBLISHED.
//
// This prevents the outbox from growing indefinitely with stale entries.
// Returns the number of deleted items and any critical error.
func (w *OutboxWorker) CleanupExpiredItems(ctx context.Context) (int, error) {
	items, err := w.or.FindExpiredItems(ctx, w.batchSize)
	if err != nil {
		if errors.Is(err, ErrNoData) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to find expired items: %w", err)
	}

	deleted := 0
	for i := range items {
		if err := w.or.Delete(ctx, &items[i]); err != nil {
			w.logger.Errorf("Failed to delete expired outbox item %d: %v", items[i].ID, err)
			continue
		}
		deleted++
	}

	w.logger.Infof("Cleaned up %d expired outbox items", deleted)
	return deleted, nil
}

// Run starts the outbox worker event loop that drains the outbox continuously.
// It runs until the context is canceled, processing batches at the specified interval.
//
// Each batch processes:
//   - Pending items (first publish attempt)
//   - Retryable items (retry after backoff delay)
//   - Expired items (cleanup)
//
// This method blocks and should typically be run in a goroutine.
//
// Example:
//
//	ctx := context.Background()
//	go worker.Run(ctx, 30*time.Second) // Process every 30 seconds
func (w *OutboxWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.Info("Outbox worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Outbox worker stopped")
			return
		case <-ticker.C:
			w.processBatch(ctx)
		}
	}
}

// processBatch processes one batch of pending and retryable items.
func (w *OutboxWorker) processBatch(ctx context.Context) {
	// Process pending items (first attempt)
	pendingCount, err := w.ProcessPendingItems(ctx)
	if err != nil {
		w.logger.Errorf("Error processing pending items: %v", err)
	}

	// Process retryable items (retry attempts)
	retryCount, err := w.ProcessRetryableItems(ctx)
	if err != nil {
		w.logger.Errorf("Error processing retryable items: %v", err)
	}

	// Periodic cleanup of expired items
	expiredCount, err := w.CleanupExpiredItems(ctx)
	if err != nil {
		w.logger.Errorf("Error cleaning up expired items: %v", err)
	}

	if pendingCount > 0 || retryCount > 0 || expiredCount > 0 {
		w.logger.Infof("Batch processed: pending=%d, retries=%d, expired=%d",
			pendingCount, retryCount, expiredCount)
	}
}

// GetRetrySchedule returns a human-readable description of the retry schedule.
// Useful for displaying retry configuration to operators or in logs.
func (w *OutboxWorker) GetRetrySchedule() string {
	return w.retryStrategy.GetRetrySchedule()
}

// abandonDelivery records a publish that exhausted its retries as a delivery
// failure and removes the item from the outbox.
//
// This method is called automatically when an outbox item exceeds the abandon
// threshold.
func (w *OutboxWorker) abandonDelivery(ctx context.Context, item *model.Outbox) error {
	failureReason := fmt.Sprintf("Max retry attempts exceeded (%d >= %d)",
		item.AttemptCount, w.retryStrategy.AbandonThreshold)

	failure := model.NewDeliveryFailure(item, failureReason)

	saved, err := w.fr.Save(ctx, failure)
	if err != nil {
		return fmt.Errorf("failed to save delivery failure: %w", err)
	}

	// Delete from outbox (recorded as a failure)
	if err := w.or.Delete(ctx, item); err != nil {
		w.logger.Errorf("Failed to delete outbox item %d after recording failure: %v", item.ID, err)
		// Don't return error - the failure record is already created
	}

	w.logger.Infof("Recorded delivery failure for message %d (outbox_id=%d, failure_id=%d, attempts=%d, reason=%s)",
		item.MessageID, item.ID, saved.ID, item.AttemptCount, failureReason)

	// Notify about the abandoned delivery
	if err := w.notificationService.NotifyDeliveryAbandoned(ctx, saved); err != nil {
		w.logger.Warnf("Failed to send abandoned delivery notification: %v", err)
	}

	return nil
}

// GetDeliveryFailureStats retrieves delivery failure statistics for monitoring.
// Returns aggregated stats including total count, unresolved count, resolution
// rate, and average age.
//
// Useful for dashboards, monitoring systems, and operational visibility.
func (w *OutboxWorker) GetDeliveryFailureStats(ctx context.Context) (model.DeliveryFailureStats, error) {
	return w.fr.GetStats(ctx)
}
