package roomcast

import (
	"fmt"

	"github.com/coregx/roomcast/retry"
)

// Option is a function that configures an OutboxWorker.
// Used with the Options Pattern for flexible service construction.
//
// Example:
//
//	worker, err := roomcast.NewOutboxWorker(
//	    roomcast.WithWorkerRepositories(outboxRepo, msgRepo, failureRepo),
//	    roomcast.WithHub(hub),
//	    roomcast.WithLogger(logger),
//	    roomcast.WithBatchSize(200), // optional
//	)
type Option func(*OutboxWorker) error

// WithWorkerRepositories sets the required repository dependencies for the
// outbox worker. All three repositories are required and must not be nil.
//
// This is a required option for NewOutboxWorker.
//
// Parameters:
//   - outboxRepo: Outbox item persistence
//   - messageRepo: Message persistence
//   - failureRepo: Delivery failure persistence
func WithWorkerRepositories(
	outboxRepo OutboxRepository,
	messageRepo MessageRepository,
	failureRepo DeliveryFailureRepository,
) Option {
	return func(w *OutboxWorker) error {
		if outboxRepo == nil {
			return fmt.Errorf("outboxRepo cannot be nil")
		}
		if messageRepo == nil {
			return fmt.Errorf("messageRepo cannot be nil")
		}
		if failureRepo == nil {
			return fmt.Errorf("failureRepo cannot be nil")
		}

		w.or = outboxRepo
		w.mr = messageRepo
		w.fr = failureRepo
		return nil
	}
}

// WithHub sets the broadcast hub transport for the outbox worker.
// The hub is required and must not be nil.
//
// This is a required option for NewOutboxWorker.
func WithHub(hub BroadcastHub) Option {
	return func(w *OutboxWorker) error {
		if hub == nil {
			return fmt.Errorf("hub cannot be nil")
		}
		w.hub = hub
		return nil
	}
}

// WithLogger sets the logger instance for the outbox worker.
// Logger is required and must not be nil.
//
// This is a required option for NewOutboxWorker.
//
// Use NoopLogger for silent operation or implement Logger interface
// to integrate with your logging system (zap, logrus, etc.).
func WithLogger(logger Logger) Option {
	return func(w *OutboxWorker) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		w.logger = logger
		return nil
	}
}

// WithRetryStrategy sets a custom retry strategy for the outbox worker.
// This is an optional configuration - if not provided, retry.DefaultStrategy() will be used.
//
// The default strategy implements exponential backoff: 30s → 1m → 2m → 4m → 8m → 16m → 30m (max).
//
// Use this option to customize:
//   - Retry delays (backoff schedule)
//   - Maximum publish attempts
//   - Abandon threshold
func WithRetryStrategy(strategy retry.Strategy) Option {
	return func(w *OutboxWorker) error {
		w.retryStrategy = strategy
		return nil
	}
}

// WithBatchSize sets the number of outbox items to process per batch.
// This is an optional configuration - default is 100 items per batch.
//
// Must be > 0. Larger batches improve throughput but use more memory.
// Smaller batches reduce latency and memory usage.
func WithBatchSize(size int) Option {
	return func(w *OutboxWorker) error {
		if size <= 0 {
			return fmt.Errorf("batch size must be > 0, got %d", size)
		}
		w.batchSize = size
		return nil
	}
}

// WithNotifications sets an optional notification service for the outbox worker.
// This is an optional configuration - if not provided, NoOpNotificationService will be used (no notifications).
//
// The notification service receives callbacks for:
//   - Publish failures (every failed attempt)
//   - Abandoned deliveries (when a publish exhausts its retries)
//
// Use this to integrate with alerting systems (email, Slack, PagerDuty, etc.).
func WithNotifications(service NotificationService) Option {
	return func(w *OutboxWorker) error {
		if service == nil {
			return fmt.Errorf("notification service cannot be nil")
		}
		w.notificationService = service
		return nil
	}
}
