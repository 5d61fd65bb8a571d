package model

import (
	"database/sql"
	"time"
)

// OutboxStatus represents the lifecycle state of an outbox item.
type OutboxStatus string

const (
	// OutboxStatusPending indicates the event is awaiting its first publish attempt.
	OutboxStatusPending OutboxStatus = "pending"

	// OutboxStatusPublished indicates the event reached the hub.
	OutboxStatusPublished OutboxStatus = "published"

	// OutboxStatusFailed indicates the publish failed and the item is awaiting retry.
	OutboxStatusFailed OutboxStatus = "failed"
)

// Outbox represents one destination-channel publish of a committed message.
// A bounded-room message has exactly one outbox row; an unbounded-room
// message has one row per participant inbox channel.
//
// Outbox rows exist so that publish is at-least-once: the row is created
// after the message is durably committed, and the fan-out worker keeps
// retrying transient hub failures with exponential backoff until the event
// reaches the hub or the abandon threshold is hit.
//
// Items follow this lifecycle:
//  1. Created with status=PENDING
//  2. Publish attempted → either PUBLISHED (success) or FAILED (retry)
//  3. FAILED items retry with exponential backoff
//  4. After exceeding the abandon threshold → recorded as a DeliveryFailure
type Outbox struct {
	ID            int64          `json:"id"`
	MessageID     int64          `json:"messageID" db:"message_id"`
	RoomID        int64          `json:"roomID" db:"room_id"`
	Channel       string         `json:"channel"`
	Status        OutboxStatus   `json:"status" db:"status"`
	AttemptCount  int            `json:"attemptCount" db:"attempt_count"`
	LastAttemptAt sql.NullTime   `json:"lastAttemptAt" db:"last_attempt_at"`
	NextRetryAt   sql.NullTime   `json:"nextRetryAt" db:"next_retry_at"`
	LastError     sql.NullString `json:"lastError" db:"last_error"`
	Sequence      int64          `json:"sequence"`                  // Room-scoped message sequence, preserves per-room publish order
	ExpiresAt     time.Time      `json:"expiresAt" db:"expires_at"` // Retrying a stale chat message is pointless past this
	CreatedAt     time.Time      `json:"createdAt" db:"created_at"`
}

// TableName returns the database table name for Outbox.
func (t *Outbox) TableName() string {
	return tablePrefix + "outbox"
}

// NewOutbox creates a new outbox item for publishing a message to a channel.
// Initial state: PENDING, AttemptCount=0, NextRetryAt=now (ready immediately).
// Default expiry: 24 hours from creation.
func NewOutbox(messageID, roomID int64, channel string, sequence int64) Outbox {
	now := time.Now()
	return Outbox{
		ID:            0,
		MessageID:     messageID,
		RoomID:        roomID,
		Channel:       channel,
		Status:        OutboxStatusPending,
		AttemptCount:  0,
		LastAttemptAt: sql.NullTime{},
		NextRetryAt:   sql.NullTime{Time: now, Valid: true},
		LastError:     sql.NullString{},
		Sequence:      sequence,
		ExpiresAt:     now.Add(24 * time.Hour),
		CreatedAt:     now,
	}
}

// MarkPublished marks the item as successfully handed to the hub.
func (t *Outbox) MarkPublished() {
	now := time.Now()
	t.Status = OutboxStatusPublished
	t.AttemptCount++
	t.LastAttemptAt = sql.NullTime{Time: now, Valid: true}
}

// MarkFailed marks the item as failed and schedules the next retry attempt.
// Increments attempt count, records the error, and sets the next retry time.
func (t *Outbox) MarkFailed(err error, retryAfter time.Duration) {
	now := time.Now()
	t.Status = OutboxStatusFailed
	t.AttemptCount++
	t.LastAttemptAt = sql.NullTime{Time: now, Valid: true}
	t.NextRetryAt = sql.NullTime{Time: now.Add(retryAfter), Valid: true}
	if err != nil {
		t.LastError = sql.NullString{String: err.Error(), Valid: true}
	}
}

// IsExpired checks if the item has passed its expiration time.
// Expired items are cleaned up by the outbox worker.
func (t *Outbox) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// ShouldRetry checks if the item is ready for a retry attempt.
// Returns true if status=FAILED, NextRetryAt is set, and the time has passed.
func (t *Outbox) ShouldRetry() bool {
	if t.Status != OutboxStatusFailed {
		return false
	}
	if !t.NextRetryAt.Valid {
		return false
	}
	return time.Now().After(t.NextRetryAt.Time)
}

// CanAttemptPublish validates whether a publish can be attempted.
// Checks expiration, status, max attempts, and retry timing.
//
// Returns an error if publishing cannot be attempted:
//   - ErrOutboxItemExpired: item has expired
//   - ErrOutboxItemPublished: already delivered to the hub
//   - ErrMaxAttemptsExceeded: exceeded the retry limit
//   - ErrNotReadyForRetry: too soon for a retry
func (t *Outbox) CanAttemptPublish(maxAttempts int) error {
	if t.IsExpired() {
		return ErrOutboxItemExpired
	}
	if t.Status == OutboxStatusPublished {
		return ErrOutboxItemPublished
	}
	if t.AttemptCount >= maxAttempts {
		return ErrMaxAttemptsExceeded
	}
	if t.Status == OutboxStatusFailed && !t.ShouldRetry() {
		return ErrNotReadyForRetry
	}
	return nil
}

// ShouldAbandon checks if the item should be recorded as a delivery failure.
// Returns true when the attempt count reaches the abandon threshold and the
// item is still failing.
func (t *Outbox) ShouldAbandon(threshold int) bool {
	return t.AttemptCount >= threshold && t.Status == OutboxStatusFailed
}

// GetTimeUntilRetry returns the duration until the next retry attempt.
// Returns 0 if ready for retry now, or an error if no retry is scheduled.
func (t *Outbox) GetTimeUntilRetry() (time.Duration, error) {
	if !t.NextRetryAt.Valid {
		return 0, ErrNoRetryScheduled
	}
	duration := time.Until(t.NextRetryAt.Time)
	if duration < 0 {
		return 0, nil
	}
	return duration, nil
}

// GetAge returns how long the outbox item has existed since creation.
func (t *Outbox) GetAge() time.Duration {
	return time.Since(t.CreatedAt)
}

// Domain errors returned by Outbox business logic methods.
var (
	// ErrOutboxItemExpired indicates the item has passed its expiration time.
	ErrOutboxItemExpired = DomainError{Code: "OUTBOX_EXPIRED", Message: "Outbox item has expired"}

	// ErrOutboxItemPublished indicates the event already reached the hub.
	ErrOutboxItemPublished = DomainError{Code: "ALREADY_PUBLISHED", Message: "Outbox item already published"}

	// ErrMaxAttemptsExceeded indicates the item has reached the maximum publish attempts.
	ErrMaxAttemptsExceeded = DomainError{Code: "MAX_ATTEMPTS", Message: "Maximum publish attempts exceeded"}

	// ErrNotReadyForRetry indicates the retry delay hasn't elapsed yet.
	ErrNotReadyForRetry = DomainError{Code: "NOT_READY", Message: "Not ready for retry yet"}

	// ErrNoRetryScheduled indicates no retry time has been set for this item.
	ErrNoRetryScheduled = DomainError{Code: "NO_RETRY", Message: "No retry scheduled"}
)

// DomainError represents a domain-level business rule violation.
type DomainError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
}

func (e DomainError) Error() string {
	return e.Message
}
