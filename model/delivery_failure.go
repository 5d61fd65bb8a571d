package model

import "time"

// DeliveryFailure records a channel publish that was abandoned after
// exhausting its retry attempts. The underlying message remains persisted
// regardless — only its broadcast to one channel is delayed.
//
// The failure log serves as:
//   - an audit trail with full diagnostic information
//   - a manual intervention queue for operators (replay, then resolve)
//   - a source for monitoring delivery health
type DeliveryFailure struct {
	ID        int64  `json:"id"`
	OutboxID  int64  `json:"outboxID" db:"outbox_id"`   // Reference to the original outbox item
	MessageID int64  `json:"messageID" db:"message_id"` // Message that failed to broadcast
	RoomID    int64  `json:"roomID" db:"room_id"`       // Room the message belongs to
	Channel   string `json:"channel"`                   // Destination channel that never got the event

	// Failure information
	AttemptCount  int    `json:"attemptCount" db:"attempt_count"`   // Total attempts before abandoning
	LastError     string `json:"lastError" db:"last_error"`         // Last publish error
	FailureReason string `json:"failureReason" db:"failure_reason"` // Why the item was abandoned

	// Timing information
	FirstAttemptAt time.Time `json:"firstAttemptAt" db:"first_attempt_at"` // When the first publish was attempted
	LastAttemptAt  time.Time `json:"lastAttemptAt" db:"last_attempt_at"`   // When the last attempt failed
	AbandonedAt    time.Time `json:"abandonedAt" db:"abandoned_at"`        // When retries were given up

	// Lifecycle
	IsResolved     bool       `json:"isResolved" db:"is_resolved"`         // Manual resolution flag
	ResolvedAt     *time.Time `json:"resolvedAt" db:"resolved_at"`         // When manually resolved
	ResolvedBy     string     `json:"resolvedBy" db:"resolved_by"`         // Who resolved (user/system)
	ResolutionNote string     `json:"resolutionNote" db:"resolution_note"` // Resolution explanation

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// TableName returns the database table name for DeliveryFailure.
func (d DeliveryFailure) TableName() string {
	return tablePrefix + "delivery_failure"
}

// NewDeliveryFailure creates a failure record from an abandoned outbox item.
// Called by the outbox worker when an item exceeds the abandon threshold.
func NewDeliveryFailure(item *Outbox, failureReason string) DeliveryFailure {
	now := time.Now()
	lastAttempt := now
	if item.LastAttemptAt.Valid {
		lastAttempt = item.LastAttemptAt.Time
	}
	return DeliveryFailure{
		ID:             0,
		OutboxID:       item.ID,
		MessageID:      item.MessageID,
		RoomID:         item.RoomID,
		Channel:        item.Channel,
		AttemptCount:   item.AttemptCount,
		LastError:      item.LastError.String,
		FailureReason:  failureReason,
		FirstAttemptAt: item.CreatedAt,
		LastAttemptAt:  lastAttempt,
		AbandonedAt:    now,
		IsResolved:     false,
		CreatedAt:      now,
	}
}

// Resolve marks the failure as manually resolved by an operator, typically
// after replaying the message or determining the loss is acceptable.
func (d *DeliveryFailure) Resolve(resolvedBy, note string) {
	now := time.Now()
	d.IsResolved = true
	d.ResolvedAt = &now
	d.ResolvedBy = resolvedBy
	d.ResolutionNote = note
}

// GetAge returns how long ago the delivery was abandoned.
func (d *DeliveryFailure) GetAge() time.Duration {
	return time.Since(d.AbandonedAt)
}

// IsOld checks if the failure has been unresolved longer than the threshold.
// Used to identify stuck items that need urgent attention.
func (d *DeliveryFailure) IsOld(threshold time.Duration) bool {
	return d.GetAge() > threshold
}

// DeliveryFailureStats represents aggregate statistics for the failure log.
// Used for monitoring dashboards and operational visibility.
type DeliveryFailureStats struct {
	TotalItems      int       `json:"totalItems"`
	UnresolvedItems int       `json:"unresolvedItems"`
	ResolvedItems   int       `json:"resolvedItems"`
	OldestItemAge   int64     `json:"oldestItemAge"` // Seconds
	LastUpdated     time.Time `json:"lastUpdated"`
}
