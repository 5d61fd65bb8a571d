package roomcast

import (
	"context"
	"time"

	"github.com/coregx/roomcast/model"
)

// MembershipFilter represents query filtering options for memberships.
// Used by MembershipRepository.List to filter results.
type MembershipFilter struct {
	SubscriberID int64 // Filter by subscriber ID (0 = no filter)
	RoomID       int64 // Filter by room ID (0 = no filter)
	IsActive     bool  // Filter by active status
}

// RoomRepository defines the persistence interface for rooms.
type RoomRepository interface {
	// Load retrieves a room by ID.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id int64) (model.Room, error)

	// Save creates a new room (if ID=0) or updates an existing one.
	// Returns the saved room with populated ID.
	Save(ctx context.Context, m model.Room) (model.Room, error)
}

// MembershipRepository defines the persistence interface for memberships.
// Memberships are the source of record for token scoping: a capability token
// only ever enumerates channels derived from rows returned here.
//
// Implementations must be safe for concurrent use.
type MembershipRepository interface {
	// Load retrieves a membership by ID.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id int64) (model.Membership, error)

	// Save creates a new membership (if ID=0) or updates an existing one.
	// Returns the saved membership with populated ID.
	Save(ctx context.Context, m model.Membership) (model.Membership, error)

	// FindActive retrieves the active membership of a subscriber in a room.
	// Returns ErrNoData if the subscriber is not an active member.
	FindActive(ctx context.Context, subscriberID, roomID int64) (model.Membership, error)

	// FindActiveBySubscriber retrieves all active memberships of a subscriber.
	// Returns ErrNoData if the subscriber has none.
	FindActiveBySubscriber(ctx context.Context, subscriberID int64) ([]model.Membership, error)

	// FindActiveByRoom retrieves all active memberships of a room.
	// Used for per-recipient fan-out of unbounded-room messages.
	// Returns ErrNoData if the room has no members.
	FindActiveByRoom(ctx context.Context, roomID int64) ([]model.Membership, error)

	// List retrieves memberships matching the filter criteria.
	// Returns empty slice if none found.
	List(ctx context.Context, filter MembershipFilter) ([]model.Membership, error)
}

// MessageRepository defines the persistence interface for committed messages.
// Messages are immutable once created; this subsystem only reads them (the
// persistence collaborator owns creation and sequence assignment).
type MessageRepository interface {
	// Load retrieves a message by ID.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id int64) (model.Message, error)

	// Save creates a new message (if ID=0) or updates an existing one.
	// Returns the saved message with populated ID.
	Save(ctx context.Context, m model.Message) (model.Message, error)

	// LatestSequence returns the highest message sequence in a room,
	// or 0 when the room has no messages.
	LatestSequence(ctx context.Context, roomID int64) (int64, error)

	// CountAfter returns the number of messages in a room with a sequence
	// greater than the given one. Must be an indexed range query, never a
	// full scan of room history.
	CountAfter(ctx context.Context, roomID, sequence int64) (int, error)
}

// ReadCursorRepository defines the persistence interface for read cursors.
type ReadCursorRepository interface {
	// Find retrieves the cursor for a (subscriber, room) pair.
	// Returns ErrNoData if the subscriber never viewed the room.
	Find(ctx context.Context, subscriberID, roomID int64) (model.ReadCursor, error)

	// Save creates a new cursor (if ID=0) or updates an existing one.
	// Returns the saved cursor with populated ID.
	Save(ctx context.Context, m model.ReadCursor) (model.ReadCursor, error)
}

// OutboxRepository defines the persistence interface for outbox items.
// Outbox items represent pending or retrying channel publishes.
//
// Implementations must be safe for concurrent use.
type OutboxRepository interface {
	// Load retrieves an outbox item by ID.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id int64) (model.Outbox, error)

	// Save creates a new outbox item (if ID=0) or updates an existing one.
	// Returns the saved item with populated ID.
	Save(ctx context.Context, m *model.Outbox) (*model.Outbox, error)

	// Delete permanently removes an outbox item from storage.
	Delete(ctx context.Context, m *model.Outbox) error

	// FindPendingItems finds items ready for a first publish attempt.
	// Items must have status=PENDING and next_retry_at <= now.
	// Results are ordered by sequence ASC to preserve per-room order.
	FindPendingItems(ctx context.Context, limit int) ([]model.Outbox, error)

	// FindRetryableItems finds items ready for retry.
	// Items must have status=FAILED and next_retry_at <= now.
	// Results are ordered by sequence ASC (oldest failures first).
	FindRetryableItems(ctx context.Context, limit int) ([]model.Outbox, error)

	// FindExpiredItems finds items that have expired without being published.
	// Items must have expires_at <= now and status != PUBLISHED.
	FindExpiredItems(ctx context.Context, limit int) ([]model.Outbox, error)
}

// DeliveryFailureRepository defines the persistence interface for the
// delivery-failure log (publishes abandoned after retry exhaustion).
type DeliveryFailureRepository interface {
	// Load retrieves a failure record by ID.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id int64) (model.DeliveryFailure, error)

	// Save creates a new failure record (if ID=0) or updates an existing one.
	// Returns the saved record with populated ID.
	Save(ctx context.Context, m model.DeliveryFailure) (model.DeliveryFailure, error)

	// FindUnresolved retrieves unresolved failures, oldest first.
	FindUnresolved(ctx context.Context, limit int) ([]model.DeliveryFailure, error)

	// FindByMessageID retrieves failures for a specific message.
	// Returns ErrNoData if none exist.
	FindByMessageID(ctx context.Context, messageID int64) ([]model.DeliveryFailure, error)

	// FindOlderThan retrieves failures abandoned before the given threshold.
	// Useful for identifying stuck items requiring attention.
	FindOlderThan(ctx context.Context, threshold time.Duration, limit int) ([]model.DeliveryFailure, error)

	// GetStats retrieves aggregate failure statistics.
	GetStats(ctx context.Context) (model.DeliveryFailureStats, error)

	// CountUnresolved returns the count of unresolved failures.
	// Useful for dashboard widgets and monitoring.
	CountUnresolved(ctx context.Context) (int, error)
}
