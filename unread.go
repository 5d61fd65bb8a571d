package roomcast

import (
	"context"
	"fmt"
	"time"

	"github.com/coregx/roomcast/model"
)

// Default presence timing. The grace window must be strictly longer than the
// heartbeat interval, otherwise a single delayed heartbeat flaps the
// subscriber to absent.
const (
	defaultHeartbeatInterval = 15 * time.Second
	defaultGraceWindow       = 45 * time.Second
)

// UnreadTracker maintains per-room read cursors and answers unread counts.
//
// Presence drives the counts: a subscriber actively viewing a room (heartbeat
// within the grace window) has zero unread there, because each heartbeat
// advances the cursor to the room's latest sequence. Once heartbeats stop,
// the cursor freezes and unread accumulates from that point.
//
// Unread counting is an indexed range count above the cursor's watermark,
// never a scan of the room's history.
//
// Thread safety: safe for concurrent use.
type UnreadTracker struct {
	cursorRepo        ReadCursorRepository
	messageRepo       MessageRepository
	heartbeatInterval time.Duration
	graceWindow       time.Duration
	logger            Logger
	now               func() time.Time
}

// UnreadTrackerOption configures an UnreadTracker.
type UnreadTrackerOption func(*UnreadTracker) error

// NewUnreadTracker creates a new UnreadTracker with the provided options.
//
// Required options:
//   - WithUnreadRepositories: read cursor and message repositories
//   - WithUnreadLogger: logger instance
//
// Optional options:
//   - WithPresenceTiming: heartbeat interval and grace window
//     (default: 15s interval, 45s grace). The grace window must be strictly
//     greater than the heartbeat interval.
func NewUnreadTracker(opts ...UnreadTrackerOption) (*UnreadTracker, error) {
	t := &UnreadTracker{
		heartbeatInterval: defaultHeartbeatInterval,
		graceWindow:       defaultGraceWindow,
		now:               time.Now,
	}

	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply unread tracker option", err)
		}
	}

	if t.cursorRepo == nil {
		return nil, NewError(ErrCodeConfiguration, "ReadCursorRepository is required (use WithUnreadRepositories)")
	}
	if t.messageRepo == nil {
		return nil, NewError(ErrCodeConfiguration, "MessageRepository is required (use WithUnreadRepositories)")
	}
	if t.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithUnreadLogger)")
	}
	if t.graceWindow <= t.heartbeatInterval {
		return nil, NewError(ErrCodeConfiguration,
			fmt.Sprintf("grace window (%v) must be strictly greater than heartbeat interval (%v)",
				t.graceWindow, t.heartbeatInterval))
	}

	return t, nil
}

// WithUnreadRepositories sets the required repository dependencies.
func WithUnreadRepositories(cursorRepo ReadCursorRepository, messageRepo MessageRepository) UnreadTrackerOption {
	return func(t *UnreadTracker) error {
		if cursorRepo == nil {
			return fmt.Errorf("cursorRepo cannot be nil")
		}
		if messageRepo == nil {
			return fmt.Errorf("messageRepo cannot be nil")
		}
		t.cursorRepo = cursorRepo
		t.messageRepo = messageRepo
		return nil
	}
}

// WithUnreadLogger sets the logger instance.
func WithUnreadLogger(logger Logger) UnreadTrackerOption {
	return func(t *UnreadTracker) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		t.logger = logger
		return nil
	}
}

// WithPresenceTiming sets the heartbeat interval and grace window.
// The grace window must be strictly greater than the heartbeat interval;
// the constructor enforces this after all options are applied.
func WithPresenceTiming(heartbeatInterval, graceWindow time.Duration) UnreadTrackerOption {
	return func(t *UnreadTracker) error {
		if heartbeatInterval <= 0 {
			return fmt.Errorf("heartbeat interval must be > 0, got %v", heartbeatInterval)
		}
		if graceWindow <= 0 {
			return fmt.Errorf("grace window must be > 0, got %v", graceWindow)
		}
		t.heartbeatInterval = heartbeatInterval
		t.graceWindow = graceWindow
		return nil
	}
}

// Heartbeat records that the subscriber is actively viewing the room right
// now. The cursor advances to the room's latest sequence — everything
// published so far counts as read — and the presence timestamp refreshes.
//
// Creates the cursor on the subscriber's first view of the room.
func (t *UnreadTracker) Heartbeat(ctx context.Context, subscriberID, roomID int64) (model.ReadCursor, error) {
	if subscriberID == 0 {
		return model.ReadCursor{}, NewError(ErrCodeValidation, "subscriber ID is required")
	}
	if roomID == 0 {
		return model.ReadCursor{}, NewError(ErrCodeValidation, "room ID is required")
	}

	cursor, err := t.cursorRepo.Find(ctx, subscriberID, roomID)
	if err != nil {
		if !IsNoData(err) {
			return model.ReadCursor{}, NewErrorWithCause(ErrCodeDatabase, "failed to load read cursor", err)
		}
		cursor = model.NewReadCursor(subscriberID, roomID)
	}

	latest, err := t.messageRepo.LatestSequence(ctx, roomID)
	if err != nil && !IsNoData(err) {
		return model.ReadCursor{}, NewErrorWithCause(ErrCodeDatabase, "failed to load latest sequence", err)
	}

	cursor.Advance(latest)
	cursor.Beat(t.now())

	saved, err := t.cursorRepo.Save(ctx, cursor)
	if err != nil {
		return model.ReadCursor{}, NewErrorWithCause(ErrCodeDatabase, "failed to save read cursor", err)
	}

	t.logger.Debugf("Heartbeat recorded: subscriber=%d, room=%d, read_seq=%d",
		subscriberID, roomID, saved.LastReadSeq)
	return saved, nil
}

// MarkRead advances the subscriber's cursor in a room to the given sequence
// without refreshing presence. Used when a client explicitly acknowledges
// reading up to a message while not actively viewing (e.g. a notification
// tap-through).
//
// The cursor is monotonic: a stale sequence never moves it backwards.
func (t *UnreadTracker) MarkRead(ctx context.Context, subscriberID, roomID, sequence int64) (model.ReadCursor, error) {
	if subscriberID == 0 {
		return model.ReadCursor{}, NewError(ErrCodeValidation, "subscriber ID is required")
	}
	if roomID == 0 {
		return model.ReadCursor{}, NewError(ErrCodeValidation, "room ID is required")
	}

	cursor, err := t.cursorRepo.Find(ctx, subscriberID, roomID)
	if err != nil {
		if !IsNoData(err) {
			return model.ReadCursor{}, NewErrorWithCause(ErrCodeDatabase, "failed to load read cursor", err)
		}
		cursor = model.NewReadCursor(subscriberID, roomID)
	}

	cursor.Advance(sequence)

	saved, err := t.cursorRepo.Save(ctx, cursor)
	if err != nil {
		return model.ReadCursor{}, NewErrorWithCause(ErrCodeDatabase, "failed to save read cursor", err)
	}
	return saved, nil
}

// UnreadCount returns the number of messages in the room the subscriber
// hasn't read.
//
// A subscriber still present in the room (heartbeat within the grace window)
// always reads zero — their cursor tracks the room head. A subscriber who
// never viewed the room gets the room's full message count.
func (t *UnreadTracker) UnreadCount(ctx context.Context, subscriberID, roomID int64) (int, error) {
	if subscriberID == 0 {
		return 0, NewError(ErrCodeValidation, "subscriber ID is required")
	}
	if roomID == 0 {
		return 0, NewError(ErrCodeValidation, "room ID is required")
	}

	cursor, err := t.cursorRepo.Find(ctx, subscriberID, roomID)
	if err != nil {
		if IsNoData(err) {
			// Never viewed: everything is unread
			return t.countAfter(ctx, roomID, 0)
		}
		return 0, NewErrorWithCause(ErrCodeDatabase, "failed to load read cursor", err)
	}

	if cursor.PresentWithin(t.graceWindow, t.now()) {
		return 0, nil
	}

	return t.countAfter(ctx, roomID, cursor.LastReadSeq)
}

func (t *UnreadTracker) countAfter(ctx context.Context, roomID, sequence int64) (int, error) {
	count, err := t.messageRepo.CountAfter(ctx, roomID, sequence)
	if err != nil {
		if IsNoData(err) {
			return 0, nil
		}
		return 0, NewErrorWithCause(ErrCodeDatabase, "failed to count unread messages", err)
	}
	return count, nil
}

// HeartbeatInterval returns the configured heartbeat interval. Clients use
// this to pace their heartbeats.
func (t *UnreadTracker) HeartbeatInterval() time.Duration {
	return t.heartbeatInterval
}

// GraceWindow returns the configured presence grace window.
func (t *UnreadTracker) GraceWindow() time.Duration {
	return t.graceWindow
}
