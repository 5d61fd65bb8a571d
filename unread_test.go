package roomcast

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/roomcast/model"
)

func newTestTracker(t *testing.T, cursorRepo *fakeCursorRepo, messageRepo *fakeMessageRepo, opts ...UnreadTrackerOption) *UnreadTracker {
	t.Helper()
	opts = append([]UnreadTrackerOption{
		WithUnreadRepositories(cursorRepo, messageRepo),
		WithUnreadLogger(&NoopLogger{}),
	}, opts...)
	tr, err := NewUnreadTracker(opts...)
	require.NoError(t, err)
	return tr
}

func TestNewUnreadTracker_RequiresDependencies(t *testing.T) {
	_, err := NewUnreadTracker(WithUnreadLogger(&NoopLogger{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ReadCursorRepository is required")
}

func TestNewUnreadTracker_GraceWindowMustExceedInterval(t *testing.T) {
	tests := []struct {
		name      string
		interval  time.Duration
		grace     time.Duration
		expectErr bool
	}{
		{
			name:      "Grace strictly greater than interval",
			interval:  15 * time.Second,
			grace:     45 * time.Second,
			expectErr: false,
		},
		{
			name:      "Grace equal to interval",
			interval:  15 * time.Second,
			grace:     15 * time.Second,
			expectErr: true,
		},
		{
			name:      "Grace below interval",
			interval:  30 * time.Second,
			grace:     15 * time.Second,
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewUnreadTracker(
				WithUnreadRepositories(newFakeCursorRepo(), newFakeMessageRepo()),
				WithUnreadLogger(&NoopLogger{}),
				WithPresenceTiming(tt.interval, tt.grace),
			)
			if tt.expectErr {
				require.Error(t, err)
				var rcErr *Error
				require.ErrorAs(t, err, &rcErr)
				assert.Equal(t, ErrCodeConfiguration, rcErr.Code)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestUnreadTracker_Heartbeat_CreatesCursorAtHead(t *testing.T) {
	messageRepo := newFakeMessageRepo(
		model.Message{ID: 1, RoomID: 7, Sequence: 10},
		model.Message{ID: 2, RoomID: 7, Sequence: 11},
	)
	cursorRepo := newFakeCursorRepo()
	tr := newTestTracker(t, cursorRepo, messageRepo)

	cursor, err := tr.Heartbeat(context.Background(), 42, 7)
	require.NoError(t, err)

	// First view creates the cursor and jumps it straight to the room head
	assert.NotZero(t, cursor.ID)
	assert.Equal(t, int64(11), cursor.LastReadSeq)
	assert.WithinDuration(t, time.Now(), cursor.LastHeartbeatAt, 1*time.Second)
}

func TestUnreadTracker_Heartbeat_EmptyRoom(t *testing.T) {
	tr := newTestTracker(t, newFakeCursorRepo(), newFakeMessageRepo())

	cursor, err := tr.Heartbeat(context.Background(), 42, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(0), cursor.LastReadSeq)
}

func TestUnreadTracker_UnreadCount_PresentSubscriberReadsZero(t *testing.T) {
	messageRepo := newFakeMessageRepo(model.Message{ID: 1, RoomID: 7, Sequence: 10})
	cursorRepo := newFakeCursorRepo()
	tr := newTestTracker(t, cursorRepo, messageRepo)

	_, err := tr.Heartbeat(context.Background(), 42, 7)
	require.NoError(t, err)

	// New messages land while the subscriber is still viewing
	_, err = messageRepo.Save(context.Background(), model.Message{RoomID: 7, Sequence: 11})
	require.NoError(t, err)

	count, err := tr.UnreadCount(context.Background(), 42, 7)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestUnreadTracker_UnreadCount_AbsentSubscriberAccumulates(t *testing.T) {
	messageRepo := newFakeMessageRepo(model.Message{ID: 1, RoomID: 7, Sequence: 10})
	cursorRepo := newFakeCursorRepo()
	tr := newTestTracker(t, cursorRepo, messageRepo)

	_, err := tr.Heartbeat(context.Background(), 42, 7)
	require.NoError(t, err)

	// Heartbeats stop: age the cursor past the grace window
	key := cursorKey(42, 7)
	cursor := cursorRepo.cursors[key]
	cursor.LastHeartbeatAt = time.Now().Add(-2 * time.Minute)
	cursorRepo.cursors[key] = cursor

	// Two messages arrive after the cursor froze at sequence 10
	_, err = messageRepo.Save(context.Background(), model.Message{RoomID: 7, Sequence: 11})
	require.NoError(t, err)
	_, err = messageRepo.Save(context.Background(), model.Message{RoomID: 7, Sequence: 12})
	require.NoError(t, err)

	count, err := tr.UnreadCount(context.Background(), 42, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestUnreadTracker_UnreadCount_NeverViewedCountsEverything(t *testing.T) {
	messageRepo := newFakeMessageRepo(
		model.Message{ID: 1, RoomID: 7, Sequence: 1},
		model.Message{ID: 2, RoomID: 7, Sequence: 2},
		model.Message{ID: 3, RoomID: 7, Sequence: 3},
		model.Message{ID: 4, RoomID: 8, Sequence: 1}, // other room, not counted
	)
	tr := newTestTracker(t, newFakeCursorRepo(), messageRepo)

	count, err := tr.UnreadCount(context.Background(), 42, 7)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestUnreadTracker_MarkRead(t *testing.T) {
	messageRepo := newFakeMessageRepo(
		model.Message{ID: 1, RoomID: 7, Sequence: 10},
		model.Message{ID: 2, RoomID: 7, Sequence: 11},
	)
	cursorRepo := newFakeCursorRepo()
	tr := newTestTracker(t, cursorRepo, messageRepo)

	cursor, err := tr.MarkRead(context.Background(), 42, 7, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), cursor.LastReadSeq)

	// MarkRead is a read acknowledgement, not a presence signal: the
	// subscriber still counts as absent and accrues unread above the mark
	key := cursorKey(42, 7)
	stored := cursorRepo.cursors[key]
	stored.LastHeartbeatAt = time.Now().Add(-2 * time.Minute)
	cursorRepo.cursors[key] = stored

	count, err := tr.UnreadCount(context.Background(), 42, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Monotonic: a stale ack never moves the cursor back
	cursor, err = tr.MarkRead(context.Background(), 42, 7, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(10), cursor.LastReadSeq)
}

func TestUnreadTracker_Validation(t *testing.T) {
	tr := newTestTracker(t, newFakeCursorRepo(), newFakeMessageRepo())

	_, err := tr.Heartbeat(context.Background(), 0, 7)
	require.Error(t, err)

	_, err = tr.UnreadCount(context.Background(), 42, 0)
	require.Error(t, err)

	_, err = tr.MarkRead(context.Background(), 0, 0, 1)
	require.Error(t, err)
}

func TestUnreadTracker_TimingAccessors(t *testing.T) {
	tr := newTestTracker(t, newFakeCursorRepo(), newFakeMessageRepo(),
		WithPresenceTiming(10*time.Second, 30*time.Second))

	assert.Equal(t, 10*time.Second, tr.HeartbeatInterval())
	assert.Equal(t, 30*time.Second, tr.GraceWindow())
}
