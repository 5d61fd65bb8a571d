package roomcast

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/roomcast/model"
)

func newTestFanout(t *testing.T, roomRepo *fakeRoomRepo, membershipRepo *fakeMembershipRepo, outboxRepo *fakeOutboxRepo, hub *fakeHub) *FanoutPublisher {
	t.Helper()
	p, err := NewFanoutPublisher(
		WithFanoutRepositories(roomRepo, membershipRepo, outboxRepo),
		WithFanoutHub(hub),
		WithFanoutLogger(&NoopLogger{}),
	)
	require.NoError(t, err)
	return p
}

func TestNewFanoutPublisher_RequiresDependencies(t *testing.T) {
	_, err := NewFanoutPublisher(WithFanoutLogger(&NoopLogger{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RoomRepository is required")

	_, err = NewFanoutPublisher(
		WithFanoutRepositories(newFakeRoomRepo(), &fakeMembershipRepo{}, &fakeOutboxRepo{}),
		WithFanoutLogger(&NoopLogger{}),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BroadcastHub is required")
}

func TestFanoutPublisher_Publish_BoundedRoom(t *testing.T) {
	roomRepo := newFakeRoomRepo(model.Room{ID: 7, Visibility: model.RoomBounded, IsActive: true})
	outboxRepo := &fakeOutboxRepo{}
	hub := &fakeHub{}
	p := newTestFanout(t, roomRepo, &fakeMembershipRepo{}, outboxRepo, hub)

	msg := model.Message{ID: 456, RoomID: 7, AuthorID: 42, Sequence: 12, Body: "hello"}
	result, err := p.Publish(context.Background(), msg)
	require.NoError(t, err)

	// Bounded rooms publish once to the room channel; the hub fans out
	assert.Equal(t, []string{"room.7"}, result.Channels)
	assert.Equal(t, 1, result.Published)
	assert.Equal(t, 0, result.Deferred)
	assert.Equal(t, []string{"room.7"}, hub.channels())
	assert.Equal(t, "456:room.7", hub.published[0].event.ID)

	// The outbox row is marked published after the successful attempt
	require.Len(t, outboxRepo.items, 1)
	assert.Equal(t, model.OutboxStatusPublished, outboxRepo.items[0].Status)
}

func TestFanoutPublisher_Publish_UnboundedRoom(t *testing.T) {
	roomRepo := newFakeRoomRepo(model.Room{ID: 9, Visibility: model.RoomUnbounded, IsActive: true})
	membershipRepo := &fakeMembershipRepo{}
	membershipRepo.add(model.NewMembership(42, 9, model.RoleMember))
	membershipRepo.add(model.NewMembership(43, 9, model.RoleMember))
	hub := &fakeHub{}
	p := newTestFanout(t, roomRepo, membershipRepo, &fakeOutboxRepo{}, hub)

	msg := model.Message{ID: 456, RoomID: 9, AuthorID: 42, Sequence: 1, Body: "hello"}
	result, err := p.Publish(context.Background(), msg)
	require.NoError(t, err)

	// One inbox per active member, the author included so their client
	// receives the authoritative echo
	assert.ElementsMatch(t, []string{"inbox.42", "inbox.43"}, result.Channels)
	assert.Equal(t, 2, result.Published)
	assert.ElementsMatch(t, []string{"inbox.42", "inbox.43"}, hub.channels())
}

func TestFanoutPublisher_Publish_UnboundedRoomNoMembers(t *testing.T) {
	roomRepo := newFakeRoomRepo(model.Room{ID: 9, Visibility: model.RoomUnbounded, IsActive: true})
	hub := &fakeHub{}
	p := newTestFanout(t, roomRepo, &fakeMembershipRepo{}, &fakeOutboxRepo{}, hub)

	msg := model.Message{ID: 456, RoomID: 9, AuthorID: 42, Sequence: 1, Body: "hello"}
	result, err := p.Publish(context.Background(), msg)
	require.NoError(t, err)

	assert.Empty(t, result.Channels)
	assert.Empty(t, hub.published)
}

func TestFanoutPublisher_Publish_RejectsUncommittedMessage(t *testing.T) {
	p := newTestFanout(t, newFakeRoomRepo(), &fakeMembershipRepo{}, &fakeOutboxRepo{}, &fakeHub{})

	_, err := p.Publish(context.Background(), model.Message{ID: 0, RoomID: 7})
	require.Error(t, err)

	var rcErr *Error
	require.ErrorAs(t, err, &rcErr)
	assert.Equal(t, ErrCodeValidation, rcErr.Code)
}

func TestFanoutPublisher_Publish_RoomNotFound(t *testing.T) {
	p := newTestFanout(t, newFakeRoomRepo(), &fakeMembershipRepo{}, &fakeOutboxRepo{}, &fakeHub{})

	_, err := p.Publish(context.Background(), model.Message{ID: 456, RoomID: 404})
	require.Error(t, err)

	var rcErr *Error
	require.ErrorAs(t, err, &rcErr)
	assert.Equal(t, ErrCodeValidation, rcErr.Code)
}

func TestFanoutPublisher_Publish_HubFailureDefersToOutbox(t *testing.T) {
	roomRepo := newFakeRoomRepo(model.Room{ID: 9, Visibility: model.RoomUnbounded, IsActive: true})
	membershipRepo := &fakeMembershipRepo{}
	membershipRepo.add(model.NewMembership(42, 9, model.RoleMember))
	membershipRepo.add(model.NewMembership(43, 9, model.RoleMember))
	outboxRepo := &fakeOutboxRepo{}
	hub := &fakeHub{failFor: map[string]bool{"inbox.43": true}}
	p := newTestFanout(t, roomRepo, membershipRepo, outboxRepo, hub)

	msg := model.Message{ID: 456, RoomID: 9, AuthorID: 42, Sequence: 1, Body: "hello"}
	result, err := p.Publish(context.Background(), msg)
	require.NoError(t, err)

	// One channel succeeded, the other is handed to the outbox worker.
	// A single slow inbox never blocks the rest of the fan-out.
	assert.Equal(t, 1, result.Published)
	assert.Equal(t, 1, result.Deferred)
	assert.Equal(t, []string{"inbox.42"}, hub.channels())

	require.Len(t, outboxRepo.items, 2)
	for _, item := range outboxRepo.items {
		switch item.Channel {
		case "inbox.42":
			assert.Equal(t, model.OutboxStatusPublished, item.Status)
		case "inbox.43":
			assert.Equal(t, model.OutboxStatusFailed, item.Status)
			assert.Equal(t, 1, item.AttemptCount)
			assert.True(t, item.NextRetryAt.Valid)
		default:
			t.Fatalf("unexpected outbox channel %s", item.Channel)
		}
	}
}

func TestFanoutPublisher_Publish_OutboxSaveFailureReported(t *testing.T) {
	roomRepo := newFakeRoomRepo(model.Room{ID: 7, Visibility: model.RoomBounded, IsActive: true})
	outboxRepo := &fakeOutboxRepo{saveErr: errors.New("db down")}
	hub := &fakeHub{}
	p := newTestFanout(t, roomRepo, &fakeMembershipRepo{}, outboxRepo, hub)

	msg := model.Message{ID: 456, RoomID: 7, AuthorID: 42, Sequence: 12, Body: "hello"}
	result, err := p.Publish(context.Background(), msg)
	require.NoError(t, err)

	// Without a durable outbox row there is no retry path, so the publish
	// is not attempted and the destination is reported as failed
	assert.Equal(t, []string{"room.7"}, result.Channels)
	assert.Equal(t, 0, result.Published)
	assert.Equal(t, 0, result.Deferred)
	assert.Equal(t, 1, result.Failed)
	assert.Empty(t, hub.published)
}

func TestFanoutPublisher_Publish_OutboxRowPrecedesPublish(t *testing.T) {
	roomRepo := newFakeRoomRepo(model.Room{ID: 7, Visibility: model.RoomBounded, IsActive: true})
	outboxRepo := &fakeOutboxRepo{}
	hub := &fakeHub{failFor: map[string]bool{"room.7": true}}
	p := newTestFanout(t, roomRepo, &fakeMembershipRepo{}, outboxRepo, hub)

	msg := model.Message{ID: 456, RoomID: 7, AuthorID: 42, Sequence: 12, Body: "hello"}
	result, err := p.Publish(context.Background(), msg)
	require.NoError(t, err)

	// Even a completely failed publish leaves a durable outbox row behind,
	// so the delivery is delayed rather than lost
	assert.Equal(t, 0, result.Published)
	assert.Equal(t, 1, result.Deferred)
	require.Len(t, outboxRepo.items, 1)
	assert.Equal(t, model.OutboxStatusFailed, outboxRepo.items[0].Status)
	assert.Equal(t, int64(456), outboxRepo.items[0].MessageID)
}
