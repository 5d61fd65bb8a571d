package roomcast

import (
	"context"
	"fmt"
	"time"

	"github.com/coregx/roomcast/model"
)

// In-memory fakes shared by the service tests. They implement the repository
// interfaces over plain slices/maps and expose error knobs so tests can
// exercise the failure paths.

type fakeRoomRepo struct {
	rooms   map[int64]model.Room
	nextID  int64
	loadErr error
}

func newFakeRoomRepo(rooms ...model.Room) *fakeRoomRepo {
	r := &fakeRoomRepo{rooms: make(map[int64]model.Room)}
	for _, room := range rooms {
		r.rooms[room.ID] = room
		if room.ID > r.nextID {
			r.nextID = room.ID
		}
	}
	return r
}

func (r *fakeRoomRepo) Load(_ context.Context, id int64) (model.Room, error) {
	if r.loadErr != nil {
		return model.Room{}, r.loadErr
	}
	room, ok := r.rooms[id]
	if !ok {
		return model.Room{}, ErrNoData
	}
	return room, nil
}

func (r *fakeRoomRepo) Save(_ context.Context, m model.Room) (model.Room, error) {
	if m.ID == 0 {
		r.nextID++
		m.ID = r.nextID
	}
	r.rooms[m.ID] = m
	return m, nil
}

type fakeMembershipRepo struct {
	memberships    []model.Membership
	nextID         int64
	findErr        error
	findBySubCalls int
	findBySubErr   error
	findByRoomErr  error
	saveErr        error
}

func (r *fakeMembershipRepo) add(m model.Membership) model.Membership {
	r.nextID++
	m.ID = r.nextID
	r.memberships = append(r.memberships, m)
	return m
}

func (r *fakeMembershipRepo) Load(_ context.Context, id int64) (model.Membership, error) {
	for _, m := range r.memberships {
		if m.ID == id {
			return m, nil
		}
	}
	return model.Membership{}, ErrNoData
}

func (r *fakeMembershipRepo) Save(_ context.Context, m model.Membership) (model.Membership, error) {
	if r.saveErr != nil {
		return model.Membership{}, r.saveErr
	}
	if m.ID == 0 {
		return r.add(m), nil
	}
	for i := range r.memberships {
		if r.memberships[i].ID == m.ID {
			r.memberships[i] = m
			return m, nil
		}
	}
	r.memberships = append(r.memberships, m)
	return m, nil
}

func (r *fakeMembershipRepo) FindActive(_ context.Context, subscriberID, roomID int64) (model.Membership, error) {
	if r.findErr != nil {
		return model.Membership{}, r.findErr
	}
	for _, m := range r.memberships {
		if m.SubscriberID == subscriberID && m.RoomID == roomID && m.IsActive {
			return m, nil
		}
	}
	return model.Membership{}, ErrNoData
}

func (r *fakeMembershipRepo) FindActiveBySubscriber(_ context.Context, subscriberID int64) ([]model.Membership, error) {
	r.findBySubCalls++
	if r.findBySubErr != nil {
		return nil, r.findBySubErr
	}
	var out []model.Membership
	for _, m := range r.memberships {
		if m.SubscriberID == subscriberID && m.IsActive {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

func (r *fakeMembershipRepo) FindActiveByRoom(_ context.Context, roomID int64) ([]model.Membership, error) {
	if r.findByRoomErr != nil {
		return nil, r.findByRoomErr
	}
	var out []model.Membership
	for _, m := range r.memberships {
		if m.RoomID == roomID && m.IsActive {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

func (r *fakeMembershipRepo) List(_ context.Context, filter MembershipFilter) ([]model.Membership, error) {
	out := []model.Membership{}
	for _, m := range r.memberships {
		if filter.SubscriberID != 0 && m.SubscriberID != filter.SubscriberID {
			continue
		}
		if filter.RoomID != 0 && m.RoomID != filter.RoomID {
			continue
		}
		if filter.IsActive && !m.IsActive {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

type fakeMessageRepo struct {
	messages map[int64]model.Message
	nextID   int64
	loadErr  error
}

func newFakeMessageRepo(messages ...model.Message) *fakeMessageRepo {
	r := &fakeMessageRepo{messages: make(map[int64]model.Message)}
	for _, m := range messages {
		r.messages[m.ID] = m
		if m.ID > r.nextID {
			r.nextID = m.ID
		}
	}
	return r
}

func (r *fakeMessageRepo) Load(_ context.Context, id int64) (model.Message, error) {
	if r.loadErr != nil {
		return model.Message{}, r.loadErr
	}
	m, ok := r.messages[id]
	if !ok {
		return model.Message{}, ErrNoData
	}
	return m, nil
}

func (r *fakeMessageRepo) Save(_ context.Context, m model.Message) (model.Message, error) {
	if m.ID == 0 {
		r.nextID++
		m.ID = r.nextID
	}
	r.messages[m.ID] = m
	return m, nil
}

func (r *fakeMessageRepo) LatestSequence(_ context.Context, roomID int64) (int64, error) {
	var latest int64
	for _, m := range r.messages {
		if m.RoomID == roomID && m.Sequence > latest {
			latest = m.Sequence
		}
	}
	return latest, nil
}

func (r *fakeMessageRepo) CountAfter(_ context.Context, roomID, sequence int64) (int, error) {
	count := 0
	for _, m := range r.messages {
		if m.RoomID == roomID && m.Sequence > sequence {
			count++
		}
	}
	return count, nil
}

type fakeCursorRepo struct {
	cursors map[string]model.ReadCursor
	nextID  int64
	findErr error
	saveErr error
}

func newFakeCursorRepo() *fakeCursorRepo {
	return &fakeCursorRepo{cursors: make(map[string]model.ReadCursor)}
}

func cursorKey(subscriberID, roomID int64) string {
	return fmt.Sprintf("%d:%d", subscriberID, roomID)
}

func (r *fakeCursorRepo) Find(_ context.Context, subscriberID, roomID int64) (model.ReadCursor, error) {
	if r.findErr != nil {
		return model.ReadCursor{}, r.findErr
	}
	c, ok := r.cursors[cursorKey(subscriberID, roomID)]
	if !ok {
		return model.ReadCursor{}, ErrNoData
	}
	return c, nil
}

func (r *fakeCursorRepo) Save(_ context.Context, m model.ReadCursor) (model.ReadCursor, error) {
	if r.saveErr != nil {
		return model.ReadCursor{}, r.saveErr
	}
	if m.ID == 0 {
		r.nextID++
		m.ID = r.nextID
	}
	r.cursors[cursorKey(m.SubscriberID, m.RoomID)] = m
	return m, nil
}

type fakeOutboxRepo struct {
	items   []model.Outbox
	nextID  int64
	saveErr error
}

func (r *fakeOutboxRepo) find(id int64) *model.Outbox {
	for i := range r.items {
		if r.items[i].ID == id {
			return &r.items[i]
		}
	}
	return nil
}

func (r *fakeOutboxRepo) Load(_ context.Context, id int64) (model.Outbox, error) {
	if item := r.find(id); item != nil {
		return *item, nil
	}
	return model.Outbox{}, ErrNoData
}

func (r *fakeOutboxRepo) Save(_ context.Context, m *model.Outbox) (*model.Outbox, error) {
	if r.saveErr != nil {
		return nil, r.saveErr
	}
	if m.ID == 0 {
		r.nextID++
		m.ID = r.nextID
		r.items = append(r.items, *m)
		return m, nil
	}
	if item := r.find(m.ID); item != nil {
		*item = *m
		return m, nil
	}
	r.items = append(r.items, *m)
	return m, nil
}

func (r *fakeOutboxRepo) Delete(_ context.Context, m *model.Outbox) error {
	for i := range r.items {
		if r.items[i].ID == m.ID {
			r.items = append(r.items[:i], r.items[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *fakeOutboxRepo) FindPendingItems(_ context.Context, limit int) ([]model.Outbox, error) {
	return r.filterByStatus(model.OutboxStatusPending, limit)
}

func (r *fakeOutboxRepo) FindRetryableItems(_ context.Context, limit int) ([]model.Outbox, error) {
	return r.filterByStatus(model.OutboxStatusFailed, limit)
}

func (r *fakeOutboxRepo) filterByStatus(status model.OutboxStatus, limit int) ([]model.Outbox, error) {
	now := time.Now()
	var out []model.Outbox
	for _, item := range r.items {
		if item.Status == status && item.NextRetryAt.Valid && !item.NextRetryAt.Time.After(now) {
			out = append(out, item)
		}
		if len(out) == limit {
			break
		}
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

func (r *fakeOutboxRepo) FindExpiredItems(_ context.Context, limit int) ([]model.Outbox, error) {
	now := time.Now()
	var out []model.Outbox
	for _, item := range r.items {
		if !item.ExpiresAt.After(now) && item.Status != model.OutboxStatusPublished {
			out = append(out, item)
		}
		if len(out) == limit {
			break
		}
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

type fakeFailureRepo struct {
	failures []model.DeliveryFailure
	nextID   int64
	saveErr  error
}

func (r *fakeFailureRepo) Load(_ context.Context, id int64) (model.DeliveryFailure, error) {
	for _, f := range r.failures {
		if f.ID == id {
			return f, nil
		}
	}
	return model.DeliveryFailure{}, ErrNoData
}

func (r *fakeFailureRepo) Save(_ context.Context, m model.DeliveryFailure) (model.DeliveryFailure, error) {
	if r.saveErr != nil {
		return model.DeliveryFailure{}, r.saveErr
	}
	if m.ID == 0 {
		r.nextID++
		m.ID = r.nextID
		r.failures = append(r.failures, m)
		return m, nil
	}
	for i := range r.failures {
		if r.failures[i].ID == m.ID {
			r.failures[i] = m
			return m, nil
		}
	}
	r.failures = append(r.failures, m)
	return m, nil
}

func (r *fakeFailureRepo) FindUnresolved(_ context.Context, limit int) ([]model.DeliveryFailure, error) {
	var out []model.DeliveryFailure
	for _, f := range r.failures {
		if !f.IsResolved {
			out = append(out, f)
		}
		if len(out) == limit {
			break
		}
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

func (r *fakeFailureRepo) FindByMessageID(_ context.Context, messageID int64) ([]model.DeliveryFailure, error) {
	var out []model.DeliveryFailure
	for _, f := range r.failures {
		if f.MessageID == messageID {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

func (r *fakeFailureRepo) FindOlderThan(_ context.Context, threshold time.Duration, limit int) ([]model.DeliveryFailure, error) {
	var out []model.DeliveryFailure
	for _, f := range r.failures {
		if !f.IsResolved && f.IsOld(threshold) {
			out = append(out, f)
		}
		if len(out) == limit {
			break
		}
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

func (r *fakeFailureRepo) GetStats(_ context.Context) (model.DeliveryFailureStats, error) {
	stats := model.DeliveryFailureStats{TotalItems: len(r.failures), LastUpdated: time.Now()}
	for _, f := range r.failures {
		if f.IsResolved {
			stats.ResolvedItems++
		} else {
			stats.UnresolvedItems++
		}
	}
	return stats, nil
}

func (r *fakeFailureRepo) CountUnresolved(_ context.Context) (int, error) {
	count := 0
	for _, f := range r.failures {
		if !f.IsResolved {
			count++
		}
	}
	return count, nil
}

type publishRecord struct {
	channel string
	event   model.BroadcastEvent
}

type fakeHub struct {
	published []publishRecord
	err       error
	failFor   map[string]bool
}

func (h *fakeHub) Publish(_ context.Context, channel string, event model.BroadcastEvent) error {
	if h.err != nil {
		return h.err
	}
	if h.failFor[channel] {
		return fmt.Errorf("hub unavailable for %s", channel)
	}
	h.published = append(h.published, publishRecord{channel: channel, event: event})
	return nil
}

func (h *fakeHub) channels() []string {
	out := make([]string, 0, len(h.published))
	for _, p := range h.published {
		out = append(out, p.channel)
	}
	return out
}

// failingCache errors on every operation, exercising the cache-degradation
// paths.
type failingCache struct {
	err error
}

func (c *failingCache) Get(_ context.Context, _ int64) (model.ChannelSet, bool, error) {
	return nil, false, c.err
}

func (c *failingCache) Set(_ context.Context, _ int64, _ model.ChannelSet, _ time.Duration) error {
	return c.err
}

func (c *failingCache) Invalidate(_ context.Context, _ int64) error {
	return c.err
}

type fakeResolver struct {
	channels model.ChannelSet
	err      error
	calls    int
}

func (r *fakeResolver) Resolve(_ context.Context, _ int64) (model.ChannelSet, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.channels, nil
}

type recordingInvalidator struct {
	invalidated []int64
	err         error
}

func (i *recordingInvalidator) Invalidate(_ context.Context, subscriberID int64) error {
	if i.err != nil {
		return i.err
	}
	i.invalidated = append(i.invalidated, subscriberID)
	return nil
}

type recordingNotifications struct {
	publishFailures int
	abandoned       []model.DeliveryFailure
	joined          []model.Membership
	left            []model.Membership
}

func (n *recordingNotifications) NotifyPublishFailure(_ context.Context, _ *model.Outbox, _ error) error {
	n.publishFailures++
	return nil
}

func (n *recordingNotifications) NotifyDeliveryAbandoned(_ context.Context, failure model.DeliveryFailure) error {
	n.abandoned = append(n.abandoned, failure)
	return nil
}

func (n *recordingNotifications) NotifyMembershipJoined(_ context.Context, membership model.Membership) error {
	n.joined = append(n.joined, membership)
	return nil
}

func (n *recordingNotifications) NotifyMembershipLeft(_ context.Context, membership model.Membership) error {
	n.left = append(n.left, membership)
	return nil
}
