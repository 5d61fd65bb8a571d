package roomcast

import (
	"context"
	"fmt"

	"github.com/coregx/roomcast/model"
)

// CacheInvalidator drops a subscriber's cached channel set.
// *TopicCache is the production implementation.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, subscriberID int64) error
}

// MembershipManager mutates room memberships and keeps the channel cache
// coherent: every join and leave invalidates the affected subscriber's cache
// entry before returning, so the next token issuance reflects the change.
//
// The authorization consequence of a leave is deferred, not immediate — the
// subscriber's current capability token stays valid until its expiry, which
// callers accept as the staleness bound.
//
// Thread safety: safe for concurrent use.
type MembershipManager struct {
	membershipRepo MembershipRepository
	roomRepo       RoomRepository
	invalidator    CacheInvalidator
	logger         Logger
	notifications  NotificationService
}

// MembershipManagerOption configures a MembershipManager.
type MembershipManagerOption func(*MembershipManager) error

// NewMembershipManager creates a new MembershipManager with the provided options.
//
// Required options:
//   - WithMembershipRepositories: membership and room repositories
//   - WithMembershipInvalidator: channel cache invalidator
//   - WithMembershipLogger: logger instance
//
// Optional options:
//   - WithMembershipNotifications: notification service (default: no-op)
func NewMembershipManager(opts ...MembershipManagerOption) (*MembershipManager, error) {
	m := &MembershipManager{
		notifications: &NoOpNotificationService{},
	}

	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply membership option", err)
		}
	}

	if m.membershipRepo == nil {
		return nil, NewError(ErrCodeConfiguration, "MembershipRepository is required (use WithMembershipRepositories)")
	}
	if m.roomRepo == nil {
		return nil, NewError(ErrCodeConfiguration, "RoomRepository is required (use WithMembershipRepositories)")
	}
	if m.invalidator == nil {
		return nil, NewError(ErrCodeConfiguration, "CacheInvalidator is required (use WithMembershipInvalidator)")
	}
	if m.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithMembershipLogger)")
	}

	return m, nil
}

// WithMembershipRepositories sets the required repository dependencies.
func WithMembershipRepositories(membershipRepo MembershipRepository, roomRepo RoomRepository) MembershipManagerOption {
	return func(m *MembershipManager) error {
		if membershipRepo == nil {
			return fmt.Errorf("membershipRepo cannot be nil")
		}
		if roomRepo == nil {
			return fmt.Errorf("roomRepo cannot be nil")
		}
		m.membershipRepo = membershipRepo
		m.roomRepo = roomRepo
		return nil
	}
}

// WithMembershipInvalidator sets the channel cache invalidator.
func WithMembershipInvalidator(invalidator CacheInvalidator) MembershipManagerOption {
	return func(m *MembershipManager) error {
		if invalidator == nil {
			return fmt.Errorf("invalidator cannot be nil")
		}
		m.invalidator = invalidator
		return nil
	}
}

// WithMembershipLogger sets the logger instance.
func WithMembershipLogger(logger Logger) MembershipManagerOption {
	return func(m *MembershipManager) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		m.logger = logger
		return nil
	}
}

// WithMembershipNotifications sets an optional notification service.
func WithMembershipNotifications(service NotificationService) MembershipManagerOption {
	return func(m *MembershipManager) error {
		if service == nil {
			return fmt.Errorf("notification service cannot be nil")
		}
		m.notifications = service
		return nil
	}
}

// JoinRequest describes a subscriber joining a room.
type JoinRequest struct {
	SubscriberID int64
	RoomID       int64
	Role         model.MembershipRole
}

// Join creates an active membership for the subscriber in the room and
// invalidates their channel cache entry.
//
// Joining a room the subscriber is already an active member of is a no-op
// returning the existing membership.
func (m *MembershipManager) Join(ctx context.Context, req JoinRequest) (model.Membership, error) {
	if req.SubscriberID == 0 {
		return model.Membership{}, NewError(ErrCodeValidation, "subscriber ID is required")
	}
	if req.RoomID == 0 {
		return model.Membership{}, NewError(ErrCodeValidation, "room ID is required")
	}
	if req.Role == "" {
		req.Role = model.RoleMember
	}

	room, err := m.roomRepo.Load(ctx, req.RoomID)
	if err != nil {
		if IsNoData(err) {
			return model.Membership{}, NewErrorWithCause(ErrCodeValidation,
				fmt.Sprintf("room not found: %d", req.RoomID), err)
		}
		return model.Membership{}, NewErrorWithCause(ErrCodeDatabase, "failed to load room", err)
	}
	if !room.IsActive {
		return model.Membership{}, NewError(ErrCodeValidation, fmt.Sprintf("room %d is inactive", req.RoomID))
	}

	existing, err := m.membershipRepo.FindActive(ctx, req.SubscriberID, req.RoomID)
	if err == nil {
		m.logger.Warnf("Subscriber %d already an active member of room %d, returning existing membership %d",
			req.SubscriberID, req.RoomID, existing.ID)
		return existing, nil
	}
	if !IsNoData(err) {
		return model.Membership{}, NewErrorWithCause(ErrCodeDatabase, "failed to check existing membership", err)
	}

	membership := model.NewMembership(req.SubscriberID, req.RoomID, req.Role)
	saved, err := m.membershipRepo.Save(ctx, membership)
	if err != nil {
		return model.Membership{}, NewErrorWithCause(ErrCodeDatabase, "failed to save membership", err)
	}

	m.invalidateCache(ctx, req.SubscriberID)

	m.logger.Infof("Membership created: id=%d, subscriber=%d, room=%d, role=%s",
		saved.ID, saved.SubscriberID, saved.RoomID, saved.Role)

	if err := m.notifications.NotifyMembershipJoined(ctx, saved); err != nil {
		m.logger.Warnf("Failed to send membership joined notification: %v", err)
	}

	return saved, nil
}

// Leave revokes the subscriber's active membership in the room and
// invalidates their channel cache entry. The membership row is soft-deleted,
// preserving the audit trail.
//
// Returns ErrNoData if the subscriber is not an active member.
func (m *MembershipManager) Leave(ctx context.Context, subscriberID, roomID int64) (model.Membership, error) {
	if subscriberID == 0 {
		return model.Membership{}, NewError(ErrCodeValidation, "subscriber ID is required")
	}
	if roomID == 0 {
		return model.Membership{}, NewError(ErrCodeValidation, "room ID is required")
	}

	membership, err := m.membershipRepo.FindActive(ctx, subscriberID, roomID)
	if err != nil {
		if IsNoData(err) {
			return model.Membership{}, err
		}
		return model.Membership{}, NewErrorWithCause(ErrCodeDatabase, "failed to load membership", err)
	}

	membership.Revoke()
	saved, err := m.membershipRepo.Save(ctx, membership)
	if err != nil {
		return model.Membership{}, NewErrorWithCause(ErrCodeDatabase, "failed to revoke membership", err)
	}

	m.invalidateCache(ctx, subscriberID)

	m.logger.Infof("Membership revoked: id=%d, subscriber=%d, room=%d", saved.ID, subscriberID, roomID)

	if err := m.notifications.NotifyMembershipLeft(ctx, saved); err != nil {
		m.logger.Warnf("Failed to send membership left notification: %v", err)
	}

	return saved, nil
}

// ListMemberships returns the subscriber's active memberships.
// Returns an empty slice when the subscriber has none.
func (m *MembershipManager) ListMemberships(ctx context.Context, subscriberID int64) ([]model.Membership, error) {
	if subscriberID == 0 {
		return nil, NewError(ErrCodeValidation, "subscriber ID is required")
	}

	memberships, err := m.membershipRepo.FindActiveBySubscriber(ctx, subscriberID)
	if err != nil {
		if IsNoData(err) {
			return []model.Membership{}, nil
		}
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to list memberships", err)
	}
	return memberships, nil
}

// invalidateCache drops the subscriber's cached channel set. A failed
// invalidation is logged but doesn't fail the mutation — the cache TTL bounds
// the staleness either way.
func (m *MembershipManager) invalidateCache(ctx context.Context, subscriberID int64) {
	if err := m.invalidator.Invalidate(ctx, subscriberID); err != nil {
		m.logger.Warnf("Failed to invalidate channel cache for subscriber %d: %v", subscriberID, err)
	}
}
