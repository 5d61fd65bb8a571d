package roomcast

import (
	"context"

	"github.com/coregx/roomcast/model"
)

// NotificationService defines an optional interface for surfacing
// distribution events to operators (failures, abandoned publishes, etc.).
//
// Implementations might send emails, Slack messages, or log to monitoring
// systems.
type NotificationService interface {
	// NotifyPublishFailure is called on every failed publish attempt.
	// This is informational and happens before the item is abandoned.
	NotifyPublishFailure(ctx context.Context, item *model.Outbox, err error) error

	// NotifyDeliveryAbandoned is called when a channel publish exhausts its
	// retries and is recorded as a delivery failure. Delivery to that channel
	// is now delayed until an operator replays it; the message itself remains
	// persisted.
	NotifyDeliveryAbandoned(ctx context.Context, failure model.DeliveryFailure) error

	// NotifyMembershipJoined is called when a subscriber joins a room.
	NotifyMembershipJoined(ctx context.Context, membership model.Membership) error

	// NotifyMembershipLeft is called when a membership is revoked.
	NotifyMembershipLeft(ctx context.Context, membership model.Membership) error
}

// NoOpNotificationService is a no-op implementation of NotificationService.
// Use this when notifications are not needed.
type NoOpNotificationService struct{}

// NotifyPublishFailure does nothing.
func (n *NoOpNotificationService) NotifyPublishFailure(_ context.Context, _ *model.Outbox, _ error) error {
	return nil
}

// NotifyDeliveryAbandoned does nothing.
func (n *NoOpNotificationService) NotifyDeliveryAbandoned(_ context.Context, _ model.DeliveryFailure) error {
	return nil
}

// NotifyMembershipJoined does nothing.
func (n *NoOpNotificationService) NotifyMembershipJoined(_ context.Context, _ model.Membership) error {
	return nil
}

// NotifyMembershipLeft does nothing.
func (n *NoOpNotificationService) NotifyMembershipLeft(_ context.Context, _ model.Membership) error {
	return nil
}

// LoggingNotificationService is a simple implementation that logs notifications.
type LoggingNotificationService struct {
	logger Logger
}

// NewLoggingNotificationService creates a new LoggingNotificationService.
func NewLoggingNotificationService(logger Logger) *LoggingNotificationService {
	return &LoggingNotificationService{logger: logger}
}

// NotifyPublishFailure logs a publish failure.
func (n *LoggingNotificationService) NotifyPublishFailure(_ context.Context, item *model.Outbox, err error) error {
	n.logger.Warnf("⚠️ Publish failed: outbox_id=%d, message_id=%d, channel=%s, attempt=%d, error=%v",
		item.ID, item.MessageID, item.Channel, item.AttemptCount, err)
	return nil
}

// NotifyDeliveryAbandoned logs an abandoned delivery.
func (n *LoggingNotificationService) NotifyDeliveryAbandoned(_ context.Context, failure model.DeliveryFailure) error {
	n.logger.Warnf("⚠️ Delivery abandoned: message_id=%d, channel=%s, attempts=%d, reason=%s",
		failure.MessageID, failure.Channel, failure.AttemptCount, failure.FailureReason)
	return nil
}

// NotifyMembershipJoined logs a room join.
func (n *LoggingNotificationService) NotifyMembershipJoined(_ context.Context, membership model.Membership) error {
	n.logger.Infof("✅ Membership created: id=%d, subscriber_id=%d, room_id=%d, role=%s",
		membership.ID, membership.SubscriberID, membership.RoomID, membership.Role)
	return nil
}

// NotifyMembershipLeft logs a membership revocation.
func (n *LoggingNotificationService) NotifyMembershipLeft(_ context.Context, membership model.Membership) error {
	n.logger.Infof("🔴 Membership revoked: id=%d, subscriber_id=%d, room_id=%d",
		membership.ID, membership.SubscriberID, membership.RoomID)
	return nil
}
