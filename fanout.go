package roomcast

import (
	"context"
	"fmt"

	"github.com/coregx/roomcast/model"
	"github.com/coregx/roomcast/retry"
)

// FanoutPublisher resolves a committed message's destination channels and
// publishes it to the broadcast hub.
//
// Publish must only be invoked after the message is durably committed by the
// persistence collaborator — publishing an uncommitted message risks
// delivering something that a subsequent write failure then un-happens.
//
// Destination resolution:
//   - bounded room: the room's single enumerated channel; the hub fans out to
//     every connected subscriber whose token includes it
//   - unbounded room: one event per participant's private inbox channel;
//     fan-out happens here because the hub has no room channel to broadcast to
//
// Every destination gets an outbox row before the publish attempt, so
// transient hub failures are retried by the OutboxWorker (at-least-once;
// consumers deduplicate by event ID).
type FanoutPublisher struct {
	roomRepo       RoomRepository
	membershipRepo MembershipRepository
	outboxRepo     OutboxRepository
	hub            BroadcastHub
	retryStrategy  retry.Strategy
	logger         Logger
}

// FanoutOption configures a FanoutPublisher.
type FanoutOption func(*FanoutPublisher) error

// NewFanoutPublisher creates a new FanoutPublisher with the provided options.
//
// Required options:
//   - WithFanoutRepositories: room, membership, and outbox repositories
//   - WithFanoutHub: broadcast hub transport
//   - WithFanoutLogger: logger instance
//
// Optional options:
//   - WithFanoutRetryStrategy: custom retry schedule (default: retry.DefaultStrategy())
func NewFanoutPublisher(opts ...FanoutOption) (*FanoutPublisher, error) {
	p := &FanoutPublisher{
		retryStrategy: retry.DefaultStrategy(),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply fanout option", err)
		}
	}

	if p.roomRepo == nil {
		return nil, NewError(ErrCodeConfiguration, "RoomRepository is required (use WithFanoutRepositories)")
	}
	if p.membershipRepo == nil {
		return nil, NewError(ErrCodeConfiguration, "MembershipRepository is required (use WithFanoutRepositories)")
	}
	if p.outboxRepo == nil {
		return nil, NewError(ErrCodeConfiguration, "OutboxRepository is required (use WithFanoutRepositories)")
	}
	if p.hub == nil {
		return nil, NewError(ErrCodeConfiguration, "BroadcastHub is required (use WithFanoutHub)")
	}
	if p.logger == nil {
		return nil, NewError(ErrCodeConfiguration, "Logger is required (use WithFanoutLogger)")
	}

	return p, nil
}

// WithFanoutRepositories sets the required repository dependencies.
func WithFanoutRepositories(
	roomRepo RoomRepository,
	membershipRepo MembershipRepository,
	outboxRepo OutboxRepository,
) FanoutOption {
	return func(p *FanoutPublisher) error {
		if roomRepo == nil {
			return fmt.Errorf("roomRepo cannot be nil")
		}
		if membershipRepo == nil {
			return fmt.Errorf("membershipRepo cannot be nil")
		}
		if outboxRepo == nil {
			return fmt.Errorf("outboxRepo cannot be nil")
		}
		p.roomRepo = roomRepo
		p.membershipRepo = membershipRepo
		p.outboxRepo = outboxRepo
		return nil
	}
}

// WithFanoutHub sets the broadcast hub transport.
func WithFanoutHub(hub BroadcastHub) FanoutOption {
	return func(p *FanoutPublisher) error {
		if hub == nil {
			return fmt.Errorf("hub cannot be nil")
		}
		p.hub = hub
		return nil
	}
}

// WithFanoutLogger sets the logger instance.
func WithFanoutLogger(logger Logger) FanoutOption {
	return func(p *FanoutPublisher) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		p.logger = logger
		return nil
	}
}

// WithFanoutRetryStrategy sets a custom retry strategy for failed publishes.
func WithFanoutRetryStrategy(strategy retry.Strategy) FanoutOption {
	return func(p *FanoutPublisher) error {
		p.retryStrategy = strategy
		return nil
	}
}

// FanoutResult represents the result of a fan-out operation.
// Published + Deferred + Failed always equals len(Channels).
type FanoutResult struct {
	MessageID int64    // Message that was fanned out
	Channels  []string // Destination channels resolved for the message
	Published int      // Channels that received the event immediately
	Deferred  int      // Channels left to the outbox worker after a failed attempt
	Failed    int      // Channels with no outbox row; the caller must re-publish
}

// Publish resolves the message's destination channels and publishes the
// broadcast event to each. Individual channel failures are scheduled for
// retry and don't stop the rest of the fan-out; destinations whose outbox
// row could not be created have no retry path and are reported in Failed.
func (p *FanoutPublisher) Publish(ctx context.Context, msg model.Message) (*FanoutResult, error) {
	if msg.ID == 0 {
		return nil, NewError(ErrCodeValidation, "message ID is required (publish only committed messages)")
	}

	channels, err := p.resolveChannels(ctx, msg)
	if err != nil {
		return nil, err
	}

	result := &FanoutResult{MessageID: msg.ID, Channels: channels}
	for _, channel := range channels {
		item := model.NewOutbox(msg.ID, msg.RoomID, channel, msg.Sequence)
		saved, err := p.outboxRepo.Save(ctx, &item)
		if err != nil {
			// No durable row means no retry path for this destination; the
			// count tells the caller to re-publish
			p.logger.Errorf("Failed to create outbox item for channel %s: %v", channel, err)
			result.Failed++
			continue
		}

		event := model.NewBroadcastEvent(channel, msg)
		if err := p.hub.Publish(ctx, channel, event); err != nil {
			p.handlePublishFailure(ctx, saved, err)
			result.Deferred++
			continue
		}

		saved.MarkPublished()
		if _, err := p.outboxRepo.Save(ctx, saved); err != nil {
			p.logger.Errorf("Failed to mark outbox item %d as published: %v", saved.ID, err)
		}
		result.Published++
	}

	p.logger.Infof("Fanned out message %d to %d channels (published=%d, deferred=%d, failed=%d)",
		msg.ID, len(channels), result.Published, result.Deferred, result.Failed)

	return result, nil
}

// resolveChannels picks the destination channels for a message based on the
// room's visibility mode. Inbox fan-out includes the author so their client
// receives the authoritative echo used for optimistic reconciliation.
func (p *FanoutPublisher) resolveChannels(ctx context.Context, msg model.Message) ([]string, error) {
	room, err := p.roomRepo.Load(ctx, msg.RoomID)
	if err != nil {
		if IsNoData(err) {
			return nil, NewErrorWithCause(ErrCodeValidation, fmt.Sprintf("room not found: %d", msg.RoomID), err)
		}
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to load room", err)
	}

	if room.IsBounded() {
		return []string{room.Channel()}, nil
	}

	memberships, err := p.membershipRepo.FindActiveByRoom(ctx, msg.RoomID)
	if err != nil {
		if IsNoData(err) {
			p.logger.Warnf("No active members found for unbounded room %d", msg.RoomID)
			return nil, nil
		}
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to load room members", err)
	}

	channels := make([]string, 0, len(memberships))
	for _, m := range memberships {
		channels = append(channels, model.InboxChannel(m.SubscriberID))
	}
	return channels, nil
}

// handlePublishFailure schedules a retry for a failed publish attempt.
func (p *FanoutPublisher) handlePublishFailure(ctx context.Context, item *model.Outbox, publishErr error) {
	retryDelay := p.retryStrategy.CalculateRetryDelay(item.AttemptCount + 1)
	item.MarkFailed(publishErr, retryDelay)

	if _, err := p.outboxRepo.Save(ctx, item); err != nil {
		p.logger.Errorf("Failed to update outbox item %d after publish failure: %v", item.ID, err)
		return
	}

	p.logger.Warnf("Publish failed for message %d on channel %s (next_retry=%v): %v",
		item.MessageID, item.Channel, retryDelay, publishErr)
}
