package roomcast

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/coregx/roomcast/model"
)

// IssueTokenRequest asks for a capability token scoping a subscriber's
// readable channels.
type IssueTokenRequest struct {
	SubscriberID int64 `json:"subscriberID"`
}

func (m IssueTokenRequest) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.SubscriberID, validation.Required),
	)
}

// TokenResponse carries an issued capability token.
type TokenResponse struct {
	Token     string    `json:"token"`
	Channels  []string  `json:"channels"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// HeartbeatRequest reports that a subscriber is actively viewing a room.
type HeartbeatRequest struct {
	SubscriberID int64 `json:"subscriberID"`
	RoomID       int64 `json:"roomID"`
}

func (m HeartbeatRequest) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.SubscriberID, validation.Required),
		validation.Field(&m.RoomID, validation.Required),
	)
}

// MarkReadRequest acknowledges reading up to a sequence without presence.
type MarkReadRequest struct {
	SubscriberID int64 `json:"subscriberID"`
	RoomID       int64 `json:"roomID"`
	Sequence     int64 `json:"sequence"`
}

func (m MarkReadRequest) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.SubscriberID, validation.Required),
		validation.Field(&m.RoomID, validation.Required),
		validation.Field(&m.Sequence, validation.Required),
	)
}

// UnreadResponse carries a subscriber's unread count for a room.
type UnreadResponse struct {
	SubscriberID int64 `json:"subscriberID"`
	RoomID       int64 `json:"roomID"`
	Unread       int   `json:"unread"`
}

// MessageCommittedRequest notifies the distribution layer that a message was
// durably committed and should be fanned out. The persistence collaborator
// calls this after its transaction commits, never before.
type MessageCommittedRequest struct {
	MessageID int64  `json:"messageID"`
	RoomID    int64  `json:"roomID"`
	AuthorID  int64  `json:"authorID"`
	Sequence  int64  `json:"sequence"`
	Body      string `json:"body"`
}

func (m MessageCommittedRequest) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.MessageID, validation.Required),
		validation.Field(&m.RoomID, validation.Required),
		validation.Field(&m.AuthorID, validation.Required),
		validation.Field(&m.Sequence, validation.Required),
		validation.Field(&m.Body, validation.Required, validation.Length(1, 10000)),
	)
}

// ToMessage converts the request into the domain message it describes.
func (m MessageCommittedRequest) ToMessage() model.Message {
	return model.Message{
		ID:       m.MessageID,
		RoomID:   m.RoomID,
		AuthorID: m.AuthorID,
		Sequence: m.Sequence,
		Body:     m.Body,
	}
}

// MembershipChangedRequest applies a join or leave mutation.
type MembershipChangedRequest struct {
	SubscriberID int64  `json:"subscriberID"`
	RoomID       int64  `json:"roomID"`
	Action       string `json:"action"` // "join" or "leave"
	Role         string `json:"role"`   // optional, defaults to member
}

func (m MembershipChangedRequest) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.SubscriberID, validation.Required),
		validation.Field(&m.RoomID, validation.Required),
		validation.Field(&m.Action, validation.Required, validation.In("join", "leave")),
	)
}

// MembershipResponse carries the result of a membership mutation.
type MembershipResponse struct {
	model.Membership
}

// FanoutResponse carries the result of a fan-out operation.
type FanoutResponse struct {
	MessageID int64    `json:"messageID"`
	Channels  []string `json:"channels"`
	Published int      `json:"published"`
	Deferred  int      `json:"deferred"`
	Failed    int      `json:"failed"`
}
