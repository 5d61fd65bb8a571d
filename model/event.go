package model

import (
	"fmt"
	"time"
)

// BroadcastEvent is the wire payload published to the hub and streamed to
// subscription clients.
//
// ID is stable across replays: it is derived from the message ID and the
// destination channel, so a client that receives the same event twice (after
// a resume-with-gap replay, or a publish retry) can deduplicate it. RoomID is
// always present so inbox-channel deliveries can be attributed to the right
// room view by the client.
type BroadcastEvent struct {
	ID          string    `json:"id"`          // Stable dedup identifier
	Channel     string    `json:"channel"`     // Destination channel
	RoomID      int64     `json:"roomID"`      // Room the message belongs to
	MessageID   int64     `json:"messageID"`   // Server-assigned message ID
	AuthorID    int64     `json:"authorID"`    // Message author
	Sequence    int64     `json:"sequence"`    // Room-scoped sequence
	Body        string    `json:"body"`        // Message payload
	PublishedAt time.Time `json:"publishedAt"` // Time of (first) publish
}

// NewBroadcastEvent builds the event for delivering a message on a channel.
func NewBroadcastEvent(channel string, msg Message) BroadcastEvent {
	return BroadcastEvent{
		ID:          fmt.Sprintf("%d:%s", msg.ID, channel),
		Channel:     channel,
		RoomID:      msg.RoomID,
		MessageID:   msg.ID,
		AuthorID:    msg.AuthorID,
		Sequence:    msg.Sequence,
		Body:        msg.Body,
		PublishedAt: time.Now(),
	}
}
