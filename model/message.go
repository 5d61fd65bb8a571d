package model

import "time"

// Message represents a chat message after the persistence collaborator has
// durably committed it. Messages are immutable once created.
//
// Sequence is a room-scoped monotonically increasing number assigned at the
// room's single append point. It orders messages within one room and drives
// unread computation; no ordering exists across rooms.
type Message struct {
	ID        int64     `json:"id"`                        // Unique message ID (server-assigned)
	RoomID    int64     `json:"roomID" db:"room_id"`       // Room this message belongs to
	AuthorID  int64     `json:"authorID" db:"author_id"`   // Subscriber who sent the message
	Sequence  int64     `json:"sequence"`                  // Room-scoped monotonic sequence
	Body      string    `json:"body"`                      // Message payload
	CreatedAt time.Time `json:"createdAt" db:"created_at"` // Commit timestamp
}

// TableName returns the database table name for Message.
func (m Message) TableName() string {
	return tablePrefix + "message"
}

// NewMessage creates a message record. The persistence collaborator owns
// sequence assignment; the value passed here must come from the room's
// append point.
func NewMessage(roomID, authorID, sequence int64, body string) Message {
	return Message{
		ID:        0,
		RoomID:    roomID,
		AuthorID:  authorID,
		Sequence:  sequence,
		Body:      body,
		CreatedAt: time.Now(),
	}
}
