package model

import "time"

// ReadCursor tracks how far a subscriber has read in one room, plus the last
// presence heartbeat for that room.
//
// Watermark pattern: instead of marking messages read one by one, the cursor
// stores "read up to this sequence". Unread count is the number of messages
// with a higher sequence.
//
// Created on first room view, mutated on each heartbeat or read-ack, never
// deleted while the membership exists.
type ReadCursor struct {
	ID              int64     `json:"id"`                                   // Unique cursor ID
	SubscriberID    int64     `json:"subscriberID" db:"subscriber_id"`      // Cursor owner
	RoomID          int64     `json:"roomID" db:"room_id"`                  // Room being tracked
	LastReadSeq     int64     `json:"lastReadSeq" db:"last_read_seq"`       // Highest sequence considered read
	LastHeartbeatAt time.Time `json:"lastHeartbeatAt" db:"last_heartbeat_at"` // Most recent presence heartbeat
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`            // First view time
	UpdatedAt       time.Time `json:"updatedAt" db:"updated_at"`            // Last mutation time
}

// TableName returns the database table name for ReadCursor.
func (c ReadCursor) TableName() string {
	return tablePrefix + "read_cursor"
}

// NewReadCursor creates a cursor for a subscriber's first view of a room.
func NewReadCursor(subscriberID, roomID int64) ReadCursor {
	now := time.Now()
	return ReadCursor{
		ID:              0,
		SubscriberID:    subscriberID,
		RoomID:          roomID,
		LastReadSeq:     0,
		LastHeartbeatAt: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Advance moves the read watermark forward to the given sequence.
// The cursor is monotonic: a stale or duplicate ack never moves it back.
func (c *ReadCursor) Advance(sequence int64) {
	if sequence > c.LastReadSeq {
		c.LastReadSeq = sequence
		c.UpdatedAt = time.Now()
	}
}

// Beat records a presence heartbeat at the given time.
func (c *ReadCursor) Beat(now time.Time) {
	c.LastHeartbeatAt = now
	c.UpdatedAt = now
}

// PresentWithin reports whether the subscriber is still considered present:
// the last heartbeat falls inside the grace window ending at now.
func (c ReadCursor) PresentWithin(grace time.Duration, now time.Time) bool {
	return now.Sub(c.LastHeartbeatAt) <= grace
}
