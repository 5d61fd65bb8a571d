package model

import "time"

// RoomVisibility determines which token-scoping strategy applies to a room.
type RoomVisibility string

const (
	// RoomBounded indicates a room with a finite, enumerable membership list
	// (direct and group rooms). Bounded rooms get one broadcast channel each,
	// enumerated in every member's capability token.
	RoomBounded RoomVisibility = "bounded"

	// RoomUnbounded indicates a room whose membership is effectively
	// open-ended (marketplace-style per-pair rooms that can number in the
	// thousands per subscriber). Unbounded rooms have no channel of their
	// own; their messages are fanned out to each participant's inbox channel.
	RoomUnbounded RoomVisibility = "unbounded"
)

// Room represents a chat room in the distribution layer.
//
// The visibility mode is fixed at creation and decides how messages reach
// subscribers:
//   - bounded: one channel per room, fan-out happens inside the hub
//   - unbounded: one event per participant inbox, fan-out happens at publish
type Room struct {
	ID         int64          `json:"id"`                          // Unique room ID
	Name       string         `json:"name"`                        // Human-readable room name
	Visibility RoomVisibility `json:"visibility" db:"visibility"`  // Scoping strategy selector
	IsActive   bool           `json:"isActive" db:"is_active"`     // Only active rooms accept new messages
	CreatedAt  time.Time      `json:"createdAt" db:"created_at"`   // Room creation time
}

// TableName returns the database table name for Room.
func (r Room) TableName() string {
	return tablePrefix + "room"
}

// NewRoom creates a new active room with the given visibility mode.
func NewRoom(name string, visibility RoomVisibility) Room {
	return Room{
		ID:         0,
		Name:       name,
		Visibility: visibility,
		IsActive:   true,
		CreatedAt:  time.Now(),
	}
}

// IsBounded reports whether the room uses the explicit-enumeration strategy.
func (r Room) IsBounded() bool {
	return r.Visibility == RoomBounded
}

// Channel returns the room's broadcast channel name.
// Only meaningful for bounded rooms; unbounded rooms deliver through
// participant inbox channels instead.
func (r Room) Channel() string {
	return RoomChannel(r.ID)
}
