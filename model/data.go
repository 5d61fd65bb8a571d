// Package model contains all domain models and data structures for the roomcast system.
package model

import "fmt"

// tablePrefix is prepended to every table name. Matches the default prefix
// used by the relica adapters and the embedded migrations.
const tablePrefix = "roomcast_"

// RoomChannel returns the broadcast channel name for a bounded room.
// Every subscriber whose token enumerates this channel receives the room's
// messages directly from the hub.
func RoomChannel(roomID int64) string {
	return fmt.Sprintf("room.%d", roomID)
}

// InboxChannel returns the per-subscriber private channel name.
// Messages from unbounded rooms are delivered here individually instead of
// through a room channel, so the token stays constant-size no matter how many
// unbounded rooms the subscriber joins.
func InboxChannel(subscriberID int64) string {
	return fmt.Sprintf("inbox.%d", subscriberID)
}

// ChannelSet is the set of channels a subscriber may read, as resolved from
// their memberships. Kept sorted for deterministic token contents.
type ChannelSet []string

// Contains reports whether the set includes the given channel.
func (s ChannelSet) Contains(channel string) bool {
	for _, c := range s {
		if c == channel {
			return true
		}
	}
	return false
}
