package model

import (
	"database/sql"
	"time"
)

// MembershipRole is the subscriber's role inside a room.
type MembershipRole string

const (
	// RoleMember is a regular participant.
	RoleMember MembershipRole = "member"

	// RoleOwner created the room and may manage it.
	RoleOwner MembershipRole = "owner"
)

// Membership represents a subscriber's membership in a room.
//
// Membership creation and revocation are the sole triggers for channel-cache
// invalidation: the channel set encoded into a capability token is always a
// subset computed from rows of this table, never invented.
//
// Lifecycle: active memberships contribute channels to the subscriber's
// token scope, revoked ones don't.
type Membership struct {
	ID           int64          `json:"id"`                            // Unique membership ID
	SubscriberID int64          `json:"subscriberID" db:"subscriber_id"` // Subscriber who holds this membership
	RoomID       int64          `json:"roomID" db:"room_id"`           // Room being joined
	Role         MembershipRole `json:"role"`                          // Role inside the room
	IsActive     bool           `json:"isActive" db:"is_active"`       // Active memberships grant channel access
	CreatedAt    time.Time      `json:"createdAt" db:"created_at"`     // Join time
	DeletedAt    sql.NullTime   `json:"deletedAt" db:"deleted_at"`     // Soft delete timestamp
}

// TableName returns the database table name for Membership.
func (m Membership) TableName() string {
	return tablePrefix + "membership"
}

// NewMembership creates a new active membership.
func NewMembership(subscriberID, roomID int64, role MembershipRole) Membership {
	if role == "" {
		role = RoleMember
	}
	return Membership{
		ID:           0,
		SubscriberID: subscriberID,
		RoomID:       roomID,
		Role:         role,
		IsActive:     true,
		CreatedAt:    time.Now(),
		DeletedAt:    sql.NullTime{},
	}
}

// Revoke performs a soft delete on the membership.
// Revoked memberships stop contributing channels to the subscriber's token
// scope but are retained for audit purposes.
func (m *Membership) Revoke() {
	m.IsActive = false
	m.DeletedAt = sql.NullTime{Time: time.Now(), Valid: true}
}
