package relica

import (
	"database/sql"

	"github.com/coregx/roomcast"
)

// Repositories holds all repository implementations.
type Repositories struct {
	Room            roomcast.RoomRepository
	Membership      roomcast.MembershipRepository
	Message         roomcast.MessageRepository
	ReadCursor      roomcast.ReadCursorRepository
	Outbox          roomcast.OutboxRepository
	DeliveryFailure roomcast.DeliveryFailureRepository
}

// NewRepositories creates all repository implementations using Relica.
//
// The db parameter should be an *sql.DB connected to MySQL, PostgreSQL, or SQLite.
// The driverName should be "mysql", "postgres", or "sqlite3".
// The table prefix defaults to "roomcast_" but can be customized.
func NewRepositories(db *sql.DB, driverName string) *Repositories {
	return &Repositories{
		Room:            NewRoomRepository(db, driverName),
		Membership:      NewMembershipRepository(db, driverName),
		Message:         NewMessageRepository(db, driverName),
		ReadCursor:      NewReadCursorRepository(db, driverName),
		Outbox:          NewOutboxRepository(db, driverName),
		DeliveryFailure: NewDeliveryFailureRepository(db, driverName),
	}
}

// NewRepositoriesWithPrefix creates all repository implementations with a custom table prefix.
func NewRepositoriesWithPrefix(db *sql.DB, driverName, prefix string) *Repositories {
	return &Repositories{
		Room:            NewRoomRepositoryWithPrefix(db, driverName, prefix),
		Membership:      NewMembershipRepositoryWithPrefix(db, driverName, prefix),
		Message:         NewMessageRepositoryWithPrefix(db, driverName, prefix),
		ReadCursor:      NewReadCursorRepositoryWithPrefix(db, driverName, prefix),
		Outbox:          NewOutboxRepositoryWithPrefix(db, driverName, prefix),
		DeliveryFailure: NewDeliveryFailureRepositoryWithPrefix(db, driverName, prefix),
	}
}
