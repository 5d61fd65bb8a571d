package relica

import (
	"context"
	"database/sql"
	"errors"

	"github.com/coregx/relica"
	"github.com/coregx/roomcast"
	"github.com/coregx/roomcast/model"
)

// RoomRepository implements roomcast.RoomRepository using Relica.
type RoomRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewRoomRepository creates a new RoomRepository with default table prefix.
func NewRoomRepository(sqlDB *sql.DB, driverName string) *RoomRepository {
	return &RoomRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: "roomcast_"}
}

// NewRoomRepositoryWithPrefix creates a new RoomRepository with custom table prefix.
func NewRoomRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *RoomRepository {
	return &RoomRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *RoomRepository) tableName() string {
	return r.tablePrefix + "room"
}

// Load retrieves a room by ID.
func (r *RoomRepository) Load(ctx context.Context, id int64) (model.Room, error) {
	var room model.Room
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&room)
	if errors.Is(err, sql.ErrNoRows) {
		return room, roomcast.ErrNoData
	}
	if err != nil {
		return room, roomcast.NewErrorWithCause(roomcast.ErrCodeDatabase, "failed to load room", err)
	}
	return room, nil
}

// Save creates or updates a room.
func (r *RoomRepository) Save(ctx context.Context, m model.Room) (model.Room, error) {
	if m.ID == 0 {
		err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Insert()
		if err != nil {
			return m, roomcast.NewErrorWithCause(roomcast.ErrCodeDatabase, "failed to insert room", err)
		}
		return m, nil
	}
	err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Update()
	if err != nil {
		return m, roomcast.NewErrorWithCause(roomcast.ErrCodeDatabase, "failed to update room", err)
	}
	return m, nil
}
