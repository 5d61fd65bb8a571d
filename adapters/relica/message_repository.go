package relica

import (
	"context"
	"database/sql"
	"errors"

	"github.com/coregx/relica"
	"github.com/coregx/roomcast"
	"github.com/coregx/roomcast/model"
)

// MessageRepository implements roomcast.MessageRepository using Relica.
type MessageRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewMessageRepository creates a new MessageRepository with default table prefix.
func NewMessageRepository(sqlDB *sql.DB, driverName string) *MessageRepository {
	return &MessageRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: "roomcast_"}
}

// NewMessageRepositoryWithPrefix creates a new MessageRepository with custom table prefix.
func NewMessageRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *MessageRepository {
	return &MessageRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *MessageRepository) tableName() string {
	return r.tablePrefix + "message"
}

// Load retrieves a message by ID.
func (r *MessageRepository) Load(ctx context.Context, id int64) (model.Message, error) {
	var msg model.Message
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return msg, roomcast.ErrNoData
	}
	if err != nil {
		return msg, roomcast.NewErrorWithCause(roomcast.ErrCodeDatabase, "failed to load message", err)
	}
	return msg, nil
}

// Save creates or updates a message.
func (r *MessageRepository) Save(ctx context.Context, m model.Message) (model.Message, error) {
	if m.ID == 0 {
		err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Insert()
		if err != nil {
			return m, roomcast.NewErrorWithCause(roomcast.ErrCodeDatabase, "failed to insert message", err)
		}
		return m, nil
	}
	err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Update()
	if err != nil {
		return m, roomcast.NewErrorWithCause(roomcast.ErrCodeDatabase, "failed to update message", err)
	}
	return m, nil
}

// LatestSequence returns the highest message sequence in a room, or 0 when
// the room has no messages.
func (r *MessageRepository) LatestSequence(ctx context.Context, roomID int64) (int64, error) {
	var seq sql.NullInt64
	err := r.db.WithContext(ctx).Select("MAX(sequence)").
		From(r.tableName()).
		Where("room_id = ?", roomID).
		WithContext(ctx).
		One(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, roomcast.NewErrorWithCause(roomcast.ErrCodeDatabase, "failed to load latest sequence", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

// CountAfter returns the number of messages in a room with a sequence above
// the given watermark. Served by the (room_id, sequence) index — a range
// count, not a history scan.
func (r *MessageRepository) CountAfter(ctx context.Context, roomID, sequence int64) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Select("COUNT(*)").
		From(r.tableName()).
		Where("room_id = ? AND sequence > ?", roomID, sequence).
		WithContext(ctx).
		One(&count)
	if err != nil {
		return 0, roomcast.NewErrorWithCause(roomcast.ErrCodeDatabase, "failed to count messages", err)
	}
	return int(count), nil
}
