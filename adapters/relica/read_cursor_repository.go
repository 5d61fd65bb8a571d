package relica

import (
	"context"
	"database/sql"
	"errors"

	"github.com/coregx/relica"
	"github.com/coregx/roomcast"
	"github.com/coregx/roomcast/model"
)

// ReadCursorRepository implements roomcast.ReadCursorRepository using Relica.
type ReadCursorRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewReadCursorRepository creates a new ReadCursorRepository with default table prefix.
func NewReadCursorRepository(sqlDB *sql.DB, driverName string) *ReadCursorRepository {
	return &ReadCursorRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: "roomcast_"}
}

// NewReadCursorRepositoryWithPrefix creates a new ReadCursorRepository with custom table prefix.
func NewReadCursorRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *ReadCursorRepository {
	return &ReadCursorRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *ReadCursorRepository) tableName() string {
	return r.tablePrefix + "read_cursor"
}

// Find retrieves the cursor for a (subscriber, room) pair.
func (r *ReadCursorRepository) Find(ctx context.Context, subscriberID, roomID int64) (model.ReadCursor, error) {
	var cursor model.ReadCursor
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("subscriber_id = ? AND room_id = ?", subscriberID, roomID).
		WithContext(ctx).
		One(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return cursor, roomcast.ErrNoData
	}
	if err != nil {
		return cursor, roomcast.NewErrorWithCause(roomcast.ErrCodeDatabase, "failed to find read cursor", err)
	}
	return cursor, nil
}

// Save creates or updates a read cursor.
func (r *ReadCursorRepository) Save(ctx context.Context, m model.ReadCursor) (model.ReadCursor, error) {
	if m.ID == 0 {
		err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Insert()
		if err != nil {
			return m, roomcast.NewErrorWithCause(roomcast.ErrCodeDatabase, "failed to insert read cursor", err)
		}
		return m, nil
	}
	err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Update()
	if err != nil {
		return m, roomcast.NewErrorWithCause(roomcast.ErrCodeDatabase, "failed to update read cursor", err)
	}
	return m, nil
}
