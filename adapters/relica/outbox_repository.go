package relica

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/coregx/relica"
	"github.com/coregx/roomcast"
	"github.com/coregx/roomcast/model"
)

// OutboxRepository implements roomcast.OutboxRepository using Relica.
type OutboxRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewOutboxRepository creates a new OutboxRepository with default table prefix.
func NewOutboxRepository(sqlDB *sql.DB, driverName string) *OutboxRepository {
	return &OutboxRepository{
		db:          relica.WrapDB(sqlDB, driverName),
		tablePrefix: "roomcast_",
	}
}

// NewOutboxRepositoryWithPrefix creates a new OutboxRepository with custom table prefix.
func NewOutboxRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *OutboxRepository {
	return &OutboxRepository{
		db:          relica.WrapDB(sqlDB, driverName),
		tablePrefix: prefix,
	}
}

func (r *OutboxRepository) tableName() string {
	return r.tablePrefix + "outbox"
}

// Load retrieves an outbox item by ID.
func (r *OutboxRepository) Load(ctx context.Context, id int64) (model.Outbox, error) {
	var item model.Outbox

	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("id = ?", id).
		WithContext(ctx).
		One(&item)

	if errors.Is(err, sql.ErrNoRows) {
		return item, roomcast.ErrNoData
	}
	if err != nil {
		return item, roomcast.NewErrorWithCause(roomcast.ErrCodeDatabase, "failed to load outbox item", err)
	}

	return item, nil
}

// Save creates or updates an outbox item.
func (r *OutboxRepository) Save(ctx context.Context, m *model.Outbox) (*model.Outbox, error) {
	if m.ID == 0 {
		// Insert using Model() API - auto-populates m.ID
		err := r.db.WithContext(ctx).Model(m).Table(r.tableName()).Insert()
		if err != nil {
			return m, roomcast.NewErrorWithCause(roomcast.ErrCodeDatabase, "failed to insert outbox item", err)
		}
		return m, nil
	}

	// Update using Model() API - auto WHERE id = ?
	err := r.db.WithContext(ctx).Model(m).Table(r.tableName()).Update()
	if err != nil {
		return m, roomcast.NewErrorWithCause(roomcast.ErrCodeDatabase, "failed to update outbox item", err)
	}

	return m, nil
}

// Delete removes an outbox item.
func (r *OutboxRepository) Delete(ctx context.Context, m *model.Outbox) error {
	err := r.db.WithContext(ctx).Model(m).Table(r.tableName()).Delete()
	if err != nil {
		return roomcast.NewErrorWithCause(roomcast.ErrCodeDatabase, "failed to delete outbox item", err)
	}
	return nil
}

// FindPendingItems retrieves pending outbox items ready for a first publish.
// Ordered by sequence ASC to preserve per-room publish order.
func (r *OutboxRepository) FindPendingItems(ctx context.Context, limit int) ([]model.Outbox, error) {
	var items []model.Outbox

	now := time.Now()

	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("status = ? AND next_retry_at <= ?", model.OutboxStatusPending, now).
		OrderBy("sequence ASC").
		Limit(int64(limit)).
		WithContext(ctx).
		All(&items)

	if err != nil {
		return nil, roomcast.NewErrorWithCause(roomcast.ErrCodeDatabase, "failed to find pending items", err)
	}

	if len(items) == 0 {
		return nil, roomcast.ErrNoData
	}

	return items, nil
}

// FindRetryableItems retrieves failed outbox items ready for retry.
func (r *OutboxRepository) FindRetryableItems(ctx context.Context, limit int) ([]model.Outbox, error) {
	var items []model.Outbox

	now := time.Now()

	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("status = ? AND next_retry_at <= ?", model.OutboxStatusFailed, now).
		OrderBy("sequence ASC").
		Limit(int64(limit)).
		WithContext(ctx).
		All(&items)

	if err != nil {
		return nil, roomcast.NewErrorWithCause(roomcast.ErrCodeDatabase, "failed to find retryable items", err)
	}

	if len(items) == 0 {
		return nil, roomcast.ErrNoData
	}

	return items, nil
}

// FindExpiredItems retrieves expired outbox items that should be cleaned up.
func (r *OutboxRepository) FindExpiredItems(ctx context.Context, limit int) ([]model.Outbox, error) {
	var items []model.Outbox

	now := time.Now()

	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("expires_at <= ? AND status != ?", now, model.OutboxStatusPublished).
		OrderBy("expires_at ASC").
		Limit(int64(limit)).
		WithContext(ctx).
		All(&items)

	if err != nil {
		return nil, roomcast.NewErrorWithCause(roomcast.ErrCodeDatabase, "failed to find expired items", err)
	}

	if len(items) == 0 {
		return nil, roomcast.ErrNoData
	}

	return items, nil
}
