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

// DeliveryFailureRepository implements roomcast.DeliveryFailureRepository using Relica.
type DeliveryFailureRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewDeliveryFailureRepository creates a new DeliveryFailureRepository with default table prefix.
func NewDeliveryFailureRepository(sqlDB *sql.DB, driverName string) *DeliveryFailureRepository {
	return &DeliveryFailureRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: "roomcast_"}
}

// NewDeliveryFailureRepositoryWithPrefix creates a new DeliveryFailureRepository with custom table prefix.
func NewDeliveryFailureRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *DeliveryFailureRepository {
	return &DeliveryFailureRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *DeliveryFailureRepository) tableName() string {
	return r.tablePrefix + "delivery_failure"
}

// Load retrieves a failure record by ID.
func (r *DeliveryFailureRepository) Load(ctx context.Context, id int64) (model.DeliveryFailure, error) {
	var failure model.DeliveryFailure
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&failure)
	if errors.Is(err, sql.ErrNoRows) {
		return failure, roomcast.ErrNoData
	}
	if err != nil {
		return failure, roomcast.NewErrorWithCause(roomcast.ErrCodeDatabase, "failed to load delivery failure", err)
	}
	return failure, nil
}

// Save creates or updates a failure record.
func (r *DeliveryFailureRepository) Save(ctx context.Context, m model.DeliveryFailure) (model.DeliveryFailure, error) {
	if m.ID == 0 {
		err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Insert()
		if err != nil {
			return m, roomcast.NewErrorWithCause(roomcast.ErrCodeDatabase, "failed to insert delivery failure", err)
		}
		return m, nil
	}
	err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Update()
	if err != nil {
		return m, roomcast.NewErrorWithCause(roomcast.ErrCodeDatabase, "failed to update delivery failure", err)
	}
	return m, nil
}

// FindUnresolved retrieves unresolved failures, oldest first.
func (r *DeliveryFailureRepository) FindUnresolved(ctx context.Context, limit int) ([]model.DeliveryFailure, error) {
	var failures []model.DeliveryFailure
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("is_resolved = ?", false).
		OrderBy("created_at ASC").
		Limit(int64(limit)).
		WithContext(ctx).
		All(&failures)
	if err != nil {
		return nil, roomcast.NewErrorWithCause(roomcast.ErrCodeDatabase, "failed to find unresolved failures", err)
	}
	if len(failures) == 0 {
		return nil, roomcast.ErrNoData
	}
	return failures, nil
}

// FindByMessageID retrieves failures for a specific message.
func (r *DeliveryFailureRepository) FindByMessageID(ctx context.Context, messageID int64) ([]model.DeliveryFailure, error) {
	var failures []model.DeliveryFailure
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("message_id = ?", messageID).
		OrderBy("created_at ASC").
		WithContext(ctx).
		All(&failures)
	if err != nil {
		return nil, roomcast.NewErrorWithCause(roomcast.ErrCodeDatabase, "failed to find failures by message", err)
	}
	if len(failures) == 0 {
		return nil, roomcast.ErrNoData
	}
	return failures, nil
}

// FindOlderThan retrieves failures abandoned before the given threshold.
func (r *DeliveryFailureRepository) FindOlderThan(ctx context.Context, threshold time.Duration, limit int) ([]model.DeliveryFailure, error) {
	var failures []model.DeliveryFailure
	cutoffTime := time.Now().Add(-threshold)
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("abandoned_at < ?", cutoffTime).
		OrderBy("abandoned_at ASC").
		Limit(int64(limit)).
		WithContext(ctx).
		All(&failures)
	if err != nil {
		return nil, roomcast.NewErrorWithCause(roomcast.ErrCodeDatabase, "failed to find old failures", err)
	}
	if len(failures) == 0 {
		return nil, roomcast.ErrNoData
	}
	return failures, nil
}

// GetStats retrieves delivery failure statistics.
func (r *DeliveryFailureRepository) GetStats(ctx context.Context) (model.DeliveryFailureStats, error) {
	var stats model.DeliveryFailureStats
	var totalCount, unresolvedCount int64

	err := r.db.WithContext(ctx).Select("COUNT(*)").From(r.tableName()).One(&totalCount)
	if err != nil {
		return stats, roomcast.NewErrorWithCause(roomcast.ErrCodeDatabase, "failed to count total failures", err)
	}
	stats.TotalItems = int(totalCount)

	err = r.db.WithContext(ctx).Select("COUNT(*)").From(r.tableName()).Where("is_resolved = ?", false).One(&unresolvedCount)
	if err != nil {
		return stats, roomcast.NewErrorWithCause(roomcast.ErrCodeDatabase, "failed to count unresolved failures", err)
	}
	stats.UnresolvedItems = int(unresolvedCount)
	stats.ResolvedItems = stats.TotalItems - stats.UnresolvedItems
	stats.LastUpdated = time.Now()
	return stats, nil
}

// CountUnresolved returns the count of unresolved failures.
func (r *DeliveryFailureRepository) CountUnresolved(ctx context.Context) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Select("COUNT(*)").From(r.tableName()).Where("is_resolved = ?", false).One(&count)
	if err != nil {
		return 0, roomcast.NewErrorWithCause(roomcast.ErrCodeDatabase, "failed to count unresolved failures", err)
	}
	return int(count), nil
}
