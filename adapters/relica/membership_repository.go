package relica

import (
	"context"
	"database/sql"
	"errors"

	"github.com/coregx/relica"
	"github.com/coregx/roomcast"
	"github.com/coregx/roomcast/model"
)

// MembershipRepository implements roomcast.MembershipRepository using Relica.
type MembershipRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewMembershipRepository creates a new MembershipRepository with default table prefix.
func NewMembershipRepository(sqlDB *sql.DB, driverName string) *MembershipRepository {
	return &MembershipRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: "roomcast_"}
}

// NewMembershipRepositoryWithPrefix creates a new MembershipRepository with custom table prefix.
func NewMembershipRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *MembershipRepository {
	return &MembershipRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *MembershipRepository) tableName() string {
	return r.tablePrefix + "membership"
}

// Load retrieves a membership by ID.
func (r *MembershipRepository) Load(ctx context.Context, id int64) (model.Membership, error) {
	var m model.Membership
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&m)
	if errors.Is(err, sql.ErrNoRows) {
		return m, roomcast.ErrNoData
	}
	if err != nil {
		return m, roomcast.NewErrorWithCause(roomcast.ErrCodeDatabase, "failed to load membership", err)
	}
	return m, nil
}

// Save creates or updates a membership.
func (r *MembershipRepository) Save(ctx context.Context, m model.Membership) (model.Membership, error) {
	if m.ID == 0 {
		err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Insert()
		if err != nil {
			return m, roomcast.NewErrorWithCause(roomcast.ErrCodeDatabase, "failed to insert membership", err)
		}
		return m, nil
	}
	err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Update()
	if err != nil {
		return m, roomcast.NewErrorWithCause(roomcast.ErrCodeDatabase, "failed to update membership", err)
	}
	return m, nil
}

// FindActive retrieves the active membership of a subscriber in a room.
func (r *MembershipRepository) FindActive(ctx context.Context, subscriberID, roomID int64) (model.Membership, error) {
	var m model.Membership
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("subscriber_id = ? AND room_id = ? AND is_active = ?", subscriberID, roomID, true).
		WithContext(ctx).
		One(&m)
	if errors.Is(err, sql.ErrNoRows) {
		return m, roomcast.ErrNoData
	}
	if err != nil {
		return m, roomcast.NewErrorWithCause(roomcast.ErrCodeDatabase, "failed to find active membership", err)
	}
	return m, nil
}

// FindActiveBySubscriber retrieves all active memberships of a subscriber.
func (r *MembershipRepository) FindActiveBySubscriber(ctx context.Context, subscriberID int64) ([]model.Membership, error) {
	var memberships []model.Membership
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("subscriber_id = ? AND is_active = ?", subscriberID, true).
		OrderBy("created_at ASC").
		WithContext(ctx).
		All(&memberships)
	if err != nil {
		return nil, roomcast.NewErrorWithCause(roomcast.ErrCodeDatabase, "failed to find memberships by subscriber", err)
	}
	if len(memberships) == 0 {
		return nil, roomcast.ErrNoData
	}
	return memberships, nil
}

// FindActiveByRoom retrieves all active memberships of a room.
func (r *MembershipRepository) FindActiveByRoom(ctx context.Context, roomID int64) ([]model.Membership, error) {
	var memberships []model.Membership
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("room_id = ? AND is_active = ?", roomID, true).
		OrderBy("created_at ASC").
		WithContext(ctx).
		All(&memberships)
	if err != nil {
		return nil, roomcast.NewErrorWithCause(roomcast.ErrCodeDatabase, "failed to find memberships by room", err)
	}
	if len(memberships) == 0 {
		return nil, roomcast.ErrNoData
	}
	return memberships, nil
}

// List retrieves memberships matching the filter criteria.
func (r *MembershipRepository) List(ctx context.Context, filter roomcast.MembershipFilter) ([]model.Membership, error) {
	var memberships []model.Membership
	q := r.db.WithContext(ctx).Select("*").From(r.tableName())
	if filter.SubscriberID > 0 {
		q = q.Where("subscriber_id = ?", filter.SubscriberID)
	}
	if filter.RoomID > 0 {
		q = q.Where("room_id = ?", filter.RoomID)
	}
	if filter.IsActive {
		q = q.Where("is_active = ?", true)
	}
	err := q.WithContext(ctx).All(&memberships)
	if err != nil {
		return nil, roomcast.NewErrorWithCause(roomcast.ErrCodeDatabase, "failed to list memberships", err)
	}
	return memberships, nil
}
