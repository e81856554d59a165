package postgres

import (
	"context"
	"time"

	notificationDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/notification"
	"github.com/frahmantamala/atelier/internal/core/database"
	"gorm.io/gorm"
)

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) CreateBatch(ctx context.Context, rows []*notificationDatamodel.Notification) error {
	if len(rows) == 0 {
		return nil
	}
	return database.Conn(ctx, r.db).Create(&rows).Error
}

func (r *NotificationRepository) ListByUser(ctx context.Context, userID int64, unreadOnly bool, limit, offset int) ([]*notificationDatamodel.Notification, error) {
	query := database.Conn(ctx, r.db).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}

	var out []*notificationDatamodel.Notification
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error
	return out, err
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := database.Conn(ctx, r.db).
		Model(&notificationDatamodel.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

func (r *NotificationRepository) MarkRead(ctx context.Context, userID int64, ids []int64, at time.Time) (int64, error) {
	query := database.Conn(ctx, r.db).
		Model(&notificationDatamodel.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false)
	if len(ids) > 0 {
		query = query.Where("id IN ?", ids)
	}

	res := query.Updates(map[string]interface{}{
		"is_read": true,
		"read_at": at,
	})
	return res.RowsAffected, res.Error
}
