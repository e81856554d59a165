package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	enrollmentDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/enrollment"
	"github.com/frahmantamala/atelier/internal/core/database"
	"gorm.io/gorm"
)

type PendingRepository struct {
	db *gorm.DB
}

func NewPendingRepository(db *gorm.DB) *PendingRepository {
	return &PendingRepository{db: db}
}

func (r *PendingRepository) Create(ctx context.Context, p *enrollmentDatamodel.PendingEnrollment) error {
	return database.Conn(ctx, r.db).Create(p).Error
}

func (r *PendingRepository) FindPendingByExternalID(ctx context.Context, method, externalID string) (*enrollmentDatamodel.PendingEnrollment, error) {
	return r.findByExternalID(ctx, method, externalID, true)
}

func (r *PendingRepository) FindByExternalID(ctx context.Context, method, externalID string) (*enrollmentDatamodel.PendingEnrollment, error) {
	return r.findByExternalID(ctx, method, externalID, false)
}

func (r *PendingRepository) findByExternalID(ctx context.Context, method, externalID string, pendingOnly bool) (*enrollmentDatamodel.PendingEnrollment, error) {
	column, ok := enrollmentDatamodel.ExternalIDColumn(method)
	if !ok {
		return nil, fmt.Errorf("unsupported payment method %q", method)
	}

	query := database.Conn(ctx, r.db).
		Where(column+" = ?", externalID).
		Where("payment_method = ?", method)
	if pendingOnly {
		query = query.Where("status = ?", enrollmentDatamodel.StatusPending)
	}

	var p enrollmentDatamodel.PendingEnrollment
	if err := query.First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *PendingRepository) FindOpen(ctx context.Context, userID, courseID int64, method string) (*enrollmentDatamodel.PendingEnrollment, error) {
	var p enrollmentDatamodel.PendingEnrollment
	err := database.Conn(ctx, r.db).
		Where("user_id = ? AND course_id = ? AND payment_method = ? AND status = ?",
			userID, courseID, method, enrollmentDatamodel.StatusPending).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// transition moves a row out of pending. It reports false when the row had
// already left pending, so concurrent deliveries cannot both win.
func (r *PendingRepository) transition(ctx context.Context, id int64, updates map[string]interface{}) (bool, error) {
	updates["updated_at"] = time.Now().UTC()
	res := database.Conn(ctx, r.db).
		Model(&enrollmentDatamodel.PendingEnrollment{}).
		Where("id = ? AND status = ?", id, enrollmentDatamodel.StatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *PendingRepository) MarkCompleted(ctx context.Context, id int64, at time.Time) (bool, error) {
	return r.transition(ctx, id, map[string]interface{}{
		"status":       enrollmentDatamodel.StatusCompleted,
		"completed_at": at,
	})
}

func (r *PendingRepository) MarkFailed(ctx context.Context, id int64, reason string) (bool, error) {
	return r.transition(ctx, id, map[string]interface{}{
		"status":         enrollmentDatamodel.StatusFailed,
		"failure_reason": reason,
	})
}

func (r *PendingRepository) MarkExpired(ctx context.Context, id int64) (bool, error) {
	return r.transition(ctx, id, map[string]interface{}{
		"status": enrollmentDatamodel.StatusExpired,
	})
}

// ListOverdue returns up to limit pending rows whose expiry has passed, oldest first.
func (r *PendingRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*enrollmentDatamodel.PendingEnrollment, error) {
	var rows []*enrollmentDatamodel.PendingEnrollment
	err := database.Conn(ctx, r.db).
		Where("status = ? AND expires_at <= ?", enrollmentDatamodel.StatusPending, now).
		Order("expires_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *PendingRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	res := database.Conn(ctx, r.db).
		Where("status = ? AND expires_at < ?", enrollmentDatamodel.StatusExpired, before).
		Delete(&enrollmentDatamodel.PendingEnrollment{})
	return res.RowsAffected, res.Error
}
