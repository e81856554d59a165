package postgres

import (
	"context"
	"errors"

	paymentDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/payment"
	"github.com/frahmantamala/atelier/internal/core/database"
	"gorm.io/gorm"
)

type RequestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

func (r *RequestRepository) Create(ctx context.Context, req *paymentDatamodel.PaymentRequest) error {
	return database.Conn(ctx, r.db).Create(req).Error
}

func (r *RequestRepository) GetByID(ctx context.Context, id int64) (*paymentDatamodel.PaymentRequest, error) {
	var req paymentDatamodel.PaymentRequest
	err := database.Conn(ctx, r.db).Where("id = ?", id).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

func (r *RequestRepository) FindPending(ctx context.Context, userID, courseID int64) (*paymentDatamodel.PaymentRequest, error) {
	var req paymentDatamodel.PaymentRequest
	err := database.Conn(ctx, r.db).
		Where("user_id = ? AND course_id = ? AND status = ?", userID, courseID, paymentDatamodel.RequestStatusPending).
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

func (r *RequestRepository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*paymentDatamodel.PaymentRequest, error) {
	var out []*paymentDatamodel.PaymentRequest
	err := database.Conn(ctx, r.db).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error
	return out, err
}

func (r *RequestRepository) List(ctx context.Context, status string, limit, offset int) ([]*paymentDatamodel.PaymentRequest, error) {
	query := database.Conn(ctx, r.db)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var out []*paymentDatamodel.PaymentRequest
	err := query.
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error
	return out, err
}

// Transition is guarded on status = pending, which keeps terminal rows immutable.
func (r *RequestRepository) Transition(ctx context.Context, id int64, status string, updates map[string]interface{}) (bool, error) {
	values := make(map[string]interface{}, len(updates)+1)
	for k, v := range updates {
		values[k] = v
	}
	values["status"] = status

	res := database.Conn(ctx, r.db).
		Model(&paymentDatamodel.PaymentRequest{}).
		Where("id = ? AND status = ?", id, paymentDatamodel.RequestStatusPending).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
