package postgres

import (
	"context"
	"errors"
	"time"

	paymentDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/payment"
	"github.com/frahmantamala/atelier/internal/core/database"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{
		db: db,
	}
}

func (r *PaymentRepository) Create(ctx context.Context, p *paymentDatamodel.Payment) error {
	return database.Conn(ctx, r.db).Create(p).Error
}

func (r *PaymentRepository) GetByTransactionID(ctx context.Context, transactionID string) (*paymentDatamodel.Payment, error) {
	var p paymentDatamodel.Payment
	err := database.Conn(ctx, r.db).Where("transaction_id = ?", transactionID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// GetByTransactionIDForUpdate takes a row lock when ctx carries a
// transaction.
func (r *PaymentRepository) GetByTransactionIDForUpdate(ctx context.Context, transactionID string) (*paymentDatamodel.Payment, error) {
	query := database.Conn(ctx, r.db)
	if database.InTransaction(ctx) {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var p paymentDatamodel.Payment
	err := query.Where("transaction_id = ?", transactionID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*paymentDatamodel.Payment, error) {
	var payments []*paymentDatamodel.Payment
	err := database.Conn(ctx, r.db).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&payments).Error
	return payments, err
}

// UpdateRefunds touches only the refunds and status columns, and only while
// refunds still equal previous.
func (r *PaymentRepository) UpdateRefunds(ctx context.Context, id int64, previous, refunds []byte, status string) (bool, error) {
	res := database.Conn(ctx, r.db).
		Model(&paymentDatamodel.Payment{}).
		Where("id = ? AND refunds = ?", id, datatypes.JSON(previous)).
		Updates(map[string]interface{}{
			"refunds":    datatypes.JSON(refunds),
			"status":     status,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
