package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	errors "github.com/frahmantamala/atelier/internal"
	paymentDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/payment"
	"github.com/frahmantamala/atelier/internal/core/database"
)

type RepositoryAPI interface {
	Create(ctx context.Context, p *paymentDatamodel.Payment) error
	GetByTransactionID(ctx context.Context, transactionID string) (*paymentDatamodel.Payment, error)
	GetByTransactionIDForUpdate(ctx context.Context, transactionID string) (*paymentDatamodel.Payment, error)
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*paymentDatamodel.Payment, error)
	// UpdateRefunds reports false when the stored refunds no longer equal previous.
	UpdateRefunds(ctx context.Context, id int64, previous, refunds []byte, status string) (bool, error)
}

type ServiceAPI interface {
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*Payment, error)
	AppendRefund(ctx context.Context, transactionID string, adminID int64, req *RefundRequest) (*Payment, error)
}

// Ledger is the append-only payment record. Refund entries are the only
// mutation after a row is written.
type Ledger struct {
	repo       RepositoryAPI
	transactor database.Transactor
	logger     *slog.Logger
	now        func() time.Time
}

func NewLedger(repo RepositoryAPI, transactor database.Transactor, logger *slog.Logger) *Ledger {
	return &Ledger{
		repo:       repo,
		transactor: transactor,
		logger:     logger,
		now:        time.Now,
	}
}

func (l *Ledger) Record(ctx context.Context, entry LedgerEntry) (*Payment, error) {
	meta, err := json.Marshal(entry.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payment metadata: %w", err)
	}

	record := &paymentDatamodel.Payment{
		UserID:        entry.UserID,
		CourseID:      entry.CourseID,
		Amount:        entry.Amount,
		Currency:      entry.Currency,
		PaymentMethod: entry.PaymentMethod,
		Status:        paymentDatamodel.StatusSucceeded,
		TransactionID: entry.TransactionID,
		Metadata:      meta,
		Refunds:       []byte("[]"),
	}
	if err := l.repo.Create(ctx, record); err != nil {
		l.logger.Error("failed to record payment", "transaction_id", entry.TransactionID, "error", err)
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}

	l.logger.Info("payment recorded",
		"payment_id", record.ID,
		"transaction_id", record.TransactionID,
		"user_id", record.UserID,
		"course_id", record.CourseID,
		"amount", record.Amount)
	return FromDataModel(record), nil
}

func (l *Ledger) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*Payment, error) {
	rows, err := l.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	out := make([]*Payment, 0, len(rows))
	for _, r := range rows {
		out = append(out, FromDataModel(r))
	}
	return out, nil
}

// AppendRefund adds a refund entry. The refunded total may not exceed the
// paid amount. The row is locked for the read and the write only lands if
// the refunds it was computed from are still current.
func (l *Ledger) AppendRefund(ctx context.Context, transactionID string, adminID int64, req *RefundRequest) (*Payment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var updated *Payment
	err := l.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		record, err := l.repo.GetByTransactionIDForUpdate(ctx, transactionID)
		if err != nil {
			return fmt.Errorf("failed to load payment: %w", err)
		}
		if record == nil {
			return errors.ErrPaymentNotFound
		}

		refunds := decodeRefunds(record.Refunds)
		total := refundedTotal(refunds) + req.Amount
		if total > record.Amount {
			return errors.ErrRefundTooLarge
		}

		refunds = append(refunds, paymentDatamodel.Refund{
			Amount:     req.Amount,
			Reason:     req.Reason,
			RefundedBy: adminID,
			RefundedAt: l.now().UTC(),
		})
		raw, err := json.Marshal(refunds)
		if err != nil {
			return fmt.Errorf("failed to encode refunds: %w", err)
		}

		status := statusAfterRefunds(record.Amount, total)
		applied, err := l.repo.UpdateRefunds(ctx, record.ID, record.Refunds, raw, status)
		if err != nil {
			return fmt.Errorf("failed to append refund: %w", err)
		}
		if !applied {
			l.logger.Warn("refund lost a concurrent update, not applied",
				"transaction_id", transactionID,
				"amount", req.Amount,
				"admin_id", adminID)
			return errors.ErrRefundConflict
		}

		record.Refunds = raw
		record.Status = status
		updated = FromDataModel(record)
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("refund appended",
		"transaction_id", transactionID,
		"amount", req.Amount,
		"refunded_total", updated.RefundedTotal,
		"admin_id", adminID)
	return updated, nil
}
