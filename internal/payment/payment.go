package payment

import (
	"encoding/json"
	"time"

	paymentDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/payment"
)

type Payment struct {
	ID            int64                     `json:"id"`
	UserID        int64                     `json:"user_id"`
	CourseID      int64                     `json:"course_id"`
	Amount        int64                     `json:"amount"`
	Currency      string                    `json:"currency"`
	PaymentMethod string                    `json:"payment_method"`
	Status        string                    `json:"status"`
	TransactionID string                    `json:"transaction_id"`
	Metadata      paymentDatamodel.Metadata `json:"metadata"`
	Refunds       []paymentDatamodel.Refund `json:"refunds"`
	RefundedTotal int64                     `json:"refunded_total"`
	CreatedAt     time.Time                 `json:"created_at"`
}

func FromDataModel(p *paymentDatamodel.Payment) *Payment {
	out := &Payment{
		ID:            p.ID,
		UserID:        p.UserID,
		CourseID:      p.CourseID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		PaymentMethod: p.PaymentMethod,
		Status:        p.Status,
		TransactionID: p.TransactionID,
		Refunds:       decodeRefunds(p.Refunds),
		CreatedAt:     p.CreatedAt,
	}
	if len(p.Metadata) > 0 {
		_ = json.Unmarshal(p.Metadata, &out.Metadata)
	}
	out.RefundedTotal = refundedTotal(out.Refunds)
	return out
}

// LedgerEntry is the audit record written when an enrollment commits.
type LedgerEntry struct {
	UserID        int64
	CourseID      int64
	Amount        int64
	Currency      string
	PaymentMethod string
	TransactionID string
	Metadata      paymentDatamodel.Metadata
}

func decodeRefunds(raw []byte) []paymentDatamodel.Refund {
	refunds := []paymentDatamodel.Refund{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &refunds)
	}
	return refunds
}

func refundedTotal(refunds []paymentDatamodel.Refund) int64 {
	var total int64
	for _, r := range refunds {
		total += r.Amount
	}
	return total
}

// statusAfterRefunds derives the ledger status from the refunded total.
func statusAfterRefunds(amount, refunded int64) string {
	switch {
	case refunded <= 0:
		return paymentDatamodel.StatusSucceeded
	case refunded >= amount:
		return paymentDatamodel.StatusRefunded
	default:
		return paymentDatamodel.StatusPartially
	}
}
