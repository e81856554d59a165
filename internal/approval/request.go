package approval

import (
	"time"

	paymentDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/payment"
)

type Proof struct {
	URL        string     `json:"url"`
	Filename   string     `json:"filename"`
	UploadedAt *time.Time `json:"uploaded_at,omitempty"`
}

type PaymentRequest struct {
	ID            int64      `json:"id"`
	UserID        int64      `json:"user_id"`
	CourseID      int64      `json:"course_id"`
	Amount        int64      `json:"amount"`
	Currency      string     `json:"currency"`
	PaymentMethod string     `json:"payment_method"`
	TransactionID string     `json:"transaction_id,omitempty"`
	Proof         *Proof     `json:"proof,omitempty"`
	Status        string     `json:"status"`
	AdminNotes    *string    `json:"admin_notes,omitempty"`
	ApprovedBy    *int64     `json:"approved_by,omitempty"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func FromDataModel(r *paymentDatamodel.PaymentRequest) *PaymentRequest {
	out := &PaymentRequest{
		ID:            r.ID,
		UserID:        r.UserID,
		CourseID:      r.CourseID,
		Amount:        r.Amount,
		Currency:      r.Currency,
		PaymentMethod: r.PaymentMethod,
		TransactionID: r.TransactionID,
		Status:        r.Status,
		AdminNotes:    r.AdminNotes,
		ApprovedBy:    r.ApprovedBy,
		ApprovedAt:    r.ApprovedAt,
		CreatedAt:     r.CreatedAt,
	}
	if r.ProofURL != nil {
		out.Proof = &Proof{URL: *r.ProofURL, UploadedAt: r.ProofUploadedAt}
		if r.ProofFilename != nil {
			out.Proof.Filename = *r.ProofFilename
		}
	}
	return out
}

func FromDataModels(rows []*paymentDatamodel.PaymentRequest) []*PaymentRequest {
	out := make([]*PaymentRequest, 0, len(rows))
	for _, r := range rows {
		out = append(out, FromDataModel(r))
	}
	return out
}
