package checkout

import (
	"time"

	enrollmentDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/enrollment"
)

type Pending struct {
	ID                    int64      `json:"id"`
	ExternalID            string     `json:"external_id"`
	CourseID              int64      `json:"course_id"`
	UserID                int64      `json:"user_id"`
	Amount                int64      `json:"amount"`
	AmountInLocalCurrency int64      `json:"amount_in_local_currency"`
	Currency              string     `json:"currency"`
	PaymentMethod         string     `json:"payment_method"`
	Status                string     `json:"status"`
	ExpiresAt             time.Time  `json:"expires_at"`
	CompletedAt           *time.Time `json:"completed_at,omitempty"`
}

func FromDataModel(p *enrollmentDatamodel.PendingEnrollment) *Pending {
	return &Pending{
		ID:                    p.ID,
		ExternalID:            p.ExternalID(),
		CourseID:              p.CourseID,
		UserID:                p.UserID,
		Amount:                p.Amount,
		AmountInLocalCurrency: p.AmountInLocalCurrency,
		Currency:              p.Currency,
		PaymentMethod:         p.PaymentMethod,
		Status:                p.Status,
		ExpiresAt:             p.ExpiresAt,
		CompletedAt:           p.CompletedAt,
	}
}

// PendingInput is what the tracker needs to open a pending enrollment.
type PendingInput struct {
	CourseID              int64
	UserID                int64
	Amount                int64
	AmountInLocalCurrency int64
	Currency              string
	PaymentMethod         string
	ExternalID            string
	ExpiresAt             time.Time
}

func (in PendingInput) toDataModel() *enrollmentDatamodel.PendingEnrollment {
	p := &enrollmentDatamodel.PendingEnrollment{
		CourseID:              in.CourseID,
		UserID:                in.UserID,
		Amount:                in.Amount,
		AmountInLocalCurrency: in.AmountInLocalCurrency,
		Currency:              in.Currency,
		PaymentMethod:         in.PaymentMethod,
		Status:                enrollmentDatamodel.StatusPending,
		ExpiresAt:             in.ExpiresAt,
	}
	externalID := in.ExternalID
	switch in.PaymentMethod {
	case enrollmentDatamodel.MethodStripe:
		p.PaymentIntentID = &externalID
	case enrollmentDatamodel.MethodKhalti:
		p.Pidx = &externalID
	}
	return p
}
