package checkout

import (
	"time"

	errors "github.com/frahmantamala/atelier/internal"
	"github.com/frahmantamala/atelier/internal/core/common/validation"
	enrollmentDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/enrollment"
	"github.com/frahmantamala/atelier/internal/gateway"
)

type CheckoutRequest struct {
	CourseID      int64  `json:"course_id"`
	PaymentMethod string `json:"payment_method"`
}

func (r *CheckoutRequest) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("course_id", r.CourseID).Required().Positive(errors.ErrCodeInvalidID)
	v.Field("payment_method", r.PaymentMethod).Required().
		OneOf(errors.ErrCodeInvalidMethod, enrollmentDatamodel.MethodStripe, enrollmentDatamodel.MethodKhalti)
	return v.Validate()
}

type CheckoutResponse struct {
	PendingID     int64           `json:"pending_id"`
	CourseID      int64           `json:"course_id"`
	PaymentMethod string          `json:"payment_method"`
	Amount        int64           `json:"amount"`
	Currency      string          `json:"currency"`
	Intent        *gateway.Intent `json:"intent"`
}

type StatusCount struct {
	PaymentMethod string `db:"payment_method" json:"payment_method"`
	Status        string `db:"status" json:"status"`
	Count         int64  `db:"count" json:"count"`
	Amount        int64  `db:"amount" json:"amount"`
}

type StaleRow struct {
	ID            int64     `db:"id" json:"id"`
	ExternalID    string    `db:"external_id" json:"external_id"`
	CourseID      int64     `db:"course_id" json:"course_id"`
	UserID        int64     `db:"user_id" json:"user_id"`
	PaymentMethod string    `db:"payment_method" json:"payment_method"`
	ExpiresAt     time.Time `db:"expires_at" json:"expires_at"`
}

type Summary struct {
	Counts       []StatusCount `json:"counts"`
	StalePending []StaleRow    `json:"stale_pending"`
}
