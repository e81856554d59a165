package payment

import (
	errors "github.com/frahmantamala/atelier/internal"
	"github.com/frahmantamala/atelier/internal/core/common/validation"
)

type RefundRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

func (r *RefundRequest) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("amount", r.Amount).Required().Positive(errors.ErrCodeInvalidAmount)
	v.Field("reason", r.Reason).Required().MaxLength(500)
	return v.Validate()
}

type ListResponse struct {
	Payments []*Payment `json:"payments"`
	Limit    int        `json:"limit"`
	Offset   int        `json:"offset"`
}
