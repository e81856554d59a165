package approval

import (
	"time"

	errors "github.com/frahmantamala/atelier/internal"
	"github.com/frahmantamala/atelier/internal/core/common/validation"
	paymentDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/payment"
)

type SubmitRequest struct {
	CourseID      int64  `json:"course_id"`
	PaymentMethod string `json:"payment_method"`
	TransactionID string `json:"transaction_id"`
	ProofURL      string `json:"proof_url"`
	ProofFilename string `json:"proof_filename"`
}

func (r *SubmitRequest) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("course_id", r.CourseID).Required().Positive(errors.ErrCodeInvalidID)
	v.Field("payment_method", r.PaymentMethod).Required().OneOf(errors.ErrCodeInvalidMethod,
		paymentDatamodel.MethodBankTransfer,
		paymentDatamodel.MethodDigitalWallet,
		paymentDatamodel.MethodCash,
		paymentDatamodel.MethodOther)
	v.Field("transaction_id", r.TransactionID).MaxLength(255)
	v.Field("proof_url", r.ProofURL).MaxLength(2048)
	v.Field("proof_filename", r.ProofFilename).MaxLength(255)
	return v.Validate()
}

type ReviewRequest struct {
	Notes string `json:"notes"`
}

func (r *ReviewRequest) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("notes", r.Notes).MaxLength(1000)
	return v.Validate()
}

type ProofUploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

func (r *ProofUploadRequest) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("filename", r.Filename).Required().MaxLength(255)
	v.Field("content_type", r.ContentType).Required().OneOf(errors.ErrCodeValidationFailed,
		"image/png", "image/jpeg", "image/webp", "application/pdf")
	return v.Validate()
}

type ProofUpload struct {
	UploadURL string    `json:"upload_url"`
	Method    string    `json:"method"`
	Key       string    `json:"key"`
	ProofURL  string    `json:"proof_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ListResponse struct {
	Requests []*PaymentRequest `json:"requests"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}
