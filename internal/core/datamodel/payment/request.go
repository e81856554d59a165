package payment

import "time"

const (
	RequestStatusPending   = "pending"
	RequestStatusApproved  = "approved"
	RequestStatusRejected  = "rejected"
	RequestStatusCancelled = "cancelled"
)

const (
	MethodBankTransfer  = "bank_transfer"
	MethodDigitalWallet = "digital_wallet"
	MethodCash          = "cash"
	MethodOther         = "other"
)

// PaymentRequest is a manually submitted payment awaiting admin review.
type PaymentRequest struct {
	ID              int64      `gorm:"primaryKey"`
	UserID          int64      `gorm:"column:user_id;not null;index:idx_payment_requests_open,unique,where:status = 'pending'"`
	CourseID        int64      `gorm:"column:course_id;not null;index:idx_payment_requests_open,unique,where:status = 'pending'"`
	Amount          int64      `gorm:"column:amount;not null"`
	Currency        string     `gorm:"column:currency;not null"`
	PaymentMethod   string     `gorm:"column:payment_method;not null"`
	TransactionID   string     `gorm:"column:transaction_id"`
	ProofURL        *string    `gorm:"column:proof_url"`
	ProofFilename   *string    `gorm:"column:proof_filename"`
	ProofUploadedAt *time.Time `gorm:"column:proof_uploaded_at"`
	Status          string     `gorm:"column:status;not null;index"`
	AdminNotes      *string    `gorm:"column:admin_notes"`
	ApprovedBy      *int64     `gorm:"column:approved_by"`
	ApprovedAt      *time.Time `gorm:"column:approved_at"`
	CreatedAt       time.Time  `gorm:"column:created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at"`
}

func (PaymentRequest) TableName() string {
	return "payment_requests"
}

func (r *PaymentRequest) IsTerminal() bool {
	return r.Status != RequestStatusPending
}
