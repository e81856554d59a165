package payment

import (
	"time"

	"gorm.io/datatypes"
)

const (
	StatusSucceeded = "succeeded"
	StatusRefunded  = "refunded"
	StatusPartially = "partially_refunded"
)

// Payment is the append-only ledger row written when an enrollment commits.
// Refunds is the only column updated afterwards.
type Payment struct {
	ID            int64          `gorm:"primaryKey"`
	UserID        int64          `gorm:"column:user_id;not null;index"`
	CourseID      int64          `gorm:"column:course_id;not null;index"`
	Amount        int64          `gorm:"column:amount;not null"`
	Currency      string         `gorm:"column:currency;not null"`
	PaymentMethod string         `gorm:"column:payment_method;not null"`
	Status        string         `gorm:"column:status;not null"`
	TransactionID string         `gorm:"column:transaction_id;not null;uniqueIndex"`
	Metadata      datatypes.JSON `gorm:"column:metadata"`
	Refunds       datatypes.JSON `gorm:"column:refunds"`
	CreatedAt     time.Time      `gorm:"column:created_at"`
	UpdatedAt     time.Time      `gorm:"column:updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}

type Metadata struct {
	CourseTitle string `json:"course_title"`
	BuyerName   string `json:"buyer_name"`
	BuyerEmail  string `json:"buyer_email"`
	PendingID   int64  `json:"pending_id,omitempty"`
}

type Refund struct {
	Amount     int64     `json:"amount"`
	Reason     string    `json:"reason"`
	RefundedBy int64     `json:"refunded_by"`
	RefundedAt time.Time `json:"refunded_at"`
}
