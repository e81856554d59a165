package enrollment

import "time"

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusExpired   = "expired"
)

const (
	MethodStripe = "stripe"
	MethodKhalti = "khalti"
)

// PendingEnrollment correlates a gateway payment with a (user, course) pair
// until the gateway reports the outcome. Exactly one of PaymentIntentID and
// Pidx is set.
type PendingEnrollment struct {
	ID                    int64      `gorm:"primaryKey"`
	PaymentIntentID       *string    `gorm:"column:payment_intent_id;uniqueIndex"`
	Pidx                  *string    `gorm:"column:pidx;uniqueIndex"`
	CourseID              int64      `gorm:"column:course_id;not null;index:idx_pending_enrollments_open,unique,where:status = 'pending'"`
	UserID                int64      `gorm:"column:user_id;not null;index:idx_pending_enrollments_open,unique,where:status = 'pending'"`
	Amount                int64      `gorm:"column:amount;not null"`
	AmountInLocalCurrency int64      `gorm:"column:amount_in_local_currency;not null"`
	Currency              string     `gorm:"column:currency;not null"`
	PaymentMethod         string     `gorm:"column:payment_method;not null;index:idx_pending_enrollments_open,unique,where:status = 'pending'"`
	Status                string     `gorm:"column:status;not null;index"`
	FailureReason         *string    `gorm:"column:failure_reason"`
	ExpiresAt             time.Time  `gorm:"column:expires_at;not null;index"`
	CompletedAt           *time.Time `gorm:"column:completed_at"`
	CreatedAt             time.Time  `gorm:"column:created_at"`
	UpdatedAt             time.Time  `gorm:"column:updated_at"`
}

func (PendingEnrollment) TableName() string {
	return "pending_enrollments"
}

func (p *PendingEnrollment) ExternalID() string {
	if p.PaymentIntentID != nil {
		return *p.PaymentIntentID
	}
	if p.Pidx != nil {
		return *p.Pidx
	}
	return ""
}

func (p *PendingEnrollment) IsExpiredAt(now time.Time) bool {
	return !p.ExpiresAt.After(now)
}

// ExternalIDColumn maps a payment method to the column holding its correlation id.
func ExternalIDColumn(method string) (string, bool) {
	switch method {
	case MethodStripe:
		return "payment_intent_id", true
	case MethodKhalti:
		return "pidx", true
	default:
		return "", false
	}
}
