package notification

import "time"

const (
	TypeEnrollmentCompleted = "enrollment_completed"
	TypeNewStudent          = "new_student"
	TypeRequestApproved     = "payment_request_approved"
	TypeRequestRejected     = "payment_request_rejected"
	TypePaymentFailed       = "payment_failed"
)

type Notification struct {
	ID        int64      `gorm:"primaryKey"`
	UserID    int64      `gorm:"column:user_id;not null;index"`
	Type      string     `gorm:"column:type;not null"`
	Title     string     `gorm:"column:title;not null"`
	Message   string     `gorm:"column:message;not null"`
	CourseID  *int64     `gorm:"column:course_id"`
	IsRead    bool       `gorm:"column:is_read;not null"`
	ReadAt    *time.Time `gorm:"column:read_at"`
	CreatedAt time.Time  `gorm:"column:created_at"`
}

func (Notification) TableName() string {
	return "notifications"
}
