package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeEnrollmentCompleted = "enrollment.completed"
	EventTypePaymentFailed       = "payment.failed"
	EventTypeRequestReviewed     = "payment_request.reviewed"
)

type EnrollmentCompletedEvent struct {
	BaseEvent
	CourseID        int64  `json:"course_id"`
	UserID          int64  `json:"user_id"`
	EnrolledThrough string `json:"enrolled_through"`
	PaymentMethod   string `json:"payment_method,omitempty"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency,omitempty"`
	TransactionID   string `json:"transaction_id,omitempty"`
}

func NewEnrollmentCompletedEvent(courseID, userID int64, enrolledThrough, method string, amount int64, currency, transactionID string) *EnrollmentCompletedEvent {
	return &EnrollmentCompletedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeEnrollmentCompleted,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"course_id":        courseID,
				"user_id":          userID,
				"enrolled_through": enrolledThrough,
				"payment_method":   method,
				"amount":           amount,
				"currency":         currency,
				"transaction_id":   transactionID,
			},
		},
		CourseID:        courseID,
		UserID:          userID,
		EnrolledThrough: enrolledThrough,
		PaymentMethod:   method,
		Amount:          amount,
		Currency:        currency,
		TransactionID:   transactionID,
	}
}

type PaymentFailedEvent struct {
	BaseEvent
	PendingID     int64  `json:"pending_id"`
	CourseID      int64  `json:"course_id"`
	UserID        int64  `json:"user_id"`
	PaymentMethod string `json:"payment_method"`
	ExternalID    string `json:"external_id"`
	Reason        string `json:"reason"`
}

func NewPaymentFailedEvent(pendingID, courseID, userID int64, method, externalID, reason string) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"pending_id":     pendingID,
				"course_id":      courseID,
				"user_id":        userID,
				"payment_method": method,
				"external_id":    externalID,
				"reason":         reason,
			},
		},
		PendingID:     pendingID,
		CourseID:      courseID,
		UserID:        userID,
		PaymentMethod: method,
		ExternalID:    externalID,
		Reason:        reason,
	}
}

type RequestReviewedEvent struct {
	BaseEvent
	RequestID int64  `json:"request_id"`
	CourseID  int64  `json:"course_id"`
	UserID    int64  `json:"user_id"`
	AdminID   int64  `json:"admin_id"`
	Status    string `json:"status"`
	Notes     string `json:"notes,omitempty"`
}

func NewRequestReviewedEvent(requestID, courseID, userID, adminID int64, status, notes string) *RequestReviewedEvent {
	return &RequestReviewedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeRequestReviewed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"request_id": requestID,
				"course_id":  courseID,
				"user_id":    userID,
				"admin_id":   adminID,
				"status":     status,
				"notes":      notes,
			},
		},
		RequestID: requestID,
		CourseID:  courseID,
		UserID:    userID,
		AdminID:   adminID,
		Status:    status,
		Notes:     notes,
	}
}
