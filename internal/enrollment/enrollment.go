package enrollment

import (
	"fmt"
)

type Outcome string

const (
	OutcomeEnrolled         Outcome = "enrolled"
	OutcomeAlreadyEnrolled  Outcome = "already_enrolled"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeStale            Outcome = "stale"
	OutcomeFailed           Outcome = "failed"
)

// GatewayPayment identifies a gateway payment and what the gateway claims
// about it. Zero CourseID/UserID means the gateway supplied no metadata.
type GatewayPayment struct {
	Method     string
	ExternalID string
	CourseID   int64
	UserID     int64
	BuyerName  string
	BuyerEmail string
}

type Result struct {
	Outcome       Outcome `json:"outcome"`
	PendingID     int64   `json:"pending_id,omitempty"`
	CourseID      int64   `json:"course_id,omitempty"`
	UserID        int64   `json:"user_id,omitempty"`
	TransactionID string  `json:"transaction_id,omitempty"`
}

// IntegrityError reports referenced data that is missing or contradicts the
// pending record. It is never retried in-process.
type IntegrityError struct {
	PendingID int64
	Reason    string
	Err       error
}

func (e *IntegrityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data integrity fault on pending enrollment %d: %s: %v", e.PendingID, e.Reason, e.Err)
	}
	return fmt.Sprintf("data integrity fault on pending enrollment %d: %s", e.PendingID, e.Reason)
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}
