package gateway

import (
	"fmt"
	"strconv"
	"time"
)

const (
	ProviderStripe = "stripe"
	ProviderKhalti = "khalti"
)

// EventKind is the closed set of gateway outcomes the dispatcher acts on.
type EventKind int

const (
	KindUnhandled EventKind = iota
	KindSucceeded
	KindFailed
	KindCanceled
)

func (k EventKind) String() string {
	switch k {
	case KindSucceeded:
		return "succeeded"
	case KindFailed:
		return "failed"
	case KindCanceled:
		return "canceled"
	default:
		return "unhandled"
	}
}

const (
	metaCourseID   = "course_id"
	metaUserID     = "user_id"
	metaBuyerName  = "buyer_name"
	metaBuyerEmail = "buyer_email"
)

// Metadata is what checkout attached to the gateway payment.
type Metadata struct {
	CourseID   int64
	UserID     int64
	BuyerName  string
	BuyerEmail string
}

func (m Metadata) Present() bool {
	return m.CourseID > 0 && m.UserID > 0
}

func (m Metadata) toMap() map[string]string {
	return map[string]string{
		metaCourseID:   strconv.FormatInt(m.CourseID, 10),
		metaUserID:     strconv.FormatInt(m.UserID, 10),
		metaBuyerName:  m.BuyerName,
		metaBuyerEmail: m.BuyerEmail,
	}
}

func metadataFromMap(m map[string]string) Metadata {
	courseID, _ := strconv.ParseInt(m[metaCourseID], 10, 64)
	userID, _ := strconv.ParseInt(m[metaUserID], 10, 64)
	return Metadata{
		CourseID:   courseID,
		UserID:     userID,
		BuyerName:  m[metaBuyerName],
		BuyerEmail: m[metaBuyerEmail],
	}
}

// Event is a verified gateway notification.
type Event struct {
	Provider      string
	EventID       string
	GatewayType   string
	Kind          EventKind
	ExternalID    string
	Metadata      Metadata
	Amount        int64
	Currency      string
	FailureReason string
	Raw           []byte
}

func (e *Event) Handled() bool {
	return e.Kind != KindUnhandled
}

type IntentRequest struct {
	CourseID      int64
	UserID        int64
	CourseTitle   string
	Amount        int64
	Currency      string
	AmountInLocal int64
	BuyerName     string
	BuyerEmail    string
}

func (r IntentRequest) metadata() Metadata {
	return Metadata{
		CourseID:   r.CourseID,
		UserID:     r.UserID,
		BuyerName:  r.BuyerName,
		BuyerEmail: r.BuyerEmail,
	}
}

// purchaseOrderID is the merchant reference sent to gateways that need one.
func (r IntentRequest) purchaseOrderID() string {
	return fmt.Sprintf("course-%d-user-%d", r.CourseID, r.UserID)
}

// Intent is the gateway's answer to a checkout. ExternalID is the value the
// gateway will echo back in its webhook.
type Intent struct {
	Provider     string     `json:"provider"`
	ExternalID   string     `json:"external_id"`
	ClientSecret string     `json:"client_secret,omitempty"`
	PaymentURL   string     `json:"payment_url,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}
