package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/frahmantamala/atelier/internal"
	"github.com/go-resty/resty/v2"
)

const (
	KhaltiStatusCompleted  = "Completed"
	KhaltiStatusPending    = "Pending"
	KhaltiStatusInitiated  = "Initiated"
	KhaltiStatusRefunded   = "Refunded"
	KhaltiStatusExpired    = "Expired"
	KhaltiStatusCanceled   = "User canceled"
	khaltiInitiatePath     = "/epayment/initiate/"
	khaltiLookupPath       = "/epayment/lookup/"
	khaltiAuthHeaderPrefix = "Key "
)

type khaltiCustomer struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type khaltiInitiateRequest struct {
	ReturnURL         string          `json:"return_url"`
	WebsiteURL        string          `json:"website_url"`
	Amount            int64           `json:"amount"`
	PurchaseOrderID   string          `json:"purchase_order_id"`
	PurchaseOrderName string          `json:"purchase_order_name"`
	CustomerInfo      *khaltiCustomer `json:"customer_info,omitempty"`
}

type khaltiInitiateResponse struct {
	Pidx       string `json:"pidx"`
	PaymentURL string `json:"payment_url"`
	ExpiresAt  string `json:"expires_at"`
}

type KhaltiLookup struct {
	Pidx          string `json:"pidx"`
	Status        string `json:"status"`
	TotalAmount   int64  `json:"total_amount"`
	TransactionID string `json:"transaction_id"`
	Fee           int64  `json:"fee"`
	Refunded      bool   `json:"refunded"`
}

type khaltiError struct {
	Detail    string `json:"detail"`
	ErrorKey  string `json:"error_key"`
	Pidx      any    `json:"pidx"`
	ReturnURL any    `json:"return_url"`
}

// KhaltiClient talks to the Khalti ePayment API. Khalti callbacks are not
// signed, so every callback is confirmed with a server-side lookup.
type KhaltiClient struct {
	http   *resty.Client
	cfg    internal.KhaltiConfig
	logger *slog.Logger
}

func NewKhaltiClient(cfg internal.KhaltiConfig, logger *slog.Logger) *KhaltiClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Authorization", khaltiAuthHeaderPrefix+cfg.SecretKey).
		SetHeader("Content-Type", "application/json")

	return &KhaltiClient{
		http:   client,
		cfg:    cfg,
		logger: logger,
	}
}

func (c *KhaltiClient) Provider() string {
	return ProviderKhalti
}

// CreateIntent initiates a Khalti payment. AmountInLocal is in paisa.
func (c *KhaltiClient) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	body := khaltiInitiateRequest{
		ReturnURL:         c.cfg.ReturnURL,
		WebsiteURL:        c.cfg.WebsiteURL,
		Amount:            req.AmountInLocal,
		PurchaseOrderID:   req.purchaseOrderID(),
		PurchaseOrderName: req.CourseTitle,
	}
	if req.BuyerName != "" || req.BuyerEmail != "" {
		body.CustomerInfo = &khaltiCustomer{Name: req.BuyerName, Email: req.BuyerEmail}
	}

	var out khaltiInitiateResponse
	var apiErr khaltiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&apiErr).
		Post(khaltiInitiatePath)
	if err != nil {
		c.logger.Error("khalti: initiate request failed", "course_id", req.CourseID, "user_id", req.UserID, "error", err)
		return nil, fmt.Errorf("khalti initiate: %w", err)
	}
	if resp.IsError() {
		c.logger.Error("khalti: initiate rejected",
			"status", resp.StatusCode(),
			"detail", apiErr.Detail,
			"error_key", apiErr.ErrorKey,
			"course_id", req.CourseID)
		return nil, fmt.Errorf("khalti initiate: status %d: %s", resp.StatusCode(), apiErr.Detail)
	}
	if out.Pidx == "" {
		return nil, fmt.Errorf("khalti initiate: empty pidx in response")
	}

	intent := &Intent{
		Provider:   ProviderKhalti,
		ExternalID: out.Pidx,
		PaymentURL: out.PaymentURL,
	}
	if expires, err := time.Parse(time.RFC3339, out.ExpiresAt); err == nil {
		intent.ExpiresAt = &expires
	}

	c.logger.Info("khalti: payment initiated",
		"pidx", out.Pidx,
		"course_id", req.CourseID,
		"user_id", req.UserID,
		"amount_paisa", req.AmountInLocal)
	return intent, nil
}

func (c *KhaltiClient) Lookup(ctx context.Context, pidx string) (*KhaltiLookup, error) {
	var out KhaltiLookup
	var apiErr khaltiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"pidx": pidx}).
		SetResult(&out).
		SetError(&apiErr).
		Post(khaltiLookupPath)
	if err != nil {
		return nil, fmt.Errorf("khalti lookup: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("khalti lookup: status %d: %s", resp.StatusCode(), apiErr.Detail)
	}
	if out.Pidx == "" {
		out.Pidx = pidx
	}
	return &out, nil
}

// KhaltiCallback carries the parameters Khalti appends to the return URL.
type KhaltiCallback struct {
	Pidx            string `json:"pidx"`
	Status          string `json:"status"`
	TransactionID   string `json:"transaction_id"`
	PurchaseOrderID string `json:"purchase_order_id"`
}

// VerifyCallback authenticates a callback pidx by looking it up server-side.
// Only the looked-up status is trusted. Any lookup failure is reported as
// ErrInvalidSignature so the caller performs no writes.
func (c *KhaltiClient) VerifyCallback(ctx context.Context, cb KhaltiCallback) (*Event, error) {
	pidx := strings.TrimSpace(cb.Pidx)
	if pidx == "" {
		return nil, internal.ErrInvalidSignature
	}

	lookup, err := c.Lookup(ctx, pidx)
	if err != nil {
		c.logger.Warn("khalti: callback lookup failed", "pidx", pidx, "error", err)
		return nil, internal.ErrInvalidSignature.WithCause(err)
	}
	if lookup.Pidx != pidx {
		c.logger.Warn("khalti: lookup returned a different pidx", "pidx", pidx, "lookup_pidx", lookup.Pidx)
		return nil, internal.ErrInvalidSignature
	}

	ev := &Event{
		Provider:    ProviderKhalti,
		EventID:     khaltiEventID(lookup),
		GatewayType: lookup.Status,
		Kind:        khaltiKind(lookup.Status),
		ExternalID:  lookup.Pidx,
		Metadata:    parsePurchaseOrderID(cb.PurchaseOrderID),
		Amount:      lookup.TotalAmount,
		Currency:    "npr",
	}
	if ev.Kind == KindFailed || ev.Kind == KindCanceled {
		ev.FailureReason = lookup.Status
	}
	if raw, err := json.Marshal(lookup); err == nil {
		ev.Raw = raw
	}
	return ev, nil
}

// khaltiEventID keys the event log on pidx plus status, since Khalti sends no
// event id of its own and one pidx moves through several statuses.
func khaltiEventID(l *KhaltiLookup) string {
	return l.Pidx + ":" + strings.ToLower(strings.ReplaceAll(l.Status, " ", "_"))
}

// parsePurchaseOrderID reverses IntentRequest.purchaseOrderID. Unparseable
// input yields empty metadata.
func parsePurchaseOrderID(id string) Metadata {
	var m Metadata
	if _, err := fmt.Sscanf(id, "course-%d-user-%d", &m.CourseID, &m.UserID); err != nil {
		return Metadata{}
	}
	return m
}

func khaltiKind(status string) EventKind {
	switch status {
	case KhaltiStatusCompleted:
		return KindSucceeded
	case KhaltiStatusCanceled:
		return KindCanceled
	case KhaltiStatusExpired:
		return KindFailed
	default:
		return KindUnhandled
	}
}
