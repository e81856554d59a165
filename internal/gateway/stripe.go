package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/atelier/internal"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/paymentintent"
	"github.com/stripe/stripe-go/v80/webhook"
)

const StripeSignatureHeader = "Stripe-Signature"

type StripeClient struct {
	webhookSecret string
	tolerance     time.Duration
	logger        *slog.Logger
}

func NewStripeClient(cfg internal.StripeConfig, logger *slog.Logger) *StripeClient {
	stripe.Key = cfg.SecretKey

	tolerance := cfg.WebhookTolerance
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &StripeClient{
		webhookSecret: cfg.WebhookSecret,
		tolerance:     tolerance,
		logger:        logger,
	}
}

func (c *StripeClient) Provider() string {
	return ProviderStripe
}

func (c *StripeClient) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(req.Currency),
		Metadata: req.metadata().toMap(),
	}
	params.Context = ctx
	params.Description = stripe.String(req.CourseTitle)

	pi, err := paymentintent.New(params)
	if err != nil {
		c.logger.Error("stripe: failed to create payment intent",
			"course_id", req.CourseID,
			"user_id", req.UserID,
			"error", err)
		return nil, fmt.Errorf("stripe create payment intent: %w", err)
	}

	c.logger.Info("stripe: payment intent created",
		"payment_intent_id", pi.ID,
		"course_id", req.CourseID,
		"user_id", req.UserID,
		"amount", req.Amount)

	return &Intent{
		Provider:     ProviderStripe,
		ExternalID:   pi.ID,
		ClientSecret: pi.ClientSecret,
	}, nil
}

// CancelIntent cancels an abandoned intent so the client secret handed out at
// checkout can no longer be confirmed.
func (c *StripeClient) CancelIntent(ctx context.Context, externalID string) error {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned)),
	}
	params.Context = ctx

	if _, err := paymentintent.Cancel(externalID, params); err != nil {
		c.logger.Warn("stripe: failed to cancel payment intent",
			"payment_intent_id", externalID,
			"error", err)
		return fmt.Errorf("stripe cancel payment intent: %w", err)
	}

	c.logger.Info("stripe: payment intent canceled", "payment_intent_id", externalID)
	return nil
}

// ParseEvent verifies the Stripe-Signature header against the raw body and
// maps the event onto an Event. Verification failures return ErrInvalidSignature.
func (c *StripeClient) ParseEvent(payload []byte, signature string) (*Event, error) {
	stripeEvent, err := webhook.ConstructEventWithOptions(payload, signature, c.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                c.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		c.logger.Warn("stripe: webhook signature verification failed", "error", err)
		return nil, internal.ErrInvalidSignature.WithCause(err)
	}

	ev := &Event{
		Provider:    ProviderStripe,
		EventID:     stripeEvent.ID,
		GatewayType: string(stripeEvent.Type),
		Kind:        stripeKind(stripeEvent.Type),
		Raw:         payload,
	}
	if !ev.Handled() {
		return ev, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(stripeEvent.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("stripe: failed to decode payment intent: %w", err)
	}

	ev.ExternalID = pi.ID
	ev.Amount = pi.Amount
	ev.Currency = string(pi.Currency)
	ev.Metadata = metadataFromMap(pi.Metadata)
	if pi.LastPaymentError != nil {
		ev.FailureReason = pi.LastPaymentError.Msg
	}
	if ev.Kind == KindCanceled && ev.FailureReason == "" {
		ev.FailureReason = string(pi.CancellationReason)
	}
	return ev, nil
}

func stripeKind(t stripe.EventType) EventKind {
	switch t {
	case stripe.EventTypePaymentIntentSucceeded:
		return KindSucceeded
	case stripe.EventTypePaymentIntentPaymentFailed:
		return KindFailed
	case stripe.EventTypePaymentIntentCanceled:
		return KindCanceled
	default:
		return KindUnhandled
	}
}
