package checkout

import (
	"context"
	"log/slog"
	"math"
	"time"

	errors "github.com/frahmantamala/atelier/internal"
	enrollmentDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/enrollment"
	"github.com/frahmantamala/atelier/internal/gateway"
)

type IntentCreator interface {
	Provider() string
	CreateIntent(ctx context.Context, req gateway.IntentRequest) (*gateway.Intent, error)
}

type ServiceAPI interface {
	Checkout(ctx context.Context, caller *errors.User, req *CheckoutRequest) (*CheckoutResponse, error)
}

type Service struct {
	tracker    *Tracker
	gateways   map[string]IntentCreator
	pendingTTL time.Duration
	nprRate    float64
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(tracker *Tracker, cfg errors.PaymentConfig, logger *slog.Logger, gateways ...IntentCreator) *Service {
	byProvider := make(map[string]IntentCreator, len(gateways))
	for _, g := range gateways {
		byProvider[g.Provider()] = g
	}

	ttl := cfg.PendingTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}

	return &Service{
		tracker:    tracker,
		gateways:   byProvider,
		pendingTTL: ttl,
		nprRate:    cfg.Khalti.NPRRate,
		logger:     logger,
		now:        time.Now,
	}
}

// Checkout opens a gateway payment for a paid course and records it as a
// pending enrollment.
func (s *Service) Checkout(ctx context.Context, caller *errors.User, req *CheckoutRequest) (*CheckoutResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	gw, ok := s.gateways[req.PaymentMethod]
	if !ok {
		return nil, errors.NewValidationFieldError("payment_method", "payment method is not configured", errors.ErrCodeInvalidMethod)
	}

	c, err := s.tracker.Precheck(ctx, req.CourseID, caller.ID, req.PaymentMethod)
	if err != nil {
		return nil, err
	}

	amountLocal := c.Price
	if req.PaymentMethod == enrollmentDatamodel.MethodKhalti {
		amountLocal = s.toLocal(c.Price)
	}

	intent, err := gw.CreateIntent(ctx, gateway.IntentRequest{
		CourseID:      c.ID,
		UserID:        caller.ID,
		CourseTitle:   c.Title,
		Amount:        c.Price,
		Currency:      c.Currency,
		AmountInLocal: amountLocal,
		BuyerName:     caller.Name,
		BuyerEmail:    caller.Email,
	})
	if err != nil {
		return nil, errors.NewExternalError("payment gateway is unavailable", errors.ErrCodeGatewayFailed, err)
	}

	expiresAt := s.now().UTC().Add(s.pendingTTL)
	if intent.ExpiresAt != nil && intent.ExpiresAt.Before(expiresAt) {
		expiresAt = *intent.ExpiresAt
	}

	pending, err := s.tracker.CreatePending(ctx, PendingInput{
		CourseID:              c.ID,
		UserID:                caller.ID,
		Amount:                c.Price,
		AmountInLocalCurrency: amountLocal,
		Currency:              c.Currency,
		PaymentMethod:         req.PaymentMethod,
		ExternalID:            intent.ExternalID,
		ExpiresAt:             expiresAt,
	})
	if err != nil {
		s.logger.Error("checkout: intent created but pending record failed",
			"external_id", intent.ExternalID,
			"payment_method", req.PaymentMethod,
			"course_id", c.ID,
			"user_id", caller.ID,
			"error", err)
		return nil, err
	}

	return &CheckoutResponse{
		PendingID:     pending.ID,
		CourseID:      c.ID,
		PaymentMethod: req.PaymentMethod,
		Amount:        c.Price,
		Currency:      c.Currency,
		Intent:        intent,
	}, nil
}

// toLocal converts minor units of the course currency to paisa.
func (s *Service) toLocal(amount int64) int64 {
	if s.nprRate <= 0 {
		return amount
	}
	return int64(math.Round(float64(amount) * s.nprRate))
}
