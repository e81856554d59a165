package webhook

import (
	"context"
	stdErrors "errors"
	"io"
	"net/http"

	errors "github.com/frahmantamala/atelier/internal"
	"github.com/frahmantamala/atelier/internal/gateway"
	"github.com/frahmantamala/atelier/internal/transport"
)

const maxWebhookBytes = 65536

type StripeVerifier interface {
	ParseEvent(payload []byte, signature string) (*gateway.Event, error)
}

type KhaltiVerifier interface {
	VerifyCallback(ctx context.Context, cb gateway.KhaltiCallback) (*gateway.Event, error)
}

type EventDispatcher interface {
	Dispatch(ctx context.Context, ev *gateway.Event) (*Ack, error)
}

type Handler struct {
	*transport.BaseHandler
	stripe     StripeVerifier
	khalti     KhaltiVerifier
	dispatcher EventDispatcher
}

// NewHandler accepts nil verifiers for gateways that are not configured.
func NewHandler(baseHandler *transport.BaseHandler, stripe StripeVerifier, khalti KhaltiVerifier, dispatcher EventDispatcher) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		stripe:      stripe,
		khalti:      khalti,
		dispatcher:  dispatcher,
	}
}

// Stripe handles POST /webhooks/stripe
func (h *Handler) Stripe(w http.ResponseWriter, r *http.Request) {
	if h.stripe == nil {
		h.WriteErrorResponse(w, http.StatusNotFound, "stripe is not configured")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		h.Logger.Warn("stripe webhook: failed to read body", "error", err)
		h.WriteErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ev, err := h.stripe.ParseEvent(payload, r.Header.Get(gateway.StripeSignatureHeader))
	if err != nil {
		h.reject(w, "stripe", err)
		return
	}

	h.dispatch(w, r, ev)
}

// Khalti handles GET and POST /webhooks/khalti. GET is the return URL the
// buyer is redirected to; POST carries the same fields as JSON.
func (h *Handler) Khalti(w http.ResponseWriter, r *http.Request) {
	if h.khalti == nil {
		h.WriteErrorResponse(w, http.StatusNotFound, "khalti is not configured")
		return
	}

	var cb gateway.KhaltiCallback
	if r.Method == http.MethodPost {
		r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBytes)
		if appErr := h.DecodeJSON(r, &cb); appErr != nil {
			h.HandleError(w, appErr)
			return
		}
	} else {
		q := r.URL.Query()
		cb = gateway.KhaltiCallback{
			Pidx:            q.Get("pidx"),
			Status:          q.Get("status"),
			TransactionID:   q.Get("transaction_id"),
			PurchaseOrderID: q.Get("purchase_order_id"),
		}
	}

	ev, err := h.khalti.VerifyCallback(r.Context(), cb)
	if err != nil {
		h.reject(w, "khalti", err)
		return
	}

	h.dispatch(w, r, ev)
}

func (h *Handler) reject(w http.ResponseWriter, provider string, err error) {
	if stdErrors.Is(err, errors.ErrInvalidSignature) {
		h.Logger.Warn("webhook rejected: verification failed", "provider", provider, "error", err)
		h.WriteErrorResponse(w, http.StatusBadRequest, "invalid signature")
		return
	}
	h.Logger.Error("webhook rejected: malformed event", "provider", provider, "error", err)
	h.WriteErrorResponse(w, http.StatusBadRequest, "invalid event payload")
}

// dispatch answers 500 on any failure so the gateway redelivers.
func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request, ev *gateway.Event) {
	ack, err := h.dispatcher.Dispatch(r.Context(), ev)
	if err != nil {
		h.Logger.Error("webhook processing failed",
			"provider", ev.Provider,
			"event_id", ev.EventID,
			"external_id", ev.ExternalID,
			"error", err)
		h.WriteErrorResponse(w, http.StatusInternalServerError, "failed to process webhook")
		return
	}
	h.WriteJSON(w, http.StatusOK, ack)
}
