package checkout

import (
	"context"
	"net/http"

	errors "github.com/frahmantamala/atelier/internal"
	"github.com/frahmantamala/atelier/internal/transport"
)

type SummaryReader interface {
	Summary(ctx context.Context) (*Summary, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
	Reports SummaryReader
}

func NewHandler(baseHandler *transport.BaseHandler, svc ServiceAPI, reports SummaryReader) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     svc,
		Reports:     reports,
	}
}

// Checkout handles POST /checkout
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	caller, ok := errors.UserFromContext(r.Context())
	if !ok {
		h.HandleError(w, errors.NewUnauthorizedError("authentication required", errors.ErrCodeInvalidToken))
		return
	}

	var req CheckoutRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	resp, err := h.Service.Checkout(r.Context(), caller, &req)
	if err != nil {
		h.Logger.Error("Checkout: service error",
			"course_id", req.CourseID,
			"payment_method", req.PaymentMethod,
			"user_id", caller.ID,
			"error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, resp)
}

// Summary handles GET /admin/checkouts/summary
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Reports.Summary(r.Context())
	if err != nil {
		h.Logger.Error("Summary: report query failed", "error", err)
		h.HandleServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, summary)
}
