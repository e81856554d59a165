package payment

import (
	"net/http"
	"strings"

	errors "github.com/frahmantamala/atelier/internal"
	"github.com/frahmantamala/atelier/internal/transport"
	"github.com/go-chi/chi"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, svc ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     svc,
	}
}

// ListMine handles GET /payments/me
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	caller, ok := errors.UserFromContext(r.Context())
	if !ok {
		h.HandleError(w, errors.NewUnauthorizedError("authentication required", errors.ErrCodeInvalidToken))
		return
	}

	limit := h.QueryInt(r, "limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := h.QueryInt(r, "offset", 0)

	payments, err := h.Service.ListByUser(r.Context(), caller.ID, limit, offset)
	if err != nil {
		h.Logger.Error("ListMine: service error", "user_id", caller.ID, "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ListResponse{Payments: payments, Limit: limit, Offset: offset})
}

// AppendRefund handles POST /admin/payments/{transactionId}/refunds
func (h *Handler) AppendRefund(w http.ResponseWriter, r *http.Request) {
	caller, ok := errors.UserFromContext(r.Context())
	if !ok {
		h.HandleError(w, errors.NewUnauthorizedError("authentication required", errors.ErrCodeInvalidToken))
		return
	}

	transactionID := strings.TrimSpace(chi.URLParam(r, "transactionId"))
	if transactionID == "" {
		h.HandleError(w, errors.NewValidationFieldError("transactionId", "transaction id is required", errors.ErrCodeInvalidID))
		return
	}

	var req RefundRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	updated, err := h.Service.AppendRefund(r.Context(), transactionID, caller.ID, &req)
	if err != nil {
		h.Logger.Error("AppendRefund: service error", "transaction_id", transactionID, "admin_id", caller.ID, "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("AppendRefund: refund recorded", "transaction_id", transactionID, "admin_id", caller.ID, "amount", req.Amount)
	h.WriteJSON(w, http.StatusCreated, updated)
}
