package notification

import (
	"net/http"

	errors "github.com/frahmantamala/atelier/internal"
	"github.com/frahmantamala/atelier/internal/transport"
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

// List handles GET /notifications
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	caller, ok := errors.UserFromContext(r.Context())
	if !ok {
		h.HandleError(w, errors.NewUnauthorizedError("authentication required", errors.ErrCodeInvalidToken))
		return
	}

	limit := h.QueryInt(r, "limit", 20)
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"

	resp, err := h.Service.List(r.Context(), caller.ID, unreadOnly, limit, h.QueryInt(r, "offset", 0))
	if err != nil {
		h.Logger.Error("List: service error", "user_id", caller.ID, "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

// MarkRead handles PATCH /notifications/read
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	caller, ok := errors.UserFromContext(r.Context())
	if !ok {
		h.HandleError(w, errors.NewUnauthorizedError("authentication required", errors.ErrCodeInvalidToken))
		return
	}

	var req MarkReadRequest
	if r.ContentLength != 0 {
		if appErr := h.DecodeJSON(r, &req); appErr != nil {
			h.HandleError(w, appErr)
			return
		}
	}

	updated, err := h.Service.MarkRead(r.Context(), caller.ID, req.IDs)
	if err != nil {
		h.Logger.Error("MarkRead: service error", "user_id", caller.ID, "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, MarkReadResponse{Updated: updated})
}
