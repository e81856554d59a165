package approval

import (
	"context"
	"net/http"

	errors "github.com/frahmantamala/atelier/internal"
	"github.com/frahmantamala/atelier/internal/transport"
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

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (*errors.User, bool) {
	caller, ok := errors.UserFromContext(r.Context())
	if !ok {
		h.HandleError(w, errors.NewUnauthorizedError("authentication required", errors.ErrCodeInvalidToken))
		return nil, false
	}
	return caller, true
}

func (h *Handler) page(r *http.Request) (int, int) {
	limit := h.QueryInt(r, "limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	return limit, h.QueryInt(r, "offset", 0)
}

// Submit handles POST /payment-requests
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req SubmitRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	created, err := h.Service.Submit(r.Context(), caller, &req)
	if err != nil {
		h.Logger.Error("Submit: service error", "user_id", caller.ID, "course_id", req.CourseID, "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, created)
}

// ListMine handles GET /payment-requests/me
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	limit, offset := h.page(r)
	requests, err := h.Service.ListMine(r.Context(), caller, limit, offset)
	if err != nil {
		h.Logger.Error("ListMine: service error", "user_id", caller.ID, "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ListResponse{Requests: requests, Limit: limit, Offset: offset})
}

// Cancel handles PATCH /payment-requests/{id}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	requestID, appErr := h.PathInt64(r, "id")
	if appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	cancelled, err := h.Service.Cancel(r.Context(), caller, requestID)
	if err != nil {
		h.Logger.Error("Cancel: service error", "request_id", requestID, "user_id", caller.ID, "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, cancelled)
}

// PresignProofUpload handles POST /payment-requests/proof-uploads
func (h *Handler) PresignProofUpload(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req ProofUploadRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	upload, err := h.Service.PresignProofUpload(r.Context(), caller, &req)
	if err != nil {
		h.Logger.Error("PresignProofUpload: service error", "user_id", caller.ID, "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, upload)
}

// List handles GET /admin/payment-requests
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := h.page(r)
	status := r.URL.Query().Get("status")

	requests, err := h.Service.List(r.Context(), status, limit, offset)
	if err != nil {
		h.Logger.Error("List: service error", "status", status, "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ListResponse{Requests: requests, Limit: limit, Offset: offset})
}

// Approve handles PATCH /admin/payment-requests/{id}/approve
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.Service.Approve, "Approve")
}

// Reject handles PATCH /admin/payment-requests/{id}/reject
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.Service.Reject, "Reject")
}

type reviewFunc func(ctx context.Context, admin *errors.User, requestID int64, notes string) (*PaymentRequest, error)

func (h *Handler) review(w http.ResponseWriter, r *http.Request, fn reviewFunc, op string) {
	admin, ok := h.caller(w, r)
	if !ok {
		return
	}

	requestID, appErr := h.PathInt64(r, "id")
	if appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	var req ReviewRequest
	if r.ContentLength != 0 {
		if appErr := h.DecodeJSON(r, &req); appErr != nil {
			h.HandleError(w, appErr)
			return
		}
	}
	if appErr := req.Validate(); appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	reviewed, err := fn(r.Context(), admin, requestID, req.Notes)
	if err != nil {
		h.Logger.Error(op+": service error", "request_id", requestID, "admin_id", admin.ID, "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info(op+": payment request reviewed", "request_id", requestID, "admin_id", admin.ID, "status", reviewed.Status)
	h.WriteJSON(w, http.StatusOK, reviewed)
}
