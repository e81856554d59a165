package course

import (
	"net/http"

	errors "github.com/frahmantamala/atelier/internal"
	courseDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/course"
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

// EnrollFree handles POST /courses/{id}/enroll
func (h *Handler) EnrollFree(w http.ResponseWriter, r *http.Request) {
	caller, ok := errors.UserFromContext(r.Context())
	if !ok {
		h.HandleError(w, errors.NewUnauthorizedError("authentication required", errors.ErrCodeInvalidToken))
		return
	}

	courseID, appErr := h.PathInt64(r, "id")
	if appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	if err := h.Service.EnrollFree(r.Context(), courseID, caller.ID); err != nil {
		h.Logger.Error("EnrollFree: service error", "course_id", courseID, "user_id", caller.ID, "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"course_id":        courseID,
		"enrolled_through": courseDatamodel.EnrolledThroughFree,
	})
}
