package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	errors "github.com/frahmantamala/atelier/internal"
	"github.com/frahmantamala/atelier/internal/transport"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type mockService struct {
	gotUnread bool
	gotLimit  int
	gotIDs    []int64
}

func (m *mockService) List(ctx context.Context, userID int64, unreadOnly bool, limit, offset int) (*ListResponse, error) {
	m.gotUnread, m.gotLimit = unreadOnly, limit
	return &ListResponse{Notifications: []*Notification{{ID: 1, Type: "new_student"}}, Unread: 1}, nil
}

func (m *mockService) MarkRead(ctx context.Context, userID int64, ids []int64) (int64, error) {
	m.gotIDs = ids
	return int64(len(ids)), nil
}

var _ = Describe("Handler", func() {
	var (
		svc     *mockService
		handler *Handler
	)

	BeforeEach(func() {
		svc = &mockService{}
		handler = NewHandler(transport.NewBaseHandler(slog.New(slog.NewTextHandler(io.Discard, nil))), svc)
	})

	withCaller := func(req *http.Request) *http.Request {
		return req.WithContext(errors.ContextWithUser(req.Context(), &errors.User{ID: 20}))
	}

	It("should list unread notifications", func() {
		req := withCaller(httptest.NewRequest(http.MethodGet, "/notifications?unread=true&limit=5", nil))
		rec := httptest.NewRecorder()

		handler.List(rec, req)

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(svc.gotUnread).To(BeTrue())
		Expect(svc.gotLimit).To(Equal(5))

		var resp ListResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Unread).To(Equal(int64(1)))
	})

	It("should mark the given ids read", func() {
		req := withCaller(httptest.NewRequest(http.MethodPatch, "/notifications/read", bytes.NewReader([]byte(`{"ids":[3,4]}`))))
		rec := httptest.NewRecorder()

		handler.MarkRead(rec, req)

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(svc.gotIDs).To(Equal([]int64{3, 4}))
		Expect(rec.Body.String()).To(ContainSubstring(`"updated":2`))
	})

	It("should require an authenticated caller", func() {
		rec := httptest.NewRecorder()

		handler.List(rec, httptest.NewRequest(http.MethodGet, "/notifications", nil))

		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})
})
