package payment_test

import (
	"bytes"
	"context"
	stdErrors "errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	errors "github.com/frahmantamala/atelier/internal"
	paymentDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/payment"
	"github.com/frahmantamala/atelier/internal/core/database"
	"github.com/frahmantamala/atelier/internal/core/database/dbtest"
	"github.com/frahmantamala/atelier/internal/payment"
	paymentPostgres "github.com/frahmantamala/atelier/internal/payment/postgres"
	"github.com/frahmantamala/atelier/internal/transport"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

var _ = Describe("Ledger", func() {
	var (
		ctx    context.Context
		db     *gorm.DB
		logger *slog.Logger
		ledger *payment.Ledger
	)

	record := func(transactionID string, userID int64) *payment.Payment {
		p, err := ledger.Record(ctx, payment.LedgerEntry{
			UserID:        userID,
			CourseID:      100,
			Amount:        4900,
			Currency:      "usd",
			PaymentMethod: "stripe",
			TransactionID: transactionID,
			Metadata:      paymentDatamodel.Metadata{CourseTitle: "Watercolor", BuyerName: "Sam", BuyerEmail: "student@example.com"},
		})
		Expect(err).NotTo(HaveOccurred())
		return p
	}

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		db, err = dbtest.Open()
		Expect(err).NotTo(HaveOccurred())
		ledger = payment.NewLedger(paymentPostgres.NewPaymentRepository(db), database.NewTransactor(db), logger)
	})

	AfterEach(func() {
		Expect(dbtest.Close(db)).To(Succeed())
	})

	Describe("Record", func() {
		It("should write a succeeded row with metadata and no refunds", func() {
			p := record("pi_1", 20)

			Expect(p.Status).To(Equal(paymentDatamodel.StatusSucceeded))
			Expect(p.Metadata.CourseTitle).To(Equal("Watercolor"))
			Expect(p.Refunds).To(BeEmpty())
			Expect(p.RefundedTotal).To(BeZero())
		})

		It("should refuse a duplicate transaction id", func() {
			record("pi_1", 20)

			_, err := ledger.Record(ctx, payment.LedgerEntry{UserID: 20, CourseID: 100, Amount: 4900, Currency: "usd", PaymentMethod: "stripe", TransactionID: "pi_1"})

			Expect(stdErrors.Is(err, gorm.ErrDuplicatedKey)).To(BeTrue())
		})
	})

	Describe("ListByUser", func() {
		It("should list only the caller's payments", func() {
			record("pi_1", 20)
			record("pi_2", 20)
			record("pi_3", 30)

			mine, err := ledger.ListByUser(ctx, 20, 10, 0)

			Expect(err).NotTo(HaveOccurred())
			Expect(mine).To(HaveLen(2))
		})
	})

	Describe("AppendRefund", func() {
		It("should move through partial and full refund", func() {
			record("pi_1", 20)

			partial, err := ledger.AppendRefund(ctx, "pi_1", 30, &payment.RefundRequest{Amount: 900, Reason: "late start"})
			Expect(err).NotTo(HaveOccurred())
			Expect(partial.Status).To(Equal(paymentDatamodel.StatusPartially))
			Expect(partial.RefundedTotal).To(Equal(int64(900)))

			full, err := ledger.AppendRefund(ctx, "pi_1", 30, &payment.RefundRequest{Amount: 4000, Reason: "course withdrawn"})
			Expect(err).NotTo(HaveOccurred())
			Expect(full.Status).To(Equal(paymentDatamodel.StatusRefunded))
			Expect(full.Refunds).To(HaveLen(2))
			Expect(full.Refunds[1].RefundedBy).To(Equal(int64(30)))
		})

		It("should refuse refunds beyond the paid amount", func() {
			record("pi_1", 20)

			_, err := ledger.AppendRefund(ctx, "pi_1", 30, &payment.RefundRequest{Amount: 5000, Reason: "oops"})

			Expect(stdErrors.Is(err, errors.ErrRefundTooLarge)).To(BeTrue())
		})

		It("should report an unknown transaction", func() {
			_, err := ledger.AppendRefund(ctx, "pi_missing", 30, &payment.RefundRequest{Amount: 100, Reason: "x"})

			Expect(stdErrors.Is(err, errors.ErrPaymentNotFound)).To(BeTrue())
		})

		It("should validate the refund request", func() {
			_, err := ledger.AppendRefund(ctx, "pi_1", 30, &payment.RefundRequest{Amount: 0})

			appErr, ok := errors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(errors.ErrorTypeValidation))
		})

		It("should only write refunds over the version they were computed from", func() {
			p := record("pi_1", 20)
			repo := paymentPostgres.NewPaymentRepository(db)

			applied, err := repo.UpdateRefunds(ctx, p.ID, []byte(`[{"amount":100}]`), []byte(`[{"amount":200}]`), paymentDatamodel.StatusPartially)
			Expect(err).NotTo(HaveOccurred())
			Expect(applied).To(BeFalse())

			applied, err = repo.UpdateRefunds(ctx, p.ID, []byte("[]"), []byte(`[{"amount":200}]`), paymentDatamodel.StatusPartially)
			Expect(err).NotTo(HaveOccurred())
			Expect(applied).To(BeTrue())

			stored, err := repo.GetByTransactionID(ctx, "pi_1")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(stored.Refunds)).To(Equal(`[{"amount":200}]`))
		})
	})

	Describe("Handler", func() {
		It("should record a refund through the admin route", func() {
			record("pi_1", 20)
			h := payment.NewHandler(transport.NewBaseHandler(logger), ledger)
			router := chi.NewRouter()
			router.Post("/admin/payments/{transactionId}/refunds", h.AppendRefund)

			req := httptest.NewRequest(http.MethodPost, "/admin/payments/pi_1/refunds", bytes.NewReader([]byte(`{"amount":4900,"reason":"duplicate purchase"}`)))
			req = req.WithContext(errors.ContextWithUser(req.Context(), &errors.User{ID: 30, Admin: true}))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusCreated))
			Expect(rec.Body.String()).To(ContainSubstring(`"status":"refunded"`))
		})
	})
})
