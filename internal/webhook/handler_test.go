package webhook_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/frahmantamala/atelier/internal"
	"github.com/frahmantamala/atelier/internal/checkout"
	checkoutPostgres "github.com/frahmantamala/atelier/internal/checkout/postgres"
	courseDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/course"
	enrollmentDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/enrollment"
	paymentDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/payment"
	webhookDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/webhook"
	"github.com/frahmantamala/atelier/internal/core/database"
	"github.com/frahmantamala/atelier/internal/core/database/dbtest"
	"github.com/frahmantamala/atelier/internal/core/events"
	"github.com/frahmantamala/atelier/internal/course"
	coursePostgres "github.com/frahmantamala/atelier/internal/course/postgres"
	"github.com/frahmantamala/atelier/internal/enrollment"
	"github.com/frahmantamala/atelier/internal/gateway"
	"github.com/frahmantamala/atelier/internal/payment"
	paymentPostgres "github.com/frahmantamala/atelier/internal/payment/postgres"
	"github.com/frahmantamala/atelier/internal/progress"
	progressPostgres "github.com/frahmantamala/atelier/internal/progress/postgres"
	"github.com/frahmantamala/atelier/internal/transport"
	"github.com/frahmantamala/atelier/internal/user"
	userPostgres "github.com/frahmantamala/atelier/internal/user/postgres"
	"github.com/frahmantamala/atelier/internal/webhook"
	webhookPostgres "github.com/frahmantamala/atelier/internal/webhook/postgres"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	stripeWebhook "github.com/stripe/stripe-go/v80/webhook"
	"gorm.io/gorm"
)

const webhookSecret = "whsec_test_secret"

type nopPublisher struct{}

func (nopPublisher) Publish(ctx context.Context, event events.Event) error { return nil }

func stripeEventBody(eventID, eventType, intentID string, metadata map[string]string) []byte {
	body, err := json.Marshal(map[string]interface{}{
		"id":          eventID,
		"object":      "event",
		"type":        eventType,
		"api_version": "2024-06-20",
		"created":     time.Now().Unix(),
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":       intentID,
				"object":   "payment_intent",
				"amount":   4900,
				"currency": "usd",
				"status":   "succeeded",
				"metadata": metadata,
			},
		},
	})
	Expect(err).NotTo(HaveOccurred())
	return body
}

func sign(body []byte, secret string) string {
	return stripeWebhook.GenerateTestSignedPayload(&stripeWebhook.UnsignedPayload{
		Payload:   body,
		Secret:    secret,
		Timestamp: time.Now(),
	}).Header
}

var _ = Describe("Handler", func() {
	var (
		ctx     context.Context
		db      *gorm.DB
		fx      *dbtest.Fixture
		logger  *slog.Logger
		tracker *checkout.Tracker
		handler *webhook.Handler
		khalti  *httptest.Server
		lookup  func(w http.ResponseWriter, r *http.Request)
	)

	meta := func() map[string]string {
		return map[string]string{
			"course_id": fmt.Sprint(fx.PaidCourse.ID),
			"user_id":   fmt.Sprint(fx.Student.ID),
		}
	}

	openCheckout := func(method, externalID string) *checkout.Pending {
		p, err := tracker.CreatePending(ctx, checkout.PendingInput{
			CourseID:      fx.PaidCourse.ID,
			UserID:        fx.Student.ID,
			Amount:        fx.PaidCourse.Price,
			Currency:      fx.PaidCourse.Currency,
			PaymentMethod: method,
			ExternalID:    externalID,
			ExpiresAt:     time.Now().UTC().Add(30 * time.Minute),
		})
		Expect(err).NotTo(HaveOccurred())
		return p
	}

	postStripe := func(body []byte, signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(body))
		req.Header.Set(gateway.StripeSignatureHeader, signature)
		rec := httptest.NewRecorder()
		handler.Stripe(rec, req)
		return rec
	}

	decodeAck := func(rec *httptest.ResponseRecorder) webhook.Ack {
		var ack webhook.Ack
		Expect(json.Unmarshal(rec.Body.Bytes(), &ack)).To(Succeed())
		return ack
	}

	rows := func(model interface{}) int64 {
		var n int64
		Expect(db.Model(model).Count(&n).Error).To(Succeed())
		return n
	}

	pendingStatus := func(id int64) string {
		var p enrollmentDatamodel.PendingEnrollment
		Expect(db.First(&p, id).Error).To(Succeed())
		return p.Status
	}

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))

		db, err = dbtest.Open()
		Expect(err).NotTo(HaveOccurred())
		fx, err = dbtest.Seed(db)
		Expect(err).NotTo(HaveOccurred())

		lookup = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"Not found.","error_key":"validation_error"}`))
		}
		khalti = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lookup(w, r)
		}))

		transactor := database.NewTransactor(db)
		courseRepo := coursePostgres.NewCourseRepository(db)
		pendingRepo := checkoutPostgres.NewPendingRepository(db)
		initializer := progress.NewInitializer(progressPostgres.NewProgressRepository(db), courseRepo, logger)
		enroller := course.NewEnroller(courseRepo, initializer, transactor, logger)
		courseSvc := course.NewService(courseRepo, enroller, transactor, nopPublisher{}, logger)
		tracker = checkout.NewTracker(pendingRepo, courseSvc, enroller, transactor, logger)
		ledger := payment.NewLedger(paymentPostgres.NewPaymentRepository(db), transactor, logger)
		committer := enrollment.NewCommitter(pendingRepo, courseSvc, user.NewService(userPostgres.NewUserRepository(db)),
			enroller, ledger, nopPublisher{}, transactor, logger)
		dispatcher := webhook.NewDispatcher(webhookPostgres.NewEventRepository(db), committer, transactor, logger)

		stripeClient := gateway.NewStripeClient(internal.StripeConfig{SecretKey: "sk_test", WebhookSecret: webhookSecret}, logger)
		khaltiClient := gateway.NewKhaltiClient(internal.KhaltiConfig{BaseURL: khalti.URL, SecretKey: "test_key"}, logger)
		handler = webhook.NewHandler(transport.NewBaseHandler(logger), stripeClient, khaltiClient, dispatcher)
	})

	AfterEach(func() {
		khalti.Close()
		Expect(dbtest.Close(db)).To(Succeed())
	})

	Describe("Stripe", func() {
		It("should enroll the buyer on a verified payment_intent.succeeded", func() {
			pending := openCheckout(enrollmentDatamodel.MethodStripe, "pi_123")
			body := stripeEventBody("evt_1", "payment_intent.succeeded", "pi_123", meta())

			rec := postStripe(body, sign(body, webhookSecret))

			Expect(rec.Code).To(Equal(http.StatusOK))
			ack := decodeAck(rec)
			Expect(ack.Received).To(BeTrue())
			Expect(ack.EventID).To(Equal("evt_1"))
			Expect(ack.Outcome).To(Equal(string(enrollment.OutcomeEnrolled)))
			Expect(pendingStatus(pending.ID)).To(Equal(enrollmentDatamodel.StatusCompleted))
			Expect(rows(&courseDatamodel.Student{})).To(Equal(int64(1)))
			Expect(rows(&webhookDatamodel.Event{})).To(Equal(int64(1)))
		})

		It("should acknowledge a redelivered event without touching the roster", func() {
			openCheckout(enrollmentDatamodel.MethodStripe, "pi_123")
			body := stripeEventBody("evt_1", "payment_intent.succeeded", "pi_123", meta())

			Expect(postStripe(body, sign(body, webhookSecret)).Code).To(Equal(http.StatusOK))
			rec := postStripe(body, sign(body, webhookSecret))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decodeAck(rec).Outcome).To(Equal(webhook.OutcomeDuplicate))
			Expect(rows(&courseDatamodel.Student{})).To(Equal(int64(1)))
			Expect(rows(&paymentDatamodel.Payment{})).To(Equal(int64(1)))
		})

		It("should treat a second event for a settled intent as already processed", func() {
			openCheckout(enrollmentDatamodel.MethodStripe, "pi_123")
			first := stripeEventBody("evt_1", "payment_intent.succeeded", "pi_123", meta())
			second := stripeEventBody("evt_2", "payment_intent.succeeded", "pi_123", meta())

			Expect(postStripe(first, sign(first, webhookSecret)).Code).To(Equal(http.StatusOK))
			rec := postStripe(second, sign(second, webhookSecret))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decodeAck(rec).Outcome).To(Equal(string(enrollment.OutcomeAlreadyProcessed)))
			Expect(rows(&courseDatamodel.Student{})).To(Equal(int64(1)))
			Expect(rows(&webhookDatamodel.Event{})).To(Equal(int64(2)))
		})

		It("should reject a bad signature with 400 and write nothing", func() {
			// Given
			pending := openCheckout(enrollmentDatamodel.MethodStripe, "pi_123")
			body := stripeEventBody("evt_1", "payment_intent.succeeded", "pi_123", meta())

			// When
			rec := postStripe(body, sign(body, "whsec_someone_else"))

			// Then
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(ContainSubstring("invalid signature"))
			Expect(pendingStatus(pending.ID)).To(Equal(enrollmentDatamodel.StatusPending))
			Expect(rows(&courseDatamodel.Student{})).To(BeZero())
			Expect(rows(&webhookDatamodel.Event{})).To(BeZero())
			Expect(rows(&paymentDatamodel.Payment{})).To(BeZero())
		})

		It("should reject a missing signature header", func() {
			body := stripeEventBody("evt_1", "payment_intent.succeeded", "pi_123", meta())

			rec := postStripe(body, "")

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rows(&webhookDatamodel.Event{})).To(BeZero())
		})

		It("should acknowledge event types it does not handle", func() {
			body := stripeEventBody("evt_9", "customer.created", "cus_1", nil)

			rec := postStripe(body, sign(body, webhookSecret))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decodeAck(rec).Outcome).To(Equal(webhook.OutcomeIgnored))
			Expect(rows(&webhookDatamodel.Event{})).To(BeZero())
		})

		It("should skip a succeeded event that carries no course or user metadata", func() {
			pending := openCheckout(enrollmentDatamodel.MethodStripe, "pi_123")
			body := stripeEventBody("evt_1", "payment_intent.succeeded", "pi_123", map[string]string{})

			rec := postStripe(body, sign(body, webhookSecret))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decodeAck(rec).Outcome).To(Equal(webhook.OutcomeSkipped))
			Expect(pendingStatus(pending.ID)).To(Equal(enrollmentDatamodel.StatusPending))
			Expect(rows(&webhookDatamodel.Event{})).To(BeZero())
		})

		It("should mark the pending record failed on payment_intent.payment_failed", func() {
			pending := openCheckout(enrollmentDatamodel.MethodStripe, "pi_123")
			body := stripeEventBody("evt_3", "payment_intent.payment_failed", "pi_123", meta())

			rec := postStripe(body, sign(body, webhookSecret))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decodeAck(rec).Outcome).To(Equal(string(enrollment.OutcomeFailed)))
			Expect(pendingStatus(pending.ID)).To(Equal(enrollmentDatamodel.StatusFailed))
			Expect(rows(&courseDatamodel.Student{})).To(BeZero())
		})

		It("should answer 500 when the event contradicts the pending record", func() {
			pending := openCheckout(enrollmentDatamodel.MethodStripe, "pi_123")
			body := stripeEventBody("evt_1", "payment_intent.succeeded", "pi_123", map[string]string{
				"course_id": fmt.Sprint(fx.FreeCourse.ID),
				"user_id":   fmt.Sprint(fx.Student.ID),
			})

			rec := postStripe(body, sign(body, webhookSecret))

			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			Expect(pendingStatus(pending.ID)).To(Equal(enrollmentDatamodel.StatusPending))
			Expect(rows(&webhookDatamodel.Event{})).To(BeZero())
		})

		It("should answer 404 when stripe is not configured", func() {
			handler = webhook.NewHandler(transport.NewBaseHandler(logger), nil, nil, nil)
			body := stripeEventBody("evt_1", "payment_intent.succeeded", "pi_123", meta())

			rec := postStripe(body, sign(body, webhookSecret))

			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("Khalti", func() {
		callback := func(method string, pidx string) *httptest.ResponseRecorder {
			purchaseOrder := fmt.Sprintf("course-%d-user-%d", fx.PaidCourse.ID, fx.Student.ID)
			var req *http.Request
			if method == http.MethodGet {
				req = httptest.NewRequest(http.MethodGet,
					"/api/v1/webhooks/khalti?pidx="+pidx+"&status=Completed&purchase_order_id="+purchaseOrder, nil)
			} else {
				body, _ := json.Marshal(gateway.KhaltiCallback{Pidx: pidx, Status: "Completed", PurchaseOrderID: purchaseOrder})
				req = httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/khalti", bytes.NewReader(body))
			}
			rec := httptest.NewRecorder()
			handler.Khalti(rec, req)
			return rec
		}

		lookupReturns := func(status string) {
			lookup = func(w http.ResponseWriter, r *http.Request) {
				var in map[string]string
				_ = json.NewDecoder(r.Body).Decode(&in)
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(gateway.KhaltiLookup{
					Pidx:          in["pidx"],
					Status:        status,
					TotalAmount:   651700,
					TransactionID: "txn_1",
				})
			}
		}

		It("should enroll when the lookup confirms the payment completed", func() {
			lookupReturns(gateway.KhaltiStatusCompleted)
			pending := openCheckout(enrollmentDatamodel.MethodKhalti, "pidx_1")

			rec := callback(http.MethodGet, "pidx_1")

			Expect(rec.Code).To(Equal(http.StatusOK))
			ack := decodeAck(rec)
			Expect(ack.EventID).To(Equal("pidx_1:completed"))
			Expect(ack.Outcome).To(Equal(string(enrollment.OutcomeEnrolled)))
			Expect(pendingStatus(pending.ID)).To(Equal(enrollmentDatamodel.StatusCompleted))
			Expect(rows(&courseDatamodel.Student{})).To(Equal(int64(1)))
		})

		It("should treat the POST form of a repeated callback as a duplicate", func() {
			lookupReturns(gateway.KhaltiStatusCompleted)
			openCheckout(enrollmentDatamodel.MethodKhalti, "pidx_1")

			Expect(callback(http.MethodGet, "pidx_1").Code).To(Equal(http.StatusOK))
			rec := callback(http.MethodPost, "pidx_1")

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decodeAck(rec).Outcome).To(Equal(webhook.OutcomeDuplicate))
			Expect(rows(&courseDatamodel.Student{})).To(Equal(int64(1)))
		})

		It("should reject a callback the lookup cannot confirm", func() {
			pending := openCheckout(enrollmentDatamodel.MethodKhalti, "pidx_forged")

			rec := callback(http.MethodGet, "pidx_forged")

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(pendingStatus(pending.ID)).To(Equal(enrollmentDatamodel.StatusPending))
			Expect(rows(&courseDatamodel.Student{})).To(BeZero())
			Expect(rows(&webhookDatamodel.Event{})).To(BeZero())
		})

		It("should mark the checkout failed when the buyer canceled", func() {
			lookupReturns(gateway.KhaltiStatusCanceled)
			pending := openCheckout(enrollmentDatamodel.MethodKhalti, "pidx_2")

			rec := callback(http.MethodGet, "pidx_2")

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decodeAck(rec).Outcome).To(Equal(string(enrollment.OutcomeFailed)))
			Expect(pendingStatus(pending.ID)).To(Equal(enrollmentDatamodel.StatusFailed))
		})

		It("should acknowledge a payment that is still pending without acting", func() {
			lookupReturns(gateway.KhaltiStatusPending)
			pending := openCheckout(enrollmentDatamodel.MethodKhalti, "pidx_3")

			rec := callback(http.MethodGet, "pidx_3")

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decodeAck(rec).Outcome).To(Equal(webhook.OutcomeIgnored))
			Expect(pendingStatus(pending.ID)).To(Equal(enrollmentDatamodel.StatusPending))
		})
	})
})
