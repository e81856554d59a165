package gateway_test

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/frahmantamala/atelier/internal"
	"github.com/frahmantamala/atelier/internal/gateway"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type capturedRequest struct {
	Path          string
	Authorization string
	Body          map[string]interface{}
}

var _ = Describe("KhaltiClient", func() {
	var (
		ctx      context.Context
		server   *httptest.Server
		client   *gateway.KhaltiClient
		mu       sync.Mutex
		captured []capturedRequest
		respond  func(w http.ResponseWriter, r *http.Request)
	)

	BeforeEach(func() {
		ctx = context.Background()
		captured = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body map[string]interface{}
			_ = json.NewDecoder(r.Body).Decode(&body)
			mu.Lock()
			captured = append(captured, capturedRequest{Path: r.URL.Path, Authorization: r.Header.Get("Authorization"), Body: body})
			mu.Unlock()
			w.Header().Set("Content-Type", "application/json")
			respond(w, r)
		}))

		client = gateway.NewKhaltiClient(internal.KhaltiConfig{
			BaseURL:    server.URL + "/",
			SecretKey:  "live_secret_key",
			ReturnURL:  "https://atelier.test/api/v1/webhooks/khalti",
			WebsiteURL: "https://atelier.test",
		}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("CreateIntent", func() {
		It("should initiate a payment in paisa and return the pidx", func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"pidx":"bZQLD9wRVWo4CdESSfuSsB","payment_url":"https://pay.khalti.com/?pidx=bZQLD9wRVWo4CdESSfuSsB","expires_at":"2030-01-01T10:00:00+05:45"}`))
			}

			intent, err := client.CreateIntent(ctx, gateway.IntentRequest{
				CourseID:      100,
				UserID:        20,
				CourseTitle:   "Watercolor",
				Amount:        4900,
				Currency:      "usd",
				AmountInLocal: 651700,
				BuyerName:     "Sam",
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(intent.Provider).To(Equal(gateway.ProviderKhalti))
			Expect(intent.ExternalID).To(Equal("bZQLD9wRVWo4CdESSfuSsB"))
			Expect(intent.PaymentURL).To(ContainSubstring("pay.khalti.com"))
			Expect(intent.ExpiresAt).NotTo(BeNil())

			Expect(captured).To(HaveLen(1))
			Expect(captured[0].Path).To(Equal("/epayment/initiate/"))
			Expect(captured[0].Authorization).To(Equal("Key live_secret_key"))
			Expect(captured[0].Body["amount"]).To(BeNumerically("==", 651700))
			Expect(captured[0].Body["purchase_order_id"]).To(Equal("course-100-user-20"))
			Expect(captured[0].Body["purchase_order_name"]).To(Equal("Watercolor"))
			Expect(captured[0].Body["return_url"]).To(Equal("https://atelier.test/api/v1/webhooks/khalti"))
		})

		It("should surface an API rejection as an error", func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"detail":"Amount should be greater than Rs. 10","error_key":"validation_error"}`))
			}

			intent, err := client.CreateIntent(ctx, gateway.IntentRequest{CourseID: 1, UserID: 2, AmountInLocal: 100})

			Expect(intent).To(BeNil())
			Expect(err).To(MatchError(ContainSubstring("Amount should be greater than Rs. 10")))
		})
	})

	Describe("VerifyCallback", func() {
		lookupReturns := func(status string) {
			respond = func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"pidx":"pidx_1","status":"` + status + `","total_amount":651700,"transaction_id":"txn_9","fee":0,"refunded":false}`))
			}
		}

		It("should trust the looked-up status over the callback", func() {
			lookupReturns(gateway.KhaltiStatusCompleted)

			ev, err := client.VerifyCallback(ctx, gateway.KhaltiCallback{
				Pidx:            "pidx_1",
				Status:          "User canceled",
				PurchaseOrderID: "course-100-user-20",
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Kind).To(Equal(gateway.KindSucceeded))
			Expect(ev.EventID).To(Equal("pidx_1:completed"))
			Expect(ev.ExternalID).To(Equal("pidx_1"))
			Expect(ev.Amount).To(Equal(int64(651700)))
			Expect(ev.Metadata.CourseID).To(Equal(int64(100)))
			Expect(ev.Metadata.UserID).To(Equal(int64(20)))
			Expect(captured[0].Path).To(Equal("/epayment/lookup/"))
			Expect(captured[0].Body["pidx"]).To(Equal("pidx_1"))
		})

		It("should key a cancellation separately from a completion", func() {
			lookupReturns(gateway.KhaltiStatusCanceled)

			ev, err := client.VerifyCallback(ctx, gateway.KhaltiCallback{Pidx: "pidx_1"})

			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Kind).To(Equal(gateway.KindCanceled))
			Expect(ev.EventID).To(Equal("pidx_1:user_canceled"))
			Expect(ev.FailureReason).To(Equal(gateway.KhaltiStatusCanceled))
		})

		It("should leave metadata empty when the purchase order id is not ours", func() {
			lookupReturns(gateway.KhaltiStatusCompleted)

			ev, err := client.VerifyCallback(ctx, gateway.KhaltiCallback{Pidx: "pidx_1", PurchaseOrderID: "order-7"})

			Expect(err).NotTo(HaveOccurred())
			Expect(ev.Metadata.Present()).To(BeFalse())
		})

		It("should reject a callback without a pidx without calling Khalti", func() {
			_, err := client.VerifyCallback(ctx, gateway.KhaltiCallback{Status: "Completed"})

			Expect(stdErrors.Is(err, internal.ErrInvalidSignature)).To(BeTrue())
			Expect(captured).To(BeEmpty())
		})

		It("should reject a pidx the lookup does not know", func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"detail":"Not found.","error_key":"validation_error"}`))
			}

			_, err := client.VerifyCallback(ctx, gateway.KhaltiCallback{Pidx: "pidx_forged"})

			Expect(stdErrors.Is(err, internal.ErrInvalidSignature)).To(BeTrue())
		})

		It("should reject a lookup answering for a different pidx", func() {
			lookupReturns(gateway.KhaltiStatusCompleted)

			_, err := client.VerifyCallback(ctx, gateway.KhaltiCallback{Pidx: "pidx_other"})

			Expect(stdErrors.Is(err, internal.ErrInvalidSignature)).To(BeTrue())
		})
	})
})
