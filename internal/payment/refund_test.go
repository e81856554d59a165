package payment_test

import (
	"context"
	stdErrors "errors"
	"io"
	"log/slog"
	"sync"

	errors "github.com/frahmantamala/atelier/internal"
	paymentDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/payment"
	"github.com/frahmantamala/atelier/internal/payment"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type passthroughTransactor struct{}

func (passthroughTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// racingRepo hands every reader the same snapshot and releases them only
// once all expected readers have read, so the writes always interleave.
type racingRepo struct {
	mu      sync.Mutex
	row     paymentDatamodel.Payment
	readers int
	arrived int
	release chan struct{}
	writes  int
}

func newRacingRepo(readers int) *racingRepo {
	return &racingRepo{
		row: paymentDatamodel.Payment{
			ID:            1,
			Amount:        4900,
			Currency:      "usd",
			Status:        paymentDatamodel.StatusSucceeded,
			TransactionID: "pi_1",
			Refunds:       []byte("[]"),
		},
		readers: readers,
		release: make(chan struct{}),
	}
}

func (r *racingRepo) Create(ctx context.Context, p *paymentDatamodel.Payment) error {
	return stdErrors.New("not supported")
}

func (r *racingRepo) GetByTransactionID(ctx context.Context, transactionID string) (*paymentDatamodel.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := r.row
	row.Refunds = append([]byte(nil), r.row.Refunds...)
	return &row, nil
}

func (r *racingRepo) GetByTransactionIDForUpdate(ctx context.Context, transactionID string) (*paymentDatamodel.Payment, error) {
	row, _ := r.GetByTransactionID(ctx, transactionID)

	r.mu.Lock()
	r.arrived++
	if r.arrived == r.readers {
		close(r.release)
	}
	r.mu.Unlock()

	<-r.release
	return row, nil
}

func (r *racingRepo) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]*paymentDatamodel.Payment, error) {
	return nil, nil
}

func (r *racingRepo) UpdateRefunds(ctx context.Context, id int64, previous, refunds []byte, status string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if string(r.row.Refunds) != string(previous) {
		return false, nil
	}
	r.row.Refunds = refunds
	r.row.Status = status
	r.writes++
	return true, nil
}

var _ = Describe("Ledger concurrent refunds", func() {
	It("should apply one of two racing full refunds and reject the other", func() {
		repo := newRacingRepo(2)
		ledger := payment.NewLedger(repo, passthroughTransactor{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

		errs := make([]error, 2)
		var wg sync.WaitGroup
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer GinkgoRecover()
				defer wg.Done()
				_, errs[i] = ledger.AppendRefund(context.Background(), "pi_1", 30, &payment.RefundRequest{Amount: 4900, Reason: "duplicate purchase"})
			}(i)
		}
		wg.Wait()

		succeeded, conflicted := 0, 0
		for _, err := range errs {
			switch {
			case err == nil:
				succeeded++
			case stdErrors.Is(err, errors.ErrRefundConflict):
				conflicted++
			}
		}
		Expect(succeeded).To(Equal(1))
		Expect(conflicted).To(Equal(1))
		Expect(repo.writes).To(Equal(1))

		stored, err := repo.GetByTransactionID(context.Background(), "pi_1")
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Status).To(Equal(paymentDatamodel.StatusRefunded))
		Expect(string(stored.Refunds)).To(ContainSubstring(`"amount":4900`))
	})

	It("should answer 409 for the refund that lost", func() {
		appErr, ok := errors.IsAppError(errors.ErrRefundConflict)
		Expect(ok).To(BeTrue())
		Expect(appErr.StatusCode).To(Equal(409))
	})
})
