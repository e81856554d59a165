package enrollment_test

import (
	"context"
	stdErrors "errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/frahmantamala/atelier/internal/checkout"
	checkoutPostgres "github.com/frahmantamala/atelier/internal/checkout/postgres"
	courseDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/course"
	enrollmentDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/enrollment"
	paymentDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/payment"
	progressDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/progress"
	"github.com/frahmantamala/atelier/internal/core/database"
	"github.com/frahmantamala/atelier/internal/core/database/dbtest"
	"github.com/frahmantamala/atelier/internal/core/events"
	"github.com/frahmantamala/atelier/internal/course"
	coursePostgres "github.com/frahmantamala/atelier/internal/course/postgres"
	"github.com/frahmantamala/atelier/internal/enrollment"
	"github.com/frahmantamala/atelier/internal/payment"
	paymentPostgres "github.com/frahmantamala/atelier/internal/payment/postgres"
	"github.com/frahmantamala/atelier/internal/progress"
	progressPostgres "github.com/frahmantamala/atelier/internal/progress/postgres"
	"github.com/frahmantamala/atelier/internal/user"
	userPostgres "github.com/frahmantamala/atelier/internal/user/postgres"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) ofType(eventType string) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, e := range p.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

type failingInitializer struct{}

func (failingInitializer) Initialize(ctx context.Context, courseID, userID int64) (bool, error) {
	return false, stdErrors.New("progress store unavailable")
}

var _ = Describe("Committer", func() {
	var (
		ctx         context.Context
		db          *gorm.DB
		fx          *dbtest.Fixture
		logger      *slog.Logger
		transactor  *database.GormTransactor
		courseRepo  *coursePostgres.CourseRepository
		pendingRepo *checkoutPostgres.PendingRepository
		courseSvc   *course.Service
		enroller    *course.Enroller
		tracker     *checkout.Tracker
		publisher   *recordingPublisher
		committer   *enrollment.Committer
	)

	buildCommitter := func(initializer course.ProgressInitializer) {
		enroller = course.NewEnroller(courseRepo, initializer, transactor, logger)
		courseSvc = course.NewService(courseRepo, enroller, transactor, publisher, logger)
		tracker = checkout.NewTracker(pendingRepo, courseSvc, enroller, transactor, logger)
		ledger := payment.NewLedger(paymentPostgres.NewPaymentRepository(db), transactor, logger)
		users := user.NewService(userPostgres.NewUserRepository(db))
		committer = enrollment.NewCommitter(pendingRepo, courseSvc, users, enroller, ledger, publisher, transactor, logger)
	}

	openCheckout := func(method, externalID string, expiresAt time.Time) *checkout.Pending {
		p, err := tracker.CreatePending(ctx, checkout.PendingInput{
			CourseID:      fx.PaidCourse.ID,
			UserID:        fx.Student.ID,
			Amount:        fx.PaidCourse.Price,
			Currency:      fx.PaidCourse.Currency,
			PaymentMethod: method,
			ExternalID:    externalID,
			ExpiresAt:     expiresAt,
		})
		Expect(err).NotTo(HaveOccurred())
		return p
	}

	count := func(model interface{}, query string, args ...interface{}) int64 {
		var n int64
		Expect(db.Model(model).Where(query, args...).Count(&n).Error).To(Succeed())
		return n
	}

	rosterSize := func() int64 {
		return count(&courseDatamodel.Student{}, "course_id = ?", fx.PaidCourse.ID)
	}

	totalStudents := func() int {
		var c courseDatamodel.Course
		Expect(db.First(&c, fx.PaidCourse.ID).Error).To(Succeed())
		return c.TotalStudents
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

		transactor = database.NewTransactor(db)
		courseRepo = coursePostgres.NewCourseRepository(db)
		pendingRepo = checkoutPostgres.NewPendingRepository(db)
		publisher = &recordingPublisher{}

		initializer := progress.NewInitializer(progressPostgres.NewProgressRepository(db), courseRepo, logger)
		buildCommitter(initializer)
	})

	AfterEach(func() {
		Expect(dbtest.Close(db)).To(Succeed())
	})

	Describe("Commit", func() {
		It("should enroll exactly once when the same payment is delivered twice", func() {
			// Given
			pending := openCheckout(enrollmentDatamodel.MethodStripe, "pi_123", time.Now().UTC().Add(30*time.Minute))
			in := enrollment.GatewayPayment{
				Method:     enrollmentDatamodel.MethodStripe,
				ExternalID: "pi_123",
				CourseID:   fx.PaidCourse.ID,
				UserID:     fx.Student.ID,
			}

			// When
			first, err := committer.Commit(ctx, in)
			Expect(err).NotTo(HaveOccurred())
			second, err := committer.Commit(ctx, in)
			Expect(err).NotTo(HaveOccurred())

			// Then
			Expect(first.Outcome).To(Equal(enrollment.OutcomeEnrolled))
			Expect(first.PendingID).To(Equal(pending.ID))
			Expect(second.Outcome).To(Equal(enrollment.OutcomeAlreadyProcessed))

			Expect(rosterSize()).To(Equal(int64(1)))
			Expect(totalStudents()).To(Equal(1))
			Expect(pendingStatus(pending.ID)).To(Equal(enrollmentDatamodel.StatusCompleted))
			Expect(count(&paymentDatamodel.Payment{}, "transaction_id = ?", "pi_123")).To(Equal(int64(1)))
			Expect(publisher.ofType(events.EventTypeEnrollmentCompleted)).To(HaveLen(1))
		})

		It("should write the roster, progress, pending and ledger rows together", func() {
			pending := openCheckout(enrollmentDatamodel.MethodStripe, "pi_full", time.Now().UTC().Add(30*time.Minute))

			_, err := committer.Commit(ctx, enrollment.GatewayPayment{
				Method:     enrollmentDatamodel.MethodStripe,
				ExternalID: "pi_full",
			})
			Expect(err).NotTo(HaveOccurred())

			var student courseDatamodel.Student
			Expect(db.Where("course_id = ? AND user_id = ?", fx.PaidCourse.ID, fx.Student.ID).First(&student).Error).To(Succeed())
			Expect(student.EnrolledThrough).To(Equal(courseDatamodel.EnrolledThroughPayment))
			Expect(*student.PaymentMethod).To(Equal(enrollmentDatamodel.MethodStripe))
			Expect(*student.PaymentAmount).To(Equal(fx.PaidCourse.Price))
			Expect(student.GrantedBy).To(BeNil())

			var prog progressDatamodel.UserProgress
			Expect(db.Where("course_id = ? AND user_id = ?", fx.PaidCourse.ID, fx.Student.ID).First(&prog).Error).To(Succeed())
			Expect(prog.CurrentLessonID).NotTo(BeNil())
			Expect(*prog.CurrentLessonID).To(Equal(fx.FirstLesson))
			Expect(string(prog.CompletedLessons)).To(Equal("[]"))
			Expect(prog.Progress).To(BeZero())
			Expect(prog.Completed).To(BeFalse())

			var p enrollmentDatamodel.PendingEnrollment
			Expect(db.First(&p, pending.ID).Error).To(Succeed())
			Expect(p.Status).To(Equal(enrollmentDatamodel.StatusCompleted))
			Expect(p.CompletedAt).NotTo(BeNil())

			var ledgerRow paymentDatamodel.Payment
			Expect(db.Where("transaction_id = ?", "pi_full").First(&ledgerRow).Error).To(Succeed())
			Expect(ledgerRow.Amount).To(Equal(fx.PaidCourse.Price))
			Expect(ledgerRow.Status).To(Equal(paymentDatamodel.StatusSucceeded))
			Expect(string(ledgerRow.Metadata)).To(ContainSubstring("Watercolor"))
		})

		It("should produce one roster row when two payments for the same course race", func() {
			// Given two open checkouts for the same user and course through different gateways
			stripePending := openCheckout(enrollmentDatamodel.MethodStripe, "pi_race", time.Now().UTC().Add(30*time.Minute))
			khaltiPending := openCheckout(enrollmentDatamodel.MethodKhalti, "pidx_race", time.Now().UTC().Add(30*time.Minute))

			// When both gateways confirm at the same time
			var wg sync.WaitGroup
			results := make([]*enrollment.Result, 2)
			errs := make([]error, 2)
			inputs := []enrollment.GatewayPayment{
				{Method: enrollmentDatamodel.MethodStripe, ExternalID: "pi_race"},
				{Method: enrollmentDatamodel.MethodKhalti, ExternalID: "pidx_race"},
			}
			for i := range inputs {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					results[i], errs[i] = committer.Commit(ctx, inputs[i])
				}(i)
			}
			wg.Wait()

			// Then
			Expect(errs[0]).NotTo(HaveOccurred())
			Expect(errs[1]).NotTo(HaveOccurred())
			outcomes := []enrollment.Outcome{results[0].Outcome, results[1].Outcome}
			Expect(outcomes).To(ConsistOf(enrollment.OutcomeEnrolled, enrollment.OutcomeAlreadyEnrolled))

			Expect(rosterSize()).To(Equal(int64(1)))
			Expect(totalStudents()).To(Equal(1))
			Expect(pendingStatus(stripePending.ID)).To(Equal(enrollmentDatamodel.StatusCompleted))
			Expect(pendingStatus(khaltiPending.ID)).To(Equal(enrollmentDatamodel.StatusCompleted))
			Expect(count(&paymentDatamodel.Payment{}, "course_id = ?", fx.PaidCourse.ID)).To(Equal(int64(1)))
		})

		It("should leave no trace when progress initialization fails", func() {
			// Given
			buildCommitter(failingInitializer{})
			pending := openCheckout(enrollmentDatamodel.MethodStripe, "pi_fail", time.Now().UTC().Add(30*time.Minute))

			// When
			result, err := committer.Commit(ctx, enrollment.GatewayPayment{
				Method:     enrollmentDatamodel.MethodStripe,
				ExternalID: "pi_fail",
			})

			// Then
			Expect(err).To(HaveOccurred())
			Expect(result).To(BeNil())
			Expect(rosterSize()).To(BeZero())
			Expect(totalStudents()).To(BeZero())
			Expect(pendingStatus(pending.ID)).To(Equal(enrollmentDatamodel.StatusPending))
			Expect(count(&paymentDatamodel.Payment{}, "1 = 1")).To(BeZero())
			Expect(publisher.ofType(events.EventTypeEnrollmentCompleted)).To(BeEmpty())
		})

		It("should close the pending record without a roster change when the user is already enrolled", func() {
			pending := openCheckout(enrollmentDatamodel.MethodStripe, "pi_dupe", time.Now().UTC().Add(30*time.Minute))
			added, err := enroller.Enroll(ctx, course.StudentEntry{
				CourseID:        fx.PaidCourse.ID,
				UserID:          fx.Student.ID,
				EnrolledThrough: courseDatamodel.EnrolledThroughManualGrant,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(added).To(BeTrue())

			result, err := committer.Commit(ctx, enrollment.GatewayPayment{
				Method:     enrollmentDatamodel.MethodStripe,
				ExternalID: "pi_dupe",
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Outcome).To(Equal(enrollment.OutcomeAlreadyEnrolled))
			Expect(rosterSize()).To(Equal(int64(1)))
			Expect(totalStudents()).To(Equal(1))
			Expect(pendingStatus(pending.ID)).To(Equal(enrollmentDatamodel.StatusCompleted))
			Expect(count(&paymentDatamodel.Payment{}, "1 = 1")).To(BeZero())
		})

		It("should treat an unknown external id as already processed", func() {
			result, err := committer.Commit(ctx, enrollment.GatewayPayment{
				Method:     enrollmentDatamodel.MethodStripe,
				ExternalID: "pi_unknown",
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Outcome).To(Equal(enrollment.OutcomeAlreadyProcessed))
			Expect(rosterSize()).To(BeZero())
		})

		It("should reject metadata that contradicts the pending record", func() {
			pending := openCheckout(enrollmentDatamodel.MethodStripe, "pi_meta", time.Now().UTC().Add(30*time.Minute))

			_, err := committer.Commit(ctx, enrollment.GatewayPayment{
				Method:     enrollmentDatamodel.MethodStripe,
				ExternalID: "pi_meta",
				CourseID:   fx.FreeCourse.ID,
				UserID:     fx.Student.ID,
			})

			var integrityErr *enrollment.IntegrityError
			Expect(stdErrors.As(err, &integrityErr)).To(BeTrue())
			Expect(integrityErr.PendingID).To(Equal(pending.ID))
			Expect(rosterSize()).To(BeZero())
			Expect(pendingStatus(pending.ID)).To(Equal(enrollmentDatamodel.StatusPending))
		})

		It("should fail with an integrity error when the buyer no longer exists", func() {
			record := &enrollmentDatamodel.PendingEnrollment{
				CourseID:      fx.PaidCourse.ID,
				UserID:        999,
				Amount:        fx.PaidCourse.Price,
				Currency:      "usd",
				PaymentMethod: enrollmentDatamodel.MethodStripe,
				Status:        enrollmentDatamodel.StatusPending,
				ExpiresAt:     time.Now().UTC().Add(time.Hour),
			}
			externalID := "pi_ghost"
			record.PaymentIntentID = &externalID
			Expect(pendingRepo.Create(ctx, record)).To(Succeed())

			_, err := committer.Commit(ctx, enrollment.GatewayPayment{Method: enrollmentDatamodel.MethodStripe, ExternalID: externalID})

			var integrityErr *enrollment.IntegrityError
			Expect(stdErrors.As(err, &integrityErr)).To(BeTrue())
			Expect(pendingStatus(record.ID)).To(Equal(enrollmentDatamodel.StatusPending))
		})

		Context("when the pending record has expired", func() {
			It("should mark a lapsed pending record expired and not enroll", func() {
				// Given
				pending := openCheckout(enrollmentDatamodel.MethodStripe, "pi_late", time.Now().UTC().Add(-time.Minute))

				// When
				first, err := committer.Commit(ctx, enrollment.GatewayPayment{Method: enrollmentDatamodel.MethodStripe, ExternalID: "pi_late"})
				Expect(err).NotTo(HaveOccurred())
				second, err := committer.Commit(ctx, enrollment.GatewayPayment{Method: enrollmentDatamodel.MethodStripe, ExternalID: "pi_late"})
				Expect(err).NotTo(HaveOccurred())

				// Then
				Expect(first.Outcome).To(Equal(enrollment.OutcomeStale))
				Expect(second.Outcome).To(Equal(enrollment.OutcomeAlreadyProcessed))
				Expect(pendingStatus(pending.ID)).To(Equal(enrollmentDatamodel.StatusExpired))
				Expect(rosterSize()).To(BeZero())
				Expect(totalStudents()).To(BeZero())
			})

			It("should not resurrect a record the sweeper already expired", func() {
				pending := openCheckout(enrollmentDatamodel.MethodStripe, "pi_swept", time.Now().UTC().Add(30*time.Minute))
				changed, err := pendingRepo.MarkExpired(ctx, pending.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(changed).To(BeTrue())

				result, err := committer.Commit(ctx, enrollment.GatewayPayment{Method: enrollmentDatamodel.MethodStripe, ExternalID: "pi_swept"})

				Expect(err).NotTo(HaveOccurred())
				Expect(result.Outcome).To(Equal(enrollment.OutcomeAlreadyProcessed))
				Expect(pendingStatus(pending.ID)).To(Equal(enrollmentDatamodel.StatusExpired))
				Expect(rosterSize()).To(BeZero())
			})
		})
	})

	Describe("MarkFailed", func() {
		It("should mark the pending record failed once and publish a failure event", func() {
			pending := openCheckout(enrollmentDatamodel.MethodKhalti, "pidx_cancel", time.Now().UTC().Add(30*time.Minute))

			first, err := committer.MarkFailed(ctx, enrollmentDatamodel.MethodKhalti, "pidx_cancel", "User canceled")
			Expect(err).NotTo(HaveOccurred())
			second, err := committer.MarkFailed(ctx, enrollmentDatamodel.MethodKhalti, "pidx_cancel", "User canceled")
			Expect(err).NotTo(HaveOccurred())

			Expect(first.Outcome).To(Equal(enrollment.OutcomeFailed))
			Expect(second.Outcome).To(Equal(enrollment.OutcomeAlreadyProcessed))

			var p enrollmentDatamodel.PendingEnrollment
			Expect(db.First(&p, pending.ID).Error).To(Succeed())
			Expect(p.Status).To(Equal(enrollmentDatamodel.StatusFailed))
			Expect(*p.FailureReason).To(Equal("User canceled"))
			Expect(publisher.ofType(events.EventTypePaymentFailed)).To(HaveLen(1))
			Expect(rosterSize()).To(BeZero())
		})

		It("should not fail a payment that already completed", func() {
			openCheckout(enrollmentDatamodel.MethodStripe, "pi_done", time.Now().UTC().Add(30*time.Minute))
			_, err := committer.Commit(ctx, enrollment.GatewayPayment{Method: enrollmentDatamodel.MethodStripe, ExternalID: "pi_done"})
			Expect(err).NotTo(HaveOccurred())

			result, err := committer.MarkFailed(ctx, enrollmentDatamodel.MethodStripe, "pi_done", "card_declined")

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Outcome).To(Equal(enrollment.OutcomeAlreadyProcessed))
			Expect(rosterSize()).To(Equal(int64(1)))
		})
	})
})
