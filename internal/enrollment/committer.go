package enrollment

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	errors "github.com/frahmantamala/atelier/internal"
	courseDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/course"
	enrollmentDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/enrollment"
	paymentDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/payment"
	"github.com/frahmantamala/atelier/internal/core/database"
	"github.com/frahmantamala/atelier/internal/core/events"
	"github.com/frahmantamala/atelier/internal/course"
	"github.com/frahmantamala/atelier/internal/payment"
	"github.com/frahmantamala/atelier/internal/user"
)

type PendingStore interface {
	FindPendingByExternalID(ctx context.Context, method, externalID string) (*enrollmentDatamodel.PendingEnrollment, error)
	MarkCompleted(ctx context.Context, id int64, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id int64, reason string) (bool, error)
	MarkExpired(ctx context.Context, id int64) (bool, error)
}

type CourseReader interface {
	GetCourse(ctx context.Context, courseID int64) (*course.Course, error)
}

type UserReader interface {
	GetByID(ctx context.Context, userID int64) (*user.User, error)
}

type RosterWriter interface {
	IsEnrolled(ctx context.Context, courseID, userID int64) (bool, error)
	Enroll(ctx context.Context, entry course.StudentEntry) (bool, error)
}

type LedgerWriter interface {
	Record(ctx context.Context, entry payment.LedgerEntry) (*payment.Payment, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

var errPendingRaced = stdErrors.New("pending enrollment left pending state during commit")

// Committer turns a confirmed gateway payment into exactly one enrollment,
// however many times the gateway delivers it.
type Committer struct {
	pending    PendingStore
	courses    CourseReader
	users      UserReader
	roster     RosterWriter
	ledger     LedgerWriter
	publisher  EventPublisher
	transactor database.Transactor
	logger     *slog.Logger
	now        func() time.Time
}

func NewCommitter(
	pending PendingStore,
	courses CourseReader,
	users UserReader,
	roster RosterWriter,
	ledger LedgerWriter,
	publisher EventPublisher,
	transactor database.Transactor,
	logger *slog.Logger,
) *Committer {
	return &Committer{
		pending:    pending,
		courses:    courses,
		users:      users,
		roster:     roster,
		ledger:     ledger,
		publisher:  publisher,
		transactor: transactor,
		logger:     logger,
		now:        time.Now,
	}
}

// Commit runs the whole reconciliation in one transaction, joining the
// caller's when present. Replays and unknown ids are successful no-ops.
func (c *Committer) Commit(ctx context.Context, in GatewayPayment) (*Result, error) {
	var result *Result
	err := c.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		result, err = c.commit(ctx, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Committer) commit(ctx context.Context, in GatewayPayment) (*Result, error) {
	log := c.logger.With("payment_method", in.Method, "external_id", in.ExternalID)

	pending, err := c.pending.FindPendingByExternalID(ctx, in.Method, in.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("failed to find pending enrollment: %w", err)
	}
	if pending == nil {
		log.Warn("no pending enrollment for payment, treating as already processed")
		return &Result{Outcome: OutcomeAlreadyProcessed, TransactionID: in.ExternalID}, nil
	}

	result := &Result{
		PendingID:     pending.ID,
		CourseID:      pending.CourseID,
		UserID:        pending.UserID,
		TransactionID: in.ExternalID,
	}
	log = log.With("pending_id", pending.ID, "course_id", pending.CourseID, "user_id", pending.UserID)

	now := c.now().UTC()
	if pending.IsExpiredAt(now) {
		if _, err := c.pending.MarkExpired(ctx, pending.ID); err != nil {
			return nil, fmt.Errorf("failed to expire pending enrollment: %w", err)
		}
		log.Warn("payment arrived after pending enrollment expired, not enrolling",
			"expires_at", pending.ExpiresAt)
		result.Outcome = OutcomeStale
		return result, nil
	}

	if err := checkMetadata(pending, in); err != nil {
		log.Error("event metadata contradicts pending enrollment", "error", err)
		return nil, err
	}

	crs, err := c.courses.GetCourse(ctx, pending.CourseID)
	if err != nil {
		return nil, c.integrity(log, pending.ID, "course lookup", err)
	}
	buyer, err := c.users.GetByID(ctx, pending.UserID)
	if err != nil {
		return nil, c.integrity(log, pending.ID, "user lookup", err)
	}

	enrolled, err := c.roster.IsEnrolled(ctx, pending.CourseID, pending.UserID)
	if err != nil {
		return nil, err
	}
	if enrolled {
		return c.completeAlreadyEnrolled(ctx, log, pending, result, now)
	}

	added, err := c.roster.Enroll(ctx, course.StudentEntry{
		CourseID:        pending.CourseID,
		UserID:          pending.UserID,
		EnrolledThrough: courseDatamodel.EnrolledThroughPayment,
		PaymentMethod:   pending.PaymentMethod,
		PaymentAmount:   pending.Amount,
		EnrolledAt:      now,
	})
	if err != nil {
		return nil, err
	}
	if !added {
		return c.completeAlreadyEnrolled(ctx, log, pending, result, now)
	}

	if err := c.markCompleted(ctx, pending.ID, now); err != nil {
		return nil, err
	}

	if _, err := c.ledger.Record(ctx, payment.LedgerEntry{
		UserID:        pending.UserID,
		CourseID:      pending.CourseID,
		Amount:        pending.Amount,
		Currency:      pending.Currency,
		PaymentMethod: pending.PaymentMethod,
		TransactionID: in.ExternalID,
		Metadata: paymentDatamodel.Metadata{
			CourseTitle: crs.Title,
			BuyerName:   buyer.DisplayName(),
			BuyerEmail:  buyer.Email,
			PendingID:   pending.ID,
		},
	}); err != nil {
		return nil, err
	}

	event := events.NewEnrollmentCompletedEvent(pending.CourseID, pending.UserID,
		courseDatamodel.EnrolledThroughPayment, pending.PaymentMethod, pending.Amount, pending.Currency, in.ExternalID)
	database.AfterCommit(ctx, func() {
		if err := c.publisher.Publish(ctx, event); err != nil {
			c.logger.Error("failed to publish enrollment event", "event_id", event.EventID(), "error", err)
		}
	})

	log.Info("enrollment committed", "amount", pending.Amount, "currency", pending.Currency)
	result.Outcome = OutcomeEnrolled
	return result, nil
}

// MarkFailed records a failed or canceled gateway payment. An unknown or
// already settled external id is a no-op.
func (c *Committer) MarkFailed(ctx context.Context, method, externalID, reason string) (*Result, error) {
	var result *Result
	var failed *enrollmentDatamodel.PendingEnrollment

	err := c.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		pending, err := c.pending.FindPendingByExternalID(ctx, method, externalID)
		if err != nil {
			return fmt.Errorf("failed to find pending enrollment: %w", err)
		}
		if pending == nil {
			result = &Result{Outcome: OutcomeAlreadyProcessed, TransactionID: externalID}
			return nil
		}

		changed, err := c.pending.MarkFailed(ctx, pending.ID, reason)
		if err != nil {
			return fmt.Errorf("failed to mark pending enrollment failed: %w", err)
		}
		if !changed {
			return errPendingRaced
		}

		result = &Result{
			Outcome:       OutcomeFailed,
			PendingID:     pending.ID,
			CourseID:      pending.CourseID,
			UserID:        pending.UserID,
			TransactionID: externalID,
		}
		failed = pending
		database.AfterCommit(ctx, func() {
			event := events.NewPaymentFailedEvent(pending.ID, pending.CourseID, pending.UserID, method, externalID, reason)
			if err := c.publisher.Publish(ctx, event); err != nil {
				c.logger.Error("failed to publish payment failed event", "event_id", event.EventID(), "error", err)
			}
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if failed != nil {
		c.logger.Info("pending enrollment marked failed",
			"pending_id", failed.ID,
			"payment_method", method,
			"external_id", externalID,
			"reason", reason)
	}
	return result, nil
}

func (c *Committer) completeAlreadyEnrolled(ctx context.Context, log *slog.Logger, pending *enrollmentDatamodel.PendingEnrollment, result *Result, now time.Time) (*Result, error) {
	if err := c.markCompleted(ctx, pending.ID, now); err != nil {
		return nil, err
	}
	log.Warn("user already enrolled, pending enrollment closed without roster change; payment may need a refund",
		"amount", pending.Amount)
	result.Outcome = OutcomeAlreadyEnrolled
	return result, nil
}

func (c *Committer) markCompleted(ctx context.Context, id int64, at time.Time) error {
	changed, err := c.pending.MarkCompleted(ctx, id, at)
	if err != nil {
		return fmt.Errorf("failed to complete pending enrollment: %w", err)
	}
	if !changed {
		return errPendingRaced
	}
	return nil
}

func (c *Committer) integrity(log *slog.Logger, pendingID int64, reason string, err error) error {
	if stdErrors.Is(err, errors.ErrCourseNotFound) || stdErrors.Is(err, errors.ErrUserNotFound) {
		log.Error("referenced record missing during enrollment commit", "reason", reason, "error", err)
		return &IntegrityError{PendingID: pendingID, Reason: reason, Err: err}
	}
	return fmt.Errorf("%s: %w", reason, err)
}

// checkMetadata treats the pending record as authoritative. Metadata the
// gateway did not supply is not compared.
func checkMetadata(pending *enrollmentDatamodel.PendingEnrollment, in GatewayPayment) error {
	if in.CourseID != 0 && in.CourseID != pending.CourseID {
		return &IntegrityError{
			PendingID: pending.ID,
			Reason:    fmt.Sprintf("event course_id %d does not match pending course_id %d", in.CourseID, pending.CourseID),
		}
	}
	if in.UserID != 0 && in.UserID != pending.UserID {
		return &IntegrityError{
			PendingID: pending.ID,
			Reason:    fmt.Sprintf("event user_id %d does not match pending user_id %d", in.UserID, pending.UserID),
		}
	}
	return nil
}
