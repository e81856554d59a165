package checkout

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	errors "github.com/frahmantamala/atelier/internal"
	enrollmentDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/enrollment"
	"github.com/frahmantamala/atelier/internal/core/database"
	"github.com/frahmantamala/atelier/internal/course"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, p *enrollmentDatamodel.PendingEnrollment) error
	// FindPendingByExternalID only matches rows still in status pending.
	FindPendingByExternalID(ctx context.Context, method, externalID string) (*enrollmentDatamodel.PendingEnrollment, error)
	FindByExternalID(ctx context.Context, method, externalID string) (*enrollmentDatamodel.PendingEnrollment, error)
	FindOpen(ctx context.Context, userID, courseID int64, method string) (*enrollmentDatamodel.PendingEnrollment, error)
	MarkCompleted(ctx context.Context, id int64, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id int64, reason string) (bool, error)
	MarkExpired(ctx context.Context, id int64) (bool, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]*enrollmentDatamodel.PendingEnrollment, error)
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

type CourseReader interface {
	GetCourse(ctx context.Context, courseID int64) (*course.Course, error)
}

type EnrollmentChecker interface {
	IsEnrolled(ctx context.Context, courseID, userID int64) (bool, error)
}

// Tracker owns the pending_enrollments lifecycle up to the point a gateway
// reports an outcome.
type Tracker struct {
	repo       Repository
	courses    CourseReader
	enrollment EnrollmentChecker
	transactor database.Transactor
	logger     *slog.Logger
	now        func() time.Time
}

func NewTracker(repo Repository, courses CourseReader, enrollment EnrollmentChecker, transactor database.Transactor, logger *slog.Logger) *Tracker {
	return &Tracker{
		repo:       repo,
		courses:    courses,
		enrollment: enrollment,
		transactor: transactor,
		logger:     logger,
		now:        time.Now,
	}
}

// CreatePending records a pending payment for (user, course). At most one
// open pending row may exist per (user, course, method).
func (t *Tracker) CreatePending(ctx context.Context, in PendingInput) (*Pending, error) {
	if _, ok := enrollmentDatamodel.ExternalIDColumn(in.PaymentMethod); !ok {
		return nil, errors.NewValidationFieldError("payment_method", "unsupported payment method", errors.ErrCodeInvalidMethod)
	}
	if in.ExternalID == "" {
		return nil, errors.NewValidationFieldError("external_id", "external_id is required", errors.ErrCodeValidationFailed)
	}

	var created *enrollmentDatamodel.PendingEnrollment
	err := t.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := t.ensurePayable(ctx, in.CourseID, in.UserID); err != nil {
			return err
		}
		if err := t.ensureNoOpenCheckout(ctx, in.UserID, in.CourseID, in.PaymentMethod); err != nil {
			return err
		}

		record := in.toDataModel()
		if err := t.repo.Create(ctx, record); err != nil {
			if stdErrors.Is(err, gorm.ErrDuplicatedKey) {
				return errors.ErrCheckoutPending
			}
			return fmt.Errorf("failed to create pending enrollment: %w", err)
		}
		created = record
		return nil
	})
	if err != nil {
		return nil, err
	}

	t.logger.Info("pending enrollment created",
		"pending_id", created.ID,
		"course_id", created.CourseID,
		"user_id", created.UserID,
		"payment_method", created.PaymentMethod,
		"external_id", created.ExternalID(),
		"expires_at", created.ExpiresAt)
	return FromDataModel(created), nil
}

// FindByExternalID returns nil when no row matches.
func (t *Tracker) FindByExternalID(ctx context.Context, method, externalID string) (*Pending, error) {
	if _, ok := enrollmentDatamodel.ExternalIDColumn(method); !ok {
		return nil, errors.NewValidationFieldError("payment_method", "unsupported payment method", errors.ErrCodeInvalidMethod)
	}
	p, err := t.repo.FindByExternalID(ctx, method, externalID)
	if err != nil {
		return nil, fmt.Errorf("failed to find pending enrollment: %w", err)
	}
	if p == nil {
		return nil, nil
	}
	return FromDataModel(p), nil
}

// Precheck runs the CreatePending guards without writing, so a checkout can
// fail before a gateway intent exists.
func (t *Tracker) Precheck(ctx context.Context, courseID, userID int64, method string) (*course.Course, error) {
	c, err := t.payableCourse(ctx, courseID, userID)
	if err != nil {
		return nil, err
	}
	if err := t.ensureNoOpenCheckout(ctx, userID, courseID, method); err != nil {
		return nil, err
	}
	return c, nil
}

func (t *Tracker) ensurePayable(ctx context.Context, courseID, userID int64) error {
	_, err := t.payableCourse(ctx, courseID, userID)
	return err
}

func (t *Tracker) payableCourse(ctx context.Context, courseID, userID int64) (*course.Course, error) {
	c, err := t.courses.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if !c.IsPayable() {
		return nil, errors.ErrCourseNotPayable
	}

	enrolled, err := t.enrollment.IsEnrolled(ctx, courseID, userID)
	if err != nil {
		return nil, err
	}
	if enrolled {
		return nil, errors.ErrAlreadyEnrolled
	}
	return c, nil
}

// ensureNoOpenCheckout expires a lapsed open row so a new checkout can take
// its slot in the partial unique index.
func (t *Tracker) ensureNoOpenCheckout(ctx context.Context, userID, courseID int64, method string) error {
	open, err := t.repo.FindOpen(ctx, userID, courseID, method)
	if err != nil {
		return fmt.Errorf("failed to check open checkout: %w", err)
	}
	if open == nil {
		return nil
	}

	if open.IsExpiredAt(t.now()) {
		if _, err := t.repo.MarkExpired(ctx, open.ID); err != nil {
			return fmt.Errorf("failed to expire lapsed checkout: %w", err)
		}
		t.logger.Info("lapsed pending enrollment expired", "pending_id", open.ID, "user_id", userID, "course_id", courseID)
		return nil
	}

	return errors.ErrCheckoutPending.WithDetails(map[string]interface{}{
		"pending_id":  open.ID,
		"external_id": open.ExternalID(),
		"expires_at":  open.ExpiresAt,
	})
}
