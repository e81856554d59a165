package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	courseDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/course"
	notificationDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/notification"
	paymentDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/payment"
	"github.com/frahmantamala/atelier/internal/core/events"
	"github.com/frahmantamala/atelier/internal/course"
	"github.com/frahmantamala/atelier/internal/user"
)

const (
	emailAttempts     = 3
	emailInitialDelay = time.Second
	emailTimeout      = 30 * time.Second
)

type Repository interface {
	CreateBatch(ctx context.Context, rows []*notificationDatamodel.Notification) error
	ListByUser(ctx context.Context, userID int64, unreadOnly bool, limit, offset int) ([]*notificationDatamodel.Notification, error)
	CountUnread(ctx context.Context, userID int64) (int64, error)
	MarkRead(ctx context.Context, userID int64, ids []int64, at time.Time) (int64, error)
}

type CourseReader interface {
	GetCourse(ctx context.Context, courseID int64) (*course.Course, error)
}

type UserReader interface {
	GetByID(ctx context.Context, userID int64) (*user.User, error)
}

type ServiceAPI interface {
	List(ctx context.Context, userID int64, unreadOnly bool, limit, offset int) (*ListResponse, error)
	MarkRead(ctx context.Context, userID int64, ids []int64) (int64, error)
}

// Service fans enrollment events out to in-app notifications and email.
// It runs after the enrollment transaction commits, so its failures never
// undo an enrollment.
type Service struct {
	repo    Repository
	courses CourseReader
	users   UserReader
	email   EmailSender
	logger  *slog.Logger
	now     func() time.Time
	backoff time.Duration
}

// NewService accepts a nil sender when email is disabled.
func NewService(repo Repository, courses CourseReader, users UserReader, sender EmailSender, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		courses: courses,
		users:   users,
		email:   sender,
		logger:  logger,
		now:     time.Now,
		backoff: emailInitialDelay,
	}
}

func (s *Service) RegisterEventHandlers(bus *events.EventBus) {
	bus.Subscribe(events.EventTypeEnrollmentCompleted, s.HandleEnrollmentCompleted)
	bus.Subscribe(events.EventTypeRequestReviewed, s.HandleRequestReviewed)
	bus.Subscribe(events.EventTypePaymentFailed, s.HandlePaymentFailed)

	s.logger.Info("notification event handlers registered",
		"handlers", []string{events.EventTypeEnrollmentCompleted, events.EventTypeRequestReviewed, events.EventTypePaymentFailed})
}

func (s *Service) HandleEnrollmentCompleted(ctx context.Context, event events.Event) error {
	ev, ok := event.(*events.EnrollmentCompletedEvent)
	if !ok {
		return fmt.Errorf("expected EnrollmentCompletedEvent, got %T", event)
	}

	c, err := s.courses.GetCourse(ctx, ev.CourseID)
	if err != nil {
		return fmt.Errorf("failed to load course %d: %w", ev.CourseID, err)
	}
	student, err := s.users.GetByID(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("failed to load user %d: %w", ev.UserID, err)
	}

	courseID := c.ID
	rows := []*notificationDatamodel.Notification{{
		UserID:   c.InstructorID,
		Type:     notificationDatamodel.TypeNewStudent,
		Title:    "New student enrolled",
		Message:  fmt.Sprintf("%s enrolled in %s.", student.DisplayName(), c.Title),
		CourseID: &courseID,
	}}

	// manual grants are announced to the student by the review notification
	notifyStudent := ev.EnrolledThrough != courseDatamodel.EnrolledThroughManualGrant
	if notifyStudent {
		rows = append(rows, &notificationDatamodel.Notification{
			UserID:   ev.UserID,
			Type:     notificationDatamodel.TypeEnrollmentCompleted,
			Title:    "Enrollment confirmed",
			Message:  fmt.Sprintf("You are now enrolled in %s.", c.Title),
			CourseID: &courseID,
		})
	}

	if err := s.persist(ctx, rows); err != nil {
		return err
	}

	if notifyStudent {
		s.sendEmail(ctx, student.Email, "You're enrolled in "+c.Title,
			fmt.Sprintf("Hi %s,\n\nYour enrollment in %s is confirmed. Happy learning!\n", student.DisplayName(), c.Title))
	}
	return nil
}

func (s *Service) HandleRequestReviewed(ctx context.Context, event events.Event) error {
	ev, ok := event.(*events.RequestReviewedEvent)
	if !ok {
		return fmt.Errorf("expected RequestReviewedEvent, got %T", event)
	}

	c, err := s.courses.GetCourse(ctx, ev.CourseID)
	if err != nil {
		return fmt.Errorf("failed to load course %d: %w", ev.CourseID, err)
	}
	student, err := s.users.GetByID(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("failed to load user %d: %w", ev.UserID, err)
	}

	n := &notificationDatamodel.Notification{UserID: ev.UserID, CourseID: &ev.CourseID}
	switch ev.Status {
	case paymentDatamodel.RequestStatusApproved:
		n.Type = notificationDatamodel.TypeRequestApproved
		n.Title = "Payment approved"
		n.Message = fmt.Sprintf("Your payment for %s was approved. You now have access to the course.", c.Title)
	case paymentDatamodel.RequestStatusRejected:
		n.Type = notificationDatamodel.TypeRequestRejected
		n.Title = "Payment rejected"
		n.Message = fmt.Sprintf("Your payment for %s was rejected.", c.Title)
		if ev.Notes != "" {
			n.Message += " Reason: " + ev.Notes
		}
	default:
		s.logger.Warn("ignoring review event with unexpected status", "request_id", ev.RequestID, "status", ev.Status)
		return nil
	}

	if err := s.persist(ctx, []*notificationDatamodel.Notification{n}); err != nil {
		return err
	}
	s.sendEmail(ctx, student.Email, n.Title, fmt.Sprintf("Hi %s,\n\n%s\n", student.DisplayName(), n.Message))
	return nil
}

func (s *Service) HandlePaymentFailed(ctx context.Context, event events.Event) error {
	ev, ok := event.(*events.PaymentFailedEvent)
	if !ok {
		return fmt.Errorf("expected PaymentFailedEvent, got %T", event)
	}

	c, err := s.courses.GetCourse(ctx, ev.CourseID)
	if err != nil {
		return fmt.Errorf("failed to load course %d: %w", ev.CourseID, err)
	}

	return s.persist(ctx, []*notificationDatamodel.Notification{{
		UserID:   ev.UserID,
		Type:     notificationDatamodel.TypePaymentFailed,
		Title:    "Payment not completed",
		Message:  fmt.Sprintf("Your payment for %s did not go through. You can try again from the course page.", c.Title),
		CourseID: &ev.CourseID,
	}})
}

func (s *Service) List(ctx context.Context, userID int64, unreadOnly bool, limit, offset int) (*ListResponse, error) {
	rows, err := s.repo.ListByUser(ctx, userID, unreadOnly, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count unread notifications: %w", err)
	}

	out := make([]*Notification, 0, len(rows))
	for _, r := range rows {
		out = append(out, FromDataModel(r))
	}
	return &ListResponse{Notifications: out, Unread: unread}, nil
}

// MarkRead marks the given notifications read, or all of them when ids is empty.
func (s *Service) MarkRead(ctx context.Context, userID int64, ids []int64) (int64, error) {
	updated, err := s.repo.MarkRead(ctx, userID, ids, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return updated, nil
}

func (s *Service) persist(ctx context.Context, rows []*notificationDatamodel.Notification) error {
	now := s.now().UTC()
	for _, r := range rows {
		r.CreatedAt = now
	}
	if err := s.repo.CreateBatch(ctx, rows); err != nil {
		return fmt.Errorf("failed to store notifications: %w", err)
	}
	return nil
}

// sendEmail retries with exponential backoff and only logs the final failure.
func (s *Service) sendEmail(ctx context.Context, to, subject, body string) {
	if s.email == nil || to == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, emailTimeout)
	defer cancel()

	delay := s.backoff
	var err error
	for attempt := 1; attempt <= emailAttempts; attempt++ {
		if err = s.email.SendEmail(ctx, to, subject, body); err == nil {
			s.logger.Info("notification email sent", "to", to, "attempt", attempt)
			return
		}
		if attempt == emailAttempts {
			break
		}

		s.logger.Warn("failed to send notification email, retrying", "to", to, "attempt", attempt, "error", err)
		select {
		case <-time.After(delay):
			delay *= 2
		case <-ctx.Done():
			s.logger.Error("notification email abandoned", "to", to, "error", ctx.Err())
			return
		}
	}
	s.logger.Error("failed to send notification email", "to", to, "attempts", emailAttempts, "error", err)
}
