package course

import (
	"context"
	"fmt"
	"log/slog"

	errors "github.com/frahmantamala/atelier/internal"
	courseDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/course"
	"github.com/frahmantamala/atelier/internal/core/database"
	"github.com/frahmantamala/atelier/internal/core/events"
)

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type ServiceAPI interface {
	GetCourse(ctx context.Context, courseID int64) (*Course, error)
	EnrollFree(ctx context.Context, courseID, userID int64) error
}

type Service struct {
	repo       Repository
	enroller   *Enroller
	transactor database.Transactor
	publisher  EventPublisher
	logger     *slog.Logger
}

func NewService(repo Repository, enroller *Enroller, transactor database.Transactor, publisher EventPublisher, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		enroller:   enroller,
		transactor: transactor,
		publisher:  publisher,
		logger:     logger,
	}
}

func (s *Service) GetCourse(ctx context.Context, courseID int64) (*Course, error) {
	c, err := s.repo.GetByID(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	if c == nil {
		return nil, errors.ErrCourseNotFound
	}
	return FromDataModel(c), nil
}

// EnrollFree enrolls userID in a published course whose price is zero.
func (s *Service) EnrollFree(ctx context.Context, courseID, userID int64) error {
	return s.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		c, err := s.GetCourse(ctx, courseID)
		if err != nil {
			return err
		}
		if !c.IsPublished {
			return errors.ErrCourseNotFound
		}
		if !c.IsFree() {
			return errors.ErrCourseNotFree
		}

		added, err := s.enroller.Enroll(ctx, StudentEntry{
			CourseID:        courseID,
			UserID:          userID,
			EnrolledThrough: courseDatamodel.EnrolledThroughFree,
		})
		if err != nil {
			return err
		}
		if !added {
			return errors.ErrAlreadyEnrolled
		}

		database.AfterCommit(ctx, func() {
			event := events.NewEnrollmentCompletedEvent(courseID, userID, courseDatamodel.EnrolledThroughFree, "", 0, c.Currency, "")
			if err := s.publisher.Publish(ctx, event); err != nil {
				s.logger.Error("failed to publish enrollment event", "course_id", courseID, "user_id", userID, "error", err)
			}
		})
		return nil
	})
}
