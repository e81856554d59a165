package course

import (
	"context"
	"fmt"
	"log/slog"

	courseDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/course"
	"github.com/frahmantamala/atelier/internal/core/database"
)

type Repository interface {
	GetByID(ctx context.Context, courseID int64) (*courseDatamodel.Course, error)
	IsEnrolled(ctx context.Context, courseID, userID int64) (bool, error)
	// AddStudent appends s to the roster unless the user is already on it and
	// increments total_students only when a row was inserted.
	AddStudent(ctx context.Context, s *courseDatamodel.Student) (bool, error)
	FirstLessonID(ctx context.Context, courseID int64) (*int64, error)
}

type ProgressInitializer interface {
	Initialize(ctx context.Context, courseID, userID int64) (bool, error)
}

// Enroller is the single roster write path shared by the paid, free and
// manual enrollment flows.
type Enroller struct {
	repo       Repository
	progress   ProgressInitializer
	transactor database.Transactor
	logger     *slog.Logger
}

func NewEnroller(repo Repository, progress ProgressInitializer, transactor database.Transactor, logger *slog.Logger) *Enroller {
	return &Enroller{
		repo:       repo,
		progress:   progress,
		transactor: transactor,
		logger:     logger,
	}
}

func (e *Enroller) IsEnrolled(ctx context.Context, courseID, userID int64) (bool, error) {
	enrolled, err := e.repo.IsEnrolled(ctx, courseID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to check enrollment: %w", err)
	}
	return enrolled, nil
}

// Enroll adds the roster row and seeds progress in one transaction, joining
// the caller's transaction when there is one. It returns false without error
// when the user was already on the roster.
func (e *Enroller) Enroll(ctx context.Context, entry StudentEntry) (bool, error) {
	var added bool
	err := e.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		inserted, err := e.repo.AddStudent(ctx, entry.ToDataModel())
		if err != nil {
			return fmt.Errorf("failed to add student: %w", err)
		}
		if !inserted {
			return nil
		}

		if _, err := e.progress.Initialize(ctx, entry.CourseID, entry.UserID); err != nil {
			return fmt.Errorf("failed to initialize progress: %w", err)
		}
		added = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if added {
		e.logger.Info("student enrolled",
			"course_id", entry.CourseID,
			"user_id", entry.UserID,
			"enrolled_through", entry.EnrolledThrough)
	} else {
		e.logger.Warn("student already on roster, skipping",
			"course_id", entry.CourseID,
			"user_id", entry.UserID)
	}
	return added, nil
}
