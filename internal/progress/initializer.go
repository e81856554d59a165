package progress

import (
	"context"
	"fmt"
	"log/slog"

	progressDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/progress"
)

type Repository interface {
	GetByCourseAndUser(ctx context.Context, courseID, userID int64) (*progressDatamodel.UserProgress, error)
	// CreateIfAbsent inserts p unless a row for (course, user) exists and
	// reports whether it inserted.
	CreateIfAbsent(ctx context.Context, p *progressDatamodel.UserProgress) (bool, error)
}

type LessonLocator interface {
	// FirstLessonID returns the first lesson of the first module, or nil.
	FirstLessonID(ctx context.Context, courseID int64) (*int64, error)
}

type Initializer struct {
	repo    Repository
	lessons LessonLocator
	logger  *slog.Logger
}

func NewInitializer(repo Repository, lessons LessonLocator, logger *slog.Logger) *Initializer {
	return &Initializer{
		repo:    repo,
		lessons: lessons,
		logger:  logger,
	}
}

// Initialize creates the progress row for a new enrollment. It returns false
// when the row already existed, which is not an error.
func (i *Initializer) Initialize(ctx context.Context, courseID, userID int64) (bool, error) {
	existing, err := i.repo.GetByCourseAndUser(ctx, courseID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to look up progress: %w", err)
	}
	if existing != nil {
		i.logger.Info("progress already initialized", "course_id", courseID, "user_id", userID)
		return false, nil
	}

	firstLesson, err := i.lessons.FirstLessonID(ctx, courseID)
	if err != nil {
		return false, fmt.Errorf("failed to resolve first lesson: %w", err)
	}

	created, err := i.repo.CreateIfAbsent(ctx, NewRecord(courseID, userID, firstLesson))
	if err != nil {
		return false, fmt.Errorf("failed to create progress: %w", err)
	}
	if !created {
		i.logger.Info("progress created concurrently", "course_id", courseID, "user_id", userID)
		return false, nil
	}

	i.logger.Info("progress initialized",
		"course_id", courseID,
		"user_id", userID,
		"current_lesson_id", firstLesson)
	return true, nil
}
