package progress

import (
	"time"

	"gorm.io/datatypes"
)

type UserProgress struct {
	ID               int64          `gorm:"primaryKey"`
	CourseID         int64          `gorm:"column:course_id;not null;uniqueIndex:idx_user_progress_course_user"`
	UserID           int64          `gorm:"column:user_id;not null;uniqueIndex:idx_user_progress_course_user"`
	CompletedLessons datatypes.JSON `gorm:"column:completed_lessons"`
	CurrentLessonID  *int64         `gorm:"column:current_lesson_id"`
	Progress         float64        `gorm:"column:progress;not null"`
	TimeSpent        int64          `gorm:"column:time_spent;not null"`
	Completed        bool           `gorm:"column:completed;not null"`
	Notes            datatypes.JSON `gorm:"column:notes"`
	LastAccessedAt   *time.Time     `gorm:"column:last_accessed_at"`
	CreatedAt        time.Time      `gorm:"column:created_at"`
	UpdatedAt        time.Time      `gorm:"column:updated_at"`
}

func (UserProgress) TableName() string {
	return "user_progress"
}
