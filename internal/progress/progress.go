package progress

import (
	"encoding/json"
	"time"

	progressDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/progress"
)

type Progress struct {
	CourseID         int64     `json:"course_id"`
	UserID           int64     `json:"user_id"`
	CompletedLessons []int64   `json:"completed_lessons"`
	CurrentLessonID  *int64    `json:"current_lesson_id"`
	Progress         float64   `json:"progress"`
	TimeSpent        int64     `json:"time_spent"`
	Completed        bool      `json:"completed"`
	CreatedAt        time.Time `json:"created_at"`
}

// NewRecord builds the initial row for a fresh enrollment.
func NewRecord(courseID, userID int64, firstLessonID *int64) *progressDatamodel.UserProgress {
	return &progressDatamodel.UserProgress{
		CourseID:         courseID,
		UserID:           userID,
		CompletedLessons: []byte("[]"),
		Notes:            []byte("[]"),
		CurrentLessonID:  firstLessonID,
	}
}

func FromDataModel(p *progressDatamodel.UserProgress) *Progress {
	out := &Progress{
		CourseID:         p.CourseID,
		UserID:           p.UserID,
		CompletedLessons: []int64{},
		CurrentLessonID:  p.CurrentLessonID,
		Progress:         p.Progress,
		TimeSpent:        p.TimeSpent,
		Completed:        p.Completed,
		CreatedAt:        p.CreatedAt,
	}
	if len(p.CompletedLessons) > 0 {
		_ = json.Unmarshal(p.CompletedLessons, &out.CompletedLessons)
	}
	return out
}
