package postgres

import (
	"context"
	"errors"

	courseDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/course"
	"github.com/frahmantamala/atelier/internal/core/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CourseRepository struct {
	db *gorm.DB
}

func NewCourseRepository(db *gorm.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

func (r *CourseRepository) GetByID(ctx context.Context, courseID int64) (*courseDatamodel.Course, error) {
	var c courseDatamodel.Course
	err := database.Conn(ctx, r.db).Where("id = ?", courseID).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *CourseRepository) IsEnrolled(ctx context.Context, courseID, userID int64) (bool, error) {
	var count int64
	err := database.Conn(ctx, r.db).
		Model(&courseDatamodel.Student{}).
		Where("course_id = ? AND user_id = ?", courseID, userID).
		Count(&count).Error
	return count > 0, err
}

// AddStudent inserts the roster row with ON CONFLICT DO NOTHING on
// (course_id, user_id). The counter moves in the same statement sequence and
// only when the insert took effect, so roster length and total_students agree.
func (r *CourseRepository) AddStudent(ctx context.Context, s *courseDatamodel.Student) (bool, error) {
	conn := database.Conn(ctx, r.db)

	res := conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "course_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(s)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	res = conn.Model(&courseDatamodel.Course{}).
		Where("id = ?", s.CourseID).
		UpdateColumn("total_students", gorm.Expr("total_students + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected != 1 {
		return false, gorm.ErrRecordNotFound
	}
	return true, nil
}

func (r *CourseRepository) FirstLessonID(ctx context.Context, courseID int64) (*int64, error) {
	conn := database.Conn(ctx, r.db)

	// only the first module counts; a later module never supplies the start
	firstModule := conn.Model(&courseDatamodel.Module{}).
		Select("id").
		Where("course_id = ?", courseID).
		Order("position ASC").
		Order("id ASC").
		Limit(1)

	var lesson courseDatamodel.Lesson
	err := conn.
		Where("module_id = (?)", firstModule).
		Order("position ASC").
		Order("id ASC").
		First(&lesson).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &lesson.ID, nil
}
