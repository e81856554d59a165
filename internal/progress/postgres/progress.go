package postgres

import (
	"context"
	"errors"

	progressDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/progress"
	"github.com/frahmantamala/atelier/internal/core/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProgressRepository struct {
	db *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

func (r *ProgressRepository) GetByCourseAndUser(ctx context.Context, courseID, userID int64) (*progressDatamodel.UserProgress, error) {
	var p progressDatamodel.UserProgress
	err := database.Conn(ctx, r.db).
		Where("course_id = ? AND user_id = ?", courseID, userID).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// CreateIfAbsent relies on the (course_id, user_id) unique index. A conflict
// inserts nothing and is not an error, so an enclosing transaction stays usable.
func (r *ProgressRepository) CreateIfAbsent(ctx context.Context, p *progressDatamodel.UserProgress) (bool, error) {
	res := database.Conn(ctx, r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "course_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(p)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
