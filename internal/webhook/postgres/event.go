package postgres

import (
	"context"

	webhookDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/webhook"
	"github.com/frahmantamala/atelier/internal/core/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Processed(ctx context.Context, provider, eventID string) (bool, error) {
	var count int64
	err := database.Conn(ctx, r.db).
		Model(&webhookDatamodel.Event{}).
		Where("provider = ? AND event_id = ?", provider, eventID).
		Count(&count).Error
	return count > 0, err
}

func (r *EventRepository) Record(ctx context.Context, e *webhookDatamodel.Event) (bool, error) {
	res := database.Conn(ctx, r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "event_id"}},
			DoNothing: true,
		}).
		Create(e)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
